package storage

import (
	"context"
	"time"

	"github.com/hiddenbook/otc-watcher/internal/core/domain"
)

// RawEventRepository is the append-only audit log. Insert treats a
// (signature, event_name) uniqueness violation as success.
type RawEventRepository interface {
	Insert(ctx context.Context, ev *domain.RawEvent) error
}

// DealRepository owns all writes to the deals table plus the crank
// read path. Every write is safe to repeat with identical input.
type DealRepository interface {
	// UpsertCreated inserts the deal or, on replay with a newer slot,
	// refreshes it. Sets status to open.
	UpsertCreated(ctx context.Context, deal *domain.Deal) error

	// MarkSettled applies the one-shot settlement transition. Returns
	// false when no open row matched (orphan update or replay), which
	// callers may log but must treat as non-fatal.
	MarkSettled(ctx context.Context, s *domain.DealSettlement) (bool, error)

	// GetExpiredOpen returns up to limit deals with status=open and
	// expires_at before now.
	GetExpiredOpen(ctx context.Context, now time.Time, limit int) ([]domain.CrankableDeal, error)
}

// OfferRepository mirrors DealRepository for offers.
type OfferRepository interface {
	UpsertCreated(ctx context.Context, offer *domain.Offer) error
	MarkSettled(ctx context.Context, s *domain.OfferSettlement) (bool, error)

	// GetOpenForSettledDeals returns up to limit offers with
	// status=open whose deal row exists and is no longer open. The
	// join (rather than a foreign key) tolerates out-of-order
	// ingestion: an offer with no deal row yet is simply not eligible.
	GetOpenForSettledDeals(ctx context.Context, limit int) ([]domain.CrankableOffer, error)
}

// BalanceRepository mirrors confidential balance accounts.
type BalanceRepository interface {
	Upsert(ctx context.Context, b *domain.Balance) error
}
