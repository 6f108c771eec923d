package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/hiddenbook/otc-watcher/internal/core/domain"
)

// DealRepo implements storage.DealRepository using PostgreSQL.
type DealRepo struct {
	db *DB
}

// NewDealRepo creates a new PostgreSQL deal repository.
func NewDealRepo(db *DB) *DealRepo {
	return &DealRepo{db: db}
}

// UpsertCreated inserts the deal row, or refreshes it when the event
// is re-delivered from a newer slot. A replay of the same or an older
// slot leaves the row untouched.
func (r *DealRepo) UpsertCreated(ctx context.Context, d *domain.Deal) error {
	query := `
		INSERT INTO deals (
			address, base_mint, quote_mint, expires_at, allow_partial, created_at,
			created_signature, encryption_key, nonce, ciphertexts, status, slot
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 'open', $11)
		ON CONFLICT (address) DO UPDATE SET
			base_mint = EXCLUDED.base_mint,
			quote_mint = EXCLUDED.quote_mint,
			expires_at = EXCLUDED.expires_at,
			allow_partial = EXCLUDED.allow_partial,
			created_at = EXCLUDED.created_at,
			created_signature = EXCLUDED.created_signature,
			encryption_key = EXCLUDED.encryption_key,
			nonce = EXCLUDED.nonce,
			ciphertexts = EXCLUDED.ciphertexts,
			slot = EXCLUDED.slot,
			indexed_at = NOW()
		WHERE deals.slot < EXCLUDED.slot
	`

	_, err := r.db.ExecContext(ctx, query,
		d.Address, d.BaseMint, d.QuoteMint, d.ExpiresAt, d.AllowPartial, d.CreatedAt,
		d.CreatedSignature, d.EncryptionKey, d.Nonce, d.Ciphertexts, d.Slot,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert deal %s: %w", d.Address, err)
	}
	return nil
}

// MarkSettled flips an open deal to its terminal status. Only rows
// still open transition, which makes a second settlement event a
// no-op rather than a reversal. Returns false when nothing matched:
// either a replay, or an orphan update whose created-event has not
// been ingested yet (backfill reconciles those).
func (r *DealRepo) MarkSettled(ctx context.Context, s *domain.DealSettlement) (bool, error) {
	query := `
		UPDATE deals SET
			status = $1,
			settled_at = $2,
			settled_signature = $3,
			settlement_encryption_key = $4,
			settlement_nonce = $5,
			settlement_ciphertexts = $6,
			slot = $7,
			indexed_at = NOW()
		WHERE address = $8 AND status = 'open'
	`

	res, err := r.db.ExecContext(ctx, query,
		string(s.Status), s.SettledAt, s.Signature,
		s.EncryptionKey, s.Nonce, s.Ciphertexts, s.Slot, s.Address,
	)
	if err != nil {
		return false, fmt.Errorf("failed to settle deal %s: %w", s.Address, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetExpiredOpen returns deals that are past expiry but still open.
func (r *DealRepo) GetExpiredOpen(ctx context.Context, now time.Time, limit int) ([]domain.CrankableDeal, error) {
	query := `
		SELECT address FROM deals
		WHERE status = 'open' AND expires_at < $1
		LIMIT $2
	`

	var addresses []string
	if err := r.db.SelectContext(ctx, &addresses, query, now, limit); err != nil {
		return nil, fmt.Errorf("failed to get expired open deals: %w", err)
	}

	deals := make([]domain.CrankableDeal, len(addresses))
	for i, a := range addresses {
		deals[i] = domain.CrankableDeal{Address: a}
	}
	return deals, nil
}
