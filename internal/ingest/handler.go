package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hiddenbook/otc-watcher/internal/core/domain"
	"github.com/hiddenbook/otc-watcher/internal/infra/storage"
	"github.com/hiddenbook/otc-watcher/internal/metrics"
)

// DeadLetter records events whose handling failed, keyed for manual
// replay. Implementations must tolerate being handed the same event
// twice.
type DeadLetter interface {
	Record(ctx context.Context, signature, eventName string, cause error) error
}

// Handler routes decoded events to the storage adapter. The raw event
// is always written first; a failure handling one event is logged and
// does not stop the rest of the batch. Forward progress wins over
// atomicity; backfill re-runs reconcile anything missed.
type Handler struct {
	rawEvents  storage.RawEventRepository
	deals      storage.DealRepository
	offers     storage.OfferRepository
	balances   storage.BalanceRepository
	deadLetter DeadLetter // optional
	log        *slog.Logger
}

// NewHandler creates an event handler. deadLetter may be nil.
func NewHandler(
	rawEvents storage.RawEventRepository,
	deals storage.DealRepository,
	offers storage.OfferRepository,
	balances storage.BalanceRepository,
	deadLetter DeadLetter,
	log *slog.Logger,
) *Handler {
	return &Handler{
		rawEvents:  rawEvents,
		deals:      deals,
		offers:     offers,
		balances:   balances,
		deadLetter: deadLetter,
		log:        log.With("component", "event_handler"),
	}
}

// Handle processes one transaction's events in order.
func (h *Handler) Handle(ctx context.Context, batch []domain.EventWithContext) error {
	for _, ev := range batch {
		if err := h.handleOne(ctx, ev); err != nil {
			h.log.Error("Failed to handle event",
				"event", ev.Name,
				"signature", ev.Context.Signature,
				"error", err,
			)
			metrics.EventHandlingErrorsTotal.WithLabelValues(ev.Name).Inc()
			if h.deadLetter != nil {
				if dlErr := h.deadLetter.Record(ctx, ev.Context.Signature, ev.Name, err); dlErr != nil {
					h.log.Warn("Failed to record dead letter", "error", dlErr)
				}
			}
		}
	}
	return nil
}

func (h *Handler) handleOne(ctx context.Context, ev domain.EventWithContext) error {
	if err := h.insertRaw(ctx, ev); err != nil {
		return err
	}

	switch data := ev.Data.(type) {
	case *domain.DealCreated:
		return h.deals.UpsertCreated(ctx, dealFromEvent(data, ev.Context))

	case *domain.DealSettled:
		updated, err := h.deals.MarkSettled(ctx, dealSettlementFromEvent(data, ev.Context))
		if err != nil {
			return err
		}
		if !updated {
			// Orphan update: the created-event has not been ingested
			// yet, or this is a replay. Backfill reconciles the former.
			h.log.Warn("Deal settlement matched no open row",
				"address", data.Deal.String(),
				"signature", ev.Context.Signature,
			)
			metrics.OrphanUpdatesTotal.WithLabelValues("deal").Inc()
		}
		return nil

	case *domain.OfferCreated:
		return h.offers.UpsertCreated(ctx, offerFromEvent(data, ev.Context))

	case *domain.OfferSettled:
		updated, err := h.offers.MarkSettled(ctx, offerSettlementFromEvent(data, ev.Context))
		if err != nil {
			return err
		}
		if !updated {
			h.log.Warn("Offer settlement matched no open row",
				"address", data.Offer.String(),
				"signature", ev.Context.Signature,
			)
			metrics.OrphanUpdatesTotal.WithLabelValues("offer").Inc()
		}
		return nil

	case *domain.BalanceUpdated:
		return h.balances.Upsert(ctx, balanceFromEvent(data, ev.Context))

	default:
		h.log.Warn("Unknown event type", "event", ev.Name, "signature", ev.Context.Signature)
		return nil
	}
}

func (h *Handler) insertRaw(ctx context.Context, ev domain.EventWithContext) error {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal raw payload: %w", err)
	}
	return h.rawEvents.Insert(ctx, &domain.RawEvent{
		EventName:  ev.Name,
		Signature:  ev.Context.Signature,
		Slot:       ev.Context.Slot,
		BlockTime:  ev.Context.BlockTime,
		RawPayload: payload,
	})
}

func dealFromEvent(e *domain.DealCreated, tx domain.TxContext) *domain.Deal {
	return &domain.Deal{
		Address:          e.Deal.String(),
		BaseMint:         e.BaseMint.String(),
		QuoteMint:        e.QuoteMint.String(),
		ExpiresAt:        time.Unix(e.ExpiresAt, 0).UTC(),
		AllowPartial:     e.AllowPartial,
		CreatedAt:        time.Unix(e.CreatedAt, 0).UTC(),
		CreatedSignature: tx.Signature,
		EncryptionKey:    e.EncryptionKey[:],
		Nonce:            e.Nonce[:],
		Ciphertexts:      flatten(e.Ciphertexts[:]),
		Status:           domain.DealOpen,
		Slot:             tx.Slot,
	}
}

func dealSettlementFromEvent(e *domain.DealSettled, tx domain.TxContext) *domain.DealSettlement {
	return &domain.DealSettlement{
		Address:       e.Deal.String(),
		Status:        domain.DealStatusFromCode(e.Status),
		SettledAt:     time.Unix(e.SettledAt, 0).UTC(),
		Signature:     tx.Signature,
		Slot:          tx.Slot,
		EncryptionKey: e.EncryptionKey[:],
		Nonce:         e.Nonce[:],
		Ciphertexts:   flatten(e.Ciphertexts[:]),
	}
}

func offerFromEvent(e *domain.OfferCreated, tx domain.TxContext) *domain.Offer {
	return &domain.Offer{
		Address:          e.Offer.String(),
		DealAddress:      e.Deal.String(),
		OfferIndex:       e.OfferIndex,
		SubmittedAt:      time.Unix(e.SubmittedAt, 0).UTC(),
		CreatedSignature: tx.Signature,
		EncryptionKey:    e.EncryptionKey[:],
		Nonce:            e.Nonce[:],
		Ciphertexts:      flatten(e.Ciphertexts[:]),
		Status:           domain.OfferOpen,
		Slot:             tx.Slot,
	}
}

func offerSettlementFromEvent(e *domain.OfferSettled, tx domain.TxContext) *domain.OfferSettlement {
	return &domain.OfferSettlement{
		Address:       e.Offer.String(),
		SettledAt:     time.Unix(e.SettledAt, 0).UTC(),
		Signature:     tx.Signature,
		Slot:          tx.Slot,
		EncryptionKey: e.EncryptionKey[:],
		Nonce:         e.Nonce[:],
		Ciphertexts:   flatten(e.Ciphertexts[:]),
	}
}

func balanceFromEvent(e *domain.BalanceUpdated, tx domain.TxContext) *domain.Balance {
	return &domain.Balance{
		Address:       e.Balance.String(),
		Controller:    e.Controller.String(),
		Mint:          e.Mint.String(),
		EncryptionKey: e.EncryptionKey[:],
		Nonce:         e.Nonce[:],
		Ciphertexts:   flatten(e.Ciphertexts[:]),
		Slot:          tx.Slot,
	}
}

func flatten(chunks [][32]byte) []byte {
	out := make([]byte, 0, len(chunks)*32)
	for _, c := range chunks {
		out = append(out, c[:]...)
	}
	return out
}
