package postgres

import (
	"context"
	"fmt"

	"github.com/hiddenbook/otc-watcher/internal/core/domain"
	"github.com/hiddenbook/otc-watcher/internal/metrics"
)

// RawEventRepo implements storage.RawEventRepository using PostgreSQL.
type RawEventRepo struct {
	db *DB
}

// NewRawEventRepo creates a new PostgreSQL raw event repository.
func NewRawEventRepo(db *DB) *RawEventRepo {
	return &RawEventRepo{db: db}
}

// Insert appends a raw event. A (signature, event_name) conflict means
// the event was already recorded; that is success, not an error.
func (r *RawEventRepo) Insert(ctx context.Context, ev *domain.RawEvent) error {
	query := `
		INSERT INTO raw_events (event_name, signature, slot, block_time, raw_payload)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (signature, event_name) DO NOTHING
	`

	res, err := r.db.ExecContext(ctx, query,
		ev.EventName, ev.Signature, ev.Slot, ev.BlockTime, ev.RawPayload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert raw_event: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		metrics.DuplicateEventsTotal.WithLabelValues(ev.EventName).Inc()
	}
	return nil
}
