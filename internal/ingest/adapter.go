// Package ingest turns ledger transaction logs into persisted domain
// events. Two adapters feed one handler: a live log subscription and
// a bounded chronological backfill.
package ingest

import (
	"context"

	"github.com/hiddenbook/otc-watcher/internal/core/domain"
)

// Callback receives one transaction's decoded events, in emission
// order. Delivery is at-least-once; everything downstream must be
// idempotent.
type Callback func(ctx context.Context, events []domain.EventWithContext) error

// Adapter is a source of decoded events. Start blocks until the source
// is exhausted (backfill) or the context is cancelled (live); Stop
// releases any held subscription and is safe to call concurrently
// with Start.
type Adapter interface {
	Start(ctx context.Context, cb Callback) error
	Stop() error
}
