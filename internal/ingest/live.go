package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/hiddenbook/otc-watcher/internal/core/domain"
	"github.com/hiddenbook/otc-watcher/internal/events"
	"github.com/hiddenbook/otc-watcher/internal/infra/ledger"
	"github.com/hiddenbook/otc-watcher/internal/metrics"
)

// Resubscribe backoff bounds. The first retry is quick; repeated
// failures back off exponentially up to the cap.
const (
	defaultResubscribeMin = time.Second
	defaultResubscribeMax = 30 * time.Second
)

// LogSubscriber opens a live log stream for the target program.
type LogSubscriber interface {
	SubscribeLogs(ctx context.Context) (ledger.LogStream, error)
}

// LiveAdapter streams events from the ledger's log subscription.
// Block time is not available at this layer and is passed as nil;
// backfill fills it in later. The subscription handle is owned by the
// adapter instance, so multiple adapters can run in isolation.
//
// Once running, a dropped subscription is never fatal: the adapter
// reopens it with backoff and keeps going. Transactions landing while
// the stream is down are picked up by the next backfill run. Only the
// initial subscribe failure is returned to the caller.
type LiveAdapter struct {
	subscriber LogSubscriber
	program    solana.PublicKey
	log        *slog.Logger

	backoffMin time.Duration
	backoffMax time.Duration

	mu     sync.Mutex
	stream ledger.LogStream
	cancel context.CancelFunc
}

// NewLiveAdapter creates a live adapter for the given program.
func NewLiveAdapter(subscriber LogSubscriber, program solana.PublicKey, log *slog.Logger) *LiveAdapter {
	return &LiveAdapter{
		subscriber: subscriber,
		program:    program,
		log:        log.With("component", "live_adapter"),
		backoffMin: defaultResubscribeMin,
		backoffMax: defaultResubscribeMax,
	}
}

// Start subscribes and dispatches until the context is cancelled or
// Stop is called. Failed transactions are skipped; decode and handler
// failures are logged per transaction and never tear down the
// subscription. A broken stream is reopened with backoff.
func (a *LiveAdapter) Start(ctx context.Context, cb Callback) error {
	ctx, cancel := context.WithCancel(ctx)

	stream, err := a.subscriber.SubscribeLogs(ctx)
	if err != nil {
		cancel()
		return err
	}

	a.mu.Lock()
	a.stream = stream
	a.cancel = cancel
	a.mu.Unlock()

	a.log.Info("Live ingestion started", "program", a.program.String())

	for {
		result, err := stream.Recv(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			a.log.Error("Log subscription failed, reopening", "error", err)
			stream, err = a.resubscribe(ctx)
			if err != nil {
				// Only context cancellation escapes the retry loop.
				return nil
			}
			continue
		}

		if result.Value.Err != nil {
			a.log.Debug("Skipping failed transaction", "signature", result.Value.Signature.String())
			continue
		}

		decoded := events.DecodeLogs(result.Value.Logs, a.program)
		if len(decoded) == 0 {
			continue
		}

		batch := make([]domain.EventWithContext, len(decoded))
		for i, ev := range decoded {
			batch[i] = domain.EventWithContext{
				Name: ev.Name,
				Data: ev.Data,
				Context: domain.TxContext{
					Signature: result.Value.Signature.String(),
					Slot:      result.Context.Slot,
					BlockTime: nil, // not provided by the log stream
				},
			}
			metrics.EventsIndexedTotal.WithLabelValues(ev.Name, "live").Inc()
		}

		if err := cb(ctx, batch); err != nil {
			a.log.Error("Failed to handle event batch",
				"signature", result.Value.Signature.String(),
				"error", err,
			)
		}
	}
}

// resubscribe releases the broken stream and retries the subscription
// until it succeeds or the context is cancelled.
func (a *LiveAdapter) resubscribe(ctx context.Context) (ledger.LogStream, error) {
	a.mu.Lock()
	if a.stream != nil {
		a.stream.Unsubscribe()
		a.stream = nil
	}
	a.mu.Unlock()

	backoff := a.backoffMin
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}

		stream, err := a.subscriber.SubscribeLogs(ctx)
		if err != nil {
			metrics.SubscriptionRestartsTotal.WithLabelValues("failure").Inc()
			a.log.Error("Failed to reopen log subscription",
				"error", err,
				"next_attempt_in", backoff.String(),
			)
			if backoff < a.backoffMax {
				backoff *= 2
				if backoff > a.backoffMax {
					backoff = a.backoffMax
				}
			}
			continue
		}

		a.mu.Lock()
		a.stream = stream
		a.mu.Unlock()

		metrics.SubscriptionRestartsTotal.WithLabelValues("success").Inc()
		a.log.Info("Log subscription reopened", "program", a.program.String())
		return stream, nil
	}
}

// Stop releases the subscription handle.
func (a *LiveAdapter) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.stream != nil {
		a.stream.Unsubscribe()
		a.stream = nil
		a.log.Info("Log subscription released")
	}
	return nil
}
