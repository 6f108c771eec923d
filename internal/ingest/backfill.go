package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/hiddenbook/otc-watcher/internal/core/domain"
	"github.com/hiddenbook/otc-watcher/internal/events"
	"github.com/hiddenbook/otc-watcher/internal/metrics"
)

// serverPageLimit is the hard cap the RPC imposes on one
// getSignaturesForAddress page.
const serverPageLimit = 1000

// HistoryClient pages the program's transaction history.
type HistoryClient interface {
	Signatures(ctx context.Context, before solana.Signature, limit int) ([]*rpc.TransactionSignature, error)
	Transaction(ctx context.Context, sig solana.Signature) (*rpc.GetTransactionResult, error)
}

// BackfillConfig bounds one backfill run.
type BackfillConfig struct {
	// Limit is the maximum number of signatures to fetch.
	Limit int
	// Before starts paging from just before this signature; empty
	// starts from the newest.
	Before string
	// BatchSize is the transaction re-fetch batch size.
	BatchSize int
}

// BackfillAdapter replays historical transactions through the same
// callback the live adapter uses, with full context including block
// time.
//
// Contract: the callback is invoked oldest-first. Signature pages
// arrive newest-first from the ledger and are reversed before
// processing, which is what guarantees a row-creating event is handled
// before the settlement event that mutates it.
type BackfillAdapter struct {
	client  HistoryClient
	program solana.PublicKey
	cfg     BackfillConfig
	log     *slog.Logger
	stopped chan struct{}
}

// NewBackfillAdapter creates a bounded backfill run.
func NewBackfillAdapter(client HistoryClient, program solana.PublicKey, cfg BackfillConfig, log *slog.Logger) *BackfillAdapter {
	if cfg.Limit <= 0 {
		cfg.Limit = 1000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &BackfillAdapter{
		client:  client,
		program: program,
		cfg:     cfg,
		log:     log.With("component", "backfill_adapter"),
		stopped: make(chan struct{}),
	}
}

// Start runs the backfill to completion and returns. Per-transaction
// failures are logged and skipped; a later run is the backstop.
func (a *BackfillAdapter) Start(ctx context.Context, cb Callback) error {
	signatures, err := a.fetchSignatures(ctx)
	if err != nil {
		return err
	}
	if len(signatures) == 0 {
		a.log.Info("No signatures found for program")
		return nil
	}

	return a.processTransactions(ctx, signatures, cb)
}

// Stop aborts an in-progress run at the next batch boundary.
func (a *BackfillAdapter) Stop() error {
	select {
	case <-a.stopped:
	default:
		close(a.stopped)
	}
	return nil
}

// fetchSignatures pages backward until the limit is reached or history
// is exhausted, then reverses so the result is oldest-first.
func (a *BackfillAdapter) fetchSignatures(ctx context.Context) ([]*rpc.TransactionSignature, error) {
	var all []*rpc.TransactionSignature
	var before solana.Signature

	if a.cfg.Before != "" {
		sig, err := solana.SignatureFromBase58(a.cfg.Before)
		if err != nil {
			return nil, err
		}
		before = sig
	}

	a.log.Info("Fetching signatures", "limit", a.cfg.Limit, "before", a.cfg.Before)

	for len(all) < a.cfg.Limit {
		if err := a.interrupted(ctx); err != nil {
			return nil, err
		}

		fetchLimit := min(serverPageLimit, a.cfg.Limit-len(all))
		page, err := a.client.Signatures(ctx, before, fetchLimit)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}

		all = append(all, page...)
		before = page[len(page)-1].Signature

		a.log.Debug("Fetched signature page", "page", len(page), "total", len(all))
	}

	a.log.Info("Fetched all signatures", "count", len(all))

	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	return all, nil
}

func (a *BackfillAdapter) processTransactions(ctx context.Context, signatures []*rpc.TransactionSignature, cb Callback) error {
	processed := 0

	for start := 0; start < len(signatures); start += a.cfg.BatchSize {
		if err := a.interrupted(ctx); err != nil {
			return err
		}

		end := min(start+a.cfg.BatchSize, len(signatures))
		for _, sigInfo := range signatures[start:end] {
			if sigInfo.Err != nil {
				continue
			}

			tx, err := a.client.Transaction(ctx, sigInfo.Signature)
			if err != nil {
				a.log.Error("Failed to fetch transaction",
					"signature", sigInfo.Signature.String(),
					"error", err,
				)
				continue
			}
			if tx == nil || tx.Meta == nil || tx.Meta.Err != nil {
				continue
			}

			batch := a.decode(tx.Meta.LogMessages, sigInfo)
			if len(batch) == 0 {
				continue
			}

			if err := cb(ctx, batch); err != nil {
				a.log.Error("Failed to handle event batch",
					"signature", sigInfo.Signature.String(),
					"error", err,
				)
				continue
			}
			processed += len(batch)
		}

		a.log.Info("Processed transaction batch",
			"batch_end", end,
			"total", len(signatures),
			"events_processed", processed,
		)
	}

	a.log.Info("Backfill complete", "events_processed", processed)
	return nil
}

func (a *BackfillAdapter) decode(logs []string, sigInfo *rpc.TransactionSignature) []domain.EventWithContext {
	decoded := events.DecodeLogs(logs, a.program)
	if len(decoded) == 0 {
		return nil
	}

	var blockTime *time.Time
	if sigInfo.BlockTime != nil {
		t := sigInfo.BlockTime.Time()
		blockTime = &t
	}

	batch := make([]domain.EventWithContext, len(decoded))
	for i, ev := range decoded {
		batch[i] = domain.EventWithContext{
			Name: ev.Name,
			Data: ev.Data,
			Context: domain.TxContext{
				Signature: sigInfo.Signature.String(),
				Slot:      sigInfo.Slot,
				BlockTime: blockTime,
			},
		}
		metrics.EventsIndexedTotal.WithLabelValues(ev.Name, "backfill").Inc()
	}
	return batch
}

func (a *BackfillAdapter) interrupted(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-a.stopped:
		return context.Canceled
	default:
		return nil
	}
}
