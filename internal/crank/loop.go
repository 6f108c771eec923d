package crank

import (
	"context"
	"log/slog"
	"time"

	"github.com/hiddenbook/otc-watcher/internal/infra/storage"
	"github.com/hiddenbook/otc-watcher/internal/metrics"
)

// LoopConfig bounds one poll iteration.
type LoopConfig struct {
	Interval  time.Duration
	BatchSize int
}

// Loop polls for crank candidates and executes them. Per iteration:
// the deal phase runs first, then the offer phase; each phase is
// isolated, so a query failure or a single execution failure never
// aborts the other phase or the loop. Execution is strictly
// sequential; there is no cross-iteration state beyond the store, so
// restarts are safe by construction.
//
// Phase order matters over time, not within one iteration: an offer
// becomes crankable only after its deal's settlement has been observed
// and persisted by the ingestion path.
type Loop struct {
	deals    storage.DealRepository
	offers   storage.OfferRepository
	executor Executor
	cfg      LoopConfig
	log      *slog.Logger
}

// NewLoop creates a crank loop.
func NewLoop(
	deals storage.DealRepository,
	offers storage.OfferRepository,
	executor Executor,
	cfg LoopConfig,
	log *slog.Logger,
) *Loop {
	return &Loop{
		deals:    deals,
		offers:   offers,
		executor: executor,
		cfg:      cfg,
		log:      log.With("component", "crank_loop"),
	}
}

// Run iterates until the context is cancelled. An in-flight execution
// completes before the loop observes cancellation.
func (l *Loop) Run(ctx context.Context) {
	l.log.Info("Cranker started",
		"interval", l.cfg.Interval.String(),
		"batch_size", l.cfg.BatchSize,
	)

	for {
		dealsCranked, offersCranked := l.iterate(ctx)

		if dealsCranked > 0 || offersCranked > 0 {
			l.log.Info("Crank iteration complete",
				"deals_cranked", dealsCranked,
				"offers_cranked", offersCranked,
			)
		} else {
			l.log.Debug("Crank iteration complete, nothing to crank")
		}

		select {
		case <-ctx.Done():
			l.log.Info("Cranker stopped")
			return
		case <-time.After(l.cfg.Interval):
		}
	}
}

// iterate runs one full iteration: deal phase, then offer phase.
func (l *Loop) iterate(ctx context.Context) (dealsCranked, offersCranked int) {
	dealsCranked = l.dealPhase(ctx)
	offersCranked = l.offerPhase(ctx)
	return dealsCranked, offersCranked
}

func (l *Loop) dealPhase(ctx context.Context) int {
	deals, err := l.deals.GetExpiredOpen(ctx, time.Now().UTC(), l.cfg.BatchSize)
	if err != nil {
		l.log.Error("Error in deal crank phase", "error", err)
		return 0
	}
	metrics.CrankCandidates.WithLabelValues("deal").Set(float64(len(deals)))

	if len(deals) > 0 {
		l.log.Info("Found expired deals to crank", "count", len(deals))
	}

	cranked := 0
	for _, deal := range deals {
		if ctx.Err() != nil {
			return cranked
		}
		if result := l.executor.ExecuteCrankDeal(ctx, deal.Address); result.Success {
			cranked++
		}
	}
	return cranked
}

func (l *Loop) offerPhase(ctx context.Context) int {
	offers, err := l.offers.GetOpenForSettledDeals(ctx, l.cfg.BatchSize)
	if err != nil {
		l.log.Error("Error in offer crank phase", "error", err)
		return 0
	}
	metrics.CrankCandidates.WithLabelValues("offer").Set(float64(len(offers)))

	if len(offers) > 0 {
		l.log.Info("Found offers to crank", "count", len(offers))
	}

	cranked := 0
	for _, offer := range offers {
		if ctx.Err() != nil {
			return cranked
		}
		if result := l.executor.ExecuteCrankOffer(ctx, offer.Address, offer.DealAddress); result.Success {
			cranked++
		}
	}
	return cranked
}
