// Package crank discovers settable deals and offers in the store and
// submits their settlement action to the ledger. It only ever reads
// the aggregates; rows change when the ingestion path observes the
// settlement events this package causes.
package crank

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/hiddenbook/otc-watcher/internal/core/domain"
	"github.com/hiddenbook/otc-watcher/internal/infra/ledger"
	"github.com/hiddenbook/otc-watcher/internal/metrics"
)

// Ledger is the slice of the ledger client the executor needs.
type Ledger interface {
	DealAccount(ctx context.Context, address solana.PublicKey) (*ledger.DealAccount, error)
	OfferAccount(ctx context.Context, address solana.PublicKey) (*ledger.OfferAccount, error)
	CrankDeal(ctx context.Context, deal solana.PublicKey, acc *ledger.DealAccount) (solana.Signature, solana.PublicKey, error)
	CrankOffer(ctx context.Context, deal, offer solana.PublicKey, offerAcc *ledger.OfferAccount, dealAcc *ledger.DealAccount) (solana.Signature, solana.PublicKey, error)
	AwaitFinalization(ctx context.Context, sig solana.Signature, computation solana.PublicKey) error
}

// Executor submits settlement actions. Its two operations never let an
// error escape; every failure is folded into the result.
type Executor interface {
	ExecuteCrankDeal(ctx context.Context, dealAddress string) domain.CrankResult
	ExecuteCrankOffer(ctx context.Context, offerAddress, dealAddress string) domain.CrankResult
}

// LedgerExecutor executes cranks against the external ledger and
// awaits finalization of the triggered computation.
type LedgerExecutor struct {
	ledger Ledger
	log    *slog.Logger
}

// NewLedgerExecutor creates an executor backed by the ledger client.
func NewLedgerExecutor(l Ledger, log *slog.Logger) *LedgerExecutor {
	return &LedgerExecutor{
		ledger: l,
		log:    log.With("component", "crank_executor"),
	}
}

// ExecuteCrankDeal settles one expired deal. Success means the
// computation finalized; the resulting DealSettled event is persisted
// by the ingestion path, not here.
func (e *LedgerExecutor) ExecuteCrankDeal(ctx context.Context, dealAddress string) domain.CrankResult {
	started := time.Now()
	defer func() {
		metrics.CrankDuration.WithLabelValues("deal").Observe(time.Since(started).Seconds())
	}()

	deal, err := solana.PublicKeyFromBase58(dealAddress)
	if err != nil {
		return e.failure("deal", dealAddress, fmt.Errorf("invalid deal address: %w", err))
	}

	// The balance account derivation needs the deal's controller and
	// base mint, which only live on-chain.
	acc, err := e.ledger.DealAccount(ctx, deal)
	if err != nil {
		return e.failure("deal", dealAddress, err)
	}

	sig, computation, err := e.ledger.CrankDeal(ctx, deal, acc)
	if err != nil {
		return e.failure("deal", dealAddress, err)
	}

	e.log.Debug("Crank deal queued", "deal", dealAddress, "signature", sig.String())

	if err := e.ledger.AwaitFinalization(ctx, sig, computation); err != nil {
		return e.failure("deal", dealAddress, err)
	}

	e.log.Info("Crank deal finalized", "deal", dealAddress, "signature", sig.String())
	metrics.CranksTotal.WithLabelValues("deal", "success").Inc()
	return domain.CrankResult{Success: true, Address: dealAddress, Signature: sig.String()}
}

// ExecuteCrankOffer settles one offer on a no-longer-open deal.
func (e *LedgerExecutor) ExecuteCrankOffer(ctx context.Context, offerAddress, dealAddress string) domain.CrankResult {
	started := time.Now()
	defer func() {
		metrics.CrankDuration.WithLabelValues("offer").Observe(time.Since(started).Seconds())
	}()

	offer, err := solana.PublicKeyFromBase58(offerAddress)
	if err != nil {
		return e.failure("offer", offerAddress, fmt.Errorf("invalid offer address: %w", err))
	}
	deal, err := solana.PublicKeyFromBase58(dealAddress)
	if err != nil {
		return e.failure("offer", offerAddress, fmt.Errorf("invalid deal address: %w", err))
	}

	offerAcc, err := e.ledger.OfferAccount(ctx, offer)
	if err != nil {
		return e.failure("offer", offerAddress, err)
	}
	dealAcc, err := e.ledger.DealAccount(ctx, deal)
	if err != nil {
		return e.failure("offer", offerAddress, err)
	}

	sig, computation, err := e.ledger.CrankOffer(ctx, deal, offer, offerAcc, dealAcc)
	if err != nil {
		return e.failure("offer", offerAddress, err)
	}

	e.log.Debug("Crank offer queued", "offer", offerAddress, "signature", sig.String())

	if err := e.ledger.AwaitFinalization(ctx, sig, computation); err != nil {
		return e.failure("offer", offerAddress, err)
	}

	e.log.Info("Crank offer finalized", "offer", offerAddress, "signature", sig.String())
	metrics.CranksTotal.WithLabelValues("offer", "success").Inc()
	return domain.CrankResult{Success: true, Address: offerAddress, Signature: sig.String()}
}

func (e *LedgerExecutor) failure(phase, address string, err error) domain.CrankResult {
	e.log.Warn("Failed to crank "+phase, "address", address, "error", err)
	metrics.CranksTotal.WithLabelValues(phase, "failure").Inc()
	return domain.CrankResult{Success: false, Address: address, Err: err.Error()}
}
