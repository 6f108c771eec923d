// Package ledger wraps the external ledger: transaction history and
// log subscriptions for the ingestion path, and settlement submission
// for the cranker. Settlement payloads stay opaque end to end.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
)

// ErrFinalizeTimeout is returned when a queued settlement computation
// does not finalize within the configured bound.
var ErrFinalizeTimeout = errors.New("computation finalization timed out")

// Config holds the ledger endpoints and program identities.
type Config struct {
	RPCURL        string
	WSURL         string
	Program       solana.PublicKey
	MPCProgram    solana.PublicKey
	ClusterOffset uint32

	// Payer signs crank transactions; ingestion-only clients leave it
	// empty.
	Payer solana.PrivateKey

	// FinalizeTimeout bounds AwaitFinalization. Zero means the
	// 90-second default.
	FinalizeTimeout time.Duration
}

const defaultFinalizeTimeout = 90 * time.Second

// Client is an owned handle on the ledger. Each instance manages its
// own subscriptions; nothing here is package-global, so adapters and
// tests can run several in isolation.
type Client struct {
	rpc           *rpc.Client
	wsURL         string
	program       solana.PublicKey
	mpcProgram    solana.PublicKey
	clusterOffset uint32
	payer         solana.PrivateKey
	finalizeAfter time.Duration
	log           *slog.Logger
}

// NewClient creates a ledger client and verifies the RPC endpoint.
func NewClient(ctx context.Context, cfg Config, log *slog.Logger) (*Client, error) {
	client := rpc.New(cfg.RPCURL)

	health, err := client.GetHealth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to reach rpc endpoint: %w", err)
	}
	if health != "ok" {
		return nil, fmt.Errorf("rpc endpoint unhealthy: %s", health)
	}

	timeout := cfg.FinalizeTimeout
	if timeout <= 0 {
		timeout = defaultFinalizeTimeout
	}

	return &Client{
		rpc:           client,
		wsURL:         cfg.WSURL,
		program:       cfg.Program,
		mpcProgram:    cfg.MPCProgram,
		clusterOffset: cfg.ClusterOffset,
		payer:         cfg.Payer,
		finalizeAfter: timeout,
		log:           log.With("component", "ledger"),
	}, nil
}

// Program returns the target program identity.
func (c *Client) Program() solana.PublicKey { return c.program }

// Health reports whether the RPC endpoint answers.
func (c *Client) Health(ctx context.Context) error {
	health, err := c.rpc.GetHealth(ctx)
	if err != nil {
		return err
	}
	if health != "ok" {
		return fmt.Errorf("rpc endpoint unhealthy: %s", health)
	}
	return nil
}

// LogStream is one live log subscription. Recv blocks until the next
// notification or context cancellation; Unsubscribe releases the
// server-side handle.
type LogStream interface {
	Recv(ctx context.Context) (*ws.LogResult, error)
	Unsubscribe()
}

type logStream struct {
	conn *ws.Client
	sub  *ws.LogSubscription
}

func (s *logStream) Recv(ctx context.Context) (*ws.LogResult, error) { return s.sub.Recv(ctx) }

func (s *logStream) Unsubscribe() {
	s.sub.Unsubscribe()
	s.conn.Close()
}

// SubscribeLogs opens a confirmed-commitment log subscription for
// transactions mentioning the target program. The returned stream is
// owned by the caller.
func (c *Client) SubscribeLogs(ctx context.Context) (LogStream, error) {
	conn, err := ws.Connect(ctx, c.wsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect websocket: %w", err)
	}

	sub, err := conn.LogsSubscribeMentions(c.program, rpc.CommitmentConfirmed)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to subscribe to logs: %w", err)
	}

	c.log.Info("Log subscription opened", "program", c.program.String())
	return &logStream{conn: conn, sub: sub}, nil
}

// Signatures pages the program's signature history backward from
// before (zero value = newest). The server caps one page at 1000.
func (c *Client) Signatures(ctx context.Context, before solana.Signature, limit int) ([]*rpc.TransactionSignature, error) {
	opts := &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: rpc.CommitmentConfirmed,
	}
	if !before.IsZero() {
		opts.Before = before
	}
	return c.rpc.GetSignaturesForAddressWithOpts(ctx, c.program, opts)
}

// Transaction fetches one confirmed transaction with its log messages.
func (c *Client) Transaction(ctx context.Context, sig solana.Signature) (*rpc.GetTransactionResult, error) {
	maxVersion := uint64(0)
	return c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	})
}

// DealAccount fetches and decodes a deal account.
func (c *Client) DealAccount(ctx context.Context, address solana.PublicKey) (*DealAccount, error) {
	data, err := c.accountData(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch deal account %s: %w", address, err)
	}
	return decodeDealAccount(data)
}

// OfferAccount fetches and decodes an offer account.
func (c *Client) OfferAccount(ctx context.Context, address solana.PublicKey) (*OfferAccount, error) {
	data, err := c.accountData(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch offer account %s: %w", address, err)
	}
	return decodeOfferAccount(data)
}

func (c *Client) accountData(ctx context.Context, address solana.PublicKey) ([]byte, error) {
	res, err := c.rpc.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{
		Commitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return nil, err
	}
	data := res.Value.Data.GetBinary()
	if len(data) < 8 {
		return nil, fmt.Errorf("account %s too short: %d bytes", address, len(data))
	}
	return data, nil
}

// CrankDeal submits the crank_deal instruction for an expired deal and
// returns the submission signature plus the computation account whose
// finalization the caller awaits.
func (c *Client) CrankDeal(ctx context.Context, deal solana.PublicKey, acc *DealAccount) (solana.Signature, solana.PublicKey, error) {
	args, err := newCrankArgs()
	if err != nil {
		return solana.Signature{}, solana.PublicKey{}, err
	}

	ix, computation, err := c.buildCrankDealInstruction(deal, acc, args)
	if err != nil {
		return solana.Signature{}, solana.PublicKey{}, err
	}

	sig, err := c.submit(ctx, ix)
	return sig, computation, err
}

// CrankOffer submits the crank_offer instruction for an offer whose
// deal has settled.
func (c *Client) CrankOffer(ctx context.Context, deal, offer solana.PublicKey, offerAcc *OfferAccount, dealAcc *DealAccount) (solana.Signature, solana.PublicKey, error) {
	args, err := newCrankArgs()
	if err != nil {
		return solana.Signature{}, solana.PublicKey{}, err
	}

	ix, computation, err := c.buildCrankOfferInstruction(deal, offer, offerAcc, dealAcc, args)
	if err != nil {
		return solana.Signature{}, solana.PublicKey{}, err
	}

	sig, err := c.submit(ctx, ix)
	return sig, computation, err
}

func newCrankArgs() (crankArgs, error) {
	offset, err := NewComputationOffset()
	if err != nil {
		return crankArgs{}, err
	}
	settleNonce, err := NewBlobNonce()
	if err != nil {
		return crankArgs{}, err
	}
	balanceNonce, err := NewBlobNonce()
	if err != nil {
		return crankArgs{}, err
	}
	return crankArgs{
		ComputationOffset: offset,
		SettleBlobNonce:   settleNonce,
		BalanceBlobNonce:  balanceNonce,
	}, nil
}

func (c *Client) submit(ctx context.Context, ix solana.Instruction) (solana.Signature, error) {
	recent, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to get blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{ix},
		recent.Value.Blockhash,
		solana.TransactionPayer(c.payer.PublicKey()),
	)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to build transaction: %w", err)
	}

	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(c.payer.PublicKey()) {
			return &c.payer
		}
		return nil
	}); err != nil {
		return solana.Signature{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       true,
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to send transaction: %w", err)
	}
	return sig, nil
}

// AwaitFinalization blocks until the queued computation finalizes: the
// submission confirms and the computation account is closed by the
// network's callback. The wait is bounded by the configured timeout;
// expiry yields ErrFinalizeTimeout so a hung computation stalls only
// the current item.
func (c *Client) AwaitFinalization(ctx context.Context, sig solana.Signature, computation solana.PublicKey) error {
	ctx, cancel := context.WithTimeout(ctx, c.finalizeAfter)
	defer cancel()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	confirmed := false
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ErrFinalizeTimeout
			}
			return ctx.Err()
		case <-ticker.C:
		}

		if !confirmed {
			statuses, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
			if err != nil || len(statuses.Value) == 0 || statuses.Value[0] == nil {
				continue
			}
			status := statuses.Value[0]
			if status.Err != nil {
				return fmt.Errorf("crank transaction failed: %v", status.Err)
			}
			confirmed = true
		}

		// The computation account is closed when the callback runs.
		_, err := c.rpc.GetAccountInfoWithOpts(ctx, computation, &rpc.GetAccountInfoOpts{
			Commitment: rpc.CommitmentConfirmed,
		})
		if errors.Is(err, rpc.ErrNotFound) {
			return nil
		}
	}
}
