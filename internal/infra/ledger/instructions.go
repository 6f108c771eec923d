package ledger

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Circuit names as registered with the MPC network.
const (
	CircuitCrankDeal  = "crank_deal"
	CircuitCrankOffer = "crank_offer"
)

// crankArgs is the borsh argument block shared by both crank
// instructions: the computation offset plus two output-blob nonces.
type crankArgs struct {
	ComputationOffset uint64
	SettleBlobNonce   bin.Uint128
	BalanceBlobNonce  bin.Uint128
}

func instructionDiscriminator(name string) []byte {
	sum := sha256.Sum256([]byte("global:" + name))
	return sum[:8]
}

func encodeCrankData(name string, args crankArgs) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write(instructionDiscriminator(name))
	if err := bin.NewBorshEncoder(buf).Encode(args); err != nil {
		return nil, fmt.Errorf("failed to encode %s args: %w", name, err)
	}
	return buf.Bytes(), nil
}

// crankAccounts bundles the derived addresses both crank instructions
// share. Deal- or offer-specific accounts are prepended by the caller.
type crankAccounts struct {
	balance     solana.PublicKey
	computation solana.PublicKey
	cluster     solana.PublicKey
	mxe         solana.PublicKey
	mempool     solana.PublicKey
	execPool    solana.PublicKey
	compDef     solana.PublicKey
}

func (c *Client) deriveCrankAccounts(circuit string, controller, mint solana.PublicKey, computationOffset uint64) (*crankAccounts, error) {
	balance, err := BalancePDA(c.program, controller, mint)
	if err != nil {
		return nil, fmt.Errorf("balance pda: %w", err)
	}
	computation, err := ComputationAccount(c.mpcProgram, c.clusterOffset, computationOffset)
	if err != nil {
		return nil, fmt.Errorf("computation account: %w", err)
	}
	cluster, err := ClusterAccount(c.mpcProgram, c.clusterOffset)
	if err != nil {
		return nil, fmt.Errorf("cluster account: %w", err)
	}
	mxe, err := MXEAccount(c.mpcProgram, c.program)
	if err != nil {
		return nil, fmt.Errorf("mxe account: %w", err)
	}
	mempool, err := MempoolAccount(c.mpcProgram, c.clusterOffset)
	if err != nil {
		return nil, fmt.Errorf("mempool account: %w", err)
	}
	execPool, err := ExecutingPoolAccount(c.mpcProgram, c.clusterOffset)
	if err != nil {
		return nil, fmt.Errorf("executing pool: %w", err)
	}
	compDef, err := CompDefAccount(c.mpcProgram, c.program, circuit)
	if err != nil {
		return nil, fmt.Errorf("comp def account: %w", err)
	}
	return &crankAccounts{
		balance:     balance,
		computation: computation,
		cluster:     cluster,
		mxe:         mxe,
		mempool:     mempool,
		execPool:    execPool,
		compDef:     compDef,
	}, nil
}

func (c *Client) buildCrankDealInstruction(deal solana.PublicKey, acc *DealAccount, args crankArgs) (solana.Instruction, solana.PublicKey, error) {
	derived, err := c.deriveCrankAccounts(CircuitCrankDeal, acc.Controller, acc.BaseMint, args.ComputationOffset)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}

	data, err := encodeCrankData(CircuitCrankDeal, args)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}

	metas := solana.AccountMetaSlice{
		solana.Meta(c.payer.PublicKey()).SIGNER().WRITE(),
		solana.Meta(deal).WRITE(),
		solana.Meta(derived.balance).WRITE(),
		solana.Meta(derived.computation).WRITE(),
		solana.Meta(derived.cluster).WRITE(),
		solana.Meta(derived.mxe),
		solana.Meta(derived.mempool).WRITE(),
		solana.Meta(derived.execPool).WRITE(),
		solana.Meta(derived.compDef),
		solana.Meta(solana.SystemProgramID),
	}

	return solana.NewInstruction(c.program, metas, data), derived.computation, nil
}

func (c *Client) buildCrankOfferInstruction(deal, offer solana.PublicKey, offerAcc *OfferAccount, dealAcc *DealAccount, args crankArgs) (solana.Instruction, solana.PublicKey, error) {
	// Offer settlement pays out in the quote asset to the offeror.
	derived, err := c.deriveCrankAccounts(CircuitCrankOffer, offerAcc.Controller, dealAcc.QuoteMint, args.ComputationOffset)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}

	data, err := encodeCrankData(CircuitCrankOffer, args)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}

	metas := solana.AccountMetaSlice{
		solana.Meta(c.payer.PublicKey()).SIGNER().WRITE(),
		solana.Meta(deal).WRITE(),
		solana.Meta(offer).WRITE(),
		solana.Meta(derived.balance).WRITE(),
		solana.Meta(derived.computation).WRITE(),
		solana.Meta(derived.cluster).WRITE(),
		solana.Meta(derived.mxe),
		solana.Meta(derived.mempool).WRITE(),
		solana.Meta(derived.execPool).WRITE(),
		solana.Meta(derived.compDef),
		solana.Meta(solana.SystemProgramID),
	}

	return solana.NewInstruction(c.program, metas, data), derived.computation, nil
}
