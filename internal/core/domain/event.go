package domain

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// Canonical event names emitted by the OTC program.
const (
	EventDealCreated    = "DealCreated"
	EventDealSettled    = "DealSettled"
	EventOfferCreated   = "OfferCreated"
	EventOfferSettled   = "OfferSettled"
	EventBalanceUpdated = "BalanceUpdated"
)

// EventData is the closed set of payloads the OTC program emits.
// The router switches over these concrete types; anything else takes
// the unknown branch.
type EventData interface {
	EventName() string
}

// DealCreated is emitted when a seller creates a deal. Field order
// matches the on-chain borsh layout.
type DealCreated struct {
	Deal          solana.PublicKey
	BaseMint      solana.PublicKey
	QuoteMint     solana.PublicKey
	ExpiresAt     int64
	AllowPartial  bool
	CreatedAt     int64
	EncryptionKey [32]byte
	Nonce         [16]byte
	Ciphertexts   [2][32]byte
}

func (DealCreated) EventName() string { return EventDealCreated }

// DealSettled is emitted once per deal when the confidential
// computation settles it. Status is a small integer code
// (1 = executed, otherwise expired).
type DealSettled struct {
	Deal          solana.PublicKey
	Status        uint8
	SettledAt     int64
	EncryptionKey [32]byte
	Nonce         [16]byte
	Ciphertexts   [3][32]byte
}

func (DealSettled) EventName() string { return EventDealSettled }

// OfferCreated is emitted when an offer is submitted against a deal.
type OfferCreated struct {
	Deal          solana.PublicKey
	Offer         solana.PublicKey
	OfferIndex    uint32
	SubmittedAt   int64
	EncryptionKey [32]byte
	Nonce         [16]byte
	Ciphertexts   [2][32]byte
}

func (OfferCreated) EventName() string { return EventOfferCreated }

// OfferSettled is emitted once per offer after its deal has settled.
type OfferSettled struct {
	Deal          solana.PublicKey
	Offer         solana.PublicKey
	OfferIndex    uint32
	SettledAt     int64
	EncryptionKey [32]byte
	Nonce         [16]byte
	Ciphertexts   [4][32]byte
}

func (OfferSettled) EventName() string { return EventOfferSettled }

// BalanceUpdated is emitted whenever a confidential balance account
// changes. It follows the same ingestion contract as the settlement
// events but plays no part in cranking.
type BalanceUpdated struct {
	Balance       solana.PublicKey
	Controller    solana.PublicKey
	Mint          solana.PublicKey
	EncryptionKey [32]byte
	Nonce         [16]byte
	Ciphertexts   [2][32]byte
}

func (BalanceUpdated) EventName() string { return EventBalanceUpdated }

// TxContext carries the transaction-level provenance of an event.
// BlockTime is nil when the source cannot provide it (the live log
// subscription); the backfill path fills it in.
type TxContext struct {
	Signature string
	Slot      uint64
	BlockTime *time.Time
}

// EventWithContext pairs a decoded event with its transaction context.
type EventWithContext struct {
	Name    string
	Data    EventData
	Context TxContext
}
