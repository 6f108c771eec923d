package domain

import "time"

// DealStatus is the lifecycle state of a deal row. Transitions are
// monotonic: open -> executed or open -> expired, never back.
type DealStatus string

const (
	DealOpen     DealStatus = "open"
	DealExecuted DealStatus = "executed"
	DealExpired  DealStatus = "expired"
)

// DealStatusFromCode maps the on-chain settlement code to a row status.
func DealStatusFromCode(code uint8) DealStatus {
	if code == 1 {
		return DealExecuted
	}
	return DealExpired
}

// OfferStatus is the lifecycle state of an offer row (open -> settled).
type OfferStatus string

const (
	OfferOpen          OfferStatus = "open"
	OfferSettledStatus OfferStatus = "settled"
)

// Deal is the queryable aggregate for one on-chain deal. Encrypted
// payload fields are carried as opaque bytes and never interpreted.
type Deal struct {
	Address          string
	BaseMint         string
	QuoteMint        string
	ExpiresAt        time.Time
	AllowPartial     bool
	CreatedAt        time.Time
	CreatedSignature string
	EncryptionKey    []byte
	Nonce            []byte
	Ciphertexts      []byte
	Status           DealStatus
	Slot             uint64
}

// DealSettlement is the one-shot mutation applied to a deal row when
// its DealSettled event is ingested.
type DealSettlement struct {
	Address       string
	Status        DealStatus
	SettledAt     time.Time
	Signature     string
	Slot          uint64
	EncryptionKey []byte
	Nonce         []byte
	Ciphertexts   []byte
}

// Offer is the queryable aggregate for one on-chain offer. DealAddress
// references a deal row but is not enforced as a foreign key, so
// out-of-order ingestion never fails a write.
type Offer struct {
	Address          string
	DealAddress      string
	OfferIndex       uint32
	SubmittedAt      time.Time
	CreatedSignature string
	EncryptionKey    []byte
	Nonce            []byte
	Ciphertexts      []byte
	Status           OfferStatus
	Slot             uint64
}

// OfferSettlement is the one-shot mutation applied to an offer row.
type OfferSettlement struct {
	Address       string
	SettledAt     time.Time
	Signature     string
	Slot          uint64
	EncryptionKey []byte
	Nonce         []byte
	Ciphertexts   []byte
}

// Balance mirrors a confidential balance account.
type Balance struct {
	Address       string
	Controller    string
	Mint          string
	EncryptionKey []byte
	Nonce         []byte
	Ciphertexts   []byte
	Slot          uint64
}

// RawEvent is the append-only audit record written for every decoded
// event before any aggregate write. (signature, event_name) is unique;
// a duplicate insert is a no-op.
type RawEvent struct {
	EventName  string
	Signature  string
	Slot       uint64
	BlockTime  *time.Time
	RawPayload []byte
}
