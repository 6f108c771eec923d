package ledger

import (
	"bytes"
	"testing"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

func testKey(b byte) solana.PublicKey {
	var raw [32]byte
	for i := range raw {
		raw[i] = b
	}
	return solana.PublicKeyFromBytes(raw[:])
}

func TestBalancePDA(t *testing.T) {
	program := testKey(1)
	controller := testKey(2)
	mint := testKey(3)

	a, err := BalancePDA(program, controller, mint)
	if err != nil {
		t.Fatalf("BalancePDA failed: %v", err)
	}
	b, err := BalancePDA(program, controller, mint)
	if err != nil {
		t.Fatalf("BalancePDA failed: %v", err)
	}
	if a != b {
		t.Error("derivation is not deterministic")
	}

	other, err := BalancePDA(program, controller, testKey(4))
	if err != nil {
		t.Fatalf("BalancePDA failed: %v", err)
	}
	if other == a {
		t.Error("different mints derived the same address")
	}
}

func TestCompDefOffset(t *testing.T) {
	// sha256(name)[:4], little-endian.
	if got := CompDefOffset(CircuitCrankDeal); got != 2746891158 {
		t.Errorf("CompDefOffset(%q) = %d, want 2746891158", CircuitCrankDeal, got)
	}
	if got := CompDefOffset(CircuitCrankOffer); got != 4286213955 {
		t.Errorf("CompDefOffset(%q) = %d, want 4286213955", CircuitCrankOffer, got)
	}
}

func TestComputationAccountVariesByOffset(t *testing.T) {
	mpc := testKey(9)
	a, err := ComputationAccount(mpc, 7, 100)
	if err != nil {
		t.Fatalf("ComputationAccount failed: %v", err)
	}
	b, err := ComputationAccount(mpc, 7, 101)
	if err != nil {
		t.Fatalf("ComputationAccount failed: %v", err)
	}
	if a == b {
		t.Error("different computation offsets derived the same address")
	}
}

func TestQueueAccountsAreDistinct(t *testing.T) {
	mpc := testKey(9)
	cluster, err := ClusterAccount(mpc, 7)
	if err != nil {
		t.Fatalf("ClusterAccount failed: %v", err)
	}
	mempool, err := MempoolAccount(mpc, 7)
	if err != nil {
		t.Fatalf("MempoolAccount failed: %v", err)
	}
	pool, err := ExecutingPoolAccount(mpc, 7)
	if err != nil {
		t.Fatalf("ExecutingPoolAccount failed: %v", err)
	}
	if cluster == mempool || cluster == pool || mempool == pool {
		t.Error("queue accounts collide")
	}
}

func TestDecodeDealAccount(t *testing.T) {
	want := DealAccount{
		CreateKey:        testKey(1),
		Controller:       testKey(2),
		EncryptionPubkey: [32]byte{5},
		BaseMint:         testKey(3),
		QuoteMint:        testKey(4),
		CreatedAt:        1700000000,
		ExpiresAt:        1700000100,
		Status:           1,
		AllowPartial:     true,
		NumOffers:        3,
		Bump:             254,
		Nonce:            [16]byte{8},
		Ciphertexts:      [3][32]byte{{1}, {2}, {3}},
	}

	var buf bytes.Buffer
	buf.Write(make([]byte, 8)) // account discriminator
	if err := bin.NewBorshEncoder(&buf).Encode(want); err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := decodeDealAccount(buf.Bytes())
	if err != nil {
		t.Fatalf("decodeDealAccount failed: %v", err)
	}
	if *got != want {
		t.Errorf("decoded = %+v, want %+v", *got, want)
	}
}

func TestDecodeOfferAccount(t *testing.T) {
	want := OfferAccount{
		CreateKey:        testKey(1),
		Controller:       testKey(2),
		EncryptionPubkey: [32]byte{5},
		Deal:             testKey(3),
		OfferIndex:       2,
		SubmittedAt:      1700000050,
		Status:           0,
		Bump:             255,
		Nonce:            [16]byte{8},
		Ciphertexts:      [2][32]byte{{1}, {2}},
	}

	var buf bytes.Buffer
	buf.Write(make([]byte, 8))
	if err := bin.NewBorshEncoder(&buf).Encode(want); err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := decodeOfferAccount(buf.Bytes())
	if err != nil {
		t.Fatalf("decodeOfferAccount failed: %v", err)
	}
	if *got != want {
		t.Errorf("decoded = %+v, want %+v", *got, want)
	}
}

func TestNewComputationOffset(t *testing.T) {
	a, err := NewComputationOffset()
	if err != nil {
		t.Fatalf("NewComputationOffset failed: %v", err)
	}
	b, err := NewComputationOffset()
	if err != nil {
		t.Fatalf("NewComputationOffset failed: %v", err)
	}
	if a == b {
		t.Error("consecutive offsets collided")
	}
}
