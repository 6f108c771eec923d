package ledger

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// DealAccount is the plaintext prefix of an on-chain deal account,
// borsh-decoded after the 8-byte discriminator. Only the fields the
// cranker needs to derive settlement accounts are consumed; the
// encrypted tail is carried opaquely.
type DealAccount struct {
	CreateKey        solana.PublicKey
	Controller       solana.PublicKey
	EncryptionPubkey [32]byte
	BaseMint         solana.PublicKey
	QuoteMint        solana.PublicKey
	CreatedAt        int64
	ExpiresAt        int64
	Status           uint8
	AllowPartial     bool
	NumOffers        uint32
	Bump             uint8
	Nonce            [16]byte
	Ciphertexts      [3][32]byte
}

// OfferAccount is the plaintext prefix of an on-chain offer account.
type OfferAccount struct {
	CreateKey        solana.PublicKey
	Controller       solana.PublicKey
	EncryptionPubkey [32]byte
	Deal             solana.PublicKey
	OfferIndex       uint32
	SubmittedAt      int64
	Status           uint8
	Bump             uint8
	Nonce            [16]byte
	Ciphertexts      [2][32]byte
}

func decodeDealAccount(data []byte) (*DealAccount, error) {
	var acc DealAccount
	if err := bin.NewBorshDecoder(data[8:]).Decode(&acc); err != nil {
		return nil, err
	}
	return &acc, nil
}

func decodeOfferAccount(data []byte) (*OfferAccount, error) {
	var acc OfferAccount
	if err := bin.NewBorshDecoder(data[8:]).Decode(&acc); err != nil {
		return nil, err
	}
	return &acc, nil
}

// BalancePDA derives the confidential balance account for a
// controller/mint pair: ["balance", controller, mint].
func BalancePDA(program, controller, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("balance"), controller.Bytes(), mint.Bytes()},
		program,
	)
	return addr, err
}

// The derivations below mirror the MPC network's client SDK: all
// computation-queue accounts live on the network program and are
// addressed by the cluster offset and, for computations, a
// caller-chosen offset.

func u32le(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func u64le(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

// ClusterAccount derives the cluster account for a cluster offset.
func ClusterAccount(mpcProgram solana.PublicKey, clusterOffset uint32) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("Cluster"), u32le(clusterOffset)},
		mpcProgram,
	)
	return addr, err
}

// MempoolAccount derives the mempool account for a cluster offset.
func MempoolAccount(mpcProgram solana.PublicKey, clusterOffset uint32) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("Mempool"), u32le(clusterOffset)},
		mpcProgram,
	)
	return addr, err
}

// ExecutingPoolAccount derives the executing pool for a cluster offset.
func ExecutingPoolAccount(mpcProgram solana.PublicKey, clusterOffset uint32) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("ExecutingPool"), u32le(clusterOffset)},
		mpcProgram,
	)
	return addr, err
}

// MXEAccount derives the execution-environment account bound to the
// OTC program.
func MXEAccount(mpcProgram, program solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("MXEAccount"), program.Bytes()},
		mpcProgram,
	)
	return addr, err
}

// ComputationAccount derives the per-computation queue account for a
// caller-chosen computation offset.
func ComputationAccount(mpcProgram solana.PublicKey, clusterOffset uint32, computationOffset uint64) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("ComputationAccount"), u32le(clusterOffset), u64le(computationOffset)},
		mpcProgram,
	)
	return addr, err
}

// CompDefOffset returns the 4-byte definition offset for a named
// circuit: sha256(name)[:4] read little-endian.
func CompDefOffset(name string) uint32 {
	sum := sha256.Sum256([]byte(name))
	return binary.LittleEndian.Uint32(sum[:4])
}

// CompDefAccount derives the computation definition account for a
// named circuit of the OTC program.
func CompDefAccount(mpcProgram, program solana.PublicKey, name string) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("ComputationDefinitionAccount"), program.Bytes(), u32le(CompDefOffset(name))},
		mpcProgram,
	)
	return addr, err
}

// NewComputationOffset draws a random 8-byte computation offset.
func NewComputationOffset() (uint64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

// NewBlobNonce draws a random 16-byte nonce for output encryption.
func NewBlobNonce() (bin.Uint128, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return bin.Uint128{}, err
	}
	return bin.Uint128{
		Lo: binary.LittleEndian.Uint64(b[:8]),
		Hi: binary.LittleEndian.Uint64(b[8:]),
	}, nil
}
