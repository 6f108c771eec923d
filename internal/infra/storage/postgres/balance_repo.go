package postgres

import (
	"context"
	"fmt"

	"github.com/hiddenbook/otc-watcher/internal/core/domain"
)

// BalanceRepo implements storage.BalanceRepository using PostgreSQL.
type BalanceRepo struct {
	db *DB
}

// NewBalanceRepo creates a new PostgreSQL balance repository.
func NewBalanceRepo(db *DB) *BalanceRepo {
	return &BalanceRepo{db: db}
}

// Upsert replaces the mirrored balance ciphertexts when the incoming
// slot is newer. Balance accounts are mutable on-chain, so the latest
// observed state wins.
func (r *BalanceRepo) Upsert(ctx context.Context, b *domain.Balance) error {
	query := `
		INSERT INTO balances (
			address, controller, mint, encryption_key, nonce, ciphertexts, slot
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (address) DO UPDATE SET
			encryption_key = EXCLUDED.encryption_key,
			nonce = EXCLUDED.nonce,
			ciphertexts = EXCLUDED.ciphertexts,
			slot = EXCLUDED.slot,
			updated_at = NOW()
		WHERE balances.slot < EXCLUDED.slot
	`

	_, err := r.db.ExecContext(ctx, query,
		b.Address, b.Controller, b.Mint, b.EncryptionKey, b.Nonce, b.Ciphertexts, b.Slot,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert balance %s: %w", b.Address, err)
	}
	return nil
}
