package postgres

import (
	"context"
	"fmt"

	"github.com/hiddenbook/otc-watcher/internal/core/domain"
)

// OfferRepo implements storage.OfferRepository using PostgreSQL.
type OfferRepo struct {
	db *DB
}

// NewOfferRepo creates a new PostgreSQL offer repository.
func NewOfferRepo(db *DB) *OfferRepo {
	return &OfferRepo{db: db}
}

// UpsertCreated inserts the offer row, or refreshes it when the event
// is re-delivered from a newer slot.
func (r *OfferRepo) UpsertCreated(ctx context.Context, o *domain.Offer) error {
	query := `
		INSERT INTO offers (
			address, deal_address, offer_index, submitted_at,
			created_signature, encryption_key, nonce, ciphertexts, status, slot
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'open', $9)
		ON CONFLICT (address) DO UPDATE SET
			deal_address = EXCLUDED.deal_address,
			offer_index = EXCLUDED.offer_index,
			submitted_at = EXCLUDED.submitted_at,
			created_signature = EXCLUDED.created_signature,
			encryption_key = EXCLUDED.encryption_key,
			nonce = EXCLUDED.nonce,
			ciphertexts = EXCLUDED.ciphertexts,
			slot = EXCLUDED.slot,
			indexed_at = NOW()
		WHERE offers.slot < EXCLUDED.slot
	`

	_, err := r.db.ExecContext(ctx, query,
		o.Address, o.DealAddress, o.OfferIndex, o.SubmittedAt,
		o.CreatedSignature, o.EncryptionKey, o.Nonce, o.Ciphertexts, o.Slot,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert offer %s: %w", o.Address, err)
	}
	return nil
}

// MarkSettled flips an open offer to settled. Returns false when no
// open row matched (replay or orphan update).
func (r *OfferRepo) MarkSettled(ctx context.Context, s *domain.OfferSettlement) (bool, error) {
	query := `
		UPDATE offers SET
			status = 'settled',
			settled_at = $1,
			settled_signature = $2,
			settlement_encryption_key = $3,
			settlement_nonce = $4,
			settlement_ciphertexts = $5,
			slot = $6,
			indexed_at = NOW()
		WHERE address = $7 AND status = 'open'
	`

	res, err := r.db.ExecContext(ctx, query,
		s.SettledAt, s.Signature, s.EncryptionKey, s.Nonce, s.Ciphertexts, s.Slot, s.Address,
	)
	if err != nil {
		return false, fmt.Errorf("failed to settle offer %s: %w", s.Address, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetOpenForSettledDeals returns open offers whose deal row
// exists and is no longer open. The join stands in for a foreign key:
// an offer ingested before its deal is simply not eligible yet.
func (r *OfferRepo) GetOpenForSettledDeals(ctx context.Context, limit int) ([]domain.CrankableOffer, error) {
	query := `
		SELECT o.address, o.deal_address
		FROM offers o
		JOIN deals d ON d.address = o.deal_address
		WHERE o.status = 'open' AND d.status <> 'open'
		LIMIT $1
	`

	var rows []struct {
		Address     string `db:"address"`
		DealAddress string `db:"deal_address"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to get open offers for settled deals: %w", err)
	}

	offers := make([]domain.CrankableOffer, len(rows))
	for i, row := range rows {
		offers[i] = domain.CrankableOffer{Address: row.Address, DealAddress: row.DealAddress}
	}
	return offers, nil
}
