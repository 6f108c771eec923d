package memory

import (
	"context"
	"testing"
	"time"

	"github.com/hiddenbook/otc-watcher/internal/core/domain"
)

func TestDealRepo_SlotGuard(t *testing.T) {
	store := NewMemoryStorage()
	repo := NewDealRepo(store)
	ctx := context.Background()

	if err := repo.UpsertCreated(ctx, &domain.Deal{Address: "deal-1", CreatedSignature: "sig-a", Slot: 10}); err != nil {
		t.Fatalf("UpsertCreated failed: %v", err)
	}
	// Older-slot replay is a no-op.
	if err := repo.UpsertCreated(ctx, &domain.Deal{Address: "deal-1", CreatedSignature: "sig-old", Slot: 5}); err != nil {
		t.Fatalf("UpsertCreated failed: %v", err)
	}
	if got := store.Deal("deal-1"); got.CreatedSignature != "sig-a" || got.Slot != 10 {
		t.Errorf("older-slot replay mutated the row: %+v", got)
	}

	// Newer slot refreshes.
	if err := repo.UpsertCreated(ctx, &domain.Deal{Address: "deal-1", CreatedSignature: "sig-b", Slot: 20}); err != nil {
		t.Fatalf("UpsertCreated failed: %v", err)
	}
	if got := store.Deal("deal-1"); got.CreatedSignature != "sig-b" || got.Slot != 20 {
		t.Errorf("newer-slot replay did not refresh the row: %+v", got)
	}
}

// A newer-slot replay of the create event must refresh the row without
// reopening a settled deal, matching the SQL upsert which never writes
// the status column on conflict.
func TestDealRepo_ReplayPreservesTerminalStatus(t *testing.T) {
	store := NewMemoryStorage()
	repo := NewDealRepo(store)
	ctx := context.Background()

	if err := repo.UpsertCreated(ctx, &domain.Deal{Address: "deal-1", Slot: 10}); err != nil {
		t.Fatalf("UpsertCreated failed: %v", err)
	}
	updated, err := repo.MarkSettled(ctx, &domain.DealSettlement{Address: "deal-1", Status: domain.DealExecuted, Slot: 20})
	if err != nil || !updated {
		t.Fatalf("MarkSettled = (%v, %v), want (true, nil)", updated, err)
	}

	if err := repo.UpsertCreated(ctx, &domain.Deal{Address: "deal-1", CreatedSignature: "sig-replay", Slot: 30}); err != nil {
		t.Fatalf("UpsertCreated failed: %v", err)
	}

	got := store.Deal("deal-1")
	if got.Status != domain.DealExecuted {
		t.Errorf("status = %q, want %q (replay must not reopen)", got.Status, domain.DealExecuted)
	}
	if got.CreatedSignature != "sig-replay" {
		t.Errorf("newer-slot replay did not refresh the row: %+v", got)
	}
}

func TestDealRepo_MarkSettledIsOneShot(t *testing.T) {
	store := NewMemoryStorage()
	repo := NewDealRepo(store)
	ctx := context.Background()

	if err := repo.UpsertCreated(ctx, &domain.Deal{Address: "deal-1", Slot: 10}); err != nil {
		t.Fatalf("UpsertCreated failed: %v", err)
	}

	updated, err := repo.MarkSettled(ctx, &domain.DealSettlement{Address: "deal-1", Status: domain.DealExpired, Slot: 20})
	if err != nil || !updated {
		t.Fatalf("first MarkSettled = (%v, %v), want (true, nil)", updated, err)
	}
	updated, err = repo.MarkSettled(ctx, &domain.DealSettlement{Address: "deal-1", Status: domain.DealExecuted, Slot: 21})
	if err != nil {
		t.Fatalf("second MarkSettled failed: %v", err)
	}
	if updated {
		t.Error("second MarkSettled reported an update")
	}
	if got := store.Deal("deal-1"); got.Status != domain.DealExpired {
		t.Errorf("status = %q, want %q", got.Status, domain.DealExpired)
	}

	// Settling an unknown address is the orphan-update signal.
	updated, err = repo.MarkSettled(ctx, &domain.DealSettlement{Address: "deal-missing", Status: domain.DealExecuted, Slot: 22})
	if err != nil || updated {
		t.Errorf("orphan MarkSettled = (%v, %v), want (false, nil)", updated, err)
	}
}

func TestOfferRepo_ReplayPreservesSettledStatus(t *testing.T) {
	store := NewMemoryStorage()
	repo := NewOfferRepo(store)
	ctx := context.Background()

	if err := repo.UpsertCreated(ctx, &domain.Offer{Address: "offer-1", DealAddress: "deal-1", Slot: 10}); err != nil {
		t.Fatalf("UpsertCreated failed: %v", err)
	}
	updated, err := repo.MarkSettled(ctx, &domain.OfferSettlement{Address: "offer-1", Slot: 20})
	if err != nil || !updated {
		t.Fatalf("MarkSettled = (%v, %v), want (true, nil)", updated, err)
	}

	if err := repo.UpsertCreated(ctx, &domain.Offer{Address: "offer-1", DealAddress: "deal-1", CreatedSignature: "sig-replay", Slot: 30}); err != nil {
		t.Fatalf("UpsertCreated failed: %v", err)
	}

	got := store.Offer("offer-1")
	if got.Status != domain.OfferSettledStatus {
		t.Errorf("status = %q, want %q (replay must not reopen)", got.Status, domain.OfferSettledStatus)
	}
	if got.CreatedSignature != "sig-replay" {
		t.Errorf("newer-slot replay did not refresh the row: %+v", got)
	}
}

func TestBalanceRepo_SlotGuard(t *testing.T) {
	store := NewMemoryStorage()
	repo := NewBalanceRepo(store)
	ctx := context.Background()

	if err := repo.Upsert(ctx, &domain.Balance{Address: "bal-1", Slot: 10, Nonce: []byte{1}}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := repo.Upsert(ctx, &domain.Balance{Address: "bal-1", Slot: 5, Nonce: []byte{2}}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := repo.Upsert(ctx, &domain.Balance{Address: "bal-1", Slot: 20, Nonce: []byte{3}}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	store.mu.Lock()
	got := store.balances["bal-1"]
	store.mu.Unlock()
	if got.Slot != 20 || got.Nonce[0] != 3 {
		t.Errorf("balance = %+v, want slot 20 from the newest write", got)
	}
}

func TestDealRepo_GetExpiredOpen(t *testing.T) {
	store := NewMemoryStorage()
	repo := NewDealRepo(store)
	ctx := context.Background()
	now := time.Now().UTC()

	seed := []struct {
		address   string
		expiresAt time.Time
	}{
		{"deal-expired", now.Add(-time.Hour)},
		{"deal-live", now.Add(time.Hour)},
	}
	for _, s := range seed {
		if err := repo.UpsertCreated(ctx, &domain.Deal{Address: s.address, ExpiresAt: s.expiresAt, Slot: 1}); err != nil {
			t.Fatalf("seed %s: %v", s.address, err)
		}
	}

	got, err := repo.GetExpiredOpen(ctx, now, 10)
	if err != nil {
		t.Fatalf("GetExpiredOpen failed: %v", err)
	}
	if len(got) != 1 || got[0].Address != "deal-expired" {
		t.Errorf("candidates = %v, want [deal-expired]", got)
	}
}
