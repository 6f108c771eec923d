// Package memory provides an in-memory implementation of the storage
// repositories. It backs tests and lets the handler run without a
// database; semantics mirror the PostgreSQL layer, including slot
// guards and monotonic status transitions.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/hiddenbook/otc-watcher/internal/core/domain"
)

// MemoryStorage holds all aggregates behind one mutex.
type MemoryStorage struct {
	mu        sync.Mutex
	rawEvents map[string]*domain.RawEvent // key: signature + "|" + event_name
	deals     map[string]*domain.Deal
	offers    map[string]*domain.Offer
	balances  map[string]*domain.Balance
	settled   map[string]*domain.DealSettlement
	offerDone map[string]*domain.OfferSettlement
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		rawEvents: make(map[string]*domain.RawEvent),
		deals:     make(map[string]*domain.Deal),
		offers:    make(map[string]*domain.Offer),
		balances:  make(map[string]*domain.Balance),
		settled:   make(map[string]*domain.DealSettlement),
		offerDone: make(map[string]*domain.OfferSettlement),
	}
}

// RawEventCount returns the number of stored raw events for a
// signature. Test helper.
func (s *MemoryStorage) RawEventCount(signature string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ev := range s.rawEvents {
		if ev.Signature == signature {
			n++
		}
	}
	return n
}

// Deal returns a copy of the stored deal row, or nil.
func (s *MemoryStorage) Deal(address string) *domain.Deal {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deals[address]
	if !ok {
		return nil
	}
	cp := *d
	return &cp
}

// Offer returns a copy of the stored offer row, or nil.
func (s *MemoryStorage) Offer(address string) *domain.Offer {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.offers[address]
	if !ok {
		return nil
	}
	cp := *o
	return &cp
}

// RawEventRepo implements storage.RawEventRepository.
type RawEventRepo struct{ store *MemoryStorage }

func NewRawEventRepo(store *MemoryStorage) *RawEventRepo { return &RawEventRepo{store: store} }

func (r *RawEventRepo) Insert(ctx context.Context, ev *domain.RawEvent) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	key := ev.Signature + "|" + ev.EventName
	if _, exists := r.store.rawEvents[key]; exists {
		return nil // duplicate write is a no-op
	}
	cp := *ev
	r.store.rawEvents[key] = &cp
	return nil
}

// DealRepo implements storage.DealRepository.
type DealRepo struct{ store *MemoryStorage }

func NewDealRepo(store *MemoryStorage) *DealRepo { return &DealRepo{store: store} }

func (r *DealRepo) UpsertCreated(ctx context.Context, d *domain.Deal) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *d
	cp.Status = domain.DealOpen
	if existing, ok := r.store.deals[d.Address]; ok {
		if existing.Slot >= d.Slot {
			return nil
		}
		// A newer-slot replay refreshes the row but never touches the
		// status column.
		cp.Status = existing.Status
	}
	r.store.deals[d.Address] = &cp
	return nil
}

func (r *DealRepo) MarkSettled(ctx context.Context, s *domain.DealSettlement) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	d, ok := r.store.deals[s.Address]
	if !ok || d.Status != domain.DealOpen {
		return false, nil
	}
	d.Status = s.Status
	d.Slot = s.Slot
	r.store.settled[s.Address] = s
	return true, nil
}

func (r *DealRepo) GetExpiredOpen(ctx context.Context, now time.Time, limit int) ([]domain.CrankableDeal, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []domain.CrankableDeal
	for _, d := range r.store.deals {
		if len(out) >= limit {
			break
		}
		if d.Status == domain.DealOpen && d.ExpiresAt.Before(now) {
			out = append(out, domain.CrankableDeal{Address: d.Address})
		}
	}
	return out, nil
}

// OfferRepo implements storage.OfferRepository.
type OfferRepo struct{ store *MemoryStorage }

func NewOfferRepo(store *MemoryStorage) *OfferRepo { return &OfferRepo{store: store} }

func (r *OfferRepo) UpsertCreated(ctx context.Context, o *domain.Offer) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *o
	cp.Status = domain.OfferOpen
	if existing, ok := r.store.offers[o.Address]; ok {
		if existing.Slot >= o.Slot {
			return nil
		}
		cp.Status = existing.Status
	}
	r.store.offers[o.Address] = &cp
	return nil
}

func (r *OfferRepo) MarkSettled(ctx context.Context, s *domain.OfferSettlement) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	o, ok := r.store.offers[s.Address]
	if !ok || o.Status != domain.OfferOpen {
		return false, nil
	}
	o.Status = domain.OfferSettledStatus
	o.Slot = s.Slot
	r.store.offerDone[s.Address] = s
	return true, nil
}

func (r *OfferRepo) GetOpenForSettledDeals(ctx context.Context, limit int) ([]domain.CrankableOffer, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []domain.CrankableOffer
	for _, o := range r.store.offers {
		if len(out) >= limit {
			break
		}
		if o.Status != domain.OfferOpen {
			continue
		}
		deal, ok := r.store.deals[o.DealAddress]
		if !ok || deal.Status == domain.DealOpen {
			continue
		}
		out = append(out, domain.CrankableOffer{Address: o.Address, DealAddress: o.DealAddress})
	}
	return out, nil
}

// BalanceRepo implements storage.BalanceRepository.
type BalanceRepo struct{ store *MemoryStorage }

func NewBalanceRepo(store *MemoryStorage) *BalanceRepo { return &BalanceRepo{store: store} }

func (r *BalanceRepo) Upsert(ctx context.Context, b *domain.Balance) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if existing, ok := r.store.balances[b.Address]; ok && existing.Slot >= b.Slot {
		return nil
	}
	cp := *b
	r.store.balances[b.Address] = &cp
	return nil
}
