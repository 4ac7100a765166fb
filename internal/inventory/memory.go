package inventory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps the ledger in process. One mutex serializes every
// mutation, which makes reserve/commit/release linearizable.
type MemoryStore struct {
	TTL time.Duration
	Now func() time.Time

	mu           sync.Mutex
	skus         map[string]SKU
	reservations map[string]Reservation
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		TTL:          ttl,
		Now:          time.Now,
		skus:         map[string]SKU{},
		reservations: map[string]Reservation{},
	}
}

func (s *MemoryStore) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *MemoryStore) Get(_ context.Context, skuID string) (SKU, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sku, ok := s.skus[skuID]
	if !ok {
		return SKU{}, ErrSKUNotFound
	}
	return sku, nil
}

func (s *MemoryStore) Upsert(_ context.Context, sku SKU) error {
	if sku.StockQuantity < 0 {
		return &NegativeStockError{SKUID: sku.ID, Delta: sku.StockQuantity}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sku.UpdatedAt = s.now()
	s.skus[sku.ID] = sku
	return nil
}

// reservedLocked sums unexpired holds for a SKU. Caller holds mu.
func (s *MemoryStore) reservedLocked(skuID string, now time.Time) int {
	n := 0
	for _, r := range s.reservations {
		if r.SKUID == skuID && !r.Expired(now) {
			n += r.Quantity
		}
	}
	return n
}

func (s *MemoryStore) Reserve(_ context.Context, skuID string, qty int, attemptID string) (Reservation, error) {
	if qty <= 0 {
		return Reservation{}, ErrInvalidQuantity
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sku, ok := s.skus[skuID]
	if !ok {
		return Reservation{}, ErrSKUNotFound
	}
	now := s.now()
	available := sku.StockQuantity - s.reservedLocked(skuID, now)
	if available < qty {
		return Reservation{}, &OutOfStockError{SKUID: skuID, Requested: qty, Available: max(available, 0)}
	}
	r := Reservation{
		ID:        uuid.NewString(),
		SKUID:     skuID,
		Quantity:  qty,
		AttemptID: attemptID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.TTL),
	}
	s.reservations[r.ID] = r
	return r, nil
}

func (s *MemoryStore) Commit(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	need := map[string]int{}
	seen := map[string]bool{}
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		r, ok := s.reservations[id]
		if !ok || r.Expired(now) {
			return ErrReservationExpired
		}
		need[r.SKUID] += r.Quantity
	}
	// stock may have been lowered by an admin since the reserve
	for skuID, qty := range need {
		sku, ok := s.skus[skuID]
		if !ok {
			return ErrSKUNotFound
		}
		if sku.StockQuantity < qty {
			return &OutOfStockError{SKUID: skuID, Requested: qty, Available: sku.StockQuantity}
		}
	}

	for skuID, qty := range need {
		sku := s.skus[skuID]
		sku.StockQuantity -= qty
		sku.UpdatedAt = now
		s.skus[skuID] = sku
	}
	for _, id := range ids {
		delete(s.reservations, id)
	}
	return nil
}

func (s *MemoryStore) Release(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.reservations, id)
	}
	return nil
}

func (s *MemoryStore) ReleaseAttempt(_ context.Context, attemptID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.reservations {
		if r.AttemptID == attemptID {
			delete(s.reservations, id)
		}
	}
	return nil
}

func (s *MemoryStore) ReleaseExpired(_ context.Context, now time.Time) ([]Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Reservation
	for id, r := range s.reservations {
		if r.Expired(now) {
			out = append(out, r)
			delete(s.reservations, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Adjust(_ context.Context, skuID string, qty int, mode AdjustMode) (SKU, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sku, ok := s.skus[skuID]
	if !ok {
		return SKU{}, ErrSKUNotFound
	}
	next, err := applyAdjust(skuID, sku.StockQuantity, qty, mode)
	if err != nil {
		return SKU{}, err
	}
	sku.StockQuantity = next
	sku.UpdatedAt = s.now()
	s.skus[skuID] = sku
	return sku, nil
}

func (s *MemoryStore) Restock(_ context.Context, items []StockDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		if it.Quantity <= 0 {
			return ErrInvalidQuantity
		}
		if _, ok := s.skus[it.SKUID]; !ok {
			return ErrSKUNotFound
		}
	}
	now := s.now()
	for _, it := range items {
		sku := s.skus[it.SKUID]
		sku.StockQuantity += it.Quantity
		sku.UpdatedAt = now
		s.skus[it.SKUID] = sku
	}
	return nil
}

func (s *MemoryStore) LowStock(_ context.Context, threshold int) ([]SKU, error) {
	return s.filter(func(sku SKU) bool { return sku.IsLowStock(threshold) }), nil
}

func (s *MemoryStore) OutOfStock(_ context.Context) ([]SKU, error) {
	return s.filter(func(sku SKU) bool { return sku.StockQuantity == 0 }), nil
}

func (s *MemoryStore) filter(keep func(SKU) bool) []SKU {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []SKU{}
	for _, sku := range s.skus {
		if keep(sku) {
			out = append(out, sku)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Reservations returns the live holds of an attempt.
func (s *MemoryStore) Reservations(attemptID string) []Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Reservation
	for _, r := range s.reservations {
		if r.AttemptID == attemptID {
			out = append(out, r)
		}
	}
	return out
}
