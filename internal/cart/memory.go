package cart

import (
	"context"
	"sync"

	"github.com/ariefcatur/go-storefront-checkout/internal/pricing"
)

type MemoryStore struct {
	mu    sync.Mutex
	carts map[string]map[string]pricing.LineItem
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{carts: map[string]map[string]pricing.LineItem{}}
}

func (s *MemoryStore) Add(_ context.Context, userID string, line pricing.LineItem) error {
	if line.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.carts[userID]
	if c == nil {
		c = map[string]pricing.LineItem{}
		s.carts[userID] = c
	}
	if cur, ok := c[line.SKUID]; ok {
		cur.Quantity += line.Quantity
		c[line.SKUID] = cur
		return nil
	}
	c[line.SKUID] = line
	return nil
}

func (s *MemoryStore) SetQuantity(_ context.Context, userID, skuID string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.carts[userID][skuID]
	if !ok {
		return ErrLineNotFound
	}
	if qty <= 0 {
		delete(s.carts[userID], skuID)
		return nil
	}
	cur.Quantity = qty
	s.carts[userID][skuID] = cur
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, userID, skuID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts[userID], skuID)
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, userID)
	return nil
}

func (s *MemoryStore) Lines(_ context.Context, userID string) ([]pricing.LineItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]pricing.LineItem, 0, len(s.carts[userID]))
	for _, l := range s.carts[userID] {
		out = append(out, l)
	}
	return out, nil
}
