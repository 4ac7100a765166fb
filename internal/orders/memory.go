package orders

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MemoryStore struct {
	Now func() time.Time

	mu        sync.Mutex
	byID      map[string]Order
	byAttempt map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		Now:       time.Now,
		byID:      map[string]Order{},
		byAttempt: map[string]string{},
	}
}

func (s *MemoryStore) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func (s *MemoryStore) Create(_ context.Context, o Order) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byAttempt[o.AttemptID]; ok {
		return cloneOrder(s.byID[id]), ErrAlreadyExists
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	now := s.now()
	o.Status = StatusPending
	o.CreatedAt, o.UpdatedAt = now, now
	o = cloneOrder(o)
	s.byID[o.ID] = o
	s.byAttempt[o.AttemptID] = o.ID
	return cloneOrder(o), nil
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.byID[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return cloneOrder(o), nil
}

func (s *MemoryStore) GetByAttempt(_ context.Context, attemptID string) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byAttempt[attemptID]
	if !ok {
		return Order{}, ErrNotFound
	}
	return cloneOrder(s.byID[id]), nil
}

func (s *MemoryStore) ListByUser(_ context.Context, userID string) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Order{}
	for _, o := range s.byID {
		if o.UserID == userID {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Transition(_ context.Context, id string, to Status, allowedFrom ...Status) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.byID[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	if err := checkTransition(o.Status, to, allowedFrom); err != nil {
		return Order{}, err
	}
	o.Status = to
	o.UpdatedAt = s.now()
	s.byID[id] = o
	return cloneOrder(o), nil
}

func cloneOrder(o Order) Order {
	o.Items = append([]Item(nil), o.Items...)
	return o
}
