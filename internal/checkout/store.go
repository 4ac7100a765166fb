package checkout

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ariefcatur/go-storefront-checkout/internal/inventory"
)

// AttemptStore keeps attempt state and the per-attempt guard that
// serializes step and placement calls.
type AttemptStore interface {
	// Create stores a unless an attempt with the same id exists, in which
	// case the stored one is returned with created=false.
	Create(ctx context.Context, a Attempt) (stored Attempt, created bool, err error)
	Get(ctx context.Context, id string) (Attempt, error)
	Save(ctx context.Context, a Attempt) error
	// Lock takes the guard for ttl. ok is false while someone else holds it.
	Lock(ctx context.Context, id string, ttl time.Duration) (unlock func(), ok bool, err error)
}

type MemoryAttempts struct {
	Now func() time.Time

	mu       sync.Mutex
	attempts map[string]Attempt
	locks    map[string]memLock
}

type memLock struct {
	token   string
	expires time.Time
}

func NewMemoryAttempts() *MemoryAttempts {
	return &MemoryAttempts{
		Now:      time.Now,
		attempts: map[string]Attempt{},
		locks:    map[string]memLock{},
	}
}

func (s *MemoryAttempts) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *MemoryAttempts) Create(_ context.Context, a Attempt) (Attempt, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.attempts[a.ID]; ok {
		return cloneAttempt(cur), false, nil
	}
	s.attempts[a.ID] = cloneAttempt(a)
	return a, true, nil
}

func (s *MemoryAttempts) Get(_ context.Context, id string) (Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	return cloneAttempt(a), nil
}

func (s *MemoryAttempts) Save(_ context.Context, a Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[a.ID] = cloneAttempt(a)
	return nil
}

func (s *MemoryAttempts) Lock(_ context.Context, id string, ttl time.Duration) (func(), bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if l, held := s.locks[id]; held && now.Before(l.expires) {
		return nil, false, nil
	}
	token := uuid.NewString()
	s.locks[id] = memLock{token: token, expires: now.Add(ttl)}
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.locks[id].token == token {
			delete(s.locks, id)
		}
	}, true, nil
}

func cloneAttempt(a Attempt) Attempt {
	a.Reservations = append([]string(nil), a.Reservations...)
	a.Committed = append([]inventory.StockDelta(nil), a.Committed...)
	if a.Totals != nil {
		t := *a.Totals
		a.Totals = &t
	}
	if a.Failure != nil {
		f := *a.Failure
		a.Failure = &f
	}
	return a
}
