package address

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MemoryBook struct {
	mu    sync.Mutex
	byID  map[string]Address
	order []string
}

func NewMemoryBook() *MemoryBook {
	return &MemoryBook{byID: map[string]Address{}}
}

func (b *MemoryBook) Add(_ context.Context, a Address) (Address, error) {
	a = a.Normalize()
	if err := a.Validate(); err != nil {
		return Address{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = time.Now().UTC()
	if len(b.userLocked(a.UserID)) == 0 {
		a.IsDefault = true
	}
	if a.IsDefault {
		b.clearDefaultLocked(a.UserID)
	}
	b.byID[a.ID] = a
	b.order = append(b.order, a.ID)
	return a, nil
}

func (b *MemoryBook) Get(_ context.Context, userID, id string) (Address, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, ok := b.byID[id]
	if !ok || a.UserID != userID {
		return Address{}, ErrNotFound
	}
	return a, nil
}

func (b *MemoryBook) List(_ context.Context, userID string) ([]Address, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.userLocked(userID)
	sort.SliceStable(out, func(i, j int) bool { return out[i].IsDefault && !out[j].IsDefault })
	return out, nil
}

func (b *MemoryBook) SetDefault(_ context.Context, userID, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, ok := b.byID[id]
	if !ok || a.UserID != userID {
		return ErrNotFound
	}
	b.clearDefaultLocked(userID)
	a.IsDefault = true
	b.byID[id] = a
	return nil
}

func (b *MemoryBook) Delete(_ context.Context, userID, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, ok := b.byID[id]
	if !ok || a.UserID != userID {
		return ErrNotFound
	}
	delete(b.byID, id)
	for i, x := range b.order {
		if x == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	if a.IsDefault {
		if rest := b.userLocked(userID); len(rest) > 0 {
			next := rest[0]
			next.IsDefault = true
			b.byID[next.ID] = next
		}
	}
	return nil
}

// userLocked returns a user's addresses in insertion order. Caller holds mu.
func (b *MemoryBook) userLocked(userID string) []Address {
	out := []Address{}
	for _, id := range b.order {
		if a := b.byID[id]; a.UserID == userID {
			out = append(out, a)
		}
	}
	return out
}

func (b *MemoryBook) clearDefaultLocked(userID string) {
	for id, a := range b.byID {
		if a.UserID == userID && a.IsDefault {
			a.IsDefault = false
			b.byID[id] = a
		}
	}
}
