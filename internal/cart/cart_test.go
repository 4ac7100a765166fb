package cart

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-storefront-checkout/internal/inventory"
	"github.com/ariefcatur/go-storefront-checkout/internal/pricing"
)

func stores(t *testing.T) map[string]Store {
	mr := miniredis.RunT(t)
	return map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  &RedisStore{Redis: redis.NewClient(&redis.Options{Addr: mr.Addr()})},
	}
}

func newService(t *testing.T, store Store) (*Service, *inventory.MemoryStore) {
	t.Helper()
	inv := inventory.NewMemoryStore(time.Minute)
	discounted := int64(90)
	require.NoError(t, inv.Upsert(context.Background(), inventory.SKU{ID: "A", UnitPrice: 100, StockQuantity: 10}))
	require.NoError(t, inv.Upsert(context.Background(), inventory.SKU{ID: "B", UnitPrice: 100, DiscountedPrice: &discounted, StockQuantity: 10}))
	return &Service{Store: store, Catalog: inv}, inv
}

func TestServiceKeepsPriceAtAdd(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			svc, inv := newService(t, store)

			_, err := svc.Add(ctx, "u1", "A", 1)
			require.NoError(t, err)

			// price changes after the add do not touch the line
			require.NoError(t, inv.Upsert(ctx, inventory.SKU{ID: "A", UnitPrice: 150, StockQuantity: 10}))
			lines, err := svc.Add(ctx, "u1", "A", 2)
			require.NoError(t, err)
			assert.Equal(t, []pricing.LineItem{{SKUID: "A", Quantity: 3, UnitPriceAtAdd: 100}}, lines)

			lines, err = svc.Add(ctx, "u1", "B", 1)
			require.NoError(t, err)
			assert.Equal(t, []pricing.LineItem{
				{SKUID: "A", Quantity: 3, UnitPriceAtAdd: 100},
				{SKUID: "B", Quantity: 1, UnitPriceAtAdd: 90},
			}, lines)
		})
	}
}

func TestStoreEditing(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			svc, _ := newService(t, store)

			_, err := svc.Add(ctx, "u1", "A", 2)
			require.NoError(t, err)
			_, err = svc.Add(ctx, "u1", "B", 1)
			require.NoError(t, err)

			require.ErrorIs(t, store.SetQuantity(ctx, "u1", "Z", 1), ErrLineNotFound)
			require.NoError(t, store.SetQuantity(ctx, "u1", "A", 5))
			require.NoError(t, store.SetQuantity(ctx, "u1", "B", 0))

			lines, err := svc.Snapshot(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, []pricing.LineItem{{SKUID: "A", Quantity: 5, UnitPriceAtAdd: 100}}, lines)

			require.NoError(t, store.Remove(ctx, "u1", "A"))
			lines, err = svc.Snapshot(ctx, "u1")
			require.NoError(t, err)
			assert.Empty(t, lines)

			_, err = svc.Add(ctx, "u1", "A", 1)
			require.NoError(t, err)
			require.NoError(t, store.Clear(ctx, "u1"))
			lines, err = svc.Snapshot(ctx, "u1")
			require.NoError(t, err)
			assert.Empty(t, lines)
		})
	}
}

func TestServiceRejects(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, NewMemoryStore())

	_, err := svc.Add(ctx, "u1", "A", 0)
	require.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = svc.Add(ctx, "u1", "nope", 1)
	require.ErrorIs(t, err, inventory.ErrSKUNotFound)
}

func TestConcurrentAddsAreNotLost(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var wg sync.WaitGroup
			for i := 0; i < 4; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					assert.NoError(t, store.Add(ctx, "u1", pricing.LineItem{SKUID: "A", Quantity: 1, UnitPriceAtAdd: 100}))
				}()
			}
			wg.Wait()

			lines, err := store.Lines(ctx, "u1")
			require.NoError(t, err)
			require.Len(t, lines, 1)
			assert.Equal(t, 4, lines[0].Quantity)
		})
	}
}
