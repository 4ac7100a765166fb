package cart

import (
	"context"
	"errors"
	"sort"

	"github.com/ariefcatur/go-storefront-checkout/internal/inventory"
	"github.com/ariefcatur/go-storefront-checkout/internal/pricing"
)

var (
	ErrLineNotFound    = errors.New("cart line not found")
	ErrInvalidQuantity = errors.New("quantity must be positive")
)

// Store keeps live carts keyed by user. A line keeps the price it was
// added at; adding the same SKU again only grows the quantity.
type Store interface {
	Add(ctx context.Context, userID string, line pricing.LineItem) error
	SetQuantity(ctx context.Context, userID, skuID string, qty int) error
	Remove(ctx context.Context, userID, skuID string) error
	Clear(ctx context.Context, userID string) error
	Lines(ctx context.Context, userID string) ([]pricing.LineItem, error)
}

type Catalog interface {
	Get(ctx context.Context, skuID string) (inventory.SKU, error)
}

type Service struct {
	Store   Store
	Catalog Catalog
}

// Add prices the SKU as of now and puts it in the cart.
func (s *Service) Add(ctx context.Context, userID, skuID string, qty int) ([]pricing.LineItem, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	sku, err := s.Catalog.Get(ctx, skuID)
	if err != nil {
		return nil, err
	}
	line := pricing.LineItem{SKUID: sku.ID, Quantity: qty, UnitPriceAtAdd: sku.Price()}
	if err := s.Store.Add(ctx, userID, line); err != nil {
		return nil, err
	}
	return s.Snapshot(ctx, userID)
}

// Snapshot freezes the cart for checkout, ordered by SKU id.
func (s *Service) Snapshot(ctx context.Context, userID string) ([]pricing.LineItem, error) {
	lines, err := s.Store.Lines(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := append([]pricing.LineItem{}, lines...)
	sort.Slice(out, func(i, j int) bool { return out[i].SKUID < out[j].SKUID })
	return out, nil
}

func (s *Service) Clear(ctx context.Context, userID string) error {
	return s.Store.Clear(ctx, userID)
}
