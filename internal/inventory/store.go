package inventory

import (
	"context"
	"time"
)

// Store is the stock ledger. It is the only writer of SKU stock levels.
// Reserve, Commit and Release on the same SKU are linearizable.
type Store interface {
	Get(ctx context.Context, skuID string) (SKU, error)
	Upsert(ctx context.Context, sku SKU) error

	// Reserve holds qty units if stock minus active reservations covers it,
	// else returns *OutOfStockError.
	Reserve(ctx context.Context, skuID string, qty int, attemptID string) (Reservation, error)
	// Commit turns a batch of reservations into stock decrements, all or nothing.
	// A missing or expired reservation fails the whole batch with ErrReservationExpired.
	Commit(ctx context.Context, reservationIDs []string) error
	// Release drops reservations without touching stock. Unknown ids are ignored.
	Release(ctx context.Context, reservationIDs []string) error
	ReleaseAttempt(ctx context.Context, attemptID string) error
	ReleaseExpired(ctx context.Context, now time.Time) ([]Reservation, error)

	Adjust(ctx context.Context, skuID string, qty int, mode AdjustMode) (SKU, error)
	// Restock adds committed quantities back, all or nothing.
	Restock(ctx context.Context, items []StockDelta) error

	// LowStock lists in-stock SKUs at or below threshold; threshold <= 0
	// uses each SKU's own LowStockThreshold.
	LowStock(ctx context.Context, threshold int) ([]SKU, error)
	OutOfStock(ctx context.Context) ([]SKU, error)
}
