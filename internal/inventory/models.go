package inventory

import "time"

// SKU is the most specific purchasable unit. A product without size or
// color discriminators is its own SKU.
type SKU struct {
	ID                string    `json:"sku_id"`
	ProductID         string    `json:"product_id"`
	Size              string    `json:"size,omitempty"`
	Color             string    `json:"color,omitempty"`
	UnitPrice         int64     `json:"unit_price"`
	DiscountedPrice   *int64    `json:"discounted_price,omitempty"`
	StockQuantity     int       `json:"stock_quantity"`
	LowStockThreshold int       `json:"low_stock_threshold"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Price is what a buyer pays per unit right now.
func (s SKU) Price() int64 {
	if s.DiscountedPrice != nil && *s.DiscountedPrice >= 0 && *s.DiscountedPrice < s.UnitPrice {
		return *s.DiscountedPrice
	}
	return s.UnitPrice
}

func (s SKU) IsLowStock(threshold int) bool {
	if threshold <= 0 {
		threshold = s.LowStockThreshold
	}
	return s.StockQuantity > 0 && s.StockQuantity <= threshold
}

// Reservation is a temporary hold on stock for one checkout attempt.
type Reservation struct {
	ID        string    `json:"reservation_id"`
	SKUID     string    `json:"sku_id"`
	Quantity  int       `json:"quantity"`
	AttemptID string    `json:"attempt_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (r Reservation) Expired(now time.Time) bool { return !now.Before(r.ExpiresAt) }

type AdjustMode string

const (
	AdjustSet      AdjustMode = "set"
	AdjustAdd      AdjustMode = "add"
	AdjustSubtract AdjustMode = "subtract"
)

// StockDelta is a committed quantity handed back on cancellation.
type StockDelta struct {
	SKUID    string `json:"sku_id"`
	Quantity int    `json:"quantity"`
}

// applyAdjust returns the new stock level for an admin correction.
func applyAdjust(skuID string, current, qty int, mode AdjustMode) (int, error) {
	if qty < 0 {
		return 0, ErrInvalidQuantity
	}
	var next int
	switch mode {
	case AdjustSet:
		next = qty
	case AdjustAdd:
		next = current + qty
	case AdjustSubtract:
		next = current - qty
	default:
		return 0, ErrInvalidMode
	}
	if next < 0 {
		return 0, &NegativeStockError{SKUID: skuID, Current: current, Delta: next - current}
	}
	return next, nil
}
