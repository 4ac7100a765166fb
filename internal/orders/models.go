package orders

import (
	"errors"
	"time"

	"github.com/ariefcatur/go-storefront-checkout/internal/address"
	"github.com/ariefcatur/go-storefront-checkout/internal/pricing"
)

var (
	ErrNotFound      = errors.New("order not found")
	ErrAlreadyExists = errors.New("order already exists")
)

type Order struct {
	ID            string                `json:"order_id"`
	AttemptID     string                `json:"attempt_id"`
	UserID        string                `json:"user_id"`
	Items         []Item                `json:"items"`
	Address       address.Address       `json:"address"` // copied at placement
	PaymentMethod pricing.PaymentMethod `json:"payment_method"`
	Totals        pricing.Totals        `json:"totals"`
	Status        Status                `json:"status"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

type Item struct {
	SKUID     string `json:"sku_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

func ItemsFromLines(lines []pricing.LineItem) []Item {
	out := make([]Item, 0, len(lines))
	for _, l := range lines {
		out = append(out, Item{SKUID: l.SKUID, Quantity: l.Quantity, UnitPrice: l.UnitPriceAtAdd})
	}
	return out
}
