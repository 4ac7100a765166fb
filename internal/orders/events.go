package orders

import (
	"encoding/json"
	"time"

	"github.com/ariefcatur/go-storefront-checkout/internal/pricing"
)

const (
	EventOrderPlaced        = "OrderPlaced"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventOrderCancelled     = "OrderCancelled"
	EventStockLow           = "StockLow"
	EventRestockPending     = "RestockPending"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type OrderPlacedPayload struct {
	OrderID       string                `json:"order_id"`
	AttemptID     string                `json:"attempt_id"`
	UserID        string                `json:"user_id"`
	Items         []Item                `json:"items"`
	PaymentMethod pricing.PaymentMethod `json:"payment_method"`
	Totals        pricing.Totals        `json:"totals"`
}

type OrderStatusChangedPayload struct {
	OrderID string `json:"order_id"`
	From    Status `json:"from"`
	To      Status `json:"to"`
}

type OrderCancelledPayload struct {
	OrderID   string `json:"order_id"`
	Actor     string `json:"actor"`
	Restocked []Item `json:"restocked"`
}

type StockLowPayload struct {
	SKUID             string `json:"sku_id"`
	StockQuantity     int    `json:"stock_quantity"`
	LowStockThreshold int    `json:"low_stock_threshold"`
	OrderID           string `json:"order_id,omitempty"`
}

// RestockPendingPayload is stock of a cancelled order that could not be put
// back inline. The inventory worker applies it.
type RestockPendingPayload struct {
	OrderID string `json:"order_id"`
	Items   []Item `json:"items"`
}
