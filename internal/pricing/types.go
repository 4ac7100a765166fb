package pricing

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentUPI        PaymentMethod = "upi"
	PaymentNetbanking PaymentMethod = "netbanking"
	PaymentCard       PaymentMethod = "card"
	PaymentCOD        PaymentMethod = "cod"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentUPI, PaymentNetbanking, PaymentCard, PaymentCOD:
		return true
	}
	return false
}

// LineItem is one frozen cart line. Prices are minor units (paise).
type LineItem struct {
	SKUID          string `json:"sku_id"`
	Quantity       int    `json:"quantity"`
	UnitPriceAtAdd int64  `json:"unit_price_at_add"`
}

type CouponType string

const (
	CouponPercentage   CouponType = "percentage"
	CouponFixed        CouponType = "fixed"
	CouponFreeShipping CouponType = "free_shipping"
	CouponBuyXGetY     CouponType = "buy_x_get_y"
)

type CouponStatus string

const (
	CouponActive    CouponStatus = "active"
	CouponInactive  CouponStatus = "inactive"
	CouponScheduled CouponStatus = "scheduled"
	CouponExpired   CouponStatus = "expired"
)

// Coupon is the resolved coupon handed over by the coupon service.
// Value is a percentage for CouponPercentage and minor units for CouponFixed.
// Zero limits and zero dates mean "unbounded".
type Coupon struct {
	Code            string          `json:"code"`
	Type            CouponType      `json:"type"`
	Value           decimal.Decimal `json:"value"`
	MinimumAmount   int64           `json:"minimum_amount"`
	MaximumDiscount int64           `json:"maximum_discount"`
	UsageLimit      int             `json:"usage_limit"`
	UsedCount       int             `json:"used_count"`
	PerUserLimit    int             `json:"per_user_limit"`
	UserUsedCount   int             `json:"user_used_count"`
	StartDate       time.Time       `json:"start_date"`
	EndDate         time.Time       `json:"end_date"`
	Active          bool            `json:"active"`
}

func (c Coupon) Status(now time.Time) CouponStatus {
	switch {
	case !c.Active:
		return CouponInactive
	case !c.StartDate.IsZero() && now.Before(c.StartDate):
		return CouponScheduled
	case !c.EndDate.IsZero() && now.After(c.EndDate):
		return CouponExpired
	}
	return CouponActive
}

// Policy holds the injected pricing parameters.
type Policy struct {
	TaxRate decimal.Decimal
	// Delivery is free when the subtotal is strictly above this amount.
	FreeDeliveryThreshold int64
	DeliveryFee           int64
	CODSurcharge          int64
}

type Totals struct {
	Subtotal       int64  `json:"subtotal"`
	Tax            int64  `json:"tax"`
	DeliveryCharge int64  `json:"delivery_charge"`
	Discount       int64  `json:"discount"`
	Total          int64  `json:"total"`
	CouponCode     string `json:"coupon_code,omitempty"`
	FreeShipping   bool   `json:"free_shipping,omitempty"`
}
