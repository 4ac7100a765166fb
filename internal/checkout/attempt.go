package checkout

import (
	"time"

	"github.com/ariefcatur/go-storefront-checkout/internal/inventory"
	"github.com/ariefcatur/go-storefront-checkout/internal/pricing"
)

type State string

const (
	StateAddressPending State = "address_pending"
	StatePaymentPending State = "payment_pending"
	StateReviewPending  State = "review_pending"
	StatePlacing        State = "placing"
	StatePlaced         State = "placed"
	StateFailed         State = "failed"
)

// Failure reasons surfaced to the client.
const (
	ReasonOutOfStock         = "out_of_stock"
	ReasonSKUUnavailable     = "sku_unavailable"
	ReasonInvalidCoupon      = "invalid_coupon"
	ReasonPaymentDeclined    = "payment_declined"
	ReasonReservationExpired = "reservation_expired"
	ReasonEmptyCart          = "empty_cart"
	ReasonAddressNotFound    = "address_not_found"
	ReasonInvalidCart        = "invalid_cart"
	ReasonOrderWriteFailed   = "order_write_failed"
	ReasonInternal           = "internal"
)

// Attempt is one client checkout sequence keyed by a client-generated id.
type Attempt struct {
	ID            string                `json:"attempt_id"`
	UserID        string                `json:"user_id"`
	State         State                 `json:"state"`
	AddressID     string                `json:"address_id,omitempty"`
	Payment       pricing.PaymentMethod `json:"payment_method,omitempty"`
	CouponCode    string                `json:"coupon_code,omitempty"`
	TermsAccepted bool                  `json:"terms_accepted"`
	OrderID       string                `json:"order_id,omitempty"`
	Totals        *pricing.Totals       `json:"totals,omitempty"`
	Failure       *Failure              `json:"failure,omitempty"`
	Reservations  []string              `json:"reservations,omitempty"`
	Retries       int                   `json:"retries"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`

	// Committed is stock already taken for this attempt that no order
	// accounts for yet. It is handed back before the attempt is retried.
	Committed []inventory.StockDelta `json:"committed,omitempty"`
}

type Failure struct {
	Reason    string `json:"reason"`
	SKUID     string `json:"sku_id,omitempty"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
	Detail    string `json:"detail,omitempty"`
}

// ready reports whether every pre-placement step has been completed.
func (a Attempt) ready() bool {
	return a.AddressID != "" && a.Payment.Valid() && a.TermsAccepted
}
