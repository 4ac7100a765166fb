package pricing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// RuleEvaluator prices coupon types the engine does not evaluate itself
// (buy_x_get_y). It returns the discount in minor units.
type RuleEvaluator interface {
	Evaluate(items []LineItem, c Coupon) (int64, error)
}

type RuleEvaluatorFunc func(items []LineItem, c Coupon) (int64, error)

func (f RuleEvaluatorFunc) Evaluate(items []LineItem, c Coupon) (int64, error) { return f(items, c) }

// Engine is pure: no I/O, no clock. The instant used for coupon validity
// is an explicit argument so equal inputs always give equal Totals.
type Engine struct {
	Policy Policy
	Rules  RuleEvaluator
}

// ComputeTotals prices a frozen cart. When the coupon fails validation the
// returned Totals are the coupon-less totals and the error is an
// *InvalidCouponError.
func (e Engine) ComputeTotals(items []LineItem, coupon *Coupon, method PaymentMethod, at time.Time) (Totals, error) {
	var t Totals
	for _, it := range items {
		if it.Quantity <= 0 || it.UnitPriceAtAdd < 0 {
			return Totals{}, fmt.Errorf("%w: sku %s", ErrInvalidLineItem, it.SKUID)
		}
		t.Subtotal += it.UnitPriceAtAdd * int64(it.Quantity)
	}

	t.Tax = roundMinor(decimal.NewFromInt(t.Subtotal).Mul(e.Policy.TaxRate))

	baseDelivery := e.Policy.DeliveryFee
	if t.Subtotal > e.Policy.FreeDeliveryThreshold {
		baseDelivery = 0
	}
	t.DeliveryCharge = baseDelivery
	if method == PaymentCOD {
		t.DeliveryCharge += e.Policy.CODSurcharge
	}

	var couponErr error
	if coupon != nil {
		discount, free, err := e.discount(items, t.Subtotal, baseDelivery, *coupon, at)
		if err != nil {
			couponErr = err
		} else {
			t.Discount = discount
			t.FreeShipping = free
			t.CouponCode = coupon.Code
		}
	}

	owed := t.Discount
	if t.FreeShipping {
		// the waived fee shows as the discount and is not subtracted again
		t.DeliveryCharge -= t.Discount
		owed = 0
	}
	t.Total = t.Subtotal + t.Tax + t.DeliveryCharge - owed
	if t.Total < 0 {
		t.Total = 0
	}
	return t, couponErr
}

// ValidateCoupon runs the coupon checks that do not depend on the coupon type.
func ValidateCoupon(c Coupon, subtotal int64, at time.Time) error {
	invalid := func(reason string) error { return &InvalidCouponError{Code: c.Code, Reason: reason} }
	switch c.Status(at) {
	case CouponInactive:
		return invalid(ReasonInactive)
	case CouponScheduled:
		return invalid(ReasonNotStarted)
	case CouponExpired:
		return invalid(ReasonExpired)
	}
	if c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit {
		return invalid(ReasonUsageLimit)
	}
	if c.PerUserLimit > 0 && c.UserUsedCount >= c.PerUserLimit {
		return invalid(ReasonPerUserLimit)
	}
	if subtotal < c.MinimumAmount {
		return invalid(ReasonMinimumNotMet)
	}
	return nil
}

func (e Engine) discount(items []LineItem, subtotal, baseDelivery int64, c Coupon, at time.Time) (amount int64, freeShipping bool, err error) {
	if err := ValidateCoupon(c, subtotal, at); err != nil {
		return 0, false, err
	}
	invalid := func(reason string) error { return &InvalidCouponError{Code: c.Code, Reason: reason} }

	switch c.Type {
	case CouponPercentage:
		if !c.Value.IsPositive() || c.Value.GreaterThan(hundred) {
			return 0, false, invalid(ReasonInvalidValue)
		}
		amount = roundMinor(decimal.NewFromInt(subtotal).Mul(c.Value).Div(hundred))
		if c.MaximumDiscount > 0 && amount > c.MaximumDiscount {
			amount = c.MaximumDiscount
		}
		return amount, false, nil
	case CouponFixed:
		if !c.Value.IsPositive() {
			return 0, false, invalid(ReasonInvalidValue)
		}
		return min(roundMinor(c.Value), subtotal), false, nil
	case CouponFreeShipping:
		return baseDelivery, true, nil
	case CouponBuyXGetY:
		if e.Rules == nil {
			return 0, false, invalid(ReasonUnsupportedType)
		}
		amount, err := e.Rules.Evaluate(items, c)
		if err != nil {
			return 0, false, invalid(ReasonRuleRejected)
		}
		return max(0, min(amount, subtotal)), false, nil
	}
	return 0, false, invalid(ReasonUnsupportedType)
}

func roundMinor(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}
