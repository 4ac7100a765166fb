package pricing

import (
	"errors"
	"fmt"
)

const (
	ReasonInactive        = "inactive"
	ReasonNotStarted      = "not_started"
	ReasonExpired         = "expired"
	ReasonUsageLimit      = "usage_limit_reached"
	ReasonPerUserLimit    = "per_user_limit_reached"
	ReasonMinimumNotMet   = "minimum_not_met"
	ReasonUnsupportedType = "unsupported_type"
	ReasonInvalidValue    = "invalid_value"
	ReasonRuleRejected    = "rule_rejected"
	ReasonUnknownCode     = "unknown_code"
)

var ErrInvalidLineItem = errors.New("invalid line item")

// InvalidCouponError is returned next to coupon-less totals; the caller
// decides whether to continue without the coupon.
type InvalidCouponError struct {
	Code   string
	Reason string
}

func (e *InvalidCouponError) Error() string {
	return fmt.Sprintf("invalid coupon %q: %s", e.Code, e.Reason)
}
