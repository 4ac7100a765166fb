package pricing

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testEngine() Engine {
	return Engine{Policy: Policy{
		TaxRate:               decimal.RequireFromString("0.18"),
		FreeDeliveryThreshold: 500,
		DeliveryFee:           40,
		CODSurcharge:          25,
	}}
}

func pct(v string) *Coupon {
	return &Coupon{Code: "TENOFF", Type: CouponPercentage, Value: decimal.RequireFromString(v), MinimumAmount: 150, Active: true}
}

func TestComputeTotals_PercentageScenario(t *testing.T) {
	items := []LineItem{{SKUID: "A", Quantity: 2, UnitPriceAtAdd: 100}}

	got, err := testEngine().ComputeTotals(items, pct("10"), PaymentUPI, now)
	require.NoError(t, err)
	assert.Equal(t, Totals{
		Subtotal:       200,
		Tax:            36,
		DeliveryCharge: 40,
		Discount:       20,
		Total:          256,
		CouponCode:     "TENOFF",
	}, got)
}

func TestComputeTotals_Deterministic(t *testing.T) {
	items := []LineItem{
		{SKUID: "A", Quantity: 3, UnitPriceAtAdd: 333},
		{SKUID: "B", Quantity: 1, UnitPriceAtAdd: 17},
	}
	e := testEngine()
	first, err := e.ComputeTotals(items, pct("12.5"), PaymentCOD, now)
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		again, err := e.ComputeTotals(items, pct("12.5"), PaymentCOD, now)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestComputeTotals_Delivery(t *testing.T) {
	e := testEngine()

	cases := []struct {
		name     string
		price    int64
		method   PaymentMethod
		delivery int64
	}{
		{"below threshold", 100, PaymentCard, 40},
		{"exactly threshold is not free", 500, PaymentCard, 40},
		{"above threshold", 501, PaymentCard, 0},
		{"cod below threshold", 100, PaymentCOD, 65},
		{"cod above threshold keeps surcharge", 900, PaymentCOD, 25},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := e.ComputeTotals([]LineItem{{SKUID: "A", Quantity: 1, UnitPriceAtAdd: tc.price}}, nil, tc.method, now)
			require.NoError(t, err)
			assert.Equal(t, tc.delivery, got.DeliveryCharge)
			assert.Equal(t, got.Subtotal+got.Tax+got.DeliveryCharge, got.Total)
		})
	}
}

func TestComputeTotals_CouponTypes(t *testing.T) {
	items := []LineItem{{SKUID: "A", Quantity: 1, UnitPriceAtAdd: 300}}
	e := testEngine()

	t.Run("percentage capped by maximum discount", func(t *testing.T) {
		c := pct("50")
		c.MaximumDiscount = 60
		got, err := e.ComputeTotals(items, c, PaymentUPI, now)
		require.NoError(t, err)
		assert.Equal(t, int64(60), got.Discount)
	})

	t.Run("fixed capped at subtotal", func(t *testing.T) {
		c := &Coupon{Code: "FLAT", Type: CouponFixed, Value: decimal.NewFromInt(1000), Active: true}
		got, err := e.ComputeTotals(items, c, PaymentUPI, now)
		require.NoError(t, err)
		assert.Equal(t, int64(300), got.Discount)
		assert.Equal(t, got.Tax+got.DeliveryCharge, got.Total)
	})

	t.Run("free shipping zeroes the delivery charge", func(t *testing.T) {
		c := &Coupon{Code: "SHIP", Type: CouponFreeShipping, Active: true}
		got, err := e.ComputeTotals(items, c, PaymentUPI, now)
		require.NoError(t, err)
		assert.Equal(t, Totals{
			Subtotal: 300, Tax: 54, DeliveryCharge: 0, Discount: 40, Total: 354,
			CouponCode: "SHIP", FreeShipping: true,
		}, got)
	})

	t.Run("free shipping keeps the COD surcharge", func(t *testing.T) {
		c := &Coupon{Code: "SHIP", Type: CouponFreeShipping, Active: true}
		got, err := e.ComputeTotals(items, c, PaymentCOD, now)
		require.NoError(t, err)
		assert.Equal(t, int64(25), got.DeliveryCharge)
		assert.Equal(t, int64(40), got.Discount)
		assert.True(t, got.FreeShipping)
		assert.Equal(t, int64(300+54+25), got.Total)
	})

	t.Run("buy x get y without evaluator", func(t *testing.T) {
		c := &Coupon{Code: "B2G1", Type: CouponBuyXGetY, Active: true}
		got, err := e.ComputeTotals(items, c, PaymentUPI, now)
		var ic *InvalidCouponError
		require.ErrorAs(t, err, &ic)
		assert.Equal(t, ReasonUnsupportedType, ic.Reason)
		assert.Zero(t, got.Discount)
	})

	t.Run("buy x get y with evaluator", func(t *testing.T) {
		withRules := e
		withRules.Rules = RuleEvaluatorFunc(func(items []LineItem, c Coupon) (int64, error) {
			return 5000, nil
		})
		c := &Coupon{Code: "B2G1", Type: CouponBuyXGetY, Active: true}
		got, err := withRules.ComputeTotals(items, c, PaymentUPI, now)
		require.NoError(t, err)
		assert.Equal(t, int64(300), got.Discount)
	})

	t.Run("rule evaluator error", func(t *testing.T) {
		withRules := e
		withRules.Rules = RuleEvaluatorFunc(func(items []LineItem, c Coupon) (int64, error) {
			return 0, errors.New("not eligible")
		})
		c := &Coupon{Code: "B2G1", Type: CouponBuyXGetY, Active: true}
		_, err := withRules.ComputeTotals(items, c, PaymentUPI, now)
		var ic *InvalidCouponError
		require.ErrorAs(t, err, &ic)
		assert.Equal(t, ReasonRuleRejected, ic.Reason)
	})
}

func TestComputeTotals_InvalidCoupon(t *testing.T) {
	items := []LineItem{{SKUID: "A", Quantity: 2, UnitPriceAtAdd: 100}}
	base := *pct("10")

	cases := []struct {
		name   string
		mutate func(c *Coupon)
		reason string
	}{
		{"inactive", func(c *Coupon) { c.Active = false }, ReasonInactive},
		{"not started", func(c *Coupon) { c.StartDate = now.Add(time.Hour) }, ReasonNotStarted},
		{"expired", func(c *Coupon) { c.EndDate = now.Add(-time.Second) }, ReasonExpired},
		{"usage exhausted", func(c *Coupon) { c.UsageLimit, c.UsedCount = 5, 5 }, ReasonUsageLimit},
		{"per user exhausted", func(c *Coupon) { c.PerUserLimit, c.UserUsedCount = 1, 1 }, ReasonPerUserLimit},
		{"below minimum", func(c *Coupon) { c.MinimumAmount = 201 }, ReasonMinimumNotMet},
		{"percentage over 100", func(c *Coupon) { c.Value = decimal.NewFromInt(101) }, ReasonInvalidValue},
		{"unknown type", func(c *Coupon) { c.Type = "mystery" }, ReasonUnsupportedType},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := base
			tc.mutate(&c)
			got, err := testEngine().ComputeTotals(items, &c, PaymentUPI, now)

			var ic *InvalidCouponError
			require.ErrorAs(t, err, &ic)
			assert.Equal(t, tc.reason, ic.Reason)
			assert.Equal(t, "TENOFF", ic.Code)

			plain, err := testEngine().ComputeTotals(items, nil, PaymentUPI, now)
			require.NoError(t, err)
			assert.Equal(t, plain, got)
		})
	}
}

func TestComputeTotals_InvalidLine(t *testing.T) {
	_, err := testEngine().ComputeTotals([]LineItem{{SKUID: "A", Quantity: 0, UnitPriceAtAdd: 10}}, nil, PaymentUPI, now)
	require.ErrorIs(t, err, ErrInvalidLineItem)
}

func TestCouponStatus(t *testing.T) {
	c := Coupon{Active: true, StartDate: now.Add(-time.Hour), EndDate: now.Add(time.Hour)}
	assert.Equal(t, CouponActive, c.Status(now))
	assert.Equal(t, CouponExpired, c.Status(now.Add(2*time.Hour)))
	assert.Equal(t, CouponScheduled, c.Status(now.Add(-2*time.Hour)))
	c.Active = false
	assert.Equal(t, CouponInactive, c.Status(now))
}
