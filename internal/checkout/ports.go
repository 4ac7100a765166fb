package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ariefcatur/go-storefront-checkout/internal/orders"
	"github.com/ariefcatur/go-storefront-checkout/internal/pricing"
)

// Cart yields the frozen lines for a user and empties the cart after placement.
type Cart interface {
	Snapshot(ctx context.Context, userID string) ([]pricing.LineItem, error)
	Clear(ctx context.Context, userID string) error
}

// PaymentAuthorizer is the gateway hook. It returns ErrPaymentDeclined
// (possibly wrapped) for a decline. It is never called for cash on delivery.
type PaymentAuthorizer interface {
	Authorize(ctx context.Context, attemptID string, method pricing.PaymentMethod, amount int64) error
}

type ApproveAll struct{}

func (ApproveAll) Authorize(context.Context, string, pricing.PaymentMethod, int64) error { return nil }

// CouponResolver is the coupon service. A nil coupon with a nil error means
// the code is unknown.
type CouponResolver interface {
	Resolve(ctx context.Context, code, userID string) (*pricing.Coupon, error)
}

type CouponRedeemer interface {
	Redeem(ctx context.Context, code, userID, orderID string) error
}

type Publisher interface {
	PublishEnvelope(topic string, env orders.Envelope)
}

// MemoryCoupons is an in-process coupon service that counts redemptions.
type MemoryCoupons struct {
	mu      sync.Mutex
	coupons map[string]pricing.Coupon
	perUser map[string]int
}

func NewMemoryCoupons(cs ...pricing.Coupon) *MemoryCoupons {
	m := &MemoryCoupons{coupons: map[string]pricing.Coupon{}, perUser: map[string]int{}}
	for _, c := range cs {
		m.coupons[strings.ToUpper(c.Code)] = c
	}
	return m
}

// LoadCoupons reads a JSON array of coupons.
func LoadCoupons(r io.Reader) (*MemoryCoupons, error) {
	var cs []pricing.Coupon
	if err := json.NewDecoder(r).Decode(&cs); err != nil {
		return nil, fmt.Errorf("decode coupons: %w", err)
	}
	for i, c := range cs {
		if c.Code == "" {
			return nil, fmt.Errorf("coupon %d has no code", i)
		}
	}
	return NewMemoryCoupons(cs...), nil
}

func (m *MemoryCoupons) Resolve(_ context.Context, code, userID string) (*pricing.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.coupons[strings.ToUpper(code)]
	if !ok {
		return nil, nil
	}
	c.UserUsedCount = m.perUser[userKey(c.Code, userID)]
	return &c, nil
}

func (m *MemoryCoupons) Redeem(_ context.Context, code, userID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := strings.ToUpper(code)
	c, ok := m.coupons[k]
	if !ok {
		return nil
	}
	c.UsedCount++
	m.coupons[k] = c
	m.perUser[userKey(c.Code, userID)]++
	return nil
}

func userKey(code, userID string) string { return strings.ToUpper(code) + "|" + userID }
