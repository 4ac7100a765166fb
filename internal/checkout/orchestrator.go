package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ariefcatur/go-storefront-checkout/internal/address"
	"github.com/ariefcatur/go-storefront-checkout/internal/inventory"
	"github.com/ariefcatur/go-storefront-checkout/internal/metrics"
	"github.com/ariefcatur/go-storefront-checkout/internal/orders"
	"github.com/ariefcatur/go-storefront-checkout/internal/pricing"
	"github.com/ariefcatur/go-storefront-checkout/internal/redisx"
)

var ErrEmptyCart = errors.New("cart is empty")

// Orchestrator drives checkout attempts from address selection to a
// placed order. Stock is only ever touched through Inventory.
type Orchestrator struct {
	Pricing   pricing.Engine
	Inventory inventory.Store
	Orders    orders.Store
	Addresses address.Book
	Carts     Cart
	Attempts  AttemptStore
	Payments  PaymentAuthorizer
	Coupons   CouponResolver // optional
	Redeemer  CouponRedeemer // optional
	Events    Publisher      // optional
	Metrics   *metrics.Metrics
	Log       zerolog.Logger
	Service   string
	LockTTL   time.Duration
	Now       func() time.Time
}

// SubmitRequest carries every step of a checkout in one call.
type SubmitRequest struct {
	AttemptID     string                `json:"attemptId"`
	AddressID     string                `json:"addressId"`
	PaymentMethod pricing.PaymentMethod `json:"paymentMethod"`
	TermsAccepted bool                  `json:"termsAccepted"`
	CouponCode    string                `json:"couponCode,omitempty"`
}

func (o *Orchestrator) now() time.Time {
	if o.Now == nil {
		return time.Now().UTC()
	}
	return o.Now().UTC()
}

func (o *Orchestrator) lockTTL() time.Duration {
	if o.LockTTL <= 0 {
		return redisx.TTLPlacing
	}
	return o.LockTTL
}

// Start opens an attempt, or returns the caller's existing one.
func (o *Orchestrator) Start(ctx context.Context, userID, attemptID string) (Attempt, error) {
	if attemptID == "" {
		return Attempt{}, ErrMissingAttemptID
	}
	now := o.now()
	a, _, err := o.Attempts.Create(ctx, Attempt{
		ID:        attemptID,
		UserID:    userID,
		State:     StateAddressPending,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return Attempt{}, err
	}
	if a.UserID != userID {
		return Attempt{}, &DuplicateAttemptError{AttemptID: attemptID}
	}
	return a, nil
}

func (o *Orchestrator) Get(ctx context.Context, userID, attemptID string) (Attempt, error) {
	a, err := o.Attempts.Get(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.UserID != userID {
		return Attempt{}, ErrAttemptNotFound
	}
	return a, nil
}

func (o *Orchestrator) SelectAddress(ctx context.Context, userID, attemptID, addressID string) (Attempt, error) {
	return o.step(ctx, userID, attemptID, func(a *Attempt) error {
		if _, err := o.Addresses.Get(ctx, userID, addressID); err != nil {
			return err
		}
		a.AddressID = addressID
		return nil
	})
}

func (o *Orchestrator) SelectPayment(ctx context.Context, userID, attemptID string, method pricing.PaymentMethod) (Attempt, error) {
	return o.step(ctx, userID, attemptID, func(a *Attempt) error {
		if a.AddressID == "" {
			return &StepError{State: a.State, Reason: "address not selected"}
		}
		if !method.Valid() {
			return &StepError{State: a.State, Reason: fmt.Sprintf("unknown payment method %q", method)}
		}
		a.Payment = method
		return nil
	})
}

// Review records terms acceptance and the coupon code. The coupon is
// checked at placement, when the cart is frozen.
func (o *Orchestrator) Review(ctx context.Context, userID, attemptID string, termsAccepted bool, couponCode string) (Attempt, error) {
	return o.step(ctx, userID, attemptID, func(a *Attempt) error {
		if a.AddressID == "" || !a.Payment.Valid() {
			return &StepError{State: a.State, Reason: "address and payment must be selected first"}
		}
		if !termsAccepted {
			return &StepError{State: a.State, Reason: "terms not accepted"}
		}
		a.CouponCode = couponCode
		a.TermsAccepted = true
		return nil
	})
}

// step applies one pre-placement edit under the attempt guard. Editing the
// address or payment resets terms acceptance.
func (o *Orchestrator) step(ctx context.Context, userID, attemptID string, apply func(a *Attempt) error) (Attempt, error) {
	unlock, err := o.lock(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	defer unlock()

	a, err := o.Get(ctx, userID, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.State == StatePlacing || a.State == StatePlaced {
		return Attempt{}, &StepError{State: a.State, Reason: "attempt already submitted"}
	}
	prevAddr, prevPay := a.AddressID, a.Payment
	if err := apply(&a); err != nil {
		return Attempt{}, err
	}
	if a.AddressID != prevAddr || a.Payment != prevPay {
		a.TermsAccepted = false
	}
	a.State = nextState(a)
	a.UpdatedAt = o.now()
	if err := o.Attempts.Save(ctx, a); err != nil {
		return Attempt{}, err
	}
	return a, nil
}

func nextState(a Attempt) State {
	switch {
	case a.AddressID == "":
		return StateAddressPending
	case !a.Payment.Valid():
		return StatePaymentPending
	default:
		return StateReviewPending
	}
}

func (o *Orchestrator) lock(ctx context.Context, attemptID string) (func(), error) {
	if attemptID == "" {
		return nil, ErrMissingAttemptID
	}
	unlock, ok, err := o.Attempts.Lock(ctx, attemptID, o.lockTTL())
	if err != nil {
		return nil, fmt.Errorf("lock attempt: %w", err)
	}
	if !ok {
		return nil, &DuplicateAttemptError{AttemptID: attemptID}
	}
	return unlock, nil
}

// Submit runs every step and places the order. Replaying a placed attempt
// returns its order without re-running the steps.
func (o *Orchestrator) Submit(ctx context.Context, userID string, req SubmitRequest) (orders.Order, error) {
	a, err := o.Start(ctx, userID, req.AttemptID)
	if err != nil {
		return orders.Order{}, err
	}
	if a.State != StatePlaced && a.State != StatePlacing {
		if _, err := o.SelectAddress(ctx, userID, req.AttemptID, req.AddressID); err != nil {
			return orders.Order{}, err
		}
		if _, err := o.SelectPayment(ctx, userID, req.AttemptID, req.PaymentMethod); err != nil {
			return orders.Order{}, err
		}
		if _, err := o.Review(ctx, userID, req.AttemptID, req.TermsAccepted, req.CouponCode); err != nil {
			return orders.Order{}, err
		}
	}
	return o.Place(ctx, userID, req.AttemptID)
}

// Place is the irreversible step. It returns the existing order when the
// attempt already produced one, *DuplicateAttemptError while another call
// is placing the same attempt and *FailedError when placement failed.
func (o *Orchestrator) Place(ctx context.Context, userID, attemptID string) (orders.Order, error) {
	unlock, err := o.lock(ctx, attemptID)
	if err != nil {
		return orders.Order{}, err
	}
	defer unlock()

	a, err := o.Attempts.Get(ctx, attemptID)
	if err != nil {
		return orders.Order{}, err
	}
	if a.UserID != userID {
		return orders.Order{}, &DuplicateAttemptError{AttemptID: attemptID}
	}
	log := o.Log.With().Str("attempt_id", attemptID).Str("user_id", userID).Logger()

	existing, err := o.Orders.GetByAttempt(ctx, attemptID)
	switch {
	case err == nil:
		// the attempt record can expire and be recreated by someone else
		if existing.UserID != userID {
			return orders.Order{}, &DuplicateAttemptError{AttemptID: attemptID}
		}
		if a.State != StatePlaced {
			a.State, a.OrderID, a.Failure, a.Reservations, a.Committed = StatePlaced, existing.ID, nil, nil, nil
			a.UpdatedAt = o.now()
			if err := o.Attempts.Save(ctx, a); err != nil {
				return orders.Order{}, err
			}
		}
		o.Metrics.Checkout("replayed")
		return existing, nil
	case !errors.Is(err, orders.ErrNotFound):
		return orders.Order{}, err
	}

	switch a.State {
	case StateReviewPending:
	case StateFailed:
		a.Retries++
	case StatePlacing:
		// a previous placer died holding reservations; its guard has expired
		log.Warn().Strs("reservations", a.Reservations).Int("committed", len(a.Committed)).Msg("recovering stale placement")
		if err := o.Inventory.ReleaseAttempt(ctx, attemptID); err != nil {
			return orders.Order{}, fmt.Errorf("release stale reservations: %w", err)
		}
		a.Reservations = nil
	case StatePlaced:
		return o.Orders.GetByID(ctx, a.OrderID)
	default:
		return orders.Order{}, &StepError{State: a.State, Reason: "checkout steps incomplete"}
	}
	if len(a.Committed) > 0 {
		if err := o.restock(ctx, &a); err != nil {
			return orders.Order{}, fmt.Errorf("return committed stock: %w", err)
		}
		if err := o.Attempts.Save(ctx, a); err != nil {
			return orders.Order{}, err
		}
	}
	if !a.ready() {
		return orders.Order{}, &StepError{State: a.State, Reason: "terms not accepted"}
	}

	a.State, a.Failure = StatePlacing, nil
	a.UpdatedAt = o.now()
	if err := o.Attempts.Save(ctx, a); err != nil {
		return orders.Order{}, err
	}

	order, err := o.place(ctx, &a)
	if err != nil {
		f := classify(err)
		a.State, a.Failure, a.Reservations = StateFailed, &f, nil
		a.UpdatedAt = o.now()
		if serr := o.Attempts.Save(ctx, a); serr != nil {
			log.Error().Err(serr).Msg("save failed attempt")
		}
		o.Metrics.Checkout(f.Reason)
		log.Info().Err(err).Str("reason", f.Reason).Str("sku_id", f.SKUID).Msg("checkout failed")
		return orders.Order{}, &FailedError{Failure: f, Cause: err}
	}

	a.State, a.OrderID, a.Reservations = StatePlaced, order.ID, nil
	a.UpdatedAt = o.now()
	if err := o.Attempts.Save(ctx, a); err != nil {
		// the order exists; a replay finds it through GetByAttempt
		log.Error().Err(err).Msg("save placed attempt")
	}
	o.afterPlace(ctx, log, a, order)
	return order, nil
}

// place freezes the cart, prices it, reserves every line, authorizes
// payment and commits. Any failure before the commit releases what this
// attempt holds.
func (o *Orchestrator) place(ctx context.Context, a *Attempt) (orders.Order, error) {
	addr, err := o.Addresses.Get(ctx, a.UserID, a.AddressID)
	if err != nil {
		return orders.Order{}, err
	}
	lines, err := o.Carts.Snapshot(ctx, a.UserID)
	if err != nil {
		return orders.Order{}, err
	}
	if len(lines) == 0 {
		return orders.Order{}, ErrEmptyCart
	}

	coupon, err := o.resolveCoupon(ctx, a)
	if err != nil {
		return orders.Order{}, err
	}
	totals, err := o.Pricing.ComputeTotals(lines, coupon, a.Payment, o.now())
	if err != nil {
		return orders.Order{}, err
	}
	a.Totals = &totals

	ids := make([]string, 0, len(lines))
	release := func() {
		if err := o.Inventory.Release(ctx, ids); err != nil {
			o.Log.Error().Err(err).Str("attempt_id", a.ID).Msg("release reservations")
		}
	}
	for _, l := range lines {
		r, err := o.Inventory.Reserve(ctx, l.SKUID, l.Quantity, a.ID)
		if err != nil {
			o.Metrics.Reservation("rejected")
			release()
			if errors.Is(err, inventory.ErrSKUNotFound) {
				return orders.Order{}, &skuUnavailableError{SKUID: l.SKUID}
			}
			return orders.Order{}, err
		}
		o.Metrics.Reservation("reserved")
		ids = append(ids, r.ID)
	}
	a.Reservations = ids
	if err := o.Attempts.Save(ctx, *a); err != nil {
		release()
		return orders.Order{}, err
	}

	if a.Payment != pricing.PaymentCOD {
		if err := o.Payments.Authorize(ctx, a.ID, a.Payment, totals.Total); err != nil {
			release()
			return orders.Order{}, err
		}
	}

	if err := o.Inventory.Commit(ctx, ids); err != nil {
		release()
		return orders.Order{}, err
	}

	items := orders.ItemsFromLines(lines)
	a.Reservations, a.Committed = nil, deltas(items)
	if err := o.Attempts.Save(ctx, *a); err != nil {
		// the order write below is still the way forward
		o.Log.Error().Err(err).Str("attempt_id", a.ID).Msg("save committed attempt")
	}
	created, err := o.Orders.Create(ctx, orders.Order{
		AttemptID:     a.ID,
		UserID:        a.UserID,
		Items:         items,
		Address:       addr,
		PaymentMethod: a.Payment,
		Totals:        totals,
	})
	if errors.Is(err, orders.ErrAlreadyExists) {
		// another placer won after our guard expired; give our stock back
		if rerr := o.restock(ctx, a); rerr != nil {
			o.Log.Error().Err(rerr).Str("attempt_id", a.ID).Msg("restock after losing placement")
		}
		return created, nil
	}
	if err != nil {
		if rerr := o.restock(ctx, a); rerr != nil {
			o.Log.Error().Err(rerr).Str("attempt_id", a.ID).Msg("restock after failed order write")
		}
		return orders.Order{}, &orderWriteError{err: err}
	}
	a.Committed = nil
	return created, nil
}

func (o *Orchestrator) resolveCoupon(ctx context.Context, a *Attempt) (*pricing.Coupon, error) {
	if a.CouponCode == "" || o.Coupons == nil {
		return nil, nil
	}
	c, err := o.Coupons.Resolve(ctx, a.CouponCode, a.UserID)
	if err != nil {
		return nil, fmt.Errorf("resolve coupon: %w", err)
	}
	if c == nil {
		return nil, &pricing.InvalidCouponError{Code: a.CouponCode, Reason: pricing.ReasonUnknownCode}
	}
	return c, nil
}

// restock hands the attempt's committed stock back. On error Committed is
// kept so the next Place on the attempt tries again.
func (o *Orchestrator) restock(ctx context.Context, a *Attempt) error {
	if err := o.Inventory.Restock(ctx, a.Committed); err != nil {
		return err
	}
	a.Committed = nil
	return nil
}

// afterPlace runs the best-effort follow-ups of a placed order.
func (o *Orchestrator) afterPlace(ctx context.Context, log zerolog.Logger, a Attempt, order orders.Order) {
	o.Metrics.Checkout("placed")
	o.Metrics.Transition(string(orders.StatusPending))
	log.Info().Str("order_id", order.ID).Int64("total", order.Totals.Total).Msg("order placed")

	if err := o.Carts.Clear(ctx, a.UserID); err != nil {
		log.Error().Err(err).Msg("clear cart")
	}
	if order.Totals.CouponCode != "" && o.Redeemer != nil {
		if err := o.Redeemer.Redeem(ctx, order.Totals.CouponCode, a.UserID, order.ID); err != nil {
			log.Error().Err(err).Str("coupon", order.Totals.CouponCode).Msg("redeem coupon")
		}
	}
	o.publish(ctx, orders.TopicOrderPlaced, orders.EventOrderPlaced, order.ID, orders.OrderPlacedPayload{
		OrderID:       order.ID,
		AttemptID:     a.ID,
		UserID:        order.UserID,
		Items:         order.Items,
		PaymentMethod: order.PaymentMethod,
		Totals:        order.Totals,
	})
}

func (o *Orchestrator) publish(ctx context.Context, topic, eventType, orderID string, payload any) {
	if o.Events == nil {
		return
	}
	env, err := orders.NewEnvelope(ctx, eventType, o.Service, orderID, payload)
	if err != nil {
		o.Log.Error().Err(err).Str("event_type", eventType).Msg("build envelope")
		return
	}
	o.Events.PublishEnvelope(topic, env)
}

func deltas(items []orders.Item) []inventory.StockDelta {
	out := make([]inventory.StockDelta, 0, len(items))
	for _, it := range items {
		out = append(out, inventory.StockDelta{SKUID: it.SKUID, Quantity: it.Quantity})
	}
	return out
}

type skuUnavailableError struct{ SKUID string }

func (e *skuUnavailableError) Error() string { return "sku unavailable: " + e.SKUID }

func (e *skuUnavailableError) Unwrap() error { return inventory.ErrSKUNotFound }

type orderWriteError struct{ err error }

func (e *orderWriteError) Error() string { return "write order: " + e.err.Error() }

func (e *orderWriteError) Unwrap() error { return e.err }

// classify turns a placement error into the failure shown to the client.
func classify(err error) Failure {
	var (
		oos   *inventory.OutOfStockError
		ic    *pricing.InvalidCouponError
		sku   *skuUnavailableError
		write *orderWriteError
	)
	switch {
	case errors.As(err, &oos):
		return Failure{Reason: ReasonOutOfStock, SKUID: oos.SKUID, Requested: oos.Requested, Available: oos.Available}
	case errors.As(err, &sku):
		return Failure{Reason: ReasonSKUUnavailable, SKUID: sku.SKUID}
	case errors.As(err, &ic):
		return Failure{Reason: ReasonInvalidCoupon, Detail: ic.Reason}
	case errors.As(err, &write):
		return Failure{Reason: ReasonOrderWriteFailed}
	case errors.Is(err, ErrPaymentDeclined):
		return Failure{Reason: ReasonPaymentDeclined}
	case errors.Is(err, inventory.ErrReservationExpired):
		return Failure{Reason: ReasonReservationExpired}
	case errors.Is(err, ErrEmptyCart):
		return Failure{Reason: ReasonEmptyCart}
	case errors.Is(err, address.ErrNotFound):
		return Failure{Reason: ReasonAddressNotFound}
	case errors.Is(err, pricing.ErrInvalidLineItem):
		return Failure{Reason: ReasonInvalidCart, Detail: err.Error()}
	default:
		return Failure{Reason: ReasonInternal}
	}
}
