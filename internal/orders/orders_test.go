package orders

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-storefront-checkout/internal/address"
	"github.com/ariefcatur/go-storefront-checkout/internal/pricing"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCancelled, true},
		{StatusConfirmed, StatusShipped, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusShipped, StatusDelivered, true},
		{StatusPending, StatusDelivered, false},
		{StatusPending, StatusShipped, false},
		{StatusShipped, StatusCancelled, false},
		{StatusDelivered, StatusCancelled, false},
		{StatusCancelled, StatusPending, false},
		{Status("lost"), StatusPending, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
	assert.True(t, StatusDelivered.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusShipped.Terminal())
	assert.False(t, Status("lost").Terminal())
}

func sampleOrder(attemptID string) Order {
	return Order{
		AttemptID:     attemptID,
		UserID:        "u1",
		Items:         []Item{{SKUID: "A", Quantity: 2, UnitPrice: 100}},
		Address:       address.Address{Name: "Asha", City: "Pune"},
		PaymentMethod: pricing.PaymentUPI,
		Totals:        pricing.Totals{Subtotal: 200, Total: 200},
	}
}

func TestMemoryStoreCreateIsIdempotentOnAttempt(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	first, err := s.Create(ctx, sampleOrder("att-1"))
	require.NoError(t, err)
	assert.Equal(t, StatusPending, first.Status)
	assert.NotEmpty(t, first.ID)

	again, err := s.Create(ctx, sampleOrder("att-1"))
	require.ErrorIs(t, err, ErrAlreadyExists)
	assert.Equal(t, first.ID, again.ID)

	byAttempt, err := s.GetByAttempt(ctx, "att-1")
	require.NoError(t, err)
	assert.Equal(t, first, byAttempt)

	list, err := s.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestMemoryStoreTransition(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	o, err := s.Create(ctx, sampleOrder("att-1"))
	require.NoError(t, err)

	_, err = s.Transition(ctx, o.ID, StatusDelivered)
	var ite *IllegalTransitionError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, IllegalTransitionError{From: StatusPending, To: StatusDelivered}, *ite)

	o, err = s.Transition(ctx, o.ID, StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, o.Status)

	// cancel restricted to pending fails once confirmed
	_, err = s.Transition(ctx, o.ID, StatusCancelled, StatusPending)
	require.ErrorAs(t, err, &ite)

	for _, next := range []Status{StatusShipped, StatusDelivered} {
		o, err = s.Transition(ctx, o.ID, next)
		require.NoError(t, err)
	}
	_, err = s.Transition(ctx, o.ID, StatusCancelled)
	require.ErrorAs(t, err, &ite)

	_, err = s.Transition(ctx, "missing", StatusConfirmed)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	o, err := s.Create(ctx, sampleOrder("att-1"))
	require.NoError(t, err)

	o.Items[0].Quantity = 99
	got, err := s.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Items[0].Quantity)
}
