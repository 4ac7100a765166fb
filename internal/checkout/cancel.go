package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-storefront-checkout/internal/orders"
)

var ErrForbidden = errors.New("admin role required")

const restockTries = 3

// Actor is who asks for an order change.
type Actor struct {
	UserID string
	Admin  bool
}

func (a Actor) String() string {
	if a.Admin {
		return "admin:" + a.UserID
	}
	return "customer:" + a.UserID
}

// Cancel moves an order to cancelled and puts the committed quantities back
// into stock. Customers may cancel their own pending orders; admins may also
// cancel confirmed ones. The order is cancelled before the restock. When the
// restock keeps failing it is handed to the inventory worker as a
// restock_pending event; without an event publisher the error is returned.
func (o *Orchestrator) Cancel(ctx context.Context, orderID string, actor Actor) (orders.Order, error) {
	cur, err := o.Orders.GetByID(ctx, orderID)
	if err != nil {
		return orders.Order{}, err
	}
	if !actor.Admin && cur.UserID != actor.UserID {
		return orders.Order{}, orders.ErrNotFound
	}
	allowed := []orders.Status{orders.StatusPending}
	if actor.Admin {
		allowed = append(allowed, orders.StatusConfirmed)
	}

	updated, err := o.Orders.Transition(ctx, orderID, orders.StatusCancelled, allowed...)
	if err != nil {
		return orders.Order{}, err
	}
	o.Metrics.Transition(string(orders.StatusCancelled))
	log := o.Log.With().Str("order_id", orderID).Str("actor", actor.String()).Logger()

	if err := o.restockCancelled(ctx, updated.Items); err != nil {
		log.Error().Err(err).Msg("restock cancelled order")
		if o.Events == nil {
			return updated, fmt.Errorf("restock cancelled order %s: %w", orderID, err)
		}
		o.publish(ctx, orders.TopicRestockPending, orders.EventRestockPending, orderID,
			orders.RestockPendingPayload{OrderID: orderID, Items: updated.Items})
	}
	log.Info().Str("from", string(cur.Status)).Msg("order cancelled")

	o.publish(ctx, orders.TopicOrderStatusChanged, orders.EventOrderStatusChanged, orderID,
		orders.OrderStatusChangedPayload{OrderID: orderID, From: cur.Status, To: orders.StatusCancelled})
	o.publish(ctx, orders.TopicOrderCancelled, orders.EventOrderCancelled, orderID,
		orders.OrderCancelledPayload{OrderID: orderID, Actor: actor.String(), Restocked: updated.Items})
	return updated, nil
}

// AdvanceStatus is the admin path through the order lifecycle. Cancelling
// goes through Cancel so stock is restored.
func (o *Orchestrator) AdvanceStatus(ctx context.Context, orderID string, to orders.Status, actor Actor) (orders.Order, error) {
	if !actor.Admin {
		return orders.Order{}, ErrForbidden
	}
	if to == orders.StatusCancelled {
		return o.Cancel(ctx, orderID, actor)
	}
	cur, err := o.Orders.GetByID(ctx, orderID)
	if err != nil {
		return orders.Order{}, err
	}
	updated, err := o.Orders.Transition(ctx, orderID, to)
	if err != nil {
		return orders.Order{}, err
	}
	o.Metrics.Transition(string(to))
	o.Log.Info().Str("order_id", orderID).Str("from", string(cur.Status)).Str("to", string(to)).Msg("order status changed")
	o.publish(ctx, orders.TopicOrderStatusChanged, orders.EventOrderStatusChanged, orderID,
		orders.OrderStatusChangedPayload{OrderID: orderID, From: cur.Status, To: to})
	return updated, nil
}

func (o *Orchestrator) restockCancelled(ctx context.Context, items []orders.Item) error {
	var err error
	for i := 1; i <= restockTries; i++ {
		if err = o.Inventory.Restock(ctx, deltas(items)); err == nil {
			return nil
		}
		if i == restockTries {
			break
		}
		t := time.NewTimer(time.Duration(i) * 50 * time.Millisecond)
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
	}
	return err
}
