package inventory

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kafkax "github.com/ariefcatur/go-storefront-checkout/internal/kafka"
	"github.com/ariefcatur/go-storefront-checkout/internal/metrics"
	"github.com/ariefcatur/go-storefront-checkout/internal/orders"
)

type captured struct {
	mu   sync.Mutex
	envs []orders.Envelope
}

func (c *captured) PublishEnvelope(topic string, env orders.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if topic == orders.TopicStockLow {
		c.envs = append(c.envs, env)
	}
}

func placedMessage(t *testing.T, items ...orders.Item) kafkago.Message {
	t.Helper()
	env, err := orders.NewEnvelope(context.Background(), orders.EventOrderPlaced, "api", "o-1",
		orders.OrderPlacedPayload{OrderID: "o-1", Items: items})
	require.NoError(t, err)
	b, headers, err := kafkax.EncodeEnvelope(env)
	require.NoError(t, err)
	return kafkago.Message{Value: b, Headers: headers}
}

func TestAlertServicePublishesLowStockOnce(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	store, _ := newTestStore(t,
		SKU{ID: "A", StockQuantity: 2, LowStockThreshold: 3},
		SKU{ID: "B", StockQuantity: 40, LowStockThreshold: 3},
		SKU{ID: "C", StockQuantity: 0},
	)
	pub := &captured{}
	svc := &AlertService{
		Store:       store,
		Redis:       redis.NewClient(&redis.Options{Addr: mr.Addr()}),
		Events:      pub,
		Log:         zerolog.Nop(),
		ServiceName: "inventory",
		Threshold:   5,
	}

	m := placedMessage(t, orders.Item{SKUID: "A", Quantity: 1}, orders.Item{SKUID: "B", Quantity: 1},
		orders.Item{SKUID: "C", Quantity: 1}, orders.Item{SKUID: "ZZ", Quantity: 1})
	require.NoError(t, svc.HandleOrderPlaced(ctx, m))
	// redelivery of the same event is a no-op
	require.NoError(t, svc.HandleOrderPlaced(ctx, m))

	require.Len(t, pub.envs, 2)
	var got []orders.StockLowPayload
	for _, env := range pub.envs {
		assert.Equal(t, orders.EventStockLow, env.EventType)
		var p orders.StockLowPayload
		require.NoError(t, json.Unmarshal(env.Payload, &p))
		got = append(got, p)
	}
	assert.Equal(t, []orders.StockLowPayload{
		{SKUID: "A", StockQuantity: 2, LowStockThreshold: 3, OrderID: "o-1"},
		{SKUID: "C", StockQuantity: 0, LowStockThreshold: 5, OrderID: "o-1"},
	}, got)
}

func TestAlertServiceSkipsOtherEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	store, _ := newTestStore(t, SKU{ID: "A", StockQuantity: 1, LowStockThreshold: 3})
	pub := &captured{}
	svc := &AlertService{Store: store, Redis: redis.NewClient(&redis.Options{Addr: mr.Addr()}), Events: pub, Log: zerolog.Nop()}

	m := placedMessage(t, orders.Item{SKUID: "A", Quantity: 1})
	m.Headers = []kafkago.Header{{Key: kafkax.HeaderEventType, Value: []byte(orders.EventOrderCancelled)}}
	require.NoError(t, svc.HandleOrderPlaced(context.Background(), m))
	require.NoError(t, svc.HandleOrderPlaced(context.Background(), kafkago.Message{Value: []byte("garbage")}))
	assert.Empty(t, pub.envs)
}

func TestSweeperReleasesExpired(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore(t, SKU{ID: "A", StockQuantity: 1})
	reg := prometheus.NewRegistry()
	m := metrics.New("inventory", reg)
	sw := &Sweeper{Store: store, Interval: time.Second, Log: zerolog.Nop(), Metrics: m, Now: clock.Now}

	_, err := store.Reserve(ctx, "A", 1, "stalled")
	require.NoError(t, err)

	n, err := sw.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	clock.Advance(10 * time.Minute)
	n, err = sw.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, store.Reservations("stalled"))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ReservationsSwept))
}

func TestSweeperStopsOnCancel(t *testing.T) {
	store, _ := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- (&Sweeper{Store: store, Interval: time.Millisecond, Log: zerolog.Nop()}).Run(ctx) }()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
