package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/go-storefront-checkout/internal/kafka"
	"github.com/ariefcatur/go-storefront-checkout/internal/orders"
	"github.com/ariefcatur/go-storefront-checkout/internal/redisx"
)

// RestockService applies restocks the API could not finish when an order
// was cancelled. It keeps retrying one message until it lands or the worker
// stops, since a later committed offset would skip it.
type RestockService struct {
	Store Store
	Redis *redis.Client
	Log   zerolog.Logger
	Retry time.Duration
}

func (s *RestockService) HandleRestockPending(ctx context.Context, m kafkago.Message) error {
	if t := kafkax.Header(m, kafkax.HeaderEventType); t != "" && t != orders.EventRestockPending {
		return nil
	}
	env, err := kafkax.DecodeEnvelope(m.Value)
	if err != nil || env.EventType != orders.EventRestockPending {
		s.Log.Error().Err(err).Int64("offset", m.Offset).Msg("skip undecodable restock")
		return nil
	}
	p, err := kafkax.UnwrapPayload[orders.RestockPendingPayload](env.Payload)
	if err != nil {
		s.Log.Error().Err(err).Str("event_id", env.EventID).Msg("skip bad restock payload")
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, "restock", env.EventID)
	first, err := redisx.MarkOnce(ctx, s.Redis, dkey, redisx.TTLDedup)
	if err != nil {
		return fmt.Errorf("dedup: %w", err)
	}
	if !first {
		return nil
	}

	items := make([]StockDelta, 0, len(p.Items))
	for _, it := range p.Items {
		items = append(items, StockDelta{SKUID: it.SKUID, Quantity: it.Quantity})
	}
	log := s.Log.With().Str("order_id", p.OrderID).Str("event_id", env.EventID).Logger()
	for {
		err := s.Store.Restock(ctx, items)
		if err == nil {
			log.Info().Int("lines", len(items)).Msg("pending restock applied")
			return nil
		}
		log.Error().Err(err).Msg("pending restock failed")
		t := time.NewTimer(s.retry())
		select {
		case <-ctx.Done():
			t.Stop()
			_ = s.Redis.Del(context.WithoutCancel(ctx), dkey).Err()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (s *RestockService) retry() time.Duration {
	if s.Retry <= 0 {
		return time.Second
	}
	return s.Retry
}
