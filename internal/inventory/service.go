package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/go-storefront-checkout/internal/kafka"
	"github.com/ariefcatur/go-storefront-checkout/internal/orders"
	"github.com/ariefcatur/go-storefront-checkout/internal/redisx"
)

type Publisher interface {
	PublishEnvelope(topic string, env orders.Envelope)
}

// AlertService watches placed orders and raises a low-stock event for each
// ordered SKU left at or below its threshold.
type AlertService struct {
	Store       Store
	Redis       *redis.Client
	Events      Publisher
	Log         zerolog.Logger
	ServiceName string
	// Threshold applies to SKUs without their own LowStockThreshold.
	Threshold int
}

// HandleOrderPlaced is installed as the consumer handler.
func (s *AlertService) HandleOrderPlaced(ctx context.Context, m kafkago.Message) error {
	if t := kafkax.Header(m, kafkax.HeaderEventType); t != "" && t != orders.EventOrderPlaced {
		return nil
	}
	env, err := kafkax.DecodeEnvelope(m.Value)
	if err != nil {
		// poison message, retrying cannot help
		s.Log.Error().Err(err).Int64("offset", m.Offset).Msg("skip undecodable message")
		return nil
	}
	if env.EventType != orders.EventOrderPlaced {
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, "inventory", env.EventID)
	first, err := redisx.MarkOnce(ctx, s.Redis, dkey, redisx.TTLDedup)
	if err != nil {
		return fmt.Errorf("dedup: %w", err)
	}
	if !first {
		return nil
	}
	if err := s.check(orders.WithTraceID(ctx, env.TraceID), env); err != nil {
		// let the redelivery run again
		_ = s.Redis.Del(ctx, dkey).Err()
		return err
	}
	return nil
}

func (s *AlertService) check(ctx context.Context, env orders.Envelope) error {
	p, err := kafkax.UnwrapPayload[orders.OrderPlacedPayload](env.Payload)
	if err != nil {
		s.Log.Error().Err(err).Str("event_id", env.EventID).Msg("skip bad payload")
		return nil
	}
	for _, it := range p.Items {
		sku, err := s.Store.Get(ctx, it.SKUID)
		if errors.Is(err, ErrSKUNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		threshold := sku.LowStockThreshold
		if threshold <= 0 {
			threshold = s.Threshold
		}
		if sku.StockQuantity > threshold {
			continue
		}
		out, err := orders.NewEnvelope(ctx, orders.EventStockLow, s.ServiceName, p.OrderID, orders.StockLowPayload{
			SKUID:             sku.ID,
			StockQuantity:     sku.StockQuantity,
			LowStockThreshold: threshold,
			OrderID:           p.OrderID,
		})
		if err != nil {
			return err
		}
		s.Events.PublishEnvelope(orders.TopicStockLow, out)
		s.Log.Info().Str("sku_id", sku.ID).Int("stock", sku.StockQuantity).Int("threshold", threshold).Msg("low stock")
	}
	return nil
}
