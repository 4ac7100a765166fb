package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-storefront-checkout/internal/pricing"
	"github.com/ariefcatur/go-storefront-checkout/internal/redisx"
)

// RedisStore keeps each cart in one hash. Read-modify-write paths run
// under WATCH so concurrent adds to the same line are not lost.
type RedisStore struct {
	Redis *redis.Client
}

const maxTxRetries = 5

func cartKey(userID string) string { return fmt.Sprintf(redisx.KeyCart, userID) }

func (s *RedisStore) Add(ctx context.Context, userID string, line pricing.LineItem) error {
	if line.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	key := cartKey(userID)
	return s.update(ctx, key, func(tx *redis.Tx) (func(redis.Pipeliner) error, error) {
		cur, found, err := getLine(ctx, tx, key, line.SKUID)
		if err != nil {
			return nil, err
		}
		next := line
		if found {
			next = cur
			next.Quantity += line.Quantity
		}
		b, err := json.Marshal(next)
		if err != nil {
			return nil, err
		}
		return func(p redis.Pipeliner) error {
			p.HSet(ctx, key, line.SKUID, b)
			p.Expire(ctx, key, redisx.TTLCart)
			return nil
		}, nil
	})
}

func (s *RedisStore) SetQuantity(ctx context.Context, userID, skuID string, qty int) error {
	key := cartKey(userID)
	return s.update(ctx, key, func(tx *redis.Tx) (func(redis.Pipeliner) error, error) {
		cur, found, err := getLine(ctx, tx, key, skuID)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, ErrLineNotFound
		}
		if qty <= 0 {
			return func(p redis.Pipeliner) error {
				p.HDel(ctx, key, skuID)
				return nil
			}, nil
		}
		cur.Quantity = qty
		b, err := json.Marshal(cur)
		if err != nil {
			return nil, err
		}
		return func(p redis.Pipeliner) error {
			p.HSet(ctx, key, skuID, b)
			return nil
		}, nil
	})
}

func (s *RedisStore) Remove(ctx context.Context, userID, skuID string) error {
	return s.Redis.HDel(ctx, cartKey(userID), skuID).Err()
}

func (s *RedisStore) Clear(ctx context.Context, userID string) error {
	return s.Redis.Del(ctx, cartKey(userID)).Err()
}

func (s *RedisStore) Lines(ctx context.Context, userID string) ([]pricing.LineItem, error) {
	m, err := s.Redis.HGetAll(ctx, cartKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]pricing.LineItem, 0, len(m))
	for skuID, raw := range m {
		var l pricing.LineItem
		if err := json.Unmarshal([]byte(raw), &l); err != nil {
			return nil, fmt.Errorf("decode cart line %s: %w", skuID, err)
		}
		out = append(out, l)
	}
	return out, nil
}

func (s *RedisStore) update(ctx context.Context, key string, plan func(tx *redis.Tx) (func(redis.Pipeliner) error, error)) error {
	for i := 0; i < maxTxRetries; i++ {
		err := s.Redis.Watch(ctx, func(tx *redis.Tx) error {
			write, err := plan(tx)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, write)
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("cart %s: too much contention", key)
}

func getLine(ctx context.Context, tx *redis.Tx, key, skuID string) (pricing.LineItem, bool, error) {
	raw, err := tx.HGet(ctx, key, skuID).Result()
	if errors.Is(err, redis.Nil) {
		return pricing.LineItem{}, false, nil
	}
	if err != nil {
		return pricing.LineItem{}, false, err
	}
	var l pricing.LineItem
	if err := json.Unmarshal([]byte(raw), &l); err != nil {
		return pricing.LineItem{}, false, err
	}
	return l, true, nil
}
