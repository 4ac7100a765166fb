package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-storefront-checkout/internal/redisx"
)

// unlockScript deletes the guard only if it still holds our token, so a
// caller whose lock expired cannot release a newer holder's lock.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisAttempts shares attempt state and the placement guard across API
// replicas.
type RedisAttempts struct {
	Redis *redis.Client
}

func (s *RedisAttempts) Create(ctx context.Context, a Attempt) (Attempt, bool, error) {
	b, err := json.Marshal(a)
	if err != nil {
		return Attempt{}, false, err
	}
	ok, err := s.Redis.SetNX(ctx, fmt.Sprintf(redisx.KeyAttempt, a.ID), b, redisx.TTLAttempt).Result()
	if err != nil {
		return Attempt{}, false, err
	}
	if ok {
		return a, true, nil
	}
	cur, err := s.Get(ctx, a.ID)
	return cur, false, err
}

func (s *RedisAttempts) Get(ctx context.Context, id string) (Attempt, error) {
	b, err := s.Redis.Get(ctx, fmt.Sprintf(redisx.KeyAttempt, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Attempt{}, ErrAttemptNotFound
	}
	if err != nil {
		return Attempt{}, err
	}
	var a Attempt
	if err := json.Unmarshal(b, &a); err != nil {
		return Attempt{}, fmt.Errorf("decode attempt %s: %w", id, err)
	}
	return a, nil
}

func (s *RedisAttempts) Save(ctx context.Context, a Attempt) error {
	b, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return s.Redis.Set(ctx, fmt.Sprintf(redisx.KeyAttempt, a.ID), b, redisx.TTLAttempt).Err()
}

func (s *RedisAttempts) Lock(ctx context.Context, id string, ttl time.Duration) (func(), bool, error) {
	key := fmt.Sprintf(redisx.KeyAttemptPlacing, id)
	token := uuid.NewString()
	ok, err := s.Redis.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	return func() {
		// the request context may already be done
		_ = unlockScript.Run(context.Background(), s.Redis, []string{key}, token).Err()
	}, true, nil
}
