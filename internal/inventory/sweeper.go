package inventory

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ariefcatur/go-storefront-checkout/internal/metrics"
)

// Sweeper releases reservations whose TTL has passed, so a stalled
// checkout cannot hold stock for longer than TTL plus one interval.
type Sweeper struct {
	Store    Store
	Interval time.Duration
	Log      zerolog.Logger
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

func (s *Sweeper) Run(ctx context.Context) error {
	t := time.NewTicker(s.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.Log.Error().Err(err).Msg("sweep reservations")
			}
		}
	}
}

func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now()
	}
	released, err := s.Store.ReleaseExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	if len(released) > 0 {
		s.Metrics.Swept(len(released))
		s.Log.Info().Int("released", len(released)).Msg("expired reservations released")
	}
	return len(released), nil
}
