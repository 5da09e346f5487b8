package tokenstore

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/timex"
)

// Sweeper periodically deletes expired refresh tokens. Expired tokens are
// also removed lazily on use, so the sweeper is optional.
type Sweeper struct {
	store    Store
	interval time.Duration
	clock    timex.Clock
	log      logging.Logger
}

func NewSweeper(store Store, interval time.Duration, clock timex.Clock, log logging.Logger) *Sweeper {
	return &Sweeper{store: store, interval: interval, clock: clock, log: log}
}

// Run sweeps every interval until ctx is done. A non-positive interval
// returns immediately.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass and returns the number of deleted tokens.
func (s *Sweeper) Sweep(ctx context.Context) int64 {
	n, err := s.store.DeleteExpired(ctx, s.clock())
	if err != nil {
		s.log.Warn(ctx, "refresh token sweep failed", "error", err)
		return n
	}
	if n > 0 {
		s.log.Info(ctx, "expired refresh tokens removed", "count", n)
	}
	return n
}
