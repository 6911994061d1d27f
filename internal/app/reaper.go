package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Reaper periodically purges calls that exceed MaxAge, whatever their
// status. It is the backstop behind the END_CALL grace delete: clients
// that vanish mid-call never send END_CALL, so their records age out here.
type Reaper struct {
	Calls    *CallStore
	Interval time.Duration
	MaxAge   time.Duration

	now func() time.Time
}

func NewReaper(calls *CallStore, interval, maxAge time.Duration) *Reaper {
	return &Reaper{
		Calls:    calls,
		Interval: interval,
		MaxAge:   maxAge,
		now:      time.Now,
	}
}

// Run blocks until ctx is cancelled. Call it in its own goroutine.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()
	log.Info().Str("module", "app.reaper").
		Dur("interval", r.Interval).
		Dur("max_age", r.MaxAge).
		Msg("reaper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "app.reaper").Msg("reaper stopped")
			return
		case <-ticker.C:
			if n := r.Calls.SweepExpired(r.MaxAge, r.now()); n > 0 {
				log.Info().Str("module", "app.reaper").Int("removed", n).Msg("sweep")
			}
		}
	}
}
