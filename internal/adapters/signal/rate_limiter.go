package signal

import (
	"sync"
	"time"

	"github.com/televisit/signaling/internal/domain"
)

// LoginRateLimiter caps how often a single identity may (re)log in within
// a sliding window. Reconnecting clients retry aggressively; this keeps a
// broken retry loop from hammering the registry.
type LoginRateLimiter struct {
	mu       sync.Mutex
	history  map[domain.Identity][]time.Time
	limit    int
	interval time.Duration
}

func NewLoginRateLimiter(limit int, interval time.Duration) *LoginRateLimiter {
	return &LoginRateLimiter{
		history:  make(map[domain.Identity][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

func (rl *LoginRateLimiter) Allow(id domain.Identity) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[id]
	fresh := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[id] = fresh
		return false
	}

	fresh = append(fresh, now)
	rl.history[id] = fresh
	return true
}
