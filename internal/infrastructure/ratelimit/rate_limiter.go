package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	ActionSendMessage = "send_message"
	ActionSendOffer   = "send_offer"
	ActionCreate      = "create_request"
	ActionCallable    = "callable"
	ActionSubscribe   = "subscribe"
)

// Limit is a steady refill rate plus the burst allowed on top of it.
type Limit struct {
	Every time.Duration
	Burst int
}

func DefaultLimits() map[string]Limit {
	return map[string]Limit{
		// 10 messages per minute.
		ActionSendMessage: {Every: 6 * time.Second, Burst: 10},
		ActionSendOffer:   {Every: 12 * time.Second, Burst: 5},
		ActionCreate:      {Every: time.Minute, Burst: 5},
		ActionCallable:    {Every: 2 * time.Second, Burst: 30},
		ActionSubscribe:   {Every: time.Second, Burst: 30},
	}
}

var defaultLimit = Limit{Every: 3 * time.Second, Burst: 20}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per (caller, action).
type RateLimiter struct {
	limits  map[string]Limit
	entries map[string]*entry
	mutex   sync.Mutex
	now     func() time.Time
}

func NewRateLimiter(limits map[string]Limit) *RateLimiter {
	if limits == nil {
		limits = DefaultLimits()
	}
	return &RateLimiter{
		limits:  limits,
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Allow consumes a token for key and action. When refused it reports how long until the next token.
func (rl *RateLimiter) Allow(key, action string) (bool, time.Duration) {
	now := rl.now()

	rl.mutex.Lock()
	e, ok := rl.entries[key+":"+action]
	if !ok {
		limit, known := rl.limits[action]
		if !known {
			limit = defaultLimit
		}
		e = &entry{limiter: rate.NewLimiter(rate.Every(limit.Every), limit.Burst)}
		rl.entries[key+":"+action] = e
	}
	e.lastSeen = now
	rl.mutex.Unlock()

	if e.limiter.AllowN(now, 1) {
		return true, 0
	}

	r := e.limiter.ReserveN(now, 1)
	wait := r.DelayFrom(now)
	r.CancelAt(now)
	return false, wait
}

// Cleanup forgets callers idle for longer than idle.
func (rl *RateLimiter) Cleanup(idle time.Duration) int {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	removed := 0
	for key, e := range rl.entries {
		if now.Sub(e.lastSeen) > idle {
			delete(rl.entries, key)
			removed++
		}
	}
	return removed
}

func (rl *RateLimiter) StartCleanupRoutine(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.Cleanup(time.Hour)
			}
		}
	}()
}
