package ratelimiter

import (
	"context"
	"sync"
	"time"
)

type window struct {
	start time.Time
	count int
}

type FixedWindowRateLimiter struct {
	sync.Mutex
	clients map[string]*window // keyed by client ip
	limit   int
	window  time.Duration
	now     func() time.Time
}

func NewFixedWindowLimiter(limit int, w time.Duration) *FixedWindowRateLimiter {
	return &FixedWindowRateLimiter{
		clients: make(map[string]*window),
		limit:   limit,
		window:  w,
		now:     time.Now,
	}
}

func (rl *FixedWindowRateLimiter) Allow(ip string) (bool, time.Duration) {
	rl.Lock()
	defer rl.Unlock()

	now := rl.now()
	c, ok := rl.clients[ip]
	if !ok || now.Sub(c.start) >= rl.window {
		rl.clients[ip] = &window{start: now, count: 1}
		return true, 0
	}

	if c.count < rl.limit {
		c.count++
		return true, 0
	}

	return false, c.start.Add(rl.window).Sub(now)
}

// Cleanup drops expired windows every window period until ctx is done.
func (rl *FixedWindowRateLimiter) Cleanup(ctx context.Context) {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.sweep()
		case <-ctx.Done():
			return
		}
	}
}

func (rl *FixedWindowRateLimiter) sweep() {
	rl.Lock()
	defer rl.Unlock()

	now := rl.now()
	for ip, c := range rl.clients {
		if now.Sub(c.start) >= rl.window {
			delete(rl.clients, ip)
		}
	}
}
