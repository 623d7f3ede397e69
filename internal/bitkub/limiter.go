package bitkub

import (
	"context"
	"sync"
	"time"

	"bitkub-trade-bot-go/internal/config"
	"golang.org/x/time/rate"
)

// Limiter blocks until the next request may be sent. *rate.Limiter satisfies it.
type Limiter interface {
	Wait(ctx context.Context) error
}

// WindowLimiter admits at most limit requests per rolling window. Once the
// window is full the caller sleeps until its oldest request expires and the
// whole window is cleared, mirroring how the exchange counts requests.
type WindowLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	stamps []time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewWindowLimiter creates a WindowLimiter using the wall clock.
func NewWindowLimiter(limit int, window time.Duration) *WindowLimiter {
	if limit < 1 {
		limit = 1
	}
	return &WindowLimiter{
		limit:  limit,
		window: window,
		stamps: make([]time.Time, 0, limit),
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// Wait records a request, sleeping first if the window is full.
// The lock is held while sleeping so concurrent callers queue behind it.
func (l *WindowLimiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.evict(now)

	if len(l.stamps) >= l.limit {
		if wait := l.stamps[0].Add(l.window).Sub(now); wait > 0 {
			if err := l.sleep(ctx, wait); err != nil {
				return err
			}
		}
		l.stamps = l.stamps[:0]
		now = l.now()
	}

	l.stamps = append(l.stamps, now)
	return nil
}

// Len returns the number of requests counted in the current window.
func (l *WindowLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evict(l.now())
	return len(l.stamps)
}

func (l *WindowLimiter) evict(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.stamps) && !l.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[i:]...)
	}
}

// NewLimiter builds the limiter selected by cfg.RateLimiter.
func NewLimiter(cfg *config.Bitkub) Limiter {
	window := time.Duration(cfg.RateWindow) * time.Second
	if cfg.RateLimiter == "token" {
		// rate.Limit is requests per second.
		return rate.NewLimiter(rate.Limit(float64(cfg.RateLimit)/window.Seconds()), cfg.RateLimit)
	}
	return NewWindowLimiter(cfg.RateLimit, window)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
