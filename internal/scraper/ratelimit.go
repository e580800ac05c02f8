package scraper

import (
	"context"
	"sync"
	"time"

	"github.com/YixingZhengAu/JobSeeker/internal/utils"
)

// Limiter delays requests per host.
type Limiter interface {
	Wait(ctx context.Context, host string) error
}

// HostLimiter enforces a minimum interval between consecutive requests to the
// same host. Each caller reserves the next free slot under the lock and then
// waits outside it, so hosts do not block each other.
type HostLimiter struct {
	interval time.Duration
	now      func() time.Time
	wait     func(context.Context, time.Duration) error

	mu   sync.Mutex
	next map[string]time.Time
}

func NewHostLimiter(interval time.Duration) *HostLimiter {
	return &HostLimiter{
		interval: interval,
		now:      time.Now,
		wait:     utils.WaitFor,
		next:     make(map[string]time.Time),
	}
}

func (l *HostLimiter) Wait(ctx context.Context, host string) error {
	if l == nil || l.interval <= 0 {
		return ctx.Err()
	}

	l.mu.Lock()
	now := l.now()
	slot := now
	if next, ok := l.next[host]; ok && next.After(now) {
		slot = next
	}
	l.next[host] = slot.Add(l.interval)
	l.mu.Unlock()

	return l.wait(ctx, slot.Sub(now))
}
