package utils

import (
	"context"
	"math"
	"strings"
	"time"
)

var sleep = time.Sleep

// WaitFor blocks for d or until ctx is done, whichever comes first.
func WaitFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	pause := sleep
	done := make(chan struct{})
	go func() {
		defer close(done)
		pause(d)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Backoff returns the delay before retry number attempt (zero based): base * factor^attempt.
func Backoff(base time.Duration, factor float64, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if factor < 1 {
		factor = 1
	}
	if attempt < 0 {
		attempt = 0
	}
	return time.Duration(float64(base) * math.Pow(factor, float64(attempt)))
}

// TruncateForLog shortens the provided string to the specified limit, appending an ellipsis when truncated.
func TruncateForLog(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
