package scraper

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostLimiterSpacesRequestsToSameHost(t *testing.T) {
	const interval = 60 * time.Millisecond
	limiter := NewHostLimiter(interval)
	ctx := context.Background()

	require.NoError(t, limiter.Wait(ctx, "board.example"))
	first := time.Now()
	require.NoError(t, limiter.Wait(ctx, "board.example"))

	assert.GreaterOrEqual(t, time.Since(first), interval-5*time.Millisecond)
}

func TestHostLimiterReservesSlots(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewHostLimiter(500 * time.Millisecond)
	limiter.now = func() time.Time { return base }

	var mu sync.Mutex
	var waits []time.Duration
	limiter.wait = func(_ context.Context, d time.Duration) error {
		mu.Lock()
		defer mu.Unlock()
		waits = append(waits, d)
		return nil
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.Wait(ctx, "a.example"))
	}
	require.NoError(t, limiter.Wait(ctx, "b.example"))

	assert.Equal(t, []time.Duration{0, 500 * time.Millisecond, time.Second, 0}, waits)
}

func TestHostLimiterHonoursCancellation(t *testing.T) {
	limiter := NewHostLimiter(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, limiter.Wait(ctx, "board.example"))
	cancel()
	assert.ErrorIs(t, limiter.Wait(ctx, "board.example"), context.Canceled)
}
