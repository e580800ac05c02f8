package recommender

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"

	healthCheckTimeout = 10 * time.Second
)

// Health reports whether the job cache and the model backend are reachable.
type Health struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

// Healthy reports whether every component answered.
func (h *Health) Healthy() bool {
	return h.Status == StatusOK
}

// Health pings the cache and the model backend concurrently. It never runs the pipeline.
func (r *Recommender) Health(ctx context.Context) *Health {
	return CheckHealth(ctx, r.deps.Cache, r.deps.Model, r.logger)
}

// CheckHealth pings cache and model concurrently. A nil pinger is reported as not configured.
func CheckHealth(ctx context.Context, cache, model Pinger, log *zap.Logger) *Health {
	checks := map[string]Pinger{
		"cache": cache,
		"model": model,
	}

	var mu sync.Mutex
	health := &Health{Status: StatusOK, Components: make(map[string]string, len(checks))}

	var g errgroup.Group
	for name, pinger := range checks {
		g.Go(func() error {
			state := StatusOK
			if pinger == nil {
				state = "not configured"
			} else {
				checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
				defer cancel()
				if err := pinger.Ping(checkCtx); err != nil {
					log.Warn("health check failed", zap.String("dependency", name), zap.Error(err))
					state = "unreachable: " + err.Error()
				}
			}

			mu.Lock()
			defer mu.Unlock()
			health.Components[name] = state
			if state != StatusOK {
				health.Status = StatusDegraded
			}
			return nil
		})
	}
	_ = g.Wait()

	return health
}
