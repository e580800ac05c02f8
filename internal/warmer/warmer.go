// Package warmer keeps the job cache fresh for a fixed list of titles by
// re-scraping them on a cron schedule.
package warmer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/YixingZhengAu/JobSeeker/internal/jobs"
	"github.com/YixingZhengAu/JobSeeker/internal/logger"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const DefaultSchedule = "@every 6h"

// Config lists the titles to keep warm.
type Config struct {
	Schedule string   `mapstructure:"schedule"`
	Titles   []string `mapstructure:"titles"`
	Location string   `mapstructure:"location"`
}

// Queries returns one query per configured title, skipping blanks and duplicates.
func (c Config) Queries() []jobs.Query {
	seen := make(map[string]struct{}, len(c.Titles))
	queries := make([]jobs.Query, 0, len(c.Titles))
	for _, title := range c.Titles {
		q := jobs.NewQuery(title, c.Location)
		if q.IsZero() {
			continue
		}
		if _, dup := seen[q.Key()]; dup {
			continue
		}
		seen[q.Key()] = struct{}{}
		queries = append(queries, q)
	}
	return queries
}

// Refresher scrapes a query and writes it to the cache.
type Refresher interface {
	Refresh(ctx context.Context, q jobs.Query) ([]jobs.Posting, error)
}

// Warmer wraps robfig/cron and runs one refresh cycle per tick. Cycles never overlap.
type Warmer struct {
	cron      *cron.Cron
	refresher Refresher
	queries   []jobs.Query
	spec      string
	logger    *zap.Logger

	running sync.Mutex
}

func New(refresher Refresher, cfg Config, log *zap.Logger) (*Warmer, error) {
	queries := cfg.Queries()
	if len(queries) == 0 {
		return nil, errors.New("no titles configured to warm")
	}
	spec := cfg.Schedule
	if spec == "" {
		spec = DefaultSchedule
	}

	log = logger.WithFields(log, zap.String("component", "warmer"))
	return &Warmer{
		cron:      cron.New(cron.WithLogger(cronLogger{log.Sugar()})),
		refresher: refresher,
		queries:   queries,
		spec:      spec,
		logger:    log,
	}, nil
}

// Start registers the refresh job and starts the scheduler. One cycle also
// runs immediately so the cache is populated without waiting for the first tick.
func (w *Warmer) Start(ctx context.Context) error {
	_, err := w.cron.AddFunc(w.spec, func() {
		w.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule %q: %w", w.spec, err)
	}

	w.cron.Start()
	w.logger.Info("warmer started", zap.String("schedule", w.spec), zap.Int("queries", len(w.queries)))

	go w.RunOnce(ctx)

	return nil
}

// Stop stops the scheduler and waits for a running cycle to finish.
func (w *Warmer) Stop() {
	<-w.cron.Stop().Done()
	w.logger.Info("warmer stopped")
}

// RunOnce refreshes every query in order and returns how many succeeded. A
// cycle that starts while another is running is skipped.
func (w *Warmer) RunOnce(ctx context.Context) int {
	if !w.running.TryLock() {
		w.logger.Warn("previous warm cycle still running; skipping")
		return 0
	}
	defer w.running.Unlock()

	refreshed := 0
	for _, q := range w.queries {
		if ctx.Err() != nil {
			break
		}
		postings, err := w.refresher.Refresh(ctx, q)
		if err != nil {
			w.logger.Warn("warming query failed", logger.Query(q.Key()), zap.Error(err))
			continue
		}
		refreshed++
		w.logger.Info("query warmed", logger.Query(q.Key()), zap.Int("postings", len(postings)))
	}

	w.logger.Info("warm cycle finished", zap.Int("refreshed", refreshed), zap.Int("queries", len(w.queries)))
	return refreshed
}

// cronLogger routes robfig/cron's own messages into zap.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
