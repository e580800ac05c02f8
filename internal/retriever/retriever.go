// Package retriever collects candidate postings for a set of queries, reading
// through the job cache and scraping on a miss.
package retriever

import (
	"context"
	"time"

	"github.com/YixingZhengAu/JobSeeker/internal/cache"
	"github.com/YixingZhengAu/JobSeeker/internal/jobs"
	"github.com/YixingZhengAu/JobSeeker/internal/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultMaxCandidates = 50
	DefaultMaxPerTitle   = 20
	DefaultConcurrency   = 4
	DefaultScrapeTimeout = 90 * time.Second
)

// Cache is the part of the job cache the retriever reads and writes.
type Cache interface {
	Get(ctx context.Context, q jobs.Query) (*cache.Entry, bool, error)
	Stale(ctx context.Context, q jobs.Query) (*cache.Entry, bool, error)
	Put(ctx context.Context, q jobs.Query, postings []jobs.Posting, ttl time.Duration) error
}

// Fetcher scrapes postings for a query.
type Fetcher interface {
	Fetch(ctx context.Context, q jobs.Query) ([]jobs.Posting, error)
}

type Config struct {
	MaxCandidates int `mapstructure:"max-candidates" validate:"gte=1"`
	MaxPerTitle   int `mapstructure:"max-per-title" validate:"gte=1"`
	Concurrency   int `mapstructure:"concurrency" validate:"gte=1"`
	// ScrapeTimeout bounds a shared scrape. It is independent of the
	// deadlines of the requests waiting on it.
	ScrapeTimeout time.Duration `mapstructure:"scrape-timeout" validate:"gte=0"`
}

// Source tells where a query's postings came from.
type Source string

const (
	SourceCache  Source = "cache"
	SourceScrape Source = "scrape"
	SourceStale  Source = "stale"
	SourceNone   Source = "none"
)

// Retriever is safe for concurrent use. Concurrent misses on the same query
// share one scrape.
type Retriever struct {
	cache   Cache
	fetcher Fetcher
	ttl     time.Duration
	cfg     Config
	flight  singleflight.Group
	logger  *zap.Logger
}

func New(c Cache, fetcher Fetcher, ttl time.Duration, cfg Config, log *zap.Logger) *Retriever {
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = DefaultMaxCandidates
	}
	if cfg.MaxPerTitle <= 0 {
		cfg.MaxPerTitle = DefaultMaxPerTitle
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.ScrapeTimeout <= 0 {
		cfg.ScrapeTimeout = DefaultScrapeTimeout
	}
	return &Retriever{
		cache:   c,
		fetcher: fetcher,
		ttl:     ttl,
		cfg:     cfg,
		logger:  logger.WithFields(log, zap.String("component", "retriever")),
	}
}

// Retrieve returns the postings for queries, earlier queries first, without
// duplicate urls and capped at the configured candidate limit. Each query
// contributes at most maxPerTitle postings; a non-positive value uses the
// configured default. Every query is looked up even after the cap is reached,
// so the cache stays warm. A query that cannot be served contributes nothing;
// only cancellation of ctx fails the call.
func (r *Retriever) Retrieve(ctx context.Context, queries []jobs.Query, maxPerTitle int) ([]jobs.Posting, error) {
	if maxPerTitle <= 0 {
		maxPerTitle = r.cfg.MaxPerTitle
	}

	results := make([][]jobs.Posting, len(queries))
	sources := make([]string, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for i, q := range queries {
		g.Go(func() error {
			postings, source, err := r.lookup(gctx, q)
			if err != nil {
				return err
			}
			results[i] = postings
			sources[i] = string(source)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make([]jobs.Posting, 0, r.cfg.MaxCandidates)
	seen := make(map[string]struct{})
	discarded := 0

	for _, postings := range results {
		if len(postings) > maxPerTitle {
			postings = postings[:maxPerTitle]
		}
		for _, p := range postings {
			if _, dup := seen[p.URL]; dup {
				continue
			}
			seen[p.URL] = struct{}{}
			if len(merged) >= r.cfg.MaxCandidates {
				discarded++
				continue
			}
			merged = append(merged, p)
		}
	}

	r.logger.Info("candidates retrieved",
		zap.Int("queries", len(queries)),
		zap.Strings("sources", sources),
		zap.Int("candidates", len(merged)),
		zap.Int("discarded_over_cap", discarded),
	)
	return merged, nil
}

// Refresh scrapes q and stores the result regardless of the cached entry's age.
// Callers on the same query share one scrape; it runs detached from any
// caller's context, and each caller waits only as long as its own ctx allows.
func (r *Retriever) Refresh(ctx context.Context, q jobs.Query) ([]jobs.Posting, error) {
	ch := r.flight.DoChan(q.Key(), func() (any, error) {
		scrapeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.ScrapeTimeout)
		defer cancel()

		postings, err := r.fetcher.Fetch(scrapeCtx, q)
		if err != nil {
			return nil, err
		}
		if err := r.cache.Put(scrapeCtx, q, postings, r.ttl); err != nil {
			r.logger.Warn("storing scraped postings failed", logger.Query(q.Key()), zap.Error(err))
		}
		return postings, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			r.logger.Debug("scrape shared with a concurrent request", logger.Query(q.Key()))
		}
		return res.Val.([]jobs.Posting), nil
	}
}

// lookup serves q from the cache, scraping on a miss or expiry. When the
// scrape fails the newest expired entry is used, if any.
func (r *Retriever) lookup(ctx context.Context, q jobs.Query) ([]jobs.Posting, Source, error) {
	log := r.logger.With(logger.Query(q.Key()))

	entry, ok, err := r.cache.Get(ctx, q)
	if err != nil {
		if ctx.Err() != nil {
			return nil, SourceNone, ctx.Err()
		}
		log.Warn("cache read failed; scraping", zap.Error(err))
	}
	if ok {
		log.Debug("cache hit", zap.Int("postings", len(entry.Postings)))
		return entry.Postings, SourceCache, nil
	}

	postings, err := r.Refresh(ctx, q)
	if err == nil {
		return postings, SourceScrape, nil
	}
	if ctx.Err() != nil {
		return nil, SourceNone, ctx.Err()
	}
	log.Warn("scrape failed; trying expired cache entry", zap.Error(err))

	stale, ok, staleErr := r.cache.Stale(ctx, q)
	if staleErr != nil {
		log.Warn("reading expired cache entry failed", zap.Error(staleErr))
	}
	if ok {
		log.Info("serving expired cache entry", zap.Time("fetched_at", stale.FetchedAt))
		return stale.Postings, SourceStale, nil
	}

	log.Warn("no postings available for query")
	return nil, SourceNone, nil
}
