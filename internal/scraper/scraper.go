// Package scraper fetches job listings from an external job board.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/YixingZhengAu/JobSeeker/internal/jobs"
	"github.com/YixingZhengAu/JobSeeker/internal/logger"
	"github.com/YixingZhengAu/JobSeeker/internal/utils"
	"go.uber.org/zap"
)

// Retry configures backoff and politeness towards the board.
type Retry struct {
	Retries     int           `mapstructure:"retries" validate:"gte=0"`
	BaseDelay   time.Duration `mapstructure:"base-delay" validate:"gte=0"`
	Factor      float64       `mapstructure:"factor" validate:"gte=1"`
	MinInterval time.Duration `mapstructure:"min-interval" validate:"gte=0"`
}

// DefaultRetry is three retries at 1s, 2s and 4s with 500ms between requests to a host.
var DefaultRetry = Retry{Retries: 3, BaseDelay: time.Second, Factor: 2, MinInterval: 500 * time.Millisecond}

// Enricher fills structured fields of a posting from the text of its own page.
type Enricher interface {
	Enrich(ctx context.Context, posting jobs.Posting, pageText string) (jobs.Posting, error)
}

// Scraper turns a Query into postings. It is safe for concurrent use.
type Scraper struct {
	board    Board
	retry    Retry
	loader   PageLoader
	limiter  Limiter
	enricher Enricher
	logger   *zap.Logger

	now  func() time.Time
	wait func(context.Context, time.Duration) error
}

func New(board Board, retry Retry, loader PageLoader, limiter Limiter, log *zap.Logger) *Scraper {
	if board.MaxPages <= 0 {
		board.MaxPages = 1
	}
	if board.Format == "" {
		board.Format = FormatHTML
	}
	if limiter == nil {
		limiter = NewHostLimiter(retry.MinInterval)
	}
	return &Scraper{
		board:   board,
		retry:   retry,
		loader:  loader,
		limiter: limiter,
		logger:  logger.WithFields(log, zap.String("component", "scraper")),
		now:     time.Now,
		wait:    utils.WaitFor,
	}
}

// WithEnricher enables posting detail enrichment.
func (s *Scraper) WithEnricher(e Enricher) *Scraper {
	s.enricher = e
	return s
}

// Fetch returns the postings the board lists for q, in board order and without
// duplicate urls. A zero-length result is a valid answer. Any page failure
// fails the whole fetch with a scrape error so callers never store half a result.
func (s *Scraper) Fetch(ctx context.Context, q jobs.Query) ([]jobs.Posting, error) {
	if q.IsZero() {
		return nil, jobs.InvalidInputError("scrape", "empty query")
	}

	log := s.logger.With(logger.Query(q.Key()))
	var all []jobs.Posting

	for page := 1; page <= s.board.MaxPages; page++ {
		pageURL, err := s.board.SearchURL(q, page)
		if err != nil {
			return nil, jobs.ScrapeError("scrape", "build search url", err)
		}

		body, err := s.load(ctx, pageURL)
		if err != nil {
			return nil, jobs.ScrapeError("scrape", fmt.Sprintf("fetch %q page %d", q.Key(), page), err)
		}

		listing, err := s.parse(pageURL, body)
		if err != nil {
			return nil, jobs.ScrapeError("scrape", fmt.Sprintf("parse %q page %d", q.Key(), page), err)
		}

		log.Debug("listing page parsed", zap.Int("page", page), zap.Int("postings", len(listing.Postings)), zap.Bool("has_next", listing.HasNext))

		all = append(all, listing.Postings...)
		if !listing.HasNext || len(listing.Postings) == 0 {
			break
		}
	}

	all = jobs.DedupByURL(all)
	fetchedAt := s.now().UTC()
	for i := range all {
		all[i].FetchedAt = fetchedAt
	}

	if s.enricher != nil && s.board.EnrichDetails {
		if err := s.enrich(ctx, all); err != nil {
			return nil, jobs.ScrapeError("scrape", fmt.Sprintf("enrich %q", q.Key()), err)
		}
	}

	log.Info("scrape finished", zap.Int("postings", len(all)))
	return all, nil
}

func (s *Scraper) parse(pageURL string, body []byte) (*Listing, error) {
	if s.board.Format == FormatJSON {
		return ParseListingJSON(pageURL, body)
	}
	return ParseListingHTML(pageURL, body)
}

// load fetches rawURL through the rate limiter, retrying transient failures
// with exponential backoff. Non-transient failures return immediately.
func (s *Scraper) load(ctx context.Context, rawURL string) ([]byte, error) {
	host := hostOf(rawURL)

	var lastErr error
	for attempt := 0; attempt <= s.retry.Retries; attempt++ {
		if attempt > 0 {
			delay := utils.Backoff(s.retry.BaseDelay, s.retry.Factor, attempt-1)
			s.logger.Debug("retrying request",
				zap.String("url", rawURL),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if err := s.wait(ctx, delay); err != nil {
				return nil, err
			}
		}

		if err := s.limiter.Wait(ctx, host); err != nil {
			return nil, err
		}

		body, err := s.loader.Load(ctx, rawURL)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !isTransient(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("giving up after %d attempts: %w", s.retry.Retries+1, lastErr)
}

// enrich replaces card-level postings with model-extracted detail. A posting
// whose page cannot be loaded or analyzed keeps its card fields.
func (s *Scraper) enrich(ctx context.Context, postings []jobs.Posting) error {
	for i := range postings {
		body, err := s.load(ctx, postings[i].URL)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("loading posting page failed", zap.String("url", postings[i].URL), zap.Error(err))
			continue
		}

		text, err := ExtractMainText(body)
		if err != nil || text == "" {
			s.logger.Warn("posting page has no readable text", zap.String("url", postings[i].URL), zap.Error(err))
			continue
		}

		enriched, err := s.enricher.Enrich(ctx, postings[i], text)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			s.logger.Warn("posting enrichment failed", zap.String("url", postings[i].URL), zap.Error(err))
			continue
		}

		enriched.URL = postings[i].URL
		enriched.FetchedAt = postings[i].FetchedAt
		postings[i] = enriched
	}
	return nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Host
}
