// Package cache persists scraped postings and the per-query result lists that point at them.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/YixingZhengAu/JobSeeker/internal/jobs"
	"github.com/YixingZhengAu/JobSeeker/internal/logger"
	"go.uber.org/zap"
)

// ErrNotFound is returned by backends when a record does not exist.
var ErrNotFound = errors.New("cache: not found")

// Record is the stored form of a CacheEntry: the query's ordered posting urls.
type Record struct {
	Query     string        `json:"query"`
	URLs      []string      `json:"urls"`
	FetchedAt time.Time     `json:"fetched_at"`
	TTL       time.Duration `json:"ttl"`
}

// Backend is a durable key/value layout for postings and query records.
// Save must make the postings and the record visible atomically: a reader
// either sees the previous record or the new record with all its postings.
type Backend interface {
	LoadRecord(ctx context.Context, key string) (*Record, error)
	LoadPostings(ctx context.Context, urls []string) (map[string]jobs.Posting, error)
	Save(ctx context.Context, record Record, postings []jobs.Posting) error
	Ping(ctx context.Context) error
	Close() error
}

// Entry is a resolved cache entry.
type Entry struct {
	Query     jobs.Query
	Postings  []jobs.Posting
	FetchedAt time.Time
	TTL       time.Duration
}

// Expired reports whether the entry is older than its TTL at now.
func (e *Entry) Expired(now time.Time) bool {
	return !now.Before(e.FetchedAt.Add(e.TTL))
}

// Store is the job cache. It is safe for concurrent use.
type Store struct {
	backend Backend
	logger  *zap.Logger
	now     func() time.Time
	locks   *keyedMutex
}

// Option customizes a Store.
type Option func(*Store)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(backend Backend, log *zap.Logger, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		logger:  logger.WithFields(log, zap.String("component", "cache")),
		now:     time.Now,
		locks:   newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the entry for q when it exists and has not expired.
func (s *Store) Get(ctx context.Context, q jobs.Query) (*Entry, bool, error) {
	entry, ok, err := s.Stale(ctx, q)
	if err != nil || !ok {
		return nil, false, err
	}
	if entry.Expired(s.now()) {
		s.logger.Debug("cache entry expired", logger.Query(q.Key()), zap.Time("fetched_at", entry.FetchedAt))
		return nil, false, nil
	}
	return entry, true, nil
}

// Stale returns the entry for q regardless of its age. It serves as the
// fallback when a refresh fails.
func (s *Store) Stale(ctx context.Context, q jobs.Query) (*Entry, bool, error) {
	record, err := s.backend.LoadRecord(ctx, q.Key())
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load cache record %q: %w", q.Key(), err)
	}

	found, err := s.backend.LoadPostings(ctx, record.URLs)
	if err != nil {
		return nil, false, fmt.Errorf("load postings for %q: %w", q.Key(), err)
	}

	postings := make([]jobs.Posting, 0, len(record.URLs))
	for _, url := range record.URLs {
		posting, ok := found[url]
		if !ok {
			s.logger.Warn("cache entry references a missing posting; treating as absent",
				logger.Query(q.Key()), zap.String("url", url))
			return nil, false, nil
		}
		postings = append(postings, posting)
	}

	return &Entry{
		Query:     q,
		Postings:  postings,
		FetchedAt: record.FetchedAt,
		TTL:       record.TTL,
	}, true, nil
}

// minTTL is the smallest TTL every backend stores without rounding it to zero.
const minTTL = time.Millisecond

// Put stores postings under q, replacing any previous entry for q and any
// stored posting with the same url. Puts for the same query are serialized.
func (s *Store) Put(ctx context.Context, q jobs.Query, postings []jobs.Posting, ttl time.Duration) error {
	if q.IsZero() {
		return fmt.Errorf("cache put: empty query")
	}
	if ttl < minTTL {
		return fmt.Errorf("cache put %q: ttl must be at least %s", q.Key(), minTTL)
	}

	postings = jobs.DedupByURL(postings)
	urls := make([]string, 0, len(postings))
	for i := range postings {
		if err := postings[i].Validate(); err != nil {
			return fmt.Errorf("cache put %q: %w", q.Key(), err)
		}
		urls = append(urls, postings[i].URL)
	}

	unlock := s.locks.Lock(q.Key())
	defer unlock()

	record := Record{
		Query:     q.Key(),
		URLs:      urls,
		FetchedAt: s.now().UTC(),
		TTL:       ttl,
	}

	if err := s.backend.Save(ctx, record, postings); err != nil {
		return fmt.Errorf("save cache entry %q: %w", q.Key(), err)
	}

	s.logger.Debug("cache entry stored", logger.Query(q.Key()), zap.Int("postings", len(postings)))
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}

func (s *Store) Close() error {
	return s.backend.Close()
}

// keyedMutex hands out one mutex per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
