package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/YixingZhengAu/JobSeeker/internal/jobs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS job_postings (
	url        TEXT PRIMARY KEY,
	data       JSONB NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS cache_entries (
	query      TEXT PRIMARY KEY,
	urls       JSONB NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL,
	ttl_ms     BIGINT NOT NULL
);`

// Postgres keeps postings and records in two tables and writes them in one transaction.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgresPool creates and verifies a pgxpool connection pool.
func NewPostgresPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	return pool, nil
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Migrate creates the cache tables when missing.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate cache schema: %w", err)
	}
	return nil
}

func (p *Postgres) LoadRecord(ctx context.Context, key string) (*Record, error) {
	var (
		rawURLs []byte
		record  = Record{Query: key}
		ttl     int64
	)
	err := p.pool.QueryRow(ctx,
		`SELECT urls, fetched_at, ttl_ms FROM cache_entries WHERE query = $1`, key,
	).Scan(&rawURLs, &record.FetchedAt, &ttl)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(rawURLs, &record.URLs); err != nil {
		return nil, fmt.Errorf("decode record urls: %w", err)
	}
	record.TTL = time.Duration(ttl) * time.Millisecond
	return &record, nil
}

func (p *Postgres) LoadPostings(ctx context.Context, urls []string) (map[string]jobs.Posting, error) {
	found := make(map[string]jobs.Posting, len(urls))
	if len(urls) == 0 {
		return found, nil
	}

	rows, err := p.pool.Query(ctx, `SELECT url, data FROM job_postings WHERE url = ANY($1)`, urls)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			url  string
			data []byte
		)
		if err := rows.Scan(&url, &data); err != nil {
			return nil, err
		}
		var posting jobs.Posting
		if err := json.Unmarshal(data, &posting); err != nil {
			return nil, fmt.Errorf("decode posting %q: %w", url, err)
		}
		found[url] = posting
	}
	return found, rows.Err()
}

func (p *Postgres) Save(ctx context.Context, record Record, postings []jobs.Posting) error {
	urls, err := json.Marshal(record.URLs)
	if err != nil {
		return fmt.Errorf("encode record urls: %w", err)
	}

	batch := &pgx.Batch{}
	for i := range postings {
		data, err := json.Marshal(postings[i])
		if err != nil {
			return fmt.Errorf("encode posting %q: %w", postings[i].URL, err)
		}
		batch.Queue(`
			INSERT INTO job_postings (url, data, fetched_at) VALUES ($1, $2, $3)
			ON CONFLICT (url) DO UPDATE SET data = EXCLUDED.data, fetched_at = EXCLUDED.fetched_at`,
			postings[i].URL, data, postings[i].FetchedAt)
	}
	batch.Queue(`
		INSERT INTO cache_entries (query, urls, fetched_at, ttl_ms) VALUES ($1, $2, $3, $4)
		ON CONFLICT (query) DO UPDATE SET urls = EXCLUDED.urls, fetched_at = EXCLUDED.fetched_at, ttl_ms = EXCLUDED.ttl_ms`,
		record.Query, urls, record.FetchedAt, record.TTL.Milliseconds())

	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
