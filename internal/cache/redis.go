package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/YixingZhengAu/JobSeeker/internal/jobs"
	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "jobseeker:"

// Redis stores postings as "<prefix>posting:<url>" and records as
// "<prefix>query:<key>", both JSON encoded.
type Redis struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
}

// NewRedisClient parses redisURL and verifies connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL(%q): %w", redisURL, err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return client, nil
}

// NewRedis wraps client. retention bounds how long keys are physically kept
// (0 keeps them forever); logical expiry is governed by the record TTL.
func NewRedis(client redis.UniversalClient, prefix string, retention time.Duration) *Redis {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &Redis{client: client, prefix: prefix, retention: retention}
}

func (r *Redis) recordKey(key string) string { return r.prefix + "query:" + key }

func (r *Redis) postingKey(url string) string { return r.prefix + "posting:" + url }

func (r *Redis) LoadRecord(ctx context.Context, key string) (*Record, error) {
	data, err := r.client.Get(ctx, r.recordKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &record, nil
}

func (r *Redis) LoadPostings(ctx context.Context, urls []string) (map[string]jobs.Posting, error) {
	found := make(map[string]jobs.Posting, len(urls))
	if len(urls) == 0 {
		return found, nil
	}

	keys := make([]string, len(urls))
	for i, url := range urls {
		keys[i] = r.postingKey(url)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		var posting jobs.Posting
		if err := json.Unmarshal([]byte(raw), &posting); err != nil {
			return nil, fmt.Errorf("decode posting %q: %w", urls[i], err)
		}
		found[urls[i]] = posting
	}
	return found, nil
}

// Save writes postings and the record inside one MULTI/EXEC transaction.
func (r *Redis) Save(ctx context.Context, record Record, postings []jobs.Posting) error {
	recordData, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	encoded := make([][]byte, len(postings))
	for i := range postings {
		if encoded[i], err = json.Marshal(postings[i]); err != nil {
			return fmt.Errorf("encode posting %q: %w", postings[i].URL, err)
		}
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i := range postings {
			pipe.Set(ctx, r.postingKey(postings[i].URL), encoded[i], r.retention)
		}
		pipe.Set(ctx, r.recordKey(record.Query), recordData, r.retention)
		return nil
	})
	return err
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
