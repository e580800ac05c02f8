package cache

import (
	"context"
	"slices"
	"sync"

	"github.com/YixingZhengAu/JobSeeker/internal/jobs"
)

// Memory is an in-process Backend. It does not survive restarts and is meant
// for tests and local runs.
type Memory struct {
	mu       sync.RWMutex
	records  map[string]Record
	postings map[string]jobs.Posting
}

func NewMemory() *Memory {
	return &Memory{
		records:  make(map[string]Record),
		postings: make(map[string]jobs.Posting),
	}
}

func (m *Memory) LoadRecord(_ context.Context, key string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	record.URLs = slices.Clone(record.URLs)
	return &record, nil
}

func (m *Memory) LoadPostings(_ context.Context, urls []string) (map[string]jobs.Posting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	found := make(map[string]jobs.Posting, len(urls))
	for _, url := range urls {
		if posting, ok := m.postings[url]; ok {
			found[url] = clonePosting(posting)
		}
	}
	return found, nil
}

func (m *Memory) Save(_ context.Context, record Record, postings []jobs.Posting) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, posting := range postings {
		m.postings[posting.URL] = clonePosting(posting)
	}
	record.URLs = slices.Clone(record.URLs)
	m.records[record.Query] = record
	return nil
}

// Delete removes a stored posting. Used to simulate eviction.
func (m *Memory) Delete(url string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.postings, url)
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

func clonePosting(p jobs.Posting) jobs.Posting {
	p.MandatorySkills = slices.Clone(p.MandatorySkills)
	p.NiceToHaveSkills = slices.Clone(p.NiceToHaveSkills)
	p.SoftSkills = slices.Clone(p.SoftSkills)
	p.Industries = slices.Clone(p.Industries)
	p.Responsibilities = slices.Clone(p.Responsibilities)
	return p
}
