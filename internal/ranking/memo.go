package ranking

import (
	"sync"
	"time"

	"github.com/YixingZhengAu/JobSeeker/internal/jobs"
)

const defaultMemoSize = 10000

// embeddingMemo remembers posting vectors by url and fetch time, so a refreshed
// posting is embedded again while a cached one is not.
type embeddingMemo struct {
	mu      sync.Mutex
	max     int
	vectors map[string][]float32
}

func newEmbeddingMemo(max int) *embeddingMemo {
	if max <= 0 {
		max = defaultMemoSize
	}
	return &embeddingMemo{max: max, vectors: make(map[string][]float32)}
}

func memoKey(p *jobs.Posting) string {
	return p.URL + "|" + p.FetchedAt.UTC().Format(time.RFC3339Nano)
}

func (m *embeddingMemo) get(key string) ([]float32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vectors[key]
	return v, ok
}

func (m *embeddingMemo) put(key string, v []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.vectors) >= m.max {
		m.vectors = make(map[string][]float32)
	}
	m.vectors[key] = v
}

func (m *embeddingMemo) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.vectors)
}
