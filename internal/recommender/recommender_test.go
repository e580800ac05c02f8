package recommender

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/YixingZhengAu/JobSeeker/internal/analyzer"
	"github.com/YixingZhengAu/JobSeeker/internal/cache"
	"github.com/YixingZhengAu/JobSeeker/internal/filtering"
	"github.com/YixingZhengAu/JobSeeker/internal/jobs"
	"github.com/YixingZhengAu/JobSeeker/internal/ranking"
	"github.com/YixingZhengAu/JobSeeker/internal/retriever"
	"go.uber.org/zap"
)

type stubGenerator struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
}

func (s *stubGenerator) GenerateContent(context.Context, string, string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.reply, s.err
}

func (s *stubGenerator) Model() string { return "stub-model" }

func (s *stubGenerator) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// wordEmbedder embeds a text as counts of a few fixed words.
type wordEmbedder struct{}

func (wordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	words := []string{"python", "aws", "docker", "backend", "java", "sales"}
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		lower := strings.ToLower(text)
		vector := make([]float32, len(words))
		for i, w := range words {
			vector[i] = float32(strings.Count(lower, w))
		}
		out = append(out, vector)
	}
	return out, nil
}

type downFetcher struct {
	calls atomic.Int32
}

func (f *downFetcher) Fetch(context.Context, jobs.Query) ([]jobs.Posting, error) {
	f.calls.Add(1)
	return nil, jobs.ScrapeError("scrape", "fetch", errors.New("board unreachable"))
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

const profileReply = `{
	"job_titles": ["Software Engineer", "Backend Developer"],
	"mandatory_skills": ["Python", "AWS"],
	"nice_to_have_skills": ["Docker"],
	"industries": [],
	"location": null,
	"reasoning": "Backend experience in Python on AWS."
}`

type fixture struct {
	generator *stubGenerator
	store     *cache.Store
	fetcher   *downFetcher
	rec       *Recommender
}

func newFixture(t *testing.T, cfg Config, filters []filtering.Filter, filterCfg *filtering.Config) *fixture {
	t.Helper()

	log := zap.NewNop()
	generator := &stubGenerator{reply: profileReply}
	store := cache.New(cache.NewMemory(), log)
	fetcher := &downFetcher{}

	ranker, err := ranking.New(wordEmbedder{}, ranking.DefaultConfig(), log)
	if err != nil {
		t.Fatalf("ranking.New: %v", err)
	}

	rec, err := New(Deps{
		Analyzer:     analyzer.New(generator, analyzer.Config{}, 0, log),
		Retriever:    retriever.New(store, fetcher, time.Hour, retriever.Config{}, log),
		Ranker:       ranker,
		Filters:      filters,
		FilterConfig: filterCfg,
		Cache:        store,
		Model:        pinger{},
	}, cfg, log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	return &fixture{generator: generator, store: store, fetcher: fetcher, rec: rec}
}

func (f *fixture) seed(t *testing.T, title string, postings ...jobs.Posting) {
	t.Helper()
	if err := f.store.Put(context.Background(), jobs.NewQuery(title, ""), postings, time.Hour); err != nil {
		t.Fatalf("seed %q: %v", title, err)
	}
}

func job(id, title string, mandatory ...string) jobs.Posting {
	return jobs.Posting{
		URL:             fmt.Sprintf("https://jobs.example/job/%s", id),
		Title:           title,
		Company:         "Company " + id,
		MandatorySkills: mandatory,
	}
}

func seedScenario(t *testing.T, f *fixture) {
	f.seed(t, "software engineer",
		job("1", "Python Backend Engineer", "Python", "AWS", "Docker"),
		job("2", "Java Engineer", "Java"),
		job("3", "Sales Engineer", "Sales"),
		job("4", "Cloud Engineer", "AWS", "Docker"),
	)
	f.seed(t, "backend developer",
		job("1", "Python Backend Engineer", "Python", "AWS", "Docker"),
		job("5", "Backend Developer", "Python"),
	)
}

func TestRecommendEndToEndFromCache(t *testing.T) {
	f := newFixture(t, Config{}, nil, nil)
	seedScenario(t, f)

	resp, err := f.rec.Recommend(context.Background(), "5 years Python backend engineer, AWS, Docker", 3)
	if err != nil {
		t.Fatalf("Recommend returned error: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}
	if len(resp.Jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(resp.Jobs))
	}

	seen := map[string]bool{}
	for i, j := range resp.Jobs {
		if seen[j.URL] {
			t.Fatalf("duplicate url %s", j.URL)
		}
		seen[j.URL] = true
		if i > 0 && resp.Jobs[i-1].SimilarityScore < j.SimilarityScore {
			t.Fatalf("jobs not sorted by score: %v then %v", resp.Jobs[i-1].SimilarityScore, j.SimilarityScore)
		}
		if j.Rationale == "" {
			t.Fatalf("expected rationale for %s", j.URL)
		}
	}
	if resp.Jobs[0].URL != "https://jobs.example/job/1" {
		t.Fatalf("expected the full match first, got %s", resp.Jobs[0].URL)
	}
	if f.fetcher.calls.Load() != 0 {
		t.Fatalf("fresh cache entries must not be scraped, got %d scrapes", f.fetcher.calls.Load())
	}
	if resp.RequestID == "" {
		t.Fatalf("expected a request id")
	}
}

func TestRecommendIsDeterministic(t *testing.T) {
	f := newFixture(t, Config{}, nil, nil)
	seedScenario(t, f)

	first, err := f.rec.Recommend(context.Background(), "Python backend engineer", 5)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := f.rec.Recommend(context.Background(), "Python backend engineer", 5)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	for i := range first.Jobs {
		if first.Jobs[i].URL != second.Jobs[i].URL {
			t.Fatalf("ordering changed at %d: %s vs %s", i, first.Jobs[i].URL, second.Jobs[i].URL)
		}
	}
}

func TestRecommendRejectsInvalidInput(t *testing.T) {
	f := newFixture(t, Config{MaxTopN: 10}, nil, nil)

	tests := []struct {
		name        string
		description string
		topN        int
	}{
		{name: "blank description", description: "   ", topN: 3},
		{name: "zero top_n", description: "Go developer", topN: 0},
		{name: "top_n above limit", description: "Go developer", topN: 11},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := f.rec.Recommend(context.Background(), tt.description, tt.topN)
			if !jobs.IsKind(err, jobs.KindInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
			if resp.Success || resp.ErrorKind != jobs.KindInvalidInput || resp.Message == "" {
				t.Fatalf("unexpected response: %+v", resp)
			}
		})
	}

	if f.generator.callCount() != 0 {
		t.Fatalf("invalid requests must not reach the analyzer")
	}
}

func TestRecommendAnalysisFailure(t *testing.T) {
	f := newFixture(t, Config{}, nil, nil)
	f.generator.err = errors.New("quota exhausted")

	resp, err := f.rec.Recommend(context.Background(), "Go developer", 3)
	if !jobs.IsKind(err, jobs.KindAnalysis) {
		t.Fatalf("expected analysis error, got %v", err)
	}
	if resp.Success || len(resp.Jobs) != 0 {
		t.Fatalf("expected no partial recommendation, got %+v", resp)
	}
	if strings.Contains(resp.Message, "quota") {
		t.Fatalf("message must not leak internal detail: %q", resp.Message)
	}
}

func TestRecommendNoCandidates(t *testing.T) {
	f := newFixture(t, Config{}, nil, nil)

	resp, err := f.rec.Recommend(context.Background(), "Python backend engineer", 3)
	if err == nil || resp.Success {
		t.Fatalf("expected failure without candidates, got %+v", resp)
	}
	if resp.ErrorKind != jobs.KindScrape {
		t.Fatalf("expected scrape error kind, got %q", resp.ErrorKind)
	}
	if len(resp.Titles) != 2 {
		t.Fatalf("expected analyzed titles in the response, got %v", resp.Titles)
	}
	if f.fetcher.calls.Load() != 2 {
		t.Fatalf("expected one scrape per title, got %d", f.fetcher.calls.Load())
	}
}

func TestRecommendSucceedsWithOneTitle(t *testing.T) {
	f := newFixture(t, Config{}, nil, nil)
	f.seed(t, "backend developer", job("5", "Backend Developer", "Python"))

	resp, err := f.rec.Recommend(context.Background(), "Python backend engineer", 3)
	if err != nil {
		t.Fatalf("Recommend returned error: %v", err)
	}
	if len(resp.Jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(resp.Jobs))
	}
}

func TestRecommendAppliesFilters(t *testing.T) {
	f := newFixture(t, Config{}, filtering.Default(), &filtering.Config{ExcludeCompanies: []string{"Company 1"}})
	seedScenario(t, f)

	resp, err := f.rec.Recommend(context.Background(), "Python backend engineer", 10)
	if err != nil {
		t.Fatalf("Recommend returned error: %v", err)
	}
	for _, j := range resp.Jobs {
		if j.URL == "https://jobs.example/job/1" {
			t.Fatalf("excluded company must be filtered out")
		}
	}
	if len(resp.Jobs) != 4 {
		t.Fatalf("expected 4 jobs, got %d", len(resp.Jobs))
	}
}

func TestRecommendConcurrentWithFilters(t *testing.T) {
	excludeFile := filepath.Join(t.TempDir(), "exclude.json")
	dismissed := jobs.NewPostings([]jobs.Posting{job("4", "Cloud Engineer")})
	if err := dismissed.ToExcluded(time.Now()).ToFile(excludeFile); err != nil {
		t.Fatalf("write exclude file: %v", err)
	}

	f := newFixture(t, Config{}, filtering.Default(), &filtering.Config{
		ExcludeCompanies: []string{"Company 1"},
		RedFlags:         []string{"sales"},
		ExcludeFile:      excludeFile,
	})
	seedScenario(t, f)

	const workers = 8
	results := make([][]string, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := f.rec.Recommend(context.Background(), "Python backend engineer", 10)
			errs[i] = err
			if resp != nil {
				for _, j := range resp.Jobs {
					results[i] = append(results[i], j.URL)
				}
			}
		}()
	}
	wg.Wait()

	for i := range workers {
		if errs[i] != nil {
			t.Fatalf("request %d failed: %v", i, errs[i])
		}
		for _, url := range results[i] {
			switch url {
			case "https://jobs.example/job/1", "https://jobs.example/job/3", "https://jobs.example/job/4":
				t.Fatalf("request %d returned filtered posting %s", i, url)
			}
		}
		if len(results[i]) != len(results[0]) {
			t.Fatalf("request %d got %d jobs, request 0 got %d", i, len(results[i]), len(results[0]))
		}
	}
}

type slowAnalyzer struct {
	delay time.Duration
}

func (s slowAnalyzer) Analyze(context.Context, string) (*jobs.UserProfile, error) {
	time.Sleep(s.delay)
	return &jobs.UserProfile{CandidateTitles: []string{"Go Developer"}}, nil
}

type noopRetriever struct{}

func (noopRetriever) Retrieve(context.Context, []jobs.Query, int) ([]jobs.Posting, error) {
	return nil, nil
}

type noopRanker struct{}

func (noopRanker) Rank(context.Context, *jobs.UserProfile, []jobs.Posting, int) ([]jobs.ScoredCandidate, error) {
	return nil, nil
}

func TestRecommendTimesOut(t *testing.T) {
	rec, err := New(Deps{
		Analyzer:  slowAnalyzer{delay: 500 * time.Millisecond},
		Retriever: noopRetriever{},
		Ranker:    noopRanker{},
	}, Config{Timeout: 20 * time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	started := time.Now()
	resp, err := rec.Recommend(context.Background(), "Go developer", 3)
	if !jobs.IsKind(err, jobs.KindTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if resp.ErrorKind != jobs.KindTimeout || resp.Message != "request timed out" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if elapsed := time.Since(started); elapsed > 400*time.Millisecond {
		t.Fatalf("timeout was not enforced, took %s", elapsed)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t, Config{}, nil, nil)

	health := f.rec.Health(context.Background())
	if !health.Healthy() {
		t.Fatalf("expected healthy, got %+v", health)
	}
	if health.Components["cache"] != StatusOK || health.Components["model"] != StatusOK {
		t.Fatalf("unexpected components: %+v", health.Components)
	}
	if f.generator.callCount() != 0 {
		t.Fatalf("health must not run the pipeline")
	}
}

func TestHealthDegraded(t *testing.T) {
	rec, err := New(Deps{
		Analyzer:  slowAnalyzer{},
		Retriever: noopRetriever{},
		Ranker:    noopRanker{},
		Cache:     pinger{err: errors.New("connection refused")},
	}, Config{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	health := rec.Health(context.Background())
	if health.Healthy() {
		t.Fatalf("expected degraded health")
	}
	if !strings.HasPrefix(health.Components["cache"], "unreachable") {
		t.Fatalf("unexpected cache state %q", health.Components["cache"])
	}
	if health.Components["model"] != "not configured" {
		t.Fatalf("unexpected model state %q", health.Components["model"])
	}
}
