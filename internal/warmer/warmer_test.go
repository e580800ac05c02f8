package warmer

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/YixingZhengAu/JobSeeker/internal/jobs"
	"go.uber.org/zap"
)

type fakeRefresher struct {
	mu      sync.Mutex
	keys    []string
	fail    map[string]bool
	entered chan struct{}
	block   chan struct{}
}

func (f *fakeRefresher) Refresh(_ context.Context, q jobs.Query) ([]jobs.Posting, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, q.Key())
	if f.fail[q.Key()] {
		return nil, errors.New("board down")
	}
	return []jobs.Posting{{URL: "https://jobs.example/job/" + q.Title}}, nil
}

func (f *fakeRefresher) refreshed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keys...)
}

func TestConfigQueries(t *testing.T) {
	cfg := Config{Titles: []string{"Go Developer", " ", "go  developer", "SRE"}, Location: "Sydney"}

	var keys []string
	for _, q := range cfg.Queries() {
		keys = append(keys, q.Key())
	}

	want := []string{"go developer|sydney", "sre|sydney"}
	if !reflect.DeepEqual(keys, want) {
		t.Fatalf("unexpected queries: got %v want %v", keys, want)
	}
}

func TestNewRequiresTitles(t *testing.T) {
	if _, err := New(&fakeRefresher{}, Config{}, zap.NewNop()); err == nil {
		t.Fatalf("expected error without titles")
	}
}

func TestRunOnceContinuesPastFailures(t *testing.T) {
	refresher := &fakeRefresher{fail: map[string]bool{"data engineer": true}}
	w, err := New(refresher, Config{Titles: []string{"Data Engineer", "Go Developer"}}, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if got := w.RunOnce(context.Background()); got != 1 {
		t.Fatalf("expected 1 refreshed query, got %d", got)
	}
	if got := refresher.refreshed(); !reflect.DeepEqual(got, []string{"data engineer", "go developer"}) {
		t.Fatalf("unexpected refresh order: %v", got)
	}
}

func TestRunOnceSkipsOverlappingCycle(t *testing.T) {
	refresher := &fakeRefresher{entered: make(chan struct{}, 1), block: make(chan struct{})}
	w, err := New(refresher, Config{Titles: []string{"Go Developer"}}, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := make(chan int)
	go func() { done <- w.RunOnce(context.Background()) }()

	select {
	case <-refresher.entered:
	case <-time.After(time.Second):
		t.Fatalf("first cycle did not start")
	}

	if got := w.RunOnce(context.Background()); got != 0 {
		t.Fatalf("overlapping cycle should be skipped, got %d", got)
	}

	close(refresher.block)
	if got := <-done; got != 1 {
		t.Fatalf("expected first cycle to refresh 1 query, got %d", got)
	}
}

func TestStartRunsImmediatelyAndStops(t *testing.T) {
	refresher := &fakeRefresher{}
	w, err := New(refresher, Config{Titles: []string{"Go Developer"}, Schedule: "@every 1h"}, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	deadline := time.Now().Add(time.Second)
	for len(refresher.refreshed()) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected an immediate warm cycle")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	w, err := New(&fakeRefresher{}, Config{Titles: []string{"Go Developer"}, Schedule: "not a schedule"}, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Start(context.Background()); err == nil {
		t.Fatalf("expected schedule error")
	}
}
