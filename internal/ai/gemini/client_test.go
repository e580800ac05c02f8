package gemini

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

type fakeChatCreator struct {
	mu    sync.Mutex
	calls []chatCallRecord
	queue map[string][]fakeChatResponse
}

type chatCallRecord struct {
	model  string
	config *genai.GenerateContentConfig
	chat   *fakeChat
}

type fakeChatResponse struct {
	resp *genai.GenerateContentResponse
	err  error
}

type fakeChat struct {
	mu       sync.Mutex
	response fakeChatResponse
	messages []string
}

func (f *fakeChat) SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, part := range parts {
		f.messages = append(f.messages, part.Text)
	}
	return f.response.resp, f.response.err
}

func newFakeChatCreator() *fakeChatCreator {
	return &fakeChatCreator{queue: make(map[string][]fakeChatResponse)}
}

func (f *fakeChatCreator) enqueue(model string, resp *genai.GenerateContentResponse, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue[model] = append(f.queue[model], fakeChatResponse{resp: resp, err: err})
}

func (f *fakeChatCreator) Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	responses := f.queue[model]
	if len(responses) == 0 {
		return nil, errors.New("unexpected call")
	}
	res := responses[0]
	f.queue[model] = responses[1:]
	chat := &fakeChat{response: res}
	f.calls = append(f.calls, chatCallRecord{model: model, config: config, chat: chat})
	return chat, nil
}

func TestGeneratorRetriesOnTemporaryError(t *testing.T) {
	originalSleep := sleep
	sleep = func(context.Context, time.Duration) error { return nil }
	defer func() { sleep = originalSleep }()

	chats := newFakeChatCreator()
	tempErr := genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"}
	chats.enqueue("gemini-pro", nil, tempErr)
	chats.enqueue("gemini-pro", &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: "retry ok"}}},
		}},
	}, nil)

	g := &Generator{
		chats:      chats,
		model:      "gemini-pro",
		maxRetries: 2,
		logger:     zap.NewNop(),
	}

	output, err := g.GenerateContent(context.Background(), "system", "message")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if output != "retry ok" {
		t.Fatalf("unexpected output: %q", output)
	}

	if len(chats.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(chats.calls))
	}

	for _, call := range chats.calls {
		if call.config == nil || call.config.SystemInstruction == nil {
			t.Fatalf("expected system instruction to be set")
		}
		if got := call.config.SystemInstruction.Parts[0].Text; got != "system" {
			t.Fatalf("unexpected system instruction: %q", got)
		}
		if len(call.chat.messages) != 1 || call.chat.messages[0] != "message" {
			t.Fatalf("unexpected chat message: %+v", call.chat.messages)
		}
	}
}

func TestGeneratorRetryWaitHonoursContext(t *testing.T) {
	chats := newFakeChatCreator()
	tempErr := genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"}
	chats.enqueue("gemini-pro", nil, tempErr)
	chats.enqueue("gemini-pro", nil, tempErr)

	g := &Generator{
		chats:      chats,
		model:      "gemini-pro",
		maxRetries: 2,
		logger:     zap.NewNop(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := g.GenerateContent(ctx, "system", "message")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed >= baseRetryDelay {
		t.Fatalf("retry wait ignored the context, took %s", elapsed)
	}
	if len(chats.calls) != 1 {
		t.Fatalf("expected 1 call before giving up, got %d", len(chats.calls))
	}
}

func TestGeneratorStopsAfterRetriesExhausted(t *testing.T) {
	originalSleep := sleep
	sleep = func(context.Context, time.Duration) error { return nil }
	defer func() { sleep = originalSleep }()

	chats := newFakeChatCreator()
	tempErr := genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"}
	chats.enqueue("gemini-pro", nil, tempErr)
	chats.enqueue("gemini-pro", nil, tempErr)

	g := &Generator{
		chats:      chats,
		model:      "gemini-pro",
		maxRetries: 2,
		logger:     zap.NewNop(),
	}

	_, err := g.GenerateContent(context.Background(), "sys", "msg")
	if err == nil {
		t.Fatal("expected error after retries exhausted")
	}

	if len(chats.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(chats.calls))
	}
}

func TestGeneratorDoesNotRetryOnLongQuotaDelay(t *testing.T) {
	chats := newFakeChatCreator()
	quotaErr := genai.APIError{
		Code:    http.StatusTooManyRequests,
		Status:  "RESOURCE_EXHAUSTED",
		Message: "quota exhausted, retry after 60 seconds",
	}
	chats.enqueue("gemini-pro", nil, quotaErr)

	g := &Generator{
		chats:      chats,
		model:      "gemini-pro",
		maxRetries: 3,
		logger:     zap.NewNop(),
	}

	_, err := g.GenerateContent(context.Background(), "sys", "msg")
	if err == nil {
		t.Fatal("expected error when quota delay too long")
	}

	if len(chats.calls) != 1 {
		t.Fatalf("expected single call, got %d", len(chats.calls))
	}
}

func TestGeneratorRequestsJSONOutput(t *testing.T) {
	chats := newFakeChatCreator()
	chats.enqueue("gemini-pro", &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: `{"ok": true}`}}},
		}},
	}, nil)

	g := &Generator{chats: chats, model: "gemini-pro", maxRetries: 1, logger: zap.NewNop()}

	if _, err := g.GenerateContent(context.Background(), "", "message"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	call := chats.calls[0]
	if call.config.ResponseMIMEType != "application/json" {
		t.Fatalf("expected json mime type, got %q", call.config.ResponseMIMEType)
	}
	if call.config.SystemInstruction != nil {
		t.Fatalf("expected no system instruction for empty input")
	}
}

func TestGeneratorRejectsEmptyResponse(t *testing.T) {
	chats := newFakeChatCreator()
	chats.enqueue("gemini-pro", &genai.GenerateContentResponse{}, nil)

	g := &Generator{chats: chats, model: "gemini-pro", maxRetries: 3, logger: zap.NewNop()}

	if _, err := g.GenerateContent(context.Background(), "sys", "msg"); err == nil {
		t.Fatal("expected error for empty response")
	}
	if len(chats.calls) != 1 {
		t.Fatalf("empty responses must not be retried, got %d calls", len(chats.calls))
	}
}

func TestRetryDelay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		attempt   int
		wantDelay time.Duration
		wantRetry bool
	}{
		{
			name:      "server error backs off",
			err:       genai.APIError{Code: http.StatusServiceUnavailable},
			attempt:   2,
			wantDelay: 4 * time.Second,
			wantRetry: true,
		},
		{
			name:      "short quota delay from details",
			err:       genai.APIError{Code: http.StatusTooManyRequests, Details: []map[string]any{{"retryDelay": "7s"}}},
			attempt:   1,
			wantDelay: 7 * time.Second,
			wantRetry: true,
		},
		{
			name:      "long quota delay from message",
			err:       genai.APIError{Code: http.StatusTooManyRequests, Message: "retry in 45s"},
			attempt:   1,
			wantRetry: false,
		},
		{
			name:      "bad request",
			err:       genai.APIError{Code: http.StatusBadRequest},
			attempt:   1,
			wantRetry: false,
		},
		{
			name:      "non api error",
			err:       errors.New("boom"),
			attempt:   1,
			wantRetry: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			delay, retry := retryDelay(tt.err, tt.attempt)
			if retry != tt.wantRetry {
				t.Fatalf("expected retry=%v, got %v", tt.wantRetry, retry)
			}
			if retry && delay != tt.wantDelay {
				t.Fatalf("expected delay %s, got %s", tt.wantDelay, delay)
			}
		})
	}
}

type fakeModels struct {
	mu       sync.Mutex
	batches  [][]string
	fail     []error
	getErr   error
	getCalls int
}

func (f *fakeModels) EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.fail) > 0 {
		err := f.fail[0]
		f.fail = f.fail[1:]
		return nil, err
	}
	texts := make([]string, 0, len(contents))
	resp := &genai.EmbedContentResponse{}
	for _, c := range contents {
		text := c.Parts[0].Text
		texts = append(texts, text)
		resp.Embeddings = append(resp.Embeddings, &genai.ContentEmbedding{Values: []float32{float32(len(text)), 1}})
	}
	f.batches = append(f.batches, texts)
	return resp, nil
}

func (f *fakeModels) Get(ctx context.Context, model string, config *genai.GetModelConfig) (*genai.Model, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &genai.Model{Name: model}, nil
}

func TestGeneratorEmbedBatchesAndKeepsOrder(t *testing.T) {
	originalSleep := sleep
	sleep = func(context.Context, time.Duration) error { return nil }
	defer func() { sleep = originalSleep }()

	models := &fakeModels{fail: []error{genai.APIError{Code: http.StatusInternalServerError}}}
	g := &Generator{models: models, embeddingModel: "embed", maxRetries: 2, logger: zap.NewNop()}

	texts := make([]string, maxEmbedBatch+5)
	for i := range texts {
		texts[i] = strings.Repeat("x", i+1)
	}

	vectors, err := g.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != len(texts) {
		t.Fatalf("expected %d vectors, got %d", len(texts), len(vectors))
	}
	for i, v := range vectors {
		if int(v[0]) != i+1 {
			t.Fatalf("vector %d out of order: %v", i, v)
		}
	}
	if len(models.batches) != 2 || len(models.batches[1]) != 5 {
		t.Fatalf("unexpected batching: %d batches", len(models.batches))
	}
}

func TestGeneratorPing(t *testing.T) {
	models := &fakeModels{}
	g := &Generator{models: models, model: "gemini-pro", logger: zap.NewNop()}

	if err := g.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	models.getErr = genai.APIError{Code: http.StatusUnauthorized, Message: "API key not valid"}
	if err := g.Ping(context.Background()); err == nil {
		t.Fatal("expected ping to fail")
	}
}
