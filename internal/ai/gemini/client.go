// Package gemini implements the ai interfaces on top of the Google GenAI SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/YixingZhengAu/JobSeeker/internal/logger"
	"github.com/YixingZhengAu/JobSeeker/internal/utils"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	Provider = "gemini"

	defaultModel          = "gemini-2.5-flash"
	defaultEmbeddingModel = "text-embedding-004"
	defaultMaxRetries     = 3
	defaultMaxLogLength   = 200

	baseRetryDelay = 2 * time.Second
	maxQuotaDelay  = 30 * time.Second
	maxEmbedBatch  = 100
)

// sleep waits between retries; swapped in tests.
var sleep = utils.WaitFor

var retryAfterPattern = regexp.MustCompile(`(?i)retry (?:after|in) (\d+(?:\.\d+)?)\s*s`)

type chatSession interface {
	SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type chatCreator interface {
	Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error)
}

type modelService interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
	Get(ctx context.Context, model string, config *genai.GetModelConfig) (*genai.Model, error)
}

type genaiChats struct {
	chats *genai.Chats
}

func (c genaiChats) Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error) {
	chat, err := c.chats.Create(ctx, model, config, history)
	if err != nil {
		return nil, err
	}
	return chat, nil
}

// Config configures the Gemini backend.
type Config struct {
	APIKeyFile     string `mapstructure:"api-key-file"`
	APIKey         string `mapstructure:"api-key"`
	Model          string `mapstructure:"model"`
	EmbeddingModel string `mapstructure:"embedding-model"`
	MaxRetries     int    `mapstructure:"max-retries" validate:"gte=0"`
	MaxLogLength   int    `mapstructure:"max-log-length" validate:"gte=0"`
}

// Generator talks to Gemini for JSON generation, embeddings and health checks.
type Generator struct {
	chats          chatCreator
	models         modelService
	model          string
	embeddingModel string
	maxRetries     int
	maxLogLen      int
	logger         *zap.Logger
}

// NewGenerator creates a Generator configured for the Gemini API backend.
func NewGenerator(ctx context.Context, apiKey string, cfg Config, log *zap.Logger) (*Generator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	embeddingModel := strings.TrimSpace(cfg.EmbeddingModel)
	if embeddingModel == "" {
		embeddingModel = defaultEmbeddingModel
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	maxLogLen := cfg.MaxLogLength
	if maxLogLen <= 0 {
		maxLogLen = defaultMaxLogLength
	}

	return &Generator{
		chats:          genaiChats{chats: client.Chats},
		models:         client.Models,
		model:          model,
		embeddingModel: embeddingModel,
		maxRetries:     maxRetries,
		maxLogLen:      maxLogLen,
		logger:         logger.WithCommonFields(log, Provider, model),
	}, nil
}

// GenerateContent sends message under systemInstruction and returns the text
// of the first candidate. The model is asked for a JSON document.
func (g *Generator) GenerateContent(ctx context.Context, systemInstruction, message string) (string, error) {
	if g == nil || g.chats == nil {
		return "", errors.New("gemini generator is not initialized")
	}

	message = strings.TrimSpace(message)
	if message == "" {
		return "", errors.New("message must not be empty")
	}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}
	if system := strings.TrimSpace(systemInstruction); system != "" {
		config.SystemInstruction = &genai.Content{
			Role:  genai.RoleUser,
			Parts: []*genai.Part{{Text: system}},
		}
	}

	g.log().Debug("gemini generate content request",
		zap.Int("message_length", utf8.RuneCountInString(message)),
		zap.String("message_preview", utils.TruncateForLog(message, g.logLimit())),
	)

	var output string
	err := g.withRetry(ctx, "generate content", func() error {
		chat, err := g.chats.Create(ctx, g.model, config, nil)
		if err != nil {
			return err
		}
		resp, err := chat.SendMessage(ctx, genai.Part{Text: message})
		if err != nil {
			return err
		}
		output, err = responseText(resp)
		return err
	})
	if err != nil {
		return "", err
	}

	g.log().Debug("gemini generate content response",
		zap.Int("response_length", utf8.RuneCountInString(output)),
		zap.String("response_preview", utils.TruncateForLog(output, g.logLimit())),
	)

	return output, nil
}

// Embed returns one embedding per text, batching requests.
func (g *Generator) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if g == nil || g.models == nil {
		return nil, errors.New("gemini generator is not initialized")
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxEmbedBatch {
		end := min(start+maxEmbedBatch, len(texts))
		batch := texts[start:end]

		contents := make([]*genai.Content, 0, len(batch))
		for _, text := range batch {
			contents = append(contents, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{{Text: text}},
			})
		}

		var resp *genai.EmbedContentResponse
		err := g.withRetry(ctx, "embed content", func() error {
			var err error
			resp, err = g.models.EmbedContent(ctx, g.embeddingModel, contents, &genai.EmbedContentConfig{
				TaskType: "SEMANTIC_SIMILARITY",
			})
			return err
		})
		if err != nil {
			return nil, err
		}

		if resp == nil || len(resp.Embeddings) != len(batch) {
			return nil, fmt.Errorf("embed content: expected %d embeddings, got %d", len(batch), embeddingCount(resp))
		}
		for _, embedding := range resp.Embeddings {
			if embedding == nil {
				return nil, errors.New("embed content: empty embedding")
			}
			vectors = append(vectors, embedding.Values)
		}
	}

	g.log().Debug("gemini embeddings computed", zap.Int("count", len(vectors)), zap.String("embedding_model", g.embeddingModel))
	return vectors, nil
}

// Ping checks that the configured model is reachable with the current key.
func (g *Generator) Ping(ctx context.Context) error {
	if g == nil || g.models == nil {
		return errors.New("gemini generator is not initialized")
	}
	if _, err := g.models.Get(ctx, g.model, nil); err != nil {
		return fmt.Errorf("get model %q: %w", g.model, err)
	}
	return nil
}

func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.model
}

// withRetry runs call up to maxRetries times while the failure is temporary.
func (g *Generator) withRetry(ctx context.Context, op string, call func() error) error {
	attempts := g.maxRetries
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = call(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}

		delay, retry := retryDelay(err, attempt)
		if !retry || attempt == attempts {
			break
		}

		g.log().Warn("gemini call failed, retrying",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if werr := sleep(ctx, delay); werr != nil {
			return fmt.Errorf("%s: %w", op, werr)
		}
	}

	return fmt.Errorf("%s: %w", op, err)
}

// retryDelay decides whether err is temporary and how long to wait before
// the next attempt. Quota errors asking for a long pause are not retried.
func retryDelay(err error, attempt int) (time.Duration, bool) {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return 0, false
	}

	switch apiErr.Code {
	case http.StatusTooManyRequests:
		delay := quotaDelay(apiErr)
		if delay == 0 {
			delay = utils.Backoff(baseRetryDelay, 2, attempt-1)
		}
		if delay > maxQuotaDelay {
			return 0, false
		}
		return delay, true
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return utils.Backoff(baseRetryDelay, 2, attempt-1), true
	default:
		return 0, false
	}
}

func quotaDelay(apiErr genai.APIError) time.Duration {
	for _, detail := range apiErr.Details {
		if raw, ok := detail["retryDelay"].(string); ok {
			if d, err := time.ParseDuration(raw); err == nil {
				return d
			}
		}
	}
	if m := retryAfterPattern.FindStringSubmatch(apiErr.Message); m != nil {
		if secs, err := strconv.ParseFloat(m[1], 64); err == nil {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return 0
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", errors.New("gemini api returned empty response")
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
		break
	}

	output := strings.TrimSpace(builder.String())
	if output == "" {
		return "", errors.New("gemini api returned empty response")
	}
	return output, nil
}

func embeddingCount(resp *genai.EmbedContentResponse) int {
	if resp == nil {
		return 0
	}
	return len(resp.Embeddings)
}

func (g *Generator) log() *zap.Logger {
	if g.logger == nil {
		return zap.NewNop()
	}
	return g.logger
}

func (g *Generator) logLimit() int {
	if g.maxLogLen <= 0 {
		return defaultMaxLogLength
	}
	return g.maxLogLen
}
