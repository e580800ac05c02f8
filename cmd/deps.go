package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/YixingZhengAu/JobSeeker/internal/ai"
	"github.com/YixingZhengAu/JobSeeker/internal/ai/gemini"
	"github.com/YixingZhengAu/JobSeeker/internal/analyzer"
	"github.com/YixingZhengAu/JobSeeker/internal/cache"
	"github.com/YixingZhengAu/JobSeeker/internal/filtering"
	"github.com/YixingZhengAu/JobSeeker/internal/ranking"
	"github.com/YixingZhengAu/JobSeeker/internal/recommender"
	"github.com/YixingZhengAu/JobSeeker/internal/retriever"
	"github.com/YixingZhengAu/JobSeeker/internal/scraper"
	"github.com/YixingZhengAu/JobSeeker/internal/secrets"

	"go.uber.org/zap"
)

const browserSettle = 2 * time.Second

func newGenerator(ctx context.Context, cfg AIConfig, logger *zap.Logger) (*gemini.Generator, error) {
	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider != "" && provider != gemini.Provider {
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		File:  cfg.Gemini.APIKeyFile,
		Value: cfg.Gemini.APIKey,
		Env:   "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file, GEMINI_API_KEY_FILE or GEMINI_API_KEY)", err)
	}

	return gemini.NewGenerator(ctx, apiKey, cfg.Gemini, logger)
}

// newScraper builds the board scraper. generator is only needed when posting
// detail enrichment is enabled.
func newScraper(config *Config, generator ai.Generator, logger *zap.Logger) (*scraper.Scraper, error) {
	var loader scraper.PageLoader = scraper.NewHTTPLoader(config.Board.Timeout, config.Board.UserAgent, logger)
	if config.Board.Browser {
		loader = &scraper.BrowserLoader{Timeout: config.Board.Timeout, Settle: browserSettle}
	}

	s := scraper.New(config.Board, config.Scraper, loader, scraper.NewHostLimiter(config.Scraper.MinInterval), logger)

	if config.Board.EnrichDetails {
		if generator == nil {
			return nil, fmt.Errorf("board.enrich-details requires a configured language model")
		}
		s.WithEnricher(analyzer.NewPostingAnalyzer(generator, config.AI.Gemini.MaxLogLength, logger))
	}

	return s, nil
}

// pipeline holds everything a recommend request needs.
type pipeline struct {
	store       *cache.Store
	generator   *gemini.Generator
	retriever   *retriever.Retriever
	recommender *recommender.Recommender
}

func (p *pipeline) Close() error {
	if p.store == nil {
		return nil
	}
	return p.store.Close()
}

func newPipeline(ctx context.Context, config *Config, logger *zap.Logger) (*pipeline, error) {
	generator, err := newGenerator(ctx, config.AI, logger)
	if err != nil {
		return nil, fmt.Errorf("building language model client: %w", err)
	}

	store, err := cache.Open(ctx, config.Cache, logger)
	if err != nil {
		return nil, fmt.Errorf("opening job cache: %w", err)
	}
	p := &pipeline{store: store, generator: generator}

	s, err := newScraper(config, generator, logger)
	if err != nil {
		p.Close()
		return nil, err
	}

	ranker, err := ranking.New(generator, config.Ranking, logger)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("building ranker: %w", err)
	}

	p.retriever = retriever.New(store, s, config.Cache.TTL, config.Retriever, logger)

	filterCfg := config.Filters
	steps := filtering.Default()
	for _, name := range filterCfg.Disabled {
		filtering.DisableByName(steps, name, "disabled in config")
	}

	p.recommender, err = recommender.New(recommender.Deps{
		Analyzer:     analyzer.New(generator, config.Analyzer, config.AI.Gemini.MaxLogLength, logger),
		Retriever:    p.retriever,
		Ranker:       ranker,
		Filters:      steps,
		FilterConfig: &filterCfg,
		Cache:        store,
		Model:        generator,
	}, config.Request, logger)
	if err != nil {
		p.Close()
		return nil, err
	}

	for _, status := range filtering.Describe(steps) {
		logger.Debug("filter configured",
			zap.String("name", status.Name),
			zap.Bool("enabled", status.Enabled),
			zap.String("reason", status.Reason),
			zap.Any("details", status.Details),
		)
	}

	return p, nil
}
