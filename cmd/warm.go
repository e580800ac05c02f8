package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/YixingZhengAu/JobSeeker/internal/ai"
	"github.com/YixingZhengAu/JobSeeker/internal/cache"
	"github.com/YixingZhengAu/JobSeeker/internal/logger"
	"github.com/YixingZhengAu/JobSeeker/internal/retriever"
	"github.com/YixingZhengAu/JobSeeker/internal/warmer"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var warmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Keep the job cache fresh for the configured titles",
	Long: "Scrape the titles listed under warm.titles on the warm.schedule cron schedule and\n" +
		"store the results in the job cache, so recommend requests are served from cache.",
	Run: func(cmd *cobra.Command, _ []string) {
		warm(cmd)
	},
}

func init() {
	rootCmd.AddCommand(warmCmd)

	warmCmd.Flags().Bool("once", false, "run a single warm cycle and exit")
	warmCmd.Flags().StringSlice("titles", nil, "titles to warm, overrides warm.titles")

	viper.BindPFlag("warm.titles", warmCmd.Flags().Lookup("titles"))
}

func warm(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"), zap.String("app", app))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	// The model is only needed to enrich posting details.
	var generator ai.Generator
	if config.Board.EnrichDetails {
		g, err := newGenerator(ctx, config.AI, logger)
		if err != nil {
			logger.Fatal("building language model client", zap.Error(err))
		}
		generator = g
	}

	s, err := newScraper(config, generator, logger)
	if err != nil {
		logger.Fatal("building the scraper", zap.Error(err))
	}

	store, err := cache.Open(ctx, config.Cache, logger)
	if err != nil {
		logger.Fatal("opening job cache", zap.Error(err))
	}
	defer store.Close()

	w, err := warmer.New(retriever.New(store, s, config.Cache.TTL, config.Retriever, logger), config.Warm, logger)
	if err != nil {
		logger.Fatal("building the warmer", zap.Error(err))
	}

	if once, _ := cmd.Flags().GetBool("once"); once {
		if w.RunOnce(ctx) == 0 {
			store.Close()
			os.Exit(1)
		}
		return
	}

	if err := w.Start(ctx); err != nil {
		logger.Fatal("starting the warmer", zap.Error(err))
	}

	<-ctx.Done()
	logger.Info("shutting down", zap.String("reason", "got signal"))
	w.Stop()
}
