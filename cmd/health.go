package cmd

import (
	"context"
	"log"
	"os"

	"github.com/YixingZhengAu/JobSeeker/internal/cache"
	"github.com/YixingZhengAu/JobSeeker/internal/logger"
	"github.com/YixingZhengAu/JobSeeker/internal/recommender"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the job cache and the language model are reachable",
	Run: func(_ *cobra.Command, _ []string) {
		health()
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

func health() {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"), zap.String("app", app))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	var cachePinger, modelPinger recommender.Pinger

	store, err := cache.Open(ctx, config.Cache, logger)
	if err != nil {
		logger.Warn("opening job cache", zap.Error(err))
		cachePinger = unreachable{err: err}
	} else {
		cachePinger = store
	}

	generator, err := newGenerator(ctx, config.AI, logger)
	if err != nil {
		logger.Warn("building language model client", zap.Error(err))
	} else {
		modelPinger = generator
	}

	status := recommender.CheckHealth(ctx, cachePinger, modelPinger, logger)
	if store != nil {
		store.Close()
	}

	if err := printJSON(os.Stdout, status); err != nil {
		logger.Error("printing health", zap.Error(err))
	}

	if !status.Healthy() {
		os.Exit(1)
	}
}

type unreachable struct{ err error }

func (u unreachable) Ping(context.Context) error { return u.err }
