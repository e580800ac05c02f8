package cmd

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/YixingZhengAu/JobSeeker/internal/ai/gemini"
	"github.com/YixingZhengAu/JobSeeker/internal/analyzer"
	"github.com/YixingZhengAu/JobSeeker/internal/cache"
	"github.com/YixingZhengAu/JobSeeker/internal/filtering"
	"github.com/YixingZhengAu/JobSeeker/internal/ranking"
	"github.com/YixingZhengAu/JobSeeker/internal/recommender"
	"github.com/YixingZhengAu/JobSeeker/internal/retriever"
	"github.com/YixingZhengAu/JobSeeker/internal/scraper"
	"github.com/YixingZhengAu/JobSeeker/internal/warmer"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app       = "jobseeker"
	envPrefix = "JOBSEEKER"
)

type Config struct {
	AI        AIConfig           `mapstructure:"ai"`
	Analyzer  analyzer.Config    `mapstructure:"analyzer"`
	Board     scraper.Board      `mapstructure:"board"`
	Scraper   scraper.Retry      `mapstructure:"scraper"`
	Cache     cache.Config       `mapstructure:"cache"`
	Retriever retriever.Config   `mapstructure:"retriever"`
	Ranking   ranking.Config     `mapstructure:"ranking"`
	Request   recommender.Config `mapstructure:"request"`
	Filters   filtering.Config   `mapstructure:"filters"`
	Warm      warmer.Config      `mapstructure:"warm"`
}

type AIConfig struct {
	Provider string        `mapstructure:"provider" validate:"oneof=gemini"`
	Gemini   gemini.Config `mapstructure:"gemini"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "jobseeker recommends job postings from a free-text description of yourself",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	setDefaults(viper.GetViper())

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.BindEnv("ai.gemini.api-key", "GEMINI_API_KEY"); err != nil {
		log.Fatalf("binding GEMINI_API_KEY environment variable: %v", err)
	}
	if err := viper.BindEnv("ai.gemini.api-key-file", "GEMINI_API_KEY_FILE"); err != nil {
		log.Fatalf("binding GEMINI_API_KEY_FILE environment variable: %v", err)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is jobseeker.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ai.provider", gemini.Provider)
	v.SetDefault("ai.gemini.model", "gemini-2.5-flash")
	v.SetDefault("ai.gemini.embedding-model", "text-embedding-004")
	v.SetDefault("ai.gemini.max-retries", 3)
	v.SetDefault("ai.gemini.max-log-length", 200)
	v.SetDefault("ai.gemini.api-key", "")
	v.SetDefault("ai.gemini.api-key-file", "")

	v.SetDefault("analyzer.max-titles", analyzer.DefaultMaxTitles)

	v.SetDefault("board.base-url", "https://www.seek.com.au")
	v.SetDefault("board.format", scraper.FormatHTML)
	v.SetDefault("board.max-pages", 2)
	v.SetDefault("board.timeout", 15*time.Second)
	v.SetDefault("board.user-agent", "")
	v.SetDefault("board.browser", false)
	v.SetDefault("board.enrich-details", false)

	v.SetDefault("scraper.retries", scraper.DefaultRetry.Retries)
	v.SetDefault("scraper.base-delay", scraper.DefaultRetry.BaseDelay)
	v.SetDefault("scraper.factor", scraper.DefaultRetry.Factor)
	v.SetDefault("scraper.min-interval", scraper.DefaultRetry.MinInterval)

	v.SetDefault("cache.driver", cache.DriverRedis)
	v.SetDefault("cache.redis-url", "redis://localhost:6379/0")
	v.SetDefault("cache.database-url", "")
	v.SetDefault("cache.key-prefix", "")
	v.SetDefault("cache.retention", 0)
	v.SetDefault("cache.ttl", 24*time.Hour)

	v.SetDefault("retriever.max-candidates", retriever.DefaultMaxCandidates)
	v.SetDefault("retriever.max-per-title", retriever.DefaultMaxPerTitle)
	v.SetDefault("retriever.concurrency", retriever.DefaultConcurrency)
	v.SetDefault("retriever.scrape-timeout", retriever.DefaultScrapeTimeout)

	v.SetDefault("ranking.skill-weight", ranking.DefaultSkillWeight)
	v.SetDefault("ranking.semantic-weight", ranking.DefaultSemanticWeight)
	v.SetDefault("ranking.mandatory-weight", ranking.DefaultMandatoryWeight)
	v.SetDefault("ranking.embed-batch", 32)
	v.SetDefault("ranking.embed-concurrency", 4)

	v.SetDefault("request.timeout", recommender.DefaultTimeout)
	v.SetDefault("request.max-top-n", recommender.DefaultMaxTopN)

	v.SetDefault("filters.exclude-companies", []string{})
	v.SetDefault("filters.red-flags", []string{})
	v.SetDefault("filters.exclude-file", "")
	v.SetDefault("filters.disabled", []string{})

	v.SetDefault("warm.schedule", warmer.DefaultSchedule)
	v.SetDefault("warm.titles", []string{})
	v.SetDefault("warm.location", "")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
	}

	// Defaults and the environment are enough to run; a config file is optional
	// unless one was given explicitly.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	return decodeConfig(viper.GetViper())
}

func decodeConfig(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := validator.New().Struct(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := config.Ranking.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}
