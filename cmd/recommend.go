package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/YixingZhengAu/JobSeeker/internal/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const defaultTopN = 5

var recommendCmd = &cobra.Command{
	Use:   "recommend [description]",
	Short: "Recommend job postings for a free-text description",
	Long: "Analyze a free-text description of your experience and wishes, find matching postings\n" +
		"on the job board and print the best ones as JSON. The description is taken from the\n" +
		"arguments, from --file, or from standard input when neither is given.",
	Run: func(cmd *cobra.Command, args []string) {
		recommend(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(recommendCmd)

	recommendCmd.Flags().IntP("top-n", "n", defaultTopN, "number of postings to return")
	recommendCmd.Flags().StringP("file", "f", "", "read the description from a file ('-' for standard input)")
	recommendCmd.Flags().BoolP("interactive", "i", false, "browse the results interactively")
	recommendCmd.Flags().StringP("exclude-file", "e", "", "file with dismissed postings to exclude. Default is unset.")

	viper.BindPFlag("filters.exclude-file", recommendCmd.Flags().Lookup("exclude-file"))
}

func recommend(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"), zap.String("app", app))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the jobseeker", zap.String("version", buildVersion()))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(redacted(config), "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	description, err := readDescription(cmd, args)
	if err != nil {
		logger.Fatal("reading the description", zap.Error(err))
	}

	topN, _ := cmd.Flags().GetInt("top-n")

	p, err := newPipeline(ctx, config, logger)
	if err != nil {
		logger.Fatal("building the pipeline", zap.Error(err))
	}
	defer p.Close()

	resp, err := p.recommender.Recommend(ctx, description, topN)

	interactive, _ := cmd.Flags().GetBool("interactive")
	if interactive && err == nil {
		if err := browse(logger, config, resp); err != nil && !errors.Is(err, errExit) {
			logger.Error("interactive mode failed", zap.Error(err))
		}
		return
	}

	if printErr := printJSON(os.Stdout, resp); printErr != nil {
		logger.Error("printing the response", zap.Error(printErr))
	}

	if err != nil {
		p.Close()
		os.Exit(1)
	}
}

func readDescription(cmd *cobra.Command, args []string) (string, error) {
	file, _ := cmd.Flags().GetString("file")

	var description string
	switch {
	case file == "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", err
		}
		description = string(data)
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", err
		}
		description = string(data)
	case len(args) > 0:
		description = strings.Join(args, " ")
	default:
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", err
		}
		description = string(data)
	}

	return strings.TrimSpace(description), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// redacted returns a copy of config that is safe to log.
func redacted(config *Config) Config {
	c := *config
	if c.AI.Gemini.APIKey != "" {
		c.AI.Gemini.APIKey = "***"
	}
	return c
}
