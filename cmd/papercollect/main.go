package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Zhang-Henry/paper-collection/internal/app"
	"github.com/Zhang-Henry/paper-collection/internal/config"
	"github.com/Zhang-Henry/paper-collection/internal/logging"
)

var (
	flagConferences []string
	flagYears       []string
	flagKeywords    []string
	flagForce       bool
	flagSample      int
	flagOutput      string
	flagBatchSize   int
	flagModel       string
	flagConfig      string
)

var rootCmd = &cobra.Command{
	Use:   "papercollect",
	Short: "Collect and classify OpenReview papers for a survey",
	Long: `papercollect fetches submissions from OpenReview for a matrix of
conferences and years, filters them by survey keywords into per-venue
CSV record sets, and optionally classifies the collected papers with an
LLM relevance check.`,
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Fetch, filter and cache papers from OpenReview",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		logger := logging.New(cfg.Logging.Level)

		ctx, stop := signalContext()
		defer stop()

		application := app.New(ctx, cfg, logger)
		defer application.Close()

		summary, err := application.Collect(ctx)
		if err != nil {
			return fmt.Errorf("collection failed: %w", err)
		}
		fmt.Printf("collected %d papers (%d from cache), accepted %d\n",
			summary.PapersFetched, summary.PapersFromCache, summary.PapersAccepted)
		return nil
	},
}

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Run the LLM relevance classification over cached papers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		logger := logging.New(cfg.Logging.Level)

		if cfg.Classifier.APIKey == "" {
			return fmt.Errorf("API key required: set OPENAI_API_KEY or classifier.apiKey")
		}

		ctx, stop := signalContext()
		defer stop()

		application := app.New(ctx, cfg, logger)
		defer application.Close()

		stats, err := application.Classify(ctx)
		if err != nil {
			return fmt.Errorf("classification failed: %w", err)
		}
		fmt.Printf("classified %d papers: %d relevant, %d failed (%d API calls)\n",
			stats.Processed, stats.Relevant, stats.Failed, stats.APICalls)
		return nil
	},
}

func loadConfig() config.Config {
	if flagConfig != "" {
		os.Setenv(config.ConfigPathEnv, flagConfig)
	}
	cfg := config.Load()

	if len(flagConferences) > 0 {
		cfg.Collection.Conferences = flagConferences
	}
	if len(flagYears) > 0 {
		cfg.Collection.Years = flagYears
	}
	if len(flagKeywords) > 0 {
		cfg.Collection.Keywords = flagKeywords
	}
	if flagForce {
		cfg.Collection.ForceRedownload = true
	}
	if flagSample > 0 {
		cfg.Collection.SampleCap = flagSample
	}
	if flagOutput != "" {
		cfg.Output.Aggregated = flagOutput
	}
	if flagBatchSize > 0 {
		cfg.Classifier.BatchSize = flagBatchSize
	}
	if flagModel != "" {
		cfg.Classifier.Model = flagModel
	}
	return cfg
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().IntVar(&flagSample, "sample", 0, "Cap the number of papers processed (quick test runs)")

	scrapeCmd.Flags().StringSliceVar(&flagConferences, "conferences", nil, "Conferences to collect (e.g. ICLR,ICML)")
	scrapeCmd.Flags().StringSliceVar(&flagYears, "years", nil, "Years to collect (e.g. 2024,2025)")
	scrapeCmd.Flags().StringSliceVar(&flagKeywords, "keywords", nil, "Filter keywords, any match accepts a paper")
	scrapeCmd.Flags().BoolVar(&flagForce, "force", false, "Refetch even when a cached record set exists")
	scrapeCmd.Flags().StringVar(&flagOutput, "output", "", "Aggregated output CSV path")

	classifyCmd.Flags().IntVar(&flagBatchSize, "batch-size", 0, "Papers per classification batch")
	classifyCmd.Flags().StringVar(&flagModel, "model", "", "Chat model for relevance evaluation")

	rootCmd.AddCommand(scrapeCmd, classifyCmd)
}

func main() {
	// Credentials and keys commonly live in a local .env file.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
