package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"postforge/internal/config"
	"postforge/internal/generate"
	"postforge/internal/llm"
	"postforge/internal/logger"
	"postforge/internal/pipeline"
	"postforge/internal/products"
	"postforge/internal/publish"
)

var runCmd = &cobra.Command{
	Use:   "run [keywords-file]",
	Short: "Process a keywords file into published posts",
	Long: `Read keywords one per line, classify each one, generate the matching
article, and publish it to WordPress. Successfully handled keywords are
removed from the file; two consecutive failures halt the run.

Example:
  postforge run keywords.txt
  postforge run --products fixtures/products.json keywords.txt`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		keywordsFile := args[0]
		productsFile, _ := cmd.Flags().GetString("products")

		if err := runKeywords(cmd.Context(), keywordsFile, productsFile); err != nil {
			logger.Error("run failed", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("products", "", "products fixture file (overrides products.fixture_file)")
}

func runKeywords(ctx context.Context, keywordsFile, productsFile string) error {
	cfg := config.Get()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	relay := llm.NewRelayClient(cfg.AI.Relay.URL, cfg.AI.Relay.TimeoutDuration(),
		llm.WithRelayRetries(cfg.AI.Relay.MaxRetries, cfg.AI.Relay.RetryWaitDuration()))

	keys, err := llm.LoadKeyStore(cfg.AI.Chat.KeysFile, cfg.AI.Chat.KeyCacheFile)
	if err != nil {
		return fmt.Errorf("loading chat keys: %w", err)
	}
	chat := llm.NewChatClient(cfg.AI.Chat.BaseURL, cfg.AI.Chat.Model, keys, cfg.AI.Chat.TimeoutDuration())

	router := llm.NewRouter(ctx, relay, chat,
		llm.WithPacingDelay(cfg.AI.Router.PacingDelayDuration()))

	genOpts := generate.DefaultOptions()
	genOpts.MaxAttempts = cfg.Generate.MaxAttempts
	genOpts.WaveConcurrency = cfg.Generate.WaveConcurrency
	genOpts.CompletionDelay = cfg.Generate.CompletionDelayDuration()
	genOpts.Clean.MinWords = cfg.Generate.Intro.MinWords
	genOpts.Clean.MaxWords = cfg.Generate.Intro.MaxWords
	generator := generate.New(router, genOpts)

	if productsFile == "" {
		productsFile = cfg.Products.FixtureFile
	}
	source, err := products.NewFileSource(productsFile)
	if err != nil {
		return fmt.Errorf("loading products: %w", err)
	}

	publisher := publish.NewClient(cfg.Publish.SiteURL, cfg.Publish.Username, cfg.Publish.AppPassword)

	p := pipeline.New(generator, source, publisher, pipeline.Settings{
		AuthorID:    cfg.Publish.AuthorID,
		CategoryID:  cfg.Publish.CategoryID,
		Status:      cfg.Publish.Status,
		MaxProducts: cfg.Products.MaxCount,
	})

	summary, err := p.ProcessKeywordFile(ctx, keywordsFile)
	if err != nil {
		return err
	}

	fmt.Printf("\nRun %s complete: %d succeeded, %d failed, %d skipped\n",
		summary.RunID, summary.Succeeded, summary.Failed, summary.Skipped)
	if summary.Halted {
		fmt.Println("Run halted after 2 consecutive failures; fix the cause and rerun.")
	}

	stats := router.Stats()
	fmt.Printf("Backend usage: primary %d, secondary %d, failures %d\n",
		stats.PrimaryCalls, stats.SecondaryCalls, stats.Failures)
	return nil
}
