package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"hazmate/internal/fetcher"
	"hazmate/pkg/auth"
	"hazmate/pkg/catalog"
	"hazmate/pkg/checkpoint"
	"hazmate/pkg/collector"
	"hazmate/pkg/config"
	"hazmate/pkg/dataset"
	"hazmate/pkg/logger"
	"hazmate/pkg/meli"
	"hazmate/pkg/ratelimit"
	"hazmate/pkg/retry"
)

var (
	// Collect command flags
	targetSize   int
	strategyName string
	parallelism  int
	siteID       string
	catalogPath  string
	outputDir    string
	metricsAddr  string
	deadline     time.Duration
	maxPages     int
	forceRestart bool
)

// collectCmd represents the collect command
var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect a hazmat candidate dataset from the marketplace catalog",
	Long: `Collect marketplace listings from hazmat-adjacent categories into a
deduplicated JSONL dataset.

The collector walks category and search-term pairs, fetches product pages
through the MercadoLibre API and accumulates unique items until the target
size is reached or the catalog is exhausted. Progress is checkpointed, so an
interrupted run resumes where it left off.

Valid OAuth credentials are required; run 'hazmate auth login' first.`,
	Example: `  # Collect with defaults (balanced strategy, 10000 items)
  hazmate collect

  # Smaller balanced run with a wall-clock deadline
  hazmate collect --target-size 500 --deadline 30m

  # Speed-first collection with more workers
  hazmate collect --strategy speed --parallelism 8

  # Discard any previous checkpoint and start over
  hazmate collect --restart`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCollect(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(collectCmd)

	collectCmd.Flags().IntVarP(&targetSize, "target-size", "n", 0, "number of unique items to collect")
	collectCmd.Flags().StringVarP(&strategyName, "strategy", "s", "", "collection strategy (balance or speed)")
	collectCmd.Flags().IntVarP(&parallelism, "parallelism", "p", 0, "number of concurrent page fetchers")
	collectCmd.Flags().StringVar(&siteID, "site", "", "marketplace site ID (default MLB)")
	collectCmd.Flags().StringVar(&catalogPath, "catalog", "", "category catalog YAML file (default built-in)")
	collectCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory for the dataset")
	collectCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address for the Prometheus scrape endpoint (e.g. :9091)")
	collectCmd.Flags().DurationVar(&deadline, "deadline", 0, "wall-clock budget for the run (0 = unlimited)")
	collectCmd.Flags().IntVar(&maxPages, "max-pages", 0, "page budget for the run (0 = unlimited)")
	collectCmd.Flags().BoolVar(&forceRestart, "restart", false, "discard any existing checkpoint and start fresh")
}

func runCollect(ctx context.Context) error {
	flags := make(map[string]interface{})
	if targetSize > 0 {
		flags["target-size"] = targetSize
	}
	if strategyName != "" {
		flags["strategy"] = strategyName
	}
	if parallelism > 0 {
		flags["parallelism"] = parallelism
	}
	if siteID != "" {
		flags["site"] = siteID
	}
	if catalogPath != "" {
		flags["catalog"] = catalogPath
	}
	if outputDir != "" {
		flags["output"] = outputDir
	}
	if metricsAddr != "" {
		flags["metrics-addr"] = metricsAddr
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}
	if deadline > 0 {
		flags["deadline"] = deadline
	}
	if maxPages > 0 {
		flags["max-pages"] = maxPages
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return err
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger()

	cat, err := loadCatalog(cfg)
	if err != nil {
		return err
	}

	manager, err := auth.NewManager(cfg.Auth.TokenFile)
	if err != nil {
		return fmt.Errorf("failed to initialize token store: %w", err)
	}
	cred, err := manager.Retrieve()
	if err != nil {
		if errors.Is(err, auth.ErrCredentialsNotFound) {
			return fmt.Errorf("no stored credentials; run 'hazmate auth login' first")
		}
		return fmt.Errorf("failed to load credentials: %w", err)
	}

	timeout := cfg.Retry.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := meli.NewClient(timeout, log)

	refresher := auth.RefresherFunc(func(ctx context.Context, refreshToken string) (*auth.Credential, error) {
		tok, err := client.RefreshToken(ctx, cfg.Auth.ClientID, cfg.Auth.ClientSecret, refreshToken)
		if err != nil {
			return nil, err
		}
		return &auth.Credential{
			AccessToken:  tok.AccessToken,
			RefreshToken: tok.RefreshToken,
			ExpiresAt:    auth.ExpiresAtFromNow(tok.ExpiresIn, time.Now()),
		}, nil
	})
	broker := auth.NewBroker(*cred, refresher, cfg.Auth.SafetyMargin, log, auth.WithStore(manager))

	limiter := ratelimit.NewTokenBucket(cfg.RateLimit.RequestsPerMinute, time.Minute)
	exec := fetcher.NewAPIExecutor(client, broker, limiter, cfg.Collection.SiteID, log,
		fetcher.WithRetry(cfg.Retry.MaxAttempts, &retry.ExponentialBackoff{
			BaseDelay:    cfg.Retry.BaseDelay,
			MaxDelay:     cfg.Retry.MaxDelay,
			Multiplier:   cfg.Retry.Multiplier,
			JitterFactor: cfg.Retry.Jitter,
		}))

	datasetPath := filepath.Join(cfg.Output.Directory, cfg.Output.DatasetFile)
	writer, err := dataset.NewWriter(datasetPath, log)
	if err != nil {
		return fmt.Errorf("failed to open dataset: %w", err)
	}
	defer writer.Close()

	acc := collector.NewAccumulator(cfg.Collection.TargetSize, writer)

	cpManager, err := checkpoint.NewManager(filepath.Join(cfg.Output.Directory, "checkpoint.json"), log)
	if err != nil {
		return fmt.Errorf("failed to initialize checkpoint store: %w", err)
	}
	if forceRestart {
		if err := cpManager.Delete(); err != nil {
			return fmt.Errorf("failed to discard checkpoint: %w", err)
		}
	}

	strategy, err := collector.NewStrategy(&cfg.Collection, cat)
	if err != nil {
		return err
	}

	pool := fetcher.NewWorkerPool(cfg.Collection.Parallelism, exec, acc, log)
	sched := collector.NewScheduler(cat, strategy, acc, pool, &cfg.Collection, &cfg.RateLimit, log,
		collector.WithCheckpointer(cpManager, cfg.Collection.CheckpointEvery))

	if snap, err := cpManager.Load(); err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	} else if snap != nil {
		if snap.Strategy != strategy.Name() {
			return fmt.Errorf("checkpoint was taken with strategy %q, current strategy is %q; rerun with --restart to discard it", snap.Strategy, strategy.Name())
		}
		acc.Restore(snap.SeenIDs, snap.Counts)
		sched.Restore(snap)
		fmt.Printf("Resuming from checkpoint: %d items collected, %d pages fetched\n", acc.Count(), snap.PagesFetched)
	}

	if cfg.Output.MetricsAddr != "" {
		go serveMetrics(cfg.Output.MetricsAddr, log)
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Collecting %d items from site %s (%s strategy, %d workers)\n",
		cfg.Collection.TargetSize, cfg.Collection.SiteID, strategy.Name(), cfg.Collection.Parallelism)

	summary, runErr := sched.Run(runCtx)

	if err := writer.Flush(); err != nil {
		log.WithError(err).Error("failed to flush dataset")
	}

	if summary != nil {
		printSummary(summary, datasetPath)
		switch summary.Reason {
		case collector.ReasonTargetReached, collector.ReasonCatalogExhausted:
			if err := cpManager.Delete(); err != nil {
				log.WithError(err).Warn("failed to remove checkpoint")
			}
		default:
			fmt.Printf("Checkpoint kept at %s; rerun to resume\n", cpManager.Path())
		}
	}

	return runErr
}

// loadCatalog returns the configured catalog file, or the built-in category
// catalog when none is configured.
func loadCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	if cfg.Collection.CatalogFile == "" {
		return catalog.Default(), nil
	}
	cat, err := catalog.Load(cfg.Collection.CatalogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog %s: %w", cfg.Collection.CatalogFile, err)
	}
	return cat, nil
}

func serveMetrics(addr string, log logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.WithField("addr", addr).Info("serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.WithError(err).Error("metrics endpoint failed")
	}
}

func printSummary(s *collector.Summary, datasetPath string) {
	fmt.Println()
	fmt.Println("Collection finished")
	fmt.Printf("  Reason:        %s\n", s.Reason)
	fmt.Printf("  Collected:     %d / %d unique items\n", s.TotalCollected, s.Target)
	fmt.Printf("  Pages fetched: %d\n", s.PagesFetched)
	fmt.Printf("  Duplicates:    %d\n", s.Duplicates)
	if s.SchemaErrors > 0 {
		fmt.Printf("  Schema errors: %d\n", s.SchemaErrors)
	}
	if s.NotFound > 0 {
		fmt.Printf("  Not found:     %d\n", s.NotFound)
	}
	if s.SkippedItems > 0 {
		fmt.Printf("  Skipped items: %d\n", s.SkippedItems)
	}
	if s.SkippedPairs > 0 {
		fmt.Printf("  Skipped pairs: %d\n", s.SkippedPairs)
	}
	if s.RateLimitHits > 0 {
		fmt.Printf("  Rate limited:  %d times\n", s.RateLimitHits)
	}
	fmt.Printf("  Elapsed:       %s\n", s.Elapsed.Round(time.Second))
	fmt.Println("  Per category:")
	for category, count := range s.PerCategory {
		fmt.Printf("    %-30s %d (%d families)\n", category, count, s.FamiliesSeen[category])
	}
	fmt.Printf("  Dataset:       %s\n", datasetPath)
}
