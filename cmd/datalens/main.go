package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/datalens-dev/datalens/internal/alerting"
	"github.com/datalens-dev/datalens/internal/cache"
	"github.com/datalens-dev/datalens/internal/metrics"
	"github.com/datalens-dev/datalens/internal/notifier"
	"github.com/datalens-dev/datalens/internal/storage"
	"github.com/datalens-dev/datalens/internal/warehouse"
	"github.com/datalens-dev/datalens/pkg/config"
)

var (
	configFile string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "datalens",
	Short: "DataLens - analytics alerting and query result caching",
	Long: `DataLens evaluates user-defined alerts against the analytics warehouse
and caches warehouse query results in a local metadata store. Alert
checks are driven by an external scheduler such as cron.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("datalens %s\n", config.Version)
		fmt.Printf("  commit: %s\n", config.Commit)
		fmt.Printf("  built:  %s\n", config.BuildTime)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply metadata database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		log.Printf("database migrated at %s", cfg.Database.Path)
		return nil
	},
}

var checkAlertsCmd = &cobra.Command{
	Use:   "check-alerts",
	Short: "Evaluate all active alerts once and send notifications",
	RunE:  runCheckAlerts,
}

var checkAlertCmd = &cobra.Command{
	Use:   "check-alert <alert-id>",
	Short: "Evaluate a single alert on demand, ignoring its active flag",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheckAlert,
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the query result cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print query result cache statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		rc := cache.New(store.QueryCache(), cacheConfig(cfg))
		stats, err := rc.Stats(cmd.Context())
		if err != nil {
			return fmt.Errorf("cache stats: %w", err)
		}

		fmt.Printf("entries:        %d\n", stats.Entries)
		fmt.Printf("expired:        %d\n", stats.Expired)
		fmt.Printf("total accesses: %d\n", stats.TotalAccesses)
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all query result cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		rc := cache.New(store.QueryCache(), cacheConfig(cfg))
		removed, err := rc.Clear(cmd.Context())
		if err != nil {
			return fmt.Errorf("cache clear: %w", err)
		}

		fmt.Printf("removed %d entries\n", removed)
		return nil
	},
}

var checkUserID string

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	checkAlertCmd.Flags().StringVarP(&checkUserID, "user", "u", "", "owning user ID (required)")
	checkAlertCmd.MarkFlagRequired("user")

	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd)
	rootCmd.AddCommand(versionCmd, migrateCmd, checkAlertsCmd, checkAlertCmd, cacheCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*Config, error) {
	var cfg *Config
	if configFile != "" {
		var err error
		cfg, err = LoadConfig(configFile)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg = DefaultConfig()
	}
	cfg.Verbose = verbose
	return cfg, nil
}

// openStore opens the metadata database and applies migrations.
func openStore(cfg *Config) (*storage.SQLiteStorage, error) {
	dbDir := filepath.Dir(cfg.Database.Path)
	if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	store := storage.NewSQLiteStorage(cfg.Database.Path)
	if err := store.Open(); err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return store, nil
}

func cacheConfig(cfg *Config) cache.Config {
	return cache.Config{
		TTL:           cfg.Cache.TTL(),
		MaxSize:       cfg.Cache.MaxSize,
		EvictionSlack: cfg.Cache.EvictionSlack,
	}
}

// buildDispatcher registers the configured notification transports.
func buildDispatcher(cfg *Config) (*notifier.Dispatcher, error) {
	dispatcher := notifier.NewDispatcherWithRateLimit(notifier.RateLimitConfig{
		MaxPerWindow: cfg.Notifier.RateLimit.MaxPerWindow,
		Window:       time.Duration(cfg.Notifier.RateLimit.WindowSeconds) * time.Second,
		Enabled:      !cfg.Notifier.RateLimit.Disabled,
	})

	if cfg.Notifier.Email.Enabled() {
		email, err := notifier.NewEmailNotifier(notifier.EmailConfig{
			Host:       cfg.Notifier.Email.Host,
			Port:       cfg.Notifier.Email.Port,
			Username:   cfg.Notifier.Email.Username,
			Password:   os.Getenv("DATALENS_SMTP_PASSWORD"),
			From:       cfg.Notifier.Email.From,
			Recipients: cfg.Notifier.Email.Recipients,
		})
		if err != nil {
			return nil, fmt.Errorf("email notifier: %w", err)
		}
		dispatcher.Register(email)
	}

	if cfg.Notifier.Webhook.Enabled() {
		chat, err := notifier.NewChatNotifier(notifier.WebhookConfig{
			WebhookURL: cfg.Notifier.Webhook.URL,
			Username:   cfg.Notifier.Webhook.Username,
		})
		if err != nil {
			return nil, fmt.Errorf("chat notifier: %w", err)
		}
		dispatcher.Register(chat)
	}

	return dispatcher, nil
}

// buildChecker wires the full check pipeline: warehouse executor, result
// cache, notification dispatcher, and the batch checker.
func buildChecker(cfg *Config, store *storage.SQLiteStorage) (*alerting.Checker, func(), error) {
	ch := warehouse.NewClickHouseExecutor(&warehouse.ClickHouseConfig{
		Addresses:    cfg.Warehouse.Addresses,
		Database:     cfg.Warehouse.Database,
		Username:     cfg.Warehouse.Username,
		Password:     cfg.Warehouse.Password,
		MaxOpenConns: cfg.Warehouse.MaxOpenConns,
		MaxIdleConns: cfg.Warehouse.MaxIdleConns,
		DialTimeout:  time.Duration(cfg.Warehouse.DialTimeoutSeconds) * time.Second,
		QueryTimeout: time.Duration(cfg.Warehouse.QueryTimeoutSeconds) * time.Second,
		Compression:  cfg.Warehouse.Compression,
		MaxRows:      cfg.Warehouse.MaxRows,
	})
	if err := ch.Open(); err != nil {
		return nil, nil, fmt.Errorf("open warehouse: %w", err)
	}

	rc := cache.New(store.QueryCache(), cacheConfig(cfg))
	exec := warehouse.NewCachingExecutor(ch, rc, cfg.Warehouse.MaxRows)

	dispatcher, err := buildDispatcher(cfg)
	if err != nil {
		ch.Close()
		return nil, nil, err
	}

	checker := alerting.NewChecker(store, alerting.NewEvaluator(exec), dispatcher, cfg.Alerting.Concurrency)
	cleanup := func() {
		dispatcher.Close()
		ch.Close()
	}
	return checker, cleanup, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Printf("received signal %v, shutting down...", sig)
		cancel()
	}()

	return ctx, cancel
}

func runCheckAlerts(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	checker, cleanup, err := buildChecker(cfg, store)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := signalContext()
	defer cancel()

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Address)
		go func() {
			if err := metricsServer.Start(); err != nil {
				log.Printf("metrics server: %v", err)
			}
		}()
	}

	log.Printf("starting alert check run, datalens %s", config.Version)
	start := time.Now()

	batch, err := checker.CheckAll(ctx)
	if err != nil {
		return fmt.Errorf("check alerts: %w", err)
	}

	log.Printf("checked %d alerts in %s: %d triggered, %d errors",
		batch.CheckedCount, time.Since(start).Round(time.Millisecond),
		batch.TriggeredCount, batch.ErrorCount)

	if verbose {
		for _, r := range batch.Results {
			switch {
			case r.Err != nil:
				log.Printf("  %s (%s): error: %v", r.AlertName, r.AlertID, r.Err)
			case r.NoData:
				log.Printf("  %s (%s): no data", r.AlertName, r.AlertID)
			case r.Triggered:
				log.Printf("  %s (%s): triggered, value %g, sent=%v", r.AlertName, r.AlertID, r.MetricValue, r.Sent)
			default:
				log.Printf("  %s (%s): ok, value %g", r.AlertName, r.AlertID, r.MetricValue)
			}
		}
	}

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		metricsServer.Shutdown(shutdownCtx)
	}

	return nil
}

func runCheckAlert(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	checker, cleanup, err := buildChecker(cfg, store)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := signalContext()
	defer cancel()

	result, err := checker.CheckOne(ctx, args[0], checkUserID)
	if err != nil {
		return fmt.Errorf("check alert: %w", err)
	}

	switch {
	case result.NoData:
		fmt.Printf("%s: no data\n", result.AlertName)
	case result.Triggered:
		fmt.Printf("%s: triggered, value %g, notification sent=%v\n", result.AlertName, result.MetricValue, result.Sent)
	default:
		fmt.Printf("%s: ok, value %g\n", result.AlertName, result.MetricValue)
	}
	return nil
}
