package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/shohag/feedbackhooks/internal/api"
	"github.com/shohag/feedbackhooks/internal/config"
	"github.com/shohag/feedbackhooks/internal/delivery"
	"github.com/shohag/feedbackhooks/internal/formatter"
	"github.com/shohag/feedbackhooks/internal/models"
	"github.com/shohag/feedbackhooks/internal/storage"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "feedbackhooks",
		Short: "Signed webhook delivery for TinyFeedback events",
	}

	var configPath string
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(migrateCmd(&configPath))
	rootCmd.AddCommand(sweepCmd(&configPath))
	rootCmd.AddCommand(webhookCmd(&configPath))
	rootCmd.AddCommand(statsCmd(&configPath))
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the delivery server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := cfg.RequireAPIToken(); err != nil {
				return err
			}

			log := setupLogger(cfg.Logging)

			store, err := setupStorage(cfg.Storage, log)
			if err != nil {
				return fmt.Errorf("failed to setup storage: %w", err)
			}
			defer store.Close()

			if err := store.Migrate(context.Background()); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info().Msg("database migrations completed")

			engine, err := setupDelivery(cfg, store, log)
			if err != nil {
				return err
			}
			defer engine.Close()

			pool := delivery.NewPool(cfg.Delivery, cfg.Sweep, engine.dispatcher, engine.scheduler, log)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			pool.Start(ctx)

			server := api.NewServer(cfg.Server, store, engine.dispatcher, engine.scheduler, pool, log)
			go func() {
				if err := server.Start(); err != nil && err != http.ErrServerClosed {
					log.Fatal().Err(err).Msg("server error")
				}
			}()

			log.Info().
				Str("version", version).
				Int("port", cfg.Server.Port).
				Int("workers", cfg.Delivery.Workers).
				Str("storage", cfg.Storage.Driver).
				Bool("sweep", cfg.Sweep.Enabled).
				Msg("feedbackhooks is running")

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			log.Info().Msg("shutting down...")

			if err := server.Shutdown(10 * time.Second); err != nil {
				log.Error().Err(err).Msg("server shutdown error")
			}

			pool.Stop()

			log.Info().Msg("feedbackhooks stopped")
			return nil
		},
	}
}

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log := setupLogger(cfg.Logging)

			store, err := setupStorage(cfg.Storage, log)
			if err != nil {
				return fmt.Errorf("failed to setup storage: %w", err)
			}
			defer store.Close()

			if err := store.Migrate(context.Background()); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			log.Info().Msg("migrations completed successfully")
			return nil
		},
	}
}

// sweepCmd runs a single retry sweep, for deployments that drive retries
// from an external scheduler instead of the in-process ticker.
func sweepCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Retry due deliveries once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log := setupLogger(cfg.Logging)
			store, err := openStore(cfg, log)
			if err != nil {
				return err
			}
			defer store.Close()

			engine, err := setupDelivery(cfg, store, log)
			if err != nil {
				return err
			}
			defer engine.Close()

			result, err := engine.scheduler.Sweep(cmd.Context())
			if err != nil {
				return fmt.Errorf("sweep failed: %w", err)
			}

			out, _ := json.MarshalIndent(map[string]interface{}{
				"message":       result.Message(),
				"processed":     result.Processed,
				"success_count": result.SuccessCount,
				"failure_count": result.FailureCount,
				"skipped":       result.Skipped,
			}, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}
}

func webhookCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Manage webhooks",
	}

	// webhook create
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Register a webhook for a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, _ := cmd.Flags().GetString("project")
			name, _ := cmd.Flags().GetString("name")
			url, _ := cmd.Flags().GetString("url")
			events, _ := cmd.Flags().GetStringSlice("events")

			wh, err := newWebhook(projectID, name, url, events, time.Now().UTC())
			if err != nil {
				return err
			}

			store, cleanup, err := storeFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := store.CreateWebhook(context.Background(), wh); err != nil {
				return fmt.Errorf("failed to create webhook: %w", err)
			}

			out, _ := json.MarshalIndent(struct {
				*models.Webhook
				Secret string `json:"secret"`
			}{wh, wh.Secret}, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}
	createCmd.Flags().String("project", "", "project id")
	createCmd.Flags().String("name", "", "webhook name")
	createCmd.Flags().String("url", "", "destination url")
	createCmd.Flags().StringSlice("events", []string{models.EventFeedbackCreated}, "subscribed events")

	// webhook list
	listCmd := &cobra.Command{
		Use:   "list <project_id>",
		Short: "List a project's webhooks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cleanup, err := storeFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			webhooks, err := store.ListWebhooks(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("failed to list webhooks: %w", err)
			}

			if len(webhooks) == 0 {
				fmt.Println("No webhooks found.")
				return nil
			}

			for _, wh := range webhooks {
				fmt.Printf("  %s  %-8s  %s  %s  [%s]\n", wh.ID, wh.Status, wh.Name, wh.URL, strings.Join(wh.Events, ","))
			}
			return nil
		},
	}

	cmd.AddCommand(createCmd, listCmd)
	return cmd
}

// newWebhook applies the same checks as the HTTP API before a webhook is
// stored from the command line.
func newWebhook(projectID, name, url string, events []string, now time.Time) (*models.Webhook, error) {
	if projectID == "" || name == "" || url == "" {
		return nil, fmt.Errorf("--project, --name and --url are required")
	}
	if !models.ValidDestinationURL(url) {
		return nil, fmt.Errorf("--url must be a valid HTTP or HTTPS URL")
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("--events must list at least one event")
	}
	for _, e := range events {
		if !models.ValidEvent(e) {
			return nil, fmt.Errorf("unsupported event %q", e)
		}
	}
	return &models.Webhook{
		ID:        models.NewID("wh"),
		ProjectID: projectID,
		Name:      name,
		URL:       url,
		Secret:    models.NewSecret(),
		Events:    events,
		Status:    models.WebhookActive,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func statsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <project_id>",
		Short: "Show delivery stats for a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) < 1 {
				return fmt.Errorf("usage: feedbackhooks stats <project_id>")
			}

			store, cleanup, err := storeFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := store.GetStats(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get stats: %w", err)
			}

			out, _ := json.MarshalIndent(stats, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("feedbackhooks v%s\n", version)
		},
	}
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func setupStorage(cfg config.StorageConfig, log zerolog.Logger) (storage.Storage, error) {
	switch cfg.Driver {
	case "sqlite":
		if dir := filepath.Dir(cfg.SQLite.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
		log.Info().Str("path", cfg.SQLite.Path).Msg("using SQLite storage")
		return storage.NewSQLite(cfg.SQLite.Path)
	case "postgres":
		log.Info().Msg("using PostgreSQL storage")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return storage.NewPostgres(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}

func openStore(cfg *config.Config, log zerolog.Logger) (storage.Storage, error) {
	store, err := setupStorage(cfg.Storage, log)
	if err != nil {
		return nil, fmt.Errorf("failed to setup storage: %w", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

func storeFromConfig(configPath string) (storage.Storage, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	store, err := openStore(cfg, setupLogger(cfg.Logging))
	if err != nil {
		return nil, nil, err
	}
	return store, func() { store.Close() }, nil
}

type engine struct {
	dispatcher *delivery.Dispatcher
	scheduler  *delivery.Scheduler
	closers    []func() error
}

func (e *engine) Close() {
	for _, c := range e.closers {
		_ = c()
	}
}

// setupDelivery builds the dispatcher and retry scheduler. With a redis url
// configured, sweeps across instances share one lease.
func setupDelivery(cfg *config.Config, store storage.Storage, log zerolog.Logger) (*engine, error) {
	e := &engine{}

	sender := delivery.NewSender(cfg.Delivery.Timeout)
	policy := delivery.Policy{
		Backoff:     delivery.Backoff{Base: cfg.Delivery.BaseDelay, Max: cfg.Delivery.MaxDelay},
		MaxAttempts: cfg.Delivery.MaxAttempts,
	}

	var locker delivery.Locker
	if cfg.Sweep.RedisURL != "" {
		client, err := delivery.ConnectRedis(cfg.Sweep.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect redis: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		e.closers = append(e.closers, client.Close)
		locker = delivery.NewRedisLocker(client, log)
		log.Info().Msg("using redis sweep lease")
	}

	e.dispatcher = delivery.NewDispatcher(store, sender, formatter.New(cfg.Delivery.ForwardUserEmail), policy, cfg.Delivery.FanOut, log)
	e.scheduler = delivery.NewScheduler(store, sender, policy, locker, delivery.SchedulerOptions{
		BatchSize: cfg.Sweep.BatchSize,
		FanOut:    cfg.Delivery.FanOut,
		LockTTL:   cfg.Sweep.LockTTL,
	}, log)
	return e, nil
}
