package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"zcommit/internal"
	"zcommit/pkg/api"
	"zcommit/pkg/storage/deliveries"
	"zcommit/pkg/zcommit"
	"zcommit/pkg/zsend"
	"zcommit/webhook"
)

func serveCmd() *cobra.Command {
	var (
		configPath string
		envFile    string
		dryRun     bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the HTTP server.

Configuration is read from the YAML file given by --config. A .env file is
loaded first when present. ZCOMMIT_PORT, ZCOMMIT_ZSEND_PATH,
ZCOMMIT_COMMIT_ORDER, ZCOMMIT_LOG_LEVEL and ZCOMMIT_GITHUB_SECRET override
the file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadEnvFile(envFile); err != nil {
				return err
			}
			cfg, err := internal.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if dryRun {
				cfg.ZSend.DryRun = true
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "config.yaml", "Path to config file")
	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file (default: .env in current directory)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Log notifications instead of running zsend")

	return cmd
}

func runServe(ctx context.Context, cfg internal.Config) error {
	logger, logCloser, err := internal.ConfigureLogger("server", cfg.Log)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	order, err := zcommit.ParseOrder(cfg.ZCommit.CommitOrder)
	if err != nil {
		return err
	}

	rules, err := internal.NewRuleEngine(internal.RulesConfig{
		Rules:  cfg.Rules,
		Strict: cfg.RulesStrict,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	pipeline := &webhook.Pipeline{
		Sender: newSender(cfg.ZSend, logger),
		Rules:  rules,
		Topic:  cfg.Mirror.Topic,
		Logger: logger,
	}

	if cfg.Mirror.Enabled {
		publisher, err := internal.NewPublisher(cfg.Mirror, logger)
		if err != nil {
			return err
		}
		defer publisher.Close()
		pipeline.Publisher = publisher
	}

	var deliveriesHandler http.Handler
	if cfg.Storage.Enabled {
		store, err := deliveries.Open(deliveries.Config{
			Driver:      cfg.Storage.Driver,
			DSN:         cfg.Storage.DSN,
			Table:       cfg.Storage.Table,
			AutoMigrate: cfg.Storage.AutoMigrate,
		})
		if err != nil {
			return err
		}
		defer store.Close()
		pipeline.Journal = store
		deliveriesHandler = &api.DeliveriesHandler{Store: store, Logger: logger}
	}

	handler, err := webhook.NewRouter(webhook.RouterConfig{
		MountPath:      cfg.Server.MountPath,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		GitHubSecret:   cfg.ZCommit.GitHubSecret,
		Translator:     zcommit.Translator{Order: order},
		Pipeline:       pipeline,
		Deliveries:     deliveriesHandler,
		MetricsEnabled: cfg.Server.MetricsEnabled,
		MetricsPath:    cfg.Server.MetricsPath,
		RateLimitRPS:   cfg.Server.RateLimitRPS,
		RateLimitBurst: cfg.Server.RateLimitBurst,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	addr := ":" + strconv.Itoa(cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeoutMS) * time.Millisecond,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeoutMS) * time.Millisecond,
		IdleTimeout:       time.Duration(cfg.Server.IdleTimeoutMS) * time.Millisecond,
		ReadHeaderTimeout: time.Duration(cfg.Server.ReadHeaderMS) * time.Millisecond,
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", addr).
			Str("mount", cfg.Server.MountPath).
			Str("zsend", cfg.ZSend.Path).
			Str("order", string(order)).
			Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("shutdown")
	}
	return nil
}

func newSender(cfg internal.ZSendConfig, logger zerolog.Logger) zcommit.NotificationSender {
	if cfg.DryRun {
		logger.Warn().Msg("dry run: zephyrs are logged, not sent")
		return zsend.LogSender{Logger: logger}
	}
	return zsend.New(zsend.Config{
		Path:    cfg.Path,
		Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond,
	}, logger, zsend.WithObserver(internal.ObserveDispatch))
}
