package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/MegaGrindStone/chatbot-widget/internal/handlers"
	"github.com/MegaGrindStone/chatbot-widget/internal/middleware"
	"github.com/MegaGrindStone/chatbot-widget/internal/services"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	appName         = "chatbot-widget"
	shutdownTimeout = 30 * time.Second
)

type windowStore interface {
	middleware.WindowStore
	handlers.Pinger
	Close() error
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var cfgPath, port string

	cmd := &cobra.Command{
		Use:          "chatbot-server",
		Short:        "Serve the chat endpoint and the browser widget",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// .env is optional
			_ = godotenv.Load()

			if cfgPath == "" {
				p, err := defaultConfigPath()
				if err != nil {
					return err
				}
				cfgPath = p
			}

			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&cfgPath, "config", os.Getenv("CHATBOT_CONFIG"), "path to the YAML config file")
	cmd.Flags().StringVar(&port, "port", "", "port to listen on, overrides the config file")

	return cmd
}

func defaultConfigPath() (string, error) {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "error getting user config dir")
	}
	return filepath.Join(cfgDir, appName, "config.yaml"), nil
}

func newLogger(cfg config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.isDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(level).With().Timestamp().Logger()
}

// newWindowStore opens the rate limit counter store: Redis when configured, a local bolt file otherwise.
func newWindowStore(ctx context.Context, cfg rateLimitConfig) (windowStore, error) {
	if cfg.RedisURL != "" {
		return services.NewRedis(ctx, cfg.RedisURL)
	}

	path := cfg.BoltPath
	if path == "" {
		cfgDir, err := os.UserConfigDir()
		if err != nil {
			return nil, errors.Wrap(err, "error getting user config dir")
		}
		path = filepath.Join(cfgDir, appName, "ratelimit.db")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "error creating rate limit store directory")
	}
	return services.NewBoltDB(path)
}

func run(ctx context.Context, cfg config) error {
	logger := newLogger(cfg)

	llm, err := cfg.LLM.llm(logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create LLM")
		return err
	}

	healthChecks := map[string]handlers.Pinger{}

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		store, err := newWindowStore(ctx, cfg.RateLimit)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to open rate limit store")
			return err
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Warn().Err(err).Msg("Failed to close rate limit store")
			}
		}()
		healthChecks["ratelimit"] = store

		limiter = middleware.NewRateLimiter(store, middleware.RateLimiterConfig{
			Requests:  cfg.RateLimit.Requests,
			Window:    cfg.RateLimit.Window,
			Whitelist: cfg.RateLimit.Whitelist,
		}, logger)
	}

	m, err := handlers.NewMain(llm, handlers.Config{
		MaxDuration:  cfg.MaxDuration,
		Widget:       cfg.Widget,
		HealthChecks: healthChecks,
	}, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create handlers")
		return err
	}

	router, err := newRouter(m, limiter, cfg.CORSOrigins, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Bool("rateLimit", limiter != nil).
			Msg("Server starting")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server failed")
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "server forced to shutdown")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("Server stopped with error")
		return err
	}
	logger.Info().Msg("Server stopped")
	return nil
}
