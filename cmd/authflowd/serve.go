package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eventlyze/authflow"
	"github.com/eventlyze/authflow/httpapi"
	promexport "github.com/eventlyze/authflow/metrics/export/prometheus"
	"github.com/eventlyze/authflow/notify"
	"github.com/eventlyze/authflow/store/postgres"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"github.com/spf13/cobra"
)

// NewServeCmd creates the serve command.
func NewServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadConfig(flags.configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *Config) error {
	logger := cfg.NewLogger()

	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return err
	}
	cookie, err := cfg.CookieSettings()
	if err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}

	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisPassword, err := cfg.redisPassword()
	if err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: redisPassword,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := waitForRedis(ctx, rdb, logger); err != nil {
		return err
	}

	notifier, err := newNotifier(cfg, logger)
	if err != nil {
		return err
	}

	engine, err := authflow.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithUserProvider(postgres.NewUserStore(pool)).
		WithNotifier(notifier).
		WithAuditSink(authflow.NewSlogSink(logger.With("component", "audit"))).
		WithLogger(logger).
		Build()
	if err != nil {
		return oops.Code("ENGINE_INIT_FAILED").Wrap(err)
	}
	defer engine.Close()

	mux := http.NewServeMux()
	mux.Handle("/", httpapi.New(engine, httpapi.Config{
		Prefix:          cfg.HTTP.Prefix,
		Cookie:          cookie,
		TrustedIPHeader: cfg.HTTP.TrustedIPHeader,
		Logger:          logger,
	}).Routes())
	mux.HandleFunc("GET /healthz", healthHandler(engine))
	if cfg.Metrics.Enabled {
		mux.Handle("GET "+cfg.Metrics.Path, promexport.NewPrometheusExporter(engine).Handler())
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTP.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return oops.Code("HTTP_SERVER_FAILED").Wrap(err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return oops.Code("HTTP_SHUTDOWN_FAILED").Wrap(err)
	}
	return nil
}

func newNotifier(cfg *Config, logger *slog.Logger) (authflow.Notifier, error) {
	if cfg.Reset.WebhookURL == "" {
		if !cfg.Reset.LogLinks {
			logger.Warn("no reset webhook configured; reset links are only logged without the token")
		}
		return &notify.LogNotifier{Logger: logger, RevealLink: cfg.Reset.LogLinks}, nil
	}

	token, err := cfg.webhookToken()
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	n, err := notify.NewWebhookNotifier(notify.WebhookConfig{
		URL:       cfg.Reset.WebhookURL,
		AuthToken: token,
	})
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	return n, nil
}

func healthHandler(engine *authflow.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := engine.Health(r.Context())
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if !status.RedisAvailable {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("redis unavailable\n"))
			return
		}
		_, _ = w.Write([]byte("ok\n"))
	}
}

// waitForRedis pings until Redis answers, backing off up to ten attempts.
func waitForRedis(ctx context.Context, rdb redis.UniversalClient, logger *slog.Logger) error {
	backoff := retry.WithMaxRetries(10, retry.WithCappedDuration(5*time.Second, retry.NewExponential(200*time.Millisecond)))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis not ready", "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("REDIS_CONNECT_FAILED").Wrap(err)
	}
	return nil
}
