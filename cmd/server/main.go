package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/yourorg/checkout-gateway/internal/callback"
	"github.com/yourorg/checkout-gateway/internal/idempotency"
	"github.com/yourorg/checkout-gateway/internal/logging"
	"github.com/yourorg/checkout-gateway/internal/order"
	"github.com/yourorg/checkout-gateway/internal/payment"
	"github.com/yourorg/checkout-gateway/internal/reporting"
	"github.com/yourorg/checkout-gateway/internal/settings"
	"github.com/yourorg/checkout-gateway/internal/shutdown"
	"github.com/yourorg/checkout-gateway/internal/store/memory"
	"github.com/yourorg/checkout-gateway/internal/store/postgres"
	"github.com/yourorg/checkout-gateway/internal/telemetry"
)

const serviceName = "checkout-gateway"

// Options are the process flags; every flag can also come from the environment.
type Options struct {
	Addr         string `long:"addr" env:"HTTP_ADDR" default:":8080" description:"HTTP listen address"`
	SettingsFile string `long:"settings" env:"SETTINGS_FILE" default:"settings.json" description:"payment plugin settings document"`
	PgURL        string `long:"pg-url" env:"PG_URL" description:"postgres URL; orders are kept in memory when empty"`
	RedisAddr    string `long:"redis-addr" env:"REDIS_ADDR" description:"redis address; callback locks are in-process when empty"`
	LogLevel     string `long:"log-level" env:"LOG_LEVEL" default:"info" description:"debug, info, warn or error"`
	TraceStdout  bool   `long:"trace-stdout" env:"TRACE_STDOUT" description:"write spans to stdout"`
	JournalSize  int    `long:"journal-size" env:"JOURNAL_SIZE" default:"10000" description:"payment events kept for the retrospective"`
}

// orderBackend is everything the payment methods need from the host.
type orderBackend interface {
	order.Store
	order.Processing
	order.Attributes
}

func parseOptions(args []string) (*Options, error) {
	opts := &Options{}
	if _, err := flags.ParseArgs(opts, args); err != nil {
		return nil, err
	}
	return opts, nil
}

func newRegistry(src settings.Source, backend orderBackend, locker idempotency.Locker, journal *reporting.Journal, log *slog.Logger) *payment.Registry {
	deps := payment.Deps{
		Settings:   src,
		Orders:     backend,
		Processing: backend,
		Attributes: backend,
		Locker:     locker,
		Journal:    journal,
		Logger:     log,
	}
	return payment.NewRegistry(
		payment.NewQuaesturProcessor(deps),
		payment.NewStripeCheckoutProcessor(deps),
	)
}

func setupRouter(h *callback.Handler) *gin.Engine {
	router := gin.Default()
	router.Use(otelgin.Middleware(serviceName))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	h.Register(router)
	return router
}

func run(ctx context.Context, opts *Options, log *slog.Logger) error {
	shutdownTracer, err := telemetry.InitTracer(ctx, serviceName, opts.TraceStdout)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracer(context.WithoutCancel(ctx)) }()

	var backend orderBackend
	if opts.PgURL != "" {
		pool, err := pgxpool.New(ctx, opts.PgURL)
		if err != nil {
			return fmt.Errorf("pg connect: %w", err)
		}
		defer pool.Close()
		pg := postgres.New(log, pool)
		if err := pg.Migrate(ctx); err != nil {
			return fmt.Errorf("pg migrate: %w", err)
		}
		backend = pg
	} else {
		log.Warn("PG_URL not set, orders are kept in memory")
		backend = memory.New()
	}

	var locker idempotency.Locker
	if opts.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: opts.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		locker = idempotency.NewRedisLocker(rdb)
	} else {
		locker = idempotency.NewMemoryLocker()
	}

	src := settings.NewFileSource(opts.SettingsFile)
	if _, err := src.Load(ctx); err != nil {
		log.Warn("settings not usable yet, payment methods stay unavailable", "file", opts.SettingsFile, "err", err)
	}

	journal := reporting.NewJournal(opts.JournalSize)
	registry := newRegistry(src, backend, locker, journal, log)
	router := setupRouter(callback.NewHandler(registry, journal, log))

	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", opts.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func main() {
	opts, err := parseOptions(os.Args[1:])
	if err != nil {
		var fe *flags.Error
		if errors.As(err, &fe) && fe.Type == flags.ErrHelp {
			return
		}
		os.Exit(2)
	}
	log := logging.New(opts.LogLevel)
	slog.SetDefault(log)

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	if err := run(ctx, opts, log); err != nil {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
	log.Info("server shutdown")
}
