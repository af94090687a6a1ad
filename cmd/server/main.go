package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/mmuslimabdulj/secret-santa/internal/config"
	httpHandler "github.com/mmuslimabdulj/secret-santa/internal/delivery/http"
	"github.com/mmuslimabdulj/secret-santa/internal/delivery/redisbus"
	"github.com/mmuslimabdulj/secret-santa/internal/delivery/ws"
	"github.com/mmuslimabdulj/secret-santa/internal/logging"
	"github.com/mmuslimabdulj/secret-santa/internal/metrics"
	"github.com/mmuslimabdulj/secret-santa/internal/middleware"
	"github.com/mmuslimabdulj/secret-santa/internal/repository/badgerstore"
	"github.com/mmuslimabdulj/secret-santa/internal/repository/sqlstore"
	"github.com/mmuslimabdulj/secret-santa/internal/usecase"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env file (ignore error if not exists, e.g. in production)
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	m := metrics.NewWithRegistry(prometheus.DefaultRegisterer, logger)

	notifier := ws.NewNotifier(ws.Options{
		SubscriberBuffer: cfg.SubscriberBuffer,
		GracePeriod:      cfg.HubGracePeriod,
		MaxMessageSize:   cfg.MaxMessageSize,
	}, logger)
	notifier.SetGauge(m.Subscribers)
	defer notifier.Close()

	if cfg.RedisURL != "" {
		rdb, err := redisbus.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()

		bridge := redisbus.New(rdb, notifier, logger)
		notifier.SetForwarder(bridge)
		go func() {
			if err := bridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("redis bridge stopped", zap.Error(err))
			}
		}()
		logger.Info("redis fan-out enabled", zap.String("instance_id", bridge.InstanceID()))
	}

	matcher, err := usecase.NewRingMatcher()
	if err != nil {
		return fmt.Errorf("seed matcher: %w", err)
	}
	rooms := usecase.NewRoomService(store, matcher, notifier, logger)
	rooms.SetMetrics(m)

	apiLimiter := middleware.NewIPRateLimiter(cfg.APILimit())
	wsLimiter := middleware.NewIPRateLimiter(cfg.WSLimit())
	strictLimiter := middleware.NewIPRateLimiter(cfg.StrictLimit())
	for _, l := range []*middleware.IPRateLimiter{apiLimiter, wsLimiter, strictLimiter} {
		go l.Run(ctx)
	}

	handler := httpHandler.NewHandler(rooms, notifier, cfg.AllowedOrigins, cfg.PublicURL, logger)
	router := httpHandler.NewRouter(handler, httpHandler.RouterOptions{
		APILimiter:     apiLimiter,
		WSLimiter:      wsLimiter,
		StrictLimiter:  strictLimiter,
		Metrics:        m,
		Gatherer:       prometheus.DefaultGatherer,
		AllowedOrigins: cfg.AllowedOrigins,
		Version:        version,
		Log:            logger,
	})

	// Create server with timeouts
	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("santa running",
			zap.String("addr", server.Addr),
			zap.String("store", cfg.StoreDriver),
			zap.String("public_url", cfg.PublicURL),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	// Graceful shutdown
	select {
	case err := <-errc:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server exited gracefully")
	return nil
}

// openStore opens the configured backend and returns a close function
func openStore(cfg *config.Config, logger *zap.Logger) (usecase.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreBadger:
		db, err := badgerstore.Open(badgerstore.Options{Path: cfg.BadgerPath, InMemory: cfg.BadgerInMemory}, logger)
		if err != nil {
			return nil, nil, err
		}
		return badgerstore.New(db, logger), func() { _ = db.Close() }, nil

	case config.StorePostgres, config.StoreSQLite:
		db, err := sqlstore.Open(sqlstore.Config{Driver: cfg.StoreDriver, DSN: cfg.DatabaseDSN}, logger)
		if err != nil {
			return nil, nil, err
		}
		return sqlstore.New(db, logger), func() { _ = sqlstore.Close(db) }, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
