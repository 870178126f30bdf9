// Command consumerd runs the Kafka consumer control plane: the HTTP
// surface from §6 fronting the Supervisor, Store, Factory and
// Inspector, wired together at startup as explicit instances rather
// than a global singleton registry.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/madcok-co/consumerd/internal/cache"
	"github.com/madcok-co/consumerd/internal/config"
	"github.com/madcok-co/consumerd/internal/httpapi"
	"github.com/madcok-co/consumerd/internal/inspector"
	"github.com/madcok-co/consumerd/internal/logging"
	"github.com/madcok-co/consumerd/internal/processor"
	"github.com/madcok-co/consumerd/internal/spec"
	"github.com/madcok-co/consumerd/internal/supervisor"
	"github.com/madcok-co/consumerd/internal/validate"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		// logger isn't up yet; config parse failure is a startup
		// failure per §6's exit code contract.
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		return 1
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: "json"})
	defer logger.Sync()

	store, err := buildStore(cfg, logger)
	if err != nil {
		logger.Error("store init failed", "error", err)
		return 1
	}
	defer store.Close()

	cacheDriver := buildCache(cfg, logger)
	defer cacheDriver.Close()

	factory := processor.NewFactory()
	sup := supervisor.New(store, factory, logger, supervisor.Config{
		PollTimeout: cfg.PollTimeout,
		StopTimeout: cfg.StopTimeout,
	}, nil)

	insp := inspector.New(store, nil, cacheDriver, []string{cfg.KafkaBootstrapServers}, cfg.InspectorTimeout)

	server := httpapi.NewServer(sup, insp, validate.New(), logger)

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errc:
		logger.Error("http server error", "error", err)
		return 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.StopTimeout+5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	if err := sup.Shutdown(shutdownCtx); err != nil {
		logger.Error("supervisor shutdown error", "error", err)
	}

	return 0
}

func buildStore(cfg *config.Config, logger logging.Logger) (spec.Store, error) {
	if cfg.DatabaseURL == "" {
		logger.Info("using in-memory specification store")
		return spec.NewMemoryStore(), nil
	}

	db, err := gorm.Open(sqlite.Open(cfg.DatabaseURL), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, err
	}
	logger.Info("using durable specification store", "database_url", cfg.DatabaseURL)
	return spec.NewGormStore(db)
}

func buildCache(cfg *config.Config, logger logging.Logger) cache.Cache {
	if cfg.RedisURL == "" {
		logger.Info("using in-memory known-group cache")
		return cache.NewMemoryDriver()
	}
	client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisURL})
	logger.Info("using redis known-group cache", "redis_url", cfg.RedisURL)
	return cache.NewRedisDriver(client, "consumerd")
}
