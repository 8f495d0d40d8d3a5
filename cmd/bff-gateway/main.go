// Command bff-gateway is the HTTP entrypoint for the BFF/API
// component (spec §4.E): it resolves tenant/user identity, delegates
// every mutation to a durable workflow start, and serves aggregate
// reads through the fingerprinted cache instead of querying the store
// directly.
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/saastenant/orchestrator/internal/cache"
	"github.com/saastenant/orchestrator/internal/config"
	"github.com/saastenant/orchestrator/internal/store"
	"github.com/saastenant/orchestrator/internal/telemetry"
	"github.com/saastenant/orchestrator/internal/tenant"
	"github.com/saastenant/orchestrator/internal/wiring"
	"github.com/saastenant/orchestrator/pkg/client"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "bff-gateway:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(".", "/etc/orchestrator")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := telemetry.NewLogger(telemetry.LoggerConfig{Level: cfg.LogLevel, JSON: cfg.LogJSON})
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()
	metrics := telemetry.NewMetrics("bff_gateway")

	db, err := store.Open(cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	redisClient := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.RedisAddr},
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()
	cacheStore := cache.NewRedisStore(redisClient)

	built := wiring.Build(wiring.Deps{Cfg: cfg, Logger: logger, Metrics: metrics, Store: db, Cache: cacheStore})
	// The gateway embeds the same worker loop as cmd/orchestrator-worker
	// so it can serve requests standalone against the in-memory driver
	// (see internal/wiring's doc comment on why the two binaries don't
	// share one running engine). In a deployment that also runs
	// orchestrator-worker against the same task queue both compete for
	// the queue's activity tasks harmlessly; the quota/license/tenant
	// state they observe is consistent because both read/write the same
	// Postgres and Redis.
	if err := built.Engine.StartWorker(cfg.TaskQueue, cfg.MaxConcurrentActivities, cfg.MaxConcurrentWorkflowTasks); err != nil {
		return fmt.Errorf("start embedded worker: %w", err)
	}
	defer built.Engine.StopWorker(cfg.TaskQueue)

	app := &server{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		store:   db,
		auth:    tenant.Authenticator{Secret: []byte(cfg.JWTSecret)},
		resolve: db.Resolver(),
		client:  client.New(built.Engine),
		driver:  built.Engine,
		bcache:  built.Cache,
		index:   built.Index,
		agg:     built.Aggregator,
	}

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      app.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	logger.Info("bff-gateway listening", zap.String("addr", cfg.HTTPAddr))
	return srv.ListenAndServe()
}
