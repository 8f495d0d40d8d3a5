// Command orchestrator-worker is the durable-execution worker
// process: it runs migrations, wires every activity and workflow
// registration into an in-process engine, and starts the scheduled
// housekeeping workflows (data retention, license expiry) on cron.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/saastenant/orchestrator/internal/cache"
	"github.com/saastenant/orchestrator/internal/config"
	"github.com/saastenant/orchestrator/internal/store"
	"github.com/saastenant/orchestrator/internal/telemetry"
	"github.com/saastenant/orchestrator/internal/tenant"
	"github.com/saastenant/orchestrator/internal/wiring"
	"github.com/saastenant/orchestrator/pkg/client"
	"github.com/saastenant/orchestrator/workflows"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "orchestrator-worker:", err)
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

	metrics := telemetry.NewMetrics("orchestrator")

	sqlDB, err := sql.Open("pgx", cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer sqlDB.Close()
	if err := store.Migrate(sqlDB); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

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
	eng := built.Engine

	if err := eng.StartWorker(cfg.TaskQueue, cfg.MaxConcurrentActivities, cfg.MaxConcurrentWorkflowTasks); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	defer eng.StopWorker(cfg.TaskQueue)

	cl := client.New(eng)
	sched := cron.New()
	if _, err := sched.AddFunc(cfg.RetentionSweepCron, func() {
		runScheduled(logger, cl, "data_retention_sweep", workflows.DataRetentionSweepInput{})
	}); err != nil {
		return fmt.Errorf("schedule retention sweep: %w", err)
	}
	if _, err := sched.AddFunc(cfg.LicenseExpiryCron, func() {
		runScheduled(logger, cl, "license_expiry_scan", workflows.LicenseExpiryScanInput{})
	}); err != nil {
		return fmt.Errorf("schedule license expiry scan: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	logger.Info("orchestrator-worker started", zap.String("task_queue", cfg.TaskQueue))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("orchestrator-worker shutting down")
	return nil
}

// runScheduled starts a cron-triggered housekeeping workflow with a
// deterministic, once-per-tick workflow id so an overlapping trigger
// (worker restart mid-tick, clock skew) can't double-run the same
// sweep concurrently.
func runScheduled[I any](logger *zap.Logger, cl *client.Client, workflowType string, input I) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	workflowID := fmt.Sprintf("%s-%s", workflowType, time.Now().UTC().Format("2006-01-02"))
	_, err := client.Start(ctx, cl, workflowType, client.StartOptions{WorkflowID: workflowID}, tenant.Context{}, input)
	if err != nil {
		logger.Error("scheduled workflow start failed", zap.String("workflow_type", workflowType), zap.Error(err))
	}
}
