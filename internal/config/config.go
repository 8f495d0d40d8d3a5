// Package config loads the process configuration exactly once at
// startup into an immutable Config value that is then passed
// explicitly through every constructor (spec §9 "no ambient
// singletons") — no package reaches for a package-level viper.Get*
// call of its own.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully-resolved process configuration. Every field is
// set once by Load and never mutated afterward.
type Config struct {
	HTTPAddr string
	LogLevel string
	LogJSON  bool

	PostgresDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret string

	TaskQueue                  string
	MaxConcurrentActivities    int
	MaxConcurrentWorkflowTasks int

	RateLimit RateLimitSection

	EmailEndpoint       string
	PaymentEndpoint     string
	DNSSSLEndpoint      string
	ScannerEndpoint     string
	ObjectStoreEndpoint string

	RetentionSweepCron string
	LicenseExpiryCron  string
}

// RateLimitSection mirrors internal/quota.RateLimitConfig's shape so
// it can be loaded from config and converted at the call site.
type RateLimitSection struct {
	MaxAttemptsPerHour     int64
	MaxAttemptsPerDay      int64
	LockoutDurationMinutes int
	ProgressiveDelay       bool
}

// Load reads configuration from (in ascending priority) the process's
// defaults, a config file named orchestrator.yaml on the given search
// paths, and environment variables prefixed ORCHESTRATOR_.
func Load(configPaths ...string) (Config, error) {
	v := viper.New()
	v.SetConfigName("orchestrator")
	v.SetConfigType("yaml")
	for _, p := range configPaths {
		v.AddConfigPath(p)
	}
	v.SetEnvPrefix("ORCHESTRATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("config: read config: %w", err)
		}
	}

	cfg := Config{
		HTTPAddr:    v.GetString("http.addr"),
		LogLevel:    v.GetString("log.level"),
		LogJSON:     v.GetBool("log.json"),
		PostgresDSN: v.GetString("postgres.dsn"),

		RedisAddr:     v.GetString("redis.addr"),
		RedisPassword: v.GetString("redis.password"),
		RedisDB:       v.GetInt("redis.db"),

		JWTSecret: v.GetString("jwt.secret"),

		TaskQueue:                  v.GetString("engine.task_queue"),
		MaxConcurrentActivities:    v.GetInt("engine.max_concurrent_activities"),
		MaxConcurrentWorkflowTasks: v.GetInt("engine.max_concurrent_workflow_tasks"),

		RateLimit: RateLimitSection{
			MaxAttemptsPerHour:     v.GetInt64("rate_limit.max_attempts_per_hour"),
			MaxAttemptsPerDay:      v.GetInt64("rate_limit.max_attempts_per_day"),
			LockoutDurationMinutes: v.GetInt("rate_limit.lockout_duration_minutes"),
			ProgressiveDelay:       v.GetBool("rate_limit.progressive_delay"),
		},

		EmailEndpoint:       v.GetString("adapters.email_endpoint"),
		PaymentEndpoint:     v.GetString("adapters.payment_endpoint"),
		DNSSSLEndpoint:      v.GetString("adapters.dns_ssl_endpoint"),
		ScannerEndpoint:     v.GetString("adapters.scanner_endpoint"),
		ObjectStoreEndpoint: v.GetString("adapters.object_store_endpoint"),

		RetentionSweepCron: v.GetString("schedules.retention_sweep_cron"),
		LicenseExpiryCron:  v.GetString("schedules.license_expiry_cron"),
	}

	if cfg.PostgresDSN == "" {
		return Config{}, fmt.Errorf("config: postgres.dsn is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("config: jwt.secret is required")
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", true)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("engine.task_queue", "orchestrator-default")
	v.SetDefault("engine.max_concurrent_activities", 100)
	v.SetDefault("engine.max_concurrent_workflow_tasks", 100)

	v.SetDefault("rate_limit.max_attempts_per_hour", 10)
	v.SetDefault("rate_limit.max_attempts_per_day", 50)
	v.SetDefault("rate_limit.lockout_duration_minutes", 30)
	v.SetDefault("rate_limit.progressive_delay", true)

	v.SetDefault("schedules.retention_sweep_cron", "0 2 * * *")
	v.SetDefault("schedules.license_expiry_cron", "0 3 * * *")
}

// RateLimitConfigTimeout is exported so callers converting
// RateLimitSection to internal/quota.RateLimitConfig have a shared
// constant for the lockout-check request timeout, rather than each
// cmd/ entrypoint inventing its own.
const RateLimitConfigTimeout = 5 * time.Second
