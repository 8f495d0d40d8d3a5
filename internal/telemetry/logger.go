// Package telemetry builds the process-wide zap logger and Prometheus
// metric registry the rest of the control plane depends on, so no
// package reaches for a package-level logging/metrics singleton of its
// own (spec §9 "no ambient singletons" — everything is constructed
// once at process init and passed explicitly).
package telemetry

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerConfig controls the process logger's verbosity and encoding.
type LoggerConfig struct {
	Level       string // debug, info, warn, error
	Development bool
	JSON        bool
}

// NewLogger builds a *zap.Logger from zap's development config
// (console-encoded, with caller/stacktrace) when cfg.Development is set
// and from its production config otherwise; the production config
// writes JSON only when cfg.JSON is set and console otherwise, matching
// the teacher's own `replayer`/worker logging setup.
func NewLogger(cfg LoggerConfig) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, err
		}
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	if !cfg.JSON {
		zcfg.Encoding = "console"
	}
	return zcfg.Build()
}
