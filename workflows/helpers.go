package workflows

import (
	"time"

	"go.uber.org/zap"

	"github.com/saastenant/orchestrator/internal/workflow"
)

// dbActivityOptions is the shared workflow-side timeout/retry profile
// for activities that only touch internal/store, matching the engine's
// "database" named retry preset.
func dbActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Second,
		RetryPolicyName:     "database",
	}
}

// externalActivityOptions is the shared profile for activities that
// call an internal/adapters collaborator (email/payment/DNS/SSL/
// object storage/vuln scanner), matching the engine's
// "external_service" named retry preset (honors RetryAfter, scenario
// F).
func externalActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		HeartbeatTimeout:    10 * time.Second,
		RetryPolicyName:     "external_service",
	}
}

// getFuture awaits f and discards its typed result, returning only the
// error — used where a step's success/failure is all the caller needs.
func getFuture[T any](ctx workflow.Context, f workflow.Future) error {
	var v T
	return f.Get(ctx, &v)
}

// logCompensationError logs a best-effort compensation failure without
// masking the workflow's original terminal error.
func logCompensationError(ctx workflow.Context, step string, err error) {
	ctx.GetLogger().Error("compensation step failed", zap.String("step", step), zap.Error(err))
}
