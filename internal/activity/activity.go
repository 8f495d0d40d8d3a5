// Package activity defines the contract for a single idempotent unit
// of work (component B): validation, tenant-access checks, quota
// checks, typed execution, and retry/heartbeat policy declaration.
package activity

import (
	"context"
	"time"

	"github.com/saastenant/orchestrator/internal/retry"
	"github.com/saastenant/orchestrator/internal/tenant"
)

// QuotaChecker is the narrow capability an activity needs to consult
// before producing a durable effect. internal/quota.ActivityChecker
// satisfies this; this package never imports internal/quota, keeping
// the dependency direction leaf-ward.
type QuotaChecker interface {
	Check(ctx context.Context, tenantID, resourceType string, requested int64) error
}

// Options declares an activity's retry policy, timeouts, and tags,
// mirroring the teacher SDK's ExecuteActivityOptions.
type Options struct {
	RetryPolicy            retry.Policy
	StartToCloseTimeout    time.Duration
	ScheduleToStartTimeout time.Duration
	ScheduleToCloseTimeout time.Duration
	HeartbeatTimeout       time.Duration
	Tags                   map[string]string
}

// Context is handed to Execute. It is the activity-side analogue of
// the teacher SDK's activity.Context: it exposes heartbeat, the
// idempotency key, and the propagated tenant/user identity, and wraps
// a cancelable context.Context so that IO calls observe cancellation
// and timeout (spec §5: "suspension occurs at every IO call").
type Context struct {
	context.Context
	TenantCtx      tenant.Context
	idempotencyKey string
	heartbeat      func(details ...interface{})
	attempt        int32
}

// NewContext constructs an activity Context. Engines call this when
// dispatching an activity task.
func NewContext(parent context.Context, tc tenant.Context, idempotencyKey string, attempt int32, heartbeat func(details ...interface{})) Context {
	if heartbeat == nil {
		heartbeat = func(details ...interface{}) {}
	}
	return Context{Context: parent, TenantCtx: tc, idempotencyKey: idempotencyKey, heartbeat: heartbeat, attempt: attempt}
}

// Heartbeat reports progress. Long activities must call this at
// heartbeat_timeout/3 cadence (spec §4.B). The in-memory engine
// (internal/engine) accepts heartbeats but does not enforce
// HeartbeatTimeout: an attempt that stops heartbeating is neither
// abandoned nor rescheduled.
func (c Context) Heartbeat(details ...interface{}) { c.heartbeat(details...) }

// IdempotencyKey returns the caller-supplied idempotency key, or empty
// if the activity is naturally idempotent and does not require one.
func (c Context) IdempotencyKey() string { return c.idempotencyKey }

// Attempt returns the 1-indexed attempt number of this execution.
func (c Context) Attempt() int32 { return c.attempt }

// Activity is the generic contract implemented by every business
// activity. I is the input type, R the result type; both must be
// JSON-marshalable so the engine can carry them as opaque payload
// bytes across the registration boundary (spec §9 dynamic dispatch).
type Activity[I any, R any] interface {
	// Name is the globally unique activity_type used for registration
	// and dispatch.
	Name() string

	// ValidateInput is pure and deterministic; it runs before any side
	// effect and rejects malformed input with a *errors.ValidationError.
	ValidateInput(input I) error

	// ValidateTenantAccess refuses inactive tenants and callers lacking
	// the permission this activity requires.
	ValidateTenantAccess(tc tenant.Context) error

	// CheckQuotas consults the quota engine before any side effect that
	// consumes a metered resource. Activities with no metered resource
	// return nil unconditionally.
	CheckQuotas(ctx context.Context, tc tenant.Context, quotas QuotaChecker) error

	// Execute performs the side effect. Implementations MUST be
	// idempotent under the (input, IdempotencyKey) pair.
	Execute(ctx Context, input I) (R, error)

	// DefaultOptions declares this activity's retry policy and timeouts.
	DefaultOptions() Options
}

// Run executes the full activity contract in order (validate input,
// validate tenant access, check quotas, execute), matching spec §4.B's
// five-step contract. Engines call Run once per attempt; retry across
// attempts is the engine's responsibility, driven by DefaultOptions().
func Run[I any, R any](ctx Context, a Activity[I, R], input I, quotas QuotaChecker) (R, error) {
	var zero R

	if err := a.ValidateInput(input); err != nil {
		return zero, err
	}
	if err := a.ValidateTenantAccess(ctx.TenantCtx); err != nil {
		return zero, err
	}
	if err := a.CheckQuotas(ctx, ctx.TenantCtx, quotas); err != nil {
		return zero, err
	}
	return a.Execute(ctx, input)
}
