// Package workflow defines the contract for a durable deterministic
// orchestration (component C): activity/child-workflow invocation,
// timers, signals, queries, cancellation, compensation, and
// versioning. Workflow code in this package and in workflows/ must
// stay free of wall-clock reads, ambient randomness, and ambient IO —
// all side effects happen through the Context the engine provides.
package workflow

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/saastenant/orchestrator/internal/tenant"
)

// Version is a workflow's major.minor.patch identity. A running
// workflow completes under the version it started on (spec §4.C
// pattern 6); new versions may reorder steps only via GetVersion.
type Version struct {
	Major, Minor, Patch int
}

func (v Version) String() string { return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch) }

// Compare returns -1, 0, or 1 as v is less than, equal to, or greater
// than other.
func (v Version) Compare(other Version) int {
	for _, pair := range [][2]int{{v.Major, other.Major}, {v.Minor, other.Minor}, {v.Patch, other.Patch}} {
		if pair[0] != pair[1] {
			if pair[0] < pair[1] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// ParseVersion parses a "major.minor.patch" string.
func ParseVersion(s string) (Version, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("invalid version %q: want major.minor.patch", s)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Version{}, fmt.Errorf("invalid version %q: %w", s, err)
		}
		nums[i] = n
	}
	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// Status is a workflow execution's lifecycle state (spec §3 state
// machine).
type Status string

const (
	StatusPending        Status = "Pending"
	StatusRunning        Status = "Running"
	StatusCompleted      Status = "Completed"
	StatusFailed         Status = "Failed"
	StatusCancelled      Status = "Cancelled"
	StatusTerminated     Status = "Terminated"
	StatusContinuedAsNew Status = "ContinuedAsNew"
	StatusTimedOut       Status = "TimedOut"
	StatusPaused         Status = "Paused"
)

// Terminal reports whether s is an immutable terminal status.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTerminated, StatusContinuedAsNew, StatusTimedOut:
		return true
	default:
		return false
	}
}

// Error variants (spec §4.C WorkflowError).
type (
	ValidationFailedError struct{ Errors []string }
	ActivityFailedError   struct {
		ActivityName string
		Cause        error
	}
	ChildWorkflowFailedError struct {
		WorkflowID string
		Cause      error
	}
	TimeoutError struct{ TimeoutType string }
	CancelledError struct{ Reason string }
	SerializationError struct{ Cause error }
	IncompatibleError struct{ Issues []string }
)

func (e *ValidationFailedError) Error() string {
	return "workflow validation failed: " + strings.Join(e.Errors, "; ")
}
func (e *ActivityFailedError) Error() string {
	return fmt.Sprintf("activity %q failed: %v", e.ActivityName, e.Cause)
}
func (e *ActivityFailedError) Unwrap() error { return e.Cause }
func (e *ChildWorkflowFailedError) Error() string {
	return fmt.Sprintf("child workflow %q failed: %v", e.WorkflowID, e.Cause)
}
func (e *ChildWorkflowFailedError) Unwrap() error { return e.Cause }
func (e *TimeoutError) Error() string             { return "workflow timeout: " + e.TimeoutType }
func (e *CancelledError) Error() string            { return "workflow cancelled: " + e.Reason }
func (e *SerializationError) Error() string        { return fmt.Sprintf("serialization error: %v", e.Cause) }
func (e *SerializationError) Unwrap() error         { return e.Cause }
func (e *IncompatibleError) Error() string {
	return "incompatible workflow change: " + strings.Join(e.Issues, "; ")
}

// Future is the handle to a pending activity/child-workflow/timer
// result. Get blocks the workflow coroutine (a suspension point) until
// the result is ready or ctx is done.
type Future interface {
	Get(ctx Context, valuePtr interface{}) error
	IsReady() bool
}

// ActivityOptions configures a single ExecuteActivity call. It mirrors
// internal/activity.Options but lives here to avoid a dependency
// cycle (activities import workflow only for types, never the reverse
// in typed business code — both are wired together by internal/engine).
type ActivityOptions struct {
	TaskQueue              string
	StartToCloseTimeout    time.Duration
	ScheduleToStartTimeout time.Duration
	ScheduleToCloseTimeout time.Duration
	HeartbeatTimeout       time.Duration
	RetryPolicyName        string // "immediate"|"fixed_delay"|"linear_backoff"|"exponential_backoff"|preset name
}

// ChildWorkflowOptions configures ExecuteChildWorkflow.
type ChildWorkflowOptions struct {
	WorkflowID        string
	TaskQueue         string
	ParentClosePolicy string // "Terminate"|"RequestCancel"|"Abandon"
}

// Context is the deterministic, replay-safe execution context handed
// to Execute and to signal/query handlers. Suspension is only
// permitted at the points this interface exposes (spec §5): activity
// invocation, child-workflow invocation, timer, signal-await, query.
type Context interface {
	// TenantCtx returns the propagated tenant/user identity.
	TenantCtx() tenant.Context

	// ExecuteActivity schedules activity_type with input and returns a
	// Future for its result.
	ExecuteActivity(activityType string, opts ActivityOptions, input interface{}) Future

	// ExecuteChildWorkflow starts a child workflow and returns a Future
	// for its result.
	ExecuteChildWorkflow(workflowType string, opts ChildWorkflowOptions, input interface{}) Future

	// NewTimer fires after d of workflow time (not wall-clock); sleeps
	// survive worker restarts because the engine persists the fire time.
	NewTimer(d time.Duration) Future

	// Sleep is sugar for NewTimer(d).Get(ctx, nil).
	Sleep(d time.Duration) error

	// GetVersion implements the versioning mechanism required to
	// change step order mid-flight without breaking determinism for
	// workflows already in progress (spec §4.C pattern 6).
	GetVersion(changeID string, minSupported, maxSupported int) int

	// IsReplaying reports whether the current execution is replaying
	// committed history rather than executing live. Side-effecting code
	// (e.g. logging) should branch on this.
	IsReplaying() bool

	// GetLogger returns a logger that no-ops during replay so log lines
	// are not duplicated on every replay.
	GetLogger() *zap.Logger

	// Done is closed once a cancellation has been delivered at the next
	// suspension point (spec §5).
	Done() <-chan struct{}

	// Err returns the reason cancellation was requested, or nil.
	Err() error

	// State returns the workflow-local state store shared with this
	// execution's signal and query handlers (see engine.StateStore).
	State() StateStore

	// Disconnected returns a Context that shares this one's tenant
	// identity, state, and logger, but whose Done/Err are never
	// triggered by this workflow's own cancellation. Compensation and
	// cleanup activities scheduled after a cancellation has been
	// observed at a suspension point (spec §5) must use this context,
	// since activities scheduled on an already-cancelled Context would
	// themselves start pre-cancelled.
	Disconnected() Context
}

// StateStore is the workflow-local key/value accessor a workflow's
// Execute method shares with its own signal and query handlers, since
// those may run on a different goroutine than Execute (spec §4.C
// pattern 5). Implementations MUST serialize access.
type StateStore interface {
	Get(key string) (interface{}, bool)
	Set(key string, value interface{})
	Mutate(fn func(data map[string]interface{}))
}

// SignalHandler handles a fire-and-forget signal delivered to a
// running workflow.
type SignalHandler func(ctx Context, payload []byte) error

// QueryHandler handles a synchronous, side-effect-free read of
// workflow state. Implementations MUST NOT mutate workflow state or
// schedule activities.
type QueryHandler func(ctx Context, payload []byte) ([]byte, error)

// Workflow is the generic contract implemented by every business
// workflow.
type Workflow[I any, R any] interface {
	Name() string
	Version() Version
	Execute(ctx Context, input I) (R, error)
	SignalHandlers() map[string]SignalHandler
	QueryHandlers() map[string]QueryHandler
}
