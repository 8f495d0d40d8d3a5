// Package engine implements the durable workflow engine driver
// contract (spec §6) and a deterministic in-memory driver
// (memdriver.go) that the rest of the control plane can swap for a
// real durable engine without changing workflow or activity code.
package engine

import (
	"context"
	"time"

	"github.com/saastenant/orchestrator/internal/activity"
	"github.com/saastenant/orchestrator/internal/tenant"
	"github.com/saastenant/orchestrator/internal/workflow"
)

// Payload is an opaque byte buffer. The driver is responsible only for
// durable transport; it never inspects payload contents (spec §6).
type Payload = []byte

// WorkflowIDReusePolicy controls whether a new run may reuse a
// workflow id already seen by the engine.
type WorkflowIDReusePolicy int

const (
	WorkflowIDReusePolicyAllowDuplicate WorkflowIDReusePolicy = iota
	WorkflowIDReusePolicyAllowDuplicateFailedOnly
	WorkflowIDReusePolicyRejectDuplicate
)

// Timeouts bundles the three workflow-level timeouts spec §5 names.
type Timeouts struct {
	Execution time.Duration
	Run       time.Duration
	Task      time.Duration
}

// StartWorkflowOptions configures a single workflow start.
type StartWorkflowOptions struct {
	WorkflowID       string
	TaskQueue        string
	Namespace        string
	Timeouts         Timeouts
	ReusePolicy      WorkflowIDReusePolicy
	Priority         int
	Tags             map[string]string
	SearchAttributes map[string]string
	ParentWorkflowID string
	CorrelationID    string
	OriginalWorkflowID string // set when this start is a Retry of a prior run
}

// ExecutionRecord mirrors spec §3's workflow execution record, the
// subset exposed to callers and to the store's analytics mirror.
type ExecutionRecord struct {
	WorkflowID         string
	RunID              string
	WorkflowType        string
	Version            workflow.Version
	TaskQueue          string
	Namespace          string
	Status             workflow.Status
	StartTime          time.Time
	CloseTime          *time.Time
	ParentWorkflowID   string
	OriginalWorkflowID string
	CorrelationID      string
	Priority           int
	Tags               map[string]string
	SearchAttributes   map[string]string
	Input              Payload
	Result             Payload
	Error              string
}

// ActivityExecutionRecord mirrors spec §3's per-scheduled-activity
// record.
type ActivityExecutionRecord struct {
	ActivityID   string
	ActivityType string
	WorkflowID   string
	RunID        string
	Attempt      int32
	StartTime    time.Time
	Tags         map[string]string
}

// Handle is an external reference to a running (or completed) workflow
// execution (spec §3 "Workflow handle").
type Handle interface {
	GetID() string
	GetRunID() string
	Get(ctx context.Context, valuePtr interface{}) error
	Cancel(ctx context.Context, reason string) error
	Terminate(ctx context.Context, reason string) error
	Signal(ctx context.Context, name string, payload interface{}) error
	Query(ctx context.Context, name string, payload interface{}) (Payload, error)
}

// LifecycleOp names one of the bulk-operation verbs spec §4.C defines.
type LifecycleOp string

const (
	OpCancel    LifecycleOp = "Cancel"
	OpRetry     LifecycleOp = "Retry"
	OpPause     LifecycleOp = "Pause"
	OpResume    LifecycleOp = "Resume"
	OpTerminate LifecycleOp = "Terminate"
)

// BulkResult is the per-item outcome of a bulk lifecycle operation.
type BulkResult struct {
	WorkflowID string
	Op         LifecycleOp
	Err        error
}

// WorkflowRegistration is what RegisterWorkflow needs to dispatch a
// workflow type: its dispatchable invoke function plus its declared
// version, signal, and query handlers.
type WorkflowRegistration struct {
	Version        workflow.Version
	Invoke         func(ctx workflow.Context, input Payload) (Payload, error)
	SignalHandlers map[string]workflow.SignalHandler
	QueryHandlers  map[string]workflow.QueryHandler
}

// Driver is the capability interface the core depends on for durable
// transport (spec §6). A real implementation talks to an actual
// durable engine over its wire protocol (out of scope per spec §1);
// memdriver.Engine implements it entirely in-process for tests and
// single-node deployments.
type Driver interface {
	RegisterWorkflow(workflowType string, reg WorkflowRegistration)
	RegisterActivity(activityType string, reg activity.Registration)

	StartWorkflow(ctx context.Context, workflowType string, opts StartWorkflowOptions, tc tenant.Context, input Payload) (Handle, error)
	GetHandle(workflowID, runID string) (Handle, error)
	GetResult(ctx context.Context, workflowID, runID string) (Payload, error)
	Signal(ctx context.Context, workflowID, runID, name string, payload Payload) error
	Query(ctx context.Context, workflowID, runID, name string, payload Payload) (Payload, error)
	Cancel(ctx context.Context, workflowID, runID, reason string) error
	Terminate(ctx context.Context, workflowID, runID, reason string) error
	Pause(ctx context.Context, workflowID, runID string) error
	Resume(ctx context.Context, workflowID, runID string) error
	Retry(ctx context.Context, workflowID, runID string) (Handle, error)

	Describe(workflowID, runID string) (ExecutionRecord, error)

	// BulkOperation maps op over workflowIDs; if continueOnError is
	// false, it stops at the first failure.
	BulkOperation(ctx context.Context, op LifecycleOp, workflowIDs []string, continueOnError bool) []BulkResult

	StartWorker(taskQueue string, maxConcurrentActivityTasks, maxConcurrentWorkflowTasks int) error
	StopWorker(taskQueue string)
}
