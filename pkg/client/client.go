// Package client is the public façade over the workflow engine: the
// thin, typed surface application code (HTTP handlers, cron jobs,
// other services) uses to start and interact with workflows without
// importing internal/engine directly.
package client

import (
	"context"
	"encoding/json"

	"github.com/saastenant/orchestrator/internal/engine"
	"github.com/saastenant/orchestrator/internal/tenant"
)

// Client wraps an engine.Driver with a JSON-typed API. Application
// code depends on this package, never on internal/engine, so the
// driver underneath (in-memory today) can be swapped for a real
// durable engine without call-site changes.
type Client struct {
	driver engine.Driver
}

// New wraps an existing driver (e.g. the *engine.Engine built by
// cmd/orchestrator-worker).
func New(driver engine.Driver) *Client {
	return &Client{driver: driver}
}

// StartOptions configures a workflow start; it is engine.StartWorkflowOptions
// re-exported so callers never need to import internal/engine.
type StartOptions = engine.StartWorkflowOptions

// Run is a client-side handle on a started (or already-running)
// workflow execution (spec §3 "Workflow handle").
type Run struct {
	handle engine.Handle
}

// ID returns the workflow's caller-chosen id.
func (r *Run) ID() string { return r.handle.GetID() }

// RunID returns the engine-assigned id of the attempt this handle
// first observed.
func (r *Run) RunID() string { return r.handle.GetRunID() }

// Cancel requests cooperative cancellation, observed by the workflow
// at its next suspension point.
func (r *Run) Cancel(ctx context.Context, reason string) error {
	return r.handle.Cancel(ctx, reason)
}

// Terminate forcibly ends the execution without giving it a chance to
// run compensation.
func (r *Run) Terminate(ctx context.Context, reason string) error {
	return r.handle.Terminate(ctx, reason)
}

// Signal delivers a fire-and-forget signal; payload is JSON-marshaled
// by the engine's handle implementation.
func (r *Run) Signal(ctx context.Context, name string, payload interface{}) error {
	return r.handle.Signal(ctx, name, payload)
}

// Start begins a new workflow execution of workflowType with a
// JSON-serializable input and returns a handle to it.
func Start[I any](ctx context.Context, c *Client, workflowType string, opts StartOptions, tc tenant.Context, input I) (*Run, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}
	handle, err := c.driver.StartWorkflow(ctx, workflowType, opts, tc, body)
	if err != nil {
		return nil, err
	}
	return &Run{handle: handle}, nil
}

// GetRun returns a handle to an already-started execution. runID may
// be empty to pick the current run of workflowID.
func (c *Client) GetRun(workflowID, runID string) (*Run, error) {
	handle, err := c.driver.GetHandle(workflowID, runID)
	if err != nil {
		return nil, err
	}
	return &Run{handle: handle}, nil
}

// Get blocks until the execution completes and unmarshals its result
// into R.
func Get[R any](ctx context.Context, r *Run) (R, error) {
	var v R
	err := r.handle.Get(ctx, &v)
	return v, err
}

// Query performs a synchronous, side-effect-free read and unmarshals
// the response into R.
func Query[R any](ctx context.Context, r *Run, name string, payload interface{}) (R, error) {
	var v R
	raw, err := r.handle.Query(ctx, name, payload)
	if err != nil {
		return v, err
	}
	if len(raw) > 0 {
		err = json.Unmarshal(raw, &v)
	}
	return v, err
}

// Describe returns the execution record for a workflow run, used by
// status/detail endpoints.
func (c *Client) Describe(workflowID, runID string) (engine.ExecutionRecord, error) {
	return c.driver.Describe(workflowID, runID)
}

// BulkOperation maps op over workflowIDs, honoring continueOnError.
func (c *Client) BulkOperation(ctx context.Context, op engine.LifecycleOp, workflowIDs []string, continueOnError bool) []engine.BulkResult {
	return c.driver.BulkOperation(ctx, op, workflowIDs, continueOnError)
}
