package bff

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/saastenant/orchestrator/internal/engine"
	cperrors "github.com/saastenant/orchestrator/internal/errors"
	"github.com/saastenant/orchestrator/internal/tenant"
)

// SubFetch is one named leg of a fan-out aggregation. Name identifies
// it in a FetchError so callers can tell which backend failed.
type SubFetch struct {
	Name string
	Run  func(ctx context.Context) (interface{}, error)
}

// FetchError names the subfetch that failed, rather than collapsing a
// partial aggregation failure into an opaque error (spec §4.E
// "aggregation failures name the failing subfetch").
type FetchError struct {
	SubFetch string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("bff: subfetch %q failed: %v", e.SubFetch, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// subResult pairs a SubFetch's name with its outcome so results can be
// assembled back into a map keyed by name regardless of completion
// order.
type subResult struct {
	name  string
	value interface{}
	err   error
}

// Aggregator composes business-service/activity calls into a single
// dashboard-shaped response. Fetch runs every leg concurrently and
// awaits all of them; the first failure to complete (not the first in
// subfetch declaration order) is returned as a *FetchError. It never decides caching policy
// itself — callers wrap it with Cache.Get.
type Aggregator struct{}

func NewAggregator() *Aggregator { return &Aggregator{} }

// Fetch runs every sub in parallel and returns a name->result map once
// all have completed, or the first *FetchError encountered.
func (a *Aggregator) Fetch(ctx context.Context, subs []SubFetch) (map[string]interface{}, error) {
	results := make(chan subResult, len(subs))
	for _, s := range subs {
		s := s
		go func() {
			v, err := s.Run(ctx)
			results <- subResult{name: s.Name, value: v, err: err}
		}()
	}

	out := make(map[string]interface{}, len(subs))
	var firstErr *FetchError
	for range subs {
		r := <-results
		if r.err != nil {
			if firstErr == nil {
				firstErr = &FetchError{SubFetch: r.name, Err: r.err}
			}
			continue
		}
		out[r.name] = r.value
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

// FetchJSON runs Fetch and marshals the assembled map to JSON, the
// shape Cache.Get's Fetcher expects.
func (a *Aggregator) FetchJSON(ctx context.Context, subs []SubFetch) ([]byte, error) {
	out, err := a.Fetch(ctx, subs)
	if err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

// MutationDelegate starts the durable workflow that actually performs
// a write, rather than letting the BFF layer call a business service
// directly (spec §4.E: upload init, share, delete, permission update,
// bulk user op, data export all delegate to start_workflow).
type MutationDelegate struct {
	driver engine.Driver
}

func NewMutationDelegate(driver engine.Driver) *MutationDelegate {
	return &MutationDelegate{driver: driver}
}

// Delegate starts workflowType with input and returns its handle. The
// BFF handler is then responsible for deciding whether to wait
// synchronously (Handle.Get) or return the handle's ids for polling,
// per the endpoint's contract.
func (m *MutationDelegate) Delegate(ctx context.Context, workflowType, workflowID string, tc tenant.Context, input interface{}) (engine.Handle, error) {
	raw, err := json.Marshal(input)
	if err != nil {
		return nil, cperrors.NewValidation("input", "mutation payload is not serializable")
	}
	return m.driver.StartWorkflow(ctx, workflowType, engine.StartWorkflowOptions{
		WorkflowID:    workflowID,
		CorrelationID: tc.CorrelationID,
	}, tc, raw)
}
