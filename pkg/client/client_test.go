package client_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/saastenant/orchestrator/internal/activity"
	"github.com/saastenant/orchestrator/internal/engine"
	"github.com/saastenant/orchestrator/internal/tenant"
	"github.com/saastenant/orchestrator/internal/workflow"
	"github.com/saastenant/orchestrator/pkg/client"
)

type echoInput struct {
	Msg string `json:"msg"`
}
type echoResult struct {
	Msg string `json:"msg"`
}
type echoWorkflow struct{}

func (echoWorkflow) Name() string                                     { return "echo" }
func (echoWorkflow) Version() workflow.Version                        { return workflow.Version{Major: 1} }
func (echoWorkflow) SignalHandlers() map[string]workflow.SignalHandler { return nil }
func (echoWorkflow) QueryHandlers() map[string]workflow.QueryHandler   { return nil }
func (echoWorkflow) Execute(ctx workflow.Context, in echoInput) (echoResult, error) {
	return echoResult{Msg: in.Msg}, nil
}

type waiterInput struct{}
type waiterResult struct {
	Released bool `json:"released"`
}
type waiterWorkflow struct{}

func (waiterWorkflow) Name() string              { return "waiter" }
func (waiterWorkflow) Version() workflow.Version { return workflow.Version{Major: 1} }
func (waiterWorkflow) SignalHandlers() map[string]workflow.SignalHandler {
	return map[string]workflow.SignalHandler{
		"release": func(ctx workflow.Context, _ []byte) error {
			ctx.State().Set("released", true)
			return nil
		},
	}
}
func (waiterWorkflow) QueryHandlers() map[string]workflow.QueryHandler {
	return map[string]workflow.QueryHandler{
		"status": func(ctx workflow.Context, _ []byte) ([]byte, error) {
			v, _ := ctx.State().Get("released")
			released, _ := v.(bool)
			return json.Marshal(map[string]bool{"released": released})
		},
	}
}
func (waiterWorkflow) Execute(ctx workflow.Context, _ waiterInput) (waiterResult, error) {
	for {
		if v, ok := ctx.State().Get("released"); ok {
			if released, ok := v.(bool); ok && released {
				return waiterResult{Released: true}, nil
			}
		}
		select {
		case <-ctx.Done():
			return waiterResult{}, ctx.Err()
		default:
		}
		if err := ctx.Sleep(10 * time.Millisecond); err != nil {
			return waiterResult{}, err
		}
	}
}

func registerTestWorkflow[I any, R any](eng *engine.Engine, w workflow.Workflow[I, R]) {
	invoke, version, signals, queries := workflow.Build(w)
	eng.RegisterWorkflow(w.Name(), engine.WorkflowRegistration{
		Version:        version,
		Invoke:         invoke,
		SignalHandlers: signals,
		QueryHandlers:  queries,
	})
}

func newTestClient(t *testing.T) *client.Client {
	t.Helper()
	eng := engine.NewEngine(activity.NewRegistry(), engine.WithLogger(zap.NewNop()))
	registerTestWorkflow(eng, echoWorkflow{})
	registerTestWorkflow(eng, waiterWorkflow{})
	return client.New(eng)
}

func testTenant() tenant.Context {
	return tenant.Context{Tenant: tenant.TenantContext{TenantID: "t1", IsActive: true}}
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestStartAndGet(t *testing.T) {
	c := newTestClient(t)

	run, err := client.Start(testCtx(t), c, "echo", client.StartOptions{WorkflowID: "echo-1"}, testTenant(), echoInput{Msg: "hi"})
	require.NoError(t, err)
	require.Equal(t, "echo-1", run.ID())
	require.NotEmpty(t, run.RunID())

	result, err := client.Get[echoResult](testCtx(t), run)
	require.NoError(t, err)
	require.Equal(t, "hi", result.Msg)
}

func TestDescribe_ReflectsCompletedRun(t *testing.T) {
	c := newTestClient(t)

	run, err := client.Start(testCtx(t), c, "echo", client.StartOptions{WorkflowID: "echo-2"}, testTenant(), echoInput{Msg: "x"})
	require.NoError(t, err)
	_, err = client.Get[echoResult](testCtx(t), run)
	require.NoError(t, err)

	rec, err := c.Describe("echo-2", "")
	require.NoError(t, err)
	require.Equal(t, workflow.StatusCompleted, rec.Status)
	require.True(t, rec.Status.Terminal())
}

func TestSignalAndQuery(t *testing.T) {
	c := newTestClient(t)

	run, err := client.Start(testCtx(t), c, "waiter", client.StartOptions{WorkflowID: "waiter-1"}, testTenant(), waiterInput{})
	require.NoError(t, err)

	before, err := client.Query[map[string]bool](testCtx(t), run, "status", nil)
	require.NoError(t, err)
	require.False(t, before["released"])

	require.NoError(t, run.Signal(testCtx(t), "release", nil))

	result, err := client.Get[waiterResult](testCtx(t), run)
	require.NoError(t, err)
	require.True(t, result.Released)
}

func TestCancel_PropagatesToGet(t *testing.T) {
	c := newTestClient(t)

	run, err := client.Start(testCtx(t), c, "waiter", client.StartOptions{WorkflowID: "waiter-2"}, testTenant(), waiterInput{})
	require.NoError(t, err)

	require.NoError(t, run.Cancel(testCtx(t), "operator requested cancellation"))

	_, err = client.Get[waiterResult](testCtx(t), run)
	require.Error(t, err)
}

func TestBulkOperation_CancelsEveryID(t *testing.T) {
	c := newTestClient(t)

	ids := []string{"waiter-bulk-1", "waiter-bulk-2"}
	for _, id := range ids {
		_, err := client.Start(testCtx(t), c, "waiter", client.StartOptions{WorkflowID: id}, testTenant(), waiterInput{})
		require.NoError(t, err)
	}

	results := c.BulkOperation(testCtx(t), engine.OpCancel, ids, true)
	require.Len(t, results, 2)
	for _, r := range results {
		require.NoError(t, r.Err)
	}
}
