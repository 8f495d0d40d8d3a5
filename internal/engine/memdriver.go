package engine

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/facebookgo/clock"
	"go.uber.org/zap"

	"github.com/saastenant/orchestrator/internal/activity"
	cperrors "github.com/saastenant/orchestrator/internal/errors"
	"github.com/saastenant/orchestrator/internal/retry"
	"github.com/saastenant/orchestrator/internal/tenant"
	"github.com/saastenant/orchestrator/internal/workflow"
)

// Engine is the in-memory, single-process Driver (spec §6). It keeps
// every execution's full event history in memory, which is enough to
// exercise replay determinism in tests (Testable Property 2) without
// the wire protocol a real durable engine would need — that transport
// is explicitly out of scope (spec Non-goals).
type Engine struct {
	mu         sync.RWMutex
	executions map[string]*execution // keyed by workflowID, latest run only

	workflows     map[string]WorkflowRegistration
	activities    *activity.Registry
	retryPolicies map[string]retry.Policy
	quotaChecker  activity.QuotaChecker

	clk         clock.Clock
	logger      *zap.Logger
	activitySem chan struct{}

	workersMu sync.Mutex
	workers   map[string]bool

	childSeq int64
}

// Option configures NewEngine.
type Option func(*Engine)

func WithClock(c clock.Clock) Option                       { return func(e *Engine) { e.clk = c } }
func WithLogger(l *zap.Logger) Option                       { return func(e *Engine) { e.logger = l } }
func WithQuotaChecker(q activity.QuotaChecker) Option       { return func(e *Engine) { e.quotaChecker = q } }
func WithMaxConcurrentActivities(n int) Option {
	return func(e *Engine) { e.activitySem = make(chan struct{}, n) }
}

// NewEngine constructs a ready-to-use in-memory driver. activities may
// be shared across workers; the Engine only reads it.
func NewEngine(activities *activity.Registry, opts ...Option) *Engine {
	e := &Engine{
		executions:    map[string]*execution{},
		workflows:     map[string]WorkflowRegistration{},
		activities:    activities,
		retryPolicies: namedRetryPolicies(),
		clk:           clock.New(),
		logger:        zap.NewNop(),
		activitySem:   make(chan struct{}, 50),
		workers:       map[string]bool{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) acquireActivitySlot() { e.activitySem <- struct{}{} }
func (e *Engine) releaseActivitySlot() { <-e.activitySem }

func (e *Engine) newChildWorkflowID(parentID, workflowType string) string {
	n := atomic.AddInt64(&e.childSeq, 1)
	return fmt.Sprintf("%s/%s-%d", parentID, workflowType, n)
}

// execution is the engine's bookkeeping for one workflow run. Spec §3's
// workflow execution record is the subset ExecutionRecord and Describe
// expose publicly.
type execution struct {
	mu sync.Mutex

	id                 string
	runID              string
	workflowType       string
	version            workflow.Version
	status             workflow.Status
	input              Payload
	result             Payload
	execErr            error
	startTime          time.Time
	closeTime          *time.Time
	parentWorkflowID   string
	originalWorkflowID string
	correlationID      string
	tags               map[string]string

	seq     int64
	history []HistoryEvent

	activityCallCounts map[string]int
	childCallCounts    map[string]int
	versionCallCounts  map[string]int

	signalHandlers map[string]workflow.SignalHandler
	queryHandlers  map[string]workflow.QueryHandler

	state *StateStore

	goCtx      context.Context
	cancelFunc context.CancelFunc
	cancelled  bool

	paused  bool
	pauseCh chan struct{} // closed, then replaced, on Resume

	children map[string]string // childWorkflowID -> ParentClosePolicy

	doneCh chan struct{}
}

func newExecution(id, runID, workflowType string, ver workflow.Version, opts StartWorkflowOptions, input Payload, now time.Time) *execution {
	goCtx, cancel := context.WithCancel(context.Background())
	return &execution{
		id:                 id,
		runID:              runID,
		workflowType:       workflowType,
		version:            ver,
		status:             workflow.StatusRunning,
		input:              input,
		startTime:          now,
		parentWorkflowID:   opts.ParentWorkflowID,
		originalWorkflowID: opts.OriginalWorkflowID,
		correlationID:      opts.CorrelationID,
		tags:               opts.Tags,
		activityCallCounts: map[string]int{},
		childCallCounts:    map[string]int{},
		versionCallCounts:  map[string]int{},
		state:              newStateStore(),
		goCtx:              goCtx,
		cancelFunc:         cancel,
		pauseCh:            closedChan(),
		children:           map[string]string{},
		doneCh:             make(chan struct{}),
	}
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (ex *execution) recordEvent(ev HistoryEvent) {
	ex.mu.Lock()
	ex.seq++
	ev.Seq = ex.seq
	ex.history = append(ex.history, ev)
	ex.mu.Unlock()
}

func (ex *execution) addChild(id, parentClosePolicy string) {
	ex.mu.Lock()
	ex.children[id] = parentClosePolicy
	ex.mu.Unlock()
}

func (ex *execution) waitIfPaused(ctx context.Context) error {
	for {
		ex.mu.Lock()
		gate := ex.pauseCh
		ex.mu.Unlock()
		select {
		case <-gate:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (ex *execution) nextActivityResult(name string) (Payload, error) {
	ex.mu.Lock()
	idx := ex.activityCallCounts[name]
	ex.activityCallCounts[name] = idx + 1
	history := ex.history
	ex.mu.Unlock()

	count := 0
	for _, ev := range history {
		if (ev.Type == EventActivityCompleted || ev.Type == EventActivityFailed) && ev.Name == name {
			if count == idx {
				if ev.Type == EventActivityFailed {
					return nil, &workflow.ActivityFailedError{ActivityName: name, Cause: fmt.Errorf("%s", ev.Err)}
				}
				return ev.Result, nil
			}
			count++
		}
	}
	return nil, fmt.Errorf("replay: no recorded occurrence #%d of activity %q in history", idx, name)
}

func (ex *execution) nextChildResult(workflowType string) (Payload, error) {
	ex.mu.Lock()
	idx := ex.childCallCounts[workflowType]
	ex.childCallCounts[workflowType] = idx + 1
	history := ex.history
	ex.mu.Unlock()

	count := 0
	for _, ev := range history {
		if (ev.Type == EventChildCompleted || ev.Type == EventChildFailed) && ev.Name == workflowType {
			if count == idx {
				if ev.Type == EventChildFailed {
					return nil, &workflow.ChildWorkflowFailedError{WorkflowID: workflowType, Cause: fmt.Errorf("%s", ev.Err)}
				}
				return ev.Result, nil
			}
			count++
		}
	}
	return nil, fmt.Errorf("replay: no recorded occurrence #%d of child workflow %q in history", idx, workflowType)
}

func (ex *execution) nextVersion(changeID string, fallback int) int {
	ex.mu.Lock()
	idx := ex.versionCallCounts[changeID]
	ex.versionCallCounts[changeID] = idx + 1
	history := ex.history
	ex.mu.Unlock()

	count := 0
	for _, ev := range history {
		if ev.Type == EventVersionMarker && ev.Name == changeID {
			if count == idx {
				return ev.IntValue
			}
			count++
		}
	}
	return fallback
}

func (ex *execution) record() ExecutionRecord {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	errStr := ""
	if ex.execErr != nil {
		errStr = ex.execErr.Error()
	}
	return ExecutionRecord{
		WorkflowID:         ex.id,
		RunID:              ex.runID,
		WorkflowType:       ex.workflowType,
		Version:            ex.version,
		Status:             ex.status,
		StartTime:          ex.startTime,
		CloseTime:          ex.closeTime,
		ParentWorkflowID:   ex.parentWorkflowID,
		OriginalWorkflowID: ex.originalWorkflowID,
		CorrelationID:      ex.correlationID,
		Tags:               ex.tags,
		Input:              ex.input,
		Result:             ex.result,
		Error:              errStr,
	}
}

// RegisterWorkflow implements Driver.
func (e *Engine) RegisterWorkflow(workflowType string, reg WorkflowRegistration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.workflows[workflowType] = reg
}

// RegisterActivity implements Driver.
func (e *Engine) RegisterActivity(activityType string, reg activity.Registration) {
	e.activities.RegisterRaw(activityType, reg)
}

// StartWorkflow implements Driver.
func (e *Engine) StartWorkflow(ctx context.Context, workflowType string, opts StartWorkflowOptions, tc tenant.Context, input Payload) (Handle, error) {
	e.mu.Lock()
	reg, ok := e.workflows[workflowType]
	if !ok {
		e.mu.Unlock()
		return nil, cperrors.NewInternal("", fmt.Errorf("workflow %q is not registered", workflowType))
	}
	id := opts.WorkflowID
	if id == "" {
		id = fmt.Sprintf("%s-%d", workflowType, atomic.AddInt64(&e.childSeq, 1))
	}
	if existing, found := e.executions[id]; found {
		switch opts.ReusePolicy {
		case WorkflowIDReusePolicyRejectDuplicate:
			e.mu.Unlock()
			return nil, cperrors.NewConflict(fmt.Sprintf("workflow id %q already in use", id))
		case WorkflowIDReusePolicyAllowDuplicateFailedOnly:
			existing.mu.Lock()
			terminal := existing.status.Terminal() && existing.status != workflow.StatusCompleted
			existing.mu.Unlock()
			if !terminal {
				e.mu.Unlock()
				return nil, cperrors.NewConflict(fmt.Sprintf("workflow id %q already in use by a non-failed execution", id))
			}
		}
	}

	runID := fmt.Sprintf("%s-run-%d", id, e.clk.Now().UnixNano())
	ex := newExecution(id, runID, workflowType, reg.Version, opts, input, e.clk.Now())
	ex.signalHandlers = reg.SignalHandlers
	ex.queryHandlers = reg.QueryHandlers
	ex.state.Set("__tenant_ctx", tc)
	e.executions[id] = ex
	e.mu.Unlock()

	ex.recordEvent(HistoryEvent{Type: EventWorkflowStarted, Name: workflowType, Input: input, Timestamp: e.clk.Now()})

	go e.runExecution(ex, reg)

	return &handleImpl{eng: e, workflowID: id, runID: runID}, nil
}

func (e *Engine) runExecution(ex *execution, reg WorkflowRegistration) {
	cctx := &contextImpl{
		goCtx:  ex.goCtx,
		cancel: ex.cancelFunc,
		tc:     e.tenantFor(ex),
		exec:   ex,
		eng:    e,
		logger: e.logger,
	}

	result, err := reg.Invoke(cctx, ex.input)

	ex.mu.Lock()
	now := e.clk.Now()
	terminated := ex.status == workflow.StatusTerminated
	if !terminated {
		ex.closeTime = &now
	}
	switch {
	case terminated:
		// Terminate already recorded the terminal status and closed doneCh.
	case err != nil:
		var cancelErr *workflow.CancelledError
		if stderrors.As(err, &cancelErr) {
			ex.status = workflow.StatusCancelled
		} else {
			ex.status = workflow.StatusFailed
		}
		ex.execErr = err
	default:
		ex.status = workflow.StatusCompleted
		ex.result = result
	}
	children := make(map[string]string, len(ex.children))
	for k, v := range ex.children {
		children[k] = v
	}
	ex.mu.Unlock()

	evType := EventWorkflowCompleted
	if err != nil {
		evType = EventWorkflowFailed
	}
	ex.recordEvent(HistoryEvent{Type: evType, Name: ex.workflowType, Result: result, Err: errString(err), Timestamp: now})

	if !terminated {
		close(ex.doneCh)
	}

	for childID, policy := range children {
		switch policy {
		case "Terminate":
			_ = e.Terminate(context.Background(), childID, "", "parent workflow closed")
		case "RequestCancel":
			_ = e.Cancel(context.Background(), childID, "", "parent workflow closed")
		}
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// tenantFor reconstructs a best-effort tenant.Context for a resumed
// execution. Live starts carry it via StartWorkflow's tc argument,
// which contextImpl needs at every suspension point; for this
// in-process driver we simply keep it alongside the execution.
func (e *Engine) tenantFor(ex *execution) tenant.Context {
	tc, _ := ex.state.Get("__tenant_ctx")
	if t, ok := tc.(tenant.Context); ok {
		return t
	}
	return tenant.Context{}
}

func (e *Engine) lookup(workflowID string) (*execution, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ex, ok := e.executions[workflowID]
	return ex, ok
}

// GetHandle implements Driver.
func (e *Engine) GetHandle(workflowID, runID string) (Handle, error) {
	ex, ok := e.lookup(workflowID)
	if !ok {
		return nil, cperrors.NewNotFound(fmt.Sprintf("workflow %s", workflowID))
	}
	ex.mu.Lock()
	actualRun := ex.runID
	ex.mu.Unlock()
	if runID != "" && runID != actualRun {
		return nil, cperrors.NewNotFound(fmt.Sprintf("workflow run %s", runID))
	}
	return &handleImpl{eng: e, workflowID: workflowID, runID: actualRun}, nil
}

// GetResult implements Driver.
func (e *Engine) GetResult(ctx context.Context, workflowID, runID string) (Payload, error) {
	h, err := e.GetHandle(workflowID, runID)
	if err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := h.Get(ctx, &raw); err != nil {
		return nil, err
	}
	return Payload(raw), nil
}

// Signal implements Driver.
func (e *Engine) Signal(ctx context.Context, workflowID, runID, name string, payload Payload) error {
	ex, ok := e.lookup(workflowID)
	if !ok {
		return cperrors.NewNotFound(fmt.Sprintf("workflow %s", workflowID))
	}
	ex.mu.Lock()
	handler, found := ex.signalHandlers[name]
	terminal := ex.status.Terminal()
	ex.mu.Unlock()
	if terminal {
		return cperrors.NewConflict(fmt.Sprintf("workflow %s is no longer running", workflowID))
	}
	if !found {
		return cperrors.NewInternal("", fmt.Errorf("workflow %q has no signal handler %q", workflowID, name))
	}
	ex.recordEvent(HistoryEvent{Type: EventSignalReceived, Name: name, Input: payload, Timestamp: e.clk.Now()})

	sctx := &contextImpl{goCtx: ex.goCtx, exec: ex, eng: e, logger: e.logger, tc: e.tenantFor(ex)}
	return handler(sctx, payload)
}

// Query implements Driver.
func (e *Engine) Query(ctx context.Context, workflowID, runID, name string, payload Payload) (Payload, error) {
	ex, ok := e.lookup(workflowID)
	if !ok {
		return nil, cperrors.NewNotFound(fmt.Sprintf("workflow %s", workflowID))
	}
	ex.mu.Lock()
	handler, found := ex.queryHandlers[name]
	ex.mu.Unlock()
	if !found {
		return nil, cperrors.NewInternal("", fmt.Errorf("workflow %q has no query handler %q", workflowID, name))
	}
	qctx := &contextImpl{goCtx: ex.goCtx, exec: ex, eng: e, logger: e.logger, tc: e.tenantFor(ex)}
	result, err := handler(qctx, payload)
	return Payload(result), err
}

// Cancel implements Driver.
func (e *Engine) Cancel(ctx context.Context, workflowID, runID, reason string) error {
	ex, ok := e.lookup(workflowID)
	if !ok {
		return cperrors.NewNotFound(fmt.Sprintf("workflow %s", workflowID))
	}
	ex.mu.Lock()
	if ex.status.Terminal() {
		ex.mu.Unlock()
		return nil
	}
	ex.cancelled = true
	cancel := ex.cancelFunc
	ex.mu.Unlock()
	cancel()
	return nil
}

// Terminate implements Driver. Unlike Cancel, termination is immediate
// and unobservable by workflow code (spec §4.C lifecycle operations).
func (e *Engine) Terminate(ctx context.Context, workflowID, runID, reason string) error {
	ex, ok := e.lookup(workflowID)
	if !ok {
		return cperrors.NewNotFound(fmt.Sprintf("workflow %s", workflowID))
	}
	ex.mu.Lock()
	if ex.status.Terminal() {
		ex.mu.Unlock()
		return nil
	}
	ex.status = workflow.StatusTerminated
	now := e.clk.Now()
	ex.closeTime = &now
	ex.execErr = fmt.Errorf("terminated: %s", reason)
	cancel := ex.cancelFunc
	ex.mu.Unlock()
	cancel()
	select {
	case <-ex.doneCh:
	default:
		close(ex.doneCh)
	}
	return nil
}

// Pause implements Driver: new suspension points block until Resume.
func (e *Engine) Pause(ctx context.Context, workflowID, runID string) error {
	ex, ok := e.lookup(workflowID)
	if !ok {
		return cperrors.NewNotFound(fmt.Sprintf("workflow %s", workflowID))
	}
	ex.mu.Lock()
	defer ex.mu.Unlock()
	if ex.status.Terminal() {
		return cperrors.NewConflict(fmt.Sprintf("workflow %s is no longer running", workflowID))
	}
	if !ex.paused {
		ex.paused = true
		ex.pauseCh = make(chan struct{})
		ex.status = workflow.StatusPaused
	}
	return nil
}

// Resume implements Driver.
func (e *Engine) Resume(ctx context.Context, workflowID, runID string) error {
	ex, ok := e.lookup(workflowID)
	if !ok {
		return cperrors.NewNotFound(fmt.Sprintf("workflow %s", workflowID))
	}
	ex.mu.Lock()
	defer ex.mu.Unlock()
	if ex.paused {
		ex.paused = false
		close(ex.pauseCh)
		ex.status = workflow.StatusRunning
	}
	return nil
}

// Retry implements Driver: starts a fresh run of the same workflow type
// and input under a new workflow id, linking OriginalWorkflowID back to
// the failed run (spec §4.C "Retry re-executes a failed workflow from
// its beginning").
func (e *Engine) Retry(ctx context.Context, workflowID, runID string) (Handle, error) {
	ex, ok := e.lookup(workflowID)
	if !ok {
		return nil, cperrors.NewNotFound(fmt.Sprintf("workflow %s", workflowID))
	}
	ex.mu.Lock()
	if s := ex.status; s != workflow.StatusFailed && s != workflow.StatusCancelled && s != workflow.StatusTimedOut {
		ex.mu.Unlock()
		return nil, cperrors.NewConflict(fmt.Sprintf("workflow %s: only a failed, cancelled, or timed-out workflow can be retried", workflowID))
	}
	workflowType := ex.workflowType
	input := ex.input
	tags := ex.tags
	ex.mu.Unlock()

	return e.StartWorkflow(ctx, workflowType, StartWorkflowOptions{
		Tags:               tags,
		OriginalWorkflowID: workflowID,
	}, e.tenantFor(ex), input)
}

// Describe implements Driver.
func (e *Engine) Describe(workflowID, runID string) (ExecutionRecord, error) {
	ex, ok := e.lookup(workflowID)
	if !ok {
		return ExecutionRecord{}, cperrors.NewNotFound(fmt.Sprintf("workflow %s", workflowID))
	}
	return ex.record(), nil
}

// BulkOperation implements Driver.
func (e *Engine) BulkOperation(ctx context.Context, op LifecycleOp, workflowIDs []string, continueOnError bool) []BulkResult {
	results := make([]BulkResult, 0, len(workflowIDs))
	for _, id := range workflowIDs {
		var err error
		switch op {
		case OpCancel:
			err = e.Cancel(ctx, id, "", "bulk operation")
		case OpTerminate:
			err = e.Terminate(ctx, id, "", "bulk operation")
		case OpPause:
			err = e.Pause(ctx, id, "")
		case OpResume:
			err = e.Resume(ctx, id, "")
		case OpRetry:
			_, err = e.Retry(ctx, id, "")
		default:
			err = fmt.Errorf("unknown bulk operation %q", op)
		}
		results = append(results, BulkResult{WorkflowID: id, Op: op, Err: err})
		if err != nil && !continueOnError {
			break
		}
	}
	return results
}

// StartWorker implements Driver. The in-memory driver has no separate
// task-queue poller — every StartWorkflow call already runs its
// workflow goroutine directly — so StartWorker only replaces the
// engine-wide activity concurrency bound going forward; every queue
// shares that one bound.
func (e *Engine) StartWorker(taskQueue string, maxConcurrentActivityTasks, maxConcurrentWorkflowTasks int) error {
	e.workersMu.Lock()
	defer e.workersMu.Unlock()
	if maxConcurrentActivityTasks > 0 {
		e.activitySem = make(chan struct{}, maxConcurrentActivityTasks)
	}
	e.workers[taskQueue] = true
	return nil
}

// StopWorker implements Driver.
func (e *Engine) StopWorker(taskQueue string) {
	e.workersMu.Lock()
	defer e.workersMu.Unlock()
	delete(e.workers, taskQueue)
}

// handleImpl is the external Handle returned to callers of
// StartWorkflow/GetHandle.
type handleImpl struct {
	eng        *Engine
	workflowID string
	runID      string
}

func (h *handleImpl) GetID() string    { return h.workflowID }
func (h *handleImpl) GetRunID() string { return h.runID }

func (h *handleImpl) Get(ctx context.Context, valuePtr interface{}) error {
	ex, ok := h.eng.lookup(h.workflowID)
	if !ok {
		return cperrors.NewNotFound(fmt.Sprintf("workflow %s", h.workflowID))
	}
	select {
	case <-ex.doneCh:
	case <-ctx.Done():
		return ctx.Err()
	}
	ex.mu.Lock()
	status := ex.status
	result := ex.result
	execErr := ex.execErr
	ex.mu.Unlock()

	if status != workflow.StatusCompleted {
		if execErr != nil {
			return execErr
		}
		return fmt.Errorf("workflow %q ended with status %s", h.workflowID, status)
	}
	if valuePtr != nil && len(result) > 0 {
		return json.Unmarshal(result, valuePtr)
	}
	return nil
}

func (h *handleImpl) Cancel(ctx context.Context, reason string) error {
	return h.eng.Cancel(ctx, h.workflowID, h.runID, reason)
}

func (h *handleImpl) Terminate(ctx context.Context, reason string) error {
	return h.eng.Terminate(ctx, h.workflowID, h.runID, reason)
}

func (h *handleImpl) Signal(ctx context.Context, name string, payload interface{}) error {
	b, err := marshalInput(payload)
	if err != nil {
		return err
	}
	return h.eng.Signal(ctx, h.workflowID, h.runID, name, b)
}

func (h *handleImpl) Query(ctx context.Context, name string, payload interface{}) (Payload, error) {
	b, err := marshalInput(payload)
	if err != nil {
		return nil, err
	}
	return h.eng.Query(ctx, h.workflowID, h.runID, name, b)
}
