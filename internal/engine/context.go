package engine

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/saastenant/orchestrator/internal/retry"
	"github.com/saastenant/orchestrator/internal/tenant"
	"github.com/saastenant/orchestrator/internal/workflow"
)

// future is the in-memory Future implementation. It is safe to Get
// from multiple goroutines (needed for await-all fan-out, spec §4.C
// pattern 4).
type future struct {
	done   chan struct{}
	result Payload
	err    error
}

func newFuture() *future { return &future{done: make(chan struct{})} }

func (f *future) resolve(result Payload, err error) {
	f.result = result
	f.err = err
	close(f.done)
}

func (f *future) IsReady() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

func (f *future) Get(ctx workflow.Context, valuePtr interface{}) error {
	select {
	case <-f.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if f.err != nil {
		return f.err
	}
	if valuePtr != nil && len(f.result) > 0 {
		if err := json.Unmarshal(f.result, valuePtr); err != nil {
			return &workflow.SerializationError{Cause: err}
		}
	}
	return nil
}

// contextImpl is the live (non-replaying) workflow.Context
// implementation. Every ExecuteActivity/ExecuteChildWorkflow/NewTimer
// call spawns a goroutine that performs the real work and appends a
// durable event to the execution's history under exec.mu, preserving
// a total schedule order independent of actual goroutine interleaving.
type contextImpl struct {
	goCtx   context.Context
	cancel  context.CancelFunc
	reason  atomic.Value // string
	tc      tenant.Context
	exec    *execution
	eng     *Engine
	logger  *zap.Logger
	replay  bool
}

func (c *contextImpl) TenantCtx() tenant.Context { return c.tc }
func (c *contextImpl) Done() <-chan struct{}     { return c.goCtx.Done() }
func (c *contextImpl) Err() error                { return c.goCtx.Err() }
func (c *contextImpl) State() workflow.StateStore { return c.exec.state }
func (c *contextImpl) IsReplaying() bool         { return c.replay }

func (c *contextImpl) GetLogger() *zap.Logger {
	if c.replay {
		return zap.NewNop()
	}
	return c.logger
}

// Disconnected implements workflow.Context.
func (c *contextImpl) Disconnected() workflow.Context {
	return &contextImpl{goCtx: context.Background(), tc: c.tc, exec: c.exec, eng: c.eng, logger: c.logger, replay: c.replay}
}

func marshalInput(input interface{}) (Payload, error) {
	if input == nil {
		return nil, nil
	}
	b, err := json.Marshal(input)
	if err != nil {
		return nil, &workflow.SerializationError{Cause: err}
	}
	return b, nil
}

func (c *contextImpl) ExecuteActivity(activityType string, opts workflow.ActivityOptions, input interface{}) workflow.Future {
	f := newFuture()
	inBytes, err := marshalInput(input)
	if err != nil {
		f.resolve(nil, err)
		return f
	}

	if c.replay {
		result, rerr := c.exec.nextActivityResult(activityType)
		f.resolve(result, rerr)
		return f
	}

	if perr := c.exec.waitIfPaused(c.goCtx); perr != nil {
		f.resolve(nil, perr)
		return f
	}

	c.exec.recordEvent(HistoryEvent{Type: EventActivityScheduled, Name: activityType, Input: inBytes, Timestamp: c.eng.now()})

	go func() {
		policy := c.eng.retryPolicy(opts.RetryPolicyName)
		var lastResult Payload
		heartbeatCh := make(chan struct{}, 1)
		opErr := retry.Do(c.goCtx, policy, func(ctx context.Context, attempt int32) error {
			activityCtx, cancel := context.WithCancel(ctx)
			if opts.StartToCloseTimeout > 0 {
				var tcancel context.CancelFunc
				activityCtx, tcancel = context.WithTimeout(activityCtx, opts.StartToCloseTimeout)
				defer tcancel()
			}
			defer cancel()

			c.eng.acquireActivitySlot()
			defer c.eng.releaseActivitySlot()

			result, derr := c.eng.activities.Dispatch(activityCtx, activityType, c.tc, "", attempt,
				func(details ...interface{}) {
					select {
					case heartbeatCh <- struct{}{}:
					default:
					}
				}, c.eng.quotaChecker, inBytes)
			if derr != nil {
				return derr
			}
			lastResult = result
			return nil
		})

		if opErr != nil {
			c.exec.recordEvent(HistoryEvent{Type: EventActivityFailed, Name: activityType, Err: opErr.Error(), Timestamp: c.eng.now()})
			f.resolve(nil, &workflow.ActivityFailedError{ActivityName: activityType, Cause: opErr})
			return
		}
		c.exec.recordEvent(HistoryEvent{Type: EventActivityCompleted, Name: activityType, Result: lastResult, Timestamp: c.eng.now()})
		f.resolve(lastResult, nil)
	}()

	return f
}

func (c *contextImpl) ExecuteChildWorkflow(workflowType string, opts workflow.ChildWorkflowOptions, input interface{}) workflow.Future {
	f := newFuture()
	inBytes, err := marshalInput(input)
	if err != nil {
		f.resolve(nil, err)
		return f
	}

	if c.replay {
		result, rerr := c.exec.nextChildResult(workflowType)
		f.resolve(result, rerr)
		return f
	}

	if perr := c.exec.waitIfPaused(c.goCtx); perr != nil {
		f.resolve(nil, perr)
		return f
	}

	id := opts.WorkflowID
	if id == "" {
		id = c.eng.newChildWorkflowID(c.exec.id, workflowType)
	}
	c.exec.recordEvent(HistoryEvent{Type: EventChildStarted, Name: workflowType, Input: inBytes, Timestamp: c.eng.now()})

	handle, serr := c.eng.StartWorkflow(c.goCtx, workflowType, StartWorkflowOptions{
		WorkflowID:       id,
		TaskQueue:        opts.TaskQueue,
		ParentWorkflowID: c.exec.id,
	}, c.tc, inBytes)
	if serr != nil {
		c.exec.recordEvent(HistoryEvent{Type: EventChildFailed, Name: workflowType, Err: serr.Error(), Timestamp: c.eng.now()})
		f.resolve(nil, &workflow.ChildWorkflowFailedError{WorkflowID: id, Cause: serr})
		return f
	}
	c.exec.addChild(id, opts.ParentClosePolicy)

	go func() {
		var result json.RawMessage
		gerr := handle.Get(c.goCtx, &result)
		if gerr != nil {
			c.exec.recordEvent(HistoryEvent{Type: EventChildFailed, Name: workflowType, Err: gerr.Error(), Timestamp: c.eng.now()})
			f.resolve(nil, &workflow.ChildWorkflowFailedError{WorkflowID: id, Cause: gerr})
			return
		}
		c.exec.recordEvent(HistoryEvent{Type: EventChildCompleted, Name: workflowType, Result: Payload(result), Timestamp: c.eng.now()})
		f.resolve(Payload(result), nil)
	}()

	return f
}

func (c *contextImpl) NewTimer(d time.Duration) workflow.Future {
	f := newFuture()

	if c.replay {
		f.resolve(nil, nil)
		return f
	}

	if perr := c.exec.waitIfPaused(c.goCtx); perr != nil {
		f.resolve(nil, perr)
		return f
	}

	c.exec.recordEvent(HistoryEvent{Type: EventTimerStarted, Timestamp: c.eng.now()})
	go func() {
		t := c.eng.clk.Timer(d)
		defer t.Stop()
		select {
		case <-t.C:
			c.exec.recordEvent(HistoryEvent{Type: EventTimerFired, Timestamp: c.eng.now()})
			f.resolve(nil, nil)
		case <-c.goCtx.Done():
			f.resolve(nil, c.goCtx.Err())
		}
	}()
	return f
}

func (c *contextImpl) Sleep(d time.Duration) error {
	return c.NewTimer(d).Get(c, nil)
}

func (c *contextImpl) GetVersion(changeID string, minSupported, maxSupported int) int {
	if c.replay {
		return c.exec.nextVersion(changeID, maxSupported)
	}
	chosen := maxSupported
	c.exec.recordEvent(HistoryEvent{Type: EventVersionMarker, Name: changeID, IntValue: chosen, Timestamp: c.eng.now()})
	return chosen
}

// now lets tests drive deterministic timers by wiring a
// clock.NewMock() into Engine.clk (facebookgo/clock, the teacher SDK's
// own injectable clock dependency, kept for this purpose).
func (e *Engine) now() time.Time { return e.clk.Now() }
