package engine

import "time"

// HistoryEventType names one kind of durable event the engine persists
// per workflow step (spec §4.C "The engine persists each step as a
// durable event; on worker crash the workflow resumes from the last
// committed event").
type HistoryEventType string

const (
	EventActivityScheduled HistoryEventType = "ActivityScheduled"
	EventActivityCompleted HistoryEventType = "ActivityCompleted"
	EventActivityFailed    HistoryEventType = "ActivityFailed"
	EventChildStarted      HistoryEventType = "ChildWorkflowStarted"
	EventChildCompleted    HistoryEventType = "ChildWorkflowCompleted"
	EventChildFailed       HistoryEventType = "ChildWorkflowFailed"
	EventTimerStarted      HistoryEventType = "TimerStarted"
	EventTimerFired        HistoryEventType = "TimerFired"
	EventSignalReceived    HistoryEventType = "SignalReceived"
	EventVersionMarker     HistoryEventType = "VersionMarker"
	EventWorkflowStarted   HistoryEventType = "WorkflowStarted"
	EventWorkflowCompleted HistoryEventType = "WorkflowCompleted"
	EventWorkflowFailed    HistoryEventType = "WorkflowFailed"
)

// HistoryEvent is one committed step. Seq is assigned in schedule
// order under the execution's lock, which is what lets replay feed
// completions back in their original order regardless of how the live
// execution actually interleaved goroutines (spec §5 "the engine
// replays their completions deterministically").
type HistoryEvent struct {
	Seq       int64
	Type      HistoryEventType
	Timestamp time.Time
	Name      string // activity_type, child workflow_type, changeID, or signal name
	Input     Payload
	Result    Payload
	Err       string
	IntValue  int // GetVersion's chosen version
}
