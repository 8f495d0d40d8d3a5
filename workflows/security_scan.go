package workflows

import (
	"encoding/json"

	"github.com/saastenant/orchestrator/activities"
	"github.com/saastenant/orchestrator/internal/workflow"
)

// SecurityScanInput starts a scan against one target.
type SecurityScanInput struct {
	TenantID string `json:"tenant_id"`
	Target   string `json:"target"`
}

// SecurityScanResult reports the terminal finding summary.
type SecurityScanResult struct {
	ScanID          string `json:"scan_id"`
	FindingCount    int    `json:"finding_count"`
	HighestSeverity string `json:"highest_severity"`
}

// SecurityScan runs start_scan, run_scan, complete_scan in sequence.
// Pause/resume/cancel are engine-level lifecycle operations
// (spec §4.C pattern 5) that this workflow doesn't need its own signal
// handlers for — the engine holds activity scheduling on pause and
// delivers cancellation through ctx.Done() the same way file_upload
// observes it. progress is this workflow's own query, reporting the
// stage and, once available, the finding count.
type SecurityScan struct{}

func (SecurityScan) Name() string              { return "security_scan" }
func (SecurityScan) Version() workflow.Version { return workflow.Version{Major: 1} }

func (SecurityScan) SignalHandlers() map[string]workflow.SignalHandler { return nil }

func (SecurityScan) QueryHandlers() map[string]workflow.QueryHandler {
	return map[string]workflow.QueryHandler{
		"progress": func(ctx workflow.Context, _ []byte) ([]byte, error) {
			stage, _ := ctx.State().Get("stage")
			s, _ := stage.(string)
			if s == "" {
				s = "unknown"
			}
			count, _ := ctx.State().Get("finding_count")
			return json.Marshal(map[string]interface{}{"stage": s, "finding_count": count})
		},
	}
}

func (w SecurityScan) Execute(ctx workflow.Context, in SecurityScanInput) (SecurityScanResult, error) {
	setStage := func(s string) { ctx.State().Set("stage", s) }

	setStage("starting")
	var started activities.StartScanResult
	if err := ctx.ExecuteActivity("start_scan", dbActivityOptions(),
		activities.StartScanInput{TenantID: in.TenantID, Target: in.Target}).
		Get(ctx, &started); err != nil {
		return SecurityScanResult{}, err
	}

	select {
	case <-ctx.Done():
		setStage("cancelled")
		w.finish(ctx, started.ScanID, "cancelled")
		return SecurityScanResult{ScanID: started.ScanID}, &workflow.CancelledError{Reason: "cancelled before scan ran"}
	default:
	}

	setStage("scanning")
	var ran activities.RunScanResult
	if err := ctx.ExecuteActivity("run_scan", externalActivityOptions(),
		activities.RunScanInput{ScanID: started.ScanID, Target: in.Target}).
		Get(ctx, &ran); err != nil {
		w.finish(ctx, started.ScanID, "failed")
		return SecurityScanResult{ScanID: started.ScanID}, &workflow.ActivityFailedError{ActivityName: "run_scan", Cause: err}
	}
	ctx.State().Set("finding_count", ran.FindingCount)

	setStage("completed")
	w.finish(ctx, started.ScanID, "completed")
	return SecurityScanResult{ScanID: started.ScanID, FindingCount: ran.FindingCount, HighestSeverity: ran.HighestSeverity}, nil
}

func (SecurityScan) finish(ctx workflow.Context, scanID, status string) {
	if err := getFuture[activities.CompleteScanResult](ctx, ctx.ExecuteActivity("complete_scan", dbActivityOptions(),
		activities.CompleteScanInput{ScanID: scanID, Status: status})); err != nil {
		logCompensationError(ctx, "complete_scan", err)
	}
}
