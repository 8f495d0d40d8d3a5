package workflows

import (
	"encoding/json"
	"time"

	"github.com/saastenant/orchestrator/activities"
	cperrors "github.com/saastenant/orchestrator/internal/errors"
	"github.com/saastenant/orchestrator/internal/workflow"
)

// DataRetentionSweepInput triggers one sweep of every tenant's
// retention_policy rows. The worker's cron scheduler starts this
// workflow on a fixed schedule rather than per tenant.
type DataRetentionSweepInput struct{}

// DataRetentionSweepResult tallies what the sweep did, for the audit
// trail and operator dashboards.
type DataRetentionSweepResult struct {
	Archived int `json:"archived"`
	Purged   int `json:"purged"`
}

// DataRetentionSweep walks every tenant's retention policies, archives
// resources past their soft retention window, and purges resources
// under a hard_delete policy only after an operator signals
// approve_hard_delete (Open Question 1: hard_delete is never
// automatic).
type DataRetentionSweep struct{}

func (DataRetentionSweep) Name() string             { return "data_retention_sweep" }
func (DataRetentionSweep) Version() workflow.Version { return workflow.Version{Major: 1} }

func (DataRetentionSweep) SignalHandlers() map[string]workflow.SignalHandler {
	return map[string]workflow.SignalHandler{
		"approve_hard_delete": func(ctx workflow.Context, payload []byte) error {
			var in struct {
				ApprovedBy string `json:"approved_by"`
			}
			if err := json.Unmarshal(payload, &in); err != nil {
				return &workflow.SerializationError{Cause: err}
			}
			if in.ApprovedBy == "" {
				return cperrors.NewValidation("approved_by", "approved_by is required")
			}
			ctx.State().Set("approved_by", in.ApprovedBy)
			return nil
		},
	}
}

func (DataRetentionSweep) QueryHandlers() map[string]workflow.QueryHandler { return nil }

func (w DataRetentionSweep) Execute(ctx workflow.Context, _ DataRetentionSweepInput) (DataRetentionSweepResult, error) {
	var result DataRetentionSweepResult

	var policies activities.ListRetentionPoliciesResult
	if err := ctx.ExecuteActivity("list_retention_policies", dbActivityOptions(), activities.ListRetentionPoliciesInput{}).
		Get(ctx, &policies); err != nil {
		return result, err
	}

	for _, p := range policies.Policies {
		var expired activities.ListExpiredResourcesResult
		if err := ctx.ExecuteActivity("list_expired_resources", dbActivityOptions(),
			activities.ListExpiredResourcesInput{TenantID: p.TenantID, ResourceType: p.ResourceType, RetainDays: p.RetainDays}).
			Get(ctx, &expired); err != nil {
			return result, err
		}
		if len(expired.ResourceIDs) == 0 {
			continue
		}

		if !p.HardDelete {
			for _, id := range expired.ResourceIDs {
				if err := getFuture[activities.ArchiveResourceResult](ctx, ctx.ExecuteActivity("archive_resource", dbActivityOptions(),
					activities.ArchiveResourceInput{TenantID: p.TenantID, ResourceType: p.ResourceType, ResourceID: id})); err != nil {
					return result, err
				}
				result.Archived++
			}
			continue
		}

		approvedBy, err := w.waitForApproval(ctx)
		if err != nil {
			return result, err
		}
		for _, id := range expired.ResourceIDs {
			if err := getFuture[activities.PurgeResourceResult](ctx, ctx.ExecuteActivity("purge_resource", dbActivityOptions(),
				activities.PurgeResourceInput{TenantID: p.TenantID, ResourceType: p.ResourceType, ResourceID: id, ApprovedBy: approvedBy})); err != nil {
				return result, err
			}
			result.Purged++
		}
	}

	return result, nil
}

// waitForApproval blocks, polling workflow-local state, until an
// approve_hard_delete signal has landed. Cancellation while waiting
// (an operator declining to approve) aborts the sweep for this run.
func (DataRetentionSweep) waitForApproval(ctx workflow.Context) (string, error) {
	for {
		if v, ok := ctx.State().Get("approved_by"); ok {
			if s, ok := v.(string); ok && s != "" {
				return s, nil
			}
		}
		if err := ctx.Sleep(time.Minute); err != nil {
			return "", err
		}
	}
}
