package workflows

import (
	"github.com/saastenant/orchestrator/activities"
	"github.com/saastenant/orchestrator/internal/workflow"
)

// TenantSwitchInput moves an already-authenticated user to a
// different tenant. OldSessionID is empty on a user's very first
// switch.
type TenantSwitchInput struct {
	UserID       string `json:"user_id"`
	FromTenantID string `json:"from_tenant_id"`
	ToTenantID   string `json:"to_tenant_id"`
	OldSessionID string `json:"old_session_id"`
}

// TenantSwitchResult carries the new session identifier the caller
// should present on subsequent requests.
type TenantSwitchResult struct {
	SessionID string `json:"session_id"`
}

// TenantSwitch is a workflow, not a direct mutation, so that session
// reissue and audit logging happen durably together: a crash between
// the two would otherwise leave a switched session with no audit
// trail, or an audit entry for a switch that never took effect.
type TenantSwitch struct{}

func (TenantSwitch) Name() string              { return "tenant_switch" }
func (TenantSwitch) Version() workflow.Version { return workflow.Version{Major: 1} }

func (TenantSwitch) SignalHandlers() map[string]workflow.SignalHandler { return nil }
func (TenantSwitch) QueryHandlers() map[string]workflow.QueryHandler   { return nil }

func (TenantSwitch) Execute(ctx workflow.Context, in TenantSwitchInput) (TenantSwitchResult, error) {
	if err := getFuture[activities.ValidateTenantSwitchResult](ctx, ctx.ExecuteActivity("validate_tenant_switch", dbActivityOptions(),
		activities.ValidateTenantSwitchInput{UserID: in.UserID, ToTenantID: in.ToTenantID})); err != nil {
		return TenantSwitchResult{}, err
	}

	var reissued activities.ReissueSessionResult
	if err := ctx.ExecuteActivity("reissue_session", dbActivityOptions(),
		activities.ReissueSessionInput{UserID: in.UserID, ToTenantID: in.ToTenantID, OldSessionID: in.OldSessionID}).
		Get(ctx, &reissued); err != nil {
		return TenantSwitchResult{}, &workflow.ActivityFailedError{ActivityName: "reissue_session", Cause: err}
	}

	if err := getFuture[activities.RecordTenantSwitchResult](ctx, ctx.ExecuteActivity("record_tenant_switch", dbActivityOptions(),
		activities.RecordTenantSwitchInput{UserID: in.UserID, FromTenantID: in.FromTenantID, ToTenantID: in.ToTenantID})); err != nil {
		return TenantSwitchResult{}, err
	}

	return TenantSwitchResult{SessionID: reissued.SessionID}, nil
}
