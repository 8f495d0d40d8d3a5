package activities

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/saastenant/orchestrator/internal/activity"
	"github.com/saastenant/orchestrator/internal/cache"
	cperrors "github.com/saastenant/orchestrator/internal/errors"
	"github.com/saastenant/orchestrator/internal/store"
	"github.com/saastenant/orchestrator/internal/tenant"
)

// sessionTTL is how long a reissued session cache entry lives.
const sessionTTL = 24 * time.Hour

// ValidateTenantSwitchInput/Result confirms the switching user actually
// belongs to the destination tenant before any session is reissued.
type ValidateTenantSwitchInput struct {
	UserID     string `json:"user_id"`
	ToTenantID string `json:"to_tenant_id"`
}
type ValidateTenantSwitchResult struct{}

type ValidateTenantSwitch struct{ Store *store.Store }

func (ValidateTenantSwitch) Name() string { return "validate_tenant_switch" }
func (ValidateTenantSwitch) ValidateInput(in ValidateTenantSwitchInput) error {
	if in.UserID == "" || in.ToTenantID == "" {
		return cperrors.NewValidation("to_tenant_id", "user_id and to_tenant_id are required")
	}
	return nil
}
func (ValidateTenantSwitch) ValidateTenantAccess(tenant.Context) error { return nil }
func (ValidateTenantSwitch) CheckQuotas(context.Context, tenant.Context, activity.QuotaChecker) error {
	return nil
}
func (a ValidateTenantSwitch) Execute(ctx activity.Context, in ValidateTenantSwitchInput) (ValidateTenantSwitchResult, error) {
	if _, err := a.Store.UserContext(ctx, in.ToTenantID, in.UserID); err != nil {
		return ValidateTenantSwitchResult{}, err
	}
	return ValidateTenantSwitchResult{}, nil
}
func (ValidateTenantSwitch) DefaultOptions() activity.Options { return standardOptions() }

// sessionRecord is the JSON payload a reissued session cache key holds.
type sessionRecord struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
}

// ReissueSessionInput/Result invalidates the old session (if any) and
// writes a new one scoped to the destination tenant.
type ReissueSessionInput struct {
	UserID       string `json:"user_id"`
	ToTenantID   string `json:"to_tenant_id"`
	OldSessionID string `json:"old_session_id"`
}
type ReissueSessionResult struct {
	SessionID string `json:"session_id"`
}

type ReissueSession struct{ Cache cache.Store }

func (ReissueSession) Name() string { return "reissue_session" }
func (ReissueSession) ValidateInput(in ReissueSessionInput) error {
	if in.UserID == "" || in.ToTenantID == "" {
		return cperrors.NewValidation("to_tenant_id", "user_id and to_tenant_id are required")
	}
	return nil
}
func (ReissueSession) ValidateTenantAccess(tenant.Context) error { return nil }
func (ReissueSession) CheckQuotas(context.Context, tenant.Context, activity.QuotaChecker) error {
	return nil
}
func (a ReissueSession) Execute(ctx activity.Context, in ReissueSessionInput) (ReissueSessionResult, error) {
	if in.OldSessionID != "" {
		if err := a.Cache.Delete(ctx, "session:"+in.OldSessionID); err != nil {
			return ReissueSessionResult{}, cperrors.NewInternal("session invalidation failed", err)
		}
	}

	sessionID := uuid.NewString()
	payload, err := json.Marshal(sessionRecord{UserID: in.UserID, TenantID: in.ToTenantID})
	if err != nil {
		return ReissueSessionResult{}, cperrors.NewInternal("session payload marshal failed", err)
	}
	if err := a.Cache.Set(ctx, "session:"+sessionID, payload, sessionTTL); err != nil {
		return ReissueSessionResult{}, cperrors.NewInternal("session write failed", err)
	}
	return ReissueSessionResult{SessionID: sessionID}, nil
}
func (ReissueSession) DefaultOptions() activity.Options { return standardOptions() }

// RecordTenantSwitchInput/Result logs the switch to the audit trail,
// the durability reason tenant switching is a workflow in the first
// place rather than an in-request mutation.
type RecordTenantSwitchInput struct {
	UserID       string `json:"user_id"`
	FromTenantID string `json:"from_tenant_id"`
	ToTenantID   string `json:"to_tenant_id"`
}
type RecordTenantSwitchResult struct{}

type RecordTenantSwitch struct{ Audit *store.Store }

func (RecordTenantSwitch) Name() string { return "record_tenant_switch" }
func (RecordTenantSwitch) ValidateInput(in RecordTenantSwitchInput) error {
	if in.ToTenantID == "" {
		return cperrors.NewValidation("to_tenant_id", "to_tenant_id is required")
	}
	return nil
}
func (RecordTenantSwitch) ValidateTenantAccess(tenant.Context) error { return nil }
func (RecordTenantSwitch) CheckQuotas(context.Context, tenant.Context, activity.QuotaChecker) error {
	return nil
}
func (a RecordTenantSwitch) Execute(ctx activity.Context, in RecordTenantSwitchInput) (RecordTenantSwitchResult, error) {
	if err := a.Audit.Record(ctx, store.AuditEntry{
		TenantID: in.ToTenantID,
		ActorID:  in.UserID,
		Action:   "tenant_switch",
		Reason:   "switched from " + in.FromTenantID,
	}); err != nil {
		return RecordTenantSwitchResult{}, err
	}
	return RecordTenantSwitchResult{}, nil
}
func (RecordTenantSwitch) DefaultOptions() activity.Options { return standardOptions() }
