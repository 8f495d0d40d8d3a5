package store

import (
	"context"
	"encoding/json"
	"time"

	cperrors "github.com/saastenant/orchestrator/internal/errors"
	"github.com/saastenant/orchestrator/internal/tenant"
)

// AuditEntry is one row of the workflow-management audit log (spec
// §4.C: every lifecycle operation — cancel, retry, pause, resume,
// terminate, bulk op — is recorded with actor and reason).
type AuditEntry struct {
	TenantID   string
	ActorID    string
	Action     string
	WorkflowID string
	RunID      string
	Reason     string
	Metadata   map[string]interface{}
	At         time.Time
}

// AuditLogger is the narrow capability workflows and the lifecycle API
// need to record an audit entry. Declared as an interface so callers
// can depend on the capability rather than on *Store.
type AuditLogger interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// Record persists an audit log entry.
func (s *Store) Record(ctx context.Context, entry AuditEntry) error {
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return cperrors.NewValidation("metadata", "not serializable")
	}
	if entry.At.IsZero() {
		entry.At = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log (tenant_id, actor_id, action, workflow_id, run_id,
		                        reason, metadata, occurred_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		entry.TenantID, entry.ActorID, entry.Action, entry.WorkflowID, entry.RunID,
		entry.Reason, metadata, entry.At)
	if err != nil {
		return cperrors.NewDatabase("audit log write failed", err)
	}
	return nil
}

// RecordLifecycleOp is the AuditLogger entrypoint used by the
// lifecycle API/bulk-operation path: it resolves the acting user from
// tc so callers don't have to thread ActorID separately.
func (s *Store) RecordLifecycleOp(ctx context.Context, tc tenant.Context, action, workflowID, runID, reason string) error {
	return s.Record(ctx, AuditEntry{
		TenantID:   tc.Tenant.TenantID,
		ActorID:    tc.User.UserID,
		Action:     action,
		WorkflowID: workflowID,
		RunID:      runID,
		Reason:     reason,
	})
}
