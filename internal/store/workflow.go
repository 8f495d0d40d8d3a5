package store

import (
	"context"
	"encoding/json"

	"github.com/saastenant/orchestrator/internal/engine"
	cperrors "github.com/saastenant/orchestrator/internal/errors"
)

// MirrorExecution upserts the analytics-facing copy of a workflow
// execution record (spec §3). The engine's own history is the
// authoritative replay source; this table exists only so the control
// plane's dashboards and audit surfaces can query executions without
// talking to the driver directly.
func (s *Store) MirrorExecution(ctx context.Context, rec engine.ExecutionRecord) error {
	tags, err := json.Marshal(rec.Tags)
	if err != nil {
		return cperrors.NewValidation("tags", "not serializable")
	}
	searchAttrs, err := json.Marshal(rec.SearchAttributes)
	if err != nil {
		return cperrors.NewValidation("search_attributes", "not serializable")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflow_execution (
			workflow_id, run_id, workflow_type, version, task_queue, namespace,
			status, start_time, close_time, parent_workflow_id,
			original_workflow_id, correlation_id, priority, tags,
			search_attributes, input, result, error
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		ON CONFLICT (workflow_id, run_id) DO UPDATE SET
			status = EXCLUDED.status,
			close_time = EXCLUDED.close_time,
			result = EXCLUDED.result,
			error = EXCLUDED.error`,
		rec.WorkflowID, rec.RunID, rec.WorkflowType, int(rec.Version), rec.TaskQueue,
		rec.Namespace, string(rec.Status), rec.StartTime, rec.CloseTime,
		rec.ParentWorkflowID, rec.OriginalWorkflowID, rec.CorrelationID, rec.Priority,
		tags, searchAttrs, []byte(rec.Input), []byte(rec.Result), rec.Error)
	if err != nil {
		return cperrors.NewDatabase("workflow execution mirror write failed", err)
	}
	return nil
}

// ListExecutionsByTenant returns a tenant's executions most-recent
// first, bounded by limit, for the workflow management dashboard.
func (s *Store) ListExecutionsByTenant(ctx context.Context, correlationPrefix string, limit int) ([]engine.ExecutionRecord, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT workflow_id, run_id, workflow_type, version, task_queue, namespace,
		       status, start_time, close_time, parent_workflow_id,
		       original_workflow_id, correlation_id, priority, error
		FROM workflow_execution
		WHERE correlation_id LIKE $1
		ORDER BY start_time DESC LIMIT $2`, correlationPrefix+"%", limit)
	if err != nil {
		return nil, cperrors.NewDatabase("workflow execution list failed", err)
	}
	defer rows.Close()

	var out []engine.ExecutionRecord
	for rows.Next() {
		var rec engine.ExecutionRecord
		var version int
		if serr := rows.Scan(&rec.WorkflowID, &rec.RunID, &rec.WorkflowType, &version,
			&rec.TaskQueue, &rec.Namespace, &rec.Status, &rec.StartTime, &rec.CloseTime,
			&rec.ParentWorkflowID, &rec.OriginalWorkflowID, &rec.CorrelationID,
			&rec.Priority, &rec.Error); serr != nil {
			return nil, cperrors.NewDatabase("workflow execution scan failed", serr)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
