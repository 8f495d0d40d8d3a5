package store

import (
	"context"
	"time"

	cperrors "github.com/saastenant/orchestrator/internal/errors"
)

// RetentionPolicy mirrors one retention_policy row: how long a tenant's
// resources of a given type are kept, and whether expiry requires a
// hard (irreversible) delete or only archival.
type RetentionPolicy struct {
	TenantID     string `db:"tenant_id"`
	ResourceType string `db:"resource_type"`
	RetainDays   int    `db:"retain_days"`
	HardDelete   bool   `db:"hard_delete"`
}

// ListRetentionPolicies returns every configured retention policy
// across all tenants, consulted once per data_retention_sweep_workflow
// run.
func (s *Store) ListRetentionPolicies(ctx context.Context) ([]RetentionPolicy, error) {
	var rows []RetentionPolicy
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT tenant_id, resource_type, retain_days, hard_delete FROM retention_policy`); err != nil {
		return nil, cperrors.NewDatabase("list retention policies failed", err)
	}
	return rows, nil
}

// ListExpiredFiles returns file ids whose file_metadata row is still
// "available" but older than retainDays. Only the "files" resource
// type has a concrete expiry query in this build; other resource
// types are a documented extension point.
func (s *Store) ListExpiredFiles(ctx context.Context, tenantID string, retainDays int) ([]string, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retainDays)
	var ids []string
	if err := s.db.SelectContext(ctx, &ids, `
		SELECT file_id FROM file_metadata
		WHERE tenant_id = $1 AND status = 'available' AND created_at < $2`, tenantID, cutoff); err != nil {
		return nil, cperrors.NewDatabase("list expired files failed", err)
	}
	return ids, nil
}

// FileStorageKey returns the storage key for a file, used by the purge
// activity to remove the underlying object before dropping the row.
func (s *Store) FileStorageKey(ctx context.Context, fileID string) (string, error) {
	var key string
	err := s.db.GetContext(ctx, &key, `SELECT storage_key FROM file_metadata WHERE file_id = $1`, fileID)
	if err != nil {
		return "", cperrors.NewDatabase("get storage key failed", err)
	}
	return key, nil
}

// PurgeFile irreversibly deletes a file_metadata row. Callers must
// already have removed the underlying object.
func (s *Store) PurgeFile(ctx context.Context, fileID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM file_metadata WHERE file_id = $1`, fileID)
	if err != nil {
		return cperrors.NewDatabase("purge file failed", err)
	}
	return nil
}

// ArchiveFile marks a file_metadata row "archived" without deleting
// the underlying object, the soft-retention path for policies with
// hard_delete=false.
func (s *Store) ArchiveFile(ctx context.Context, fileID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE file_metadata SET status = 'archived' WHERE file_id = $1`, fileID)
	if err != nil {
		return cperrors.NewDatabase("archive file failed", err)
	}
	return nil
}
