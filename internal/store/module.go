package store

import (
	"context"
	"time"

	cperrors "github.com/saastenant/orchestrator/internal/errors"
)

// ModuleInstallation mirrors one module_installation row.
type ModuleInstallation struct {
	TenantID    string     `db:"tenant_id"`
	ModuleName  string     `db:"module_name"`
	Version     string     `db:"version"`
	Status      string     `db:"status"`
	InstalledAt *time.Time `db:"installed_at"`
}

// UpsertModuleInstallation records a module install attempt, used both
// to mark it pending at the start of the workflow and to flip it to
// installed/failed at the end.
func (s *Store) UpsertModuleInstallation(ctx context.Context, tenantID, moduleName, version, status string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO module_installation (tenant_id, module_name, version, status)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (tenant_id, module_name) DO UPDATE
		SET version = EXCLUDED.version, status = EXCLUDED.status`,
		tenantID, moduleName, version, status)
	if err != nil {
		return cperrors.NewDatabase("upsert module installation failed", err)
	}
	return nil
}

// MarkModuleInstalled flips a module_installation row to installed and
// stamps installed_at.
func (s *Store) MarkModuleInstalled(ctx context.Context, tenantID, moduleName string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE module_installation SET status = 'installed', installed_at = now()
		WHERE tenant_id = $1 AND module_name = $2`, tenantID, moduleName)
	if err != nil {
		return cperrors.NewDatabase("mark module installed failed", err)
	}
	return nil
}

// MarkModuleFailed flips a module_installation row to failed.
func (s *Store) MarkModuleFailed(ctx context.Context, tenantID, moduleName string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE module_installation SET status = 'failed' WHERE tenant_id = $1 AND module_name = $2`,
		tenantID, moduleName)
	if err != nil {
		return cperrors.NewDatabase("mark module failed failed", err)
	}
	return nil
}

// ListInstalledModules returns a tenant's installed modules.
func (s *Store) ListInstalledModules(ctx context.Context, tenantID string) ([]ModuleInstallation, error) {
	var rows []ModuleInstallation
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT tenant_id, module_name, version, status, installed_at
		FROM module_installation WHERE tenant_id = $1`, tenantID); err != nil {
		return nil, cperrors.NewDatabase("list installed modules failed", err)
	}
	return rows, nil
}
