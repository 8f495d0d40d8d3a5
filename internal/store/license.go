package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	cperrors "github.com/saastenant/orchestrator/internal/errors"
)

// License mirrors one license row: the commercial term a tenant is
// currently operating under.
type License struct {
	LicenseID string    `db:"license_id"`
	TenantID  string    `db:"tenant_id"`
	Tier      string    `db:"tier"`
	Status    string    `db:"status"`
	ChargeID  string    `db:"charge_id"`
	StartsAt  time.Time `db:"starts_at"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}

// CreateLicense inserts the license row a license_provisioning_workflow
// produces once billing (if any) has settled.
func (s *Store) CreateLicense(ctx context.Context, l License) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO license (license_id, tenant_id, tier, status, charge_id, starts_at, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		l.LicenseID, l.TenantID, l.Tier, l.Status, l.ChargeID, l.StartsAt, l.ExpiresAt)
	if err != nil {
		return cperrors.NewDatabase("create license failed", err)
	}
	return nil
}

// GetActiveLicense returns a tenant's current active license.
func (s *Store) GetActiveLicense(ctx context.Context, tenantID string) (License, error) {
	var l License
	err := s.db.GetContext(ctx, &l, `
		SELECT license_id, tenant_id, tier, status, charge_id, starts_at, expires_at, created_at
		FROM license WHERE tenant_id = $1 AND status = 'active'
		ORDER BY created_at DESC LIMIT 1`, tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return License{}, cperrors.NewNotFound("license for tenant " + tenantID)
	}
	if err != nil {
		return License{}, cperrors.NewDatabase("get active license failed", err)
	}
	return l, nil
}

// ListExpiringLicenses returns active licenses expiring within window,
// consulted by the license-expiry cron scan.
func (s *Store) ListExpiringLicenses(ctx context.Context, window time.Duration) ([]License, error) {
	var rows []License
	cutoff := time.Now().UTC().Add(window)
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT license_id, tenant_id, tier, status, charge_id, starts_at, expires_at, created_at
		FROM license WHERE status = 'active' AND expires_at < $1`, cutoff); err != nil {
		return nil, cperrors.NewDatabase("list expiring licenses failed", err)
	}
	return rows, nil
}

// ExpireLicense flips a license to expired once its term has lapsed and
// renewal did not happen.
func (s *Store) ExpireLicense(ctx context.Context, licenseID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE license SET status = 'expired' WHERE license_id = $1`, licenseID)
	if err != nil {
		return cperrors.NewDatabase("expire license failed", err)
	}
	return nil
}
