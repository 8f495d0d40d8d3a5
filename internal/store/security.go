package store

import (
	"context"
	"time"

	cperrors "github.com/saastenant/orchestrator/internal/errors"
)

// SecurityScan mirrors one security_scan row.
type SecurityScan struct {
	ScanID      string     `db:"scan_id"`
	TenantID    string     `db:"tenant_id"`
	Target      string     `db:"target"`
	Status      string     `db:"status"`
	StartedAt   time.Time  `db:"started_at"`
	CompletedAt *time.Time `db:"completed_at"`
}

// Vulnerability mirrors one vulnerability row.
type Vulnerability struct {
	VulnerabilityID string    `db:"vulnerability_id"`
	ScanID          string    `db:"scan_id"`
	Severity        string    `db:"severity"`
	Description     string    `db:"description"`
	DetectedAt      time.Time `db:"detected_at"`
}

// CreateSecurityScan inserts the scan row a security_scan workflow
// anchors itself to before calling the scanner.
func (s *Store) CreateSecurityScan(ctx context.Context, scanID, tenantID, target string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO security_scan (scan_id, tenant_id, target, status)
		VALUES ($1,$2,$3,'running')`, scanID, tenantID, target)
	if err != nil {
		return cperrors.NewDatabase("create security scan failed", err)
	}
	return nil
}

// RecordVulnerability inserts one finding discovered by a scan.
func (s *Store) RecordVulnerability(ctx context.Context, v Vulnerability) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vulnerability (vulnerability_id, scan_id, severity, description)
		VALUES ($1,$2,$3,$4)`, v.VulnerabilityID, v.ScanID, v.Severity, v.Description)
	if err != nil {
		return cperrors.NewDatabase("record vulnerability failed", err)
	}
	return nil
}

// CompleteSecurityScan flips a scan to a terminal status and stamps
// completed_at.
func (s *Store) CompleteSecurityScan(ctx context.Context, scanID, status string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE security_scan SET status = $2, completed_at = now() WHERE scan_id = $1`, scanID, status)
	if err != nil {
		return cperrors.NewDatabase("complete security scan failed", err)
	}
	return nil
}

// ListVulnerabilities returns every finding for a scan.
func (s *Store) ListVulnerabilities(ctx context.Context, scanID string) ([]Vulnerability, error) {
	var rows []Vulnerability
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT vulnerability_id, scan_id, severity, description, detected_at
		FROM vulnerability WHERE scan_id = $1`, scanID); err != nil {
		return nil, cperrors.NewDatabase("list vulnerabilities failed", err)
	}
	return rows, nil
}
