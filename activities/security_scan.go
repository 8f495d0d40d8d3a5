package activities

import (
	"context"

	"github.com/google/uuid"

	"github.com/saastenant/orchestrator/internal/activity"
	"github.com/saastenant/orchestrator/internal/adapters"
	cperrors "github.com/saastenant/orchestrator/internal/errors"
	"github.com/saastenant/orchestrator/internal/store"
	"github.com/saastenant/orchestrator/internal/tenant"
)

// StartScanInput/Result opens a security_scan row and hands back the
// id every later step anchors to.
type StartScanInput struct {
	TenantID string `json:"tenant_id"`
	Target   string `json:"target"`
}
type StartScanResult struct {
	ScanID string `json:"scan_id"`
}

type StartScan struct{ Store *store.Store }

func (StartScan) Name() string { return "start_scan" }
func (StartScan) ValidateInput(in StartScanInput) error {
	if in.Target == "" {
		return cperrors.NewValidation("target", "target is required")
	}
	return nil
}
func (StartScan) ValidateTenantAccess(tenant.Context) error { return nil }
func (StartScan) CheckQuotas(context.Context, tenant.Context, activity.QuotaChecker) error {
	return nil
}
func (a StartScan) Execute(ctx activity.Context, in StartScanInput) (StartScanResult, error) {
	scanID := uuid.NewString()
	if err := a.Store.CreateSecurityScan(ctx, scanID, in.TenantID, in.Target); err != nil {
		return StartScanResult{}, err
	}
	return StartScanResult{ScanID: scanID}, nil
}
func (StartScan) DefaultOptions() activity.Options { return standardOptions() }

// RunScanInput/Result invokes the scanner and persists every finding.
type RunScanInput struct {
	ScanID string `json:"scan_id"`
	Target string `json:"target"`
}
type RunScanResult struct {
	FindingCount    int    `json:"finding_count"`
	HighestSeverity string `json:"highest_severity"`
}

type RunScan struct {
	Store   *store.Store
	Scanner adapters.VulnerabilityScanner
}

func (RunScan) Name() string { return "run_scan" }
func (RunScan) ValidateInput(in RunScanInput) error {
	if in.ScanID == "" || in.Target == "" {
		return cperrors.NewValidation("scan_id", "scan_id and target are required")
	}
	return nil
}
func (RunScan) ValidateTenantAccess(tenant.Context) error { return nil }
func (RunScan) CheckQuotas(context.Context, tenant.Context, activity.QuotaChecker) error {
	return nil
}

var severityRank = map[string]int{"low": 1, "medium": 2, "high": 3, "critical": 4}

func (a RunScan) Execute(ctx activity.Context, in RunScanInput) (RunScanResult, error) {
	findings, err := a.Scanner.Scan(ctx, in.Target)
	if err != nil {
		return RunScanResult{}, err
	}

	highest := ""
	for _, f := range findings {
		if err := a.Store.RecordVulnerability(ctx, store.Vulnerability{
			VulnerabilityID: f.VulnerabilityID,
			ScanID:          in.ScanID,
			Severity:        f.Severity,
			Description:     f.Description,
		}); err != nil {
			return RunScanResult{}, err
		}
		if severityRank[f.Severity] > severityRank[highest] {
			highest = f.Severity
		}
	}
	return RunScanResult{FindingCount: len(findings), HighestSeverity: highest}, nil
}
func (RunScan) DefaultOptions() activity.Options { return externalOptions() }

// CompleteScanInput/Result marks the scan terminal.
type CompleteScanInput struct {
	ScanID string `json:"scan_id"`
	Status string `json:"status"` // "completed"|"failed"|"cancelled"
}
type CompleteScanResult struct{}

type CompleteScan struct{ Store *store.Store }

func (CompleteScan) Name() string { return "complete_scan" }
func (CompleteScan) ValidateInput(in CompleteScanInput) error {
	if in.ScanID == "" || in.Status == "" {
		return cperrors.NewValidation("status", "scan_id and status are required")
	}
	return nil
}
func (CompleteScan) ValidateTenantAccess(tenant.Context) error { return nil }
func (CompleteScan) CheckQuotas(context.Context, tenant.Context, activity.QuotaChecker) error {
	return nil
}
func (a CompleteScan) Execute(ctx activity.Context, in CompleteScanInput) (CompleteScanResult, error) {
	if err := a.Store.CompleteSecurityScan(ctx, in.ScanID, in.Status); err != nil {
		return CompleteScanResult{}, err
	}
	return CompleteScanResult{}, nil
}
func (CompleteScan) DefaultOptions() activity.Options { return standardOptions() }
