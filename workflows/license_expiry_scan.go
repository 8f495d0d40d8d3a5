package workflows

import (
	"github.com/saastenant/orchestrator/activities"
	"github.com/saastenant/orchestrator/internal/workflow"
)

// LicenseExpiryScanInput triggers one pass over licenses past their
// term. The worker's cron scheduler starts this on a fixed schedule.
type LicenseExpiryScanInput struct{}

// LicenseExpiryScanResult tallies how many licenses were expired.
type LicenseExpiryScanResult struct {
	Expired int `json:"expired"`
}

// LicenseExpiryScan flips every active license past its expires_at to
// expired. Renewal is a separate, tenant-initiated license_provisioning
// run; this workflow only closes out lapsed terms.
type LicenseExpiryScan struct{}

func (LicenseExpiryScan) Name() string              { return "license_expiry_scan" }
func (LicenseExpiryScan) Version() workflow.Version { return workflow.Version{Major: 1} }

func (LicenseExpiryScan) SignalHandlers() map[string]workflow.SignalHandler { return nil }
func (LicenseExpiryScan) QueryHandlers() map[string]workflow.QueryHandler   { return nil }

func (LicenseExpiryScan) Execute(ctx workflow.Context, _ LicenseExpiryScanInput) (LicenseExpiryScanResult, error) {
	var expiring activities.ListExpiringLicensesResult
	if err := ctx.ExecuteActivity("list_expiring_licenses", dbActivityOptions(), activities.ListExpiringLicensesInput{}).
		Get(ctx, &expiring); err != nil {
		return LicenseExpiryScanResult{}, err
	}

	var result LicenseExpiryScanResult
	for _, id := range expiring.LicenseIDs {
		if err := getFuture[activities.ExpireLicenseResult](ctx, ctx.ExecuteActivity("expire_license", dbActivityOptions(),
			activities.ExpireLicenseInput{LicenseID: id})); err != nil {
			return result, err
		}
		result.Expired++
	}
	return result, nil
}
