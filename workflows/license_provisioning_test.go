package workflows_test

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/saastenant/orchestrator/pkg/client"
	"github.com/saastenant/orchestrator/workflows"
)

func TestLicenseProvisioning_WithBilling(t *testing.T) {
	rig := newTestRig(t)

	rig.Mock.ExpectExec(`INSERT INTO license`).
		WithArgs(sqlmock.AnyArg(), "t1", "Enterprise", "active", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	run, err := client.Start(testCtx(t), rig.Client, "license_provisioning", client.StartOptions{WorkflowID: "lp-1"},
		testTenantContext("t1"), workflows.LicenseProvisioningInput{
			TenantID: "t1", Tier: "Enterprise", PaymentMethodID: "pm1",
		})
	require.NoError(t, err)

	result, err := client.Get[workflows.LicenseProvisioningResult](testCtx(t), run)
	require.NoError(t, err)
	require.NotEmpty(t, result.LicenseID)
	require.Equal(t, "succeeded", result.BillingOutcome)
	require.NoError(t, rig.Mock.ExpectationsWereMet())
}

func TestLicenseProvisioning_SkipsBillingWithoutPaymentMethod(t *testing.T) {
	rig := newTestRig(t)

	rig.Mock.ExpectExec(`INSERT INTO license`).
		WithArgs(sqlmock.AnyArg(), "t1", "Free", "active", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	run, err := client.Start(testCtx(t), rig.Client, "license_provisioning", client.StartOptions{WorkflowID: "lp-2"},
		testTenantContext("t1"), workflows.LicenseProvisioningInput{TenantID: "t1", Tier: "Free"})
	require.NoError(t, err)

	result, err := client.Get[workflows.LicenseProvisioningResult](testCtx(t), run)
	require.NoError(t, err)
	require.Equal(t, "skipped", result.BillingOutcome)
	require.NoError(t, rig.Mock.ExpectationsWereMet())
}

func TestLicenseExpiryScan_ExpiresLapsedLicenses(t *testing.T) {
	rig := newTestRig(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"license_id", "tenant_id", "tier", "status", "charge_id", "starts_at", "expires_at", "created_at",
	}).AddRow("lic1", "t1", "Free", "active", "", now, now.AddDate(0, 0, -1), now)
	rig.Mock.ExpectQuery(`SELECT license_id, tenant_id, tier, status, charge_id, starts_at, expires_at, created_at`).
		WillReturnRows(rows)
	rig.Mock.ExpectExec(`UPDATE license SET status = 'expired' WHERE license_id = \$1`).
		WithArgs("lic1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	run, err := client.Start(testCtx(t), rig.Client, "license_expiry_scan", client.StartOptions{WorkflowID: "les-1"},
		testTenantContext("t1"), workflows.LicenseExpiryScanInput{})
	require.NoError(t, err)

	result, err := client.Get[workflows.LicenseExpiryScanResult](testCtx(t), run)
	require.NoError(t, err)
	require.Equal(t, 1, result.Expired)
	require.NoError(t, rig.Mock.ExpectationsWereMet())
}
