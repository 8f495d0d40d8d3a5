package workflows_test

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	cperrors "github.com/saastenant/orchestrator/internal/errors"
	"github.com/saastenant/orchestrator/internal/tenant"
	"github.com/saastenant/orchestrator/internal/workflow"
	"github.com/saastenant/orchestrator/pkg/client"
	"github.com/saastenant/orchestrator/workflows"
)

func tenantRow(tenantID string, active bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"tenant_id", "tenant_name", "subscription_tier", "features", "quotas", "settings", "isolation_level", "is_active"}).
		AddRow(tenantID, "Acme", "Professional", `{}`, `{}`, `{}`, "Schema", active)
}

func TestTenantProvisioning_HappyPath(t *testing.T) {
	rig := newTestRig(t)

	rig.Mock.ExpectExec(`INSERT INTO tenant`).WillReturnResult(sqlmock.NewResult(0, 1))
	rig.Mock.ExpectQuery(`SELECT tenant_id, tenant_name, subscription_tier, features, quotas`).
		WithArgs("t1").WillReturnRows(tenantRow("t1", true))
	rig.Mock.ExpectExec(`INSERT INTO tenant`).WillReturnResult(sqlmock.NewResult(0, 1))
	rig.Mock.ExpectQuery(`SELECT tenant_id, tenant_name, subscription_tier, features, quotas`).
		WithArgs("t1").WillReturnRows(tenantRow("t1", false))
	rig.Mock.ExpectExec(`INSERT INTO tenant`).WillReturnResult(sqlmock.NewResult(0, 1))

	run, err := client.Start(testCtx(t), rig.Client, "tenant_provisioning", client.StartOptions{WorkflowID: "tp-1"},
		testTenantContext("t1"), workflows.TenantProvisioningInput{
			TenantID: "t1", TenantName: "Acme", Tier: tenant.TierProfessional,
			AdminEmail: "admin@acme.com", Domain: "acme.example.com",
		})
	require.NoError(t, err)

	result, err := client.Get[workflows.TenantProvisioningResult](testCtx(t), run)
	require.NoError(t, err)
	require.Equal(t, "t1", result.TenantID)
	require.NotEmpty(t, result.ChargeID)
	require.Equal(t, "t1-welcome", result.MessageID)
	require.NoError(t, rig.Mock.ExpectationsWereMet())

	rec, err := rig.Client.Describe("tp-1", "")
	require.NoError(t, err)
	require.True(t, rec.Status.Terminal())
}

func TestTenantProvisioning_RollsBackOnBillingFailure(t *testing.T) {
	rig := newTestRig(t)
	rig.Payments.Err = cperrors.NewValidation("payment_method", "card declined")

	rig.Mock.ExpectExec(`INSERT INTO tenant`).WillReturnResult(sqlmock.NewResult(0, 1))
	rig.Mock.ExpectQuery(`SELECT tenant_id, tenant_name, subscription_tier, features, quotas`).
		WithArgs("t1").WillReturnRows(tenantRow("t1", true))
	rig.Mock.ExpectExec(`INSERT INTO tenant`).WillReturnResult(sqlmock.NewResult(0, 1))
	// compensate_step runs once per completed step (create_schema,
	// provision_storage, setup_monitoring, network, features), each an
	// audit_log insert, followed by one deactivate_tenant read+write.
	for i := 0; i < 5; i++ {
		rig.Mock.ExpectExec(`INSERT INTO audit_log`).WillReturnResult(sqlmock.NewResult(0, 1))
	}
	rig.Mock.ExpectQuery(`SELECT tenant_id, tenant_name, subscription_tier, features, quotas`).
		WithArgs("t1").WillReturnRows(tenantRow("t1", true))
	rig.Mock.ExpectExec(`INSERT INTO tenant`).WillReturnResult(sqlmock.NewResult(0, 1))

	run, err := client.Start(testCtx(t), rig.Client, "tenant_provisioning", client.StartOptions{WorkflowID: "tp-2"},
		testTenantContext("t1"), workflows.TenantProvisioningInput{
			TenantID: "t1", TenantName: "Acme", Tier: tenant.TierProfessional,
			AdminEmail: "admin@acme.com", Domain: "acme.example.com",
		})
	require.NoError(t, err)

	_, err = client.Get[workflows.TenantProvisioningResult](testCtx(t), run)
	require.Error(t, err)

	rec, err := rig.Client.Describe("tp-2", "")
	require.NoError(t, err)
	require.Equal(t, workflow.StatusFailed, rec.Status)
}
