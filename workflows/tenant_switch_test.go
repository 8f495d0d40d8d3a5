package workflows_test

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/saastenant/orchestrator/pkg/client"
	"github.com/saastenant/orchestrator/workflows"
)

func TestTenantSwitch_HappyPath(t *testing.T) {
	rig := newTestRig(t)

	rows := sqlmock.NewRows([]string{"user_id", "tenant_id", "email", "roles", "permissions"}).
		AddRow("u1", "t2", "u1@example.com", `["member"]`, `{"read":true}`)
	rig.Mock.ExpectQuery(`SELECT user_id, tenant_id, email, roles, permissions FROM app_user`).
		WithArgs("t2", "u1").
		WillReturnRows(rows)
	rig.Mock.ExpectExec(`INSERT INTO audit_log`).
		WithArgs("t2", "u1", "tenant_switch", "", "", "switched from t1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	run, err := client.Start(testCtx(t), rig.Client, "tenant_switch", client.StartOptions{WorkflowID: "ts-1"},
		testTenantContext("t1"), workflows.TenantSwitchInput{
			UserID: "u1", FromTenantID: "t1", ToTenantID: "t2",
		})
	require.NoError(t, err)

	result, err := client.Get[workflows.TenantSwitchResult](testCtx(t), run)
	require.NoError(t, err)
	require.NotEmpty(t, result.SessionID)
	require.NoError(t, rig.Mock.ExpectationsWereMet())
}
