package workflows_test

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/saastenant/orchestrator/internal/workflow"
	"github.com/saastenant/orchestrator/pkg/client"
	"github.com/saastenant/orchestrator/workflows"
)

func TestUserOnboarding_SelfServiceSignup(t *testing.T) {
	rig := newTestRig(t)

	rig.Mock.ExpectExec(`INSERT INTO tenant`).WillReturnResult(sqlmock.NewResult(0, 1))
	rig.Mock.ExpectExec(`INSERT INTO app_user`).WillReturnResult(sqlmock.NewResult(0, 1))
	rig.Mock.ExpectExec(`UPDATE auth_token SET used_at`).WillReturnResult(sqlmock.NewResult(0, 0))
	rig.Mock.ExpectExec(`INSERT INTO auth_token`).WillReturnResult(sqlmock.NewResult(0, 1))

	run, err := client.Start(testCtx(t), rig.Client, "user_onboarding", client.StartOptions{WorkflowID: "uo-1"},
		testTenantContext(""), workflows.UserOnboardingInput{
			Email: "alice@acme.com", Password: "Str0ng!pass", DisplayName: "Alice", TenantName: "Acme",
		})
	require.NoError(t, err)

	result, err := client.Get[workflows.UserOnboardingResult](testCtx(t), run)
	require.NoError(t, err)
	require.NotEmpty(t, result.UserID)
	require.NotEmpty(t, result.TenantID)
	require.NotEmpty(t, result.VerificationToken)
	require.True(t, result.VerificationRequired)
	require.True(t, result.OnboardingRequired)
	require.NoError(t, rig.Mock.ExpectationsWereMet())
}

func TestUserOnboarding_InviteRedemption(t *testing.T) {
	rig := newTestRig(t)

	now := time.Now()
	inviteRows := sqlmock.NewRows([]string{"token_id", "tenant_id", "user_id", "token_type", "token_hash", "metadata", "expires_at", "used_at", "created_at"}).
		AddRow("tok1", "t9", "", "invite", "deadbeef", []byte(`{"roles":["member"]}`), now.Add(time.Hour), nil, now)
	rig.Mock.ExpectQuery(`SELECT token_id, tenant_id, user_id, token_type, token_hash, metadata, expires_at, used_at, created_at`).
		WillReturnRows(inviteRows)
	rig.Mock.ExpectExec(`UPDATE auth_token SET used_at`).WithArgs("tok1").WillReturnResult(sqlmock.NewResult(0, 1))
	rig.Mock.ExpectExec(`INSERT INTO app_user`).WillReturnResult(sqlmock.NewResult(0, 1))
	rig.Mock.ExpectExec(`UPDATE auth_token SET used_at`).WillReturnResult(sqlmock.NewResult(0, 0))
	rig.Mock.ExpectExec(`INSERT INTO auth_token`).WillReturnResult(sqlmock.NewResult(0, 1))

	run, err := client.Start(testCtx(t), rig.Client, "user_onboarding", client.StartOptions{WorkflowID: "uo-2"},
		testTenantContext(""), workflows.UserOnboardingInput{
			Email: "bob@acme.com", Password: "Str0ng!pass", DisplayName: "Bob", InviteToken: "raw-invite-token",
		})
	require.NoError(t, err)

	result, err := client.Get[workflows.UserOnboardingResult](testCtx(t), run)
	require.NoError(t, err)
	require.Equal(t, "t9", result.TenantID)
	require.False(t, result.OnboardingRequired)
	require.NoError(t, rig.Mock.ExpectationsWereMet())
}

func TestUserOnboarding_CompensatesFreshTenantOnAccountFailure(t *testing.T) {
	rig := newTestRig(t)

	rig.Mock.ExpectExec(`INSERT INTO tenant`).WillReturnResult(sqlmock.NewResult(0, 1))
	rig.Mock.ExpectExec(`INSERT INTO app_user`).WillReturnError(&pgconn.PgError{Code: "23505"})
	rig.Mock.ExpectQuery(`SELECT tenant_id, tenant_name, subscription_tier, features, quotas`).
		WillReturnRows(tenantRow("fresh-tenant-id", true))
	rig.Mock.ExpectExec(`INSERT INTO tenant`).WillReturnResult(sqlmock.NewResult(0, 1))

	run, err := client.Start(testCtx(t), rig.Client, "user_onboarding", client.StartOptions{WorkflowID: "uo-3"},
		testTenantContext(""), workflows.UserOnboardingInput{
			Email: "carol@acme.com", Password: "Str0ng!pass", DisplayName: "Carol", TenantName: "Acme",
		})
	require.NoError(t, err)

	_, err = client.Get[workflows.UserOnboardingResult](testCtx(t), run)
	require.Error(t, err)

	rec, err := rig.Client.Describe("uo-3", "")
	require.NoError(t, err)
	require.Equal(t, workflow.StatusFailed, rec.Status)
}
