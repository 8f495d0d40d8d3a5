package activities_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/saastenant/orchestrator/activities"
	"github.com/saastenant/orchestrator/internal/adapters"
)

func TestValidateRegistration_ValidatesInput(t *testing.T) {
	a := activities.ValidateRegistration{}

	require.Error(t, a.ValidateInput(activities.ValidateRegistrationInput{
		Email: "not-an-email", Password: "Str0ng!pass", TenantName: "Acme",
	}))
	require.Error(t, a.ValidateInput(activities.ValidateRegistrationInput{
		Email: "alice@acme.com", Password: "weak", TenantName: "Acme",
	}))
	require.Error(t, a.ValidateInput(activities.ValidateRegistrationInput{
		Email: "alice@acme.com", Password: "Str0ng!pass",
	}))
	require.NoError(t, a.ValidateInput(activities.ValidateRegistrationInput{
		Email: "alice@acme.com", Password: "Str0ng!pass", TenantName: "Acme",
	}))
}

func TestValidateRegistration_NoInvite(t *testing.T) {
	a := activities.ValidateRegistration{}
	out, err := a.Execute(testActivityContext(), activities.ValidateRegistrationInput{
		Email: "alice@acme.com", Password: "Str0ng!pass", TenantName: "Acme",
	})
	require.NoError(t, err)
	require.Empty(t, out.InviteTenantID)
}

func TestValidateRegistration_InviteRedemption(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()
	rows := sqlmock.NewRows([]string{"token_id", "tenant_id", "user_id", "token_type", "token_hash", "metadata", "expires_at", "used_at", "created_at"}).
		AddRow("tok1", "t1", "", "invite", "deadbeef", []byte(`{"roles":["admin","billing"]}`), now.Add(time.Hour), nil, now)
	mock.ExpectQuery(`SELECT token_id, tenant_id, user_id, token_type, token_hash, metadata, expires_at, used_at, created_at`).
		WillReturnRows(rows)
	mock.ExpectExec(`UPDATE auth_token SET used_at`).
		WithArgs("tok1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	a := activities.ValidateRegistration{Store: s}
	out, err := a.Execute(testActivityContext(), activities.ValidateRegistrationInput{
		Email: "bob@acme.com", Password: "Str0ng!pass", InviteToken: "raw-invite-token",
	})
	require.NoError(t, err)
	require.Equal(t, "t1", out.InviteTenantID)
	require.ElementsMatch(t, []string{"admin", "billing"}, out.InviteRoles)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestValidateRegistration_InviteNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT token_id, tenant_id, user_id, token_type, token_hash, metadata, expires_at, used_at, created_at`).
		WillReturnError(sql.ErrNoRows)

	a := activities.ValidateRegistration{Store: s}
	_, err := a.Execute(testActivityContext(), activities.ValidateRegistrationInput{
		Email: "bob@acme.com", Password: "Str0ng!pass", InviteToken: "bogus-token",
	})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDefaultTenant(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO tenant`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	a := activities.CreateDefaultTenant{Store: s}
	out, err := a.Execute(testActivityContext(), activities.CreateDefaultTenantInput{TenantName: "Acme"})
	require.NoError(t, err)
	require.NotEmpty(t, out.TenantID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDefaultTenant_ValidatesInput(t *testing.T) {
	a := activities.CreateDefaultTenant{}
	require.Error(t, a.ValidateInput(activities.CreateDefaultTenantInput{}))
}

func TestCreateUserAccount(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO app_user`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	a := activities.CreateUserAccount{Store: s}
	out, err := a.Execute(testActivityContext(), activities.CreateUserAccountInput{
		TenantID: "t1", Email: "alice@acme.com", Password: "Str0ng!pass", Roles: []string{"admin"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, out.UserID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserAccount_DuplicateEmailIsConflict(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO app_user`).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	a := activities.CreateUserAccount{Store: s}
	_, err := a.Execute(testActivityContext(), activities.CreateUserAccountInput{
		TenantID: "t1", Email: "alice@acme.com", Password: "Str0ng!pass", Roles: []string{"admin"},
	})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserAccount_ChecksUsersQuota(t *testing.T) {
	checker := &recordingQuotaChecker{}
	ac := testActivityContext()
	a := activities.CreateUserAccount{Quotas: checker}
	err := a.CheckQuotas(ac, ac.TenantCtx, checker)
	require.NoError(t, err)
	require.Equal(t, "users", checker.resourceType)
	require.Equal(t, int64(1), checker.requested)
}

func TestSendVerificationEmail(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE auth_token SET used_at`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO auth_token`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	email := &adapters.InMemoryEmailSender{}
	a := activities.SendVerificationEmail{Store: s, Email: email}
	out, err := a.Execute(testActivityContext(), activities.SendVerificationEmailInput{
		TenantID: "t1", UserID: "u1", Email: "alice@acme.com", TenantName: "Acme",
	})
	require.NoError(t, err)
	require.NotEmpty(t, out.VerificationToken)
	require.True(t, out.EmailSent)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSendVerificationEmail_ValidatesInput(t *testing.T) {
	a := activities.SendVerificationEmail{}
	require.Error(t, a.ValidateInput(activities.SendVerificationEmailInput{Email: "alice@acme.com"}))
}

// recordingQuotaChecker is a minimal activity.QuotaChecker double recording
// the last resource type/quantity it was asked to check.
type recordingQuotaChecker struct {
	resourceType string
	requested    int64
}

func (f *recordingQuotaChecker) Check(_ context.Context, _ string, resourceType string, requested int64) error {
	f.resourceType = resourceType
	f.requested = requested
	return nil
}
