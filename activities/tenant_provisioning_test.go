package activities_test

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/saastenant/orchestrator/activities"
	"github.com/saastenant/orchestrator/internal/adapters"
	"github.com/saastenant/orchestrator/internal/tenant"
)

func TestCreateSchema(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO tenant`).
		WithArgs("t1", "Acme", "Professional", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "Shared", false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	a := activities.CreateSchema{Store: s}
	out, err := a.Execute(testActivityContext(), activities.CreateSchemaInput{
		TenantID: "t1", TenantName: "Acme", Tier: tenant.TierProfessional, IsolationLevel: tenant.IsolationShared,
	})
	require.NoError(t, err)
	require.Equal(t, "t1", out.TenantID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSchema_ValidatesInput(t *testing.T) {
	a := activities.CreateSchema{}
	require.Error(t, a.ValidateInput(activities.CreateSchemaInput{TenantID: "t1"}))
}

func TestProvisionStorage(t *testing.T) {
	objects := adapters.NewInMemoryObjectStore()
	a := activities.ProvisionStorage{Objects: objects}

	out, err := a.Execute(testActivityContext(), activities.ProvisionStorageInput{TenantID: "t1"})
	require.NoError(t, err)
	require.Equal(t, "t1/", out.BucketPrefix)
}

func TestProvisionNetwork(t *testing.T) {
	dnsssl := adapters.NewInMemoryDNSSSLProvisioner()
	a := activities.ProvisionNetwork{DNSSSL: dnsssl}

	out, err := a.Execute(testActivityContext(), activities.ProvisionNetworkInput{TenantID: "t1", Domain: "acme.example.com"})
	require.NoError(t, err)
	require.Equal(t, "acme.example.com", out.Domain)
}

func TestEnableFeatures(t *testing.T) {
	s, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"tenant_id", "tenant_name", "subscription_tier", "features", "quotas", "settings", "isolation_level", "is_active"}).
		AddRow("t1", "Acme", "Professional", `{}`, `{}`, `{}`, "Shared", false)
	mock.ExpectQuery(`SELECT tenant_id, tenant_name, subscription_tier, features, quotas`).
		WithArgs("t1").
		WillReturnRows(rows)
	mock.ExpectExec(`INSERT INTO tenant`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	a := activities.EnableFeatures{Store: s}
	_, err := a.Execute(testActivityContext(), activities.EnableFeaturesInput{
		TenantID: "t1", Features: map[string]bool{"sso": true},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetupTenantBilling(t *testing.T) {
	payments := adapters.NewInMemoryPaymentProcessor()
	a := activities.SetupTenantBilling{Payments: payments}

	out, err := a.Execute(testActivityContext(), activities.SetupTenantBillingInput{TenantID: "t1", Tier: tenant.TierEnterprise})
	require.NoError(t, err)
	require.NotEmpty(t, out.ChargeID)
}

func TestActivateTenant(t *testing.T) {
	s, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"tenant_id", "tenant_name", "subscription_tier", "features", "quotas", "settings", "isolation_level", "is_active"}).
		AddRow("t1", "Acme", "Professional", `{}`, `{}`, `{}`, "Shared", false)
	mock.ExpectQuery(`SELECT tenant_id, tenant_name, subscription_tier, features, quotas`).
		WithArgs("t1").
		WillReturnRows(rows)
	mock.ExpectExec(`INSERT INTO tenant`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	a := activities.ActivateTenant{Store: s}
	_, err := a.Execute(testActivityContext(), activities.ActivateTenantInput{TenantID: "t1"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotifyProvisioned(t *testing.T) {
	email := &adapters.InMemoryEmailSender{}
	a := activities.NotifyProvisioned{Email: email}

	out, err := a.Execute(testActivityContext(), activities.NotifyProvisionedInput{TenantID: "t1", AdminEmail: "admin@acme.com"})
	require.NoError(t, err)
	require.Equal(t, "t1-welcome", out.MessageID)
}

func TestCompensateStep(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO audit_log`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	a := activities.CompensateStep{Audit: s}
	_, err := a.Execute(testActivityContext(), activities.CompensateStepInput{
		TenantID: "t1", Step: "provision_storage", Reason: "provisioning failed",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeactivateTenant(t *testing.T) {
	s, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"tenant_id", "tenant_name", "subscription_tier", "features", "quotas", "settings", "isolation_level", "is_active"}).
		AddRow("t1", "Acme", "Professional", `{}`, `{}`, `{}`, "Shared", true)
	mock.ExpectQuery(`SELECT tenant_id, tenant_name, subscription_tier, features, quotas`).
		WithArgs("t1").
		WillReturnRows(rows)
	mock.ExpectExec(`INSERT INTO tenant`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	a := activities.DeactivateTenant{Store: s}
	_, err := a.Execute(testActivityContext(), activities.DeactivateTenantInput{TenantID: "t1"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
