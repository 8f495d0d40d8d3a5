package activities_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/saastenant/orchestrator/activities"
	"github.com/saastenant/orchestrator/internal/activity"
	"github.com/saastenant/orchestrator/internal/tenant"
)

func TestRegisterModuleInstall(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO module_installation`).
		WithArgs("t1", "sso", "2.0", "pending").
		WillReturnResult(sqlmock.NewResult(0, 1))

	a := activities.RegisterModuleInstall{Store: s}
	_, err := a.Execute(testActivityContext(), activities.RegisterModuleInstallInput{
		TenantID: "t1", ModuleName: "sso", Version: "2.0",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckModuleEntitlement_DeniesMissingFeature(t *testing.T) {
	ctx := activity.NewContext(context.Background(), tenant.Context{
		Tenant: tenant.TenantContext{TenantID: "t1", IsActive: true, Features: map[string]bool{}},
		User:   tenant.UserContext{UserID: "u1"},
	}, "idem", 1, nil)

	a := activities.CheckModuleEntitlement{}
	_, err := a.Execute(ctx, activities.CheckModuleEntitlementInput{TenantID: "t1", ModuleName: "sso"})
	require.Error(t, err)
}

func TestCheckModuleEntitlement_AllowsEntitledFeature(t *testing.T) {
	ctx := activity.NewContext(context.Background(), tenant.Context{
		Tenant: tenant.TenantContext{TenantID: "t1", IsActive: true, Features: map[string]bool{"sso": true}},
		User:   tenant.UserContext{UserID: "u1"},
	}, "idem", 1, nil)

	a := activities.CheckModuleEntitlement{}
	_, err := a.Execute(ctx, activities.CheckModuleEntitlementInput{TenantID: "t1", ModuleName: "sso"})
	require.NoError(t, err)
}

func TestCheckModuleEntitlement_AllowsUnlistedModule(t *testing.T) {
	ctx := testActivityContext()
	a := activities.CheckModuleEntitlement{}
	_, err := a.Execute(ctx, activities.CheckModuleEntitlementInput{TenantID: "t1", ModuleName: "custom_webhook"})
	require.NoError(t, err)
}

func TestInstallModule(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE module_installation SET status = 'installed'`).
		WithArgs("t1", "sso").
		WillReturnResult(sqlmock.NewResult(0, 1))

	a := activities.InstallModule{Store: s}
	_, err := a.Execute(testActivityContext(), activities.InstallModuleInput{TenantID: "t1", ModuleName: "sso"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFailModuleInstall(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE module_installation SET status = 'failed'`).
		WithArgs("t1", "audit_export").
		WillReturnResult(sqlmock.NewResult(0, 1))

	a := activities.FailModuleInstall{Store: s}
	_, err := a.Execute(testActivityContext(), activities.FailModuleInstallInput{TenantID: "t1", ModuleName: "audit_export"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
