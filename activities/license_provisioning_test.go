package activities_test

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/saastenant/orchestrator/activities"
	"github.com/saastenant/orchestrator/internal/adapters"
)

func TestChargeForLicense(t *testing.T) {
	payments := adapters.NewInMemoryPaymentProcessor()
	a := activities.ChargeForLicense{Payments: payments}

	out, err := a.Execute(testActivityContext(), activities.ChargeForLicenseInput{
		TenantID: "t1", Tier: "Professional", PaymentMethodID: "pm1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, out.ChargeID)
}

func TestChargeForLicense_RequiresPaymentMethod(t *testing.T) {
	a := activities.ChargeForLicense{}
	require.Error(t, a.ValidateInput(activities.ChargeForLicenseInput{TenantID: "t1", Tier: "Free"}))
}

func TestIssueLicense(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO license`).
		WithArgs(sqlmock.AnyArg(), "t1", "Enterprise", "active", "ch1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	a := activities.IssueLicense{Store: s}
	out, err := a.Execute(testActivityContext(), activities.IssueLicenseInput{
		TenantID: "t1", Tier: "Enterprise", ChargeID: "ch1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, out.LicenseID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIssueLicense_ValidatesTier(t *testing.T) {
	a := activities.IssueLicense{}
	require.Error(t, a.ValidateInput(activities.IssueLicenseInput{TenantID: "t1"}))
}

func TestExpireLicenseActivity(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE license SET status = 'expired' WHERE license_id = \$1`).
		WithArgs("lic1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	a := activities.ExpireLicenseActivity{Store: s}
	_, err := a.Execute(testActivityContext(), activities.ExpireLicenseInput{LicenseID: "lic1"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListExpiringLicenses(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"license_id", "tenant_id", "tier", "status", "charge_id", "starts_at", "expires_at", "created_at",
	}).AddRow("lic1", "t1", "Free", "active", "", now, now.AddDate(0, 0, -1), now)

	mock.ExpectQuery(`SELECT license_id, tenant_id, tier, status, charge_id, starts_at, expires_at, created_at`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(rows)

	a := activities.ListExpiringLicenses{Store: s}
	out, err := a.Execute(testActivityContext(), activities.ListExpiringLicensesInput{})
	require.NoError(t, err)
	require.Equal(t, []string{"lic1"}, out.LicenseIDs)
	require.NoError(t, mock.ExpectationsWereMet())
}
