package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	cperrors "github.com/saastenant/orchestrator/internal/errors"
	"github.com/saastenant/orchestrator/internal/store"
)

func TestCreateLicense(t *testing.T) {
	s, mock := newMockStore(t)

	l := store.License{
		LicenseID: "lic1", TenantID: "t1", Tier: "Professional", Status: "active",
		ChargeID: "ch1", StartsAt: time.Now(), ExpiresAt: time.Now().AddDate(1, 0, 0),
	}
	mock.ExpectExec(`INSERT INTO license`).
		WithArgs(l.LicenseID, l.TenantID, l.Tier, l.Status, l.ChargeID, l.StartsAt, l.ExpiresAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.CreateLicense(context.Background(), l))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetActiveLicense_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT license_id, tenant_id, tier, status, charge_id, starts_at, expires_at, created_at`).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{
			"license_id", "tenant_id", "tier", "status", "charge_id", "starts_at", "expires_at", "created_at",
		}))

	_, err := s.GetActiveLicense(context.Background(), "t1")
	require.Error(t, err)
	require.Equal(t, cperrors.CodeNotFound, cperrors.CodeOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetActiveLicense_Found(t *testing.T) {
	s, mock := newMockStore(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"license_id", "tenant_id", "tier", "status", "charge_id", "starts_at", "expires_at", "created_at",
	}).AddRow("lic1", "t1", "Enterprise", "active", "ch1", now, now.AddDate(1, 0, 0), now)

	mock.ExpectQuery(`SELECT license_id, tenant_id, tier, status, charge_id, starts_at, expires_at, created_at`).
		WithArgs("t1").
		WillReturnRows(rows)

	l, err := s.GetActiveLicense(context.Background(), "t1")
	require.NoError(t, err)
	require.Equal(t, "lic1", l.LicenseID)
	require.Equal(t, "Enterprise", l.Tier)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListExpiringLicenses(t *testing.T) {
	s, mock := newMockStore(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"license_id", "tenant_id", "tier", "status", "charge_id", "starts_at", "expires_at", "created_at",
	}).AddRow("lic1", "t1", "Free", "active", "", now, now.AddDate(0, 0, 5), now)

	mock.ExpectQuery(`SELECT license_id, tenant_id, tier, status, charge_id, starts_at, expires_at, created_at`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(rows)

	licenses, err := s.ListExpiringLicenses(context.Background(), 7*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, licenses, 1)
	require.Equal(t, "lic1", licenses[0].LicenseID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExpireLicense(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE license SET status = 'expired' WHERE license_id = \$1`).
		WithArgs("lic1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.ExpireLicense(context.Background(), "lic1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
