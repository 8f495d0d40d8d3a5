package activities_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/saastenant/orchestrator/activities"
	"github.com/saastenant/orchestrator/internal/activity"
	"github.com/saastenant/orchestrator/internal/adapters"
	"github.com/saastenant/orchestrator/internal/store"
	"github.com/saastenant/orchestrator/internal/tenant"
)

func newMockStore(t *testing.T) (*store.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return store.New(sqlx.NewDb(db, "sqlmock")), mock
}

func testActivityContext() activity.Context {
	return activity.NewContext(context.Background(), tenant.Context{
		Tenant: tenant.TenantContext{TenantID: "t1", IsActive: true},
		User:   tenant.UserContext{UserID: "u1"},
	}, "idem-1", 1, nil)
}

func TestStartScan(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO security_scan`).
		WithArgs(sqlmock.AnyArg(), "t1", "example.com").
		WillReturnResult(sqlmock.NewResult(0, 1))

	a := activities.StartScan{Store: s}
	out, err := a.Execute(testActivityContext(), activities.StartScanInput{TenantID: "t1", Target: "example.com"})
	require.NoError(t, err)
	require.NotEmpty(t, out.ScanID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStartScan_ValidatesTarget(t *testing.T) {
	a := activities.StartScan{}
	require.Error(t, a.ValidateInput(activities.StartScanInput{TenantID: "t1"}))
}

func TestRunScan_TracksHighestSeverity(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO vulnerability`).
		WithArgs("v1", "scan1", "medium", "outdated tls").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO vulnerability`).
		WithArgs("v2", "scan1", "critical", "rce").
		WillReturnResult(sqlmock.NewResult(0, 1))

	scanner := &adapters.InMemoryVulnerabilityScanner{Findings: []adapters.Finding{
		{VulnerabilityID: "v1", Severity: "medium", Description: "outdated tls"},
		{VulnerabilityID: "v2", Severity: "critical", Description: "rce"},
	}}
	a := activities.RunScan{Store: s, Scanner: scanner}

	out, err := a.Execute(testActivityContext(), activities.RunScanInput{ScanID: "scan1", Target: "example.com"})
	require.NoError(t, err)
	require.Equal(t, 2, out.FindingCount)
	require.Equal(t, "critical", out.HighestSeverity)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunScan_PropagatesScannerError(t *testing.T) {
	s, _ := newMockStore(t)
	scanner := &adapters.InMemoryVulnerabilityScanner{Err: context.DeadlineExceeded}
	a := activities.RunScan{Store: s, Scanner: scanner}

	_, err := a.Execute(testActivityContext(), activities.RunScanInput{ScanID: "scan1", Target: "example.com"})
	require.Error(t, err)
}

func TestCompleteScan(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE security_scan SET status = \$2, completed_at = now\(\) WHERE scan_id = \$1`).
		WithArgs("scan1", "completed").
		WillReturnResult(sqlmock.NewResult(0, 1))

	a := activities.CompleteScan{Store: s}
	_, err := a.Execute(testActivityContext(), activities.CompleteScanInput{ScanID: "scan1", Status: "completed"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
