package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/saastenant/orchestrator/internal/store"
)

func TestCreateSecurityScan(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO security_scan`).
		WithArgs("scan1", "t1", "example.com").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.CreateSecurityScan(context.Background(), "scan1", "t1", "example.com"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordVulnerability(t *testing.T) {
	s, mock := newMockStore(t)

	v := store.Vulnerability{VulnerabilityID: "v1", ScanID: "scan1", Severity: "high", Description: "exposed port"}
	mock.ExpectExec(`INSERT INTO vulnerability`).
		WithArgs(v.VulnerabilityID, v.ScanID, v.Severity, v.Description).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.RecordVulnerability(context.Background(), v))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteSecurityScan(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE security_scan SET status = \$2, completed_at = now\(\) WHERE scan_id = \$1`).
		WithArgs("scan1", "completed").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.CompleteSecurityScan(context.Background(), "scan1", "completed"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListVulnerabilities(t *testing.T) {
	s, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"vulnerability_id", "scan_id", "severity", "description", "detected_at"}).
		AddRow("v1", "scan1", "critical", "sql injection", time.Now())

	mock.ExpectQuery(`SELECT vulnerability_id, scan_id, severity, description, detected_at`).
		WithArgs("scan1").
		WillReturnRows(rows)

	vulns, err := s.ListVulnerabilities(context.Background(), "scan1")
	require.NoError(t, err)
	require.Len(t, vulns, 1)
	require.Equal(t, "critical", vulns[0].Severity)
	require.NoError(t, mock.ExpectationsWereMet())
}
