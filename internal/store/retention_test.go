package store_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/saastenant/orchestrator/internal/store"
)

func TestListRetentionPolicies(t *testing.T) {
	s, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"tenant_id", "resource_type", "retain_days", "hard_delete"}).
		AddRow("t1", "files", 90, false).
		AddRow("t1", "audit_log", 365, true)

	mock.ExpectQuery(`SELECT tenant_id, resource_type, retain_days, hard_delete FROM retention_policy`).
		WillReturnRows(rows)

	policies, err := s.ListRetentionPolicies(context.Background())
	require.NoError(t, err)
	require.Len(t, policies, 2)
	require.Equal(t, store.RetentionPolicy{TenantID: "t1", ResourceType: "files", RetainDays: 90, HardDelete: false}, policies[0])
	require.True(t, policies[1].HardDelete)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListExpiredFiles(t *testing.T) {
	s, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"file_id"}).AddRow("f1").AddRow("f2")
	mock.ExpectQuery(`SELECT file_id FROM file_metadata`).
		WithArgs("t1", sqlmock.AnyArg()).
		WillReturnRows(rows)

	ids, err := s.ListExpiredFiles(context.Background(), "t1", 90)
	require.NoError(t, err)
	require.Equal(t, []string{"f1", "f2"}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFileStorageKey(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT storage_key FROM file_metadata WHERE file_id = \$1`).
		WithArgs("f1").
		WillReturnRows(sqlmock.NewRows([]string{"storage_key"}).AddRow("t1/f1"))

	key, err := s.FileStorageKey(context.Background(), "f1")
	require.NoError(t, err)
	require.Equal(t, "t1/f1", key)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPurgeFileAndArchiveFile(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM file_metadata WHERE file_id = \$1`).
		WithArgs("f1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.PurgeFile(context.Background(), "f1"))

	mock.ExpectExec(`UPDATE file_metadata SET status = 'archived' WHERE file_id = \$1`).
		WithArgs("f2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.ArchiveFile(context.Background(), "f2"))

	require.NoError(t, mock.ExpectationsWereMet())
}
