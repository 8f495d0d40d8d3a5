package activities_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/saastenant/orchestrator/activities"
	"github.com/saastenant/orchestrator/internal/adapters"
)

func TestListRetentionPolicies_Activity(t *testing.T) {
	s, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"tenant_id", "resource_type", "retain_days", "hard_delete"}).
		AddRow("t1", "files", 90, false)
	mock.ExpectQuery(`SELECT tenant_id, resource_type, retain_days, hard_delete FROM retention_policy`).
		WillReturnRows(rows)

	a := activities.ListRetentionPolicies{Store: s}
	out, err := a.Execute(testActivityContext(), activities.ListRetentionPoliciesInput{})
	require.NoError(t, err)
	require.Len(t, out.Policies, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListExpiredResources_NonFilesResourceSkipsQuery(t *testing.T) {
	s, _ := newMockStore(t)
	a := activities.ListExpiredResources{Store: s}
	out, err := a.Execute(testActivityContext(), activities.ListExpiredResourcesInput{
		TenantID: "t1", ResourceType: "audit_log", RetainDays: 365,
	})
	require.NoError(t, err)
	require.Empty(t, out.ResourceIDs)
}

func TestListExpiredResources_Files(t *testing.T) {
	s, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"file_id"}).AddRow("f1")
	mock.ExpectQuery(`SELECT file_id FROM file_metadata`).
		WithArgs("t1", sqlmock.AnyArg()).
		WillReturnRows(rows)

	a := activities.ListExpiredResources{Store: s}
	out, err := a.Execute(testActivityContext(), activities.ListExpiredResourcesInput{
		TenantID: "t1", ResourceType: "files", RetainDays: 90,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"f1"}, out.ResourceIDs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListExpiredResources_ValidatesInput(t *testing.T) {
	a := activities.ListExpiredResources{}
	require.Error(t, a.ValidateInput(activities.ListExpiredResourcesInput{ResourceType: "files"}))
}

func TestPurgeResource_DeletesObjectAndRow(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT storage_key FROM file_metadata WHERE file_id = \$1`).
		WithArgs("f1").
		WillReturnRows(sqlmock.NewRows([]string{"storage_key"}).AddRow("t1/f1"))
	mock.ExpectExec(`DELETE FROM file_metadata WHERE file_id = \$1`).
		WithArgs("f1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	objects := adapters.NewInMemoryObjectStore()
	require.NoError(t, objects.Put(context.Background(), "t1/f1", []byte("data")))

	a := activities.PurgeResource{Store: s, Objects: objects}
	_, err := a.Execute(testActivityContext(), activities.PurgeResourceInput{
		TenantID: "t1", ResourceType: "files", ResourceID: "f1", ApprovedBy: "admin",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	_, getErr := objects.Get(context.Background(), "t1/f1")
	require.Error(t, getErr)
}

func TestPurgeResource_RequiresApproval(t *testing.T) {
	a := activities.PurgeResource{}
	require.Error(t, a.ValidateInput(activities.PurgeResourceInput{ResourceID: "f1"}))
}

func TestArchiveResource_Files(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE file_metadata SET status = 'archived' WHERE file_id = \$1`).
		WithArgs("f2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	a := activities.ArchiveResource{Store: s}
	_, err := a.Execute(testActivityContext(), activities.ArchiveResourceInput{
		TenantID: "t1", ResourceType: "files", ResourceID: "f2",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestArchiveResource_NonFilesSkipsStore(t *testing.T) {
	s, _ := newMockStore(t)
	a := activities.ArchiveResource{Store: s}
	_, err := a.Execute(testActivityContext(), activities.ArchiveResourceInput{
		TenantID: "t1", ResourceType: "audit_log", ResourceID: "a1",
	})
	require.NoError(t, err)
}
