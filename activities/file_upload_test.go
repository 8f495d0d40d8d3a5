package activities_test

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/saastenant/orchestrator/activities"
	"github.com/saastenant/orchestrator/internal/adapters"
	"github.com/saastenant/orchestrator/internal/bff"
	"github.com/saastenant/orchestrator/internal/tenant"
)

type fakeQuotaChecker struct {
	err error
}

func (f fakeQuotaChecker) Check(ctx context.Context, tenantID, resourceType string, requested int64) error {
	return f.err
}

func TestValidateUpload(t *testing.T) {
	a := activities.ValidateUpload{}
	_, err := a.Execute(testActivityContext(), activities.ValidateUploadInput{
		TenantID: "t1", FileName: "report.pdf", SizeBytes: 1024, ContentType: "application/pdf",
	})
	require.NoError(t, err)
}

func TestValidateUpload_RejectsOversizedFile(t *testing.T) {
	a := activities.ValidateUpload{}
	require.Error(t, a.ValidateInput(activities.ValidateUploadInput{
		TenantID: "t1", FileName: "huge.bin", SizeBytes: 1 << 40,
	}))
}

func TestValidateUpload_RejectsInactiveTenant(t *testing.T) {
	a := activities.ValidateUpload{}
	err := a.ValidateTenantAccess(tenant.Context{Tenant: tenant.TenantContext{TenantID: "t1", IsActive: false}})
	require.Error(t, err)
}

func TestValidateUpload_ChecksQuota(t *testing.T) {
	a := activities.ValidateUpload{}
	tc := tenant.Context{Tenant: tenant.TenantContext{TenantID: "t1", IsActive: true}}
	require.NoError(t, a.CheckQuotas(context.Background(), tc, fakeQuotaChecker{}))

	quotaErr := a.CheckQuotas(context.Background(), tc, fakeQuotaChecker{err: errors.New("quota exceeded")})
	require.Error(t, quotaErr)
}

func TestCreateFileMetadata(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO file_metadata`).
		WithArgs(sqlmock.AnyArg(), "t1", "u1", "report.pdf", int64(1024), "pending", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	a := activities.CreateFileMetadata{Store: s}
	out, err := a.Execute(testActivityContext(), activities.CreateFileMetadataInput{
		TenantID: "t1", FileName: "report.pdf", SizeBytes: 1024, OwnerID: "u1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, out.FileID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFinalizeUpload(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE file_metadata SET status = 'available'`).
		WithArgs("f1", "t1/f1", int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	objects := adapters.NewInMemoryObjectStore()
	a := activities.FinalizeUpload{Objects: objects, Store: s}
	out, err := a.Execute(testActivityContext(), activities.FinalizeUploadInput{
		TenantID: "t1", FileID: "f1", Data: []byte("data"),
	})
	require.NoError(t, err)
	require.Equal(t, "t1/f1", out.StorageKey)
	require.NoError(t, mock.ExpectationsWereMet())

	stored, getErr := objects.Get(context.Background(), "t1/f1")
	require.NoError(t, getErr)
	require.Equal(t, []byte("data"), stored)
}

func TestDeletePartialUpload(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE file_metadata SET status = 'cancelled'`).
		WithArgs("f1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	objects := adapters.NewInMemoryObjectStore()
	require.NoError(t, objects.Put(context.Background(), "t1/f1", []byte("partial")))

	a := activities.DeletePartialUpload{Objects: objects, Store: s}
	_, err := a.Execute(testActivityContext(), activities.DeletePartialUploadInput{TenantID: "t1", FileID: "f1"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInvalidateFileCache(t *testing.T) {
	c := newTestCache(t)
	bcache := bff.NewCache(c)
	index := bff.NewIndex(c, bcache)
	require.NoError(t, index.Track(context.Background(), "f1", "fp1"))

	a := activities.InvalidateFileCache{Index: index}
	_, err := a.Execute(testActivityContext(), activities.InvalidateFileCacheInput{FileID: "f1"})
	require.NoError(t, err)
}

func TestInvalidateFileCache_RequiresFileID(t *testing.T) {
	a := activities.InvalidateFileCache{}
	require.Error(t, a.ValidateInput(activities.InvalidateFileCacheInput{}))
}
