package workflows_test

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/saastenant/orchestrator/pkg/client"
	"github.com/saastenant/orchestrator/workflows"
)

func TestFileUpload_HappyPath(t *testing.T) {
	rig := newTestRig(t)

	rig.Mock.ExpectExec(`INSERT INTO file_metadata`).WillReturnResult(sqlmock.NewResult(0, 1))
	rig.Mock.ExpectExec(`UPDATE file_metadata SET status = 'available'`).WillReturnResult(sqlmock.NewResult(0, 1))

	run, err := client.Start(testCtx(t), rig.Client, "file_upload", client.StartOptions{WorkflowID: "fu-1"},
		testTenantContext("t1"), workflows.FileUploadInput{
			TenantID: "t1", OwnerID: "u1", FileName: "report.pdf", ContentType: "application/pdf",
			Data: []byte("hello world"),
		})
	require.NoError(t, err)

	result, err := client.Get[workflows.FileUploadResult](testCtx(t), run)
	require.NoError(t, err)
	require.NotEmpty(t, result.FileID)
	require.Equal(t, "t1/"+result.FileID, result.StorageKey)
	require.NoError(t, rig.Mock.ExpectationsWereMet())

	stored, getErr := rig.Objects.Get(testCtx(t), result.StorageKey)
	require.NoError(t, getErr)
	require.Equal(t, []byte("hello world"), stored)
}
