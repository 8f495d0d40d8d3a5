package workflows

import (
	"encoding/json"

	"github.com/saastenant/orchestrator/activities"
	"github.com/saastenant/orchestrator/internal/workflow"
)

// FileUploadInput starts a tenant's file upload.
type FileUploadInput struct {
	TenantID    string `json:"tenant_id"`
	OwnerID     string `json:"owner_id"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// FileUploadResult reports the upload's terminal state.
type FileUploadResult struct {
	FileID     string `json:"file_id"`
	StorageKey string `json:"storage_key"`
}

// FileUpload runs validate, create_metadata, finalize in sequence. If
// cancellation is observed at the suspension point between
// create_metadata and finalize, it runs delete_partial_upload and
// invalidate_file_cache instead of finalizing (scenario: "workflow
// cancellation").
type FileUpload struct{}

func (FileUpload) Name() string             { return "file_upload" }
func (FileUpload) Version() workflow.Version { return workflow.Version{Major: 1} }

func (FileUpload) SignalHandlers() map[string]workflow.SignalHandler { return nil }

func (FileUpload) QueryHandlers() map[string]workflow.QueryHandler {
	return map[string]workflow.QueryHandler{
		"status": func(ctx workflow.Context, _ []byte) ([]byte, error) {
			stage, _ := ctx.State().Get("stage")
			s, _ := stage.(string)
			if s == "" {
				s = "unknown"
			}
			return json.Marshal(map[string]string{"stage": s})
		},
	}
}

func (w FileUpload) Execute(ctx workflow.Context, in FileUploadInput) (FileUploadResult, error) {
	setStage := func(s string) { ctx.State().Set("stage", s) }

	setStage("validating")
	if err := getFuture[activities.ValidateUploadResult](ctx, ctx.ExecuteActivity("validate", dbActivityOptions(),
		activities.ValidateUploadInput{TenantID: in.TenantID, FileName: in.FileName, SizeBytes: int64(len(in.Data)), ContentType: in.ContentType})); err != nil {
		return FileUploadResult{}, err
	}

	setStage("creating_metadata")
	var meta activities.CreateFileMetadataResult
	if err := ctx.ExecuteActivity("create_metadata", dbActivityOptions(),
		activities.CreateFileMetadataInput{TenantID: in.TenantID, FileName: in.FileName, SizeBytes: int64(len(in.Data)), ContentType: in.ContentType, OwnerID: in.OwnerID}).
		Get(ctx, &meta); err != nil {
		return FileUploadResult{}, err
	}

	select {
	case <-ctx.Done():
		setStage("cancelled")
		w.cancel(ctx, in.TenantID, meta.FileID)
		return FileUploadResult{}, &workflow.CancelledError{Reason: "cancelled before finalize"}
	default:
	}

	setStage("finalizing")
	var final activities.FinalizeUploadResult
	if err := ctx.ExecuteActivity("finalize", externalActivityOptions(),
		activities.FinalizeUploadInput{TenantID: in.TenantID, FileID: meta.FileID, Data: in.Data}).
		Get(ctx, &final); err != nil {
		w.cancel(ctx, in.TenantID, meta.FileID)
		return FileUploadResult{}, &workflow.ActivityFailedError{ActivityName: "finalize", Cause: err}
	}

	setStage("completed")
	return FileUploadResult{FileID: meta.FileID, StorageKey: final.StorageKey}, nil
}

// cancel runs the upload's compensation path on a disconnected context
// so it still completes once the workflow's own context has been
// cancelled.
func (FileUpload) cancel(ctx workflow.Context, tenantID, fileID string) {
	cctx := ctx.Disconnected()
	if err := getFuture[activities.DeletePartialUploadResult](cctx, cctx.ExecuteActivity("delete_partial_upload", dbActivityOptions(),
		activities.DeletePartialUploadInput{TenantID: tenantID, FileID: fileID})); err != nil {
		logCompensationError(cctx, "delete_partial_upload", err)
	}
	if err := getFuture[activities.InvalidateFileCacheResult](cctx, cctx.ExecuteActivity("invalidate_file_cache", dbActivityOptions(),
		activities.InvalidateFileCacheInput{FileID: fileID})); err != nil {
		logCompensationError(cctx, "invalidate_file_cache", err)
	}
}
