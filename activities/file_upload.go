package activities

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/saastenant/orchestrator/internal/activity"
	"github.com/saastenant/orchestrator/internal/adapters"
	cperrors "github.com/saastenant/orchestrator/internal/errors"
	"github.com/saastenant/orchestrator/internal/bff"
	"github.com/saastenant/orchestrator/internal/store"
	"github.com/saastenant/orchestrator/internal/tenant"
)

const maxUploadBytes = 5 << 30 // 5 GiB, generous ceiling checked before any side effect

// ValidateUploadInput/Result reject malformed uploads before any
// metadata row or object-store write happens.
type ValidateUploadInput struct {
	TenantID    string `json:"tenant_id"`
	FileName    string `json:"file_name"`
	SizeBytes   int64  `json:"size_bytes"`
	ContentType string `json:"content_type"`
}
type ValidateUploadResult struct{}

type ValidateUpload struct{ Quotas activity.QuotaChecker }

func (ValidateUpload) Name() string { return "validate" }
func (ValidateUpload) ValidateInput(in ValidateUploadInput) error {
	if in.FileName == "" {
		return cperrors.NewValidation("file_name", "file_name is required")
	}
	if in.SizeBytes <= 0 || in.SizeBytes > maxUploadBytes {
		return cperrors.NewValidation("size_bytes", "size_bytes must be between 1 and the upload ceiling")
	}
	return nil
}
func (ValidateUpload) ValidateTenantAccess(tc tenant.Context) error {
	if !tc.Tenant.IsActive {
		return cperrors.NewAuthorization("tenant is not active")
	}
	return nil
}
func (a ValidateUpload) CheckQuotas(ctx context.Context, tc tenant.Context, quotas activity.QuotaChecker) error {
	if quotas == nil {
		return nil
	}
	return quotas.Check(ctx, tc.Tenant.TenantID, "storage_bytes", 0)
}
func (ValidateUpload) Execute(ctx activity.Context, in ValidateUploadInput) (ValidateUploadResult, error) {
	return ValidateUploadResult{}, nil
}
func (ValidateUpload) DefaultOptions() activity.Options { return standardOptions() }

// CreateFileMetadataInput/Result persist the file_metadata row that
// anchors the upload before any bytes are written.
type CreateFileMetadataInput struct {
	TenantID    string `json:"tenant_id"`
	FileName    string `json:"file_name"`
	SizeBytes   int64  `json:"size_bytes"`
	ContentType string `json:"content_type"`
	OwnerID     string `json:"owner_id"`
}
type CreateFileMetadataResult struct {
	FileID string `json:"file_id"`
}

type CreateFileMetadata struct{ Store *store.Store }

func (CreateFileMetadata) Name() string { return "create_metadata" }
func (CreateFileMetadata) ValidateInput(in CreateFileMetadataInput) error {
	if in.TenantID == "" || in.FileName == "" {
		return cperrors.NewValidation("file_name", "tenant_id and file_name are required")
	}
	return nil
}
func (CreateFileMetadata) ValidateTenantAccess(tenant.Context) error { return nil }
func (CreateFileMetadata) CheckQuotas(context.Context, tenant.Context, activity.QuotaChecker) error {
	return nil
}
func (a CreateFileMetadata) Execute(ctx activity.Context, in CreateFileMetadataInput) (CreateFileMetadataResult, error) {
	fileID := uuid.NewString()
	if err := a.Store.CreateFileMetadata(ctx, store.FileMetadata{
		FileID:    fileID,
		TenantID:  in.TenantID,
		OwnerID:   in.OwnerID,
		Name:      in.FileName,
		SizeBytes: in.SizeBytes,
		Status:    "pending",
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return CreateFileMetadataResult{}, err
	}
	return CreateFileMetadataResult{FileID: fileID}, nil
}
func (CreateFileMetadata) DefaultOptions() activity.Options { return standardOptions() }

// FinalizeUploadInput/Result write the object and flip the metadata row
// to available.
type FinalizeUploadInput struct {
	TenantID string `json:"tenant_id"`
	FileID   string `json:"file_id"`
	Data     []byte `json:"data"`
}
type FinalizeUploadResult struct {
	StorageKey string `json:"storage_key"`
}

type FinalizeUpload struct {
	Objects adapters.ObjectStore
	Store   *store.Store
}

func (FinalizeUpload) Name() string { return "finalize" }
func (FinalizeUpload) ValidateInput(in FinalizeUploadInput) error {
	if in.FileID == "" {
		return cperrors.NewValidation("file_id", "file_id is required")
	}
	return nil
}
func (FinalizeUpload) ValidateTenantAccess(tenant.Context) error { return nil }
func (FinalizeUpload) CheckQuotas(context.Context, tenant.Context, activity.QuotaChecker) error {
	return nil
}
func (a FinalizeUpload) Execute(ctx activity.Context, in FinalizeUploadInput) (FinalizeUploadResult, error) {
	key := in.TenantID + "/" + in.FileID
	if err := a.Objects.Put(ctx, key, in.Data); err != nil {
		return FinalizeUploadResult{}, err
	}
	if err := a.Store.MarkFileAvailable(ctx, in.FileID, key, int64(len(in.Data))); err != nil {
		return FinalizeUploadResult{}, err
	}
	return FinalizeUploadResult{StorageKey: key}, nil
}
func (FinalizeUpload) DefaultOptions() activity.Options { return externalOptions() }

// DeletePartialUploadInput/Result is the compensation activity run
// when an upload is cancelled after create_metadata but before
// finalize (scenario: "workflow cancellation").
type DeletePartialUploadInput struct {
	TenantID string `json:"tenant_id"`
	FileID   string `json:"file_id"`
}
type DeletePartialUploadResult struct{}

type DeletePartialUpload struct {
	Objects adapters.ObjectStore
	Store   *store.Store
}

func (DeletePartialUpload) Name() string { return "delete_partial_upload" }
func (DeletePartialUpload) ValidateInput(in DeletePartialUploadInput) error {
	if in.FileID == "" {
		return cperrors.NewValidation("file_id", "file_id is required")
	}
	return nil
}
func (DeletePartialUpload) ValidateTenantAccess(tenant.Context) error { return nil }
func (DeletePartialUpload) CheckQuotas(context.Context, tenant.Context, activity.QuotaChecker) error {
	return nil
}
func (a DeletePartialUpload) Execute(ctx activity.Context, in DeletePartialUploadInput) (DeletePartialUploadResult, error) {
	key := in.TenantID + "/" + in.FileID
	if err := a.Objects.Delete(ctx, key); err != nil && cperrors.CodeOf(err) != cperrors.CodeNotFound {
		return DeletePartialUploadResult{}, err
	}
	if err := a.Store.MarkFileCancelled(ctx, in.FileID); err != nil {
		return DeletePartialUploadResult{}, err
	}
	return DeletePartialUploadResult{}, nil
}
func (DeletePartialUpload) DefaultOptions() activity.Options { return standardOptions() }

// InvalidateFileCacheInput/Result purges the BFF aggregate cache for
// this file so GET /uploads/:id reflects the new status within one
// TTL rather than up to the dashboard route's full TTL.
type InvalidateFileCacheInput struct {
	FileID string `json:"file_id"`
}
type InvalidateFileCacheResult struct{}

type InvalidateFileCache struct{ Index *bff.Index }

func (InvalidateFileCache) Name() string { return "invalidate_file_cache" }
func (InvalidateFileCache) ValidateInput(in InvalidateFileCacheInput) error {
	if in.FileID == "" {
		return cperrors.NewValidation("file_id", "file_id is required")
	}
	return nil
}
func (InvalidateFileCache) ValidateTenantAccess(tenant.Context) error { return nil }
func (InvalidateFileCache) CheckQuotas(context.Context, tenant.Context, activity.QuotaChecker) error {
	return nil
}
func (a InvalidateFileCache) Execute(ctx activity.Context, in InvalidateFileCacheInput) (InvalidateFileCacheResult, error) {
	if err := a.Index.InvalidateEntity(ctx, in.FileID); err != nil {
		return InvalidateFileCacheResult{}, err
	}
	return InvalidateFileCacheResult{}, nil
}
func (InvalidateFileCache) DefaultOptions() activity.Options { return standardOptions() }
