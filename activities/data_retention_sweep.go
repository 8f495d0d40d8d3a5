package activities

import (
	"context"

	"github.com/saastenant/orchestrator/internal/activity"
	"github.com/saastenant/orchestrator/internal/adapters"
	cperrors "github.com/saastenant/orchestrator/internal/errors"
	"github.com/saastenant/orchestrator/internal/store"
	"github.com/saastenant/orchestrator/internal/tenant"
)

// ListRetentionPoliciesInput/Result fetch every tenant's configured
// retention policy in one pass; the sweep workflow runs once and
// iterates them all rather than being started per tenant.
type ListRetentionPoliciesInput struct{}
type ListRetentionPoliciesResult struct {
	Policies []store.RetentionPolicy `json:"policies"`
}

type ListRetentionPolicies struct{ Store *store.Store }

func (ListRetentionPolicies) Name() string                        { return "list_retention_policies" }
func (ListRetentionPolicies) ValidateInput(ListRetentionPoliciesInput) error { return nil }
func (ListRetentionPolicies) ValidateTenantAccess(tenant.Context) error      { return nil }
func (ListRetentionPolicies) CheckQuotas(context.Context, tenant.Context, activity.QuotaChecker) error {
	return nil
}
func (a ListRetentionPolicies) Execute(ctx activity.Context, in ListRetentionPoliciesInput) (ListRetentionPoliciesResult, error) {
	policies, err := a.Store.ListRetentionPolicies(ctx)
	if err != nil {
		return ListRetentionPoliciesResult{}, err
	}
	return ListRetentionPoliciesResult{Policies: policies}, nil
}
func (ListRetentionPolicies) DefaultOptions() activity.Options { return standardOptions() }

// ListExpiredResourcesInput/Result resolve which resources of a given
// type have aged past a tenant's retain_days. Only resource_type
// "files" has a concrete query in this build.
type ListExpiredResourcesInput struct {
	TenantID     string `json:"tenant_id"`
	ResourceType string `json:"resource_type"`
	RetainDays   int    `json:"retain_days"`
}
type ListExpiredResourcesResult struct {
	ResourceIDs []string `json:"resource_ids"`
}

type ListExpiredResources struct{ Store *store.Store }

func (ListExpiredResources) Name() string { return "list_expired_resources" }
func (ListExpiredResources) ValidateInput(in ListExpiredResourcesInput) error {
	if in.TenantID == "" || in.ResourceType == "" {
		return cperrors.NewValidation("resource_type", "tenant_id and resource_type are required")
	}
	return nil
}
func (ListExpiredResources) ValidateTenantAccess(tenant.Context) error { return nil }
func (ListExpiredResources) CheckQuotas(context.Context, tenant.Context, activity.QuotaChecker) error {
	return nil
}
func (a ListExpiredResources) Execute(ctx activity.Context, in ListExpiredResourcesInput) (ListExpiredResourcesResult, error) {
	if in.ResourceType != "files" {
		return ListExpiredResourcesResult{}, nil
	}
	ids, err := a.Store.ListExpiredFiles(ctx, in.TenantID, in.RetainDays)
	if err != nil {
		return ListExpiredResourcesResult{}, err
	}
	return ListExpiredResourcesResult{ResourceIDs: ids}, nil
}
func (ListExpiredResources) DefaultOptions() activity.Options { return standardOptions() }

// PurgeResourceInput/Result irreversibly delete one expired resource.
// ApprovedBy must be set; the sweep workflow only calls this activity
// once an operator has signalled approve_hard_delete.
type PurgeResourceInput struct {
	TenantID     string `json:"tenant_id"`
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
	ApprovedBy   string `json:"approved_by"`
}
type PurgeResourceResult struct{}

type PurgeResource struct {
	Store   *store.Store
	Objects adapters.ObjectStore
}

func (PurgeResource) Name() string { return "purge_resource" }
func (PurgeResource) ValidateInput(in PurgeResourceInput) error {
	if in.ResourceID == "" {
		return cperrors.NewValidation("resource_id", "resource_id is required")
	}
	if in.ApprovedBy == "" {
		return cperrors.NewValidation("approved_by", "hard delete requires an approved_by")
	}
	return nil
}
func (PurgeResource) ValidateTenantAccess(tenant.Context) error { return nil }
func (PurgeResource) CheckQuotas(context.Context, tenant.Context, activity.QuotaChecker) error {
	return nil
}
func (a PurgeResource) Execute(ctx activity.Context, in PurgeResourceInput) (PurgeResourceResult, error) {
	if in.ResourceType != "files" {
		return PurgeResourceResult{}, nil
	}
	key, err := a.Store.FileStorageKey(ctx, in.ResourceID)
	if err != nil {
		return PurgeResourceResult{}, err
	}
	if key != "" {
		if err := a.Objects.Delete(ctx, key); err != nil && cperrors.CodeOf(err) != cperrors.CodeNotFound {
			return PurgeResourceResult{}, err
		}
	}
	if err := a.Store.PurgeFile(ctx, in.ResourceID); err != nil {
		return PurgeResourceResult{}, err
	}
	return PurgeResourceResult{}, nil
}
func (PurgeResource) DefaultOptions() activity.Options { return standardOptions() }

// ArchiveResourceInput/Result is the soft-retention path: the resource
// is marked archived and the underlying object is left untouched.
type ArchiveResourceInput struct {
	TenantID     string `json:"tenant_id"`
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
}
type ArchiveResourceResult struct{}

type ArchiveResource struct{ Store *store.Store }

func (ArchiveResource) Name() string { return "archive_resource" }
func (ArchiveResource) ValidateInput(in ArchiveResourceInput) error {
	if in.ResourceID == "" {
		return cperrors.NewValidation("resource_id", "resource_id is required")
	}
	return nil
}
func (ArchiveResource) ValidateTenantAccess(tenant.Context) error { return nil }
func (ArchiveResource) CheckQuotas(context.Context, tenant.Context, activity.QuotaChecker) error {
	return nil
}
func (a ArchiveResource) Execute(ctx activity.Context, in ArchiveResourceInput) (ArchiveResourceResult, error) {
	if in.ResourceType != "files" {
		return ArchiveResourceResult{}, nil
	}
	if err := a.Store.ArchiveFile(ctx, in.ResourceID); err != nil {
		return ArchiveResourceResult{}, err
	}
	return ArchiveResourceResult{}, nil
}
func (ArchiveResource) DefaultOptions() activity.Options { return standardOptions() }
