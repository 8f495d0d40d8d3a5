package activities

import (
	"context"

	"github.com/saastenant/orchestrator/internal/activity"
	cperrors "github.com/saastenant/orchestrator/internal/errors"
	"github.com/saastenant/orchestrator/internal/store"
	"github.com/saastenant/orchestrator/internal/tenant"
)

// moduleRequiredFeature maps a module name to the tenant feature flag
// gating it. Modules absent from this map require no feature.
var moduleRequiredFeature = map[string]string{
	"advanced_reporting": "advanced_reporting",
	"audit_export":       "audit_export",
	"sso":                "sso",
}

// RegisterModuleInstallInput/Result records the pending install
// attempt before any provisioning side effect, mirroring the pending
// row create_metadata writes for file uploads.
type RegisterModuleInstallInput struct {
	TenantID   string `json:"tenant_id"`
	ModuleName string `json:"module_name"`
	Version    string `json:"version"`
}
type RegisterModuleInstallResult struct{}

type RegisterModuleInstall struct{ Store *store.Store }

func (RegisterModuleInstall) Name() string { return "register_module_install" }
func (RegisterModuleInstall) ValidateInput(in RegisterModuleInstallInput) error {
	if in.ModuleName == "" || in.Version == "" {
		return cperrors.NewValidation("module_name", "module_name and version are required")
	}
	return nil
}
func (RegisterModuleInstall) ValidateTenantAccess(tenant.Context) error { return nil }
func (RegisterModuleInstall) CheckQuotas(context.Context, tenant.Context, activity.QuotaChecker) error {
	return nil
}
func (a RegisterModuleInstall) Execute(ctx activity.Context, in RegisterModuleInstallInput) (RegisterModuleInstallResult, error) {
	if err := a.Store.UpsertModuleInstallation(ctx, in.TenantID, in.ModuleName, in.Version, "pending"); err != nil {
		return RegisterModuleInstallResult{}, err
	}
	return RegisterModuleInstallResult{}, nil
}
func (RegisterModuleInstall) DefaultOptions() activity.Options { return standardOptions() }

// CheckModuleEntitlementInput/Result rejects the install before any
// provisioning happens when the tenant's tier doesn't carry the
// feature flag a module requires.
type CheckModuleEntitlementInput struct {
	TenantID   string `json:"tenant_id"`
	ModuleName string `json:"module_name"`
}
type CheckModuleEntitlementResult struct{}

type CheckModuleEntitlement struct{}

func (CheckModuleEntitlement) Name() string { return "check_module_entitlement" }
func (CheckModuleEntitlement) ValidateInput(in CheckModuleEntitlementInput) error {
	if in.ModuleName == "" {
		return cperrors.NewValidation("module_name", "module_name is required")
	}
	return nil
}
func (CheckModuleEntitlement) ValidateTenantAccess(tenant.Context) error { return nil }
func (CheckModuleEntitlement) CheckQuotas(context.Context, tenant.Context, activity.QuotaChecker) error {
	return nil
}
func (CheckModuleEntitlement) Execute(ctx activity.Context, in CheckModuleEntitlementInput) (CheckModuleEntitlementResult, error) {
	tc := ctx.TenantCtx
	if required, ok := moduleRequiredFeature[in.ModuleName]; ok && !tc.Tenant.HasFeature(required) {
		return CheckModuleEntitlementResult{}, cperrors.NewAuthorization("tenant tier does not include module " + in.ModuleName)
	}
	return CheckModuleEntitlementResult{}, nil
}
func (CheckModuleEntitlement) DefaultOptions() activity.Options { return standardOptions() }

// InstallModuleInput/Result performs the module's own setup. This
// build has no real per-module provisioning backend, so it is a no-op
// that exists as the seam a real installer would occupy.
type InstallModuleInput struct {
	TenantID   string `json:"tenant_id"`
	ModuleName string `json:"module_name"`
	Version    string `json:"version"`
}
type InstallModuleResult struct{}

type InstallModule struct{ Store *store.Store }

func (InstallModule) Name() string { return "install_module" }
func (InstallModule) ValidateInput(in InstallModuleInput) error {
	if in.ModuleName == "" {
		return cperrors.NewValidation("module_name", "module_name is required")
	}
	return nil
}
func (InstallModule) ValidateTenantAccess(tenant.Context) error { return nil }
func (InstallModule) CheckQuotas(context.Context, tenant.Context, activity.QuotaChecker) error {
	return nil
}
func (a InstallModule) Execute(ctx activity.Context, in InstallModuleInput) (InstallModuleResult, error) {
	if err := a.Store.MarkModuleInstalled(ctx, in.TenantID, in.ModuleName); err != nil {
		return InstallModuleResult{}, err
	}
	return InstallModuleResult{}, nil
}
func (InstallModule) DefaultOptions() activity.Options { return standardOptions() }

// FailModuleInstallInput/Result marks an install attempt failed, run
// when a later step in module_installation errors out.
type FailModuleInstallInput struct {
	TenantID   string `json:"tenant_id"`
	ModuleName string `json:"module_name"`
}
type FailModuleInstallResult struct{}

type FailModuleInstall struct{ Store *store.Store }

func (FailModuleInstall) Name() string { return "fail_module_install" }
func (FailModuleInstall) ValidateInput(in FailModuleInstallInput) error {
	if in.ModuleName == "" {
		return cperrors.NewValidation("module_name", "module_name is required")
	}
	return nil
}
func (FailModuleInstall) ValidateTenantAccess(tenant.Context) error { return nil }
func (FailModuleInstall) CheckQuotas(context.Context, tenant.Context, activity.QuotaChecker) error {
	return nil
}
func (a FailModuleInstall) Execute(ctx activity.Context, in FailModuleInstallInput) (FailModuleInstallResult, error) {
	if err := a.Store.MarkModuleFailed(ctx, in.TenantID, in.ModuleName); err != nil {
		return FailModuleInstallResult{}, err
	}
	return FailModuleInstallResult{}, nil
}
func (FailModuleInstall) DefaultOptions() activity.Options { return standardOptions() }
