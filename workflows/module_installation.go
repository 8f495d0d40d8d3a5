package workflows

import (
	"github.com/saastenant/orchestrator/activities"
	"github.com/saastenant/orchestrator/internal/workflow"
)

// ModuleInstallationInput installs one module at one version for a
// tenant.
type ModuleInstallationInput struct {
	TenantID   string `json:"tenant_id"`
	ModuleName string `json:"module_name"`
	Version    string `json:"version"`
}

// ModuleInstallationResult reports the terminal install status.
type ModuleInstallationResult struct {
	Status string `json:"status"` // "installed"|"failed"
}

// ModuleInstallation registers the pending attempt, checks the
// tenant's tier entitles it to the module, installs it, and flips the
// row to installed. Any failure after registration marks the row
// failed rather than leaving it pending.
type ModuleInstallation struct{}

func (ModuleInstallation) Name() string              { return "module_installation" }
func (ModuleInstallation) Version() workflow.Version { return workflow.Version{Major: 1} }

func (ModuleInstallation) SignalHandlers() map[string]workflow.SignalHandler { return nil }
func (ModuleInstallation) QueryHandlers() map[string]workflow.QueryHandler   { return nil }

func (w ModuleInstallation) Execute(ctx workflow.Context, in ModuleInstallationInput) (ModuleInstallationResult, error) {
	if err := getFuture[activities.RegisterModuleInstallResult](ctx, ctx.ExecuteActivity("register_module_install", dbActivityOptions(),
		activities.RegisterModuleInstallInput{TenantID: in.TenantID, ModuleName: in.ModuleName, Version: in.Version})); err != nil {
		return ModuleInstallationResult{}, err
	}

	if err := getFuture[activities.CheckModuleEntitlementResult](ctx, ctx.ExecuteActivity("check_module_entitlement", dbActivityOptions(),
		activities.CheckModuleEntitlementInput{TenantID: in.TenantID, ModuleName: in.ModuleName})); err != nil {
		w.fail(ctx, in.TenantID, in.ModuleName, err)
		return ModuleInstallationResult{Status: "failed"}, &workflow.ActivityFailedError{ActivityName: "check_module_entitlement", Cause: err}
	}

	if err := getFuture[activities.InstallModuleResult](ctx, ctx.ExecuteActivity("install_module", externalActivityOptions(),
		activities.InstallModuleInput{TenantID: in.TenantID, ModuleName: in.ModuleName, Version: in.Version})); err != nil {
		w.fail(ctx, in.TenantID, in.ModuleName, err)
		return ModuleInstallationResult{Status: "failed"}, &workflow.ActivityFailedError{ActivityName: "install_module", Cause: err}
	}

	return ModuleInstallationResult{Status: "installed"}, nil
}

func (ModuleInstallation) fail(ctx workflow.Context, tenantID, moduleName string, cause error) {
	if err := getFuture[activities.FailModuleInstallResult](ctx, ctx.ExecuteActivity("fail_module_install", dbActivityOptions(),
		activities.FailModuleInstallInput{TenantID: tenantID, ModuleName: moduleName})); err != nil {
		logCompensationError(ctx, "fail_module_install", err)
	}
}
