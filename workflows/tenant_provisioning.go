// Package workflows implements the durable business workflows named in
// the control plane's domain: tenant provisioning, user onboarding,
// tenant switch, license provisioning, module installation, file
// upload, data retention sweeps, and security scans.
package workflows

import (
	"github.com/saastenant/orchestrator/activities"
	"github.com/saastenant/orchestrator/internal/tenant"
	"github.com/saastenant/orchestrator/internal/workflow"
)

// TenantProvisioningInput starts a new tenant's provisioning pipeline.
type TenantProvisioningInput struct {
	TenantID   string                  `json:"tenant_id"`
	TenantName string                  `json:"tenant_name"`
	Tier       tenant.SubscriptionTier `json:"tier"`
	AdminEmail string                  `json:"admin_email"`
	Domain     string                  `json:"domain"`
	Settings   tenant.Settings         `json:"settings"`
}

// TenantProvisioningResult reports the pipeline's terminal state.
type TenantProvisioningResult struct {
	TenantID  string `json:"tenant_id"`
	ChargeID  string `json:"charge_id"`
	MessageID string `json:"message_id"`
}

var tierFeatures = map[tenant.SubscriptionTier]map[string]bool{
	tenant.TierFree:         {"basic_workflows": true},
	tenant.TierProfessional: {"basic_workflows": true, "advanced_reporting": true, "api_access": true},
	tenant.TierEnterprise:   {"basic_workflows": true, "advanced_reporting": true, "api_access": true, "sso": true, "audit_export": true},
	tenant.TierCustom:       {"basic_workflows": true},
}

// TenantProvisioning runs create_schema, provision_storage,
// setup_monitoring, network, features, setup_tenant_billing, activate,
// notify in sequence. A failure at any step compensates every
// previously-completed step in reverse order, ending with the tenant
// marked inactive (scenario: "tenant provisioning rollback").
type TenantProvisioning struct{}

func (TenantProvisioning) Name() string                                     { return "tenant_provisioning" }
func (TenantProvisioning) Version() workflow.Version                        { return workflow.Version{Major: 1} }
func (TenantProvisioning) SignalHandlers() map[string]workflow.SignalHandler { return nil }
func (TenantProvisioning) QueryHandlers() map[string]workflow.QueryHandler   { return nil }

type provisioningStep struct {
	name string
	run  func(ctx workflow.Context) error
}

func (w TenantProvisioning) Execute(ctx workflow.Context, in TenantProvisioningInput) (TenantProvisioningResult, error) {
	var result TenantProvisioningResult
	result.TenantID = in.TenantID

	features := tierFeatures[in.Tier]
	if features == nil {
		features = tierFeatures[tenant.TierFree]
	}

	completed := make([]string, 0, 8)

	steps := []provisioningStep{
		{"create_schema", func(ctx workflow.Context) error {
			return getFuture[activities.CreateSchemaResult](ctx, ctx.ExecuteActivity("create_schema", dbActivityOptions(),
				activities.CreateSchemaInput{TenantID: in.TenantID, TenantName: in.TenantName, Tier: in.Tier, IsolationLevel: tenant.IsolationSchema, Settings: in.Settings}))
		}},
		{"provision_storage", func(ctx workflow.Context) error {
			return getFuture[activities.ProvisionStorageResult](ctx, ctx.ExecuteActivity("provision_storage", externalActivityOptions(),
				activities.ProvisionStorageInput{TenantID: in.TenantID}))
		}},
		{"setup_monitoring", func(ctx workflow.Context) error {
			return getFuture[activities.SetupMonitoringResult](ctx, ctx.ExecuteActivity("setup_monitoring", dbActivityOptions(),
				activities.SetupMonitoringInput{TenantID: in.TenantID}))
		}},
		{"network", func(ctx workflow.Context) error {
			return getFuture[activities.ProvisionNetworkResult](ctx, ctx.ExecuteActivity("network", externalActivityOptions(),
				activities.ProvisionNetworkInput{TenantID: in.TenantID, Domain: in.Domain}))
		}},
		{"features", func(ctx workflow.Context) error {
			return getFuture[activities.EnableFeaturesResult](ctx, ctx.ExecuteActivity("features", dbActivityOptions(),
				activities.EnableFeaturesInput{TenantID: in.TenantID, Features: features}))
		}},
		{"setup_tenant_billing", func(ctx workflow.Context) error {
			var r activities.SetupTenantBillingResult
			err := ctx.ExecuteActivity("setup_tenant_billing", externalActivityOptions(),
				activities.SetupTenantBillingInput{TenantID: in.TenantID, Tier: in.Tier}).Get(ctx, &r)
			result.ChargeID = r.ChargeID
			return err
		}},
		{"activate", func(ctx workflow.Context) error {
			return getFuture[activities.ActivateTenantResult](ctx, ctx.ExecuteActivity("activate", dbActivityOptions(),
				activities.ActivateTenantInput{TenantID: in.TenantID}))
		}},
		{"notify", func(ctx workflow.Context) error {
			var r activities.NotifyProvisionedResult
			err := ctx.ExecuteActivity("notify", externalActivityOptions(),
				activities.NotifyProvisionedInput{TenantID: in.TenantID, AdminEmail: in.AdminEmail}).Get(ctx, &r)
			result.MessageID = r.MessageID
			return err
		}},
	}

	for _, step := range steps {
		if err := step.run(ctx); err != nil {
			w.compensate(ctx, in.TenantID, completed, err.Error())
			return TenantProvisioningResult{}, &workflow.ActivityFailedError{ActivityName: step.name, Cause: err}
		}
		completed = append(completed, step.name)
	}

	return result, nil
}

// compensate runs compensate_step for every completed step in reverse
// order, then deactivates the tenant. Best-effort: a compensation
// failure is logged via the workflow logger but does not mask the
// original error.
func (w TenantProvisioning) compensate(ctx workflow.Context, tenantID string, completed []string, reason string) {
	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]
		err := getFuture[activities.CompensateStepResult](ctx, ctx.ExecuteActivity("compensate_step", dbActivityOptions(),
			activities.CompensateStepInput{TenantID: tenantID, Step: step, Reason: reason}))
		if err != nil {
			logCompensationError(ctx, step, err)
		}
	}
	if err := getFuture[activities.DeactivateTenantResult](ctx, ctx.ExecuteActivity("deactivate_tenant", dbActivityOptions(),
		activities.DeactivateTenantInput{TenantID: tenantID})); err != nil {
		logCompensationError(ctx, "deactivate_tenant", err)
	}
}
