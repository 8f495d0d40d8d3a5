// Package activities implements every activity named by the workflows
// in package workflows: narrow, idempotent units of work wired to
// internal/store and internal/adapters.
package activities

import (
	"context"
	"fmt"
	"time"

	"github.com/saastenant/orchestrator/internal/activity"
	"github.com/saastenant/orchestrator/internal/adapters"
	cperrors "github.com/saastenant/orchestrator/internal/errors"
	"github.com/saastenant/orchestrator/internal/retry"
	"github.com/saastenant/orchestrator/internal/store"
	"github.com/saastenant/orchestrator/internal/tenant"
)

// standardOptions is the default_options shared by activities that only
// touch the persistent store: short exponential backoff, excludes the
// non-transient codes DatabaseRetryPolicy already classifies.
func standardOptions() activity.Options {
	return activity.Options{
		RetryPolicy:         retry.DatabaseRetryPolicy(),
		StartToCloseTimeout: 10 * time.Second,
	}
}

func externalOptions() activity.Options {
	return activity.Options{
		RetryPolicy:         retry.ExternalServiceRetryPolicy(),
		StartToCloseTimeout: 30 * time.Second,
		HeartbeatTimeout:    10 * time.Second,
	}
}

// CreateSchemaInput/Result name the tenant a provisioning run is
// creating durable storage for.
type CreateSchemaInput struct {
	TenantID       string                  `json:"tenant_id"`
	TenantName     string                  `json:"tenant_name"`
	Tier           tenant.SubscriptionTier `json:"tier"`
	IsolationLevel tenant.IsolationLevel   `json:"isolation_level"`
	Settings       tenant.Settings         `json:"settings"`
}
type CreateSchemaResult struct{ TenantID string `json:"tenant_id"` }

// CreateSchema upserts the tenant row with is_active=false; activation
// happens only once the whole pipeline has committed (ActivateTenant).
type CreateSchema struct{ Store *store.Store }

func (CreateSchema) Name() string { return "create_schema" }
func (CreateSchema) ValidateInput(in CreateSchemaInput) error {
	if in.TenantID == "" {
		return cperrors.NewValidation("tenant_id", "tenant_id is required")
	}
	if in.TenantName == "" {
		return cperrors.NewValidation("tenant_name", "tenant_name is required")
	}
	return nil
}
func (CreateSchema) ValidateTenantAccess(tenant.Context) error { return nil }
func (CreateSchema) CheckQuotas(context.Context, tenant.Context, activity.QuotaChecker) error {
	return nil
}
func (a CreateSchema) Execute(ctx activity.Context, in CreateSchemaInput) (CreateSchemaResult, error) {
	tc := tenant.TenantContext{
		TenantID:       in.TenantID,
		TenantName:     in.TenantName,
		SubscriptionTier: in.Tier,
		Features:       map[string]bool{},
		Quotas:         map[string]int64{},
		Settings:       in.Settings,
		IsolationLevel: in.IsolationLevel,
		IsActive:       false,
	}
	if err := a.Store.UpsertTenant(ctx, tc); err != nil {
		return CreateSchemaResult{}, err
	}
	return CreateSchemaResult{TenantID: in.TenantID}, nil
}
func (CreateSchema) DefaultOptions() activity.Options { return standardOptions() }

// ProvisionStorageInput/Result allocate the tenant's object storage
// prefix.
type ProvisionStorageInput struct{ TenantID string `json:"tenant_id"` }
type ProvisionStorageResult struct{ BucketPrefix string `json:"bucket_prefix"` }

type ProvisionStorage struct{ Objects adapters.ObjectStore }

func (ProvisionStorage) Name() string { return "provision_storage" }
func (ProvisionStorage) ValidateInput(in ProvisionStorageInput) error {
	if in.TenantID == "" {
		return cperrors.NewValidation("tenant_id", "tenant_id is required")
	}
	return nil
}
func (ProvisionStorage) ValidateTenantAccess(tenant.Context) error { return nil }
func (ProvisionStorage) CheckQuotas(context.Context, tenant.Context, activity.QuotaChecker) error {
	return nil
}
func (a ProvisionStorage) Execute(ctx activity.Context, in ProvisionStorageInput) (ProvisionStorageResult, error) {
	prefix := in.TenantID + "/"
	if err := a.Objects.Put(ctx, prefix+".keep", []byte{}); err != nil {
		return ProvisionStorageResult{}, err
	}
	return ProvisionStorageResult{BucketPrefix: prefix}, nil
}
func (ProvisionStorage) DefaultOptions() activity.Options { return externalOptions() }

// SetupMonitoringInput/Result register the tenant with the metrics
// label space; there is nothing to compensate since Prometheus labels
// are unbounded-cardinality-safe at tenant scale and self-expire via
// absence of samples.
type SetupMonitoringInput struct{ TenantID string `json:"tenant_id"` }
type SetupMonitoringResult struct{}

type MonitoringRecorder interface {
	RecordWorkflowStart(workflowType, tenantID string)
}

type SetupMonitoring struct{ Metrics MonitoringRecorder }

func (SetupMonitoring) Name() string { return "setup_monitoring" }
func (SetupMonitoring) ValidateInput(in SetupMonitoringInput) error {
	if in.TenantID == "" {
		return cperrors.NewValidation("tenant_id", "tenant_id is required")
	}
	return nil
}
func (SetupMonitoring) ValidateTenantAccess(tenant.Context) error { return nil }
func (SetupMonitoring) CheckQuotas(context.Context, tenant.Context, activity.QuotaChecker) error {
	return nil
}
func (a SetupMonitoring) Execute(ctx activity.Context, in SetupMonitoringInput) (SetupMonitoringResult, error) {
	if a.Metrics != nil {
		a.Metrics.RecordWorkflowStart("tenant_monitoring_baseline", in.TenantID)
	}
	return SetupMonitoringResult{}, nil
}
func (SetupMonitoring) DefaultOptions() activity.Options { return standardOptions() }

// ProvisionNetworkInput/Result set up the tenant's DNS/SSL subdomain.
type ProvisionNetworkInput struct {
	TenantID string `json:"tenant_id"`
	Domain   string `json:"domain"`
}
type ProvisionNetworkResult struct{ Domain string `json:"domain"` }

type ProvisionNetwork struct{ DNSSSL adapters.DNSSSLProvisioner }

func (ProvisionNetwork) Name() string { return "network" }
func (ProvisionNetwork) ValidateInput(in ProvisionNetworkInput) error {
	if in.TenantID == "" || in.Domain == "" {
		return cperrors.NewValidation("domain", "tenant_id and domain are required")
	}
	return nil
}
func (ProvisionNetwork) ValidateTenantAccess(tenant.Context) error { return nil }
func (ProvisionNetwork) CheckQuotas(context.Context, tenant.Context, activity.QuotaChecker) error {
	return nil
}
func (a ProvisionNetwork) Execute(ctx activity.Context, in ProvisionNetworkInput) (ProvisionNetworkResult, error) {
	if err := a.DNSSSL.ProvisionDomain(ctx, in.TenantID, in.Domain); err != nil {
		return ProvisionNetworkResult{}, err
	}
	if err := a.DNSSSL.ProvisionCertificate(ctx, in.TenantID, in.Domain); err != nil {
		return ProvisionNetworkResult{}, err
	}
	return ProvisionNetworkResult{Domain: in.Domain}, nil
}
func (ProvisionNetwork) DefaultOptions() activity.Options { return externalOptions() }

// EnableFeaturesInput/Result persist the tier's default feature flags.
type EnableFeaturesInput struct {
	TenantID string          `json:"tenant_id"`
	Features map[string]bool `json:"features"`
}
type EnableFeaturesResult struct{}

type EnableFeatures struct{ Store *store.Store }

func (EnableFeatures) Name() string { return "features" }
func (EnableFeatures) ValidateInput(in EnableFeaturesInput) error {
	if in.TenantID == "" {
		return cperrors.NewValidation("tenant_id", "tenant_id is required")
	}
	return nil
}
func (EnableFeatures) ValidateTenantAccess(tenant.Context) error { return nil }
func (EnableFeatures) CheckQuotas(context.Context, tenant.Context, activity.QuotaChecker) error {
	return nil
}
func (a EnableFeatures) Execute(ctx activity.Context, in EnableFeaturesInput) (EnableFeaturesResult, error) {
	tc, err := a.Store.LookupTenant(in.TenantID)
	if err != nil {
		return EnableFeaturesResult{}, err
	}
	tc.Features = in.Features
	if err := a.Store.UpsertTenant(ctx, tc); err != nil {
		return EnableFeaturesResult{}, err
	}
	return EnableFeaturesResult{}, nil
}
func (EnableFeatures) DefaultOptions() activity.Options { return standardOptions() }

// SetupTenantBillingInput/Result charge the tier's setup fee.
type SetupTenantBillingInput struct {
	TenantID string                  `json:"tenant_id"`
	Tier     tenant.SubscriptionTier `json:"tier"`
}
type SetupTenantBillingResult struct{ ChargeID string `json:"charge_id"` }

type SetupTenantBilling struct{ Payments adapters.PaymentProcessor }

func (SetupTenantBilling) Name() string { return "setup_tenant_billing" }
func (SetupTenantBilling) ValidateInput(in SetupTenantBillingInput) error {
	if in.TenantID == "" {
		return cperrors.NewValidation("tenant_id", "tenant_id is required")
	}
	return nil
}
func (SetupTenantBilling) ValidateTenantAccess(tenant.Context) error { return nil }
func (SetupTenantBilling) CheckQuotas(context.Context, tenant.Context, activity.QuotaChecker) error {
	return nil
}
func (a SetupTenantBilling) Execute(ctx activity.Context, in SetupTenantBillingInput) (SetupTenantBillingResult, error) {
	fee := tierSetupFee(in.Tier)
	chargeID, err := a.Payments.Charge(ctx, in.TenantID, fee, "USD", fmt.Sprintf("setup fee for tenant %s", in.TenantID))
	if err != nil {
		return SetupTenantBillingResult{}, err
	}
	return SetupTenantBillingResult{ChargeID: chargeID}, nil
}
func (SetupTenantBilling) DefaultOptions() activity.Options { return externalOptions() }

func tierSetupFee(tier tenant.SubscriptionTier) int64 {
	switch tier {
	case tenant.TierEnterprise:
		return 50000
	case tenant.TierProfessional:
		return 10000
	case tenant.TierCustom:
		return 0
	default:
		return 0
	}
}

// ActivateTenantInput/Result flips is_active=true once every prior
// step in the pipeline has committed.
type ActivateTenantInput struct{ TenantID string `json:"tenant_id"` }
type ActivateTenantResult struct{}

type ActivateTenant struct{ Store *store.Store }

func (ActivateTenant) Name() string { return "activate" }
func (ActivateTenant) ValidateInput(in ActivateTenantInput) error {
	if in.TenantID == "" {
		return cperrors.NewValidation("tenant_id", "tenant_id is required")
	}
	return nil
}
func (ActivateTenant) ValidateTenantAccess(tenant.Context) error { return nil }
func (ActivateTenant) CheckQuotas(context.Context, tenant.Context, activity.QuotaChecker) error {
	return nil
}
func (a ActivateTenant) Execute(ctx activity.Context, in ActivateTenantInput) (ActivateTenantResult, error) {
	tc, err := a.Store.LookupTenant(in.TenantID)
	if err != nil {
		return ActivateTenantResult{}, err
	}
	tc.IsActive = true
	if err := a.Store.UpsertTenant(ctx, tc); err != nil {
		return ActivateTenantResult{}, err
	}
	return ActivateTenantResult{}, nil
}
func (ActivateTenant) DefaultOptions() activity.Options { return standardOptions() }

// NotifyProvisionedInput/Result email the tenant admin once activation
// has committed.
type NotifyProvisionedInput struct {
	TenantID   string `json:"tenant_id"`
	AdminEmail string `json:"admin_email"`
}
type NotifyProvisionedResult struct{ MessageID string `json:"message_id"` }

type NotifyProvisioned struct{ Email adapters.EmailSender }

func (NotifyProvisioned) Name() string { return "notify" }
func (NotifyProvisioned) ValidateInput(in NotifyProvisionedInput) error {
	if in.AdminEmail == "" {
		return cperrors.NewValidation("admin_email", "admin_email is required")
	}
	return nil
}
func (NotifyProvisioned) ValidateTenantAccess(tenant.Context) error { return nil }
func (NotifyProvisioned) CheckQuotas(context.Context, tenant.Context, activity.QuotaChecker) error {
	return nil
}
func (a NotifyProvisioned) Execute(ctx activity.Context, in NotifyProvisionedInput) (NotifyProvisionedResult, error) {
	if err := a.Email.Send(ctx, in.AdminEmail, "Your workspace is ready", "Tenant "+in.TenantID+" has been provisioned."); err != nil {
		return NotifyProvisionedResult{}, err
	}
	return NotifyProvisionedResult{MessageID: in.TenantID + "-welcome"}, nil
}
func (NotifyProvisioned) DefaultOptions() activity.Options { return externalOptions() }

// CompensateStepInput/Result records a rollback audit entry for one
// completed pipeline step (spec scenario B: "all successful activities
// emit an audit event with rollback=true").
type CompensateStepInput struct {
	TenantID string `json:"tenant_id"`
	Step     string `json:"step"`
	Reason   string `json:"reason"`
}
type CompensateStepResult struct{}

type CompensateStep struct{ Audit *store.Store }

func (CompensateStep) Name() string { return "compensate_step" }
func (CompensateStep) ValidateInput(in CompensateStepInput) error {
	if in.TenantID == "" || in.Step == "" {
		return cperrors.NewValidation("step", "tenant_id and step are required")
	}
	return nil
}
func (CompensateStep) ValidateTenantAccess(tenant.Context) error { return nil }
func (CompensateStep) CheckQuotas(context.Context, tenant.Context, activity.QuotaChecker) error {
	return nil
}
func (a CompensateStep) Execute(ctx activity.Context, in CompensateStepInput) (CompensateStepResult, error) {
	entry := store.AuditEntry{
		TenantID:   in.TenantID,
		ActorID:    "system:tenant_provisioning",
		Action:     "rollback:" + in.Step,
		WorkflowID: ctx.TenantCtx.CorrelationID,
		Reason:     in.Reason,
		Metadata:   map[string]interface{}{"rollback": true},
	}
	if err := a.Audit.Record(ctx, entry); err != nil {
		return CompensateStepResult{}, err
	}
	return CompensateStepResult{}, nil
}
func (CompensateStep) DefaultOptions() activity.Options { return standardOptions() }

// DeactivateTenantInput/Result marks the tenant inactive after a
// provisioning rollback.
type DeactivateTenantInput struct{ TenantID string `json:"tenant_id"` }
type DeactivateTenantResult struct{}

type DeactivateTenant struct{ Store *store.Store }

func (DeactivateTenant) Name() string { return "deactivate_tenant" }
func (DeactivateTenant) ValidateInput(in DeactivateTenantInput) error {
	if in.TenantID == "" {
		return cperrors.NewValidation("tenant_id", "tenant_id is required")
	}
	return nil
}
func (DeactivateTenant) ValidateTenantAccess(tenant.Context) error { return nil }
func (DeactivateTenant) CheckQuotas(context.Context, tenant.Context, activity.QuotaChecker) error {
	return nil
}
func (a DeactivateTenant) Execute(ctx activity.Context, in DeactivateTenantInput) (DeactivateTenantResult, error) {
	tc, err := a.Store.LookupTenant(in.TenantID)
	if err != nil {
		return DeactivateTenantResult{}, err
	}
	tc.IsActive = false
	if err := a.Store.UpsertTenant(ctx, tc); err != nil {
		return DeactivateTenantResult{}, err
	}
	return DeactivateTenantResult{}, nil
}
func (DeactivateTenant) DefaultOptions() activity.Options { return standardOptions() }
