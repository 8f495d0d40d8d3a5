package workflows

import (
	"github.com/saastenant/orchestrator/activities"
	"github.com/saastenant/orchestrator/internal/workflow"
)

// LicenseProvisioningInput starts a new license term for a tenant.
// PaymentMethodID is optional; when empty, billing_setup is never
// spawned and the license is issued with no charge attached.
type LicenseProvisioningInput struct {
	TenantID        string `json:"tenant_id"`
	Tier            string `json:"tier"`
	PaymentMethodID string `json:"payment_method_id"`
}

// LicenseProvisioningResult reports the issued license and, when a
// payment method was supplied, the outcome of the billing subflow.
type LicenseProvisioningResult struct {
	LicenseID      string `json:"license_id"`
	BillingOutcome string `json:"billing_outcome"` // "skipped"|"succeeded"|"failed"
}

// LicenseProvisioning issues a license for a tenant. When a payment
// method is present it spawns billing_setup as a child workflow; the
// child's failure is recorded in BillingOutcome but never fails the
// parent (spec: conditional child workflows).
type LicenseProvisioning struct{}

func (LicenseProvisioning) Name() string              { return "license_provisioning" }
func (LicenseProvisioning) Version() workflow.Version { return workflow.Version{Major: 1} }

func (LicenseProvisioning) SignalHandlers() map[string]workflow.SignalHandler { return nil }
func (LicenseProvisioning) QueryHandlers() map[string]workflow.QueryHandler   { return nil }

func (w LicenseProvisioning) Execute(ctx workflow.Context, in LicenseProvisioningInput) (LicenseProvisioningResult, error) {
	var chargeID, billingOutcome string
	billingOutcome = "skipped"

	if in.PaymentMethodID != "" {
		var sub BillingSetupResult
		err := ctx.ExecuteChildWorkflow("billing_setup", workflow.ChildWorkflowOptions{ParentClosePolicy: "Abandon"},
			BillingSetupInput{TenantID: in.TenantID, Tier: in.Tier, PaymentMethodID: in.PaymentMethodID}).
			Get(ctx, &sub)
		if err != nil {
			billingOutcome = "failed"
			ctx.GetLogger().Error("billing_setup subflow failed, continuing without a charge")
		} else {
			chargeID = sub.ChargeID
			billingOutcome = "succeeded"
		}
	}

	var issued activities.IssueLicenseResult
	if err := ctx.ExecuteActivity("issue_license", dbActivityOptions(),
		activities.IssueLicenseInput{TenantID: in.TenantID, Tier: in.Tier, ChargeID: chargeID}).
		Get(ctx, &issued); err != nil {
		return LicenseProvisioningResult{}, &workflow.ActivityFailedError{ActivityName: "issue_license", Cause: err}
	}

	return LicenseProvisioningResult{LicenseID: issued.LicenseID, BillingOutcome: billingOutcome}, nil
}

// BillingSetupInput/Result is the child workflow license_provisioning
// spawns conditionally; it wraps a single charge activity. The parent
// isolates its failure by recording billing as "failed" and going on to
// issue the license; ParentClosePolicy "Abandon" only lets the child
// keep running if the parent closes first.
type BillingSetupInput struct {
	TenantID        string `json:"tenant_id"`
	Tier            string `json:"tier"`
	PaymentMethodID string `json:"payment_method_id"`
}
type BillingSetupResult struct {
	ChargeID string `json:"charge_id"`
}

type BillingSetup struct{}

func (BillingSetup) Name() string              { return "billing_setup" }
func (BillingSetup) Version() workflow.Version { return workflow.Version{Major: 1} }

func (BillingSetup) SignalHandlers() map[string]workflow.SignalHandler { return nil }
func (BillingSetup) QueryHandlers() map[string]workflow.QueryHandler   { return nil }

func (BillingSetup) Execute(ctx workflow.Context, in BillingSetupInput) (BillingSetupResult, error) {
	var charge activities.ChargeForLicenseResult
	if err := ctx.ExecuteActivity("charge_for_license", externalActivityOptions(),
		activities.ChargeForLicenseInput{TenantID: in.TenantID, Tier: in.Tier, PaymentMethodID: in.PaymentMethodID}).
		Get(ctx, &charge); err != nil {
		return BillingSetupResult{}, &workflow.ActivityFailedError{ActivityName: "charge_for_license", Cause: err}
	}
	return BillingSetupResult{ChargeID: charge.ChargeID}, nil
}
