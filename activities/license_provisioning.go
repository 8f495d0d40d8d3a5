package activities

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/saastenant/orchestrator/internal/activity"
	"github.com/saastenant/orchestrator/internal/adapters"
	cperrors "github.com/saastenant/orchestrator/internal/errors"
	"github.com/saastenant/orchestrator/internal/store"
	"github.com/saastenant/orchestrator/internal/tenant"
)

// tierTermDays is how long a license term runs before it needs renewal.
const tierTermDays = 365

// ChargeForLicenseInput/Result is the optional billing-setup subflow's
// sole activity: a payment only happens when a payment method is
// present on the request.
type ChargeForLicenseInput struct {
	TenantID        string `json:"tenant_id"`
	Tier            string `json:"tier"`
	PaymentMethodID string `json:"payment_method_id"`
}
type ChargeForLicenseResult struct {
	ChargeID string `json:"charge_id"`
}

type ChargeForLicense struct{ Payments adapters.PaymentProcessor }

func (ChargeForLicense) Name() string { return "charge_for_license" }
func (ChargeForLicense) ValidateInput(in ChargeForLicenseInput) error {
	if in.PaymentMethodID == "" {
		return cperrors.NewValidation("payment_method_id", "payment_method_id is required")
	}
	return nil
}
func (ChargeForLicense) ValidateTenantAccess(tenant.Context) error { return nil }
func (ChargeForLicense) CheckQuotas(context.Context, tenant.Context, activity.QuotaChecker) error {
	return nil
}
func (a ChargeForLicense) Execute(ctx activity.Context, in ChargeForLicenseInput) (ChargeForLicenseResult, error) {
	chargeID, err := a.Payments.Charge(ctx, in.TenantID, tierSetupFee(tenant.SubscriptionTier(in.Tier)), "usd", "license:"+in.Tier)
	if err != nil {
		return ChargeForLicenseResult{}, err
	}
	return ChargeForLicenseResult{ChargeID: chargeID}, nil
}
func (ChargeForLicense) DefaultOptions() activity.Options { return externalOptions() }

// IssueLicenseInput/Result persists the license row once provisioning
// (and any optional billing) has settled. ChargeID is empty when no
// payment method was supplied.
type IssueLicenseInput struct {
	TenantID string `json:"tenant_id"`
	Tier     string `json:"tier"`
	ChargeID string `json:"charge_id"`
}
type IssueLicenseResult struct {
	LicenseID string `json:"license_id"`
}

type IssueLicense struct{ Store *store.Store }

func (IssueLicense) Name() string { return "issue_license" }
func (IssueLicense) ValidateInput(in IssueLicenseInput) error {
	if in.TenantID == "" || in.Tier == "" {
		return cperrors.NewValidation("tier", "tenant_id and tier are required")
	}
	return nil
}
func (IssueLicense) ValidateTenantAccess(tenant.Context) error { return nil }
func (IssueLicense) CheckQuotas(context.Context, tenant.Context, activity.QuotaChecker) error {
	return nil
}
func (a IssueLicense) Execute(ctx activity.Context, in IssueLicenseInput) (IssueLicenseResult, error) {
	now := time.Now().UTC()
	licenseID := uuid.NewString()
	if err := a.Store.CreateLicense(ctx, store.License{
		LicenseID: licenseID,
		TenantID:  in.TenantID,
		Tier:      in.Tier,
		Status:    "active",
		ChargeID:  in.ChargeID,
		StartsAt:  now,
		ExpiresAt: now.AddDate(0, 0, tierTermDays),
	}); err != nil {
		return IssueLicenseResult{}, err
	}
	return IssueLicenseResult{LicenseID: licenseID}, nil
}
func (IssueLicense) DefaultOptions() activity.Options { return standardOptions() }

// ExpireLicenseInput/Result flips a lapsed license to expired; scheduled
// by the license-expiry cron scan rather than license_provisioning.
type ExpireLicenseInput struct {
	LicenseID string `json:"license_id"`
}
type ExpireLicenseResult struct{}

type ExpireLicenseActivity struct{ Store *store.Store }

func (ExpireLicenseActivity) Name() string { return "expire_license" }
func (ExpireLicenseActivity) ValidateInput(in ExpireLicenseInput) error {
	if in.LicenseID == "" {
		return cperrors.NewValidation("license_id", "license_id is required")
	}
	return nil
}
func (ExpireLicenseActivity) ValidateTenantAccess(tenant.Context) error { return nil }
func (ExpireLicenseActivity) CheckQuotas(context.Context, tenant.Context, activity.QuotaChecker) error {
	return nil
}
func (a ExpireLicenseActivity) Execute(ctx activity.Context, in ExpireLicenseInput) (ExpireLicenseResult, error) {
	if err := a.Store.ExpireLicense(ctx, in.LicenseID); err != nil {
		return ExpireLicenseResult{}, err
	}
	return ExpireLicenseResult{}, nil
}
func (ExpireLicenseActivity) DefaultOptions() activity.Options { return standardOptions() }

// ListExpiringLicensesInput/Result finds licenses already past their
// expires_at that are still marked active, for the license-expiry
// cron scan to flip.
type ListExpiringLicensesInput struct{}
type ListExpiringLicensesResult struct {
	LicenseIDs []string `json:"license_ids"`
}

type ListExpiringLicenses struct{ Store *store.Store }

func (ListExpiringLicenses) Name() string                                 { return "list_expiring_licenses" }
func (ListExpiringLicenses) ValidateInput(ListExpiringLicensesInput) error { return nil }
func (ListExpiringLicenses) ValidateTenantAccess(tenant.Context) error     { return nil }
func (ListExpiringLicenses) CheckQuotas(context.Context, tenant.Context, activity.QuotaChecker) error {
	return nil
}
func (a ListExpiringLicenses) Execute(ctx activity.Context, in ListExpiringLicensesInput) (ListExpiringLicensesResult, error) {
	licenses, err := a.Store.ListExpiringLicenses(ctx, 0)
	if err != nil {
		return ListExpiringLicensesResult{}, err
	}
	ids := make([]string, len(licenses))
	for i, l := range licenses {
		ids[i] = l.LicenseID
	}
	return ListExpiringLicensesResult{LicenseIDs: ids}, nil
}
func (ListExpiringLicenses) DefaultOptions() activity.Options { return standardOptions() }
