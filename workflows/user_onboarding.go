package workflows

import (
	"time"

	"github.com/saastenant/orchestrator/activities"
	"github.com/saastenant/orchestrator/internal/tenant"
	"github.com/saastenant/orchestrator/internal/workflow"
)

// UserOnboardingInput starts either a self-service signup (TenantName
// set, no InviteToken — a fresh tenant is created and the caller
// becomes its first admin) or an invite redemption (InviteToken set —
// the caller joins the inviting tenant with the roles the invite
// grants). Exactly one of the two must resolve a tenant; validate_user_registration
// enforces this before any account is created.
type UserOnboardingInput struct {
	Email            string                  `json:"email"`
	Password         string                  `json:"password"`
	DisplayName      string                  `json:"display_name"`
	TenantName       string                  `json:"tenant_name"`
	SubscriptionTier tenant.SubscriptionTier `json:"subscription_tier"`
	InviteToken      string                  `json:"invite_token"`
	ReferralCode     string                  `json:"referral_code"`
}

// UserOnboardingResult reports the new account and whether the caller
// still needs to confirm their email and/or finish tenant setup.
type UserOnboardingResult struct {
	UserID               string    `json:"user_id"`
	TenantID             string    `json:"tenant_id"`
	VerificationToken    string    `json:"verification_token"`
	VerificationRequired bool      `json:"verification_required"`
	OnboardingRequired   bool      `json:"onboarding_required"`
	CreatedAt            time.Time `json:"created_at"`
}

// UserOnboarding runs validate_user_registration, conditionally
// create_default_tenant, create_user_account, then
// send_verification_email. A self-service signup provisions its
// tenant ahead of the user row (rather than after it, as the
// reference registration flow sketches) because app_user.tenant_id is
// a foreign key here — there is no row to attach the new account to
// until the tenant exists. A failure in create_user_account rolls
// back a freshly created tenant; a failure sending the verification
// email is non-fatal; the caller can request a resend later.
type UserOnboarding struct{}

func (UserOnboarding) Name() string                                     { return "user_onboarding" }
func (UserOnboarding) Version() workflow.Version                        { return workflow.Version{Major: 1} }
func (UserOnboarding) SignalHandlers() map[string]workflow.SignalHandler { return nil }
func (UserOnboarding) QueryHandlers() map[string]workflow.QueryHandler   { return nil }

func (w UserOnboarding) Execute(ctx workflow.Context, in UserOnboardingInput) (UserOnboardingResult, error) {
	var validated activities.ValidateRegistrationResult
	if err := ctx.ExecuteActivity("validate_user_registration", dbActivityOptions(),
		activities.ValidateRegistrationInput{
			Email:       in.Email,
			Password:    in.Password,
			DisplayName: in.DisplayName,
			TenantName:  in.TenantName,
			InviteToken: in.InviteToken,
		}).Get(ctx, &validated); err != nil {
		return UserOnboardingResult{}, &workflow.ActivityFailedError{ActivityName: "validate_user_registration", Cause: err}
	}

	tenantID := validated.InviteTenantID
	roles := validated.InviteRoles
	onboardingRequired := false
	tenantCreated := false

	if tenantID == "" {
		var created activities.CreateDefaultTenantResult
		if err := ctx.ExecuteActivity("create_default_tenant", dbActivityOptions(),
			activities.CreateDefaultTenantInput{TenantName: in.TenantName, Tier: in.SubscriptionTier}).
			Get(ctx, &created); err != nil {
			return UserOnboardingResult{}, &workflow.ActivityFailedError{ActivityName: "create_default_tenant", Cause: err}
		}
		tenantID = created.TenantID
		roles = []string{"admin"}
		onboardingRequired = true
		tenantCreated = true
	}

	var user activities.CreateUserAccountResult
	err := ctx.ExecuteActivity("create_user_account", dbActivityOptions(),
		activities.CreateUserAccountInput{TenantID: tenantID, Email: in.Email, Password: in.Password, Roles: roles}).
		Get(ctx, &user)
	if err != nil {
		if tenantCreated {
			if derr := getFuture[activities.DeactivateTenantResult](ctx, ctx.ExecuteActivity("deactivate_tenant", dbActivityOptions(),
				activities.DeactivateTenantInput{TenantID: tenantID})); derr != nil {
				logCompensationError(ctx, "deactivate_tenant", derr)
			}
		}
		return UserOnboardingResult{}, &workflow.ActivityFailedError{ActivityName: "create_user_account", Cause: err}
	}

	tenantName := in.TenantName
	if tenantName == "" {
		tenantName = "your workspace"
	}

	var sent activities.SendVerificationEmailResult
	sendErr := ctx.ExecuteActivity("send_verification_email", externalActivityOptions(),
		activities.SendVerificationEmailInput{TenantID: tenantID, UserID: user.UserID, Email: in.Email, TenantName: tenantName}).
		Get(ctx, &sent)
	if sendErr != nil {
		ctx.GetLogger().Error("send_verification_email failed, continuing without a delivered token")
	}

	return UserOnboardingResult{
		UserID:               user.UserID,
		TenantID:             tenantID,
		VerificationToken:    sent.VerificationToken,
		VerificationRequired: true,
		OnboardingRequired:   onboardingRequired,
		CreatedAt:            user.CreatedAt,
	}, nil
}
