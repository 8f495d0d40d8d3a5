package activities

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/saastenant/orchestrator/internal/activity"
	"github.com/saastenant/orchestrator/internal/adapters"
	cperrors "github.com/saastenant/orchestrator/internal/errors"
	"github.com/saastenant/orchestrator/internal/quota"
	"github.com/saastenant/orchestrator/internal/store"
	"github.com/saastenant/orchestrator/internal/tenant"
)

// verificationTokenTTL is how long a freshly minted email-verification
// token stays redeemable.
const verificationTokenTTL = 24 * time.Hour

// defaultTenantFeatures are the flags a self-service signup's new
// tenant starts with; richer tiers are granted later through a
// license purchase, not at signup.
var defaultTenantFeatures = map[string]bool{"basic_workflows": true}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func isValidEmail(email string) bool {
	at := -1
	for i, r := range email {
		if r == '@' {
			at = i
			break
		}
	}
	if at <= 0 || at == len(email)-1 {
		return false
	}
	domain := email[at+1:]
	return len(email) > 5 && containsRune(domain, '.')
}

func containsRune(s string, r rune) bool {
	for _, c := range s {
		if c == r {
			return true
		}
	}
	return false
}

func isStrongPassword(password string) bool {
	if len(password) < 8 {
		return false
	}
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			hasSymbol = true
		}
	}
	return hasUpper && hasLower && hasDigit && hasSymbol
}

// ValidateRegistrationInput/Result checks a self-service signup or
// invite-redemption request before any account is created.
// InviteToken, when present, must resolve to a live (unused,
// unexpired) invite row; its tenant and roles then govern the rest of
// the onboarding run instead of TenantName/default role assignment.
type ValidateRegistrationInput struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	TenantName  string `json:"tenant_name"`
	InviteToken string `json:"invite_token"`
}
type ValidateRegistrationResult struct {
	InviteTenantID string   `json:"invite_tenant_id"`
	InviteRoles    []string `json:"invite_roles"`
}

type ValidateRegistration struct{ Store *store.Store }

func (ValidateRegistration) Name() string { return "validate_user_registration" }
func (ValidateRegistration) ValidateInput(in ValidateRegistrationInput) error {
	if !isValidEmail(in.Email) {
		return cperrors.NewValidation("email", "email address format is invalid")
	}
	if !isStrongPassword(in.Password) {
		return cperrors.NewValidation("password", "password must be at least 8 characters and include an uppercase letter, a lowercase letter, a digit, and a symbol")
	}
	if in.InviteToken == "" && in.TenantName == "" {
		return cperrors.NewValidation("tenant_name", "tenant_name is required when no invite_token is supplied")
	}
	return nil
}
func (ValidateRegistration) ValidateTenantAccess(tenant.Context) error { return nil }
func (ValidateRegistration) CheckQuotas(context.Context, tenant.Context, activity.QuotaChecker) error {
	return nil
}
func (a ValidateRegistration) Execute(ctx activity.Context, in ValidateRegistrationInput) (ValidateRegistrationResult, error) {
	if in.InviteToken == "" {
		return ValidateRegistrationResult{}, nil
	}

	tok, found, err := a.Store.LookupAuthTokenByHash(ctx, hashToken(in.InviteToken), store.AuthTokenInvite)
	if err != nil {
		return ValidateRegistrationResult{}, err
	}
	if !found {
		return ValidateRegistrationResult{}, cperrors.NewValidation("invite_token", "invite token is invalid, already used, or expired")
	}

	roles := []string{"member"}
	if raw, ok := tok.Metadata["roles"].([]interface{}); ok && len(raw) > 0 {
		roles = roles[:0]
		for _, r := range raw {
			if s, ok := r.(string); ok {
				roles = append(roles, s)
			}
		}
	}

	if err := a.Store.ConsumeAuthToken(ctx, tok.TokenID); err != nil {
		return ValidateRegistrationResult{}, err
	}

	return ValidateRegistrationResult{InviteTenantID: tok.TenantID, InviteRoles: roles}, nil
}
func (ValidateRegistration) DefaultOptions() activity.Options { return standardOptions() }

// CreateDefaultTenantInput/Result provisions the lightweight tenant a
// self-service signup with no invite creates for itself. Unlike
// tenant_provisioning's eight-step pipeline, a signup tenant is
// activated immediately — there is no storage/network/billing setup
// to sequence, only the row that every other onboarding step's
// foreign key depends on.
type CreateDefaultTenantInput struct {
	TenantName string                  `json:"tenant_name"`
	Tier       tenant.SubscriptionTier `json:"tier"`
}
type CreateDefaultTenantResult struct {
	TenantID  string    `json:"tenant_id"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateDefaultTenant struct{ Store *store.Store }

func (CreateDefaultTenant) Name() string { return "create_default_tenant" }
func (CreateDefaultTenant) ValidateInput(in CreateDefaultTenantInput) error {
	if in.TenantName == "" {
		return cperrors.NewValidation("tenant_name", "tenant_name is required")
	}
	return nil
}
func (CreateDefaultTenant) ValidateTenantAccess(tenant.Context) error { return nil }
func (CreateDefaultTenant) CheckQuotas(context.Context, tenant.Context, activity.QuotaChecker) error {
	return nil
}
func (a CreateDefaultTenant) Execute(ctx activity.Context, in CreateDefaultTenantInput) (CreateDefaultTenantResult, error) {
	tier := in.Tier
	if tier == "" {
		tier = tenant.TierFree
	}
	tenantID := uuid.NewString()
	now := time.Now().UTC()
	tc := tenant.TenantContext{
		TenantID:         tenantID,
		TenantName:       in.TenantName,
		SubscriptionTier: tier,
		Features:         defaultTenantFeatures,
		Quotas:           map[string]int64{},
		Settings:         tenant.Settings{Language: "en", Timezone: "UTC", DateFormat: "YYYY-MM-DD", Currency: "USD"},
		IsolationLevel:   tenant.IsolationShared,
		IsActive:         true,
	}
	if err := a.Store.UpsertTenant(ctx, tc); err != nil {
		return CreateDefaultTenantResult{}, err
	}
	return CreateDefaultTenantResult{TenantID: tenantID, CreatedAt: now}, nil
}
func (CreateDefaultTenant) DefaultOptions() activity.Options { return standardOptions() }

// CreateUserAccountInput/Result persists the new user row. Password is
// plaintext in transit (TLS-terminated ahead of the workflow boundary)
// and bcrypt-hashed here, inside the activity, rather than in the
// workflow — hashing draws a random salt, and workflow code must stay
// free of ambient randomness to replay deterministically.
type CreateUserAccountInput struct {
	TenantID string           `json:"tenant_id"`
	Email    string           `json:"email"`
	Password string           `json:"password"`
	Roles    []string         `json:"roles"`
	Status   quota.UserStatus `json:"status"`
}
type CreateUserAccountResult struct {
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateUserAccount struct {
	Store  *store.Store
	Quotas activity.QuotaChecker
}

func (CreateUserAccount) Name() string { return "create_user_account" }
func (CreateUserAccount) ValidateInput(in CreateUserAccountInput) error {
	if in.TenantID == "" || in.Email == "" || in.Password == "" {
		return cperrors.NewValidation("email", "tenant_id, email, and password are required")
	}
	return nil
}
func (CreateUserAccount) ValidateTenantAccess(tenant.Context) error { return nil }
func (a CreateUserAccount) CheckQuotas(ctx context.Context, tc tenant.Context, quotas activity.QuotaChecker) error {
	if quotas == nil {
		return nil
	}
	return quotas.Check(ctx, tc.Tenant.TenantID, "users", 1)
}
func (a CreateUserAccount) Execute(ctx activity.Context, in CreateUserAccountInput) (CreateUserAccountResult, error) {
	hash, err := quota.HashPassword(in.Password)
	if err != nil {
		return CreateUserAccountResult{}, cperrors.NewInternal("", err)
	}
	status := in.Status
	if status == "" {
		status = quota.StatusPendingVerification
	}
	userID := uuid.NewString()
	now := time.Now().UTC()
	if err := a.Store.CreateUser(ctx, in.TenantID, userID, in.Email, hash, status, in.Roles); err != nil {
		return CreateUserAccountResult{}, err
	}
	return CreateUserAccountResult{UserID: userID, CreatedAt: now}, nil
}
func (CreateUserAccount) DefaultOptions() activity.Options { return standardOptions() }

// SendVerificationEmailInput/Result mints a single-use, 24-hour
// verification token (invalidating any still-live one for the same
// user) and emails it. Grounded on the production email_verification
// activity rather than the stub version inlined in the registration
// workflow file, which never touched a token repository at all.
type SendVerificationEmailInput struct {
	TenantID   string `json:"tenant_id"`
	UserID     string `json:"user_id"`
	Email      string `json:"email"`
	TenantName string `json:"tenant_name"`
}
type SendVerificationEmailResult struct {
	VerificationToken string    `json:"verification_token"`
	EmailSent         bool      `json:"email_sent"`
	MessageID         string    `json:"message_id"`
	SentAt            time.Time `json:"sent_at"`
}

type SendVerificationEmail struct {
	Store *store.Store
	Email adapters.EmailSender
}

func (SendVerificationEmail) Name() string { return "send_verification_email" }
func (SendVerificationEmail) ValidateInput(in SendVerificationEmailInput) error {
	if in.UserID == "" || in.Email == "" {
		return cperrors.NewValidation("email", "user_id and email are required")
	}
	return nil
}
func (SendVerificationEmail) ValidateTenantAccess(tenant.Context) error { return nil }
func (SendVerificationEmail) CheckQuotas(context.Context, tenant.Context, activity.QuotaChecker) error {
	return nil
}
func (a SendVerificationEmail) Execute(ctx activity.Context, in SendVerificationEmailInput) (SendVerificationEmailResult, error) {
	if err := a.Store.InvalidateAuthTokens(ctx, in.TenantID, in.UserID, store.AuthTokenEmailVerification); err != nil {
		return SendVerificationEmailResult{}, err
	}

	token := uuid.NewString()
	now := time.Now().UTC()
	if err := a.Store.CreateAuthToken(ctx, store.AuthToken{
		TokenID:   uuid.NewString(),
		TenantID:  in.TenantID,
		UserID:    in.UserID,
		Type:      store.AuthTokenEmailVerification,
		TokenHash: hashToken(token),
		ExpiresAt: now.Add(verificationTokenTTL),
	}); err != nil {
		return SendVerificationEmailResult{}, err
	}

	subject := "Verify your " + in.TenantName + " account"
	body := "Use this code to verify your email: " + token
	if err := a.Email.Send(ctx, in.Email, subject, body); err != nil {
		return SendVerificationEmailResult{}, err
	}

	return SendVerificationEmailResult{
		VerificationToken: token,
		EmailSent:         true,
		MessageID:         in.UserID + "-verify",
		SentAt:            now,
	}, nil
}
func (SendVerificationEmail) DefaultOptions() activity.Options { return externalOptions() }
