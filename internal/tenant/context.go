// Package tenant implements the tenant/user context propagator
// (component A): the identity and behavioral envelope carried by every
// request, workflow, and activity in the control plane.
package tenant

import (
	"encoding/json"
	"net/http"
	"strings"

	cperrors "github.com/saastenant/orchestrator/internal/errors"
)

// SubscriptionTier is the tenant's commercial plan.
type SubscriptionTier string

const (
	TierFree         SubscriptionTier = "Free"
	TierProfessional SubscriptionTier = "Professional"
	TierEnterprise   SubscriptionTier = "Enterprise"
	TierCustom       SubscriptionTier = "Custom"
)

// IsolationLevel is the degree of physical data separation applied to
// a tenant's rows in the persistent store.
type IsolationLevel string

const (
	IsolationSchema   IsolationLevel = "Schema"
	IsolationDatabase IsolationLevel = "Database"
	IsolationShared   IsolationLevel = "Shared"
)

// Settings carries the tenant's locale and branding preferences.
type Settings struct {
	Language   string `json:"language"`
	Timezone   string `json:"timezone"`
	DateFormat string `json:"date_format"`
	Currency   string `json:"currency"`
	Branding   string `json:"branding,omitempty"`
}

// TenantContext is the identity and behavioral envelope for a tenant.
type TenantContext struct {
	TenantID         string            `json:"tenant_id"`
	TenantName       string            `json:"tenant_name"`
	SubscriptionTier SubscriptionTier  `json:"subscription_tier"`
	Features         map[string]bool   `json:"features"`
	Quotas           map[string]int64  `json:"quotas"`
	Settings         Settings          `json:"settings"`
	IsolationLevel   IsolationLevel    `json:"isolation_level"`
	IsActive         bool              `json:"is_active"`
}

// HasFeature reports whether feature is enabled for the tenant.
func (t TenantContext) HasFeature(feature string) bool { return t.Features[feature] }

// Quota returns the numeric limit configured for resource, and whether
// one was configured at all.
func (t TenantContext) Quota(resource string) (int64, bool) {
	v, ok := t.Quotas[resource]
	return v, ok
}

// DeviceInfo is free-form client device metadata attached to a session.
type DeviceInfo map[string]string

// UserContext is the actor identity bound to a tenant.
type UserContext struct {
	UserID      string          `json:"user_id"`
	Email       string          `json:"email"`
	Roles       []string        `json:"roles"`
	Permissions map[string]bool `json:"permissions"`
	SessionID   string          `json:"session_id,omitempty"`
	DeviceInfo  DeviceInfo      `json:"device_info,omitempty"`
}

// HasPermission checks only the closure-of-roles permission set, never
// role membership directly, per spec §3's invariant.
func (u UserContext) HasPermission(permission string) bool { return u.Permissions[permission] }

// Context is the full propagated envelope: tenant + user +
// correlation id. It rides inside every workflow input and every
// activity input envelope (spec §4.A) and round-trips as JSON bytes
// across the engine's opaque payload boundary.
type Context struct {
	Tenant        TenantContext `json:"tenant"`
	User          UserContext   `json:"user"`
	CorrelationID string        `json:"correlation_id"`
}

// MarshalBinary implements encoding.BinaryMarshaler so a Context can
// ride inside an engine Payload envelope.
func (c Context) MarshalBinary() ([]byte, error) { return json.Marshal(c) }

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (c *Context) UnmarshalBinary(data []byte) error { return json.Unmarshal(data, c) }

// Validate enforces the invariant from spec §4.A: every activity or
// workflow either carries a valid tenant context, or fails closed with
// a TenantValidation error before doing any external work.
func (c Context) Validate() error {
	if c.Tenant.TenantID == "" {
		return cperrors.NewTenantValidation("missing tenant context")
	}
	if !c.Tenant.IsActive {
		return cperrors.NewAuthorization("tenant is not active")
	}
	if c.User.UserID == "" {
		return cperrors.NewAuthentication("missing user context")
	}
	return nil
}

// DefaultTenantResolver resolves the active tenant for an inbound HTTP
// request using the order required by spec §4.A: explicit
// X-Tenant-ID header, then path prefix (/t/{tenant_id}/...), then
// subdomain, then the user's default tenant. Ambiguity (more than one
// source disagreeing) fails closed with TenantValidationError.
type DefaultTenantResolver struct {
	// Lookup resolves a tenant_id to its full TenantContext, e.g. from
	// internal/store. Required.
	Lookup func(tenantID string) (TenantContext, error)
	// DefaultTenantForUser resolves a user's default tenant id when no
	// other source names one. Optional.
	DefaultTenantForUser func(userID string) (string, error)
}

func (r DefaultTenantResolver) Resolve(req *http.Request, user UserContext) (TenantContext, error) {
	candidates := map[string]string{}

	if h := req.Header.Get("X-Tenant-ID"); h != "" {
		candidates["header"] = h
	}
	if prefix := pathTenantPrefix(req.URL.Path); prefix != "" {
		candidates["path"] = prefix
	}
	if sub := subdomainTenant(req.Host); sub != "" {
		candidates["subdomain"] = sub
	}

	resolved := ""
	for _, v := range candidates {
		if resolved == "" {
			resolved = v
			continue
		}
		if resolved != v {
			return TenantContext{}, cperrors.NewTenantValidation("ambiguous tenant resolution: conflicting sources")
		}
	}

	if resolved == "" {
		if r.DefaultTenantForUser == nil {
			return TenantContext{}, cperrors.NewTenantValidation("no tenant context resolvable")
		}
		id, err := r.DefaultTenantForUser(user.UserID)
		if err != nil || id == "" {
			return TenantContext{}, cperrors.NewTenantValidation("no default tenant for user")
		}
		resolved = id
	}

	if r.Lookup == nil {
		return TenantContext{}, cperrors.NewInternal("", nil)
	}
	tc, err := r.Lookup(resolved)
	if err != nil {
		return TenantContext{}, cperrors.NewTenantValidation("tenant not found: " + resolved)
	}
	return tc, nil
}

func pathTenantPrefix(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) >= 2 && parts[0] == "t" {
		return parts[1]
	}
	return ""
}

func subdomainTenant(host string) string {
	host = strings.Split(host, ":")[0]
	parts := strings.Split(host, ".")
	// a.b.example.com -> "a" is the tenant subdomain only when at least
	// two labels precede the registrable domain; conservatively require
	// 4+ labels total (tenant.app.example.com).
	if len(parts) >= 4 {
		return parts[0]
	}
	return ""
}
