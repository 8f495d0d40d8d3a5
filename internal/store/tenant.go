package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	cperrors "github.com/saastenant/orchestrator/internal/errors"
	"github.com/saastenant/orchestrator/internal/tenant"
)

type tenantRow struct {
	TenantID         string `db:"tenant_id"`
	TenantName       string `db:"tenant_name"`
	SubscriptionTier string `db:"subscription_tier"`
	Features         []byte `db:"features"`
	Quotas           []byte `db:"quotas"`
	Settings         []byte `db:"settings"`
	IsolationLevel   string `db:"isolation_level"`
	IsActive         bool   `db:"is_active"`
}

func (r tenantRow) toTenantContext() (tenant.TenantContext, error) {
	tc := tenant.TenantContext{
		TenantID:         r.TenantID,
		TenantName:       r.TenantName,
		SubscriptionTier: tenant.SubscriptionTier(r.SubscriptionTier),
		IsolationLevel:   tenant.IsolationLevel(r.IsolationLevel),
		IsActive:         r.IsActive,
	}
	if len(r.Features) > 0 {
		if err := json.Unmarshal(r.Features, &tc.Features); err != nil {
			return tenant.TenantContext{}, err
		}
	}
	if len(r.Quotas) > 0 {
		if err := json.Unmarshal(r.Quotas, &tc.Quotas); err != nil {
			return tenant.TenantContext{}, err
		}
	}
	if len(r.Settings) > 0 {
		if err := json.Unmarshal(r.Settings, &tc.Settings); err != nil {
			return tenant.TenantContext{}, err
		}
	}
	return tc, nil
}

// LookupTenant satisfies tenant.DefaultTenantResolver.Lookup.
func (s *Store) LookupTenant(tenantID string) (tenant.TenantContext, error) {
	ctx := context.Background()
	var row tenantRow
	err := s.db.GetContext(ctx, &row, `
		SELECT tenant_id, tenant_name, subscription_tier, features, quotas,
		       settings, isolation_level, is_active
		FROM tenant WHERE tenant_id = $1`, tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return tenant.TenantContext{}, cperrors.NewNotFound(fmt.Sprintf("tenant %s", tenantID))
	}
	if err != nil {
		return tenant.TenantContext{}, cperrors.NewDatabase("tenant lookup failed", err)
	}
	return row.toTenantContext()
}

// DefaultTenantForUser satisfies tenant.DefaultTenantResolver.DefaultTenantForUser.
func (s *Store) DefaultTenantForUser(userID string) (string, error) {
	ctx := context.Background()
	var tenantID string
	err := s.db.GetContext(ctx, &tenantID, `
		SELECT tenant_id FROM app_user WHERE user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", cperrors.NewNotFound(fmt.Sprintf("user %s", userID))
	}
	if err != nil {
		return "", cperrors.NewDatabase("default tenant lookup failed", err)
	}
	return tenantID, nil
}

// Resolver returns a tenant.DefaultTenantResolver bound to this store.
func (s *Store) Resolver() tenant.DefaultTenantResolver {
	return tenant.DefaultTenantResolver{
		Lookup:               s.LookupTenant,
		DefaultTenantForUser: s.DefaultTenantForUser,
	}
}

// UpsertTenant creates or updates a tenant row, used by the tenant
// provisioning workflow's activate step.
func (s *Store) UpsertTenant(ctx context.Context, tc tenant.TenantContext) error {
	features, err := json.Marshal(tc.Features)
	if err != nil {
		return cperrors.NewValidation("features", "not serializable")
	}
	quotas, err := json.Marshal(tc.Quotas)
	if err != nil {
		return cperrors.NewValidation("quotas", "not serializable")
	}
	settings, err := json.Marshal(tc.Settings)
	if err != nil {
		return cperrors.NewValidation("settings", "not serializable")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tenant (tenant_id, tenant_name, subscription_tier, features,
		                     quotas, settings, isolation_level, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tenant_id) DO UPDATE SET
			tenant_name = EXCLUDED.tenant_name,
			subscription_tier = EXCLUDED.subscription_tier,
			features = EXCLUDED.features,
			quotas = EXCLUDED.quotas,
			settings = EXCLUDED.settings,
			isolation_level = EXCLUDED.isolation_level,
			is_active = EXCLUDED.is_active`,
		tc.TenantID, tc.TenantName, string(tc.SubscriptionTier), features,
		quotas, settings, string(tc.IsolationLevel), tc.IsActive)
	if err != nil {
		return cperrors.NewDatabase("tenant upsert failed", err)
	}
	return nil
}

// TenantQuota implements quota.TenantQuotaLookup against the tenant
// table's configured quotas column, for callers that only have a
// tenant id and resource type (e.g. internal/activity.QuotaChecker).
func (s *Store) TenantQuota(tenantID, resourceType string) (int64, bool) {
	tc, err := s.LookupTenant(tenantID)
	if err != nil {
		return 0, false
	}
	return tc.Quota(resourceType)
}
