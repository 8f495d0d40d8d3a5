package quota

import (
	"context"
	"fmt"
	"strconv"

	"github.com/saastenant/orchestrator/internal/cache"
	cperrors "github.com/saastenant/orchestrator/internal/errors"
	"github.com/saastenant/orchestrator/internal/tenant"
)

// warningThreshold is the fraction of limit that triggers a warning
// compliance event (spec §4.D default 80%).
const warningThreshold = 0.8

// CheckResult is the outcome of Enforcer.Check.
type CheckResult struct {
	Allowed                bool
	Current                int64
	Limit                  int64
	Remaining              int64
	WarningThresholdReached bool
}

// ComplianceLogger records a quota compliance event. Implementations
// live in internal/telemetry; this package only declares the
// narrow capability it needs (spec §9 leaf dependency direction).
type ComplianceLogger func(ctx context.Context, severity, tenantID, resourceType string, current, limit int64)

// Enforcer implements the tenant resource quota check-then-enforce
// pattern (spec §4.D), using a cache.Store compare-and-swap so
// concurrent Enforce calls cannot both observe current < limit and
// both succeed past it (Testable Property 7).
type Enforcer struct {
	store   cache.Store
	compliance ComplianceLogger
}

func NewEnforcer(store cache.Store, compliance ComplianceLogger) *Enforcer {
	if compliance == nil {
		compliance = func(context.Context, string, string, string, int64, int64) {}
	}
	return &Enforcer{store: store, compliance: compliance}
}

func quotaKey(tenantID, resourceType string) string {
	return fmt.Sprintf("license_quota:%s:%s", tenantID, resourceType)
}

// Check re-reads the current counter against tc's configured limit for
// resourceType without mutating anything, so callers can present a
// confirmation before calling Enforce.
func (e *Enforcer) Check(ctx context.Context, tc tenant.Context, resourceType string, requested int64) (CheckResult, error) {
	limit, ok := tc.Quota(resourceType)
	if !ok {
		// No configured quota means the resource is unmetered for this
		// tenant's plan.
		return CheckResult{Allowed: true, Limit: -1, Remaining: -1}, nil
	}

	current, err := e.readCounter(ctx, tc.TenantID, resourceType)
	if err != nil {
		return CheckResult{}, err
	}

	remaining := limit - current
	allowed := current+requested <= limit
	warning := float64(current) >= float64(limit)*warningThreshold

	return CheckResult{
		Allowed:                 allowed,
		Current:                 current,
		Limit:                   limit,
		Remaining:                remaining,
		WarningThresholdReached: warning,
	}, nil
}

// Enforce re-evaluates the quota and atomically increments it via
// compare-and-swap, retrying on a lost race (another Enforce changed
// the counter between our read and our swap) until it either commits
// or observes the limit has been reached.
func (e *Enforcer) Enforce(ctx context.Context, tc tenant.Context, resourceType string, amount int64) error {
	limit, ok := tc.Quota(resourceType)
	if !ok {
		return nil
	}

	key := quotaKey(tc.TenantID, resourceType)
	for {
		raw, err := e.store.Get(ctx, key)
		var current int64
		if err == cache.ErrNotFound {
			current = 0
			raw = nil
		} else if err != nil {
			return cperrors.NewDatabase("quota counter read failed", err)
		} else {
			current, _ = strconv.ParseInt(string(raw), 10, 64)
		}

		if current+amount > limit {
			e.compliance(ctx, "error", tc.TenantID, resourceType, current, limit)
			return cperrors.NewQuotaExceeded(resourceType, current, limit, amount)
		}

		next := current + amount
		swapped, serr := e.store.CompareAndSwap(ctx, key, raw, []byte(strconv.FormatInt(next, 10)), 0)
		if serr != nil {
			return cperrors.NewDatabase("quota counter swap failed", serr)
		}
		if !swapped {
			// Lost the race; re-read and retry (Testable Property 7).
			continue
		}

		if float64(current) < float64(limit)*warningThreshold && float64(next) >= float64(limit)*warningThreshold {
			e.compliance(ctx, "warning", tc.TenantID, resourceType, next, limit)
		}
		return nil
	}
}

func (e *Enforcer) readCounter(ctx context.Context, tenantID, resourceType string) (int64, error) {
	raw, err := e.store.Get(ctx, quotaKey(tenantID, resourceType))
	if err == cache.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, cperrors.NewDatabase("quota counter read failed", err)
	}
	n, _ := strconv.ParseInt(string(raw), 10, 64)
	return n, nil
}

// TenantQuotaLookup resolves a tenant's configured limit for
// resourceType. ActivityChecker uses it because
// internal/activity.QuotaChecker only carries a tenantID, not the full
// tenant.Context an Enforce call needs.
type TenantQuotaLookup func(tenantID, resourceType string) (limit int64, ok bool)

// ActivityChecker adapts Enforcer to internal/activity.QuotaChecker,
// the narrow interface activities consult before a metered side
// effect. It performs a read-only check and never increments the
// counter; Enforce is the incrementing path, and no activity or
// workflow calls it.
type ActivityChecker struct {
	enforcer *Enforcer
	lookup   TenantQuotaLookup
}

func NewActivityChecker(enforcer *Enforcer, lookup TenantQuotaLookup) *ActivityChecker {
	return &ActivityChecker{enforcer: enforcer, lookup: lookup}
}

// Check implements internal/activity.QuotaChecker.
func (a *ActivityChecker) Check(ctx context.Context, tenantID, resourceType string, requested int64) error {
	limit, ok := a.lookup(tenantID, resourceType)
	if !ok {
		return nil
	}
	current, err := a.enforcer.readCounter(ctx, tenantID, resourceType)
	if err != nil {
		return err
	}
	if current+requested > limit {
		a.enforcer.compliance(ctx, "error", tenantID, resourceType, current, limit)
		return cperrors.NewQuotaExceeded(resourceType, current, limit, requested)
	}
	return nil
}
