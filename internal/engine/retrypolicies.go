package engine

import "github.com/saastenant/orchestrator/internal/retry"

// namedRetryPolicies resolves workflow.ActivityOptions.RetryPolicyName to
// a concrete retry.Policy. The four family names are always available;
// "database" and "external_service" are the presets the business
// activities reference by name so call sites never hardcode backoff
// constants (spec §4.B).
func namedRetryPolicies() map[string]retry.Policy {
	return map[string]retry.Policy{
		"immediate":          retry.Immediate(),
		"fixed_delay":        retry.FixedDelay(defaultFixedDelay, defaultMaxAttempts),
		"linear_backoff":     retry.LinearBackoff(defaultFixedDelay, defaultMaxAttempts),
		"exponential_backoff": retry.ExponentialBackoff(defaultInitialInterval, defaultMaxInterval, 2.0, defaultMaxAttempts),
		"database":           retry.DatabaseRetryPolicy(),
		"external_service":   retry.ExternalServiceRetryPolicy(),
	}
}

const (
	defaultFixedDelay      = defaultInitialInterval
	defaultInitialInterval = 200_000_000 // 200ms, expressed in ns to avoid importing time twice here
	defaultMaxInterval     = 10_000_000_000
	defaultMaxAttempts     = int32(3)
)

// retryPolicy resolves name to a policy, falling back to the
// exponential backoff family when name is empty or unknown so a
// business workflow that forgets to set RetryPolicyName still gets a
// sane default rather than a single unretried attempt.
func (e *Engine) retryPolicy(name string) retry.Policy {
	if name == "" {
		return e.retryPolicies["exponential_backoff"]
	}
	if p, ok := e.retryPolicies[name]; ok {
		return p
	}
	return e.retryPolicies["exponential_backoff"]
}
