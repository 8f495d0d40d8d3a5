// Package retry implements the activity/workflow retry policy families
// named in spec §4.B, generalizing the teacher SDK's
// internal/common/backoff retrier into four explicitly named families
// plus the two presets referenced throughout the business workflows.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	cperrors "github.com/saastenant/orchestrator/internal/errors"
)

// Family names one of the four retry policy shapes spec §4.B requires
// the engine to offer and distinguish by name.
type Family string

const (
	FamilyImmediate           Family = "immediate"
	FamilyFixedDelay          Family = "fixed_delay"
	FamilyLinearBackoff       Family = "linear_backoff"
	FamilyExponentialBackoff  Family = "exponential_backoff"
)

// Policy is the retry policy attached to an activity's default_options
// or a workflow's execution parameters.
type Policy struct {
	Family             Family
	InitialInterval    time.Duration
	MaximumInterval    time.Duration
	Multiplier         float64
	MaximumAttempts    int32 // 0 means unlimited, bounded only by context
	Jitter             bool
	NonRetryableCodes  []cperrors.Code
}

// Immediate returns a policy with exactly one attempt.
func Immediate() Policy {
	return Policy{Family: FamilyImmediate, MaximumAttempts: 1}
}

// FixedDelay retries at a constant interval up to maxAttempts times.
func FixedDelay(delay time.Duration, maxAttempts int32) Policy {
	return Policy{Family: FamilyFixedDelay, InitialInterval: delay, MaximumInterval: delay, MaximumAttempts: maxAttempts}
}

// LinearBackoff increases the delay by InitialInterval on every
// attempt (attempt*delay), capped implicitly by maxAttempts.
func LinearBackoff(delay time.Duration, maxAttempts int32) Policy {
	return Policy{Family: FamilyLinearBackoff, InitialInterval: delay, MaximumAttempts: maxAttempts}
}

// ExponentialBackoff multiplies the delay by multiplier on each
// attempt, capped at max.
func ExponentialBackoff(initial, max time.Duration, multiplier float64, maxAttempts int32) Policy {
	return Policy{
		Family:          FamilyExponentialBackoff,
		InitialInterval: initial,
		MaximumInterval: max,
		Multiplier:      multiplier,
		MaximumAttempts: maxAttempts,
		Jitter:          true,
	}
}

// DatabaseRetryPolicy is the preset referenced throughout the business
// activities for persistent-store calls: short, exponential, jittered,
// and bails on non-transient kinds by excluding validation/conflict
// codes from retry.
func DatabaseRetryPolicy() Policy {
	p := ExponentialBackoff(50*time.Millisecond, 2*time.Second, 2.0, 5)
	p.NonRetryableCodes = []cperrors.Code{cperrors.CodeValidation, cperrors.CodeConflict, cperrors.CodeNotFound}
	return p
}

// ExternalServiceRetryPolicy is the preset for email/payment/DNS/
// vulnerability-db adapter calls: longer backoff, honors Retry-After,
// caps retry to 5xx/429-shaped failures (callers should tag those as
// ExternalServiceError/RateLimitExceededError so IsRetryable applies).
func ExternalServiceRetryPolicy() Policy {
	return ExponentialBackoff(500*time.Millisecond, 30*time.Second, 2.0, 6)
}

// NextDelay computes the delay before the given attempt number
// (1-indexed: attempt 1 is the delay before the second try).
func (p Policy) NextDelay(attempt int32) time.Duration {
	switch p.Family {
	case FamilyImmediate:
		return 0
	case FamilyFixedDelay:
		return p.InitialInterval
	case FamilyLinearBackoff:
		return time.Duration(int64(p.InitialInterval) * int64(attempt))
	case FamilyExponentialBackoff:
		mult := p.Multiplier
		if mult <= 0 {
			mult = 2.0
		}
		d := float64(p.InitialInterval) * math.Pow(mult, float64(attempt-1))
		if p.MaximumInterval > 0 && d > float64(p.MaximumInterval) {
			d = float64(p.MaximumInterval)
		}
		if p.Jitter {
			d = d * (0.5 + rand.Float64()*0.5)
		}
		return time.Duration(d)
	default:
		return p.InitialInterval
	}
}

// Exhausted reports whether attempt has exceeded MaximumAttempts.
// attempt is 1-indexed (the attempt about to be made).
func (p Policy) Exhausted(attempt int32) bool {
	return p.MaximumAttempts > 0 && attempt > p.MaximumAttempts
}

// Operation is a unit of work retried by Do.
type Operation func(ctx context.Context, attempt int32) error

// Do executes operation under policy, honoring context cancellation and
// any Retry-After the error reports (spec Testable Property 9: the
// next attempt occurs no earlier than the reported retry_after).
func Do(ctx context.Context, policy Policy, op Operation) error {
	var lastErr error
	for attempt := int32(1); ; attempt++ {
		err := op(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if !cperrors.IsRetryable(err, policy.NonRetryableCodes...) {
			return lastErr
		}
		if policy.Exhausted(attempt + 1) {
			return lastErr
		}

		delay := policy.NextDelay(attempt)
		if after, ok := cperrors.RetryAfter(err); ok {
			afterDur := time.Duration(after * float64(time.Second))
			if afterDur > delay {
				delay = afterDur
			}
		}

		if delay <= 0 {
			continue
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}
}
