package quota

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"

	cperrors "github.com/saastenant/orchestrator/internal/errors"
)

// RateLimitConfig is the per-tenant policy spec §4.D names. Defaults
// are conservative: 10/hour, 50/day, 30-minute lockout, delay enabled.
type RateLimitConfig struct {
	MaxAttemptsPerHour    int64
	MaxAttemptsPerDay     int64
	LockoutDurationMinutes int
	ProgressiveDelay      bool
}

// DefaultRateLimitConfig returns the conservative defaults spec §4.D
// specifies for tenants with no explicit override.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxAttemptsPerHour:     10,
		MaxAttemptsPerDay:      50,
		LockoutDurationMinutes: 30,
		ProgressiveDelay:       true,
	}
}

// ipLimitMultiplier is the factor applied to MaxAttemptsPerHour to
// derive the per-IP hourly limit (spec §4.D "IP limits default to 3 x
// max_attempts_per_hour").
const ipLimitMultiplier = 3

// UserStatus is the account status checked in step 4 of the
// credential-validation algorithm.
type UserStatus string

const (
	StatusActive              UserStatus = "active"
	StatusSuspended            UserStatus = "suspended"
	StatusInactive             UserStatus = "inactive"
	StatusPendingVerification UserStatus = "pending_verification"
)

// UserRecord is the narrow view of a user account this package needs
// to verify credentials. internal/store supplies the concrete lookup;
// this package never imports internal/store directly (spec §9 leaf
// dependency direction).
type UserRecord struct {
	UserID       string
	PasswordHash string
	Status       UserStatus
}

// UserLookup resolves an email to a UserRecord within a tenant.
type UserLookup func(ctx context.Context, tenantID, email string) (UserRecord, bool, error)

// MarkLastLogin records a successful authentication. Implementations
// live in internal/store.
type MarkLastLogin func(ctx context.Context, tenantID, userID string) error

// ValidationResult is the outcome of ValidateCredentials.
type ValidationResult struct {
	Allowed       bool
	Locked        bool
	LockExpiresAt time.Time
	UserID        string
	Err           error
}

// RateLimiter implements the canonical credential-validation algorithm
// (spec §4.D steps 1-6), including the fixed progressive-delay
// schedule and the enumeration-resistant behavior on a lookup miss.
type RateLimiter struct {
	counter *Counter
	clock   func() time.Time
}

func NewRateLimiter(counter *Counter, clock func() time.Time) *RateLimiter {
	if clock == nil {
		clock = time.Now
	}
	return &RateLimiter{counter: counter, clock: clock}
}

// ProgressiveDelay returns the delay applied after a failed attempt,
// per the fixed schedule: 0-2 attempts -> 0s; 3-5 -> 2s; 6-10 -> 5s;
// 11-20 -> 10s; >20 -> 30s.
func ProgressiveDelay(attempts int64) time.Duration {
	switch {
	case attempts <= 2:
		return 0
	case attempts <= 5:
		return 2 * time.Second
	case attempts <= 10:
		return 5 * time.Second
	case attempts <= 20:
		return 10 * time.Second
	default:
		return 30 * time.Second
	}
}

// ValidateCredentials runs the full algorithm. verifier compares
// candidate against hash in constant time (bcrypt.CompareHashAndPassword);
// callers bcrypt-hash passwords at rest via HashPassword.
func (r *RateLimiter) ValidateCredentials(ctx context.Context, cfg RateLimitConfig, tenantID, email, ip, candidatePassword string, lookup UserLookup, markLogin MarkLastLogin) (ValidationResult, error) {
	emailKey := counterKey("email", tenantID, email)
	ipKey := counterKey("ip", tenantID, ip)
	dailyKey := counterKey("daily:email", tenantID, email)
	lockKey := counterKey("lock", tenantID, email)

	// 2. Lock gate, checked ahead of the generic rate-limit gate so a
	// locked account surfaces its specific lock_expires_at rather than a
	// generic RateLimitExceeded once its email counter has also crossed
	// max_attempts_per_hour (the two conditions trip on the same
	// counter, and "locked" is the more actionable of the two).
	if ttl, locked, lerr := r.counter.GetExpiry(ctx, lockKey); lerr == nil && locked {
		return ValidationResult{Locked: true, LockExpiresAt: r.clock().Add(ttl)}, nil
	}

	// 1. Rate-limit gate.
	emailCount, err := r.counter.GetCount(ctx, emailKey)
	if err != nil {
		return ValidationResult{}, cperrors.NewDatabase("rate limit counter read failed", err)
	}
	if emailCount >= cfg.MaxAttemptsPerHour {
		return ValidationResult{}, cperrors.NewRateLimitExceeded("login_email", emailCount, cfg.MaxAttemptsPerHour, remainingWindow(ctx, r, emailKey, time.Hour))
	}
	ipCount, err := r.counter.GetCount(ctx, ipKey)
	if err != nil {
		return ValidationResult{}, cperrors.NewDatabase("rate limit counter read failed", err)
	}
	ipLimit := cfg.MaxAttemptsPerHour * ipLimitMultiplier
	if ipCount >= ipLimit {
		return ValidationResult{}, cperrors.NewRateLimitExceeded("login_ip", ipCount, ipLimit, remainingWindow(ctx, r, ipKey, time.Hour))
	}
	dailyCount, err := r.counter.GetCount(ctx, dailyKey)
	if err != nil {
		return ValidationResult{}, cperrors.NewDatabase("rate limit counter read failed", err)
	}
	if dailyCount >= cfg.MaxAttemptsPerDay {
		return ValidationResult{}, cperrors.NewRateLimitExceeded("login_daily", dailyCount, cfg.MaxAttemptsPerDay, remainingWindow(ctx, r, dailyKey, 24*time.Hour))
	}

	fail := func() error {
		if _, ierr := r.counter.Increment(ctx, emailKey, time.Hour); ierr != nil {
			return ierr
		}
		if _, ierr := r.counter.Increment(ctx, ipKey, time.Hour); ierr != nil {
			return ierr
		}
		newEmailCount, ierr := r.counter.Increment(ctx, dailyKey, 24*time.Hour)
		if ierr != nil {
			return ierr
		}
		_ = newEmailCount
		if cfg.ProgressiveDelay {
			attempts, _ := r.counter.GetCount(ctx, emailKey)
			delay := ProgressiveDelay(attempts)
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
				}
			}
		}
		return nil
	}

	// 3. Lookup user (miss still increments counters to resist
	// enumeration).
	user, found, lerr := lookup(ctx, tenantID, email)
	if lerr != nil {
		return ValidationResult{}, cperrors.NewDatabase("user lookup failed", lerr)
	}
	if !found {
		if ferr := fail(); ferr != nil {
			return ValidationResult{}, cperrors.NewDatabase("rate limit counter update failed", ferr)
		}
		return ValidationResult{Allowed: false, Err: cperrors.NewAuthentication("invalid credentials")}, nil
	}

	// 4. Status check — never reveals existence via timing.
	if user.Status != StatusActive {
		if ferr := fail(); ferr != nil {
			return ValidationResult{}, cperrors.NewDatabase("rate limit counter update failed", ferr)
		}
		return ValidationResult{Allowed: false, Err: cperrors.NewValidation("status", "account is "+string(user.Status))}, nil
	}

	// 5. Password verify — constant-time.
	match := VerifyPassword(user.PasswordHash, candidatePassword)
	if !match {
		if ferr := fail(); ferr != nil {
			return ValidationResult{}, cperrors.NewDatabase("rate limit counter update failed", ferr)
		}
		emailAttempts, _ := r.counter.GetCount(ctx, emailKey)
		if emailAttempts >= cfg.MaxAttemptsPerHour {
			lockTTL := time.Duration(cfg.LockoutDurationMinutes) * time.Minute
			if serr := r.counter.SetWithExpiry(ctx, lockKey, []byte("1"), lockTTL); serr != nil {
				return ValidationResult{}, cperrors.NewDatabase("account lock write failed", serr)
			}
			// The lock itself is now the operative gate for this account;
			// clear the hourly counters so they don't outlive
			// LockoutDurationMinutes and wrongly reject a correct password
			// presented after the lock has expired (spec scenario A).
			if cerr := r.counter.Clear(ctx, emailKey); cerr != nil {
				return ValidationResult{}, cperrors.NewDatabase("counter clear failed", cerr)
			}
			if cerr := r.counter.Clear(ctx, ipKey); cerr != nil {
				return ValidationResult{}, cperrors.NewDatabase("counter clear failed", cerr)
			}
			return ValidationResult{Locked: true, LockExpiresAt: r.clock().Add(lockTTL)}, nil
		}
		return ValidationResult{Allowed: false, Err: cperrors.NewAuthentication("invalid credentials")}, nil
	}

	// 6. Success — clear per-(email,ip) counters, preserve daily,
	// update last_login.
	if cerr := r.counter.Clear(ctx, emailKey); cerr != nil {
		return ValidationResult{}, cperrors.NewDatabase("counter clear failed", cerr)
	}
	if cerr := r.counter.Clear(ctx, ipKey); cerr != nil {
		return ValidationResult{}, cperrors.NewDatabase("counter clear failed", cerr)
	}
	if markLogin != nil {
		if merr := markLogin(ctx, tenantID, user.UserID); merr != nil {
			return ValidationResult{}, cperrors.NewDatabase("last_login update failed", merr)
		}
	}

	return ValidationResult{Allowed: true, UserID: user.UserID}, nil
}

func remainingWindow(ctx context.Context, r *RateLimiter, key string, window time.Duration) float64 {
	ttl, ok, err := r.counter.GetExpiry(ctx, key)
	if err != nil || !ok {
		return window.Seconds()
	}
	return ttl.Seconds()
}

// HashPassword bcrypt-hashes a plaintext password for storage.
func HashPassword(plaintext string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword compares a plaintext candidate against a bcrypt hash
// in constant time (spec §4.D step 5).
func VerifyPassword(hash, candidate string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(candidate)) == nil
}
