package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	cperrors "github.com/saastenant/orchestrator/internal/errors"
	"github.com/saastenant/orchestrator/internal/quota"
	"github.com/saastenant/orchestrator/internal/tenant"
)

// isUniqueViolation reports whether err is Postgres error code 23505
// (unique_violation), used to translate a racing duplicate insert into
// a ConflictError instead of a generic DatabaseError.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

type userRow struct {
	UserID       string `db:"user_id"`
	TenantID     string `db:"tenant_id"`
	Email        string `db:"email"`
	PasswordHash string `db:"password_hash"`
	Status       string `db:"status"`
	Roles        []byte `db:"roles"`
	Permissions  []byte `db:"permissions"`
}

// LookupUser satisfies quota.UserLookup.
func (s *Store) LookupUser(ctx context.Context, tenantID, email string) (quota.UserRecord, bool, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, `
		SELECT user_id, tenant_id, email, password_hash, status
		FROM app_user WHERE tenant_id = $1 AND email = $2`, tenantID, email)
	if errors.Is(err, sql.ErrNoRows) {
		return quota.UserRecord{}, false, nil
	}
	if err != nil {
		return quota.UserRecord{}, false, cperrors.NewDatabase("user lookup failed", err)
	}
	return quota.UserRecord{
		UserID:       row.UserID,
		PasswordHash: row.PasswordHash,
		Status:       quota.UserStatus(row.Status),
	}, true, nil
}

// MarkLastLogin satisfies quota.MarkLastLogin.
func (s *Store) MarkLastLogin(ctx context.Context, tenantID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE app_user SET last_login_at = now()
		WHERE tenant_id = $1 AND user_id = $2`, tenantID, userID)
	if err != nil {
		return cperrors.NewDatabase("last_login update failed", err)
	}
	return nil
}

// UserContext assembles the full tenant.UserContext for an
// already-authenticated user, used when building the propagated
// tenant.Context for a workflow start.
func (s *Store) UserContext(ctx context.Context, tenantID, userID string) (tenant.UserContext, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, `
		SELECT user_id, tenant_id, email, roles, permissions
		FROM app_user WHERE tenant_id = $1 AND user_id = $2`, tenantID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return tenant.UserContext{}, cperrors.NewNotFound(fmt.Sprintf("user %s", userID))
	}
	if err != nil {
		return tenant.UserContext{}, cperrors.NewDatabase("user context lookup failed", err)
	}

	uc := tenant.UserContext{UserID: row.UserID, Email: row.Email}
	if len(row.Roles) > 0 {
		if jerr := json.Unmarshal(row.Roles, &uc.Roles); jerr != nil {
			return tenant.UserContext{}, cperrors.NewInternal("", jerr)
		}
	}
	if len(row.Permissions) > 0 {
		if jerr := json.Unmarshal(row.Permissions, &uc.Permissions); jerr != nil {
			return tenant.UserContext{}, cperrors.NewInternal("", jerr)
		}
	}
	return uc, nil
}

// CreateUser inserts a new user row with an already-hashed password
// (callers hash via quota.HashPassword before calling this) and the
// given initial status — "active" for direct creation, "pending_verification"
// for self-service registration awaiting email confirmation.
func (s *Store) CreateUser(ctx context.Context, tenantID, userID, email, passwordHash string, status quota.UserStatus, roles []string) error {
	rolesJSON, err := json.Marshal(roles)
	if err != nil {
		return cperrors.NewValidation("roles", "not serializable")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO app_user (user_id, tenant_id, email, password_hash, status, roles, permissions)
		VALUES ($1, $2, $3, $4, $5, $6, '{}')`,
		userID, tenantID, email, passwordHash, string(status), rolesJSON)
	if err != nil {
		if isUniqueViolation(err) {
			return cperrors.NewConflict("a user with this email already exists in the tenant")
		}
		return cperrors.NewDatabase("user insert failed", err)
	}
	return nil
}
