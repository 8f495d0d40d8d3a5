package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	cperrors "github.com/saastenant/orchestrator/internal/errors"
)

// AuthTokenType names the purpose of an auth_token row. Registration
// issues EmailVerification tokens; an invite is a pre-existing row of
// type Invite created out of band by a tenant administrator.
type AuthTokenType string

const (
	AuthTokenEmailVerification AuthTokenType = "email_verification"
	AuthTokenInvite            AuthTokenType = "invite"
)

// AuthToken is one row of the auth_token table: a hashed, single-use,
// expiring credential bound to a tenant/user pair.
type AuthToken struct {
	TokenID   string
	TenantID  string
	UserID    string
	Type      AuthTokenType
	TokenHash string
	Metadata  map[string]interface{}
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

type authTokenRow struct {
	TokenID   string         `db:"token_id"`
	TenantID  string         `db:"tenant_id"`
	UserID    string         `db:"user_id"`
	TokenType string         `db:"token_type"`
	TokenHash string         `db:"token_hash"`
	Metadata  []byte         `db:"metadata"`
	ExpiresAt time.Time      `db:"expires_at"`
	UsedAt    sql.NullTime   `db:"used_at"`
	CreatedAt time.Time      `db:"created_at"`
}

func (r authTokenRow) toAuthToken() (AuthToken, error) {
	t := AuthToken{
		TokenID:   r.TokenID,
		TenantID:  r.TenantID,
		UserID:    r.UserID,
		Type:      AuthTokenType(r.TokenType),
		TokenHash: r.TokenHash,
		ExpiresAt: r.ExpiresAt,
		CreatedAt: r.CreatedAt,
	}
	if r.UsedAt.Valid {
		t.UsedAt = &r.UsedAt.Time
	}
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &t.Metadata); err != nil {
			return AuthToken{}, err
		}
	}
	return t, nil
}

// InvalidateAuthTokens marks every not-yet-used token of tokenType for
// (tenantID, userID) as used, so a freshly issued token is the only
// live one — the pattern the richer email-verification activity
// requires before minting a replacement.
func (s *Store) InvalidateAuthTokens(ctx context.Context, tenantID, userID string, tokenType AuthTokenType) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE auth_token SET used_at = now()
		WHERE tenant_id = $1 AND user_id = $2 AND token_type = $3 AND used_at IS NULL`,
		tenantID, userID, string(tokenType))
	if err != nil {
		return cperrors.NewDatabase("auth token invalidation failed", err)
	}
	return nil
}

// CreateAuthToken inserts a new token row. Callers supply the SHA-256
// hash of the raw token; the raw value is never persisted.
func (s *Store) CreateAuthToken(ctx context.Context, t AuthToken) error {
	metadata, err := json.Marshal(t.Metadata)
	if err != nil {
		return cperrors.NewValidation("metadata", "not serializable")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO auth_token (token_id, tenant_id, user_id, token_type, token_hash, metadata, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.TokenID, t.TenantID, t.UserID, string(t.Type), t.TokenHash, metadata, t.ExpiresAt)
	if err != nil {
		return cperrors.NewDatabase("auth token insert failed", err)
	}
	return nil
}

// LookupAuthTokenByHash resolves a still-valid (unused, unexpired)
// token of tokenType by its hash — the invite-validation path in the
// registration activity, and the would-be confirm-email path this
// table also anchors.
func (s *Store) LookupAuthTokenByHash(ctx context.Context, tokenHash string, tokenType AuthTokenType) (AuthToken, bool, error) {
	var row authTokenRow
	err := s.db.GetContext(ctx, &row, `
		SELECT token_id, tenant_id, user_id, token_type, token_hash, metadata, expires_at, used_at, created_at
		FROM auth_token
		WHERE token_hash = $1 AND token_type = $2 AND used_at IS NULL AND expires_at > now()`,
		tokenHash, string(tokenType))
	if errors.Is(err, sql.ErrNoRows) {
		return AuthToken{}, false, nil
	}
	if err != nil {
		return AuthToken{}, false, cperrors.NewDatabase("auth token lookup failed", err)
	}
	tok, cerr := row.toAuthToken()
	if cerr != nil {
		return AuthToken{}, false, cperrors.NewInternal("", cerr)
	}
	return tok, true, nil
}

// ConsumeAuthToken marks a single token used, preventing replay.
func (s *Store) ConsumeAuthToken(ctx context.Context, tokenID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE auth_token SET used_at = now() WHERE token_id = $1`, tokenID)
	if err != nil {
		return cperrors.NewDatabase("auth token consume failed", err)
	}
	return nil
}
