package tenant

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	cperrors "github.com/saastenant/orchestrator/internal/errors"
)

// claims is the shape of the access token issued at login. Permissions
// are pre-computed as the closure over roles plus direct grants (spec
// §3 invariant) by the credential-validation workflow; the propagator
// never recomputes the closure itself.
type claims struct {
	jwt.RegisteredClaims
	UserID      string          `json:"uid"`
	Email       string          `json:"email"`
	Roles       []string        `json:"roles"`
	Permissions map[string]bool `json:"permissions"`
	SessionID   string          `json:"sid"`
}

// Authenticator validates bearer tokens at the HTTP boundary and
// produces a UserContext. A missing or invalid token fails with
// AuthenticationError, never AuthorizationError (spec §4.A).
type Authenticator struct {
	Secret []byte
}

func (a Authenticator) Authenticate(req *http.Request) (UserContext, error) {
	header := req.Header.Get("Authorization")
	if header == "" {
		return UserContext{}, cperrors.NewAuthentication("missing Authorization header")
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if token == header {
		return UserContext{}, cperrors.NewAuthentication("Authorization header must be a bearer token")
	}

	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, cperrors.NewAuthentication("unexpected signing method")
		}
		return a.Secret, nil
	})
	if err != nil || !parsed.Valid {
		return UserContext{}, cperrors.NewAuthentication("invalid or expired token")
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || c.UserID == "" {
		return UserContext{}, cperrors.NewAuthentication("token missing subject")
	}

	return UserContext{
		UserID:      c.UserID,
		Email:       c.Email,
		Roles:       c.Roles,
		Permissions: c.Permissions,
		SessionID:   c.SessionID,
	}, nil
}
