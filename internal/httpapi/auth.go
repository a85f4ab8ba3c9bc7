package httpapi

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sawpanic/vaultrun/internal/apperrors"
)

// claims is the JWT HS256 session token's payload.
type claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// SessionAuth issues and verifies HS256 session tokens for the
// Execution-bot gateway's /auth/authenticate flow.
type SessionAuth struct {
	secret []byte
	ttl    time.Duration
}

// NewSessionAuth constructs a SessionAuth with the given signing secret
// and token lifetime.
func NewSessionAuth(secret []byte, ttl time.Duration) *SessionAuth {
	return &SessionAuth{secret: secret, ttl: ttl}
}

// Issue mints a session token for userID.
func (a *SessionAuth) Issue(userID string) (string, time.Time, error) {
	expiresAt := time.Now().Add(a.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	})
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("httpapi: sign session token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify parses and validates a session token, returning its user ID.
func (a *SessionAuth) Verify(tokenString string) (string, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: unexpected signing method", apperrors.ErrAuth)
		}
		return a.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: invalid session token", apperrors.ErrAuth)
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || c.UserID == "" {
		return "", fmt.Errorf("%w: missing subject claim", apperrors.ErrAuth)
	}
	return c.UserID, nil
}

type contextKey string

const userIDContextKey contextKey = "user_id"

// SessionMiddleware validates the bearer session JWT on every request and
// stores the authenticated user ID in the request context.
func (a *SessionAuth) SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, r, http.StatusUnauthorized, "missing_bearer_token", "Authorization: Bearer <token> is required")
			return
		}
		userID, err := a.Verify(token)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "invalid_token", err.Error())
			return
		}
		ctx := context.WithValue(r.Context(), userIDContextKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserIDFromContext returns the authenticated user ID set by
// SessionMiddleware.
func UserIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userIDContextKey).(string)
	return v, ok
}

// StaticBearerMiddleware guards the emergency-halt endpoint with a single
// shared operator token, compared in constant time to avoid a timing
// side-channel on the secret.
func StaticBearerMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
				writeError(w, r, http.StatusUnauthorized, "invalid_bearer_token", "a valid operator bearer token is required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimPrefix(h, prefix)
}
