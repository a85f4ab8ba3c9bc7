package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionAuthIssueAndVerifyRoundTrip(t *testing.T) {
	a := NewSessionAuth([]byte("test-secret"), time.Minute)

	token, expiresAt, err := a.Issue("user-1")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))

	userID, err := a.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestSessionAuthVerifyRejectsForeignSecret(t *testing.T) {
	issuer := NewSessionAuth([]byte("secret-a"), time.Minute)
	verifier := NewSessionAuth([]byte("secret-b"), time.Minute)

	token, _, err := issuer.Issue("user-1")
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.Error(t, err)
}

func TestSessionAuthVerifyRejectsExpiredToken(t *testing.T) {
	a := NewSessionAuth([]byte("test-secret"), -time.Minute)

	token, _, err := a.Issue("user-1")
	require.NoError(t, err)

	_, err = a.Verify(token)
	assert.Error(t, err)
}

func TestSessionMiddlewareRejectsMissingBearer(t *testing.T) {
	a := NewSessionAuth([]byte("test-secret"), time.Minute)
	handlerCalled := false
	h := a.SessionMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/traders/w1", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.False(t, handlerCalled)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionMiddlewareAcceptsValidBearer(t *testing.T) {
	a := NewSessionAuth([]byte("test-secret"), time.Minute)
	token, _, err := a.Issue("user-1")
	require.NoError(t, err)

	var gotUserID string
	h := a.SessionMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID, _ = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/traders/w1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", gotUserID)
}

func TestStaticBearerMiddlewareConstantTimeCompare(t *testing.T) {
	h := StaticBearerMiddleware("operator-secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/bot/emergency", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req2 := httptest.NewRequest(http.MethodPost, "/bot/emergency", nil)
	req2.Header.Set("Authorization", "Bearer operator-secret")
	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusOK, rec2.Code)
}
