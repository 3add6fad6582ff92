package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/lending-engine/config"
	"golang.org/x/crypto/bcrypt"
)

func newTestAuth(t *testing.T) *Authenticator {
	a, err := New(config.AuthConfig{
		Username:  "admin",
		Password:  "s3cret",
		JWTSecret: "test-secret",
		TokenTTL:  time.Hour,
	})
	require.NoError(t, err)
	return a
}

func TestLogin(t *testing.T) {
	a := newTestAuth(t)

	token, exp, err := a.Login("admin", "s3cret")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := a.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Subject)
}

func TestLogin_WrongCredentials(t *testing.T) {
	a := newTestAuth(t)

	_, _, err := a.Login("admin", "nope")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = a.Login("root", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestNew_WithBcryptHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-pass"), bcrypt.MinCost)
	require.NoError(t, err)

	a, err := New(config.AuthConfig{Username: "ops", PasswordHash: string(hash), JWTSecret: "k"})
	require.NoError(t, err)

	_, _, err = a.Login("ops", "hashed-pass")
	assert.NoError(t, err)

	_, err = New(config.AuthConfig{Username: "ops", PasswordHash: "plain", JWTSecret: "k"})
	assert.Error(t, err)
}

func TestVerify_Expired(t *testing.T) {
	a := newTestAuth(t)
	a.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err := a.Login("admin", "s3cret")
	require.NoError(t, err)

	a.now = time.Now
	_, err = a.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_OtherSecret(t *testing.T) {
	a := newTestAuth(t)
	token, _, err := a.Login("admin", "s3cret")
	require.NoError(t, err)

	other, err := New(config.AuthConfig{Username: "admin", Password: "s3cret", JWTSecret: "different"})
	require.NoError(t, err)
	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMiddleware(t *testing.T) {
	a := newTestAuth(t)
	handler := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(Operator(r.Context())))
	}))

	// No token
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/loans", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Valid token
	token, _, err := a.Login("admin", "s3cret")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/loans", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin", rec.Body.String())
}
