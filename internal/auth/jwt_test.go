package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ozwald-dev/ozwald/internal/config"
)

func testConfig(authEnabled bool) *config.Config {
	return &config.Config{
		Security: config.SecurityConfig{
			AuthEnabled:   authEnabled,
			JWTSecret:     "test-secret",
			JWTExpiration: time.Hour,
		},
	}
}

func TestGenerateAndValidateToken(t *testing.T) {
	svc := NewJWTService(testConfig(true))

	token, err := svc.GenerateToken("alice")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Operator)
	assert.Equal(t, "ozwald", claims.Issuer)
	assert.Equal(t, "alice", claims.Subject)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	token, err := NewJWTService(testConfig(true)).GenerateToken("alice")
	require.NoError(t, err)

	other := testConfig(true)
	other.Security.JWTSecret = "different-secret"

	_, err = NewJWTService(other).ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenExpired(t *testing.T) {
	cfg := testConfig(true)
	cfg.Security.JWTExpiration = -time.Minute

	token, err := NewJWTService(cfg).GenerateToken("alice")
	require.NoError(t, err)

	_, err = NewJWTService(cfg).ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidateTokenGarbage(t *testing.T) {
	_, err := NewJWTService(testConfig(true)).ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func callWithAuth(t *testing.T, cfg *config.Config, authorization string) (int, bool) {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var claimsSet bool
	handler := NewMiddleware(cfg).RequireAuth(func(c echo.Context) error {
		_, claimsSet = GetClaims(c)
		return c.NoContent(http.StatusOK)
	})

	if err := handler(c); err != nil {
		he, ok := err.(*echo.HTTPError)
		require.True(t, ok)
		return he.Code, claimsSet
	}
	return rec.Code, claimsSet
}

func TestRequireAuthDisabled(t *testing.T) {
	code, _ := callWithAuth(t, testConfig(false), "")
	assert.Equal(t, http.StatusOK, code)
}

func TestRequireAuthMissingHeader(t *testing.T) {
	code, _ := callWithAuth(t, testConfig(true), "")
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestRequireAuthMalformedHeader(t *testing.T) {
	code, _ := callWithAuth(t, testConfig(true), "Basic dXNlcjpwYXNz")
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestRequireAuthValidToken(t *testing.T) {
	cfg := testConfig(true)
	token, err := NewJWTService(cfg).GenerateToken("alice")
	require.NoError(t, err)

	code, claimsSet := callWithAuth(t, cfg, "Bearer "+token)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, claimsSet)
}
