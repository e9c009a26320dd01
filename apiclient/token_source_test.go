package apiclient_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-api-client/apiclient"
	apierrors "github.com/jrsteele09/go-api-client/internal/errors"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "1",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestTokenSource(t *testing.T) {
	t.Run("valid jwt", func(t *testing.T) {
		b := newFakeBackend(t)
		c := newClient(t, b.URL(), apiclient.Config{})
		access := signedToken(t, time.Now().Add(time.Hour))
		require.NoError(t, c.SetTokens(access, testRefresh))

		tok, err := c.TokenSource().Token()
		require.NoError(t, err)
		require.Equal(t, access, tok.AccessToken)
		require.Equal(t, testRefresh, tok.RefreshToken)
		require.Equal(t, "Bearer", tok.TokenType)
		require.False(t, tok.Expiry.IsZero())
		require.Zero(t, b.refreshCalls.Load())
	})

	t.Run("expired jwt is refreshed", func(t *testing.T) {
		b := newFakeBackend(t)
		c := newClient(t, b.URL(), apiclient.Config{})
		require.NoError(t, c.SetTokens(signedToken(t, time.Now().Add(-time.Minute)), testRefresh))

		tok, err := c.TokenSource().Token()
		require.NoError(t, err)
		require.Equal(t, freshToken, tok.AccessToken)
		require.EqualValues(t, 1, b.refreshCalls.Load())
	})

	t.Run("opaque token never expires", func(t *testing.T) {
		b := newFakeBackend(t)
		c := newClient(t, b.URL(), apiclient.Config{})
		require.NoError(t, c.SetTokens(staleToken, testRefresh))

		tok, err := c.TokenSource().Token()
		require.NoError(t, err)
		require.Equal(t, staleToken, tok.AccessToken)
		require.True(t, tok.Expiry.IsZero())
		require.Zero(t, b.refreshCalls.Load())
	})

	t.Run("no session", func(t *testing.T) {
		c := newClient(t, "http://localhost:8000", apiclient.Config{})
		_, err := c.TokenSource().Token()
		require.ErrorIs(t, err, apierrors.ErrInvalidToken)
	})
}
