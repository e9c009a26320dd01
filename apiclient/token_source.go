package apiclient

import (
	"context"
	"time"

	apierrors "github.com/jrsteele09/go-api-client/internal/errors"
	"github.com/jrsteele09/go-api-client/tokens"
	"golang.org/x/oauth2"
)

// expiryDelta refreshes slightly ahead of the exp claim to absorb clock skew.
const expiryDelta = 10 * time.Second

type tokenSource struct {
	c   *Client
	now func() time.Time
}

// TokenSource exposes the stored session as an oauth2.TokenSource, for use with oauth2.NewClient
// and similar. An access token whose exp claim has passed is refreshed first, through the same
// single-flight path as a 401 recovery.
func (c *Client) TokenSource() oauth2.TokenSource {
	return &tokenSource{c: c, now: time.Now}
}

func (ts *tokenSource) Token() (*oauth2.Token, error) {
	access, ok := ts.c.AccessToken()
	if !ok {
		return nil, apierrors.Wrapf(apierrors.ErrInvalidToken, "no access token stored")
	}

	t := ts.oauth2Token(access)
	if t.Expiry.IsZero() || ts.now().Add(expiryDelta).Before(t.Expiry) {
		return t, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), ts.c.timeout)
	defer cancel()
	access, err := ts.c.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	return ts.oauth2Token(access), nil
}

func (ts *tokenSource) oauth2Token(access string) *oauth2.Token {
	refresh, _ := ts.c.RefreshToken()
	t := &oauth2.Token{
		AccessToken:  access,
		TokenType:    "Bearer",
		RefreshToken: refresh,
	}
	// Opaque tokens have no claims; they are treated as non-expiring.
	if claims, err := tokens.ParseClaims(access); err == nil {
		t.Expiry = claims.ExpiresAt
	}
	return t
}
