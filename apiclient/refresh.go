package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	apierrors "github.com/jrsteele09/go-api-client/internal/errors"
)

// All refreshes share one key: a client holds a single session.
const refreshKey = "session"

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Refresh exchanges the stored refresh token for a new access token, joining a refresh that is
// already in flight. A failure has the same consequences as a failed recovery cycle.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	return c.recoverSession(ctx, "", c.refreshCycles.Load())
}

// recoverSession returns a usable access token for a request that was rejected while carrying
// staleToken. cycle is the refresh count read before the request went out. If a refresh has
// completed since then, or staleToken was replaced, the current token is returned without a
// network call; if that refresh failed the request fails without a second callback.
//
// The refresh itself runs detached from ctx: a caller giving up stops waiting but does not
// cancel the refresh other callers are sharing.
func (c *Client) recoverSession(ctx context.Context, staleToken string, cycle uint64) (string, error) {
	ch := c.refreshGroup.DoChan(refreshKey, func() (any, error) {
		current, ok := c.AccessToken()
		if c.refreshCycles.Load() != cycle || (staleToken != "" && current != staleToken) {
			if !ok {
				// Cleared since the request went out: an earlier cycle already failed and reported it.
				return "", &AuthRecoveryError{Err: apierrors.ErrNoRefreshToken}
			}
			c.metrics.refreshed("skipped")
			return current, nil
		}
		defer c.refreshCycles.Add(1)
		return c.refreshSession(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		if res.Shared {
			c.logger.Debug().Msg("joined in-flight token refresh")
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// refreshSession performs the refresh call. Only one runs at a time per client.
func (c *Client) refreshSession(ctx context.Context) (string, error) {
	refreshToken, ok := c.RefreshToken()
	if !ok {
		return "", c.recoveryFailed(apierrors.ErrNoRefreshToken)
	}

	body, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return "", c.recoveryFailed(err)
	}
	req := &Request{
		Method:  http.MethodPost,
		Path:    c.refreshPath,
		Body:    body,
		Headers: map[string]string{"Content-Type": "application/json"},
	}

	c.logger.Info().Str("path", c.refreshPath).Msg("refreshing access token")
	// The refresh call authenticates with the refresh token in its body, not a bearer header.
	resp, err := c.send(ctx, req, "", uuid.New().String())
	if err != nil {
		return "", c.recoveryFailed(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", c.recoveryFailed(&HTTPError{
			Method:     req.Method,
			URL:        resp.Request.URL.String(),
			StatusCode: resp.StatusCode,
			Body:       b,
		})
	}

	var out refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", c.recoveryFailed(fmt.Errorf("decode refresh response: %w", err))
	}
	if out.AccessToken == "" {
		return "", c.recoveryFailed(apierrors.Wrapf(apierrors.ErrInvalidToken, "refresh response has no access_token"))
	}

	// The refresh token is only replaced when the backend rotates it.
	if err := c.SetTokens(out.AccessToken, out.RefreshToken); err != nil {
		return "", c.recoveryFailed(err)
	}

	c.metrics.refreshed("success")
	c.logger.Info().Bool("rotated", out.RefreshToken != "").Msg("access token refreshed")
	return out.AccessToken, nil
}

// recoveryFailed ends a refresh cycle: the session is dropped and the callback fires.
// It runs inside the single-flight call, so once per failed cycle.
func (c *Client) recoveryFailed(cause error) error {
	if err := c.ClearTokens(); err != nil {
		c.logger.Error().Err(err).Msg("failed to clear tokens after refresh failure")
	}
	c.metrics.refreshed("failure")
	c.logger.Warn().Err(cause).Msg("token refresh failed, session cleared")

	if c.onAuthRecoveryFailed != nil {
		c.onAuthRecoveryFailed()
	}
	return &AuthRecoveryError{Err: cause}
}
