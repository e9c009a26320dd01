package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// maxErrorBody caps how much of a failed response is kept on an HTTPError.
const maxErrorBody = 64 << 10

// Request describes one API call. The body is held as bytes so the call can be replayed after a refresh.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Body    []byte
	Headers map[string]string
}

// Do sends req with the stored access token. A 401 triggers one recovery cycle (see package docs)
// unless req targets the refresh endpoint or no refresh token is stored, in which case the 401
// response is returned as-is. The caller must close the response body.
func (c *Client) Do(ctx context.Context, req *Request) (*http.Response, error) {
	requestID := uuid.New().String()
	cycle := c.refreshCycles.Load()
	sentToken, _ := c.AccessToken()

	resp, err := c.send(ctx, req, sentToken, requestID)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || c.isRefreshPath(req.Path) {
		return resp, nil
	}
	if _, ok := c.RefreshToken(); !ok {
		return resp, nil
	}
	drainAndClose(resp)

	newToken, err := c.recoverSession(ctx, sentToken, cycle)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().Str("request_id", requestID).Str("method", req.Method).Str("path", req.Path).Msg("replaying request after refresh")
	c.metrics.replayed()
	// The replay is final, whatever its status.
	return c.send(ctx, req, newToken, requestID)
}

// send performs a single HTTP exchange, bounded by the client timeout. An empty token sends no Authorization header.
func (c *Client) send(ctx context.Context, req *Request, accessToken, requestID string) (*http.Response, error) {
	u := c.url(req)

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(reqCtx, req.Method, u, body)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("apiclient: build request %s %s: %w", req.Method, u, err)
	}

	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("X-Request-ID", requestID)
	if accessToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	}

	c.logger.Debug().Str("request_id", requestID).Str("method", req.Method).Str("url", u).Msg("sending request")
	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		cancel()
		c.metrics.observe(req.Method, "error", time.Since(start))
		return nil, c.classify(ctx, req.Method, u, err)
	}
	c.metrics.observe(req.Method, strconv.Itoa(resp.StatusCode), time.Since(start))

	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// classify maps a transport error to TimeoutError or NetworkError. When the caller's own context
// ended first, its error (Canceled or DeadlineExceeded) is returned instead.
func (c *Client) classify(ctx context.Context, method, u string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s %s: %w", method, u, ctxErr)
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return &TimeoutError{Method: method, URL: u, Timeout: c.timeout, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s %s: %w", method, u, context.Canceled)
	}
	return &NetworkError{Method: method, URL: u, Err: err}
}

func (c *Client) url(req *Request) string {
	u := c.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}
	return u
}

func (c *Client) isRefreshPath(path string) bool {
	return normalisePath(path) == c.refreshPath
}

// Get issues a GET and decodes the JSON response into out (which may be nil).
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.DoJSON(ctx, &Request{Method: http.MethodGet, Path: path}, out)
}

// Post sends body as JSON. A nil body sends no payload.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.jsonCall(ctx, http.MethodPost, path, body, out)
}

// PostForm sends data as application/x-www-form-urlencoded.
func (c *Client) PostForm(ctx context.Context, path string, data url.Values, out any) error {
	req := &Request{
		Method:  http.MethodPost,
		Path:    path,
		Body:    []byte(data.Encode()),
		Headers: map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
	}
	return c.DoJSON(ctx, req, out)
}

func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.jsonCall(ctx, http.MethodPut, path, body, out)
}

func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.jsonCall(ctx, http.MethodPatch, path, body, out)
}

func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.DoJSON(ctx, &Request{Method: http.MethodDelete, Path: path}, out)
}

func (c *Client) jsonCall(ctx context.Context, method, path string, body, out any) error {
	req := &Request{Method: method, Path: path}
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("apiclient: encode %s %s body: %w", method, path, err)
		}
		req.Body = b
		req.Headers = map[string]string{"Content-Type": "application/json"}
	}
	return c.DoJSON(ctx, req, out)
}

// DoJSON runs req through Do and decodes a 2xx JSON body into out. Non-2xx responses become *HTTPError.
func (c *Client) DoJSON(ctx context.Context, req *Request, out any) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	u := resp.Request.URL.String()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if err != nil {
			return c.classify(ctx, req.Method, u, err)
		}
		return &HTTPError{Method: req.Method, URL: u, StatusCode: resp.StatusCode, Body: b}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.classify(ctx, req.Method, u, err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("apiclient: decode %s %s response: %w", req.Method, u, err)
	}
	return nil
}

// cancelOnClose releases the per-request timeout once the caller is done with the body.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
}
