// Package coinboard is a Go SDK for the coinboard backend API: market list,
// price charts, news, and the authenticated user's watch-list.
package coinboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"coinboard/internal/domain"
	"coinboard/internal/util"
)

// maxErrorBody is the number of response-body bytes kept in an APIError.
const maxErrorBody = 200

// APIError is returned for any non-2xx response.
type APIError struct {
	Op     string // e.g. "markets"
	Status int
	Body   string // truncated response body
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Body)
}

// IsNotFound reports whether err is an APIError with status 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// retryable reports whether a failed status is worth another attempt.
func (e *APIError) retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// Client provides a Go SDK for interacting with the coinboard API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *util.RateLimiter
	retries    int
	retryDelay time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithRateLimit spaces requests to at most perMinute per minute.
func WithRateLimit(perMinute int) Option {
	return func(c *Client) { c.limiter = util.NewRateLimiter(perMinute) }
}

// WithRetries sets how many attempts idempotent reads get, and the initial
// backoff between them.
func WithRetries(attempts int, baseDelay time.Duration) Option {
	return func(c *Client) {
		if attempts < 1 {
			attempts = 1
		}
		c.retries = attempts
		c.retryDelay = baseDelay
	}
}

// NewClient creates a new coinboard API client.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    util.NewRateLimiter(0),
		retries:    1,
		retryDelay: 250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// ---------------------------------------------------------------------------
// Public data
// ---------------------------------------------------------------------------

// Ping calls GET /api/ping.
func (c *Client) Ping(ctx context.Context) (domain.Ping, error) {
	var p domain.Ping
	err := c.getJSON(ctx, "ping", "/api/ping", nil, &p)
	return p, err
}

// Markets calls GET /api/coins, optionally restricted to ids.
func (c *Client) Markets(ctx context.Context, ids []string) ([]domain.Coin, error) {
	var q url.Values
	if len(ids) > 0 {
		q = url.Values{"ids": {strings.Join(ids, ",")}}
	}
	var coins []domain.Coin
	if err := c.getJSON(ctx, "markets", "/api/coins", q, &coins); err != nil {
		return nil, err
	}
	return coins, nil
}

// Chart calls GET /api/coins/{id}/chart?days=N.
func (c *Client) Chart(ctx context.Context, id string, r domain.ChartRange) (domain.Chart, error) {
	var chart domain.Chart
	if !r.Valid() {
		return chart, fmt.Errorf("chart %s: unsupported range %d", id, int(r))
	}
	path := "/api/coins/" + url.PathEscape(id) + "/chart"
	q := url.Values{"days": {fmt.Sprint(int(r))}}
	err := c.getJSON(ctx, "chart "+id, path, q, &chart)
	return chart, err
}

// News calls GET /api/news, optionally filtered to coins.
func (c *Client) News(ctx context.Context, coins []string) ([]domain.NewsItem, error) {
	var q url.Values
	if len(coins) > 0 {
		q = url.Values{"coins": {strings.Join(coins, ",")}}
	}
	var items []domain.NewsItem
	if err := c.getJSON(ctx, "news", "/api/news", q, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// ---------------------------------------------------------------------------
// Authenticated watch-list
// ---------------------------------------------------------------------------

// Watchlist calls GET /api/me/watchlist.
func (c *Client) Watchlist(ctx context.Context, token string) ([]string, error) {
	var ids []string
	if err := c.getJSON(ctx, "watchlist", "/api/me/watchlist", nil, &ids, bearer(token)); err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// AddWatch calls POST /api/me/watchlist with {"cg_id": id}.
func (c *Client) AddWatch(ctx context.Context, token, id string) error {
	body, err := json.Marshal(map[string]string{"cg_id": id})
	if err != nil {
		return err
	}
	return c.send(ctx, "add watch "+id, http.MethodPost, "/api/me/watchlist", nil, body, bearer(token))
}

// RemoveWatch calls DELETE /api/me/watchlist/{id}. Servers that only expose
// the query form answer the path form with 404, in which case the request
// is repeated as DELETE /api/me/watchlist?cg_id=id.
func (c *Client) RemoveWatch(ctx context.Context, token, id string) error {
	op := "remove watch " + id
	err := c.send(ctx, op, http.MethodDelete, "/api/me/watchlist/"+url.PathEscape(id), nil, nil, bearer(token))
	if !IsNotFound(err) {
		return err
	}
	return c.send(ctx, op, http.MethodDelete, "/api/me/watchlist", url.Values{"cg_id": {id}}, nil, bearer(token))
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

type header func(*http.Request)

func bearer(token string) header {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	}
}

// getJSON performs an idempotent GET with retries on transient failures and
// decodes the body into out.
func (c *Client) getJSON(ctx context.Context, op, path string, q url.Values, out any, hdrs ...header) error {
	return util.Retry(ctx, c.retries, c.retryDelay, func() error {
		data, err := c.do(ctx, op, http.MethodGet, path, q, nil, hdrs...)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && !apiErr.retryable() {
				return util.Permanent(err)
			}
			if ctx.Err() != nil {
				return util.Permanent(err)
			}
			return err
		}
		if err := json.Unmarshal(data, out); err != nil {
			return util.Permanent(fmt.Errorf("%s: decoding response: %w", op, err))
		}
		return nil
	})
}

// send performs a single non-idempotent request and discards the body.
func (c *Client) send(ctx context.Context, op, method, path string, q url.Values, body []byte, hdrs ...header) error {
	_, err := c.do(ctx, op, method, path, q, body, hdrs...)
	return err
}

func (c *Client) do(ctx context.Context, op, method, path string, q url.Values, body []byte, hdrs ...header) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return nil, fmt.Errorf("%s: building request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, h := range hdrs {
		h(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: reading body: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Op: op, Status: resp.StatusCode, Body: truncate(string(data), maxErrorBody)}
	}
	return data, nil
}

// truncate shortens s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "") + "…"
}
