package eln

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/benchnote/eln-mcp/pkg/logger"
	"github.com/benchnote/eln-mcp/pkg/sanitize"
	"github.com/benchnote/eln-mcp/pkg/signer"
)

const (
	defaultTimeout        = 30 * time.Second
	defaultConnectTimeout = 10 * time.Second
	defaultMaxRetries     = 3
	defaultInitialBackoff = 100 * time.Millisecond
	defaultMaxBackoff     = 10 * time.Second
	defaultMultiplier     = 2.0

	// jitterFactor is the ±25% randomization applied to every backoff wait.
	jitterFactor = 0.25

	// maxResponseBytes caps how much of an upstream body is read.
	maxResponseBytes = 16 << 20
)

// ClientConfig configures the upstream HTTP client. The zero value of any
// field falls back to the documented default.
type ClientConfig struct {
	// BaseURL is the primary regional endpoint, e.g. "https://eln.example/api".
	BaseURL string
	// BackupURLs are secondary regional endpoints tried, in order, after the
	// primary's attempt budget is exhausted by connection-level failures or
	// persistent 5xx.
	BackupURLs []string
	// Timeout bounds each individual attempt (default 30s).
	Timeout time.Duration
	// ConnectTimeout bounds connection establishment (default 10s).
	ConnectTimeout time.Duration
	// MaxRetries is the number of retries after the first attempt (default 3).
	MaxRetries int
	// InitialBackoff is the first retry delay (default 100ms).
	InitialBackoff time.Duration
	// MaxBackoff caps the retry delay (default 10s).
	MaxBackoff time.Duration
	// Multiplier grows the delay between retries (default 2.0).
	Multiplier float64
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = defaultInitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaultMaxBackoff
	}
	if c.Multiplier <= 0 {
		c.Multiplier = defaultMultiplier
	}
	return c
}

// RequestBudget is the per-request total timeout: every attempt plus every
// maximal backoff across all endpoints.
func (c ClientConfig) RequestBudget() time.Duration {
	c = c.withDefaults()
	attempts := time.Duration(1+c.MaxRetries) * c.Timeout
	waits := time.Duration(c.MaxRetries) * c.MaxBackoff
	endpoints := time.Duration(1 + len(c.BackupURLs))
	return endpoints * (attempts + waits)
}

// Client issues authenticated requests against the ELN API. A single pooled
// transport is shared across all requests; the pool is released by Close.
type Client struct {
	cfg       ClientConfig
	http      *http.Client
	provider  CredentialProvider
	sanitizer *sanitize.Sanitizer
}

// NewClient builds a client with a keep-alive connection pool. The
// credential provider must be attached with SetCredentialProvider before the
// first request.
func NewClient(cfg ClientConfig) *Client {
	cfg = cfg.withDefaults()
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: cfg.ConnectTimeout,
		}).DialContext,
		TLSHandshakeTimeout: cfg.ConnectTimeout,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		sanitizer: sanitize.Default(),
	}
}

// SetCredentialProvider attaches the auth manager's credential capability.
// The client never owns the auth manager; this breaks the construction cycle
// between the two.
func (c *Client) SetCredentialProvider(p CredentialProvider) {
	c.provider = p
}

// Close releases the connection pool.
func (c *Client) Close() {
	if t, ok := c.http.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
}

// UserInfo calls the user-info endpoint. This is the authentication call
// itself, so a 401 here is returned directly instead of triggering re-auth.
func (c *Client) UserInfo(ctx context.Context) (UserInfo, error) {
	body, ct, err := c.get(ctx, "/users/user_info", url.Values{})
	if err != nil {
		return UserInfo{}, err
	}
	return parseUserInfo(body, ct)
}

// ListNotebooks returns the notebooks visible to the authenticated user.
func (c *Client) ListNotebooks(ctx context.Context, uid string) ([]Notebook, error) {
	body, ct, err := c.get(ctx, "/notebooks/list", url.Values{"uid": {uid}})
	if err != nil {
		return nil, err
	}
	return parseNotebooks(body, ct)
}

// ListPages returns the pages of a notebook.
func (c *Client) ListPages(ctx context.Context, uid, notebookID string) ([]Page, error) {
	body, ct, err := c.get(ctx, "/pages/list", url.Values{"uid": {uid}, "notebook_id": {notebookID}})
	if err != nil {
		return nil, err
	}
	return parsePages(body, ct)
}

// GetEntries returns the entries of a page.
func (c *Client) GetEntries(ctx context.Context, uid, pageID string) ([]Entry, error) {
	body, ct, err := c.get(ctx, "/entries/get", url.Values{"uid": {uid}, "page_id": {pageID}})
	if err != nil {
		return nil, err
	}
	return parseEntries(body, ct)
}

// get runs the full request algorithm: per-request deadline, retry budget
// against the primary, failover to each backup in order, one re-signed
// attempt per try, and a single transparent re-authentication on 401.
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, string, error) {
	if c.provider == nil {
		return nil, "", newError(KindUnavailable, 0, "no credential provider attached", nil)
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestBudget())
	defer cancel()

	body, ct, err := c.getAllEndpoints(ctx, path, params)
	// The user-info path is the authentication call itself; re-auth there
	// would recurse. A 401 anywhere else buys exactly one refresh + retry.
	if IsUnauthorized(err) && path != "/users/user_info" {
		if rerr := c.provider.HandleUnauthorized(ctx); rerr != nil {
			return nil, "", rerr
		}
		body, ct, err = c.getAllEndpoints(ctx, path, params)
		if IsUnauthorized(err) {
			// The refreshed session was rejected too; the recovery is spent
			// and the provider decides how the failure surfaces.
			return nil, "", c.provider.HandleAuthFailure(ctx, err)
		}
	}
	return body, ct, err
}

func (c *Client) getAllEndpoints(ctx context.Context, path string, params url.Values) ([]byte, string, error) {
	endpoints := append([]string{c.cfg.BaseURL}, c.cfg.BackupURLs...)
	var lastErr error
	for i, endpoint := range endpoints {
		if i > 0 {
			logger.Warnw("failing over to backup endpoint",
				"endpoint", endpoint, "path", path, "cause", fmt.Sprint(lastErr))
		}
		body, ct, err := c.getFromEndpoint(ctx, endpoint, path, params)
		if err == nil {
			return body, ct, nil
		}
		lastErr = err
		// Only connection-level failure or persistent 5xx moves to the next
		// region; auth and client errors from the primary are authoritative.
		if !isTransient(err) {
			return nil, "", err
		}
	}
	return nil, "", lastErr
}

type attemptResult struct {
	body        []byte
	contentType string
}

// getFromEndpoint spends the retry budget against one endpoint.
func (c *Client) getFromEndpoint(ctx context.Context, endpoint, path string, params url.Values) ([]byte, string, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.InitialBackoff
	bo.MaxInterval = c.cfg.MaxBackoff
	bo.Multiplier = c.cfg.Multiplier
	bo.RandomizationFactor = jitterFactor
	bo.Reset()

	operation := func() (*attemptResult, error) {
		return c.attempt(ctx, endpoint, path, params)
	}
	res, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(1+c.cfg.MaxRetries)), // #nosec G115 -- bounded config value
		backoff.WithNotify(func(err error, wait time.Duration) {
			logger.Debugw("retrying upstream request",
				"path", path, "wait", wait.String(), "cause", fmt.Sprint(err))
		}),
	)
	if err != nil {
		return nil, "", normalizeRetryError(err, endpoint, path)
	}
	return res.body, res.contentType, nil
}

// attempt performs one signed HTTP request. Transient errors come back as
// retryable typed errors; permanent ones are wrapped in backoff.Permanent.
func (c *Client) attempt(ctx context.Context, endpoint, path string, params url.Values) (*attemptResult, error) {
	creds := c.provider.Credentials()

	q := url.Values{}
	for k, vs := range params {
		q[k] = vs
	}
	q.Set("access_key_id", creds.AccessKeyID)
	switch creds.Mode {
	case AuthModeUserToken:
		q.Set("username", creds.Username)
		q.Set("token", creds.AccessPassword)
	default:
		// Re-signed on every attempt so retried requests carry fresh
		// timestamps; upstream rejects stale ones.
		sig, ts := signer.New(creds.AccessPassword).Sign(http.MethodGet, path, q)
		q.Set("sig", sig)
		q.Set("ts", strconv.FormatInt(ts, 10))
	}

	fullURL := endpoint + path + "?" + q.Encode()
	logger.Debugw("upstream request", "url", c.sanitizer.QueryParams(fullURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, backoff.Permanent(newError(KindBadRequest, 0, "failed to build request", err))
	}
	req.Header.Set("Accept", "application/json, application/xml")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(newError(KindUnavailable, 0, "request budget exceeded", ctx.Err()))
		}
		return nil, newError(KindUnavailable, 0, "upstream request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, newError(KindUnavailable, resp.StatusCode, "failed to read response body", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return &attemptResult{body: body, contentType: resp.Header.Get("Content-Type")}, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, backoff.Permanent(newError(KindUnauthorized, resp.StatusCode, "upstream rejected credentials", nil))
	case resp.StatusCode == http.StatusForbidden:
		return nil, backoff.Permanent(newError(KindForbidden, resp.StatusCode, "permission denied by upstream", nil))
	case resp.StatusCode == http.StatusNotFound:
		return nil, backoff.Permanent(newError(KindNotFound, resp.StatusCode, "resource not found upstream", nil))
	case resp.StatusCode == http.StatusTooManyRequests:
		rlErr := newError(KindRateLimited, resp.StatusCode, "rate limited by upstream", nil)
		if secs, ok := retryAfterSeconds(resp.Header.Get("Retry-After")); ok {
			return nil, errors.Join(rlErr, &backoff.RetryAfterError{Duration: time.Duration(secs) * time.Second})
		}
		return nil, rlErr
	case resp.StatusCode >= 500:
		return nil, newError(KindUnavailable, resp.StatusCode, "upstream server error", nil)
	default:
		return nil, backoff.Permanent(newError(KindBadRequest, resp.StatusCode, "upstream rejected request", nil))
	}
}

// normalizeRetryError guarantees a typed error reaches callers even when the
// retry machinery returns its own wrapper.
func normalizeRetryError(err error, endpoint, path string) error {
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return newError(KindUnavailable, 0, fmt.Sprintf("request to %s%s timed out", endpoint, path), err)
	}
	return newError(KindUnavailable, 0, fmt.Sprintf("request to %s%s failed", endpoint, path), err)
}

func retryAfterSeconds(header string) (int, bool) {
	if header == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return 0, false
	}
	return secs, true
}
