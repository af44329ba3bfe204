package eln

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/benchnote/eln-mcp/pkg/logger"
)

type stubProvider struct {
	creds        Credentials
	reauthCalls  atomic.Int32
	reauthErr    error
	failureCalls atomic.Int32
}

func (p *stubProvider) Credentials() Credentials {
	return p.creds
}

func (p *stubProvider) HandleUnauthorized(context.Context) error {
	p.reauthCalls.Add(1)
	return p.reauthErr
}

func (p *stubProvider) HandleAuthFailure(_ context.Context, cause error) error {
	p.failureCalls.Add(1)
	return cause
}

func apiKeyProvider() *stubProvider {
	return &stubProvider{creds: Credentials{
		Mode:           AuthModeAPIKey,
		AccessKeyID:    "AK",
		AccessPassword: "SECRET",
	}}
}

func newTestClient(baseURL string, maxRetries int, backups ...string) (*Client, *stubProvider) {
	c := NewClient(ClientConfig{
		BaseURL:        baseURL,
		BackupURLs:     backups,
		MaxRetries:     maxRetries,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Timeout:        5 * time.Second,
		ConnectTimeout: time.Second,
	})
	p := apiKeyProvider()
	c.SetCredentialProvider(p)
	return c, p
}

func TestListNotebooksSignsRequest(t *testing.T) {
	t.Parallel()
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"notebooks":[{"id":"N1","name":"Alpha"}]}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(srv.URL, 1)
	defer c.Close()

	got, err := c.ListNotebooks(context.Background(), "U1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Alpha", got[0].Name)

	assert.Equal(t, []string{"U1"}, gotQuery["uid"])
	assert.Equal(t, []string{"AK"}, gotQuery["access_key_id"])
	require.Len(t, gotQuery["sig"], 1)
	assert.Len(t, gotQuery["sig"][0], 64)
	assert.NotEmpty(t, gotQuery["ts"])
}

func TestUserTokenModeAttachesToken(t *testing.T) {
	t.Parallel()
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`{"user_id":"U1"}`))
	}))
	defer srv.Close()

	c, p := newTestClient(srv.URL, 1)
	defer c.Close()
	p.creds = Credentials{
		Mode:           AuthModeUserToken,
		AccessKeyID:    "AK",
		AccessPassword: "SSO-TOKEN",
		Username:       "ada@example.org",
	}

	info, err := c.UserInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "U1", info.UserID)

	assert.Equal(t, []string{"ada@example.org"}, gotQuery["username"])
	assert.Equal(t, []string{"SSO-TOKEN"}, gotQuery["token"])
	assert.Empty(t, gotQuery["sig"])
}

func TestRetryOn5xxThenSuccess(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"pages":[{"id":"P1","notebook_id":"N1","title":"T"}]}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(srv.URL, 2)
	defer c.Close()

	got, err := c.ListPages(context.Background(), "U1", "N1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryBudgetExhausted(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, _ := newTestClient(srv.URL, 2)
	defer c.Close()

	_, err := c.ListNotebooks(context.Background(), "U1")
	require.Error(t, err)
	assert.True(t, IsUnavailable(err), "got %v", err)
	assert.Equal(t, int32(3), calls.Load(), "1 attempt + 2 retries")
}

func TestRateLimitedHonorsRetryAfter(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, _ := newTestClient(srv.URL, 1)
	defer c.Close()

	_, err := c.ListNotebooks(context.Background(), "U1")
	require.Error(t, err)
	assert.True(t, IsRateLimited(err), "got %v", err)
	assert.Equal(t, int32(2), calls.Load(), "429 retried exactly once with max_retries=1")
}

func TestNotFoundNotRetried(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, _ := newTestClient(srv.URL, 3)
	defer c.Close()

	_, err := c.ListPages(context.Background(), "U1", "N9")
	assert.True(t, IsNotFound(err), "got %v", err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestForbiddenNotRetried(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c, _ := newTestClient(srv.URL, 3)
	defer c.Close()

	_, err := c.ListNotebooks(context.Background(), "U1")
	assert.True(t, IsForbidden(err), "got %v", err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestUnauthorizedTriggersSingleReauth(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"pages":[]}`))
	}))
	defer srv.Close()

	c, p := newTestClient(srv.URL, 1)
	defer c.Close()

	_, err := c.ListPages(context.Background(), "U1", "N1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), p.reauthCalls.Load())
	assert.Equal(t, int32(0), p.failureCalls.Load())
	assert.Equal(t, int32(2), calls.Load())
}

func TestSecondUnauthorizedSurfaces(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, p := newTestClient(srv.URL, 1)
	defer c.Close()

	_, err := c.ListNotebooks(context.Background(), "U1")
	assert.True(t, IsUnauthorized(err), "got %v", err)
	assert.Equal(t, int32(1), p.reauthCalls.Load(), "re-auth attempted exactly once")
	assert.Equal(t, int32(1), p.failureCalls.Load(), "the spent recovery is reported back")
}

func TestUserInfoUnauthorizedDoesNotReauth(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, p := newTestClient(srv.URL, 1)
	defer c.Close()

	_, err := c.UserInfo(context.Background())
	assert.True(t, IsUnauthorized(err), "got %v", err)
	assert.Equal(t, int32(0), p.reauthCalls.Load(), "the auth call itself never recurses")
}

func TestFailoverToBackupEndpoint(t *testing.T) {
	t.Parallel()
	backup := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"notebooks":[{"id":"N1","name":"Alpha"}]}`))
	}))
	defer backup.Close()

	// A closed server yields connection-level failures from the primary.
	dead := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	deadURL := dead.URL
	dead.Close()

	c, _ := newTestClient(deadURL, 1, backup.URL)
	defer c.Close()

	got, err := c.ListNotebooks(context.Background(), "U1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "N1", got[0].ID)
}

func TestNotFoundDoesNotFailOver(t *testing.T) {
	t.Parallel()
	var backupCalls atomic.Int32
	backup := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		backupCalls.Add(1)
		w.Write([]byte(`{"notebooks":[]}`))
	}))
	defer backup.Close()

	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer primary.Close()

	c, _ := newTestClient(primary.URL, 1, backup.URL)
	defer c.Close()

	_, err := c.ListNotebooks(context.Background(), "U1")
	assert.True(t, IsNotFound(err), "got %v", err)
	assert.Equal(t, int32(0), backupCalls.Load(), "4xx from primary is authoritative")
}

func TestDebugLogNeverContainsSecrets(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	prev := logger.Get()
	logger.Set(zap.New(core).Sugar())
	t.Cleanup(func() { logger.Set(prev) })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"user_id":"U1"}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(srv.URL, 1)
	defer c.Close()

	_, err := c.UserInfo(context.Background())
	require.NoError(t, err)

	var loggedURL string
	for _, entry := range logs.All() {
		if u, ok := entry.ContextMap()["url"].(string); ok {
			loggedURL = u
		}
	}
	require.NotEmpty(t, loggedURL)
	assert.NotContains(t, loggedURL, "SECRET")
	assert.Contains(t, loggedURL, "sig=[REDACTED]")
	assert.Contains(t, loggedURL, "access_key_id=[REDACTED]")
	assert.Contains(t, loggedURL, "ts=")
}
