// Package auth maintains the authenticated session against the ELN API. It
// authenticates in API-key or user-token mode, caches the session in memory,
// refreshes it proactively near expiry, and recovers a single upstream 401
// transparently. Sessions exist only in memory and are replaced atomically,
// never mutated in place.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benchnote/eln-mcp/pkg/audit"
	"github.com/benchnote/eln-mcp/pkg/eln"
	"github.com/benchnote/eln-mcp/pkg/logger"
)

const (
	// SessionTTL is the upstream session lifetime from authentication.
	SessionTTL = 3600 * time.Second
	// RefreshThreshold is the proactive refresh window before expiry.
	RefreshThreshold = 300 * time.Second
)

// Config holds the upstream credentials. Loaded once at startup, never
// mutated, and none of the secret fields ever reach a log sink.
type Config struct {
	Mode        eln.AuthMode
	AccessKeyID string
	// AccessPassword is the HMAC signing secret (api_key mode) or the SSO
	// temporary token (user_token mode).
	AccessPassword string
	// Username is required in user_token mode.
	Username string
}

// Validate reports whether the configuration is usable. Called at startup;
// an error here is fatal with the configuration exit code.
func (c Config) Validate() error {
	switch c.Mode {
	case eln.AuthModeAPIKey, eln.AuthModeUserToken:
	default:
		return fmt.Errorf("invalid auth mode %q", c.Mode)
	}
	if c.AccessKeyID == "" {
		return errors.New("access key ID is required")
	}
	if c.AccessPassword == "" {
		return errors.New("access password is required")
	}
	if c.Mode == eln.AuthModeUserToken && c.Username == "" {
		return errors.New("username is required in user_token mode")
	}
	return nil
}

// Session is an authenticated session snapshot. Immutable; the manager
// replaces the whole value on refresh.
type Session struct {
	UserID          string
	AuthenticatedAt time.Time
	ExpiresAt       time.Time
}

// NeedsRefresh reports whether the session is inside the proactive refresh
// window (or past expiry).
func (s Session) NeedsRefresh(now time.Time) bool {
	return !now.Before(s.ExpiresAt.Add(-RefreshThreshold))
}

// AuthenticationError marks a definitive authentication failure: invalid
// credentials, or a second 401 after the one-shot recovery.
type AuthenticationError struct {
	Message string
	Cause   error
}

// Error returns the error message.
func (e *AuthenticationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("authentication failed: %s: %s", e.Message, e.Cause)
	}
	return "authentication failed: " + e.Message
}

// Unwrap returns the underlying error.
func (e *AuthenticationError) Unwrap() error {
	return e.Cause
}

// IsAuthenticationError checks whether err is a definitive auth failure.
func IsAuthenticationError(err error) bool {
	var e *AuthenticationError
	return errors.As(err, &e)
}

// Manager owns the session and implements eln.CredentialProvider for the
// client. Mutation is confined to EnsureAuthenticated, HandleUnauthorized
// and HandleAuthFailure; readers get value snapshots.
type Manager struct {
	cfg     Config
	client  *eln.Client
	emitter *audit.Emitter
	now     func() time.Time

	mu      sync.Mutex
	session *Session
}

// NewManager validates the credential configuration and builds a manager.
// The caller attaches the manager to the client with SetCredentialProvider.
func NewManager(cfg Config, client *eln.Client, emitter *audit.Emitter) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid auth configuration: %w", err)
	}
	return &Manager{
		cfg:     cfg,
		client:  client,
		emitter: emitter,
		now:     time.Now,
	}, nil
}

// WithClock overrides the time source. For tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Credentials returns the material for the next outbound request. Pure
// snapshot of immutable configuration; no locking needed.
func (m *Manager) Credentials() eln.Credentials {
	return eln.Credentials{
		Mode:           m.cfg.Mode,
		AccessKeyID:    m.cfg.AccessKeyID,
		AccessPassword: m.cfg.AccessPassword,
		Username:       m.cfg.Username,
	}
}

// EnsureAuthenticated returns a fresh session, authenticating or proactively
// refreshing as needed. Every upstream call path goes through here first.
func (m *Manager) EnsureAuthenticated(ctx context.Context) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.session == nil:
		if err := m.authenticateLocked(ctx, audit.EventAuthSuccess); err != nil {
			return Session{}, err
		}
	case m.session.NeedsRefresh(m.now()):
		logger.Debugw("session near expiry, refreshing",
			"expires_at", m.session.ExpiresAt.Format(time.RFC3339))
		if err := m.authenticateLocked(ctx, audit.EventAuthRefresh); err != nil {
			return Session{}, err
		}
	}
	return *m.session, nil
}

// HandleUnauthorized invalidates the session and re-authenticates. The
// client calls this once after a 401 and then retries the original request;
// a second 401 surfaces as an AuthenticationError upstream of here.
func (m *Manager) HandleUnauthorized(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.session = nil
	return m.authenticateLocked(ctx, audit.EventAuthRefresh)
}

// HandleAuthFailure records a 401 that the one-shot recovery did not cure:
// the session installed by the refresh was rejected as well. The session is
// discarded so the next request starts from a fresh authentication, and the
// failure is converted into a definitive AuthenticationError.
func (m *Manager) HandleAuthFailure(ctx context.Context, cause error) error {
	m.mu.Lock()
	m.session = nil
	m.mu.Unlock()

	m.emitter.Emit(audit.New(ctx, audit.EventAuthFailure, audit.OutcomeError).
		WithErrorKind(string(eln.KindOf(cause))).
		WithMessage("upstream rejected the refreshed session"))
	return &AuthenticationError{Message: "upstream rejected the refreshed session", Cause: cause}
}

// UserID returns the authenticated user ID, or "" before first auth.
func (m *Manager) UserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return ""
	}
	return m.session.UserID
}

// authenticateLocked performs the user-info call and installs a new session.
// The caller holds m.mu. successEvent distinguishes first-time auth from
// refresh in the audit stream; exactly one event is emitted per attempt.
func (m *Manager) authenticateLocked(ctx context.Context, successEvent string) error {
	info, err := m.client.UserInfo(ctx)
	if err != nil {
		m.emitter.Emit(audit.New(ctx, audit.EventAuthFailure, audit.OutcomeError).
			WithErrorKind(string(eln.KindOf(err))).
			WithMessage("upstream authentication call failed"))
		if eln.IsUnauthorized(err) || eln.IsForbidden(err) {
			return &AuthenticationError{Message: "upstream rejected credentials", Cause: err}
		}
		// Transient failures propagate as-is; the dispatcher maps them to
		// upstream-unavailable.
		return err
	}

	now := m.now()
	m.session = &Session{
		UserID:          info.UserID,
		AuthenticatedAt: now,
		ExpiresAt:       now.Add(SessionTTL),
	}
	m.emitter.Emit(audit.New(ctx, successEvent, audit.OutcomeOK).WithUser(info.UserID))
	logger.Debugw("authenticated against upstream", "user_id", info.UserID,
		"expires_at", m.session.ExpiresAt.Format(time.RFC3339))
	return nil
}
