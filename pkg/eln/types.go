// Package eln is the HTTP client for the upstream Electronic Lab Notebook
// REST API. It signs requests, retries transient failures with exponential
// backoff and jitter, honors rate limits, fails over to backup regional
// endpoints, and tolerates both JSON and XML response bodies. Every URL it
// logs passes through the sanitizer first.
package eln

import "context"

// AuthMode selects how outbound requests authenticate.
type AuthMode string

const (
	// AuthModeAPIKey signs each request with HMAC-SHA256 over a canonical
	// request string, keyed by the access password.
	AuthModeAPIKey AuthMode = "api_key"
	// AuthModeUserToken attaches a username and SSO temporary token.
	AuthModeUserToken AuthMode = "user_token"
)

// Credentials is the material needed to authenticate one outbound request.
// It is a value snapshot: the auth manager hands out copies, never interior
// references, so a mid-request session swap cannot produce torn reads.
type Credentials struct {
	Mode        AuthMode
	AccessKeyID string
	// AccessPassword is the HMAC signing secret (AuthModeAPIKey) or the SSO
	// temporary token (AuthModeUserToken). It must never reach a log sink.
	AccessPassword string
	// Username is required in AuthModeUserToken.
	Username string
}

// CredentialProvider is the capability the auth manager exposes to the
// client. The client does not own the auth manager; it only pulls credential
// snapshots and reports 401s.
type CredentialProvider interface {
	// Credentials returns the material for the next request.
	Credentials() Credentials
	// HandleUnauthorized invalidates the cached session and re-authenticates.
	// The client calls it after an upstream 401, then retries the original
	// request exactly once.
	HandleUnauthorized(ctx context.Context) error
	// HandleAuthFailure records a 401 that survived the one-shot recovery.
	// The provider returns the error the caller should surface.
	HandleAuthFailure(ctx context.Context, cause error) error
}

// UserInfo is the parsed response of the user-info endpoint.
type UserInfo struct {
	UserID string
}

// Notebook is an upstream notebook.
type Notebook struct {
	ID         string
	Name       string
	Owner      string
	CreatedAt  string
	ModifiedAt string
}

// Page is an upstream notebook page. Folder is the raw folder-path string as
// stored upstream; callers normalize it with folderpath.FromRaw.
type Page struct {
	ID         string
	NotebookID string
	Title      string
	Folder     string
	Owner      string
	CreatedAt  string
	ModifiedAt string
}

// Entry is a single entry on a page. Content carries the upstream payload
// as-is; attachments appear as metadata references only.
type Entry struct {
	ID         string
	PageID     string
	NotebookID string
	Kind       string
	MimeType   string
	Content    string
	Owner      string
	CreatedAt  string
	ModifiedAt string
}
