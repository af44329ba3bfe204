// Package config assembles and validates the immutable process configuration.
// Flag and environment binding happens in the command layer; this package
// only sees the bound values and decides whether they form a runnable
// configuration. None of its error messages ever include credential values.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/benchnote/eln-mcp/pkg/audit"
	"github.com/benchnote/eln-mcp/pkg/auth"
	"github.com/benchnote/eln-mcp/pkg/eln"
	"github.com/benchnote/eln-mcp/pkg/folderpath"
	"github.com/benchnote/eln-mcp/pkg/scope"
)

// Config is the validated, immutable configuration the server runs with.
type Config struct {
	Auth   auth.Config
	Scope  scope.Scope
	HTTP   eln.ClientConfig
	Audit  audit.Options
	JSONLD bool
	Debug  bool
}

// Raw holds the values as bound from flags and environment, before
// validation.
type Raw struct {
	AuthMode       string
	AccessKeyID    string
	AccessPassword string
	Username       string

	BaseURL    string
	BackupURLs []string
	Timeout    time.Duration
	MaxRetries int

	NotebookID   string
	NotebookName string
	FolderPath   string
	folderSet    bool

	AuditFile   string
	AuditStrict bool
	JSONLD      bool
	Debug       bool
}

// SetFolderPath records the folder scope. The set flag distinguishes an
// explicit empty value, which scopes to the root folder, from an absent flag.
func (r *Raw) SetFolderPath(p string, set bool) {
	r.FolderPath = p
	r.folderSet = set
}

// Build validates r and produces the immutable configuration. Any error here
// is a configuration error and maps to the configuration exit code.
func (r Raw) Build() (Config, error) {
	authCfg := auth.Config{
		Mode:           eln.AuthMode(r.AuthMode),
		AccessKeyID:    r.AccessKeyID,
		AccessPassword: r.AccessPassword,
		Username:       r.Username,
	}
	if authCfg.Mode == "" {
		authCfg.Mode = eln.AuthModeAPIKey
	}
	if err := authCfg.Validate(); err != nil {
		return Config{}, err
	}

	if r.BaseURL == "" {
		return Config{}, errors.New("API base URL is required")
	}
	for _, raw := range append([]string{r.BaseURL}, r.BackupURLs...) {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return Config{}, fmt.Errorf("invalid API URL %q", raw)
		}
	}
	if r.MaxRetries < 0 {
		return Config{}, errors.New("max retries must not be negative")
	}
	if r.Timeout < 0 {
		return Config{}, errors.New("timeout must not be negative")
	}

	sc, err := r.buildScope()
	if err != nil {
		return Config{}, err
	}

	return Config{
		Auth:  authCfg,
		Scope: sc,
		HTTP: eln.ClientConfig{
			BaseURL:    r.BaseURL,
			BackupURLs: r.BackupURLs,
			Timeout:    r.Timeout,
			MaxRetries: r.MaxRetries,
		},
		Audit: audit.Options{
			FilePath: r.AuditFile,
			Strict:   r.AuditStrict,
		},
		JSONLD: r.JSONLD,
		Debug:  r.Debug,
	}, nil
}

// buildScope enforces that at most one scope restriction is configured.
func (r Raw) buildScope() (scope.Scope, error) {
	set := 0
	if r.NotebookID != "" {
		set++
	}
	if r.NotebookName != "" {
		set++
	}
	if r.folderSet {
		set++
	}
	if set > 1 {
		return scope.Scope{}, errors.New(
			"notebook-id, notebook-name and folder-path are mutually exclusive")
	}

	switch {
	case r.NotebookID != "":
		return scope.ByNotebookID(r.NotebookID), nil
	case r.NotebookName != "":
		return scope.ByNotebookName(r.NotebookName), nil
	case r.folderSet:
		return scope.ByFolderPath(folderpath.FromRaw(r.FolderPath)), nil
	default:
		return scope.Unscoped(), nil
	}
}
