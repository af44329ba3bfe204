package app

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/benchnote/eln-mcp/pkg/audit"
	"github.com/benchnote/eln-mcp/pkg/auth"
	"github.com/benchnote/eln-mcp/pkg/config"
	"github.com/benchnote/eln-mcp/pkg/eln"
	"github.com/benchnote/eln-mcp/pkg/logger"
	"github.com/benchnote/eln-mcp/pkg/mcpserver"
	"github.com/benchnote/eln-mcp/pkg/resources"
	"github.com/benchnote/eln-mcp/pkg/versions"
)

// shutdownGrace bounds how long a request already being handled may keep
// running after a termination signal.
const shutdownGrace = 30 * time.Second

// Process exit codes.
const (
	// ExitOK is a graceful shutdown.
	ExitOK = 0
	// ExitConfig is an invalid configuration.
	ExitConfig = 1
	// ExitStartupAuth is a definitive authentication failure at startup.
	ExitStartupAuth = 2
	// ExitRuntime is an unrecoverable runtime failure.
	ExitRuntime = 3
	// ExitInterrupt is termination by signal.
	ExitInterrupt = 130
)

// ExitError carries the process exit code alongside the cause.
type ExitError struct {
	Code int
	Err  error
}

// Error returns the error message.
func (e *ExitError) Error() string {
	return fmt.Sprintf("exit %d: %v", e.Code, e.Err)
}

// Unwrap returns the underlying error.
func (e *ExitError) Unwrap() error {
	return e.Err
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		logger.Errorf("invalid configuration: %v", err)
		return &ExitError{Code: ExitConfig, Err: err}
	}

	emitter, err := audit.NewEmitter(cfg.Audit)
	if err != nil {
		logger.Errorf("opening audit sink: %v", err)
		return &ExitError{Code: ExitConfig, Err: err}
	}
	defer func() {
		if cerr := emitter.Close(5 * time.Second); cerr != nil {
			logger.Warnf("closing audit emitter: %v", cerr)
		}
	}()

	client := eln.NewClient(cfg.HTTP)
	defer client.Close()

	mgr, err := auth.NewManager(cfg.Auth, client, emitter)
	if err != nil {
		logger.Errorf("invalid configuration: %v", err)
		return &ExitError{Code: ExitConfig, Err: err}
	}
	client.SetCredentialProvider(mgr)

	ctx := cmd.Context()
	startCtx := audit.WithCorrelationID(ctx, uuid.NewString())
	emitter.Emit(audit.New(startCtx, audit.EventProcessStart, audit.OutcomeOK).
		WithMessage("scope " + cfg.Scope.String()))

	// Authenticate before accepting any request so credential problems
	// surface as a startup failure instead of per-request errors.
	if _, err := mgr.EnsureAuthenticated(startCtx); err != nil {
		emitter.Emit(audit.New(startCtx, audit.EventProcessStop, audit.OutcomeError).
			WithMessage("startup authentication failed"))
		logger.Errorf("startup authentication failed: %v", err)
		if auth.IsAuthenticationError(err) {
			return &ExitError{Code: ExitStartupAuth, Err: err}
		}
		return &ExitError{Code: ExitRuntime, Err: err}
	}

	resMgr := resources.NewManager(client, mgr, cfg.Scope, emitter,
		resources.Options{JSONLD: cfg.JSONLD})
	info := versions.GetVersionInfo()
	dispatcher := mcpserver.New(resMgr, emitter, os.Stdin, os.Stdout, "eln-mcp", info.Version)

	logger.Infow("serving MCP over stdio",
		"version", info.Version, "scope", cfg.Scope.String(), "user_id", mgr.UserID())

	// The dispatcher blocks on stdin; a signal cancels ctx while the read is
	// still pending, so shutdown races the loop in a goroutine.
	done := make(chan error, 1)
	go func() { done <- dispatcher.Run(ctx) }()

	finished := false
	select {
	case err = <-done:
		finished = true
	case <-ctx.Done():
	}

	if ctx.Err() != nil {
		// Intake stopped; a request already being handled gets shutdownGrace
		// to finish before the process exits anyway.
		if !finished {
			select {
			case <-done:
			case <-time.After(shutdownGrace):
				logger.Warnf("in-flight request still running after %s, exiting", shutdownGrace)
			}
		}
		emitter.Emit(audit.New(startCtx, audit.EventProcessStop, audit.OutcomeOK).
			WithMessage("interrupted by signal"))
		logger.Info("interrupted, shutting down")
		return &ExitError{Code: ExitInterrupt, Err: ctx.Err()}
	}

	if err != nil {
		emitter.Emit(audit.New(startCtx, audit.EventProcessStop, audit.OutcomeError).
			WithMessage("serve loop failed"))
		logger.Errorf("serve loop failed: %v", err)
		return &ExitError{Code: ExitRuntime, Err: err}
	}

	emitter.Emit(audit.New(startCtx, audit.EventProcessStop, audit.OutcomeOK))
	logger.Info("shut down gracefully")
	return nil
}

// loadConfig reads the bound flag and environment values into the immutable
// configuration. Flags win over environment variables.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	raw := config.Raw{
		AuthMode:       viper.GetString("auth-mode"),
		AccessKeyID:    viper.GetString("access-key-id"),
		AccessPassword: viper.GetString("access-password"),
		Username:       viper.GetString("username"),
		BaseURL:        viper.GetString("api-base-url"),
		BackupURLs:     viper.GetStringSlice("backup-url"),
		Timeout:        viper.GetDuration("timeout"),
		MaxRetries:     viper.GetInt("max-retries"),
		NotebookID:     viper.GetString("notebook-id"),
		NotebookName:   viper.GetString("notebook-name"),
		AuditFile:      viper.GetString("audit-file"),
		AuditStrict:    viper.GetBool("audit-strict"),
		JSONLD:         viper.GetBool("json-ld"),
		Debug:          viper.GetBool("debug"),
	}
	folder := viper.GetString("folder-path")
	raw.SetFolderPath(folder, folder != "" || cmd.Flags().Changed("folder-path"))
	return raw.Build()
}
