package mcpserver

import (
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/benchnote/eln-mcp/pkg/auth"
	"github.com/benchnote/eln-mcp/pkg/eln"
	"github.com/benchnote/eln-mcp/pkg/resources"
	"github.com/benchnote/eln-mcp/pkg/scope"
)

// Server-defined JSON-RPC error codes; the standard codes come from the MCP
// SDK.
const (
	// CodeScopeViolation rejects an access outside the configured scope.
	CodeScopeViolation = -32000
	// CodeAuthFailed rejects an operation after a definitive upstream
	// authentication failure.
	CodeAuthFailed = -32001
	// CodeResourceNotFound reports a URI that references nothing.
	CodeResourceNotFound = -32004
	// CodeRateLimited reports upstream rate limiting that outlived the retry
	// budget.
	CodeRateLimited = -32005
	// CodeUpstreamUnavailable reports an upstream outage that outlived retry
	// and failover.
	CodeUpstreamUnavailable = -32006
)

// errorData is the machine-readable payload of every error response. Kind is
// present only for scope violations.
type errorData struct {
	CorrelationID string `json:"correlation_id"`
	Kind          string `json:"kind,omitempty"`
}

// mapError translates a typed error into the wire code, message, and data.
// Messages stay terse and constant per class; detail lives in the audit
// stream, keyed by the correlation ID.
func mapError(err error, corrID string) (int, string, errorData) {
	data := errorData{CorrelationID: corrID}

	if errors.Is(err, errMethodNotFound) {
		return mcp.METHOD_NOT_FOUND, "Method not found", data
	}
	if v, ok := scope.AsViolation(err); ok {
		data.Kind = string(v.Kind)
		return CodeScopeViolation, "ScopeViolation", data
	}
	if resources.IsParseError(err) {
		return mcp.INVALID_PARAMS, err.Error(), data
	}
	if auth.IsAuthenticationError(err) || eln.IsUnauthorized(err) || eln.IsForbidden(err) {
		return CodeAuthFailed, "Authentication failed", data
	}
	if resources.IsNotFound(err) {
		return CodeResourceNotFound, "Resource not found", data
	}
	if eln.IsRateLimited(err) {
		return CodeRateLimited, "Rate limited", data
	}
	if eln.IsUnavailable(err) {
		return CodeUpstreamUnavailable, "Upstream unavailable", data
	}
	return mcp.INTERNAL_ERROR, "Internal error", data
}

// isUpstreamFailure reports whether err represents the upstream API failing,
// as opposed to policy denials and caller mistakes. These get their own audit
// event.
func isUpstreamFailure(err error) bool {
	switch eln.KindOf(err) {
	case eln.KindRateLimited, eln.KindUnavailable, eln.KindBadResponse:
		return true
	default:
		return false
	}
}
