// Package audit produces the structured audit stream: one JSON record per
// security-relevant action (authentication, resource access, scope
// violations, upstream errors, process lifecycle). Events are built
// synchronously on the request path and written out asynchronously by a
// bounded emitter; the wire response never waits on audit I/O.
package audit

import (
	"context"
	"time"
)

// Event types.
const (
	// EventAuthSuccess records a successful authentication.
	EventAuthSuccess = "auth.success"
	// EventAuthFailure records a failed authentication.
	EventAuthFailure = "auth.failure"
	// EventAuthRefresh records a proactive or reactive session refresh.
	EventAuthRefresh = "auth.refresh"
	// EventResourceList records a resources/list operation.
	EventResourceList = "resource.list"
	// EventResourceRead records a resources/read operation.
	EventResourceRead = "resource.read"
	// EventScopeViolation records a denied access. Never dropped silently.
	EventScopeViolation = "scope.violation"
	// EventUpstreamError records an upstream API failure.
	EventUpstreamError = "upstream.error"
	// EventProcessStart records process startup.
	EventProcessStart = "process.start"
	// EventProcessStop records process shutdown.
	EventProcessStop = "process.stop"
)

// Outcomes.
const (
	// OutcomeOK marks a successful operation.
	OutcomeOK = "ok"
	// OutcomeDenied marks an operation rejected by policy.
	OutcomeDenied = "denied"
	// OutcomeError marks an operation that failed.
	OutcomeError = "error"
)

// Event is a single record in the audit stream. It never contains raw
// credentials, tokens, or signature bytes; the emitter passes every free-form
// string field through the sanitizer before write-out.
type Event struct {
	TS          time.Time `json:"ts"`
	CorrID      string    `json:"corr_id"`
	Event       string    `json:"event"`
	Outcome     string    `json:"outcome"`
	UserID      string    `json:"user_id,omitempty"`
	ResourceURI string    `json:"resource_uri,omitempty"`
	ErrorKind   string    `json:"error_kind,omitempty"`
	Message     string    `json:"message,omitempty"`
}

// New returns an Event stamped with the current UTC time and the correlation
// ID carried by ctx.
func New(ctx context.Context, event, outcome string) Event {
	return Event{
		TS:      time.Now().UTC(),
		CorrID:  CorrelationID(ctx),
		Event:   event,
		Outcome: outcome,
	}
}

// WithUser sets the authenticated user ID. Only set after successful
// authentication.
func (e Event) WithUser(userID string) Event {
	e.UserID = userID
	return e
}

// WithResource sets the resource URI the event refers to.
func (e Event) WithResource(uri string) Event {
	e.ResourceURI = uri
	return e
}

// WithErrorKind sets the stable error kind for failed or denied operations.
func (e Event) WithErrorKind(kind string) Event {
	e.ErrorKind = kind
	return e
}

// WithMessage sets the human-readable detail.
func (e Event) WithMessage(msg string) Event {
	e.Message = msg
	return e
}

type corrIDKey struct{}

// WithCorrelationID binds a request correlation ID to ctx. The dispatcher
// creates one per JSON-RPC request; the startup phase uses its own.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrIDKey{}, id)
}

// CorrelationID returns the correlation ID bound to ctx, or "" if none.
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(corrIDKey{}).(string); ok {
		return id
	}
	return ""
}
