// Package resources lists and reads ELN resources over the eln:// URI scheme.
// The manager is the single choke point between the protocol layer and the
// upstream API: every read passes, in order, URI parsing, session freshness,
// parent-entity resolution, scope validation, and only then content fetch.
// Listings never reveal resources the scope would refuse to serve.
package resources

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/benchnote/eln-mcp/pkg/audit"
	"github.com/benchnote/eln-mcp/pkg/auth"
	"github.com/benchnote/eln-mcp/pkg/eln"
	"github.com/benchnote/eln-mcp/pkg/folderpath"
	"github.com/benchnote/eln-mcp/pkg/logger"
	"github.com/benchnote/eln-mcp/pkg/scope"
)

// NotFoundError marks a URI that parsed correctly but references nothing the
// upstream (or the caller's view of it) contains.
type NotFoundError struct {
	URI string
}

// Error returns the error message.
func (e *NotFoundError) Error() string {
	return "resource not found: " + e.URI
}

// IsNotFound checks whether err is a missing-resource error, either detected
// locally or reported by the upstream.
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e) || eln.IsNotFound(err)
}

// ScopeConfigError marks a scope configuration that cannot be resolved
// against the upstream, such as a notebook name matching more than one
// notebook. It is an operator error, not a client error.
type ScopeConfigError struct {
	Detail string
}

// Error returns the error message.
func (e *ScopeConfigError) Error() string {
	return "scope configuration error: " + e.Detail
}

// IsScopeConfigError checks whether err is a scope configuration error.
func IsScopeConfigError(err error) bool {
	var e *ScopeConfigError
	return errors.As(err, &e)
}

// Options tunes optional manager behavior.
type Options struct {
	// JSONLD attaches a JSON-LD context to read contents.
	JSONLD bool
}

// Manager implements resources/list and resources/read against the upstream
// API under the configured scope.
type Manager struct {
	client  *eln.Client
	auth    *auth.Manager
	scope   scope.Scope
	emitter *audit.Emitter
	jsonLD  bool

	// Name-scope resolution is performed once and memoized; an ambiguous
	// match is sticky because rereading the notebook list cannot repair a
	// misconfiguration.
	mu         sync.Mutex
	resolved   bool
	resolvedID string
	resolveErr error
}

// NewManager builds a resource manager bound to one scope for the process
// lifetime.
func NewManager(client *eln.Client, authMgr *auth.Manager, sc scope.Scope, emitter *audit.Emitter, opts Options) *Manager {
	return &Manager{
		client:  client,
		auth:    authMgr,
		scope:   sc,
		emitter: emitter,
		jsonLD:  opts.JSONLD,
	}
}

// List enumerates the resources visible under the scope. Unscoped and
// folder-scoped servers expose notebooks and pages respectively; notebook
// scopes expose the pages of the one configured notebook.
func (m *Manager) List(ctx context.Context) ([]mcp.Resource, error) {
	sess, err := m.auth.EnsureAuthenticated(ctx)
	if err != nil {
		return nil, err
	}

	out, note, err := m.listForScope(ctx, sess.UserID)
	if err != nil {
		m.emitter.Emit(audit.New(ctx, audit.EventResourceList, audit.OutcomeError).
			WithUser(sess.UserID).
			WithErrorKind(string(eln.KindOf(err))))
		return nil, err
	}

	msg := fmt.Sprintf("listed %d resources under scope %s", len(out), m.scope)
	if note != "" {
		msg += "; " + note
	}
	m.emitter.Emit(audit.New(ctx, audit.EventResourceList, audit.OutcomeOK).
		WithUser(sess.UserID).
		WithMessage(msg))
	return out, nil
}

// listForScope returns the scoped listing plus an optional note for the
// listing's audit record.
func (m *Manager) listForScope(ctx context.Context, userID string) ([]mcp.Resource, string, error) {
	switch m.scope.Mode() {
	case scope.ModeUnscoped:
		out, err := m.listNotebooks(ctx, userID)
		return out, "", err
	case scope.ModeNotebookID:
		out, err := m.listPages(ctx, userID, m.scope.NotebookID())
		return out, "", err
	case scope.ModeNotebookName:
		id, err := m.resolveScopeID(ctx, userID)
		if err != nil {
			return nil, "", err
		}
		if id == "" {
			// The configured name matched nothing. An empty listing is the
			// honest answer; reads stay fail-secure regardless. The audit
			// trail carries the mismatch, not just the process log.
			logger.Warnw("configured notebook name matched no notebook",
				"scope", m.scope.String())
			note := fmt.Sprintf("notebook name %q matched no notebooks", m.scope.NotebookName())
			return []mcp.Resource{}, note, nil
		}
		out, err := m.listPages(ctx, userID, id)
		return out, "", err
	case scope.ModeFolderPath:
		out, err := m.listFolderScoped(ctx, userID)
		return out, "", err
	default:
		return nil, "", &ScopeConfigError{Detail: "unknown scope mode"}
	}
}

func (m *Manager) listNotebooks(ctx context.Context, userID string) ([]mcp.Resource, error) {
	notebooks, err := m.client.ListNotebooks(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]mcp.Resource, 0, len(notebooks))
	for _, nb := range notebooks {
		out = append(out, notebookResource(nb))
	}
	return out, nil
}

func (m *Manager) listPages(ctx context.Context, userID, notebookID string) ([]mcp.Resource, error) {
	pages, err := m.client.ListPages(ctx, userID, notebookID)
	if err != nil {
		return nil, err
	}
	out := make([]mcp.Resource, 0, len(pages))
	for _, p := range pages {
		out = append(out, pageResource(notebookID, p))
	}
	return out, nil
}

// listFolderScoped runs the two-phase folder listing: enumerate notebooks,
// then pages per notebook, keeping only pages under the scope folder. A
// notebook with no in-scope pages is omitted entirely rather than shown
// empty.
func (m *Manager) listFolderScoped(ctx context.Context, userID string) ([]mcp.Resource, error) {
	notebooks, err := m.client.ListNotebooks(ctx, userID)
	if err != nil {
		return nil, err
	}
	inScope := m.scope.PageFilter()

	var out []mcp.Resource
	for _, nb := range notebooks {
		pages, err := m.client.ListPages(ctx, userID, nb.ID)
		if err != nil {
			return nil, err
		}
		var kept []eln.Page
		for _, p := range pages {
			if inScope(folderpath.FromRaw(p.Folder)) {
				kept = append(kept, p)
			}
		}
		if len(kept) == 0 {
			continue
		}
		for _, p := range kept {
			out = append(out, pageResource(nb.ID, p))
		}
	}
	if out == nil {
		out = []mcp.Resource{}
	}
	return out, nil
}

// Read fetches the content of one resource. The check order is load-bearing:
// parse, authenticate, resolve parents upstream, validate scope, and only
// then fetch content.
func (m *Manager) Read(ctx context.Context, rawURI string) (*Content, error) {
	uri, err := Parse(rawURI)
	if err != nil {
		return nil, err
	}

	sess, err := m.auth.EnsureAuthenticated(ctx)
	if err != nil {
		return nil, err
	}

	resolvedID := ""
	if m.scope.Mode() == scope.ModeNotebookName {
		resolvedID, err = m.resolveScopeID(ctx, sess.UserID)
		if err != nil {
			return nil, err
		}
	}

	var content *Content
	switch uri.Kind {
	case KindNotebook:
		content, err = m.readNotebook(ctx, sess.UserID, uri, resolvedID)
	case KindPage:
		content, err = m.readPage(ctx, sess.UserID, uri, resolvedID)
	case KindEntry:
		content, err = m.readEntry(ctx, sess.UserID, uri, resolvedID)
	default:
		err = &ParseError{Reason: "unrecognized resource kind"}
	}
	if err != nil {
		m.auditReadFailure(ctx, sess.UserID, uri, err)
		return nil, err
	}

	m.emitter.Emit(audit.New(ctx, audit.EventResourceRead, audit.OutcomeOK).
		WithUser(sess.UserID).
		WithResource(uri.String()))
	return content, nil
}

func (m *Manager) auditReadFailure(ctx context.Context, userID string, uri URI, err error) {
	if v, ok := scope.AsViolation(err); ok {
		m.emitter.Emit(audit.New(ctx, audit.EventScopeViolation, audit.OutcomeDenied).
			WithUser(userID).
			WithResource(uri.String()).
			WithErrorKind(string(v.Kind)).
			WithMessage(v.Detail))
		return
	}
	kind := string(eln.KindOf(err))
	if IsNotFound(err) {
		kind = string(eln.KindNotFound)
	}
	m.emitter.Emit(audit.New(ctx, audit.EventResourceRead, audit.OutcomeError).
		WithUser(userID).
		WithResource(uri.String()).
		WithErrorKind(kind))
}

func (m *Manager) readNotebook(ctx context.Context, userID string, uri URI, resolvedID string) (*Content, error) {
	nb, err := m.findNotebook(ctx, userID, uri)
	if err != nil {
		return nil, err
	}

	// Under a folder scope the notebook must prove it holds at least one
	// in-scope page before it is readable.
	pages, err := m.client.ListPages(ctx, userID, nb.ID)
	if err != nil {
		return nil, err
	}
	inScope := m.scope.PageFilter()
	var kept []eln.Page
	for _, p := range pages {
		if inScope(folderpath.FromRaw(p.Folder)) {
			kept = append(kept, p)
		}
	}

	if err := m.scope.ValidateNotebookRead(uri.String(), nb.ID, resolvedID, len(kept) > 0); err != nil {
		return nil, err
	}
	return notebookContent(uri, nb, kept, m.jsonLD)
}

func (m *Manager) readPage(ctx context.Context, userID string, uri URI, resolvedID string) (*Content, error) {
	nb, err := m.findNotebook(ctx, userID, uri)
	if err != nil {
		return nil, err
	}
	page, err := m.findPage(ctx, userID, uri)
	if err != nil {
		return nil, err
	}

	folder := folderpath.FromRaw(page.Folder)
	if err := m.scope.ValidatePageRead(uri.String(), uri.NotebookID, resolvedID, folder); err != nil {
		return nil, err
	}

	entries, err := m.client.GetEntries(ctx, userID, page.ID)
	if err != nil {
		return nil, err
	}
	return pageContent(uri, nb.Name, page, entries, m.jsonLD)
}

func (m *Manager) readEntry(ctx context.Context, userID string, uri URI, resolvedID string) (*Content, error) {
	nb, err := m.findNotebook(ctx, userID, uri)
	if err != nil {
		return nil, err
	}
	page, err := m.findPage(ctx, userID, uri)
	if err != nil {
		return nil, err
	}

	pageNotebookID := page.NotebookID
	if pageNotebookID == "" {
		pageNotebookID = uri.NotebookID
	}
	folder := folderpath.FromRaw(page.Folder)
	if err := m.scope.ValidateEntryRead(uri.String(), uri.NotebookID, resolvedID, folder, pageNotebookID); err != nil {
		return nil, err
	}

	entries, err := m.client.GetEntries(ctx, userID, page.ID)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.ID == uri.EntryID {
			return entryContent(uri, nb.Name, page, e, m.jsonLD), nil
		}
	}
	return nil, &NotFoundError{URI: uri.String()}
}

// findNotebook resolves the URI's notebook against the user's notebook list.
func (m *Manager) findNotebook(ctx context.Context, userID string, uri URI) (eln.Notebook, error) {
	notebooks, err := m.client.ListNotebooks(ctx, userID)
	if err != nil {
		return eln.Notebook{}, err
	}
	for _, nb := range notebooks {
		if nb.ID == uri.NotebookID {
			return nb, nil
		}
	}
	return eln.Notebook{}, &NotFoundError{URI: uri.String()}
}

// findPage resolves the URI's page within its notebook. A page whose stored
// notebook no longer matches the URI has moved; the stale URI reads as
// missing, not as a hint about its new location.
func (m *Manager) findPage(ctx context.Context, userID string, uri URI) (eln.Page, error) {
	pages, err := m.client.ListPages(ctx, userID, uri.NotebookID)
	if err != nil {
		return eln.Page{}, err
	}
	for _, p := range pages {
		if p.ID != uri.PageID {
			continue
		}
		if p.NotebookID != "" && p.NotebookID != uri.NotebookID && uri.Kind == KindPage {
			return eln.Page{}, &NotFoundError{URI: uri.String()}
		}
		return p, nil
	}
	return eln.Page{}, &NotFoundError{URI: uri.String()}
}

// resolveScopeID maps the configured notebook name to an ID. Exactly one
// exact-name match resolves; zero matches resolve to "" (every read then
// fails secure); multiple matches are a sticky configuration error.
func (m *Manager) resolveScopeID(ctx context.Context, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.resolved {
		return m.resolvedID, m.resolveErr
	}

	notebooks, err := m.client.ListNotebooks(ctx, userID)
	if err != nil {
		// Transient failure: leave the resolution open for the next call.
		return "", err
	}

	name := m.scope.NotebookName()
	var matches []string
	for _, nb := range notebooks {
		if nb.Name == name {
			matches = append(matches, nb.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", nil
	case 1:
		m.resolved = true
		m.resolvedID = matches[0]
		logger.Debugw("resolved notebook-name scope", "notebook_id", m.resolvedID)
		return m.resolvedID, nil
	default:
		m.resolved = true
		m.resolveErr = &ScopeConfigError{
			Detail: fmt.Sprintf("notebook name %q matches %d notebooks", name, len(matches)),
		}
		return "", m.resolveErr
	}
}

func notebookResource(nb eln.Notebook) mcp.Resource {
	desc := "ELN notebook"
	if nb.Owner != "" {
		desc += " owned by " + nb.Owner
	}
	return mcp.Resource{
		URI:         NotebookURI(nb.ID).String(),
		Name:        nb.Name,
		Description: desc,
		MIMEType:    mimeJSON,
	}
}

func pageResource(notebookID string, p eln.Page) mcp.Resource {
	desc := "Page in notebook " + notebookID
	if p.Folder != "" {
		desc += ", folder " + p.Folder
	}
	return mcp.Resource{
		URI:         PageURI(notebookID, p.ID).String(),
		Name:        p.Title,
		Description: desc,
		MIMEType:    mimeJSON,
	}
}
