package scope

import (
	"fmt"

	"github.com/benchnote/eln-mcp/pkg/folderpath"
)

// PageFilter returns the predicate used during listing to decide whether a
// page's folder is in scope. Under any mode other than ModeFolderPath every
// page passes; notebook-level restriction happens before pages are listed.
func (s Scope) PageFilter() func(folderpath.FolderPath) bool {
	if s.mode != ModeFolderPath {
		return func(folderpath.FolderPath) bool { return true }
	}
	folder := s.folder
	return func(page folderpath.FolderPath) bool {
		return folder.IsParentOf(page)
	}
}

// ValidateNotebookRead decides access to a notebook URI.
//
// resolvedScopeID carries the notebook ID the configured name resolved to
// (ModeNotebookName only). hasInScopePage is the evidence, supplied by the
// resource manager, that at least one page of the notebook lies under the
// configured folder (ModeFolderPath only); without that evidence access is
// denied — an empty notebook cannot prove itself in scope.
func (s Scope) ValidateNotebookRead(uri, notebookID, resolvedScopeID string, hasInScopePage bool) error {
	switch s.mode {
	case ModeUnscoped:
		return nil
	case ModeNotebookID, ModeNotebookName:
		return s.checkConfiguredNotebook(uri, notebookID, resolvedScopeID)
	case ModeFolderPath:
		if !hasInScopePage {
			return &Violation{
				Kind:   KindNotebookOutsideFolderScope,
				URI:    uri,
				Detail: fmt.Sprintf("notebook %s has no pages under folder %q", notebookID, s.folder.String()),
			}
		}
		return nil
	default:
		return &Violation{Kind: KindNotebookOutsideFolderScope, URI: uri, Detail: "unknown scope mode"}
	}
}

// ValidatePageRead decides access to a page URI given the page's stored
// folder path.
func (s Scope) ValidatePageRead(uri, notebookID, resolvedScopeID string, pageFolder folderpath.FolderPath) error {
	switch s.mode {
	case ModeUnscoped:
		return nil
	case ModeNotebookID, ModeNotebookName:
		return s.checkConfiguredNotebook(uri, notebookID, resolvedScopeID)
	case ModeFolderPath:
		if !s.folder.IsParentOf(pageFolder) {
			return &Violation{
				Kind:   KindPageOutsideFolderScope,
				URI:    uri,
				Detail: fmt.Sprintf("page folder %q is not under scope folder %q", pageFolder.String(), s.folder.String()),
			}
		}
		return nil
	default:
		return &Violation{Kind: KindPageOutsideFolderScope, URI: uri, Detail: "unknown scope mode"}
	}
}

// ValidateEntryRead decides access to an entry URI. The entry's parent page
// must itself be in scope, and the URI's notebook must match the notebook the
// page actually belongs to; the latter closes off cross-notebook entry-ID
// guessing.
func (s Scope) ValidateEntryRead(
	uri, notebookID, resolvedScopeID string,
	pageFolder folderpath.FolderPath,
	pageNotebookID string,
) error {
	if notebookID != pageNotebookID {
		return &Violation{
			Kind:   KindEntryOutsideNotebookScope,
			URI:    uri,
			Detail: fmt.Sprintf("entry notebook %s does not match parent page notebook %s", notebookID, pageNotebookID),
		}
	}
	return s.ValidatePageRead(uri, notebookID, resolvedScopeID, pageFolder)
}

func (s Scope) checkConfiguredNotebook(uri, notebookID, resolvedScopeID string) error {
	target := s.notebookID
	if s.mode == ModeNotebookName {
		target = resolvedScopeID
	}
	// Fail secure: an unresolved target denies everything.
	if target == "" || notebookID != target {
		return &Violation{
			Kind:   KindNotebookOutsideConfiguredNotebook,
			URI:    uri,
			Detail: fmt.Sprintf("notebook %s is outside the configured notebook scope %s", notebookID, s.String()),
		}
	}
	return nil
}
