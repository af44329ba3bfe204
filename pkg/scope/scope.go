// Package scope defines the process-wide authorization boundary and the
// fail-secure checks applied to every resource access. A scope restricts
// visibility to a single notebook (by ID or exact name) or to a folder
// subtree; at most one restriction can exist, which the Scope type makes
// unrepresentable rather than merely validated.
package scope

import (
	"github.com/benchnote/eln-mcp/pkg/folderpath"
)

// Mode discriminates the scope variants.
type Mode int

const (
	// ModeUnscoped places no restriction on resource access.
	ModeUnscoped Mode = iota
	// ModeNotebookID restricts access to one notebook by ID.
	ModeNotebookID
	// ModeNotebookName restricts access to one notebook by exact name.
	ModeNotebookName
	// ModeFolderPath restricts access to pages under a folder subtree.
	ModeFolderPath
)

// Scope is the immutable authorization boundary. The zero value is unscoped.
type Scope struct {
	mode         Mode
	notebookID   string
	notebookName string
	folder       folderpath.FolderPath
}

// Unscoped returns a scope that allows everything.
func Unscoped() Scope {
	return Scope{}
}

// ByNotebookID returns a scope restricted to the given notebook ID.
func ByNotebookID(id string) Scope {
	return Scope{mode: ModeNotebookID, notebookID: id}
}

// ByNotebookName returns a scope restricted to the notebook with the given
// exact name. The name is resolved to an ID on first use by the resource
// manager.
func ByNotebookName(name string) Scope {
	return Scope{mode: ModeNotebookName, notebookName: name}
}

// ByFolderPath returns a scope restricted to pages whose folder lies under
// the given path. The root path includes pages with no folder assignment.
func ByFolderPath(fp folderpath.FolderPath) Scope {
	return Scope{mode: ModeFolderPath, folder: fp}
}

// Mode returns the scope variant.
func (s Scope) Mode() Mode { return s.mode }

// IsUnscoped reports whether the scope allows everything.
func (s Scope) IsUnscoped() bool { return s.mode == ModeUnscoped }

// NotebookID returns the configured notebook ID (ModeNotebookID only).
func (s Scope) NotebookID() string { return s.notebookID }

// NotebookName returns the configured notebook name (ModeNotebookName only).
func (s Scope) NotebookName() string { return s.notebookName }

// Folder returns the configured folder path (ModeFolderPath only).
func (s Scope) Folder() folderpath.FolderPath { return s.folder }

// String renders the scope for logs and audit context. It never contains
// secrets.
func (s Scope) String() string {
	switch s.mode {
	case ModeNotebookID:
		return "notebook-id:" + s.notebookID
	case ModeNotebookName:
		return "notebook-name:" + s.notebookName
	case ModeFolderPath:
		return "folder:/" + s.folder.String()
	default:
		return "unscoped"
	}
}
