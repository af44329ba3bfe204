package scope

import "errors"

// ViolationKind is the machine-readable refinement of a scope violation. The
// kind travels in the wire error's data field and in the audit record; the
// wire message itself stays the constant "ScopeViolation".
type ViolationKind string

const (
	// KindNotebookOutsideFolderScope denies a notebook with no in-scope pages.
	KindNotebookOutsideFolderScope ViolationKind = "NotebookOutsideFolderScope"
	// KindPageOutsideFolderScope denies a page outside the folder subtree.
	KindPageOutsideFolderScope ViolationKind = "PageOutsideFolderScope"
	// KindEntryOutsideNotebookScope denies an entry whose notebook does not
	// match its parent page's notebook.
	KindEntryOutsideNotebookScope ViolationKind = "EntryOutsideNotebookScope"
	// KindNotebookOutsideConfiguredNotebook denies access to any notebook
	// other than the configured one.
	KindNotebookOutsideConfiguredNotebook ViolationKind = "NotebookOutsideConfiguredNotebook"
)

// Violation is the typed error for a denied access. Its Error text is the
// conservative wire message; Detail carries the full context for the audit
// trail only.
type Violation struct {
	Kind   ViolationKind
	URI    string
	Detail string
}

// Error returns the minimal wire-safe message.
func (*Violation) Error() string {
	return "ScopeViolation"
}

// AsViolation unwraps err into a *Violation if it is one.
func AsViolation(err error) (*Violation, bool) {
	var v *Violation
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}
