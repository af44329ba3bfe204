package resources

import (
	"errors"
	"fmt"
	"strings"
)

// Scheme is the URI scheme for ELN resources, matching the upstream product
// identifier.
const Scheme = "eln"

// MaxURILength bounds accepted resource URIs. Anything longer is rejected
// before any upstream call.
const MaxURILength = 2048

// Kind discriminates the resource variants a URI can reference.
type Kind int

const (
	// KindNotebook references a whole notebook.
	KindNotebook Kind = iota
	// KindPage references a page within a notebook.
	KindPage
	// KindEntry references a single entry on a page.
	KindEntry
)

// String returns the kind name for logs and audit records.
func (k Kind) String() string {
	switch k {
	case KindNotebook:
		return "notebook"
	case KindPage:
		return "page"
	case KindEntry:
		return "entry"
	default:
		return "unknown"
	}
}

// URI is a typed reference to an upstream notebook, page, or entry.
// Immutable; construct via Parse or the typed constructors.
type URI struct {
	Kind       Kind
	NotebookID string
	PageID     string
	EntryID    string
}

// NotebookURI references a notebook.
func NotebookURI(notebookID string) URI {
	return URI{Kind: KindNotebook, NotebookID: notebookID}
}

// PageURI references a page.
func PageURI(notebookID, pageID string) URI {
	return URI{Kind: KindPage, NotebookID: notebookID, PageID: pageID}
}

// EntryURI references an entry.
func EntryURI(notebookID, pageID, entryID string) URI {
	return URI{Kind: KindEntry, NotebookID: notebookID, PageID: pageID, EntryID: entryID}
}

// String serializes the URI. Parsing a valid URI and serializing it again
// yields a byte-identical string.
func (u URI) String() string {
	var b strings.Builder
	b.WriteString(Scheme)
	b.WriteString("://notebook/")
	b.WriteString(u.NotebookID)
	if u.Kind == KindPage || u.Kind == KindEntry {
		b.WriteString("/page/")
		b.WriteString(u.PageID)
	}
	if u.Kind == KindEntry {
		b.WriteString("/entry/")
		b.WriteString(u.EntryID)
	}
	return b.String()
}

// ParseError reports a malformed resource URI. The dispatcher maps it to
// the JSON-RPC invalid-params code.
type ParseError struct {
	Reason string
}

// Error returns the error message.
func (e *ParseError) Error() string {
	return "invalid resource URI: " + e.Reason
}

// IsParseError checks whether err is a URI parse error.
func IsParseError(err error) bool {
	var e *ParseError
	return errors.As(err, &e)
}

// Parse validates and decomposes a resource URI string. Accepted grammar:
//
//	eln://notebook/<id>
//	eln://notebook/<id>/page/<id>
//	eln://notebook/<id>/page/<id>/entry/<id>
//
// Identifiers must be non-empty and the total length must not exceed
// MaxURILength.
func Parse(raw string) (URI, error) {
	if len(raw) > MaxURILength {
		return URI{}, &ParseError{Reason: fmt.Sprintf("URI exceeds %d bytes", MaxURILength)}
	}
	prefix := Scheme + "://"
	if !strings.HasPrefix(raw, prefix) {
		return URI{}, &ParseError{Reason: fmt.Sprintf("scheme must be %q", prefix)}
	}
	parts := strings.Split(raw[len(prefix):], "/")
	if len(parts) < 2 || parts[0] != "notebook" || parts[1] == "" {
		return URI{}, &ParseError{Reason: "expected notebook/<id>"}
	}
	switch len(parts) {
	case 2:
		return NotebookURI(parts[1]), nil
	case 4:
		if parts[2] != "page" || parts[3] == "" {
			return URI{}, &ParseError{Reason: "expected page/<id>"}
		}
		return PageURI(parts[1], parts[3]), nil
	case 6:
		if parts[2] != "page" || parts[3] == "" {
			return URI{}, &ParseError{Reason: "expected page/<id>"}
		}
		if parts[4] != "entry" || parts[5] == "" {
			return URI{}, &ParseError{Reason: "expected entry/<id>"}
		}
		return EntryURI(parts[1], parts[3], parts[5]), nil
	default:
		return URI{}, &ParseError{Reason: "unrecognized resource path"}
	}
}
