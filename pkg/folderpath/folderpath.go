// Package folderpath provides a normalized, immutable folder-path value type
// used for scope comparisons. Paths are ordered component sequences; parent
// checks match whole components only, never substrings.
package folderpath

import "strings"

// FolderPath is an ordered sequence of folder name components. The zero value
// is the root path. Values are immutable after construction.
type FolderPath struct {
	components []string
}

// FromRaw normalizes a raw folder-path string into a FolderPath. The input is
// split on "/" and empty components are discarded, so "", "/", "//" and
// "A//B/" all normalize the same way. This is a total function; every string
// maps to some FolderPath.
func FromRaw(s string) FolderPath {
	parts := strings.Split(s, "/")
	components := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			components = append(components, p)
		}
	}
	if len(components) == 0 {
		return FolderPath{}
	}
	return FolderPath{components: components}
}

// IsRoot reports whether the path has no components. The root path represents
// both the top-level folder and resources with no folder assignment.
func (f FolderPath) IsRoot() bool {
	return len(f.components) == 0
}

// Components returns a copy of the component sequence.
func (f FolderPath) Components() []string {
	out := make([]string, len(f.components))
	copy(out, f.components)
	return out
}

// Depth returns the number of components.
func (f FolderPath) Depth() int {
	return len(f.components)
}

// IsParentOf reports whether f's components are an equal or proper prefix of
// other's, compared component-wise and case-sensitively. "Chem" is not a
// parent of "Chemistry"; the root path is a parent of everything, including
// itself.
func (f FolderPath) IsParentOf(other FolderPath) bool {
	if len(f.components) > len(other.components) {
		return false
	}
	for i, c := range f.components {
		if other.components[i] != c {
			return false
		}
	}
	return true
}

// Equals reports component-wise equality.
func (f FolderPath) Equals(other FolderPath) bool {
	if len(f.components) != len(other.components) {
		return false
	}
	for i, c := range f.components {
		if other.components[i] != c {
			return false
		}
	}
	return true
}

// String returns the slash-joined display form. The root path renders as "".
func (f FolderPath) String() string {
	return strings.Join(f.components, "/")
}
