// Package scope holds the permission-string set carried by caller tokens.
package scope

import (
	"slices"
	"strings"
)

// Set is an immutable set of scope strings. Membership is exact and
// case-sensitive. The zero value is the empty set.
type Set struct {
	items map[string]struct{}
}

// New builds a Set from the given scopes. Duplicates collapse. Entries are
// kept verbatim, including surrounding whitespace.
func New(scopes ...string) Set {
	if len(scopes) == 0 {
		return Set{}
	}
	items := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		items[s] = struct{}{}
	}
	return Set{items: items}
}

// Has reports whether s is a member of the set.
func (s Set) Has(scope string) bool {
	_, ok := s.items[scope]
	return ok
}

// Len returns the number of distinct scopes.
func (s Set) Len() int {
	return len(s.items)
}

// Sorted returns the members in lexical order. Never nil.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s.items))
	for item := range s.items {
		out = append(out, item)
	}
	slices.Sort(out)
	return out
}

// String renders the set as a space-separated list, matching the OAuth
// "scope" parameter format.
func (s Set) String() string {
	return strings.Join(s.Sorted(), " ")
}

// Equal reports whether both sets hold the same members.
func (s Set) Equal(other Set) bool {
	if s.Len() != other.Len() {
		return false
	}
	for item := range s.items {
		if !other.Has(item) {
			return false
		}
	}
	return true
}
