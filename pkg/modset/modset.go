// Package modset provides the set type used for module references:
// scanned imports, standard-library names, local modules and the
// resulting external dependencies.
package modset

import (
	"maps"
	"slices"
)

// Set is an unordered collection of unique module names.
type Set map[string]struct{}

// New returns a set holding the given names.
func New(names ...string) Set {
	s := make(Set, len(names))

	for _, name := range names {
		s[name] = struct{}{}
	}

	return s
}

// Add inserts name into the set.
func (s Set) Add(name string) {
	s[name] = struct{}{}
}

// Has reports whether name is in the set. A nil set contains nothing.
func (s Set) Has(name string) bool {
	_, ok := s[name]

	return ok
}

// Len returns the number of names in the set.
func (s Set) Len() int {
	return len(s)
}

// Union adds every name of other into s.
func (s Set) Union(other Set) {
	for name := range other {
		s[name] = struct{}{}
	}
}

// Subtract returns a new set with the names of s that appear in none of others.
func (s Set) Subtract(others ...Set) Set {
	out := make(Set, len(s))

	for name := range s {
		if !anyHas(others, name) {
			out[name] = struct{}{}
		}
	}

	return out
}

// Clone returns an independent copy of s. Returns nil for a nil set.
func (s Set) Clone() Set {
	return maps.Clone(s)
}

// Sorted returns the names in ascending order. Returns an empty, non-nil
// slice for an empty set so that JSON output is [] rather than null.
func (s Set) Sorted() []string {
	names := make([]string, 0, len(s))

	for name := range s {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}

// Equal reports whether both sets hold exactly the same names.
func (s Set) Equal(other Set) bool {
	if len(s) != len(other) {
		return false
	}

	for name := range s {
		if !other.Has(name) {
			return false
		}
	}

	return true
}

func anyHas(sets []Set, name string) bool {
	for _, set := range sets {
		if set.Has(name) {
			return true
		}
	}

	return false
}
