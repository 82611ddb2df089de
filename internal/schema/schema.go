package schema

import (
	"slices"

	"github.com/roach88/nxcheck/internal/tree"
	"github.com/roach88/nxcheck/internal/value"
)

// Dataset descriptors recorded by the built-in rules. They are reported to
// the user but only the presence of the dataset is checked.
const (
	DescArray  = "nd array"
	DescSignal = "@signal, nd array"
	DescAxes   = "@axes, nd array"
)

// Entry is one expected path and its expected kind: a group class tag, or a
// dataset descriptor.
type Entry struct {
	Path     string `json:"path"`
	Expected string `json:"expected"`
}

// Schema is an insertion-ordered map of path to expected kind.
// The zero value is not usable; use NewSchema.
type Schema struct {
	order []string
	kinds map[string]string
}

// NewSchema returns a Schema holding entries in order.
func NewSchema(entries ...Entry) *Schema {
	s := &Schema{kinds: make(map[string]string, len(entries))}
	for _, e := range entries {
		s.Set(e.Path, e.Expected)
	}
	return s
}

// Set records path as expected. An existing path keeps its position and
// takes the new expected kind.
func (s *Schema) Set(path, expected string) {
	path = tree.Clean(path)
	if _, ok := s.kinds[path]; !ok {
		s.order = append(s.order, path)
	}
	s.kinds[path] = expected
}

// Get returns the expected kind for path.
func (s *Schema) Get(path string) (string, bool) {
	k, ok := s.kinds[tree.Clean(path)]
	return k, ok
}

// Len returns the number of entries.
func (s *Schema) Len() int {
	return len(s.order)
}

// Entries returns all entries in insertion order.
func (s *Schema) Entries() []Entry {
	out := make([]Entry, len(s.order))
	for i, p := range s.order {
		out[i] = Entry{Path: p, Expected: s.kinds[p]}
	}
	return out
}

// Clone returns an independent copy.
func (s *Schema) Clone() *Schema {
	c := &Schema{
		order: slices.Clone(s.order),
		kinds: make(map[string]string, len(s.kinds)),
	}
	for k, v := range s.kinds {
		c.kinds[k] = v
	}
	return c
}

// Equal reports whether both schemas hold the same entries in the same order.
func (s *Schema) Equal(o *Schema) bool {
	return slices.Equal(s.Entries(), o.Entries())
}

// Expectation is one expected attribute and its value.
type Expectation struct {
	Name  string      `json:"name"`
	Value value.Value `json:"value"`
}

// AttributeSchema maps a path to its ordered attribute expectations.
type AttributeSchema map[string][]Expectation

// Set replaces the expectations for path.
func (a AttributeSchema) Set(path string, exps []Expectation) {
	a[tree.Clean(path)] = slices.Clone(exps)
}

// Get returns the expectations for path.
func (a AttributeSchema) Get(path string) ([]Expectation, bool) {
	exps, ok := a[tree.Clean(path)]
	return exps, ok
}

// Clone returns an independent copy.
func (a AttributeSchema) Clone() AttributeSchema {
	c := make(AttributeSchema, len(a))
	for k, v := range a {
		c[k] = slices.Clone(v)
	}
	return c
}

// Snapshot is the file-specific expected schema produced by Expand.
type Snapshot struct {
	Schema     *Schema
	Attributes AttributeSchema
}

// Equal reports whether two snapshots expect the same paths, in the same
// order, with the same attribute expectations.
func (s *Snapshot) Equal(o *Snapshot) bool {
	if !s.Schema.Equal(o.Schema) || len(s.Attributes) != len(o.Attributes) {
		return false
	}
	for path, exps := range s.Attributes {
		other, ok := o.Attributes[path]
		if !ok || len(other) != len(exps) {
			return false
		}
		for i := range exps {
			if exps[i].Name != other[i].Name || !value.Equal(exps[i].Value, other[i].Value) {
				return false
			}
		}
	}
	return true
}
