package tree

import (
	"slices"
	"strings"

	"github.com/roach88/nxcheck/internal/value"
)

// ClassAttribute is the attribute holding a group's class tag.
const ClassAttribute = "NX_class"

// NoClass is the class tag reported for groups without an NX_class attribute.
const NoClass = "none"

// Attributes maps attribute names to their values.
type Attributes map[string]value.Value

// Get returns the named attribute.
func (a Attributes) Get(name string) (value.Value, bool) {
	v, ok := a[name]
	return v, ok
}

// Names returns attribute names in sorted order.
func (a Attributes) Names() []string {
	names := make([]string, 0, len(a))
	for name := range a {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Text returns the named attribute as text, if it is a string or byte-string.
func (a Attributes) Text(name string) (string, bool) {
	v, ok := a[name]
	if !ok {
		return "", false
	}
	return value.Text(v)
}

// Node is a sealed interface over *Group and *Dataset.
type Node interface {
	// Attributes returns the node's attributes. Never nil.
	Attributes() Attributes
	node()
}

// Group is an interior node. Children lists direct child names in store order.
type Group struct {
	Class    string
	Attrs    Attributes
	Children []string
}

func (*Group) node() {}

// Attributes implements Node.
func (g *Group) Attributes() Attributes {
	if g.Attrs == nil {
		return Attributes{}
	}
	return g.Attrs
}

// ClassTag returns the group's NX_class, or NoClass when it has none.
func (g *Group) ClassTag() string {
	if g.Class == "" {
		return NoClass
	}
	return g.Class
}

// Dataset is a leaf node holding an array or scalar.
// Shape is nil for scalars or when the backend does not report it.
type Dataset struct {
	Attrs Attributes
	Shape []int
}

func (*Dataset) node() {}

// Attributes implements Node.
func (d *Dataset) Attributes() Attributes {
	if d.Attrs == nil {
		return Attributes{}
	}
	return d.Attrs
}

// Tree is read-only access to one open store.
type Tree interface {
	// Get resolves path, following soft links. Absent or dangling paths
	// return false.
	Get(path string) (Node, bool)

	// Walk visits every node below the root depth-first, children in store
	// order. A link is visited at its own path with the resolved node and
	// is not descended into. Dangling links are skipped. A non-nil error
	// from fn stops the walk and is returned.
	Walk(fn func(path string, n Node) error) error

	// Close releases the underlying file handle.
	Close() error
}

// Clean normalizes a node path: leading slash, no empty or "." segments,
// no trailing slash. The empty string and "/" both clean to "/".
func Clean(path string) string {
	parts := strings.Split(path, "/")
	kept := parts[:0]
	for _, p := range parts {
		if p == "" || p == "." {
			continue
		}
		kept = append(kept, p)
	}
	return "/" + strings.Join(kept, "/")
}

// Join appends a relative name to a group path.
func Join(parent, name string) string {
	return Clean(parent + "/" + name)
}

// Split returns the parent path and final name of a cleaned path.
// The root has parent "/" and an empty name.
func Split(path string) (parent, name string) {
	path = Clean(path)
	if path == "/" {
		return "/", ""
	}
	i := strings.LastIndex(path, "/")
	if i == 0 {
		return "/", path[1:]
	}
	return path[:i], path[i+1:]
}
