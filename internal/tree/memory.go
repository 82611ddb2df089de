package tree

import (
	"fmt"
	"strings"

	"github.com/roach88/nxcheck/internal/value"
)

// maxLinkDepth bounds soft-link chains so that cycles resolve as dangling.
const maxLinkDepth = 32

// entry is one named slot in the tree: a node or a soft link.
type entry struct {
	node   Node
	target string // soft link target; empty for real nodes
}

// Memory is an in-memory Tree. It is built with a Builder and also serves
// as the index behind the file-backed backends.
type Memory struct {
	entries map[string]*entry
	closer  func() error
	closed  bool
}

var _ Tree = (*Memory)(nil)

// Get implements Tree.
func (m *Memory) Get(path string) (Node, bool) {
	if m.closed {
		return nil, false
	}
	real, ok := m.resolve(Clean(path), 0)
	if !ok {
		return nil, false
	}
	e, ok := m.entries[real]
	if !ok || e.node == nil {
		return nil, false
	}
	return e.node, true
}

// resolve maps a path that may pass through soft links onto the path of a
// real node, one component at a time.
func (m *Memory) resolve(path string, depth int) (string, bool) {
	if depth > maxLinkDepth {
		return "", false
	}
	if path == "/" {
		return "/", true
	}

	cur := "/"
	for _, part := range strings.Split(path[1:], "/") {
		next := Join(cur, part)
		e, ok := m.entries[next]
		if !ok {
			return "", false
		}
		if e.target != "" {
			target, ok := m.resolve(e.target, depth+1)
			if !ok {
				return "", false
			}
			next = target
		}
		cur = next
	}
	return cur, true
}

// Walk implements Tree.
func (m *Memory) Walk(fn func(path string, n Node) error) error {
	if m.closed {
		return fmt.Errorf("walk: tree is closed")
	}
	return m.walk("/", fn)
}

func (m *Memory) walk(path string, fn func(path string, n Node) error) error {
	g, ok := m.entries[path].node.(*Group)
	if !ok {
		return nil
	}
	for _, name := range g.Children {
		child := Join(path, name)
		e := m.entries[child]
		if e.target != "" {
			n, ok := m.Get(child)
			if !ok {
				continue
			}
			if err := fn(child, n); err != nil {
				return err
			}
			continue
		}
		if err := fn(child, e.node); err != nil {
			return err
		}
		if _, isGroup := e.node.(*Group); isGroup {
			if err := m.walk(child, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close implements Tree. Closing twice is a no-op.
func (m *Memory) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	if m.closer != nil {
		return m.closer()
	}
	return nil
}

// Builder assembles a Memory tree. Missing parent groups are created
// unclassified. Adding a group at an existing group path updates its class
// and attributes in place.
type Builder struct {
	mem *Memory
	err error
}

// NewBuilder returns a Builder holding only the root group.
func NewBuilder() *Builder {
	return &Builder{mem: &Memory{
		entries: map[string]*entry{"/": {node: &Group{Attrs: Attributes{}}}},
	}}
}

// Group adds or updates a group. A non-empty class is stored as the
// NX_class attribute; otherwise the class is taken from attrs.
func (b *Builder) Group(path, class string, attrs Attributes) *Builder {
	path = Clean(path)
	attrs = copyAttrs(attrs)
	if class != "" {
		attrs[ClassAttribute] = value.Bytes(class)
	} else {
		class, _ = attrs.Text(ClassAttribute)
	}

	if e, ok := b.mem.entries[path]; ok {
		g, isGroup := e.node.(*Group)
		if !isGroup {
			b.fail(fmt.Errorf("group %s: path already holds a dataset or link", path))
			return b
		}
		g.Class = class
		g.Attrs = attrs
		return b
	}

	b.add(path, &entry{node: &Group{Class: class, Attrs: attrs}})
	return b
}

// Dataset adds a dataset with the given shape and attributes.
func (b *Builder) Dataset(path string, shape []int, attrs Attributes) *Builder {
	b.add(Clean(path), &entry{node: &Dataset{Attrs: copyAttrs(attrs), Shape: shape}})
	return b
}

// Link adds a soft link at path pointing at target.
func (b *Builder) Link(path, target string) *Builder {
	b.add(Clean(path), &entry{target: Clean(target)})
	return b
}

// Build returns the assembled tree, or the first error met while building.
// closer, if non-nil, runs when the tree is closed.
func (b *Builder) Build(closer func() error) (*Memory, error) {
	if b.err != nil {
		return nil, b.err
	}
	b.mem.closer = closer
	return b.mem, nil
}

// MustBuild is Build for fixtures known to be valid. It panics on error.
func (b *Builder) MustBuild() *Memory {
	m, err := b.Build(nil)
	if err != nil {
		panic(err)
	}
	return m
}

func (b *Builder) add(path string, e *entry) {
	if b.err != nil {
		return
	}
	if path == "/" {
		b.fail(fmt.Errorf("root can only be added as a group"))
		return
	}
	if _, exists := b.mem.entries[path]; exists {
		b.fail(fmt.Errorf("duplicate path %s", path))
		return
	}

	parent, name := Split(path)
	pe, ok := b.mem.entries[parent]
	if !ok {
		b.Group(parent, "", nil)
		if b.err != nil {
			return
		}
		pe = b.mem.entries[parent]
	}
	g, isGroup := pe.node.(*Group)
	if !isGroup {
		b.fail(fmt.Errorf("%s: parent %s is not a group", path, parent))
		return
	}

	g.Children = append(g.Children, name)
	b.mem.entries[path] = e
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

func copyAttrs(attrs Attributes) Attributes {
	out := make(Attributes, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}
