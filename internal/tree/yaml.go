package tree

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/nxcheck/internal/value"
)

// Fixture is the YAML description of a tree, used for test data and for
// reproducing a store's layout without the original file.
//
//	nodes:
//	  - path: /entry
//	    class: NXentry
//	    attrs: {default: measurement}
//	  - path: /entry/measurement/x
//	    kind: dataset
//	    shape: [3]
//	  - path: /entry/plot
//	    kind: link
//	    target: /entry/measurement
type Fixture struct {
	Nodes []FixtureNode `yaml:"nodes"`
}

// FixtureNode describes one node. Kind defaults to "group".
type FixtureNode struct {
	Path   string         `yaml:"path"`
	Kind   string         `yaml:"kind,omitempty"`
	Class  string         `yaml:"class,omitempty"`
	Shape  []int          `yaml:"shape,omitempty"`
	Target string         `yaml:"target,omitempty"`
	Attrs  map[string]any `yaml:"attrs,omitempty"`
}

// Fixture node kinds.
const (
	KindGroup   = "group"
	KindDataset = "dataset"
	KindLink    = "link"
)

// LoadYAML parses a fixture and builds the tree it describes.
func LoadYAML(r io.Reader) (*Memory, error) {
	var fx Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&fx); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	return fx.Build()
}

// OpenYAML opens a fixture file as a Tree.
func OpenYAML(filename string) (Tree, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return LoadYAML(bytes.NewReader(data))
}

// Build assembles the fixture's nodes in order.
func (fx *Fixture) Build() (*Memory, error) {
	b := NewBuilder()
	for i, n := range fx.Nodes {
		if n.Path == "" {
			return nil, fmt.Errorf("nodes[%d]: path is required", i)
		}
		attrs := make(Attributes, len(n.Attrs))
		for name, raw := range n.Attrs {
			v, err := value.FromGo(raw)
			if err != nil {
				return nil, fmt.Errorf("nodes[%d] %s@%s: %w", i, n.Path, name, err)
			}
			attrs[name] = v
		}

		switch n.Kind {
		case "", KindGroup:
			b.Group(n.Path, n.Class, attrs)
		case KindDataset:
			b.Dataset(n.Path, n.Shape, attrs)
		case KindLink:
			if n.Target == "" {
				return nil, fmt.Errorf("nodes[%d] %s: link without target", i, n.Path)
			}
			b.Link(n.Path, n.Target)
		default:
			return nil, fmt.Errorf("nodes[%d] %s: unknown kind %q", i, n.Path, n.Kind)
		}
	}
	return b.Build(nil)
}
