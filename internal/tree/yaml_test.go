package tree

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nxcheck/internal/value"
)

func TestOpenYAMLFixture(t *testing.T) {
	tr, err := Open(filepath.Join("testdata", "scan.yaml"))
	require.NoError(t, err)
	defer tr.Close()

	n, ok := tr.Get("/entry/measurement")
	require.True(t, ok)
	g := n.(*Group)
	assert.Equal(t, "NXdata", g.ClassTag())
	assert.Equal(t, value.Strs("k"), g.Attributes()["axes"])
	assert.Equal(t, value.String("roi2_sum"), g.Attributes()["signal"])

	n, ok = tr.Get("/entry/measurement/k")
	require.True(t, ok)
	assert.Equal(t, []int{3}, n.(*Dataset).Shape)

	_, ok = tr.Get("/entry/plot/roi2_sum")
	assert.True(t, ok)

	_, ok = tr.Get("/entry/broken")
	assert.False(t, ok)
}

func TestLoadYAMLErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"missing path", "nodes:\n  - class: NXentry\n", "path is required"},
		{"unknown kind", "nodes:\n  - path: /x\n    kind: blob\n", "unknown kind"},
		{"link without target", "nodes:\n  - path: /x\n    kind: link\n", "without target"},
		{"unknown field", "nodes:\n  - path: /x\n    colour: red\n", "decode fixture"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadYAML(strings.NewReader(tt.doc))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestLoadYAMLEmpty(t *testing.T) {
	m, err := LoadYAML(strings.NewReader(""))
	require.NoError(t, err)

	count := 0
	require.NoError(t, m.Walk(func(string, Node) error { count++; return nil }))
	assert.Zero(t, count)
}
