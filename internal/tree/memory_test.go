package tree

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nxcheck/internal/value"
)

func buildScan(t *testing.T) *Memory {
	t.Helper()
	m, err := NewBuilder().
		Group("/entry", "NXentry", Attributes{"default": value.Bytes("measurement")}).
		Group("/entry/measurement", "NXdata", Attributes{"signal": value.Bytes("y")}).
		Dataset("/entry/measurement/x", []int{3}, nil).
		Dataset("/entry/measurement/y", []int{3}, Attributes{"units": value.Bytes("counts")}).
		Group("/entry/instrument/detector", "NXdetector", nil).
		Link("/entry/plot", "/entry/measurement").
		Link("/entry/loop", "/entry/loop").
		Build(nil)
	require.NoError(t, err)
	return m
}

func TestClean(t *testing.T) {
	tests := map[string]string{
		"":                "/",
		"/":               "/",
		"entry":           "/entry",
		"/entry//x/":      "/entry/x",
		"entry/./sample":  "/entry/sample",
		"/Entry/Measure":  "/Entry/Measure",
	}
	for in, want := range tests {
		assert.Equal(t, want, Clean(in), "Clean(%q)", in)
	}
}

func TestSplit(t *testing.T) {
	parent, name := Split("/entry/measurement")
	assert.Equal(t, "/entry", parent)
	assert.Equal(t, "measurement", name)

	parent, name = Split("/entry")
	assert.Equal(t, "/", parent)
	assert.Equal(t, "entry", name)

	parent, name = Split("/")
	assert.Equal(t, "/", parent)
	assert.Empty(t, name)
}

func TestMemoryGet(t *testing.T) {
	m := buildScan(t)

	n, ok := m.Get("entry")
	require.True(t, ok)
	g, isGroup := n.(*Group)
	require.True(t, isGroup)
	assert.Equal(t, "NXentry", g.ClassTag())
	assert.Equal(t, []string{"measurement", "instrument", "plot", "loop"}, g.Children)

	n, ok = m.Get("/entry/measurement/y")
	require.True(t, ok)
	ds, isDataset := n.(*Dataset)
	require.True(t, isDataset)
	assert.Equal(t, []int{3}, ds.Shape)
	assert.Equal(t, value.Bytes("counts"), ds.Attributes()["units"])

	_, ok = m.Get("/entry/missing")
	assert.False(t, ok)
}

func TestMemoryAutoCreatesParents(t *testing.T) {
	m := buildScan(t)

	n, ok := m.Get("/entry/instrument")
	require.True(t, ok)
	g := n.(*Group)
	assert.Equal(t, NoClass, g.ClassTag())
	assert.NotNil(t, g.Attributes())
}

func TestMemoryLinks(t *testing.T) {
	m := buildScan(t)

	n, ok := m.Get("/entry/plot")
	require.True(t, ok)
	assert.Equal(t, "NXdata", n.(*Group).ClassTag())

	n, ok = m.Get("/entry/plot/x")
	require.True(t, ok, "paths through a linked group resolve")
	assert.IsType(t, &Dataset{}, n)

	_, ok = m.Get("/entry/loop")
	assert.False(t, ok, "cyclic links resolve as dangling")
}

func TestMemoryWalk(t *testing.T) {
	m := buildScan(t)

	var paths []string
	err := m.Walk(func(path string, n Node) error {
		paths = append(paths, path)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"/entry",
		"/entry/measurement",
		"/entry/measurement/x",
		"/entry/measurement/y",
		"/entry/instrument",
		"/entry/instrument/detector",
		"/entry/plot",
	}, paths, "links visited once, not descended; dangling links skipped")
}

func TestMemoryWalkStops(t *testing.T) {
	m := buildScan(t)
	stop := errors.New("stop")

	count := 0
	err := m.Walk(func(path string, n Node) error {
		count++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, count)
}

func TestMemoryClose(t *testing.T) {
	closed := 0
	m, err := NewBuilder().Group("/entry", "NXentry", nil).Build(func() error {
		closed++
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.Equal(t, 1, closed)

	_, ok := m.Get("/entry")
	assert.False(t, ok)
	assert.Error(t, m.Walk(func(string, Node) error { return nil }))
}

func TestBuilderGroupUpdatesInPlace(t *testing.T) {
	m, err := NewBuilder().
		Dataset("/entry/data/x", nil, nil).
		Group("/entry/data", "NXdata", nil).
		Build(nil)
	require.NoError(t, err)

	n, ok := m.Get("/entry/data")
	require.True(t, ok)
	g := n.(*Group)
	assert.Equal(t, "NXdata", g.ClassTag())
	assert.Equal(t, []string{"x"}, g.Children)
}

func TestBuilderErrors(t *testing.T) {
	_, err := NewBuilder().Dataset("/x", nil, nil).Dataset("/x", nil, nil).Build(nil)
	assert.ErrorContains(t, err, "duplicate path")

	_, err = NewBuilder().Dataset("/x", nil, nil).Dataset("/x/y", nil, nil).Build(nil)
	assert.ErrorContains(t, err, "not a group")

	_, err = NewBuilder().Dataset("/x", nil, nil).Group("/x", "NXdata", nil).Build(nil)
	assert.ErrorContains(t, err, "already holds")
}

func TestClassFromAttributes(t *testing.T) {
	m := NewBuilder().
		Group("/entry", "", Attributes{ClassAttribute: value.String("NXentry")}).
		MustBuild()

	n, _ := m.Get("/entry")
	assert.Equal(t, "NXentry", n.(*Group).ClassTag())
}
