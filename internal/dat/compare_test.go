package dat

import (
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nxcheck/internal/value"
)

func table(t *testing.T, src string) *Table {
	t.Helper()
	tb, err := Parse(strings.NewReader(src))
	require.NoError(t, err)
	return tb
}

func TestCompareFlagsDifferingColumn(t *testing.T) {
	oldT := table(t, "&END\nx\n1\n2\n3\n")
	newT := table(t, "&END\nx\n1\n2\n3.2\n")

	c := Compare(oldT, newT, Options{})

	require.Len(t, c.DifferentColumns, 1)
	assert.Equal(t, "x", c.DifferentColumns[0].Name)
	assert.InDelta(t, 0.2, float64(c.DifferentColumns[0].Norm), 1e-9)
	assert.Empty(t, c.AddedColumns)
	assert.Empty(t, c.RemovedColumns)
	assert.False(t, c.Equivalent())
}

func TestCompareToleranceBoundary(t *testing.T) {
	oldT := table(t, "&END\nx\n0\n")

	atTol := Compare(oldT, table(t, "&END\nx\n0.1\n"), Options{})
	assert.Empty(t, atTol.DifferentColumns, "a norm of exactly 0.1 is not a difference")

	above := Compare(oldT, table(t, "&END\nx\n0.1000001\n"), Options{})
	assert.Len(t, above.DifferentColumns, 1)
}

func TestCompareCustomTolerance(t *testing.T) {
	oldT := table(t, "&END\nx\n1\n2\n3\n")
	newT := table(t, "&END\nx\n1\n2\n3.2\n")

	c := Compare(oldT, newT, Options{Tolerance: 0.5})

	assert.Equal(t, 0.5, c.Tolerance)
	assert.Empty(t, c.DifferentColumns)
	assert.True(t, c.Equivalent())
}

func TestCompareColumnLengthMismatch(t *testing.T) {
	c := Compare(table(t, "&END\nx\n1\n2\n"), table(t, "&END\nx\n1\n"), Options{})

	require.Len(t, c.DifferentColumns, 1)
	d := c.DifferentColumns[0]
	assert.True(t, d.LengthMismatch())
	assert.Equal(t, 2, d.OldRows)
	assert.Equal(t, 1, d.NewRows)
}

func TestCompareNaNColumnsAreNotFlagged(t *testing.T) {
	c := Compare(table(t, "&END\nflag\ntrue\n"), table(t, "&END\nflag\nfalse\n"), Options{})

	assert.Empty(t, c.DifferentColumns)
}

func TestCompareOneSidedNames(t *testing.T) {
	oldT := table(t, "a=1\ngone=2\n&END\nx old\n1 2\n")
	newT := table(t, "a=1\nfresh=3\n&END\nx new\n1 2\n")

	c := Compare(oldT, newT, Options{})

	assert.Equal(t, []ColumnShape{{Name: "old", Rows: 1}}, c.RemovedColumns)
	assert.Equal(t, []ColumnShape{{Name: "new", Rows: 1}}, c.AddedColumns)
	assert.Equal(t, []MetadataEntry{{Name: "gone", Value: value.Int(2)}}, c.RemovedMetadata)
	assert.Equal(t, []MetadataEntry{{Name: "fresh", Value: value.Int(3)}}, c.AddedMetadata)
	assert.Empty(t, c.DifferentColumns)
	assert.Empty(t, c.DifferentMetadata)
	assert.Equal(t, 4, c.Discrepancies())
}

func TestCompareMetadata(t *testing.T) {
	oldT := table(t, "en=8.0\nsample='big crystal'\ncmd='scan x'\nhkl=[1, 0, 0]\nmode=1\n&END\nx\n")
	newT := table(t, "en=8.05\nsample='big crystal'\ncmd='scan y'\nhkl=[1, 0, 0.01]\nmode='1'\n&END\nx\n")

	c := Compare(oldT, newT, Options{})

	names := make([]string, len(c.DifferentMetadata))
	for i, d := range c.DifferentMetadata {
		names[i] = d.Name
	}
	// mode: 1 against '1' falls back to text and matches
	assert.Equal(t, []string{"cmd"}, names)
}

func TestMetadataEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b value.Value
		want bool
	}{
		{"string fallback", value.String("big crystal"), value.String("big crystal"), true},
		{"different strings", value.String("big crystal"), value.String("small crystal"), false},
		{"numbers within tolerance", value.Float(1.0), value.Float(1.05), true},
		{"numbers at tolerance", value.Float(0), value.Float(0.1), true},
		{"numbers beyond tolerance", value.Float(1.0), value.Float(1.2), false},
		{"int against float", value.Int(3), value.Float(3.0), true},
		{"lists", value.List{value.Int(1), value.Int(2)}, value.List{value.Int(1), value.Float(2.01)}, true},
		{"shape mismatch falls back", value.List{value.Int(1)}, value.List{value.Int(1), value.Int(2)}, false},
		{"nan falls back to text", value.Float(math.NaN()), value.Float(math.NaN()), true},
		{"bool", value.Bool(true), value.Bool(true), true},
		{"none", value.Null{}, value.Null{}, true},
		{"whole float against its text", value.Float(1.0), value.String("1.0"), true},
		{"whole float against int text", value.Float(1.0), value.String("1"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MetadataEqual(tt.a, tt.b, DefaultTolerance))
		})
	}
}

func TestNorm(t *testing.T) {
	assert.Equal(t, 0.0, Norm([]float64{1, 2}, []float64{1, 2}))
	assert.Equal(t, 0.1, Norm([]float64{0}, []float64{0.1}))
	assert.Equal(t, 5.0, Norm([]float64{3, 4}, []float64{0, 0}))
	assert.True(t, math.IsNaN(Norm([]float64{math.NaN()}, []float64{1})))
	assert.True(t, math.IsInf(Norm([]float64{math.Inf(1)}, []float64{1}), 1))
	assert.Equal(t, 0.0, Norm(nil, nil))
}

func TestCompareScanFiles(t *testing.T) {
	oldT, err := Read(filepath.Join("testdata", "571664.dat"))
	require.NoError(t, err)
	newT, err := Read(filepath.Join("testdata", "571664.nexus2srs.dat"))
	require.NoError(t, err)

	c := Compare(oldT, newT, Options{})

	assert.Equal(t, 3, c.OldColumns)
	assert.Equal(t, 4, c.NewColumns)
	assert.Equal(t, 7, c.OldMetadata)
	assert.Equal(t, 6, c.NewMetadata)
	assert.Equal(t, 3, c.OldRows)
	assert.Equal(t, 3, c.NewRows)

	require.Len(t, c.DifferentColumns, 1)
	assert.Equal(t, "x", c.DifferentColumns[0].Name)
	assert.Equal(t, []ColumnShape{{Name: "TimeSec", Rows: 3}}, c.AddedColumns)
	assert.Empty(t, c.DifferentMetadata)
	assert.Equal(t, []MetadataEntry{{Name: "pil3_path", Value: value.String("/dls/i16/data/2024/pil3")}}, c.RemovedMetadata)
	assert.Empty(t, c.AddedMetadata)
}

func TestComparisonFingerprint(t *testing.T) {
	oldT := table(t, "&END\nx\n1\n2\n3\n")

	same := Compare(oldT, table(t, "&END\nx\n1\n2\n3\n"), Options{})
	diff := Compare(oldT, table(t, "&END\nx\n1\n2\n3.2\n"), Options{})

	fp1, err := same.Fingerprint()
	require.NoError(t, err)
	fp2, err := diff.Fingerprint()
	require.NoError(t, err)
	assert.NotEqual(t, fp1, fp2)

	again, err := Compare(oldT, table(t, "&END\nx\n1\n2\n3\n"), Options{}).Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fp1, again)
}

func TestToolErrorCountsAsDiscrepancy(t *testing.T) {
	c := NewComparison("a.dat", "a.nexus2srs.dat", Options{})
	assert.True(t, c.Equivalent())

	c.ToolError = "nexus2srs: exit status 1"
	assert.Equal(t, 1, c.Discrepancies())
	assert.False(t, c.Equivalent())
}
