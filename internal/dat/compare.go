package dat

import (
	"log/slog"
	"math"
	"slices"

	"github.com/roach88/nxcheck/internal/value"
)

// DefaultTolerance is the norm above which two columns differ.
const DefaultTolerance = 0.1

// Options configures Compare.
type Options struct {
	// Tolerance is the strict upper bound on the Euclidean norm of the
	// difference between two equal values. Zero or negative means
	// DefaultTolerance.
	Tolerance float64
}

func (o Options) tolerance() float64 {
	if o.Tolerance <= 0 {
		return DefaultTolerance
	}
	return o.Tolerance
}

// ColumnDiff is a shared column whose values differ. Columns of unequal
// length are always different; their Norm is zero.
type ColumnDiff struct {
	Name    string      `json:"name"`
	Norm    value.Float `json:"norm"`
	OldRows int         `json:"old_rows"`
	NewRows int         `json:"new_rows"`
}

// LengthMismatch reports whether the columns could not be compared
// element-wise.
func (d ColumnDiff) LengthMismatch() bool {
	return d.OldRows != d.NewRows
}

// MetadataDiff is a shared metadata value that differs.
type MetadataDiff struct {
	Name string      `json:"name"`
	Old  value.Value `json:"old"`
	New  value.Value `json:"new"`
}

// ColumnShape names a one-sided column and its length.
type ColumnShape struct {
	Name string `json:"name"`
	Rows int    `json:"rows"`
}

// MetadataEntry names a one-sided metadata value.
type MetadataEntry struct {
	Name  string      `json:"name"`
	Value value.Value `json:"value"`
}

// Comparison is the result of comparing an original table with a
// converted one. All lists follow the order of the table they come from.
type Comparison struct {
	OldFile   string  `json:"old_file"`
	NewFile   string  `json:"new_file"`
	Tolerance float64 `json:"tolerance"`

	OldColumns  int `json:"old_columns"`
	NewColumns  int `json:"new_columns"`
	OldMetadata int `json:"old_metadata"`
	NewMetadata int `json:"new_metadata"`
	OldRows     int `json:"old_rows"`
	NewRows     int `json:"new_rows"`

	DifferentColumns  []ColumnDiff    `json:"different_columns"`
	DifferentMetadata []MetadataDiff  `json:"different_metadata"`
	RemovedColumns    []ColumnShape   `json:"removed_columns"`
	AddedColumns      []ColumnShape   `json:"added_columns"`
	RemovedMetadata   []MetadataEntry `json:"removed_metadata"`
	AddedMetadata     []MetadataEntry `json:"added_metadata"`

	// ToolError is set when the converted table could not be produced.
	ToolError string `json:"tool_error,omitempty"`
}

// NewComparison returns an empty comparison of two files.
func NewComparison(oldFile, newFile string, opts Options) *Comparison {
	return &Comparison{
		OldFile:           oldFile,
		NewFile:           newFile,
		Tolerance:         opts.tolerance(),
		DifferentColumns:  []ColumnDiff{},
		DifferentMetadata: []MetadataDiff{},
		RemovedColumns:    []ColumnShape{},
		AddedColumns:      []ColumnShape{},
		RemovedMetadata:   []MetadataEntry{},
		AddedMetadata:     []MetadataEntry{},
	}
}

// Discrepancies counts every reported difference. A tool failure counts
// as one.
func (c *Comparison) Discrepancies() int {
	n := len(c.DifferentColumns) + len(c.DifferentMetadata) +
		len(c.RemovedColumns) + len(c.AddedColumns) +
		len(c.RemovedMetadata) + len(c.AddedMetadata)
	if c.ToolError != "" {
		n++
	}
	return n
}

// Equivalent reports whether the two tables hold the same data.
func (c *Comparison) Equivalent() bool {
	return c.Discrepancies() == 0
}

// Fingerprint returns a content hash over the compared files and every
// discrepancy in order.
func (c *Comparison) Fingerprint() (string, error) {
	cols := make([]any, len(c.DifferentColumns))
	for i, d := range c.DifferentColumns {
		cols[i] = map[string]any{"name": d.Name, "norm": float64(d.Norm), "old_rows": d.OldRows, "new_rows": d.NewRows}
	}
	meta := make([]any, len(c.DifferentMetadata))
	for i, d := range c.DifferentMetadata {
		meta[i] = map[string]any{"name": d.Name, "old": d.Old, "new": d.New}
	}
	shapes := func(s []ColumnShape) []any {
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = map[string]any{"name": e.Name, "rows": e.Rows}
		}
		return out
	}
	entries := func(s []MetadataEntry) []any {
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = map[string]any{"name": e.Name, "value": e.Value}
		}
		return out
	}

	return value.Fingerprint(value.DomainCompareReport, map[string]any{
		"old_file":           c.OldFile,
		"new_file":           c.NewFile,
		"tolerance":          c.Tolerance,
		"different_columns":  cols,
		"different_metadata": meta,
		"removed_columns":    shapes(c.RemovedColumns),
		"added_columns":      shapes(c.AddedColumns),
		"removed_metadata":   entries(c.RemovedMetadata),
		"added_metadata":     entries(c.AddedMetadata),
		"tool_error":         c.ToolError,
	})
}

// Compare compares an original table with a converted one.
//
// A shared column differs when the norm of the element-wise difference is
// strictly greater than the tolerance. A shared metadata value is compared
// the same way when both sides are numeric with the same shape, and by
// value.Format text otherwise. Names present on one side only are listed
// as removed (old only) or added (new only).
func Compare(oldT, newT *Table, opts Options) *Comparison {
	c := NewComparison("", "", opts)
	c.Summarize(oldT, newT)
	tol := c.Tolerance

	for _, col := range oldT.Columns {
		other, ok := newT.Column(col.Name)
		if !ok {
			c.RemovedColumns = append(c.RemovedColumns, ColumnShape{Name: col.Name, Rows: len(col.Values)})
			continue
		}
		if len(col.Values) != len(other) {
			slog.Info("column length differs", "column", col.Name, "old", len(col.Values), "new", len(other))
			c.DifferentColumns = append(c.DifferentColumns, ColumnDiff{Name: col.Name, OldRows: len(col.Values), NewRows: len(other)})
			continue
		}
		if n := Norm(col.Values, other); n > tol {
			slog.Info("column differs", "column", col.Name, "norm", n)
			c.DifferentColumns = append(c.DifferentColumns, ColumnDiff{
				Name: col.Name, Norm: value.Float(n), OldRows: len(col.Values), NewRows: len(other),
			})
		}
	}
	for _, col := range newT.Columns {
		if _, ok := oldT.Column(col.Name); !ok {
			c.AddedColumns = append(c.AddedColumns, ColumnShape{Name: col.Name, Rows: len(col.Values)})
		}
	}

	for _, m := range oldT.Metadata {
		other, ok := newT.Meta(m.Name)
		if !ok {
			c.RemovedMetadata = append(c.RemovedMetadata, MetadataEntry{Name: m.Name, Value: m.Value})
			continue
		}
		if !MetadataEqual(m.Value, other, tol) {
			slog.Info("metadata differs", "name", m.Name, "old", value.Format(m.Value), "new", value.Format(other))
			c.DifferentMetadata = append(c.DifferentMetadata, MetadataDiff{Name: m.Name, Old: m.Value, New: other})
		}
	}
	for _, m := range newT.Metadata {
		if _, ok := oldT.Meta(m.Name); !ok {
			c.AddedMetadata = append(c.AddedMetadata, MetadataEntry{Name: m.Name, Value: m.Value})
		}
	}

	return c
}

// Summarize records the column, metadata and row counts of both tables.
// A nil table leaves its side at zero.
func (c *Comparison) Summarize(oldT, newT *Table) {
	if oldT != nil {
		c.OldColumns, c.OldMetadata, c.OldRows = len(oldT.Columns), len(oldT.Metadata), oldT.Rows
	}
	if newT != nil {
		c.NewColumns, c.NewMetadata, c.NewRows = len(newT.Columns), len(newT.Metadata), newT.Rows
	}
}

// MetadataEqual reports whether two metadata values match. Numeric values
// of the same shape match when the norm of their difference is at most
// tol. Everything else, including a NaN norm, falls back to comparing the
// formatted text.
func MetadataEqual(a, b value.Value, tol float64) bool {
	av, ashape, aok := value.Flatten(a)
	bv, bshape, bok := value.Flatten(b)
	if aok && bok && slices.Equal(ashape, bshape) {
		if n := Norm(av, bv); !math.IsNaN(n) {
			return n <= tol
		}
	}
	return value.Format(a) == value.Format(b)
}

// Norm returns the Euclidean norm of a-b, accumulated with scaling so that
// a single non-zero difference d yields exactly |d|. The slices must have
// the same length. Any NaN difference makes the norm NaN.
func Norm(a, b []float64) float64 {
	scale, ssq := 0.0, 1.0
	for i := range a {
		d := a[i] - b[i]
		switch {
		case math.IsNaN(d):
			return math.NaN()
		case math.IsInf(d, 0):
			return math.Inf(1)
		case d == 0:
			continue
		}
		ad := math.Abs(d)
		if scale < ad {
			r := scale / ad
			ssq = 1 + ssq*r*r
			scale = ad
		} else {
			r := ad / scale
			ssq += r * r
		}
	}
	return scale * math.Sqrt(ssq)
}
