package check

import (
	"fmt"

	"github.com/roach88/nxcheck/internal/value"
)

// Score weights.
const (
	PathWeight      = 100
	AttributeWeight = 1
)

// MissingPath is an expected node absent from the file.
type MissingPath struct {
	Path     string `json:"path"`
	Expected string `json:"expected"`
}

func (m MissingPath) String() string {
	return fmt.Sprintf("%s = %s", m.Path, m.Expected)
}

// MissingAttribute is an expected attribute absent from a present node.
type MissingAttribute struct {
	Path     string      `json:"path"`
	Name     string      `json:"name"`
	Expected value.Value `json:"expected"`
}

func (m MissingAttribute) String() string {
	return fmt.Sprintf("%s@%s = %s", m.Path, m.Name, value.Format(m.Expected))
}

// Mismatch is a present node or attribute whose class tag or value differs
// from the expectation. Attribute is empty for class-tag mismatches.
type Mismatch struct {
	Path      string `json:"path"`
	Attribute string `json:"attribute,omitempty"`
	Expected  string `json:"expected"`
	Actual    string `json:"actual"`
}

func (m Mismatch) String() string {
	if m.Attribute == "" {
		return fmt.Sprintf("%s: NX_class = %s (should be %s)", m.Path, m.Actual, m.Expected)
	}
	return fmt.Sprintf("%s@%s = %s (should be %s)", m.Path, m.Attribute, m.Actual, m.Expected)
}

// Report is the result of checking one file.
type Report struct {
	File              string             `json:"file"`
	MissingPaths      []MissingPath      `json:"missing_paths"`
	MissingAttributes []MissingAttribute `json:"missing_attributes"`
	Mismatches        []Mismatch         `json:"mismatches"`
	Score             int                `json:"score"`
}

func newReport() *Report {
	return &Report{
		MissingPaths:      []MissingPath{},
		MissingAttributes: []MissingAttribute{},
		Mismatches:        []Mismatch{},
	}
}

// score recomputes Score from the missing lists.
func (r *Report) score() {
	r.Score = PathWeight*len(r.MissingPaths) + AttributeWeight*len(r.MissingAttributes)
}

// Conformant reports whether nothing expected is missing.
func (r *Report) Conformant() bool {
	return r.Score == 0
}

// Fingerprint returns a content hash over the file name and every
// discrepancy in order.
func (r *Report) Fingerprint() (string, error) {
	missing := make([]any, len(r.MissingPaths))
	for i, m := range r.MissingPaths {
		missing[i] = map[string]any{"path": m.Path, "expected": m.Expected}
	}
	attrs := make([]any, len(r.MissingAttributes))
	for i, m := range r.MissingAttributes {
		attrs[i] = map[string]any{"path": m.Path, "name": m.Name, "expected": m.Expected}
	}
	mismatches := make([]any, len(r.Mismatches))
	for i, m := range r.Mismatches {
		mismatches[i] = map[string]any{"path": m.Path, "attribute": m.Attribute, "expected": m.Expected, "actual": m.Actual}
	}

	return value.Fingerprint(value.DomainCheckReport, map[string]any{
		"file":               r.File,
		"missing_paths":      missing,
		"missing_attributes": attrs,
		"mismatches":         mismatches,
		"score":              r.Score,
	})
}
