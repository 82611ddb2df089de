package schema

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/nxcheck/internal/value"
)

//go:embed schema.cue
var schemaCUE string

//go:embed baseline.cue
var baselineCUE string

// Baseline is the static part of the registry: the structure every file is
// expected to have plus the templates the built-in rules expand from.
// A Baseline is never mutated after loading; Expand works on copies.
type Baseline struct {
	Paths             *Schema
	Attributes        AttributeSchema
	EntryAttributes   []Expectation
	DataAttributes    []Expectation
	DatasetAttributes []Expectation
	// DetectorTemplate holds paths relative to each NXdetector group.
	DetectorTemplate []Entry
}

// EmptyBaseline returns a baseline with no expectations. Only the
// classifier rules contribute entries when it is used.
func EmptyBaseline() *Baseline {
	return &Baseline{
		Paths:      NewSchema(),
		Attributes: AttributeSchema{},
	}
}

// LoadError reports an invalid baseline with its CUE source position.
type LoadError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// DefaultBaseline returns the embedded Diamond I16 baseline.
func DefaultBaseline() (*Baseline, error) {
	return LoadBaseline("baseline.cue", []byte(baselineCUE))
}

// LoadBaselineFile reads a baseline from a CUE file.
func LoadBaselineFile(path string) (*Baseline, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read baseline: %w", err)
	}
	return LoadBaseline(path, src)
}

// LoadBaseline compiles CUE source, unifies it with the baseline
// definitions, and decodes it. Field order in the source is kept.
func LoadBaseline(filename string, src []byte) (*Baseline, error) {
	ctx := cuecontext.New()

	defs := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := defs.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	v := ctx.CompileBytes(src, cue.Filename(filename)).Unify(defs)
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	b := EmptyBaseline()

	paths, err := decodeEntries(v.LookupPath(cue.ParsePath("paths")))
	if err != nil {
		return nil, err
	}
	b.Paths = NewSchema(paths...)

	attrs := v.LookupPath(cue.ParsePath("attributes"))
	if attrs.Exists() {
		iter, err := attrs.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			exps, err := decodeExpectations(iter.Value())
			if err != nil {
				return nil, err
			}
			b.Attributes.Set(label(iter), exps)
		}
	}

	if b.EntryAttributes, err = decodeExpectations(v.LookupPath(cue.ParsePath("entry_attributes"))); err != nil {
		return nil, err
	}
	if b.DataAttributes, err = decodeExpectations(v.LookupPath(cue.ParsePath("data_attributes"))); err != nil {
		return nil, err
	}
	if b.DatasetAttributes, err = decodeExpectations(v.LookupPath(cue.ParsePath("dataset_attributes"))); err != nil {
		return nil, err
	}
	if b.DetectorTemplate, err = decodeEntries(v.LookupPath(cue.ParsePath("detector"))); err != nil {
		return nil, err
	}

	return b, nil
}

// decodeEntries reads a struct of label -> string in declaration order.
// A missing struct decodes to nil.
func decodeEntries(v cue.Value) ([]Entry, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var entries []Entry
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		entries = append(entries, Entry{Path: label(iter), Expected: s})
	}
	return entries, nil
}

// decodeExpectations reads a struct of attribute name -> expected value.
func decodeExpectations(v cue.Value) ([]Expectation, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var exps []Expectation
	for iter.Next() {
		val, err := decodeValue(iter.Value())
		if err != nil {
			return nil, err
		}
		exps = append(exps, Expectation{Name: label(iter), Value: val})
	}
	return exps, nil
}

// decodeValue converts a concrete CUE scalar or list into a value.Value.
func decodeValue(v cue.Value) (value.Value, error) {
	switch v.Kind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return value.String(s), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return value.Int(n), nil
	case cue.FloatKind, cue.NumberKind:
		f, err := v.Float64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return value.Float(f), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return value.Bool(b), nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		var l value.List
		for iter.Next() {
			elem, err := decodeValue(iter.Value())
			if err != nil {
				return nil, err
			}
			l = append(l, elem)
		}
		if l == nil {
			l = value.List{}
		}
		return l, nil
	default:
		return nil, &LoadError{
			Field:   "value",
			Message: fmt.Sprintf("unsupported expected value kind: %v", v.Kind()),
			Pos:     v.Pos(),
		}
	}
}

// label returns the unquoted field name at the iterator position.
func label(iter *cue.Iterator) string {
	sel := iter.Selector()
	if sel.LabelType() == cue.StringLabel {
		return sel.Unquoted()
	}
	return sel.String()
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &LoadError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return &LoadError{Field: "cue", Message: first.Error()}
}
