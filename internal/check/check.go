package check

import (
	"fmt"
	"log/slog"

	"github.com/roach88/nxcheck/internal/schema"
	"github.com/roach88/nxcheck/internal/tree"
	"github.com/roach88/nxcheck/internal/value"
)

// Check walks snap in schema order and compares every entry with t.
//
//   - An absent path is missing; its attributes are not checked.
//   - A present group whose class tag differs is a soft mismatch.
//   - A present dataset satisfies its entry; the descriptor is informational.
//   - Expected attributes absent from a present node are missing; present
//     ones with a different value are soft mismatches.
//
// Check never fails for a well-formed tree and snapshot.
func Check(t tree.Tree, snap *schema.Snapshot) *Report {
	r := newReport()

	for _, e := range snap.Schema.Entries() {
		n, ok := t.Get(e.Path)
		if !ok {
			slog.Info("missing", "path", e.Path, "expected", e.Expected)
			r.MissingPaths = append(r.MissingPaths, MissingPath{Path: e.Path, Expected: e.Expected})
			continue
		}

		switch node := n.(type) {
		case *tree.Group:
			class := node.ClassTag()
			if class != e.Expected {
				slog.Info("class mismatch", "path", e.Path, "class", class, "expected", e.Expected)
				r.Mismatches = append(r.Mismatches, Mismatch{Path: e.Path, Expected: e.Expected, Actual: class})
			} else {
				slog.Info("group", "path", e.Path, "class", class)
			}
		case *tree.Dataset:
			slog.Info("dataset", "path", e.Path, "expected", e.Expected)
		}

		exps, ok := snap.Attributes.Get(e.Path)
		if !ok {
			continue
		}
		checkAttributes(r, e.Path, n.Attributes(), exps)
	}

	r.score()
	slog.Info("check complete",
		"missing_paths", len(r.MissingPaths),
		"missing_attributes", len(r.MissingAttributes),
		"mismatches", len(r.Mismatches),
		"score", r.Score)
	return r
}

func checkAttributes(r *Report, path string, attrs tree.Attributes, exps []schema.Expectation) {
	for _, exp := range exps {
		actual, ok := attrs.Get(exp.Name)
		if !ok {
			slog.Info("missing attribute", "path", path, "attribute", exp.Name, "expected", value.Format(exp.Value))
			r.MissingAttributes = append(r.MissingAttributes, MissingAttribute{Path: path, Name: exp.Name, Expected: exp.Value})
			continue
		}
		if !value.Equal(actual, exp.Value) {
			slog.Info("attribute mismatch", "path", path, "attribute", exp.Name,
				"value", value.Format(actual), "expected", value.Format(exp.Value))
			r.Mismatches = append(r.Mismatches, Mismatch{
				Path:      path,
				Attribute: exp.Name,
				Expected:  value.Format(exp.Value),
				Actual:    value.Format(actual),
			})
			continue
		}
		slog.Debug("attribute", "path", path, "attribute", exp.Name, "value", value.Format(actual))
	}
}

// CheckFile opens filename, expands r against it and checks it. The file
// handle is released before CheckFile returns, whatever the outcome.
// Open failures are returned as *tree.OpenError.
func CheckFile(filename string, r *schema.Registry) (*Report, error) {
	slog.Info("checking file", "file", filename)

	t, err := tree.Open(filename)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := t.Close(); cerr != nil {
			slog.Warn("closing file failed", "file", filename, "error", cerr)
		}
	}()

	snap, err := schema.Expand(t, r)
	if err != nil {
		return nil, fmt.Errorf("check %s: %w", filename, err)
	}

	rep := Check(t, snap)
	rep.File = filename
	return rep, nil
}
