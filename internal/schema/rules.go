package schema

import (
	"github.com/roach88/nxcheck/internal/tree"
	"github.com/roach88/nxcheck/internal/value"
)

// Built-in class tags.
const (
	ClassEntry    = "NXentry"
	ClassData     = "NXdata"
	ClassDetector = "NXdetector"
)

// axesPlaceholder marks an NXdata dimension without an axis.
const axesPlaceholder = "."

// RuleContext is what a Rule sees for one discovered group.
// Rules read only the group and its direct children.
type RuleContext struct {
	Path     string
	Group    *tree.Group
	Tree     tree.Tree
	Baseline *Baseline
	Snapshot *Snapshot
}

// child resolves a direct child of the group.
func (rc RuleContext) child(name string) (tree.Node, bool) {
	return rc.Tree.Get(tree.Join(rc.Path, name))
}

// Rule synthesizes schema entries for every group of one class.
type Rule interface {
	Class() string
	Expand(rc RuleContext)
}

// DefaultRules returns the built-in rules in registration order.
// NXentry runs before NXdata so that an NXdata group named by an entry's
// default attribute gets the richer NXdata entries.
func DefaultRules() []Rule {
	return []Rule{EntryRule{}, DataRule{}, DetectorRule{}}
}

// EntryRule expects every NXentry to keep its class and, when it names a
// default plottable child, expects that child to be NXdata.
type EntryRule struct{}

func (EntryRule) Class() string { return ClassEntry }

func (EntryRule) Expand(rc RuleContext) {
	rc.Snapshot.Schema.Set(rc.Path, ClassEntry)
	rc.Snapshot.Attributes.Set(rc.Path, rc.Baseline.EntryAttributes)

	if def, ok := rc.Group.Attributes().Text("default"); ok && def != "" {
		rc.Snapshot.Schema.Set(tree.Join(rc.Path, def), ClassData)
	}
}

// DataRule expects every NXdata group, its datasets and the datasets its
// signal and axes attributes name.
type DataRule struct{}

func (DataRule) Class() string { return ClassData }

func (DataRule) Expand(rc RuleContext) {
	snap := rc.Snapshot
	snap.Schema.Set(rc.Path, ClassData)
	snap.Attributes.Set(rc.Path, rc.Baseline.DataAttributes)

	for _, name := range rc.Group.Children {
		n, ok := rc.child(name)
		if !ok {
			continue
		}
		if _, isDataset := n.(*tree.Dataset); !isDataset {
			continue
		}
		p := tree.Join(rc.Path, name)
		snap.Schema.Set(p, DescArray)
		snap.Attributes.Set(p, rc.Baseline.DatasetAttributes)
	}

	attrs := rc.Group.Attributes()
	if signal, ok := attrs.Text("signal"); ok && signal != "" {
		snap.Schema.Set(tree.Join(rc.Path, signal), DescSignal)
	}
	if raw, ok := attrs.Get("axes"); ok {
		axes, _ := value.Strings(raw)
		for _, axis := range axes {
			if axis == "" || axis == axesPlaceholder {
				continue
			}
			snap.Schema.Set(tree.Join(rc.Path, axis), DescAxes)
		}
	}
}

// DetectorRule expects the detector template below every NXdetector group.
type DetectorRule struct{}

func (DetectorRule) Class() string { return ClassDetector }

func (DetectorRule) Expand(rc RuleContext) {
	rc.Snapshot.Schema.Set(rc.Path, ClassDetector)
	for _, e := range rc.Baseline.DetectorTemplate {
		rc.Snapshot.Schema.Set(tree.Join(rc.Path, e.Path), e.Expected)
	}
}
