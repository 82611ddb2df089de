package schema

import (
	"fmt"
	"log/slog"

	"github.com/roach88/nxcheck/internal/tree"
)

// Registry pairs an immutable Baseline with classifier rules.
// A Registry is safe to share between runs; every Expand works on copies.
type Registry struct {
	baseline *Baseline
	rules    []Rule
}

// NewRegistry returns a Registry. A nil baseline means EmptyBaseline.
// Rules run in the order given.
func NewRegistry(b *Baseline, rules ...Rule) *Registry {
	if b == nil {
		b = EmptyBaseline()
	}
	return &Registry{baseline: b, rules: rules}
}

// DefaultRegistry returns the embedded I16 baseline with DefaultRules.
func DefaultRegistry() (*Registry, error) {
	b, err := DefaultBaseline()
	if err != nil {
		return nil, fmt.Errorf("load default baseline: %w", err)
	}
	return NewRegistry(b, DefaultRules()...), nil
}

// Baseline returns the registry's baseline. Callers must not mutate it.
func (r *Registry) Baseline() *Baseline {
	return r.baseline
}

// Rules returns the registered rules in order.
func (r *Registry) Rules() []Rule {
	return r.rules
}

// instance is a discovered group awaiting its rules.
type instance struct {
	path  string
	group *tree.Group
}

// Expand builds the file-specific Snapshot: a copy of the baseline plus the
// entries the rules synthesize for every classified group in t.
// Discovery covers the whole tree before any rule runs.
func Expand(t tree.Tree, r *Registry) (*Snapshot, error) {
	classes := make(map[string]bool, len(r.rules))
	for _, rule := range r.rules {
		classes[rule.Class()] = true
	}

	found := make(map[string][]instance)
	err := t.Walk(func(path string, n tree.Node) error {
		g, ok := n.(*tree.Group)
		if !ok || !classes[g.Class] {
			return nil
		}
		found[g.Class] = append(found[g.Class], instance{path: path, group: g})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover classes: %w", err)
	}

	snap := &Snapshot{
		Schema:     r.baseline.Paths.Clone(),
		Attributes: r.baseline.Attributes.Clone(),
	}

	for _, rule := range r.rules {
		for _, inst := range found[rule.Class()] {
			slog.Debug("expanding schema", "class", rule.Class(), "path", inst.path)
			rule.Expand(RuleContext{
				Path:     inst.path,
				Group:    inst.group,
				Tree:     t,
				Baseline: r.baseline,
				Snapshot: snap,
			})
		}
	}

	return snap, nil
}
