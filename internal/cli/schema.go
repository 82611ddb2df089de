package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/nxcheck/internal/schema"
	"github.com/roach88/nxcheck/internal/tree"
	"github.com/roach88/nxcheck/internal/value"
)

// SchemaEntry is one expected path in schema output.
type SchemaEntry struct {
	Path       string            `json:"path"`
	Expected   string            `json:"expected"`
	Attributes []SchemaAttribute `json:"attributes,omitempty"`
}

// SchemaAttribute is one expected attribute in schema output.
type SchemaAttribute struct {
	Name  string      `json:"name"`
	Value value.Value `json:"value"`
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema <file>",
		Short: "Print the schema expanded for a file",
		Long: `Print every path and attribute the check command would expect in a
file: the baseline plus the entries derived from its NXentry, NXdata and
NXdetector groups.

Example:
  nxcheck schema 1040323.nxs`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runSchema(opts *RootOptions, file string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	reg, err := opts.registry()
	if err != nil {
		return f.Fail(errorCode(err), "failed to load baseline schema", err)
	}

	t, err := tree.Open(file)
	if err != nil {
		return f.Fail(errorCode(err), "failed to open file", err)
	}
	defer func() {
		if cerr := t.Close(); cerr != nil {
			slog.Warn("closing file failed", "file", file, "error", cerr)
		}
	}()

	snap, err := schema.Expand(t, reg)
	if err != nil {
		return f.Fail(ErrCodeIO, "failed to expand schema", err)
	}

	entries := make([]SchemaEntry, 0, snap.Schema.Len())
	for _, e := range snap.Schema.Entries() {
		se := SchemaEntry{Path: e.Path, Expected: e.Expected}
		exps, _ := snap.Attributes.Get(e.Path)
		for _, exp := range exps {
			se.Attributes = append(se.Attributes, SchemaAttribute{Name: exp.Name, Value: exp.Value})
		}
		entries = append(entries, se)
	}

	if f.Format == "json" {
		return f.JSON(CLIResponse{Status: "ok", Data: entries})
	}

	w := f.Writer
	f.heading().Fprintf(w, "---%s---\n", file)
	for _, e := range entries {
		fmt.Fprintf(w, "%s = %s\n", e.Path, e.Expected)
		for _, a := range e.Attributes {
			f.faint().Fprintf(w, "  @%s = %s\n", a.Name, value.Format(a.Value))
		}
	}
	fmt.Fprintf(w, "%d path(s)\n", len(entries))
	return nil
}
