package external

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// Converter writes a .dat table from a NeXus file. Convert returns only
// once datFile is fully written.
type Converter interface {
	Convert(ctx context.Context, nexusFile, datFile string) error
}

// ExecConverter runs a converter program.
type ExecConverter struct {
	cmd Command
}

var _ Converter = (*ExecConverter)(nil)

// NewConverter returns a converter running cmd. A zero Command means
// DefaultConverter.
func NewConverter(cmd Command) *ExecConverter {
	if cmd.Name == "" {
		cmd = DefaultConverter
	}
	return &ExecConverter{cmd: cmd}
}

// Convert implements Converter. A run that exits cleanly without creating
// datFile is a failure.
func (c *ExecConverter) Convert(ctx context.Context, nexusFile, datFile string) error {
	slog.Info("converting", "nexus", nexusFile, "dat", datFile, "tool", c.cmd.Name)

	out, err := c.cmd.run(ctx, map[string]string{VarNexus: nexusFile, VarDat: datFile})
	if err != nil {
		return err
	}
	if _, err := os.Stat(datFile); err != nil {
		return &ToolError{
			Tool:   c.cmd.Name,
			Args:   c.cmd.Expand(map[string]string{VarNexus: nexusFile, VarDat: datFile}),
			Output: out,
			Err:    fmt.Errorf("no output written to %s", datFile),
		}
	}
	return nil
}
