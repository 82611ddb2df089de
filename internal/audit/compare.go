package audit

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/nxcheck/internal/dat"
	"github.com/roach88/nxcheck/internal/external"
)

// ConvertedSuffix marks the .dat file written by the converter.
const ConvertedSuffix = ".nexus2srs.dat"

// Outputs derives the NeXus source and the converted table for an
// original scan file: 123456.dat gives 123456.nxs and 123456.nexus2srs.dat
// in the same directory.
func Outputs(oldDat string) (nexusFile, newDat string) {
	stem := strings.TrimSuffix(oldDat, filepath.Ext(oldDat))
	return stem + ".nxs", stem + ConvertedSuffix
}

// ConvertAndCompare regenerates the converted table for oldDat and
// compares it with the original.
//
// Any stale converted table is removed first. If the converter fails, or
// its output cannot be parsed, the result is a degraded comparison with
// ToolError set and only the original's counts filled in. Errors are
// returned only when oldDat itself cannot be read.
func ConvertAndCompare(ctx context.Context, conv external.Converter, oldDat string, opts dat.Options) (*dat.Comparison, error) {
	nexusFile, newDat := Outputs(oldDat)
	slog.Info("convert and compare", "old", oldDat, "nexus", nexusFile, "new", newDat)

	oldT, err := dat.Read(oldDat)
	if err != nil {
		return nil, err
	}

	if err := os.Remove(newDat); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("remove stale %s: %w", newDat, err)
	}

	degraded := func(err error) *dat.Comparison {
		slog.Warn("conversion failed", "old", oldDat, "error", err)
		c := dat.NewComparison(oldDat, newDat, opts)
		c.Summarize(oldT, nil)
		c.ToolError = err.Error()
		return c
	}

	if err := conv.Convert(ctx, nexusFile, newDat); err != nil {
		return degraded(err), nil
	}
	newT, err := dat.Read(newDat)
	if err != nil {
		return degraded(err), nil
	}

	c := dat.Compare(oldT, newT, opts)
	c.OldFile, c.NewFile = oldDat, newDat
	return c, nil
}

// DiffFiles compares two existing tables without running the converter.
func DiffFiles(oldDat, newDat string, opts dat.Options) (*dat.Comparison, error) {
	oldT, err := dat.Read(oldDat)
	if err != nil {
		return nil, err
	}
	newT, err := dat.Read(newDat)
	if err != nil {
		return nil, err
	}

	c := dat.Compare(oldT, newT, opts)
	c.OldFile, c.NewFile = oldDat, newDat
	return c, nil
}
