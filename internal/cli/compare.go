package cli

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/nxcheck/internal/audit"
	"github.com/roach88/nxcheck/internal/dat"
	"github.com/roach88/nxcheck/internal/external"
	"github.com/roach88/nxcheck/internal/ledger"
	"github.com/roach88/nxcheck/internal/value"
)

// CompareResult is the outcome of comparing one original .dat file.
type CompareResult struct {
	File       string          `json:"file"`
	Comparison *dat.Comparison `json:"comparison,omitempty"`
	Previous   *Previous       `json:"previous,omitempty"`
	Error      *CLIError       `json:"error,omitempty"`
}

// NewCompareCommand creates the compare command.
func NewCompareCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare <old.dat>...",
		Short: "Convert NeXus files to .dat and compare with the originals",
		Long: `For each original scan file 123456.dat, convert 123456.nxs to
123456.nexus2srs.dat with the configured converter and compare the two
tables. Columns differ when the norm of their difference exceeds the
tolerance; metadata falls back to text comparison.

Example:
  nxcheck compare 571664.dat
  nxcheck compare --format json /dls/i16/data/2024/*.dat`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompare(rootOpts, args, cmd)
		},
	}
	return cmd
}

// NewDiffCommand creates the diff command.
func NewDiffCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <old.dat> <new.dat>",
		Short: "Compare two existing .dat files",
		Long: `Compare two .dat tables without running the converter.

Example:
  nxcheck diff 571664.dat 571664.nexus2srs.dat`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(rootOpts, args[0], args[1], cmd)
		},
	}
	return cmd
}

func runCompare(opts *RootOptions, files []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	conv := external.NewConverter(opts.Config.Converter.Tool())

	led, err := opts.openLedger()
	if err != nil {
		return f.Fail(ErrCodeIO, "failed to open ledger", err)
	}
	if led != nil {
		defer led.Close()
	}

	results := make([]CompareResult, 0, len(files))
	discrepant, failed := 0, 0
	for _, file := range files {
		res := CompareResult{File: file}

		c, err := audit.ConvertAndCompare(cmd.Context(), conv, file, opts.Config.CompareOptions())
		if err != nil {
			slog.Error("compare failed", "file", file, "error", err)
			res.Error = fileError(err)
			failed++
			results = append(results, res)
			continue
		}
		res.Comparison = c
		if !c.Equivalent() {
			discrepant++
		}

		fp, err := c.Fingerprint()
		if err == nil {
			res.Previous, err = record(cmd.Context(), led, ledger.KindCompare, file, c.Discrepancies(), fp, c)
		}
		if err != nil {
			slog.Error("recording run failed", "file", file, "error", err)
			res.Error = &CLIError{Code: ErrCodeIO, Message: err.Error()}
			failed++
		}
		results = append(results, res)
	}

	if f.Format == "json" {
		if err := f.JSON(CLIResponse{Status: status(failed), Data: results}); err != nil {
			return err
		}
		return batchExit(len(files), discrepant, failed)
	}

	for _, res := range results {
		writeCompareResult(f, res)
	}
	writeSummary(f, len(files), discrepant, failed)
	return batchExit(len(files), discrepant, failed)
}

func runDiff(opts *RootOptions, oldDat, newDat string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	c, err := audit.DiffFiles(oldDat, newDat, opts.Config.CompareOptions())
	if err != nil {
		return f.Fail(errorCode(err), "failed to read table", err)
	}

	if f.Format == "json" {
		if err := f.JSON(CLIResponse{Status: "ok", Data: c}); err != nil {
			return err
		}
	} else {
		writeCompareResult(f, CompareResult{File: oldDat, Comparison: c})
	}

	if !c.Equivalent() {
		return NewExitError(ExitFailure, fmt.Sprintf("%d discrepancies", c.Discrepancies()))
	}
	return nil
}

func writeCompareResult(f *OutputFormatter, res CompareResult) {
	w := f.Writer
	f.heading().Fprintf(w, "---%s---\n", res.File)
	if res.Error != nil {
		f.bad().Fprintf(w, "Error [%s]: %s\n\n", res.Error.Code, res.Error.Message)
		return
	}
	c := res.Comparison

	fmt.Fprintf(w, "Old file: %s\n", c.OldFile)
	fmt.Fprintf(w, "Converted file: %s\n", c.NewFile)
	if c.ToolError != "" {
		f.bad().Fprintf(w, "Converter failed: %s\n", c.ToolError)
	}
	fmt.Fprintf(w, "%-20s  Original  :  Converted\n", "")
	fmt.Fprintf(w, "%-20s %9d  :  %d\n", "Scannables", c.OldColumns, c.NewColumns)
	fmt.Fprintf(w, "%-20s %9d  :  %d\n", "Metadata", c.OldMetadata, c.NewMetadata)
	fmt.Fprintf(w, "%-20s %9d  :  %d\n", "Scan length", c.OldRows, c.NewRows)

	section(f, "Different scan data", len(c.DifferentColumns), func() {
		for _, d := range c.DifferentColumns {
			if d.LengthMismatch() {
				f.bad().Fprintf(w, "  %s: length %d : %d\n", d.Name, d.OldRows, d.NewRows)
				continue
			}
			f.bad().Fprintf(w, "  %s: %s\n", d.Name, strconv.FormatFloat(float64(d.Norm), 'g', 4, 64))
		}
	})
	section(f, "Different metadata", len(c.DifferentMetadata), func() {
		for _, d := range c.DifferentMetadata {
			f.bad().Fprintf(w, "  %s : %s : %s\n", d.Name, value.Format(d.Old), value.Format(d.New))
		}
	})
	section(f, "Missing scannables", len(c.RemovedColumns), func() {
		for _, s := range c.RemovedColumns {
			f.bad().Fprintf(w, "  %s: (%d,)\n", s.Name, s.Rows)
		}
	})
	section(f, "New scannables", len(c.AddedColumns), func() {
		for _, s := range c.AddedColumns {
			f.warn().Fprintf(w, "  %s: (%d,)\n", s.Name, s.Rows)
		}
	})
	section(f, "Missing metadata", len(c.RemovedMetadata), func() {
		for _, m := range c.RemovedMetadata {
			f.bad().Fprintf(w, "  %s: %s\n", m.Name, value.Format(m.Value))
		}
	})
	section(f, "New metadata", len(c.AddedMetadata), func() {
		for _, m := range c.AddedMetadata {
			f.warn().Fprintf(w, "  %s: %s\n", m.Name, value.Format(m.Value))
		}
	})

	fmt.Fprint(w, "Discrepancies: ")
	if c.Equivalent() {
		f.good().Fprint(w, "0")
	} else {
		f.bad().Fprintf(w, "%d", c.Discrepancies())
	}
	writePrevious(f, res.Previous)
	fmt.Fprintln(w)
	fmt.Fprintln(w)
}

func section(f *OutputFormatter, title string, n int, body func()) {
	fmt.Fprintf(f.Writer, "%s (%d):\n", title, n)
	body()
}
