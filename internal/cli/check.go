package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/nxcheck/internal/check"
	"github.com/roach88/nxcheck/internal/ledger"
)

// CheckResult is the outcome of checking one file.
type CheckResult struct {
	File     string        `json:"file"`
	Report   *check.Report `json:"report,omitempty"`
	Previous *Previous     `json:"previous,omitempty"`
	Error    *CLIError     `json:"error,omitempty"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <file>...",
		Short: "Check NeXus files against the expected structure",
		Long: `Check NeXus files against the baseline schema expanded for each file.

Every NXentry, NXdata and NXdetector group found in a file adds its own
expectations. Missing paths score 100 each and missing attributes 1 each;
class and attribute value mismatches are reported but not scored.

Example:
  nxcheck check 1040323.nxs
  nxcheck check --info --format json *.nxs`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runCheck(opts *RootOptions, files []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	reg, err := opts.registry()
	if err != nil {
		return f.Fail(errorCode(err), "failed to load baseline schema", err)
	}
	led, err := opts.openLedger()
	if err != nil {
		return f.Fail(ErrCodeIO, "failed to open ledger", err)
	}
	if led != nil {
		defer led.Close()
	}

	results := make([]CheckResult, 0, len(files))
	discrepant, failed := 0, 0
	for _, file := range files {
		res := CheckResult{File: file}

		rep, err := check.CheckFile(file, reg)
		if err != nil {
			slog.Error("check failed", "file", file, "error", err)
			res.Error = fileError(err)
			failed++
			results = append(results, res)
			continue
		}
		res.Report = rep
		if !rep.Conformant() {
			discrepant++
		}

		fp, err := rep.Fingerprint()
		if err == nil {
			res.Previous, err = record(cmd.Context(), led, ledger.KindCheck, file, rep.Score, fp, rep)
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
		writeCheckResult(f, res)
	}
	writeSummary(f, len(files), discrepant, failed)
	return batchExit(len(files), discrepant, failed)
}

func writeCheckResult(f *OutputFormatter, res CheckResult) {
	w := f.Writer
	f.heading().Fprintf(w, "---%s---\n", res.File)
	if res.Error != nil {
		f.bad().Fprintf(w, "Error [%s]: %s\n\n", res.Error.Code, res.Error.Message)
		return
	}
	rep := res.Report

	fmt.Fprintf(w, "Missing paths (%d):\n", len(rep.MissingPaths))
	for _, m := range rep.MissingPaths {
		f.bad().Fprintf(w, "  %s\n", m)
	}
	fmt.Fprintf(w, "Missing attributes (%d):\n", len(rep.MissingAttributes))
	for _, m := range rep.MissingAttributes {
		f.bad().Fprintf(w, "  %s\n", m)
	}
	fmt.Fprintf(w, "Mismatches (%d):\n", len(rep.Mismatches))
	for _, m := range rep.Mismatches {
		f.warn().Fprintf(w, "  %s\n", m)
	}

	score := f.good()
	if !rep.Conformant() {
		score = f.bad()
	}
	fmt.Fprint(w, "Score: ")
	score.Fprintf(w, "%d", rep.Score)
	writePrevious(f, res.Previous)
	fmt.Fprintln(w)
	fmt.Fprintln(w)
}

func writePrevious(f *OutputFormatter, prev *Previous) {
	if prev == nil {
		return
	}
	if prev.Unchanged {
		f.faint().Fprintf(f.Writer, " (unchanged since run %d)", prev.Seq)
		return
	}
	f.faint().Fprintf(f.Writer, " (run %d scored %d)", prev.Seq, prev.Score)
}

func writeSummary(f *OutputFormatter, files, discrepant, failed int) {
	fmt.Fprintf(f.Writer, "Completed: %d file(s), %d with discrepancies, %d error(s)\n", files, discrepant, failed)
}
