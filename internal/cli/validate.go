package cli

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/nxcheck/internal/audit"
	"github.com/roach88/nxcheck/internal/external"
	"github.com/roach88/nxcheck/internal/ledger"
	"github.com/roach88/nxcheck/internal/value"
)

// ValidateResult is the outcome of validating one file.
type ValidateResult struct {
	*external.ValidationResult
	Previous *Previous `json:"previous,omitempty"`
	Error    *CLIError `json:"error,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Run the structural NeXus validator on files",
		Long: `Run the configured structural validator (punx by default) on each file
and print its report. A validator that fails or cannot be started is
reported for that file and the remaining files are still validated.

Example:
  nxcheck validate 1040323.nxs`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, files []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	v := external.NewValidator(opts.Config.Validator.Tool())

	led, err := opts.openLedger()
	if err != nil {
		return f.Fail(ErrCodeIO, "failed to open ledger", err)
	}
	if led != nil {
		defer led.Close()
	}

	results := make([]ValidateResult, 0, len(files))
	discrepant, failed := 0, 0
	for _, file := range files {
		res := ValidateResult{ValidationResult: audit.Validate(cmd.Context(), v, file)}
		score := 0
		if res.Failed {
			score = 1
			discrepant++
		}

		fp, err := value.Fingerprint(value.DomainValidateReport, map[string]any{
			"file":    res.File,
			"output":  res.Output,
			"failed":  res.Failed,
			"message": res.Message,
		})
		if err == nil {
			res.Previous, err = record(cmd.Context(), led, ledger.KindValidate, file, score, fp, res.ValidationResult)
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
		w := f.Writer
		f.heading().Fprintf(w, "---%s---\n", res.File)
		if res.Failed {
			f.bad().Fprintf(w, "validator failed with error:\n%s\n", res.Message)
		}
		fmt.Fprintln(w, "validator report:")
		if out := strings.TrimRight(res.Output, "\n"); out != "" {
			fmt.Fprintln(w, out)
		}
		if res.Previous != nil {
			fmt.Fprint(w, "Previous run:")
			writePrevious(f, res.Previous)
			fmt.Fprintln(w)
		}
		if res.Error != nil {
			f.bad().Fprintf(w, "Error [%s]: %s\n", res.Error.Code, res.Error.Message)
		}
		fmt.Fprintln(w)
	}
	writeSummary(f, len(files), discrepant, failed)
	return batchExit(len(files), discrepant, failed)
}
