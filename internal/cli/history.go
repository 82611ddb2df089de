package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/nxcheck/internal/ledger"
)

// fingerprintWidth is how much of a fingerprint text output shows.
const fingerprintWidth = 12

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [file]",
		Short: "List recorded runs from the ledger",
		Long: `List the runs recorded in the run ledger, oldest first, optionally
only those for one file. Requires a database (--db or "database" in the
config file).

Example:
  nxcheck history --db nxcheck.db
  nxcheck history --db nxcheck.db 1040323.nxs`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			file := ""
			if len(args) == 1 {
				file = args[0]
			}
			return runHistory(rootOpts, file, cmd)
		},
	}
	return cmd
}

func runHistory(opts *RootOptions, file string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	if opts.Config.Database == "" {
		return f.Fail(ErrCodeConfig, "no ledger database configured (use --db)", nil)
	}

	led, err := opts.openLedger()
	if err != nil {
		return f.Fail(ErrCodeIO, "failed to open ledger", err)
	}
	defer led.Close()

	runs, err := led.List(cmd.Context(), file)
	if err != nil {
		return f.Fail(ErrCodeIO, "failed to read ledger", err)
	}

	if f.Format == "json" {
		return f.JSON(CLIResponse{Status: "ok", Data: runs})
	}

	t := NewTable(f.Writer, []string{"SEQ", "KIND", "SCORE", "FINGERPRINT", "FILE"}, f.NoColor)
	for _, r := range runs {
		t.AddRow(strconv.FormatInt(r.Seq, 10), string(r.Kind), strconv.Itoa(r.Score), shortFingerprint(r), r.File)
	}
	t.Render()
	return nil
}

func shortFingerprint(r ledger.Run) string {
	if len(r.Fingerprint) > fingerprintWidth {
		return r.Fingerprint[:fingerprintWidth]
	}
	return r.Fingerprint
}
