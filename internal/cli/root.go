package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/nxcheck/internal/config"
	"github.com/roach88/nxcheck/internal/dat"
	"github.com/roach88/nxcheck/internal/ledger"
	"github.com/roach88/nxcheck/internal/schema"
	"github.com/roach88/nxcheck/internal/tree"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format     string // "json" | "text"
	Info       bool
	Debug      bool
	ConfigFile string
	Database   string
	NoColor    bool

	// Config is loaded before any subcommand runs.
	Config *config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the nxcheck CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "nxcheck",
		Short: "nxcheck - NeXus data integrity checks",
		Long: `Check NeXus files against the expected beamline structure and compare
SRS .dat files with the tables converted from their NeXus counterparts.

Exit codes:
  0  every file conformant or equivalent
  1  discrepancies found
  2  usage, parse, configuration or I/O error`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVar(&opts.Info, "info", false, "log every checked node")
	cmd.PersistentFlags().BoolVar(&opts.Debug, "debug", false, "log debugging detail")
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (default ./nxcheck.yaml)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "run ledger database (overrides config)")
	cmd.PersistentFlags().BoolVar(&opts.NoColor, "no-color", false, "disable colored output")

	// Add subcommands
	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewCompareCommand(opts))
	cmd.AddCommand(NewDiffCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewSchemaCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd
}

// Execute runs the CLI with args and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	var exitErr *ExitError
	if err != nil && !errors.As(err, &exitErr) {
		// flag and argument errors are not reported by the commands
		fmt.Fprintf(stderr, "Error [%s]: %v\n", ErrCodeUsage, err)
		fmt.Fprintf(stderr, "Run '%s --help' for usage.\n", cmd.CommandPath())
	}
	return GetExitCode(err)
}

// setup validates global flags, installs the logger and loads config.
func (o *RootOptions) setup(cmd *cobra.Command) error {
	f := o.formatter(cmd)
	if !isValidFormat(o.Format) {
		return f.Fail(ErrCodeUsage, fmt.Sprintf("invalid format %q: must be one of %v", f.Format, ValidFormats), nil)
	}

	level := slog.LevelWarn
	switch {
	case o.Debug:
		level = slog.LevelDebug
	case o.Info:
		level = slog.LevelInfo
	}
	handler := slog.NewTextHandler(f.GetErrWriter(), &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))

	cfg, err := config.Load(o.ConfigFile)
	if err != nil {
		return f.Fail(ErrCodeConfig, "failed to load configuration", err)
	}
	if o.Database != "" {
		cfg.Database = o.Database
	}
	o.Config = cfg
	slog.Debug("configuration loaded", "tolerance", cfg.Tolerance, "schema", cfg.Schema, "database", cfg.Database)
	return nil
}

// formatter returns an OutputFormatter writing to cmd's streams.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		NoColor:   o.NoColor,
	}
}

// registry builds the schema registry from the configured baseline.
func (o *RootOptions) registry() (*schema.Registry, error) {
	if o.Config.Schema == "" {
		return schema.DefaultRegistry()
	}
	b, err := schema.LoadBaselineFile(o.Config.Schema)
	if err != nil {
		return nil, err
	}
	return schema.NewRegistry(b, schema.DefaultRules()...), nil
}

// openLedger opens the run ledger, or returns nil when none is configured.
func (o *RootOptions) openLedger() (*ledger.Ledger, error) {
	if o.Config.Database == "" {
		return nil, nil
	}
	return ledger.Open(o.Config.Database)
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// errorCode classifies err for CLIError.Code.
func errorCode(err error) string {
	var (
		parseErr *dat.ParseError
		loadErr  *schema.LoadError
		openErr  *tree.OpenError
	)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ErrCodeNotFound
	case errors.As(err, &parseErr), errors.As(err, &loadErr):
		return ErrCodeParse
	case errors.As(err, &openErr), errors.As(err, new(*fs.PathError)):
		return ErrCodeIO
	}
	return ErrCodeGeneric
}

// fileError converts a per-file failure into a CLIError.
func fileError(err error) *CLIError {
	return &CLIError{Code: errorCode(err), Message: err.Error()}
}

// batchExit returns the exit error for a batch: command errors take
// precedence over discrepancies.
func batchExit(files, discrepant, failed int) error {
	switch {
	case failed > 0:
		return NewExitError(ExitCommandError, fmt.Sprintf("%d of %d file(s) could not be processed", failed, files))
	case discrepant > 0:
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d file(s) have discrepancies", discrepant, files))
	}
	return nil
}

// status is the CLIResponse status for a batch.
func status(failed int) string {
	if failed > 0 {
		return "error"
	}
	return "ok"
}
