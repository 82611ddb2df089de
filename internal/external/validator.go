package external

import (
	"context"
	"log/slog"
)

// ValidationResult is the outcome of one structural validation.
type ValidationResult struct {
	File   string `json:"file"`
	Output string `json:"output"`
	// Failed is set when the validator could not run or rejected the file.
	Failed  bool   `json:"failed"`
	Message string `json:"message,omitempty"`
}

// Validator checks a file against the NeXus definitions.
type Validator interface {
	Validate(ctx context.Context, file string) (*ValidationResult, error)
}

// ExecValidator runs a validator program.
type ExecValidator struct {
	cmd Command
}

var _ Validator = (*ExecValidator)(nil)

// NewValidator returns a validator running cmd. A zero Command means
// DefaultValidator.
func NewValidator(cmd Command) *ExecValidator {
	if cmd.Name == "" {
		cmd = DefaultValidator
	}
	return &ExecValidator{cmd: cmd}
}

// Validate implements Validator. The result carries the tool output even
// when the run fails.
func (v *ExecValidator) Validate(ctx context.Context, file string) (*ValidationResult, error) {
	slog.Info("validating", "file", file, "tool", v.cmd.Name)

	out, err := v.cmd.run(ctx, map[string]string{VarFile: file})
	res := &ValidationResult{File: file, Output: out}
	if err != nil {
		return res, err
	}
	return res, nil
}
