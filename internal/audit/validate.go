package audit

import (
	"context"
	"log/slog"

	"github.com/roach88/nxcheck/internal/external"
)

// Validate runs the structural validator on file. Validator failures are
// reported in the result, never returned.
func Validate(ctx context.Context, v external.Validator, file string) *external.ValidationResult {
	res, err := v.Validate(ctx, file)
	if res == nil {
		res = &external.ValidationResult{File: file}
	}
	if err != nil {
		slog.Warn("validation failed", "file", file, "error", err)
		res.Failed = true
		res.Message = err.Error()
	}
	return res
}
