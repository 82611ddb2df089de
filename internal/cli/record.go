package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/nxcheck/internal/ledger"
)

// Previous summarizes the last recorded run of the same kind on a file.
type Previous struct {
	Seq         int64  `json:"seq"`
	Score       int    `json:"score"`
	Unchanged   bool   `json:"unchanged"`
	Fingerprint string `json:"fingerprint"`
}

// record appends a run to l and returns the run it follows, if any.
// A nil ledger records nothing.
func record(ctx context.Context, l *ledger.Ledger, kind ledger.Kind, file string, score int, fingerprint string, report any) (*Previous, error) {
	if l == nil {
		return nil, nil
	}

	var prev *Previous
	last, err := l.Latest(ctx, kind, file)
	switch {
	case err == nil:
		prev = &Previous{
			Seq:         last.Seq,
			Score:       last.Score,
			Fingerprint: last.Fingerprint,
			Unchanged:   last.Fingerprint == fingerprint,
		}
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("read previous run: %w", err)
	}

	data, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	run, err := l.Record(ctx, ledger.Run{
		Kind:        kind,
		File:        file,
		Score:       score,
		Fingerprint: fingerprint,
		Report:      data,
	})
	if err != nil {
		return nil, err
	}
	slog.Debug("recorded run", "kind", kind, "file", file, "seq", run.Seq, "id", run.ID)
	return prev, nil
}
