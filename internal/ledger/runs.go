package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Kind is the operation a run recorded.
type Kind string

// Run kinds.
const (
	KindCheck    Kind = "check"
	KindCompare  Kind = "compare"
	KindValidate Kind = "validate"
)

// Run is one recorded operation on one file.
type Run struct {
	ID          string          `json:"id"`
	Seq         int64           `json:"seq"`
	Kind        Kind            `json:"kind"`
	File        string          `json:"file"`
	Score       int             `json:"score"`
	Fingerprint string          `json:"fingerprint"`
	Report      json.RawMessage `json:"report"`
}

// Record appends run to the ledger and returns it with its ID and Seq
// assigned. The report must be valid JSON.
func (l *Ledger) Record(ctx context.Context, run Run) (Run, error) {
	if !json.Valid(run.Report) {
		return Run{}, fmt.Errorf("record run: report is not valid JSON")
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, fmt.Errorf("record run: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM runs`).Scan(&run.Seq); err != nil {
		return Run{}, fmt.Errorf("record run: next seq: %w", err)
	}
	run.ID = uuid.NewString()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, seq, kind, file, score, fingerprint, report)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Seq,
		string(run.Kind),
		run.File,
		run.Score,
		run.Fingerprint,
		string(run.Report),
	)
	if err != nil {
		return Run{}, fmt.Errorf("record run: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("record run: commit: %w", err)
	}
	return run, nil
}

// List returns recorded runs in seq order. An empty file lists every run.
// Returns an empty slice (not nil) when nothing matches.
func (l *Ledger) List(ctx context.Context, file string) ([]Run, error) {
	query := `
		SELECT id, seq, kind, file, score, fingerprint, report
		FROM runs
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`
	var args []any
	if file != "" {
		query = `
		SELECT id, seq, kind, file, score, fingerprint, report
		FROM runs
		WHERE file = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`
		args = append(args, file)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Latest returns the most recent run of kind for file.
// Returns sql.ErrNoRows if there is none.
func (l *Ledger) Latest(ctx context.Context, kind Kind, file string) (Run, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT id, seq, kind, file, score, fingerprint, report
		FROM runs
		WHERE kind = ? AND file = ?
		ORDER BY seq DESC, id COLLATE BINARY DESC
		LIMIT 1
	`, string(kind), file)
	return scanRun(row)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		run    Run
		kind   string
		report string
	)
	if err := s.Scan(&run.ID, &run.Seq, &kind, &run.File, &run.Score, &run.Fingerprint, &report); err != nil {
		if err == sql.ErrNoRows {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.Kind = Kind(kind)
	run.Report = json.RawMessage(report)
	return run, nil
}
