package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "nxcheck.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func checkRun(file string, score int, fp string) Run {
	return Run{
		Kind:        KindCheck,
		File:        file,
		Score:       score,
		Fingerprint: fp,
		Report:      json.RawMessage(fmt.Sprintf(`{"score":%d}`, score)),
	}
}

func TestOpenCreatesDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nxcheck.db")

	l, err := Open(path)
	require.NoError(t, err)
	defer l.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nxcheck.db")

	for i := 0; i < 3; i++ {
		l, err := Open(path)
		require.NoError(t, err, "open %d", i)
		require.NoError(t, l.Close())
	}

	l, err := Open(path)
	require.NoError(t, err)
	defer l.Close()

	var name string
	err = l.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='runs'").Scan(&name)
	assert.NoError(t, err)
}

func TestPragmas(t *testing.T) {
	l := openTestLedger(t)

	assert.NoError(t, l.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, l.verifyPragma("synchronous", "1"))
	assert.NoError(t, l.verifyPragma("busy_timeout", "5000"))
	assert.NoError(t, l.verifyPragma("foreign_keys", "1"))
	assert.NoError(t, l.verifyPragma("user_version", "1"))
}

func TestOpenRefusesNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nxcheck.db")
	l, err := Open(path)
	require.NoError(t, err)
	_, err = l.db.Exec("PRAGMA user_version = 99")
	require.NoError(t, err)
	require.NoError(t, l.Close())

	_, err = Open(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer than supported")
}

func TestRecordAssignsIDAndSeq(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	first, err := l.Record(ctx, checkRun("a.nxs", 100, "fp-a"))
	require.NoError(t, err)
	second, err := l.Record(ctx, checkRun("b.nxs", 0, "fp-b"))
	require.NoError(t, err)

	assert.Len(t, first.ID, 36)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, int64(1), first.Seq)
	assert.Equal(t, int64(2), second.Seq)
}

func TestRecordRejectsInvalidReport(t *testing.T) {
	l := openTestLedger(t)

	_, err := l.Record(context.Background(), Run{Kind: KindCheck, File: "a.nxs", Report: json.RawMessage("{")})
	assert.Error(t, err)
}

func TestRecordRejectsUnknownKind(t *testing.T) {
	l := openTestLedger(t)

	run := checkRun("a.nxs", 0, "fp")
	run.Kind = "replay"
	_, err := l.Record(context.Background(), run)
	assert.Error(t, err)
}

func TestListOrderAndFilter(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	for _, r := range []Run{
		checkRun("a.nxs", 100, "fp1"),
		checkRun("b.nxs", 0, "fp2"),
		checkRun("a.nxs", 0, "fp3"),
	} {
		_, err := l.Record(ctx, r)
		require.NoError(t, err)
	}

	all, err := l.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{all[0].Seq, all[1].Seq, all[2].Seq})

	onlyA, err := l.List(ctx, "a.nxs")
	require.NoError(t, err)
	require.Len(t, onlyA, 2)
	assert.Equal(t, "fp1", onlyA[0].Fingerprint)
	assert.Equal(t, "fp3", onlyA[1].Fingerprint)
	assert.JSONEq(t, `{"score":100}`, string(onlyA[0].Report))
	assert.Equal(t, KindCheck, onlyA[0].Kind)
}

func TestListEmpty(t *testing.T) {
	l := openTestLedger(t)

	runs, err := l.List(context.Background(), "absent.nxs")
	require.NoError(t, err)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)
}

func TestLatest(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	_, err := l.Latest(ctx, KindCheck, "a.nxs")
	assert.True(t, errors.Is(err, sql.ErrNoRows))

	_, err = l.Record(ctx, checkRun("a.nxs", 100, "fp1"))
	require.NoError(t, err)
	_, err = l.Record(ctx, checkRun("a.nxs", 1, "fp2"))
	require.NoError(t, err)

	latest, err := l.Latest(ctx, KindCheck, "a.nxs")
	require.NoError(t, err)
	assert.Equal(t, "fp2", latest.Fingerprint)
	assert.Equal(t, 1, latest.Score)

	_, err = l.Latest(ctx, KindCompare, "a.nxs")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func mockLedger(t *testing.T) (*Ledger, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &Ledger{db: db}, mock
}

func TestRecordInsertFailureRollsBack(t *testing.T) {
	l, mock := mockLedger(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(seq\), 0\) \+ 1 FROM runs`).
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(7))
	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(sqlmock.AnyArg(), int64(7), "check", "a.nxs", 100, "fp", `{"score":100}`).
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	_, err := l.Record(context.Background(), checkRun("a.nxs", 100, "fp"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record run: insert: disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordCommitFailure(t *testing.T) {
	l, mock := mockLedger(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COALESCE`).
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(1))
	mock.ExpectExec(`INSERT INTO runs`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit().WillReturnError(errors.New("database is locked"))

	_, err := l.Record(context.Background(), checkRun("a.nxs", 0, "fp"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "commit")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListQueryFailure(t *testing.T) {
	l, mock := mockLedger(t)

	mock.ExpectQuery(`SELECT id, seq, kind, file, score, fingerprint, report`).
		WithArgs("a.nxs").
		WillReturnError(errors.New("no such table: runs"))

	_, err := l.List(context.Background(), "a.nxs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query runs")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListScanFailure(t *testing.T) {
	l, mock := mockLedger(t)

	mock.ExpectQuery(`SELECT id, seq, kind, file, score, fingerprint, report`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "seq", "kind", "file", "score", "fingerprint", "report"}).
			AddRow("id-1", "not-a-number", "check", "a.nxs", 0, "fp", "{}"))

	_, err := l.List(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scan run")
	assert.NoError(t, mock.ExpectationsWereMet())
}
