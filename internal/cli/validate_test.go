package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePasses(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, `
validator:
  command: echo
  args: ["checked", "{file}"]
`)

	stdout, _, code := execute(t, "--config", cfg, "validate", "a.nxs", "b.nxs")

	assert.Equal(t, ExitSuccess, code)
	want := "" +
		"---a.nxs---\n" +
		"validator report:\n" +
		"checked a.nxs\n" +
		"\n" +
		"---b.nxs---\n" +
		"validator report:\n" +
		"checked b.nxs\n" +
		"\n" +
		"Completed: 2 file(s), 0 with discrepancies, 0 error(s)\n"
	assert.Equal(t, want, stdout)
}

func TestValidateFailureDoesNotStopBatch(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, `
validator:
  command: sh
  args: ["-c", "echo \"report for $0\"; case $0 in bad*) exit 1;; esac", "{file}"]
`)

	stdout, _, code := execute(t, "--config", cfg, "validate", "bad.nxs", "good.nxs")

	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, stdout, "---bad.nxs---\nvalidator failed with error:\n")
	assert.Contains(t, stdout, "report for bad.nxs")
	assert.Contains(t, stdout, "---good.nxs---\nvalidator report:\nreport for good.nxs\n")
	assert.Contains(t, stdout, "Completed: 2 file(s), 1 with discrepancies, 0 error(s)")
}

func TestValidateMissingTool(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, `
validator:
  command: nxcheck-no-such-validator
`)

	stdout, _, code := execute(t, "--config", cfg, "--format", "json", "validate", "a.nxs")

	assert.Equal(t, ExitFailure, code)

	var resp struct {
		Status string `json:"status"`
		Data   []struct {
			File    string `json:"file"`
			Failed  bool   `json:"failed"`
			Message string `json:"message"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "a.nxs", resp.Data[0].File)
	assert.True(t, resp.Data[0].Failed)
	assert.Contains(t, resp.Data[0].Message, "nxcheck-no-such-validator")
}

func TestValidateRecordsHistory(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, `
validator:
  command: echo
  args: ["{file}"]
`)
	db := filepath.Join(dir, "runs.db")

	_, _, code := execute(t, "--config", cfg, "--db", db, "validate", "a.nxs")
	require.Equal(t, ExitSuccess, code)
	stdout, _, code := execute(t, "--config", cfg, "--db", db, "validate", "a.nxs")
	require.Equal(t, ExitSuccess, code)

	assert.Contains(t, stdout, "(unchanged since run 1)")

	stdout, _, code = execute(t, "--db", db, "history")
	require.Equal(t, ExitSuccess, code)
	assert.Regexp(t, `(?m)^2\s+validate\s+0\s+[0-9a-f]{12}\s+a\.nxs$`, stdout)
}
