package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testConfig points the checker at the small baseline in testdata.
const testConfig = "testdata/nxcheck.yaml"

// execute runs the CLI and returns its output streams and exit code.
func execute(t *testing.T, args ...string) (stdout, stderr string, code int) {
	t.Helper()
	var out, errOut bytes.Buffer
	code = Execute(context.Background(), append([]string{"--no-color"}, args...), &out, &errOut)
	return out.String(), errOut.String(), code
}

// writeConfig writes a config file into dir and returns its path.
func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "nxcheck.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newGolden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()

	assert.Equal(t, "nxcheck", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)
}

func TestRootCommandHasSubcommands(t *testing.T) {
	cmd := NewRootCommand()

	expected := []string{"check", "compare", "diff", "validate", "schema", "history"}
	for _, name := range expected {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestRootCommandGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	flags := map[string]string{
		"format":   "text",
		"info":     "false",
		"debug":    "false",
		"config":   "",
		"db":       "",
		"no-color": "false",
	}
	for name, def := range flags {
		t.Run(name, func(t *testing.T) {
			f := cmd.PersistentFlags().Lookup(name)
			require.NotNil(t, f)
			assert.Equal(t, def, f.DefValue)
		})
	}
}

func TestExecuteInvalidFormat(t *testing.T) {
	stdout, _, code := execute(t, "--format", "xml", "check", "testdata/scan.yaml")

	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stdout, "Error [E004]")
	assert.Contains(t, stdout, `invalid format "xml"`)
}

func TestExecuteLogsToErrWriter(t *testing.T) {
	stdout, stderr, _ := execute(t, "--config", testConfig, "--debug", "check", "testdata/conforming.yaml")

	assert.Contains(t, stderr, "configuration loaded")
	assert.NotContains(t, stdout, "configuration loaded")
}

func TestExecuteMissingConfigFile(t *testing.T) {
	stdout, _, code := execute(t, "--config", filepath.Join(t.TempDir(), "absent.yaml"), "check", "testdata/scan.yaml")

	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stdout, "Error [E006]: failed to load configuration")
}

func TestExecuteInvalidConfig(t *testing.T) {
	cfg := writeConfig(t, t.TempDir(), "tolerance: -1\n")

	stdout, _, code := execute(t, "--config", cfg, "check", "testdata/scan.yaml")

	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stdout, "tolerance must be positive")
}

func TestExecuteUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown command", []string{"frobnicate"}},
		{"check without files", []string{"check"}},
		{"diff with one file", []string{"diff", "a.dat"}},
		{"unknown flag", []string{"check", "--bogus", "testdata/scan.yaml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, stderr, code := execute(t, tt.args...)

			assert.Equal(t, ExitCommandError, code)
			assert.Contains(t, stderr, "Error [E004]")
			assert.Contains(t, stderr, "--help")
		})
	}
}

func TestExecuteBadBaseline(t *testing.T) {
	dir := t.TempDir()
	baseline := filepath.Join(dir, "bad.cue")
	require.NoError(t, os.WriteFile(baseline, []byte("paths: {\"/entry\": 3}\n"), 0o644))
	cfg := writeConfig(t, dir, "schema: "+baseline+"\n")

	stdout, _, code := execute(t, "--config", cfg, "check", "testdata/scan.yaml")

	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stdout, "Error [E003]: failed to load baseline schema")
}

func TestExecuteDebugLogsToStderr(t *testing.T) {
	stdout, stderr, code := execute(t, "--debug", "--config", testConfig, "check", "testdata/conforming.yaml")

	assert.Equal(t, ExitSuccess, code)
	assert.NotContains(t, stdout, "level=")
	assert.Contains(t, stderr, "level=DEBUG")
}
