package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLogFixture(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "repovec.log")
	content := `{"time":"2026-08-26T10:00:00Z","level":"INFO","msg":"run_started"}
{"time":"2026-08-26T10:00:01Z","level":"WARN","msg":"keyword_sidecar_unavailable"}
{"time":"2026-08-26T10:00:02Z","level":"ERROR","msg":"index_pass_failed","error":"quota exceeded"}
{"time":"2026-08-26T10:00:03Z","level":"INFO","msg":"run_complete"}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLogsCmd_Tail(t *testing.T) {
	// Given: a log file
	path := writeLogFixture(t)

	// When: tailing it
	cmd := newLogsCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--file", path, "--no-color"})
	require.NoError(t, cmd.Execute())

	// Then: all entries are printed
	output := buf.String()
	assert.Contains(t, output, "run_started")
	assert.Contains(t, output, "run_complete")
}

func TestLogsCmd_LevelFilter(t *testing.T) {
	// Given: a log file
	path := writeLogFixture(t)

	// When: filtering by error level
	cmd := newLogsCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--file", path, "--level", "error", "--no-color"})
	require.NoError(t, cmd.Execute())

	// Then: only error entries remain
	output := buf.String()
	assert.Contains(t, output, "index_pass_failed")
	assert.NotContains(t, output, "run_started")
}

func TestLogsCmd_MissingFile(t *testing.T) {
	// Given: a home with no logs
	t.Setenv("HOME", t.TempDir())

	// When: tailing without an explicit file
	cmd := newLogsCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{})

	// Then: a clear error points at the expected path
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no log file found")
}
