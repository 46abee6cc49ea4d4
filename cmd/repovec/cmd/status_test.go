package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCmd_NeverIndexed(t *testing.T) {
	// Given: a project that was never indexed
	dir := setupTestProject(t)

	// When: asking for status
	cmd := newStatusCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{dir, "--no-color"})
	require.NoError(t, cmd.Execute())

	// Then: the empty state renders without error
	output := buf.String()
	assert.Contains(t, output, filepath.Base(dir))
	assert.NotContains(t, output, "\x1b[")
}

func TestStatusCmd_AfterIndexRun(t *testing.T) {
	// Given: an indexed project
	dir := setupTestProject(t)
	runIndexPass(t, dir)

	// When: asking for status
	cmd := newStatusCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{dir, "--no-color"})
	require.NoError(t, cmd.Execute())

	// Then: the ledger counters and the quota line are shown
	output := buf.String()
	assert.Contains(t, output, "Files:")
	assert.Contains(t, output, "Daily quota:")
	assert.Contains(t, output, "static")
}

func TestStatusCmd_RemotePointCount(t *testing.T) {
	// Given: an indexed project (memory mode, so a fresh store is empty)
	dir := setupTestProject(t)
	runIndexPass(t, dir)

	// When: asking for status with --remote as JSON
	cmd := newStatusCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{dir, "--remote", "--json"})
	require.NoError(t, cmd.Execute())

	// Then: the point count is present instead of the -1 sentinel
	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, float64(0), got["remote_points"])
}

func TestStatusCmd_WorksWhileLockHeld(t *testing.T) {
	// Given: a resident engine holding the instance lock
	dir := setupTestProject(t)
	runIndexPass(t, dir)

	a, err := buildApp(context.Background(), dir, appOptions{withEngine: true})
	require.NoError(t, err)
	defer a.Close()

	// When: asking for status from a second process
	cmd := newStatusCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{dir, "--json"})

	// Then: status reads the ledger without contending for the lock
	require.NoError(t, cmd.Execute())
}
