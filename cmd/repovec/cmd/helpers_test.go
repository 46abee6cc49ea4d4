package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// setupTestProject creates a temp project with a few source files and
// points the stack at the offline providers (static embeddings, memory
// vector store) so tests never need a running service.
func setupTestProject(t *testing.T) string {
	t.Helper()

	t.Setenv("HOME", t.TempDir())
	t.Setenv("REPOVEC_EMBEDDING_PROVIDER", "static")
	t.Setenv("REPOVEC_VECTOR_MODE", "memory")

	dir := t.TempDir()

	files := map[string]string{
		"main.go": `package main

import "fmt"

func main() {
	fmt.Println(greet("world"))
}

func greet(name string) string {
	return "hello " + name
}
`,
		"util/strings.go": `package util

import "strings"

// Reverse returns s with its runes in reverse order.
func Reverse(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}

// Shout upper-cases s.
func Shout(s string) string {
	return strings.ToUpper(s)
}
`,
		"README.md": "# test project\n\nA fixture project for command tests.\n",
	}

	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	// A .git marker pins the project root so FindProjectRoot never
	// wanders up into the test runner's tree.
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0o755))

	return dir
}

// runIndexPass executes one index pass over dir through the CLI and
// returns its plain-text output.
func runIndexPass(t *testing.T, dir string) string {
	t.Helper()

	cmd := newIndexCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{dir, "--no-tui"})

	require.NoError(t, cmd.Execute())
	return buf.String()
}
