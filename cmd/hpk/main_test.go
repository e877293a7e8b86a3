package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func sampleDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "scripts"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scripts", "main.lua"), bytes.Repeat([]byte("print('hi')\n"), 300), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o600))
	return dir
}

func TestCreateListExtract(t *testing.T) {
	src := sampleDir(t)
	archive := filepath.Join(t.TempDir(), "data.hpk")

	_, err := run(t, "create", src, archive)
	require.NoError(t, err)

	out, err := run(t, "list", "--paths", archive)
	require.NoError(t, err)
	assert.Equal(t, "notes.txt\nscripts/main.lua\n", out)

	out, err = run(t, "list", archive)
	require.NoError(t, err)
	assert.Contains(t, out, "scripts/main.lua")
	assert.Contains(t, out, "deflate")
	assert.Contains(t, out, "none")

	dest := t.TempDir()
	_, err = run(t, "extract", "--workers", "2", archive, dest)
	require.NoError(t, err)
	got, err := os.ReadFile(filepath.Join(dest, "scripts", "main.lua"))
	require.NoError(t, err)
	want, err := os.ReadFile(filepath.Join(src, "scripts", "main.lua"))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestInfo(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "data.hpk")
	_, err := run(t, "create", "--filedates", sampleDir(t), archive)
	require.NoError(t, err)

	out, err := run(t, "info", archive)
	require.NoError(t, err)
	assert.Contains(t, out, "variant:     filedates")
	assert.Contains(t, out, "files:       2")
	assert.Contains(t, out, "folders:     1")
}

func TestEnvironmentOverridesDefaults(t *testing.T) {
	t.Setenv("HPK_COMPRESSION", "zstd")
	t.Setenv("HPK_COMPRESS_ALL", "true")

	archive := filepath.Join(t.TempDir(), "data.hpk")
	_, err := run(t, "create", sampleDir(t), archive)
	require.NoError(t, err)

	out, err := run(t, "list", archive)
	require.NoError(t, err)
	assert.Contains(t, out, "zstd")
}

func TestCreateRejectsBadFlags(t *testing.T) {
	src := sampleDir(t)
	archive := filepath.Join(t.TempDir(), "data.hpk")

	_, err := run(t, "create", "--compression", "brotli", src, archive)
	require.ErrorContains(t, err, "unknown compression")

	_, err = run(t, "create", "--variant", "nope", src, archive)
	require.ErrorContains(t, err, "unknown variant")

	_, err = run(t, "create", filepath.Join(src, "missing"), archive)
	require.Error(t, err)
	assert.NoFileExists(t, archive)
}

func TestListRejectsUnknownVariant(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "data.hpk")
	_, err := run(t, "create", sampleDir(t), archive)
	require.NoError(t, err)

	_, err = run(t, "list", "--variant", "nope", archive)
	require.ErrorContains(t, err, "unknown variant")

	_, err = run(t, "list", "--variant", "classic", archive)
	require.NoError(t, err)
}
