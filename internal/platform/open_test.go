//go:build unix

package platform

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenFileNoFollow(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file"), []byte("content"), 0o644))
	require.NoError(t, os.Symlink("file", filepath.Join(dir, "link")))

	root, err := os.OpenRoot(dir)
	require.NoError(t, err)
	defer root.Close()

	f, err := OpenFileNoFollow(root, "file")
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.Equal(t, "content", string(data))

	_, err = OpenFileNoFollow(root, "link")
	require.ErrorIs(t, err, ErrSymlink)
}
