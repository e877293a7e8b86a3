package hpk

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/meigma/hpk/internal/platform"
	"github.com/meigma/hpk/internal/write"
)

// CreateFromDir writes an archive of the tree below dir to w.
//
// The walk is confined to dir: symbolic links and non-regular files are
// skipped, and every file is opened without following links. Folders
// (including empty ones) are kept and siblings are sorted by lowercased
// name, as the engine tooling does. Unless BuildWithSkipCompression is
// given, only the extensions the engines compress (see
// DefaultSkipCompression) are compressed.
//
// When w is an io.WriteSeeker positioned somewhere it can seek back to, the
// archive is written in one pass; otherwise every entry is compressed twice.
// A file that changes size or modification time while the archive is
// written fails the operation.
func CreateFromDir(ctx context.Context, dir string, w io.Writer, opts ...BuildOption) error {
	b := NewBuilder(opts...)
	b.cfg.sortEntries = true
	if !b.cfg.skipSet {
		b.cfg.skipCompression = []SkipCompressionFunc{DefaultSkipCompression(0)}
	}

	root, err := os.OpenRoot(dir)
	if err != nil {
		return newError("create", dir, "", fmt.Errorf("%w: %w", ErrIO, err))
	}
	defer root.Close()

	b.log().Info("creating archive", "dir", dir, "variant", b.cfg.variant.Name, "compression", b.cfg.compression.String())
	b.reportProgress(StageEnumerating, "", 0, 0)

	err = fs.WalkDir(root.FS(), ".", func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return fmt.Errorf("%w: %w", ErrIO, walkErr)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == "." {
			return nil
		}
		if d.IsDir() {
			return b.AddFolder(path)
		}

		fsPath := filepath.FromSlash(path)
		info, ok, err := write.ResolveEntryInfo(root, fsPath, d)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrIO, err)
		}
		if !ok {
			b.log().Debug("skipped non-regular file", "path", path)
			return nil
		}
		return b.Add(path, uint64(info.Size()), info.ModTime(), &rootSource{ //nolint:gosec // regular file sizes are non-negative
			root:   root,
			fsPath: fsPath,
			path:   path,
			info:   info,
		})
	})
	if err != nil {
		return newError("create", dir, "", err)
	}

	n, err := b.writeAny(ctx, w)
	if err != nil {
		return err
	}
	b.log().Info("archive created", "dir", dir, "files", b.Len(), "length", n)
	return nil
}

// rootSource opens one enumerated file below an os.Root.
type rootSource struct {
	root   *os.Root
	fsPath string
	path   string
	info   fs.FileInfo
}

func (s *rootSource) Open() (io.ReadCloser, error) {
	f, err := platform.OpenFileNoFollow(s.root, s.fsPath)
	if err != nil {
		return nil, err
	}
	if err := write.CheckFileUnchanged(f, s.path, s.info); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}
