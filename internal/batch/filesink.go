package batch

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// TimestampApplier sets the modification time of an extracted file.
// path is the file's location on disk.
type TimestampApplier func(path string, modTime time.Time) error

// FileSink writes entries below a destination directory.
//
// By default, files are written to a temporary file in the same directory
// and renamed to the final path. Partially written files are never visible
// at the final path. All paths are resolved through an os.Root, so entries
// cannot escape the destination.
type FileSink struct {
	destDir     string
	overwrite   bool
	directWrite bool
	applyTimes  TimestampApplier
	rootTimes   bool
}

// FileSinkOption configures a FileSink.
type FileSinkOption func(*FileSink)

// WithOverwrite allows overwriting existing files.
// By default, existing files are skipped.
func WithOverwrite(overwrite bool) FileSinkOption {
	return func(s *FileSink) {
		s.overwrite = overwrite
	}
}

// WithPreserveTimes applies recorded modification times to extracted files.
// Entries without a recorded time keep the current time.
func WithPreserveTimes(preserve bool) FileSinkOption {
	return func(s *FileSink) {
		s.rootTimes = preserve
	}
}

// WithTimestampApplier applies recorded modification times with fn instead
// of os.Root.Chtimes. fn runs after the file reached its final path.
func WithTimestampApplier(fn TimestampApplier) FileSinkOption {
	return func(s *FileSink) {
		s.applyTimes = fn
	}
}

// WithDirectWrites disables temp files and writes directly to the final path.
func WithDirectWrites(enabled bool) FileSinkOption {
	return func(s *FileSink) {
		s.directWrite = enabled
	}
}

// NewFileSink creates a FileSink that writes to destDir.
//
// destDir must exist. Parent directories of entries are created as needed.
func NewFileSink(destDir string, opts ...FileSinkOption) *FileSink {
	s := &FileSink{destDir: destDir}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ShouldProcess returns false if the file already exists and overwrite is disabled.
func (s *FileSink) ShouldProcess(entry *Entry) bool {
	if s.overwrite {
		return true
	}
	if !fs.ValidPath(entry.Path) {
		return true // Put reports the invalid path
	}
	_, err := os.Lstat(filepath.Join(s.destDir, filepath.FromSlash(entry.Path)))
	return errors.Is(err, fs.ErrNotExist)
}

// Put writes content to the entry's path below the destination.
func (s *FileSink) Put(entry *Entry, content []byte) error {
	if !fs.ValidPath(entry.Path) || entry.Path == "." {
		return &fs.PathError{Op: "extract", Path: entry.Path, Err: fs.ErrInvalid}
	}
	destRel := filepath.FromSlash(entry.Path)
	destPath := filepath.Join(s.destDir, destRel)

	root, err := os.OpenRoot(s.destDir)
	if err != nil {
		return fmt.Errorf("open destination root %s: %w", s.destDir, err)
	}
	defer root.Close()

	if err := root.MkdirAll(filepath.Dir(destRel), 0o750); err != nil {
		return fmt.Errorf("create directory for %s: %w", destPath, err)
	}

	modTime := entry.File.ModTime
	writeRel := destRel
	if !s.directWrite {
		tmp, tmpRel, err := createTempFile(root, filepath.Dir(destRel), ".hpk-")
		if err != nil {
			return fmt.Errorf("create temp file: %w", err)
		}
		writeRel = tmpRel
		if err := writeAndClose(tmp, content); err != nil {
			_ = root.Remove(tmpRel) //nolint:errcheck // best-effort cleanup
			return fmt.Errorf("write %s: %w", destPath, err)
		}
	} else {
		f, err := root.OpenFile(destRel, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("create file %s: %w", destPath, err)
		}
		if err := writeAndClose(f, content); err != nil {
			_ = root.Remove(destRel) //nolint:errcheck // best-effort cleanup
			return fmt.Errorf("write %s: %w", destPath, err)
		}
	}

	if s.rootTimes && !modTime.IsZero() {
		if err := root.Chtimes(writeRel, modTime, modTime); err != nil {
			_ = root.Remove(writeRel) //nolint:errcheck // best-effort cleanup
			return fmt.Errorf("chtimes: %w", err)
		}
	}

	if writeRel != destRel {
		if err := root.Rename(writeRel, destRel); err != nil {
			_ = root.Remove(writeRel) //nolint:errcheck // best-effort cleanup
			return fmt.Errorf("rename to %s: %w", destPath, err)
		}
	}

	if s.applyTimes != nil && !modTime.IsZero() {
		if err := s.applyTimes(destPath, modTime); err != nil {
			return fmt.Errorf("apply timestamp to %s: %w", destPath, err)
		}
	}
	return nil
}

// MkdirAll creates an (empty) folder below the destination.
func (s *FileSink) MkdirAll(path string) error {
	if !fs.ValidPath(path) {
		return &fs.PathError{Op: "mkdir", Path: path, Err: fs.ErrInvalid}
	}
	root, err := os.OpenRoot(s.destDir)
	if err != nil {
		return fmt.Errorf("open destination root %s: %w", s.destDir, err)
	}
	defer root.Close()
	return root.MkdirAll(filepath.FromSlash(path), 0o750)
}

func writeAndClose(f *os.File, content []byte) error {
	if _, err := f.Write(content); err != nil {
		_ = f.Close() //nolint:errcheck // the write error wins
		return err
	}
	return f.Close()
}

func createTempFile(root *os.Root, dir, prefix string) (*os.File, string, error) {
	const attempts = 10
	for range attempts {
		name, err := randomSuffix()
		if err != nil {
			return nil, "", err
		}
		relPath := filepath.Join(dir, prefix+name)
		f, err := root.OpenFile(relPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			return f, relPath, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", err
		}
	}
	return nil, "", errors.New("create temp file: exhausted retries")
}

func randomSuffix() (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
