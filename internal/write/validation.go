package write

import (
	"fmt"
	"io/fs"
	"os"
)

// CheckFileUnchanged verifies a file's size and mtime still match what was
// recorded when it was enumerated.
func CheckFileUnchanged(f *os.File, path string, before fs.FileInfo) error {
	after, err := f.Stat()
	if err != nil {
		return err
	}
	if after.Size() != before.Size() || !after.ModTime().Equal(before.ModTime()) {
		return fmt.Errorf("file changed during archive creation: %s", path)
	}
	return nil
}

// ResolveEntryInfo gets FileInfo from a DirEntry, filtering out symlinks
// and non-regular files. Returns (info, ok, error) where ok=false means
// the entry should be skipped.
func ResolveEntryInfo(root *os.Root, fsPath string, d fs.DirEntry) (fs.FileInfo, bool, error) {
	if d.Type()&fs.ModeSymlink != 0 {
		return nil, false, nil
	}
	info, err := root.Lstat(fsPath)
	if err != nil {
		return nil, false, err
	}
	if !info.Mode().IsRegular() {
		return nil, false, nil
	}
	return info, true, nil
}
