// Package hpk reads and writes HPK archives.
//
// HPK is the "BPUL" container used by a family of game engines to bundle a
// directory tree of assets into a single seekable file. Each file may be
// stored raw or split into independently compressed chunks, and the
// directory itself is stored as a set of fragments so any entry can be read
// without touching the rest of the archive.
//
// # Reading
//
// Open decodes the directory of an archive held by any io.ReaderAt with a
// Size method:
//
//	a, err := hpk.OpenFile("assets.hpk")
//	if err != nil {
//		return err
//	}
//	defer a.Close()
//
//	data, err := a.ReadFile("scripts/main.lua")
//
// Archive implements fs.FS, fs.StatFS, fs.ReadFileFS, and fs.ReadDirFS.
// Paths are slash-separated and, unless WithCaseSensitive is set, matched
// case-insensitively like the engines do.
//
// # Writing
//
// A Builder collects entries and writes them in one go:
//
//	b := hpk.NewBuilder(hpk.BuildWithCompression(hpk.CompressionDeflate))
//	b.Add("scripts/main.lua", size, modTime, hpk.FileSource("main.lua"))
//	err := b.Finalize(out)
//
// CreateFromDir builds an archive from a directory tree.
//
// # Variants
//
// Engines disagree on a few layout details: field widths and whether
// modification times and checksums are stored. A Variant describes one such
// layout. Open detects the variant unless WithVariant forces one.
package hpk
