package hpktype

// ProgressEvent reports progress while building or extracting an archive.
type ProgressEvent struct {
	// Stage identifies the current phase.
	Stage ProgressStage

	// Path is the entry being processed, if any.
	Path string

	// BytesDone and BytesTotal count uncompressed payload bytes.
	BytesDone  uint64
	BytesTotal uint64

	// FilesDone and FilesTotal count files.
	FilesDone  int
	FilesTotal int
}

// ProgressStage identifies the current phase of an operation.
type ProgressStage uint8

// Progress stages.
const (
	// StageEnumerating indicates a directory tree is being walked.
	StageEnumerating ProgressStage = iota

	// StageWriting indicates entries are being compressed and written.
	StageWriting

	// StageExtracting indicates entries are being extracted.
	StageExtracting
)

// String returns the string representation of the stage.
func (s ProgressStage) String() string {
	switch s {
	case StageEnumerating:
		return "enumerating"
	case StageWriting:
		return "writing"
	case StageExtracting:
		return "extracting"
	default:
		return "unknown"
	}
}

// ProgressFunc receives progress updates.
// Implementations must be safe for concurrent calls.
type ProgressFunc func(ProgressEvent)
