package batch

import "github.com/meigma/hpk/internal/hpktype"

// Entry is one file scheduled for extraction.
type Entry struct {
	// Path is the slash-separated path relative to the archive root.
	Path string
	File *hpktype.File
}

// Sink receives decoded and verified file content during batch processing.
//
// Implementations determine where content is written and can filter which
// entries to process. Put may be called from several goroutines at once when
// the processor runs with more than one worker.
type Sink interface {
	// ShouldProcess returns false if this entry should be skipped.
	ShouldProcess(entry *Entry) bool

	// Put stores the content of entry. Implementations must not retain or
	// mutate content after returning.
	Put(entry *Entry, content []byte) error
}

// SinkFunc adapts a function to a Sink that processes every entry.
type SinkFunc func(entry *Entry, content []byte) error

// ShouldProcess implements Sink.
func (f SinkFunc) ShouldProcess(*Entry) bool { return true }

// Put implements Sink.
func (f SinkFunc) Put(entry *Entry, content []byte) error { return f(entry, content) }
