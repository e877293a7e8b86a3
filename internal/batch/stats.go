package batch

import "sync/atomic"

// ProcessStats contains statistics from a batch processing operation.
type ProcessStats struct {
	// Processed is the number of entries successfully written to the sink.
	Processed int

	// Skipped is the number of entries skipped (ShouldProcess returned false).
	Skipped int

	// TotalBytes is the sum of uncompressed sizes for all processed entries.
	TotalBytes uint64
}

// counters accumulates stats from concurrent workers.
type counters struct {
	processed atomic.Int64
	skipped   atomic.Int64
	bytes     atomic.Uint64

	// set before workers start
	total uint64
	files int
}

func (c *counters) stats() ProcessStats {
	return ProcessStats{
		Processed:  int(c.processed.Load()),
		Skipped:    int(c.skipped.Load()),
		TotalBytes: c.bytes.Load(),
	}
}
