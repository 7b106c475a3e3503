// Package pipeline implements the delivery pipeline (C9): a local
// multi-worker ZIP mode and a streaming walk->encode->upload mode, both
// built on the C7 streaming ZIP encoder so the archive format is
// identical regardless of destination.
package pipeline

import "time"

// FileError names a tree entry that failed to make it into the archive
// and why; collection continues past these rather than aborting the
// whole run.
type FileError struct {
	Path string
	Err  error
}

// LocalResult summarizes one Local run.
type LocalResult struct {
	ArchivePath  string
	FilesWritten int
	DirsWritten  int
	Errors       []FileError
	Duration     time.Duration
}

// StreamingResult summarizes one Streaming run.
type StreamingResult struct {
	FilesWritten  int
	DirsWritten   int
	BytesWritten  uint64
	SummaryBytes  uint64
	Errors        []FileError
	Duration      time.Duration
}
