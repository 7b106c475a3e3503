// Package summary implements C10: per-file SHA-256 hashing below a
// configurable size threshold, and the end-of-run collection summary
// document that ties every component's output together.
package summary

import (
	"github.com/forensant/triage-collector/internal/collect"
	"github.com/forensant/triage-collector/internal/memproc"
	"github.com/forensant/triage-collector/internal/volatile"
)

// DefaultBodyfileHashMaxSizeMB is the default threshold above which a
// file's hash is reported as the literal "0" instead of being
// computed.
const DefaultBodyfileHashMaxSizeMB = 100

// ArtifactRecord is one collected artifact's entry in the summary,
// combining its scheduler metadata with its computed (or skipped) hash.
type ArtifactRecord struct {
	Path string `json:"path"`
	collect.Metadata
	SHA256 string `json:"sha256"`
}

// CollectionSummary is the full end-of-run document: collector
// identity, every artifact's metadata and hash, plus the optional
// volatile-state and process-memory summaries when those collectors
// ran. Field names and nesting mirror the original collector's JSON
// shape so downstream tooling built against it keeps working.
type CollectionSummary struct {
	CollectionID     string                `json:"collection_id"`
	Hostname         string                `json:"hostname"`
	CollectionTime   string                `json:"collection_time"`
	OSVersion        string                `json:"os_version"`
	CollectorVersion string                `json:"collector_version"`
	Organization     string                `json:"organization"`
	Artifacts        []ArtifactRecord      `json:"artifacts"`
	VolatileData     *VolatileDataSection  `json:"volatile_data,omitempty"`
	ProcessMemory    *ProcessMemorySection `json:"process_memory,omitempty"`
}

// VolatileDataSection wraps volatile.Summary with the file list the
// original collector documents alongside the counts, so a reader knows
// where the raw volatile JSON files live in the archive.
type VolatileDataSection struct {
	volatile.Summary
	Files []string `json:"files"`
}

// ProcessMemorySection wraps memproc.CollectionSummary with a pointer
// to the per-process summary file.
type ProcessMemorySection struct {
	ProcessesExamined    int     `json:"processes_examined"`
	ProcessesCollected   int     `json:"processes_collected"`
	ProcessesSkipped     int     `json:"processes_skipped"`
	ProcessesFailed      int     `json:"processes_failed"`
	TotalMemoryCollected uint64  `json:"total_memory_collected"`
	CollectionStartTime  string  `json:"collection_start_time"`
	CollectionEndTime    string  `json:"collection_end_time"`
	DurationSeconds      float64 `json:"duration_seconds"`
	SummaryFile          string  `json:"summary_file"`
}

// defaultVolatileFiles names the per-category JSON files volatile.Run
// writes under the "volatile/" output directory.
var defaultVolatileFiles = []string{
	"volatile/system-info.json",
	"volatile/processes.json",
	"volatile/network-connections.json",
	"volatile/memory.json",
	"volatile/disks.json",
}

// NewVolatileDataSection builds the summary section from a completed
// volatile.Snapshot's summary.
func NewVolatileDataSection(s volatile.Summary) *VolatileDataSection {
	return &VolatileDataSection{Summary: s, Files: defaultVolatileFiles}
}

// NewProcessMemorySection adapts a memproc.CollectionSummary into its
// summary-document shape, pointing at the fixed location where
// memproc.Driver.Run writes its own summary file.
func NewProcessMemorySection(s memproc.CollectionSummary) *ProcessMemorySection {
	return &ProcessMemorySection{
		ProcessesExamined:    s.ProcessesExamined,
		ProcessesCollected:   s.ProcessesCollected,
		ProcessesSkipped:     s.ProcessesSkipped,
		ProcessesFailed:      s.ProcessesFailed,
		TotalMemoryCollected: s.TotalMemoryCollected,
		CollectionStartTime:  s.StartTime,
		CollectionEndTime:    s.EndTime,
		DurationSeconds:      s.DurationSeconds,
		SummaryFile:          "process_memory/memory_collection_summary.json",
	}
}
