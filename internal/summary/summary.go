package summary

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/forensant/triage-collector/internal/collect"
	"github.com/forensant/triage-collector/internal/memproc"
	"github.com/forensant/triage-collector/internal/volatile"
	"github.com/forensant/triage-collector/pkg/errors"
)

// CollectorVersion is the build identifier embedded in every summary
// document. Overridden at link time in release builds; left as "dev"
// otherwise.
var CollectorVersion = "dev"

// organization names the output-tree layout convention this collector
// uses, carried over from the original collector's summary field of
// the same name.
const organization = "file_system_based"

// Options configures Build.
type Options struct {
	Hostname string

	// BodyfileHashMaxMB is the per-file hashing size ceiling in
	// megabytes; zero selects DefaultBodyfileHashMaxSizeMB.
	BodyfileHashMaxMB int64
}

func (o Options) withDefaults() Options {
	if o.BodyfileHashMaxMB <= 0 {
		o.BodyfileHashMaxMB = DefaultBodyfileHashMaxSizeMB
	}
	return o
}

// Build assembles the collection summary from the scheduler's
// results, hashing each artifact's bytes under collectionRoot (the
// same directory the scheduler was given as its base directory), plus the
// optional volatile-state and process-memory summaries when those
// collectors ran during this invocation. Entry paths in results are
// relative to collectionRoot's "fs" subdirectory, not to collectionRoot
// itself.
func Build(results *collect.Results, collectionRoot string, volatileSummary *volatile.Summary, memorySummary *memproc.CollectionSummary, opts Options) *CollectionSummary {
	opts = opts.withDefaults()
	fsDir := filepath.Join(collectionRoot, "fs")

	records := make([]ArtifactRecord, 0, len(results.Entries))
	for relPath, meta := range results.Entries {
		hash, err := HashFile(filepath.Join(fsDir, relPath), opts.BodyfileHashMaxMB)
		if err != nil {
			hash = noHash
		}
		records = append(records, ArtifactRecord{
			Path:     relPath,
			Metadata: meta,
			SHA256:   hash,
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Path < records[j].Path })

	doc := &CollectionSummary{
		CollectionID:     uuid.New().String(),
		Hostname:         opts.Hostname,
		CollectionTime:   time.Now().UTC().Format(time.RFC3339),
		OSVersion:        runtime.GOOS,
		CollectorVersion: CollectorVersion,
		Organization:     organization,
		Artifacts:        records,
	}

	if volatileSummary != nil {
		doc.VolatileData = NewVolatileDataSection(*volatileSummary)
	}
	if memorySummary != nil {
		doc.ProcessMemory = NewProcessMemorySection(*memorySummary)
	}

	return doc
}

// Write serializes doc as indented JSON to path, creating parent
// directories as needed. Called after every other writer has closed,
// so the summary file is the last artifact written into the output
// tree before delivery.
func Write(doc *CollectionSummary, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return errors.NewError(errors.ErrCodeOpenFailed, "failed to create summary directory").
			WithComponent("summary").WithOperation("Write").WithCause(err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.NewError(errors.ErrCodeSummarySerializeError, "failed to serialize collection summary").
			WithComponent("summary").WithOperation("Write").WithCause(err)
	}

	if err := os.WriteFile(path, data, 0640); err != nil {
		return errors.NewError(errors.ErrCodeOpenFailed, "failed to write collection summary").
			WithComponent("summary").WithOperation("Write").WithCause(err)
	}
	return nil
}
