package memproc

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/forensant/triage-collector/pkg/errors"
)

// CollectionOptions bounds what the driver will attempt: total bytes
// across the whole run, per-process byte budget, and which region
// types to dump.
type CollectionOptions struct {
	MaxTotalSize   uint64
	MaxProcessSize uint64
	RegionTypes    map[RegionType]bool
	MinRegionSize  uint64
}

// DefaultOptions matches the original collector's defaults: 4 GiB
// total budget, 512 MiB per process, heap/stack/code regions only.
func DefaultOptions() CollectionOptions {
	return CollectionOptions{
		MaxTotalSize:   4 * 1024 * 1024 * 1024,
		MaxProcessSize: 512 * 1024 * 1024,
		RegionTypes: map[RegionType]bool{
			RegionHeap: true,
			RegionStack: true,
			RegionCode:  true,
		},
		MinRegionSize: 4096,
	}
}

// ProcessResult is one process's collection outcome for the summary.
type ProcessResult struct {
	PID               int32  `json:"pid"`
	Name              string `json:"name"`
	RegionCount       int    `json:"region_count"`
	RegionsDumped     int    `json:"regions_dumped"`
	TotalMemorySize   uint64 `json:"total_memory_size"`
	DumpedMemorySize  uint64 `json:"dumped_memory_size"`
	Status            string `json:"status"`
}

// CollectionSummary is the driver's overall result across every
// requested PID.
type CollectionSummary struct {
	ProcessesExamined     int                       `json:"processes_examined"`
	ProcessesCollected    int                       `json:"processes_collected"`
	ProcessesSkipped      int                       `json:"processes_skipped"`
	ProcessesFailed       int                       `json:"processes_failed"`
	TotalMemoryCollected  uint64                    `json:"total_memory_collected"`
	StartTime             string                    `json:"start_time"`
	EndTime               string                    `json:"end_time"`
	DurationSeconds       float64                   `json:"duration_seconds"`
	ProcessSummaries      map[string]ProcessResult  `json:"process_summaries"`
}

// processMetadata is the per-process metadata.json shape.
type processMetadata struct {
	PID              int32              `json:"pid"`
	Name             string             `json:"name"`
	CommandLine      string             `json:"command_line,omitempty"`
	Path             string             `json:"path,omitempty"`
	StartTime        string             `json:"start_time,omitempty"`
	User             string             `json:"user,omitempty"`
	ParentPID        int32              `json:"parent_pid"`
	CollectionTime   string             `json:"collection_time"`
	Status           string             `json:"status"`
	Error            string             `json:"error,omitempty"`
	Regions          []MemoryRegionInfo `json:"regions"`
	Modules          []ModuleInfo       `json:"modules"`
	TotalMemorySize  uint64             `json:"total_memory_size"`
	DumpedMemorySize uint64             `json:"dumped_memory_size"`
}

// Driver runs the per-process memory collection against a fixed
// Enumerator and output root.
type Driver struct {
	enum    Enumerator
	outRoot string
	opts    CollectionOptions
}

// NewDriver wires a Driver to the platform Enumerator, the
// process_memory output root, and the collection budget.
func NewDriver(enum Enumerator, outRoot string, opts CollectionOptions) *Driver {
	return &Driver{enum: enum, outRoot: outRoot, opts: opts}
}

// ProcessTarget names one process to attempt collection for, with the
// process metadata the caller already resolved (typically via
// gopsutil) when it looked up the PID.
type ProcessTarget struct {
	PID         int32
	Name        string
	CommandLine string
	Path        string
	StartTime   string
	User        string
	ParentPID   int32
}

// Run executes the driver over targets, stopping enrollment of new
// processes once the running total exceeds MaxTotalSize, writes the
// overall CollectionSummary to memory_collection_summary.json under the
// output root, and returns it.
func (d *Driver) Run(ctx context.Context, targets []ProcessTarget) (*CollectionSummary, error) {
	if err := os.MkdirAll(d.outRoot, 0750); err != nil {
		return nil, errors.NewError(errors.ErrCodeOpenFailed, "failed to create process_memory directory").
			WithComponent("memproc").WithOperation("Run").WithCause(err)
	}

	start := time.Now().UTC()
	summary := &CollectionSummary{
		StartTime:        start.Format(time.RFC3339),
		ProcessSummaries: make(map[string]ProcessResult),
	}

	var runningTotal uint64
	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			break
		}

		summary.ProcessesExamined++

		if runningTotal > d.opts.MaxTotalSize {
			summary.ProcessesSkipped++
			continue
		}

		result, collected, err := d.collectProcess(ctx, target)
		if err != nil {
			summary.ProcessesFailed++
			summary.ProcessSummaries[target.Name] = ProcessResult{
				PID: target.PID, Name: target.Name, Status: "Failed",
			}
			continue
		}
		if result.Status == "Skipped" {
			summary.ProcessesSkipped++
		} else {
			summary.ProcessesCollected++
			runningTotal += collected
			summary.TotalMemoryCollected += collected
		}
		summary.ProcessSummaries[target.Name] = *result
	}

	end := time.Now().UTC()
	summary.EndTime = end.Format(time.RFC3339)
	summary.DurationSeconds = end.Sub(start).Seconds()

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return summary, errors.NewError(errors.ErrCodeSummarySerializeError, "failed to marshal memory collection summary").
			WithComponent("memproc").WithOperation("Run").WithCause(err)
	}
	if err := os.WriteFile(filepath.Join(d.outRoot, "memory_collection_summary.json"), data, 0640); err != nil {
		return summary, errors.NewError(errors.ErrCodeOpenFailed, "failed to write memory_collection_summary.json").
			WithComponent("memproc").WithOperation("Run").WithCause(err)
	}
	return summary, nil
}

func (d *Driver) collectProcess(ctx context.Context, target ProcessTarget) (*ProcessResult, uint64, error) {
	regions, err := d.enum.EnumerateRegions(ctx, target.PID)
	if err != nil {
		return nil, 0, err
	}
	regions = filterRegions(regions, d.opts)

	var total uint64
	for _, r := range regions {
		total += r.Size
	}

	if total > d.opts.MaxProcessSize {
		return &ProcessResult{
			PID: target.PID, Name: target.Name,
			RegionCount: len(regions), TotalMemorySize: total, Status: "Skipped",
		}, 0, nil
	}

	processDir := filepath.Join(d.outRoot, fmt.Sprintf("%s_%d", target.Name, target.PID))
	if err := os.MkdirAll(processDir, 0750); err != nil {
		return nil, 0, err
	}

	modules, _ := d.enum.EnumerateModules(ctx, target.PID)

	if err := writeMemoryMap(processDir, regions); err != nil {
		return nil, 0, err
	}

	var dumpedSize uint64
	var dumpedCount int
	for i := range regions {
		if regions[i].Size < d.opts.MinRegionSize {
			continue
		}
		data, err := d.enum.Read(ctx, target.PID, regions[i].BaseAddress, int(regions[i].Size))
		if err != nil || len(data) == 0 {
			continue
		}

		dumpName := fmt.Sprintf("%s_%x_%x.dmp", regions[i].RegionType, regions[i].BaseAddress, regions[i].Size)
		if err := os.WriteFile(filepath.Join(processDir, dumpName), data, 0640); err != nil {
			continue
		}

		regions[i].Dumped = true
		regions[i].DumpPath = dumpName
		dumpedSize += uint64(len(data))
		dumpedCount++
	}

	meta := processMetadata{
		PID:              target.PID,
		Name:             target.Name,
		CommandLine:      target.CommandLine,
		Path:             target.Path,
		StartTime:        target.StartTime,
		User:             target.User,
		ParentPID:        target.ParentPID,
		CollectionTime:   time.Now().UTC().Format(time.RFC3339),
		Status:           "Collected",
		Regions:          regions,
		Modules:          modules,
		TotalMemorySize:  total,
		DumpedMemorySize: dumpedSize,
	}
	if err := writeProcessMetadata(processDir, meta); err != nil {
		return nil, 0, err
	}

	return &ProcessResult{
		PID: target.PID, Name: target.Name,
		RegionCount: len(regions), RegionsDumped: dumpedCount,
		TotalMemorySize: total, DumpedMemorySize: dumpedSize, Status: "Collected",
	}, dumpedSize, nil
}

func filterRegions(regions []MemoryRegionInfo, opts CollectionOptions) []MemoryRegionInfo {
	if len(opts.RegionTypes) == 0 {
		return regions
	}
	filtered := make([]MemoryRegionInfo, 0, len(regions))
	for _, r := range regions {
		if opts.RegionTypes[r.RegionType] {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

func writeMemoryMap(processDir string, regions []MemoryRegionInfo) error {
	var buf []byte
	for _, r := range regions {
		line := fmt.Sprintf("%016x-%016x %8d %-10s %s\n",
			r.BaseAddress, r.BaseAddress+r.Size, r.Size, r.RegionType, r.Name)
		buf = append(buf, line...)
	}
	if err := os.WriteFile(filepath.Join(processDir, "memory_map.txt"), buf, 0640); err != nil {
		return errors.NewError(errors.ErrCodeOpenFailed, "failed to write memory_map.txt").
			WithComponent("memproc").WithOperation("writeMemoryMap").WithCause(err)
	}
	return nil
}

func writeProcessMetadata(processDir string, meta processMetadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return errors.NewError(errors.ErrCodeSummarySerializeError, "failed to marshal process metadata").
			WithComponent("memproc").WithOperation("writeProcessMetadata").WithCause(err)
	}
	if err := os.WriteFile(filepath.Join(processDir, "metadata.json"), data, 0640); err != nil {
		return errors.NewError(errors.ErrCodeOpenFailed, "failed to write metadata.json").
			WithComponent("memproc").WithOperation("writeProcessMetadata").WithCause(err)
	}
	return nil
}
