// Package memproc implements the memory acquisition engine (C6):
// per-process region/module enumeration, chunked reads with
// zero-pad-on-fault semantics, substring search, and the collection
// driver that writes one directory per acquired process.
package memproc

import (
	"context"

	"github.com/forensant/triage-collector/pkg/errors"
)

// errNotImplemented is returned by ScanYARA, which is declared on the
// driver but intentionally left unimplemented.
var errNotImplemented = errors.NewError(errors.ErrCodeNotImplemented, "YARA scanning is not implemented").
	WithComponent("memproc").WithOperation("ScanYARA")

// RegionType classifies a memory region by heuristic: an explicit
// heap/stack tag wins, then file-backed .so/.dll/code paths, then any
// other file-backed mapping, then anonymous executable, with
// everything else falling to Other.
type RegionType string

const (
	RegionHeap       RegionType = "Heap"
	RegionStack      RegionType = "Stack"
	RegionCode       RegionType = "Code"
	RegionMappedFile RegionType = "MappedFile"
	RegionOther      RegionType = "Other"
)

// Protection mirrors the three POSIX permission bits; a region whose
// permission flags are missing defaults to read-only (all false except
// Read).
type Protection struct {
	Read    bool `json:"read"`
	Write   bool `json:"write"`
	Execute bool `json:"execute"`
}

// MemoryRegionInfo describes one mapped region of a process's address
// space. Dumped/DumpPath are filled in by the collection driver after
// a successful read, not by EnumerateRegions.
type MemoryRegionInfo struct {
	BaseAddress uint64     `json:"base_address"`
	Size        uint64     `json:"size"`
	RegionType  RegionType `json:"region_type"`
	Protection  Protection `json:"protection"`
	Name        string     `json:"name,omitempty"`
	MappedFile  string     `json:"mapped_file,omitempty"`
	Dumped      bool       `json:"dumped"`
	DumpPath    string     `json:"dump_path,omitempty"`
}

// ModuleInfo is one loaded module/library, de-duplicated by name with
// the lowest base address winning when a name appears more than once.
type ModuleInfo struct {
	BaseAddress uint64 `json:"base_address"`
	Size        uint64 `json:"size"`
	Path        string `json:"path"`
	Name        string `json:"name"`
	Version     string `json:"version,omitempty"`
}

// Enumerator is the platform contract for region/module enumeration
// and raw memory access. Linux implements it over /proc/<pid>/{maps,mem};
// other platforms ship a stub returning ErrCodePlatformUnsupported.
type Enumerator interface {
	EnumerateRegions(ctx context.Context, pid int32) ([]MemoryRegionInfo, error)
	EnumerateModules(ctx context.Context, pid int32) ([]ModuleInfo, error)
	Read(ctx context.Context, pid int32, addr uint64, size int) ([]byte, error)
}

// YARARule is a placeholder for the rule type ScanYARA would accept;
// YARA matching itself is not implemented (see ScanYARA).
type YARARule struct {
	Name string
}

// YARAMatch is a placeholder match record.
type YARAMatch struct {
	RuleName string
	Address  uint64
}
