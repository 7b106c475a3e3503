//go:build linux

package memproc

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/forensant/triage-collector/pkg/errors"
)

// chunkSize is the piece size readLargeMemory reads from /proc/<pid>/mem
// for requests above largeReadThreshold; a faulted chunk is zero-padded
// rather than failing the whole read.
const chunkSize = 1024 * 1024

// largeReadThreshold is the size above which Read switches to chunked
// mode; below it a single read is attempted directly.
const largeReadThreshold = 10 * 1024 * 1024

// maxConsecutiveChunkFailures aborts a chunked read once more than this
// many chunks in a row fail (that is, on the sixth), rather than spending time faulting through an
// entire unmapped range one megabyte at a time.
const maxConsecutiveChunkFailures = 5

// linuxEnumerator reads process memory structure and contents through
// the /proc filesystem, grounded on the same maps-parsing heuristic
// the original collector uses.
type linuxEnumerator struct{}

// NewEnumerator returns the platform-appropriate Enumerator.
func NewEnumerator() Enumerator {
	return linuxEnumerator{}
}

func (linuxEnumerator) EnumerateRegions(ctx context.Context, pid int32) ([]MemoryRegionInfo, error) {
	lines, err := readMapsLines(pid)
	if err != nil {
		return nil, err
	}

	regions := make([]MemoryRegionInfo, 0, len(lines))
	for _, line := range lines {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		region, ok := parseMapsLine(line)
		if ok {
			regions = append(regions, region)
		}
	}
	return regions, nil
}

func (linuxEnumerator) EnumerateModules(ctx context.Context, pid int32) ([]ModuleInfo, error) {
	lines, err := readMapsLines(pid)
	if err != nil {
		return nil, err
	}

	modules := make(map[string]ModuleInfo)
	for _, line := range lines {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		mod, ok := parseModuleLine(line)
		if !ok {
			continue
		}
		if existing, present := modules[mod.Name]; present && existing.BaseAddress <= mod.BaseAddress {
			continue
		}
		modules[mod.Name] = mod
	}

	result := make([]ModuleInfo, 0, len(modules))
	for _, m := range modules {
		result = append(result, m)
	}
	return result, nil
}

func (linuxEnumerator) Read(ctx context.Context, pid int32, addr uint64, size int) ([]byte, error) {
	if size > largeReadThreshold {
		return readLargeMemory(ctx, pid, addr, size)
	}
	return readMemoryChunk(pid, addr, size)
}

func readMapsLines(pid int32) ([]string, error) {
	path := fmt.Sprintf("/proc/%d/maps", pid)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, classifyProcError(pid, err)
	}
	return strings.Split(string(data), "\n"), nil
}

func classifyProcError(pid int32, err error) error {
	if os.IsPermission(err) {
		return errors.NewError(errors.ErrCodePermissionDenied, "permission denied reading process memory map").
			WithComponent("memproc").WithOperation("EnumerateRegions").WithContext("pid", strconv.Itoa(int(pid))).WithCause(err)
	}
	if os.IsNotExist(err) {
		return errors.NewError(errors.ErrCodeMemoryReadFailed, "process no longer exists").
			WithComponent("memproc").WithOperation("EnumerateRegions").WithContext("pid", strconv.Itoa(int(pid))).WithCause(err)
	}
	return errors.NewError(errors.ErrCodeMemoryReadFailed, "failed to read process memory map").
		WithComponent("memproc").WithOperation("EnumerateRegions").WithContext("pid", strconv.Itoa(int(pid))).WithCause(err)
}

// parseMapsLine parses one /proc/<pid>/maps line, e.g.:
//   55d3195fc000-55d319619000 r--p 00000000 08:05 1048602 /usr/bin/bash
func parseMapsLine(line string) (MemoryRegionInfo, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return MemoryRegionInfo{}, false
	}

	start, end, ok := parseAddrRange(fields[0])
	if !ok {
		return MemoryRegionInfo{}, false
	}

	perms := "r"
	if len(fields) > 1 {
		perms = fields[1]
	}
	protection := Protection{
		Read:    strings.Contains(perms, "r"),
		Write:   strings.Contains(perms, "w"),
		Execute: strings.Contains(perms, "x"),
	}

	var mappedFile string
	if len(fields) >= 6 {
		mappedFile = strings.Join(fields[5:], " ")
	}

	return MemoryRegionInfo{
		BaseAddress: start,
		Size:        end - start,
		RegionType:  classifyRegion(mappedFile, protection),
		Protection:  protection,
		Name:        mappedFile,
		MappedFile:  mappedFile,
	}, true
}

func classifyRegion(mappedFile string, protection Protection) RegionType {
	switch {
	case mappedFile == "":
		if protection.Execute {
			return RegionCode
		}
		return RegionOther
	case strings.Contains(mappedFile, "[heap]"):
		return RegionHeap
	case strings.Contains(mappedFile, "[stack]"):
		return RegionStack
	case strings.HasSuffix(mappedFile, ".so") || strings.Contains(mappedFile, ".so.") || strings.Contains(mappedFile, "/lib/"):
		return RegionCode
	default:
		return RegionMappedFile
	}
}

func parseModuleLine(line string) (ModuleInfo, bool) {
	fields := strings.Fields(line)
	if len(fields) < 6 {
		return ModuleInfo{}, false
	}

	path := strings.Join(fields[5:], " ")
	if !strings.HasSuffix(path, ".so") && !strings.Contains(path, ".so.") &&
		!strings.Contains(path, "/bin/") && !strings.Contains(path, "/lib/") {
		return ModuleInfo{}, false
	}

	start, end, ok := parseAddrRange(fields[0])
	if !ok {
		return ModuleInfo{}, false
	}

	return ModuleInfo{
		BaseAddress: start,
		Size:        end - start,
		Path:        path,
		Name:        filepath.Base(path),
	}, true
}

func parseAddrRange(field string) (start, end uint64, ok bool) {
	parts := strings.SplitN(field, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	s, err1 := strconv.ParseUint(parts[0], 16, 64)
	e, err2 := strconv.ParseUint(parts[1], 16, 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return s, e, true
}

func readMemoryChunk(pid int32, addr uint64, size int) ([]byte, error) {
	path := fmt.Sprintf("/proc/%d/mem", pid)
	f, err := os.Open(path)
	if err != nil {
		return nil, classifyProcError(pid, err)
	}
	defer f.Close()

	if _, err := f.Seek(int64(addr), io.SeekStart); err != nil {
		return nil, errors.NewError(errors.ErrCodeMemoryReadFailed, "failed to seek to address").
			WithComponent("memproc").WithOperation("Read").WithCause(err)
	}

	buf := make([]byte, size)
	n, err := io.ReadFull(f, buf)
	if err != nil && n == 0 {
		// Faulted region (e.g. vsyscall, unmapped gap): return an
		// empty slice rather than an error; readLargeMemory zero-pads
		// such a chunk.
		return make([]byte, 0), nil
	}
	return buf[:n], nil
}

// readLargeMemory reads size bytes in chunkSize pieces, zero-padding
// any chunk that faults and stopping once more than
// maxConsecutiveChunkFailures fail in a row; the bytes read so far are
// then returned with a nil error.
func readLargeMemory(ctx context.Context, pid int32, addr uint64, size int) ([]byte, error) {
	result := make([]byte, 0, size)
	consecutiveFailures := 0

	for offset := 0; offset < size; offset += chunkSize {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		n := chunkSize
		if size-offset < n {
			n = size - offset
		}

		chunk, err := readMemoryChunk(pid, addr+uint64(offset), n)
		if err != nil || len(chunk) == 0 {
			consecutiveFailures++
			if consecutiveFailures > maxConsecutiveChunkFailures {
				break
			}
			result = append(result, make([]byte, n)...)
			continue
		}
		consecutiveFailures = 0
		if len(chunk) < n {
			chunk = append(chunk, make([]byte, n-len(chunk))...)
		}
		result = append(result, chunk...)
	}

	return result, nil
}
