//go:build linux

package memproc

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMapsLine_HeapAndStackTags(t *testing.T) {
	heap, ok := parseMapsLine("55d319700000-55d319721000 rw-p 00000000 00:00 0 [heap]")
	require.True(t, ok)
	assert.Equal(t, RegionHeap, heap.RegionType)

	stack, ok := parseMapsLine("7ffee0000000-7ffee0021000 rw-p 00000000 00:00 0 [stack]")
	require.True(t, ok)
	assert.Equal(t, RegionStack, stack.RegionType)
}

func TestParseMapsLine_CodeFromSharedLibrary(t *testing.T) {
	region, ok := parseMapsLine("7f0000000000-7f0000021000 r-xp 00000000 08:05 1048602 /lib/x86_64-linux-gnu/libc.so.6")
	require.True(t, ok)
	assert.Equal(t, RegionCode, region.RegionType)
	assert.True(t, region.Protection.Execute)
}

func TestParseMapsLine_AnonymousExecutableIsCode(t *testing.T) {
	region, ok := parseMapsLine("600000000000-600000021000 r-xp 00000000 00:00 0")
	require.True(t, ok)
	assert.Equal(t, RegionCode, region.RegionType)
}

func TestParseMapsLine_MappedFileOther(t *testing.T) {
	region, ok := parseMapsLine("7f1000000000-7f1000021000 r--p 00000000 08:05 222 /usr/share/data/file.bin")
	require.True(t, ok)
	assert.Equal(t, RegionMappedFile, region.RegionType)
}

func TestParseMapsLine_InvalidLineIsSkipped(t *testing.T) {
	_, ok := parseMapsLine("")
	assert.False(t, ok)

	_, ok = parseMapsLine("not-a-valid-line")
	assert.False(t, ok)
}

func TestParseModuleLine_SkipsNonLibraryPaths(t *testing.T) {
	_, ok := parseModuleLine("7f1000000000-7f1000021000 r--p 00000000 08:05 222 /usr/share/data/file.bin")
	assert.False(t, ok)

	mod, ok := parseModuleLine("7f0000000000-7f0000021000 r-xp 00000000 08:05 1048602 /lib/x86_64-linux-gnu/libc.so.6")
	require.True(t, ok)
	assert.Equal(t, "libc.so.6", mod.Name)
}

func TestLinuxEnumerator_EnumerateRegionsSelf(t *testing.T) {
	enum := NewEnumerator()
	regions, err := enum.EnumerateRegions(context.Background(), int32(os.Getpid()))
	require.NoError(t, err)
	assert.NotEmpty(t, regions)
}

func TestLinuxEnumerator_ReadSelfMemory(t *testing.T) {
	enum := NewEnumerator()
	regions, err := enum.EnumerateRegions(context.Background(), int32(os.Getpid()))
	require.NoError(t, err)
	require.NotEmpty(t, regions)

	var readable *MemoryRegionInfo
	for i := range regions {
		if regions[i].Protection.Read && regions[i].Size > 0 {
			readable = &regions[i]
			break
		}
	}
	require.NotNil(t, readable)

	data, err := enum.Read(context.Background(), int32(os.Getpid()), readable.BaseAddress, 64)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(data), 64)
}
