package memproc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBoyerMooreSearch_FindsAllOccurrences(t *testing.T) {
	haystack := []byte("the quick brown fox jumps over the lazy fox")
	matches := boyerMooreSearch(haystack, []byte("fox"))
	assert.Equal(t, []int{16, 40}, matches)
}

func TestBoyerMooreSearch_NoMatch(t *testing.T) {
	matches := boyerMooreSearch([]byte("abcdef"), []byte("xyz"))
	assert.Empty(t, matches)
}

func TestBoyerMooreSearch_NeedleLongerThanHaystack(t *testing.T) {
	matches := boyerMooreSearch([]byte("ab"), []byte("abcdef"))
	assert.Empty(t, matches)
}

type fakeEnumerator struct {
	data map[uint64][]byte
}

func (f fakeEnumerator) EnumerateRegions(context.Context, int32) ([]MemoryRegionInfo, error) {
	return nil, nil
}
func (f fakeEnumerator) EnumerateModules(context.Context, int32) ([]ModuleInfo, error) {
	return nil, nil
}
func (f fakeEnumerator) Read(_ context.Context, _ int32, addr uint64, size int) ([]byte, error) {
	chunk, ok := f.data[addr]
	if !ok {
		return make([]byte, size), nil
	}
	if len(chunk) > size {
		chunk = chunk[:size]
	}
	return chunk, nil
}

func TestSearch_FindsMatchWithinRange(t *testing.T) {
	enum := fakeEnumerator{data: map[uint64][]byte{
		0x1000: []byte("....secret-marker...."),
	}}

	matches, err := Search(context.Background(), enum, 1, []byte("secret-marker"), 0x1000, 0x1000+22)
	assert := assert.New(t)
	assert.NoError(err)
	assert.Contains(matches, uint64(0x1000+4))
}

func TestScanYARA_ReturnsNotImplemented(t *testing.T) {
	_, err := ScanYARA(context.Background(), fakeEnumerator{}, 1, nil, 0, 0)
	assert.Error(t, err)
}
