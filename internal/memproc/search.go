package memproc

import "context"

// Search scans [start, end) of pid's address space for needle,
// reading in chunkSize windows with a len(needle)-1 byte overlap between
// windows so matches are not missed across a chunk boundary, and
// returns every match's absolute address.
func Search(ctx context.Context, enum Enumerator, pid int32, needle []byte, start, end uint64) ([]uint64, error) {
	if len(needle) == 0 || end <= start {
		return nil, nil
	}

	var matches []uint64
	overlap := uint64(len(needle) - 1)
	window := uint64(chunkSize)

	for addr := start; addr < end; addr += window {
		if err := ctx.Err(); err != nil {
			return matches, err
		}

		readSize := window + overlap
		if addr+readSize > end {
			readSize = end - addr
		}
		if readSize < uint64(len(needle)) {
			break
		}

		data, err := enum.Read(ctx, pid, addr, int(readSize))
		if err != nil {
			continue
		}

		for _, offset := range boyerMooreSearch(data, needle) {
			matches = append(matches, addr+uint64(offset))
		}
	}

	return matches, nil
}

// boyerMooreSearch finds every (possibly overlapping) occurrence of
// needle in haystack using the bad-character heuristic, which is
// enough to beat naive O(n*m) scanning over multi-megabyte dumps
// without pulling in a search library.
func boyerMooreSearch(haystack, needle []byte) []int {
	n, m := len(haystack), len(needle)
	if m == 0 || m > n {
		return nil
	}

	var lastOccurrence [256]int
	for i := range lastOccurrence {
		lastOccurrence[i] = -1
	}
	for i, b := range needle {
		lastOccurrence[b] = i
	}

	var matches []int
	shift := 0
	for shift <= n-m {
		j := m - 1
		for j >= 0 && needle[j] == haystack[shift+j] {
			j--
		}
		if j < 0 {
			matches = append(matches, shift)
			shift++
			continue
		}
		badChar := lastOccurrence[haystack[shift+j]]
		advance := j - badChar
		if advance < 1 {
			advance = 1
		}
		shift += advance
	}
	return matches
}

// ScanYARA is declared but not implemented: YARA rule compilation and
// matching needs either cgo against libyara or a pure-Go rule engine
// the example corpus does not provide.
func ScanYARA(context.Context, Enumerator, int32, []YARARule, uint64, uint64) ([]YARAMatch, error) {
	return nil, errNotImplemented
}
