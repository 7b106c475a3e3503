package summary

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"github.com/forensant/triage-collector/internal/buffer"
)

// noHash is the literal hash value reported for a file that is over
// the size threshold or not a regular file: "0", not an empty string
// or null.
const noHash = "0"

// defaultHashBufferSize mirrors the original collector's read-chunk
// size for hashing; reused here via the shared buffer pool rather than
// a fresh allocation per file.
const defaultHashBufferSize = 64 * 1024

// HashFile computes the lowercase-hex SHA-256 of path, or returns the
// literal "0" when the file exceeds maxSizeMB or is not a regular
// file. A stat or read error is returned as-is; callers treat it the
// same as a "0" hash for summary purposes but may still want to log it.
func HashFile(path string, maxSizeMB int64) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return noHash, err
	}
	if !info.Mode().IsRegular() {
		return noHash, nil
	}
	if maxSizeMB > 0 && info.Size() > maxSizeMB*1024*1024 {
		return noHash, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return noHash, err
	}
	defer f.Close()

	h := sha256.New()
	buf := buffer.GetBuffer(defaultHashBufferSize)
	defer buffer.PutBuffer(buf)

	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return noHash, err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
