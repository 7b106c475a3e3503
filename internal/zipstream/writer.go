package zipstream

import (
	"hash/crc32"
	"io"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/flate"

	"github.com/forensant/triage-collector/pkg/errors"
)

// SelectMethod applies the Store-vs-Deflate rule: already-compressed
// extensions and files at or over storeSizeThreshold are Stored,
// everything else is Deflated. size may be -1 when unknown, in which
// case only the extension rule applies.
func SelectMethod(name string, size int64) uint16 {
	ext := strings.ToLower(path.Ext(name))
	if storedExtensions[ext] {
		return compressionStore
	}
	if size >= 0 && size >= storeSizeThreshold {
		return compressionStore
	}
	return compressionDeflate
}

// centralDirEntry is what Finish needs to replay each entry into the
// central directory once every file has been written.
type centralDirEntry struct {
	name             string
	method           uint16
	modTime          uint16
	modDate          uint16
	crc32            uint32
	compressedSize   uint32
	uncompressedSize uint32
	localHeaderOffset uint32
	isDir            bool
}

// Writer streams a PKZIP 2.0 archive to an arbitrary io.Writer, which
// need not support Seek. Only one FileWriter may be open at a time.
type Writer struct {
	w        io.Writer
	offset   uint64
	entries  []centralDirEntry
	open     bool
	bytesOut uint64 // atomic: bytes emitted, for progress reporting
}

// NewWriter wraps w for streaming ZIP output.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// BytesWritten returns the monotonic count of bytes emitted so far,
// safe to poll from another goroutine for progress reporting.
func (zw *Writer) BytesWritten() uint64 {
	return atomic.LoadUint64(&zw.bytesOut)
}

func (zw *Writer) write(p []byte) error {
	n, err := zw.w.Write(p)
	zw.offset += uint64(n)
	atomic.AddUint64(&zw.bytesOut, uint64(n))
	if err != nil {
		return errors.NewError(errors.ErrCodeZipEncodeError, "failed writing to zip sink").
			WithComponent("zipstream").WithOperation("write").WithCause(err)
	}
	return nil
}

// CreateFile begins a new file entry. name is stored posix-separated
// regardless of the host platform, per the archive format contract.
func (zw *Writer) CreateFile(name string, modTime time.Time, method uint16) (*FileWriter, error) {
	if zw.open {
		return nil, errors.NewError(errors.ErrCodeZipEncodeError, "previous zip entry not finished").
			WithComponent("zipstream").WithOperation("CreateFile")
	}
	name = strings.ReplaceAll(name, `\`, "/")

	dosTime, dosDate := dosDateTime(modTime)
	offset := zw.offset

	header := localFileHeader{
		method:  method,
		dosTime: dosTime,
		dosDate: dosDate,
		name:    name,
	}
	if err := zw.write(header.bytes()); err != nil {
		return nil, err
	}

	fw := &FileWriter{
		zw:                zw,
		name:              name,
		method:            method,
		modTime:           dosTime,
		modDate:           dosDate,
		localHeaderOffset: offset,
		crcHash:           crc32.NewIEEE(),
	}
	if method == compressionDeflate {
		flateWriter, err := flate.NewWriter(fw.compressedSink(), flate.DefaultCompression)
		if err != nil {
			return nil, errors.NewError(errors.ErrCodeZipEncodeError, "failed to create deflate stream").
				WithComponent("zipstream").WithOperation("CreateFile").WithCause(err)
		}
		fw.compressor = flateWriter
	}
	zw.open = true
	return fw, nil
}

// AddDirectory writes a zero-length directory entry; name is normalized
// to end with a trailing slash as the format requires.
func (zw *Writer) AddDirectory(name string, modTime time.Time) error {
	name = strings.ReplaceAll(name, `\`, "/")
	if !strings.HasSuffix(name, "/") {
		name += "/"
	}
	fw, err := zw.CreateFile(name, modTime, compressionStore)
	if err != nil {
		return err
	}
	fw.isDir = true
	return fw.Close()
}

func (zw *Writer) finishEntry(fw *FileWriter) error {
	entry := centralDirEntry{
		name:              fw.name,
		method:            fw.method,
		modTime:           fw.modTime,
		modDate:           fw.modDate,
		crc32:             fw.crc32Value,
		compressedSize:    uint32(fw.compressedSize),
		uncompressedSize:  uint32(fw.uncompressedSize),
		localHeaderOffset: uint32(fw.localHeaderOffset),
		isDir:             fw.isDir,
	}
	zw.entries = append(zw.entries, entry)
	zw.open = false
	return nil
}

// Finish emits the central directory and end-of-central-directory
// record. The Writer must not be used afterward.
func (zw *Writer) Finish() error {
	if zw.open {
		return errors.NewError(errors.ErrCodeZipEncodeError, "zip entry left open at Finish").
			WithComponent("zipstream").WithOperation("Finish")
	}

	centralDirStart := zw.offset
	for _, e := range zw.entries {
		if err := zw.write(centralDirectoryHeaderBytes(e)); err != nil {
			return err
		}
	}
	centralDirSize := zw.offset - centralDirStart

	eocd := endOfCentralDirBytes(len(zw.entries), uint32(centralDirSize), uint32(centralDirStart))
	return zw.write(eocd)
}

// FileWriter streams one entry's body. Write compresses (or passes
// through, for Store) and forwards to the archive sink; Close flushes
// the compressor, emits the data descriptor, and records the entry for
// the central directory.
type FileWriter struct {
	zw                *Writer
	name              string
	method            uint16
	modTime, modDate  uint16
	localHeaderOffset uint64
	crcHash           crcHash
	crc32Value        uint32
	uncompressedSize  uint64
	compressedSize    uint64
	compressor        io.WriteCloser
	isDir             bool
	closed            bool
}

// crcHash is the subset of hash.Hash32 FileWriter needs; aliased so
// tests can stub it if ever needed.
type crcHash interface {
	Write(p []byte) (int, error)
	Sum32() uint32
}

// compressedSink adapts the Writer's byte counter so flate's output
// (the compressed stream) is tallied into compressedSize and forwarded
// to the archive sink, independent of Write's own accounting of the
// uncompressed input.
func (fw *FileWriter) compressedSink() io.Writer {
	return compressedSinkWriter{fw: fw}
}

type compressedSinkWriter struct{ fw *FileWriter }

func (c compressedSinkWriter) Write(p []byte) (int, error) {
	if err := c.fw.zw.write(p); err != nil {
		return 0, err
	}
	c.fw.compressedSize += uint64(len(p))
	return len(p), nil
}

// Write feeds uncompressed bytes for the current entry in source order.
func (fw *FileWriter) Write(p []byte) (int, error) {
	if fw.closed {
		return 0, errors.NewError(errors.ErrCodeZipEncodeError, "write to closed zip entry").
			WithComponent("zipstream").WithOperation("Write")
	}
	if _, err := fw.crcHash.Write(p); err != nil {
		return 0, err
	}
	fw.uncompressedSize += uint64(len(p))

	if fw.method == compressionStore {
		if err := fw.zw.write(p); err != nil {
			return 0, err
		}
		fw.compressedSize += uint64(len(p))
		return len(p), nil
	}

	if _, err := fw.compressor.Write(p); err != nil {
		return 0, errors.NewError(errors.ErrCodeZipEncodeError, "deflate write failed").
			WithComponent("zipstream").WithOperation("Write").WithCause(err)
	}
	return len(p), nil
}

// Close flushes any pending compressed output, writes the trailing
// data descriptor, and registers the entry in the writer's central
// directory.
func (fw *FileWriter) Close() error {
	if fw.closed {
		return nil
	}
	fw.closed = true

	if fw.compressor != nil {
		if err := fw.compressor.Close(); err != nil {
			return errors.NewError(errors.ErrCodeZipEncodeError, "failed to flush deflate stream").
				WithComponent("zipstream").WithOperation("Close").WithCause(err)
		}
	}

	fw.crc32Value = fw.crcHash.Sum32()

	if err := fw.zw.write(dataDescriptorBytes(fw.crc32Value, uint32(fw.compressedSize), uint32(fw.uncompressedSize))); err != nil {
		return err
	}

	return fw.zw.finishEntry(fw)
}

func dataDescriptorBytes(crcSum, compressedSize, uncompressedSize uint32) []byte {
	buf := make([]byte, 16)
	byteOrder.PutUint32(buf[0:4], dataDescriptorSignature)
	byteOrder.PutUint32(buf[4:8], crcSum)
	byteOrder.PutUint32(buf[8:12], compressedSize)
	byteOrder.PutUint32(buf[12:16], uncompressedSize)
	return buf
}
