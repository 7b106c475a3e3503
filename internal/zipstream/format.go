// Package zipstream implements a forward-only PKZIP 2.0 encoder for a
// write-only, non-seekable sink. Standard library archive/zip assumes
// a seekable writer (it patches the local file header's CRC and sizes
// after the fact); a cloud upload stream or SSH pipe offers no such
// seek-back. This encoder instead sets general-purpose bit 3 and trails
// every entry with a data descriptor, which is the PKZIP-sanctioned way
// to defer CRC/size reporting to after the compressed body.
package zipstream

import "encoding/binary"

const (
	localFileHeaderSignature  uint32 = 0x04034b50
	dataDescriptorSignature   uint32 = 0x08074b50
	centralDirHeaderSignature uint32 = 0x02014b50
	endOfCentralDirSignature  uint32 = 0x06054b50

	versionNeeded = 20   // 2.0
	versionMadeBy = 0x031e // upper byte 3 = Unix, lower byte 0x1e = 3.0

	compressionStore   uint16 = 0
	compressionDeflate uint16 = 8

	// bit 3: sizes/CRC are zero in the local header and follow in a
	// data descriptor instead.
	generalPurposeBitFlag uint16 = 0x0008

	// external attributes for a regular file with mode 0644, Unix
	// attributes shifted into the high 16 bits per the de facto
	// Info-ZIP convention.
	unixFileExternalAttr uint32 = 0644 << 16
	unixDirExternalAttr  uint32 = (0040755) << 16 // S_IFDIR | 0755
)

var byteOrder = binary.LittleEndian

// storedExtensions lists file extensions whose content is assumed to
// already be compressed; such entries are Stored rather than Deflated.
var storedExtensions = map[string]bool{
	".zip": true, ".gz": true, ".xz": true, ".bz2": true, ".7z": true,
	".rar": true, ".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".mp3": true, ".mp4": true, ".avi": true, ".mov": true, ".mpg": true,
	".mpeg": true,
}

// storeSizeThreshold is the file size at and above which an entry is
// Stored regardless of extension, to avoid spending CPU deflating data
// that's unlikely to compress well within a triage time budget.
const storeSizeThreshold = 100 * 1024 * 1024
