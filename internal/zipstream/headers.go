package zipstream

// localFileHeader builds the 30-byte-plus-name local file header. CRC
// and sizes are always zero here; generalPurposeBitFlag signals that
// the real values trail the entry in a data descriptor instead.
type localFileHeader struct {
	method          uint16
	dosTime, dosDate uint16
	name            string
}

func (h localFileHeader) bytes() []byte {
	nameBytes := []byte(h.name)
	buf := make([]byte, 30+len(nameBytes))

	byteOrder.PutUint32(buf[0:4], localFileHeaderSignature)
	byteOrder.PutUint16(buf[4:6], versionNeeded)
	byteOrder.PutUint16(buf[6:8], generalPurposeBitFlag)
	byteOrder.PutUint16(buf[8:10], h.method)
	byteOrder.PutUint16(buf[10:12], h.dosTime)
	byteOrder.PutUint16(buf[12:14], h.dosDate)
	byteOrder.PutUint32(buf[14:18], 0) // crc32, deferred
	byteOrder.PutUint32(buf[18:22], 0) // compressed size, deferred
	byteOrder.PutUint32(buf[22:26], 0) // uncompressed size, deferred
	byteOrder.PutUint16(buf[26:28], uint16(len(nameBytes)))
	byteOrder.PutUint16(buf[28:30], 0) // extra field length
	copy(buf[30:], nameBytes)

	return buf
}

// centralDirectoryHeaderBytes builds one 46-byte-plus-name central
// directory record mirroring the local header plus the entry's offset
// into the stream and its Unix permission bits (0644 files, 0755 dirs)
// in the external attributes field.
func centralDirectoryHeaderBytes(e centralDirEntry) []byte {
	nameBytes := []byte(e.name)
	buf := make([]byte, 46+len(nameBytes))

	extAttrs := unixFileExternalAttr
	if e.isDir {
		extAttrs = unixDirExternalAttr
	}

	byteOrder.PutUint32(buf[0:4], centralDirHeaderSignature)
	byteOrder.PutUint16(buf[4:6], versionMadeBy)
	byteOrder.PutUint16(buf[6:8], versionNeeded)
	byteOrder.PutUint16(buf[8:10], generalPurposeBitFlag)
	byteOrder.PutUint16(buf[10:12], e.method)
	byteOrder.PutUint16(buf[12:14], e.modTime)
	byteOrder.PutUint16(buf[14:16], e.modDate)
	byteOrder.PutUint32(buf[16:20], e.crc32)
	byteOrder.PutUint32(buf[20:24], e.compressedSize)
	byteOrder.PutUint32(buf[24:28], e.uncompressedSize)
	byteOrder.PutUint16(buf[28:30], uint16(len(nameBytes)))
	byteOrder.PutUint16(buf[30:32], 0) // extra field length
	byteOrder.PutUint16(buf[32:34], 0) // file comment length
	byteOrder.PutUint16(buf[34:36], 0) // disk number start
	byteOrder.PutUint16(buf[36:38], 0) // internal file attributes
	byteOrder.PutUint32(buf[38:42], extAttrs)
	byteOrder.PutUint32(buf[42:46], e.localHeaderOffset)
	copy(buf[46:], nameBytes)

	return buf
}

// endOfCentralDirBytes builds the fixed 22-byte EOCD record; comment
// length is always zero since no per-archive comment is supported.
func endOfCentralDirBytes(entryCount int, centralDirSize, centralDirOffset uint32) []byte {
	buf := make([]byte, 22)

	byteOrder.PutUint32(buf[0:4], endOfCentralDirSignature)
	byteOrder.PutUint16(buf[4:6], 0) // disk number
	byteOrder.PutUint16(buf[6:8], 0) // central dir disk
	byteOrder.PutUint16(buf[8:10], uint16(entryCount))
	byteOrder.PutUint16(buf[10:12], uint16(entryCount))
	byteOrder.PutUint32(buf[12:16], centralDirSize)
	byteOrder.PutUint32(buf[16:20], centralDirOffset)
	byteOrder.PutUint16(buf[20:22], 0) // comment length

	return buf
}
