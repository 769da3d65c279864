package star

import (
	"encoding/binary"
	"hash/crc32"
)

// encodeHeader serializes h into a fresh 64-byte little-endian buffer,
// with the trailing 24 reserved bytes left zero. Checksum is always
// recomputed by Save immediately before the final write, so an
// out-of-date Checksum field here is harmless.
func encodeHeader(h *Header) []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint16(buf[4:6], h.Version)
	binary.LittleEndian.PutUint16(buf[6:8], h.Flags)
	binary.LittleEndian.PutUint32(buf[8:12], h.MemberCount)
	binary.LittleEndian.PutUint32(buf[12:16], h.IndexOffset)
	binary.LittleEndian.PutUint32(buf[16:20], h.IndexSize)
	binary.LittleEndian.PutUint32(buf[20:24], h.MemberTableOffset)
	binary.LittleEndian.PutUint32(buf[24:28], h.StringTableOffset)
	binary.LittleEndian.PutUint32(buf[28:32], h.StringTableSize)
	binary.LittleEndian.PutUint32(buf[32:36], h.CreationTime)
	binary.LittleEndian.PutUint32(buf[36:40], h.Checksum)
	return buf
}

// decodeHeader parses a 64-byte header from buf.
func decodeHeader(buf []byte) (*Header, error) {
	if len(buf) < HeaderSize {
		return nil, errHeaderTooShort
	}
	h := &Header{
		Magic:             binary.LittleEndian.Uint32(buf[0:4]),
		Version:           binary.LittleEndian.Uint16(buf[4:6]),
		Flags:             binary.LittleEndian.Uint16(buf[6:8]),
		MemberCount:       binary.LittleEndian.Uint32(buf[8:12]),
		IndexOffset:       binary.LittleEndian.Uint32(buf[12:16]),
		IndexSize:         binary.LittleEndian.Uint32(buf[16:20]),
		MemberTableOffset: binary.LittleEndian.Uint32(buf[20:24]),
		StringTableOffset: binary.LittleEndian.Uint32(buf[24:28]),
		StringTableSize:   binary.LittleEndian.Uint32(buf[28:32]),
		CreationTime:      binary.LittleEndian.Uint32(buf[32:36]),
		Checksum:          binary.LittleEndian.Uint32(buf[36:40]),
	}
	return h, nil
}

// ValidateHeader reports whether h names a STAR archive this package's
// current format version can read.
func ValidateHeader(h *Header) bool {
	return h != nil && h.Magic == Magic && h.Version <= VersionCurrent
}

// Checksum computes the CRC32 (IEEE) of data — the archive format's
// checksum for both the header (computed with the Checksum field itself
// zeroed) and every member's uncompressed payload. No pack example pulls
// in a third-party CRC32 implementation; hash/crc32 is the ecosystem's own
// answer for this exact algorithm, so there is nothing to adopt instead.
func Checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

func headerChecksum(h *Header) uint32 {
	tmp := *h
	tmp.Checksum = 0
	return Checksum(encodeHeader(&tmp))
}

var errHeaderTooShort = &formatError{"archive header shorter than 64 bytes"}

type formatError struct{ msg string }

func (e *formatError) Error() string { return e.msg }
