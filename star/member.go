package star

import "encoding/binary"

// encodeMemberHeader serializes m into a fresh 128-byte little-endian
// buffer; the 101 reserved trailing bytes are left zero.
func encodeMemberHeader(m *MemberHeader) []byte {
	buf := make([]byte, MemberHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], m.NameOffset)
	binary.LittleEndian.PutUint32(buf[4:8], m.Size)
	binary.LittleEndian.PutUint32(buf[8:12], m.CompressedSize)
	binary.LittleEndian.PutUint32(buf[12:16], m.DataOffset)
	binary.LittleEndian.PutUint32(buf[16:20], m.Checksum)
	binary.LittleEndian.PutUint32(buf[20:24], m.Timestamp)
	binary.LittleEndian.PutUint16(buf[24:26], m.Flags)
	buf[26] = m.Compression
	return buf
}

// decodeMemberHeader parses one 128-byte member table entry from buf.
func decodeMemberHeader(buf []byte) *MemberHeader {
	return &MemberHeader{
		NameOffset:     binary.LittleEndian.Uint32(buf[0:4]),
		Size:           binary.LittleEndian.Uint32(buf[4:8]),
		CompressedSize: binary.LittleEndian.Uint32(buf[8:12]),
		DataOffset:     binary.LittleEndian.Uint32(buf[12:16]),
		Checksum:       binary.LittleEndian.Uint32(buf[16:20]),
		Timestamp:      binary.LittleEndian.Uint32(buf[20:24]),
		Flags:          binary.LittleEndian.Uint16(buf[24:26]),
		Compression:    buf[26],
	}
}

// Info renders m's metadata as the read-only MemberInfo view.
func (m *Member) Info() MemberInfo {
	return MemberInfo{
		Name:           m.Name,
		Size:           m.Header.Size,
		CompressedSize: m.Header.CompressedSize,
		Checksum:       m.Header.Checksum,
		Timestamp:      m.Header.Timestamp,
		Flags:          m.Header.Flags,
		Compression:    m.Header.Compression,
	}
}

func (m *Member) isExecutable() bool { return m.Header.Flags&MemberExecutable != 0 }
func (m *Member) isCompressed() bool { return m.Header.Compression != CompressNone }
