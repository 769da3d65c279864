// Package star implements the STAR static archive container (C6): an
// indexed collection of SMOF objects with add/extract/list/update/delete
// operations, an optional symbol index for fast link-time lookup, and a
// pluggable compression codec per member.
package star

import "github.com/stix-toolchain/stld/smof"

// Magic identifies a STAR archive: the 32-bit constant 'STAR'. The header
// is written little-endian, so its first four bytes on disk are 52 41 54 53.
const Magic uint32 = 0x53544152

// VersionCurrent is the only format version this package writes.
const VersionCurrent uint16 = 1

// HeaderSize is the fixed, packed size of Header on disk.
const HeaderSize = 64

// MemberHeaderSize is the fixed, packed size of one MemberHeader on disk.
const MemberHeaderSize = 128

// SymbolEntrySize is the fixed, packed size of one SymbolIndexEntry on disk.
const SymbolEntrySize = 16

// MemberNameMax is the longest member name this package will create; names
// are NUL-terminated in the string table regardless, so this is an
// application-level sanity limit rather than an on-disk constraint.
const MemberNameMax = 256

// MaxMembers bounds member_count to what a uint16 "index" field can address
// everywhere the format accepts one (e.g. a symbol index entry's member
// index stays inside this range even though it is stored as a uint32).
const MaxMembers = 65535

// Archive flag bits.
const (
	FlagCompressed  uint16 = 1 << 0
	FlagIndexed     uint16 = 1 << 1
	FlagSorted      uint16 = 1 << 2
	FlagLittleEndian uint16 = 1 << 4
	FlagBigEndian    uint16 = 1 << 5
)

// Member flag bits.
const (
	MemberCompressed uint16 = 1 << 0
	MemberExecutable uint16 = 1 << 1
	MemberReadonly   uint16 = 1 << 2
)

// Compression algorithm selectors, shared by the archive header's member
// table and the CLI's -z flag.
const (
	CompressNone uint8 = 0
	CompressLZ4  uint8 = 1
	CompressZlib uint8 = 2
	CompressLZMA uint8 = 3
)

// Header is the in-memory form of the 64-byte archive header.
type Header struct {
	Magic             uint32
	Version           uint16
	Flags             uint16
	MemberCount       uint32
	IndexOffset       uint32
	IndexSize         uint32
	MemberTableOffset uint32
	StringTableOffset uint32
	StringTableSize   uint32
	CreationTime      uint32
	Checksum          uint32
}

// MemberHeader is the in-memory form of one 128-byte member table entry.
type MemberHeader struct {
	NameOffset     uint32
	Size           uint32
	CompressedSize uint32
	DataOffset     uint32
	Checksum       uint32
	Timestamp      uint32
	Flags          uint16
	Compression    uint8
}

// SymbolIndexEntry is the in-memory form of one 16-byte symbol index entry.
type SymbolIndexEntry struct {
	NameOffset   uint32
	MemberIndex  uint32
	SymbolValue  uint32
	SymbolType   uint8
	SymbolBinding uint8
}

// Member is one archive member held in memory: its header plus name and
// its stored payload bytes (compressed with Header.Compression's codec).
type Member struct {
	Header  MemberHeader
	Name    string
	Data    []byte // as stored in the archive; memberBytes decompresses it
	deleted bool   // logical delete, compacted away by Finalize/Save
}

// MemberInfo is the read-only view List returns; it never exposes Data, so
// callers that only want metadata never pay for a decompress.
type MemberInfo struct {
	Name           string
	Size           uint32
	CompressedSize uint32
	Checksum       uint32
	Timestamp      uint32
	Flags          uint16
	Compression    uint8
}

// Options bundles every archive-level knob from spec.md §6's star flags.
type Options struct {
	Compression     uint8
	CompressionLevel int
	CreateIndex     bool
	SortMembers     bool
	Verbose         bool
	ForceOverwrite  bool
}

// DefaultOptions returns NONE compression, no index, creation order
// preserved.
func DefaultOptions() Options {
	return Options{Compression: CompressNone}
}

// Stats reports what a completed operation did, for CLI summary printing.
type Stats struct {
	MemberCount      int
	TotalSize        int64
	CompressedSize   int64
	ArchiveSize      int64
	SymbolCount      int
	IndexSize        int
}

// symbolCandidate is one exported/global/weak SMOF symbol definition found
// while building the index, paired with the member it came from.
type symbolCandidate struct {
	name        string
	memberIndex uint32
	value       uint32
	symType     uint8
	binding     uint8
}

func isIndexable(s smof.Symbol) bool {
	if s.Entry.IsUndefined() {
		return false
	}
	switch s.Entry.Binding {
	case smof.BindGlobal, smof.BindWeak, smof.BindExport:
		return true
	default:
		return false
	}
}
