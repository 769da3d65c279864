// Package smof implements the SMOF (STIX Minimal Object Format) codec: the
// on-disk relocatable object file format consumed by the linker and read
// by the archiver when it builds a symbol index.
package smof

// Magic is the 32-bit constant identifying a SMOF file. On disk it is
// written byte-for-byte as 53 4D 4F 46 ("SMOF" in ASCII); read back on a
// little-endian host that compares equal to 0x464F4D53. The original
// source tree under _examples/original_source carries a second, divergent
// header layout (32 bytes, 12-byte section entries) under the same name —
// that layout is not supported here; only the 36-byte header / 20-byte
// section entry layout below is accepted.
const Magic uint32 = 0x464F4D53

// VersionCurrent is the highest format version this codec understands.
const VersionCurrent uint16 = 1

// HeaderSize is the fixed, packed size of Header on disk.
const HeaderSize = 36

// SectionEntrySize is the fixed, packed size of one SectionEntry on disk.
const SectionEntrySize = 20

// SymbolEntrySize is the fixed, packed size of one SymbolEntry on disk.
const SymbolEntrySize = 16

// RelocEntrySize is the fixed, packed size of one RelocEntry on disk.
const RelocEntrySize = 8

// ImportEntrySize is the fixed, packed size of one ImportEntry on disk.
const ImportEntrySize = 8

// UndefinedSection is the section_index sentinel marking an undefined
// (externally resolved) symbol.
const UndefinedSection uint16 = 0xFFFF

// Header flag bits.
const (
	FlagExecutable      uint16 = 1 << 0
	FlagSharedLib       uint16 = 1 << 1
	FlagPositionIndep   uint16 = 1 << 2
	FlagStripped        uint16 = 1 << 3
	FlagStatic          uint16 = 1 << 4
	FlagCompressed      uint16 = 1 << 5
	FlagEncrypted       uint16 = 1 << 6
	FlagUnixFeatures    uint16 = 1 << 7
	FlagBigEndian       uint16 = 1 << 8 // endianness flag driving decode byte order
)

// Section flag bits (bitmask, §3).
const (
	SectExecutable    uint16 = 1 << 0
	SectWritable      uint16 = 1 << 1
	SectReadable      uint16 = 1 << 2
	SectLoadable      uint16 = 1 << 3
	SectZeroFill      uint16 = 1 << 4
	SectCompressed    uint16 = 1 << 5
	SectShared        uint16 = 1 << 6
	SectPositionIndep uint16 = 1 << 7
)

// Symbol types.
const (
	SymNoType  uint8 = 0
	SymObject  uint8 = 1
	SymFunc    uint8 = 2
	SymSection uint8 = 3
	SymFile    uint8 = 4
	SymSyscall uint8 = 5
)

// Symbol bindings.
const (
	BindLocal  uint8 = 0
	BindGlobal uint8 = 1
	BindWeak   uint8 = 2
	BindExport uint8 = 3
)

// Relocation types.
const (
	RelocNone    uint8 = 0
	RelocAbs32   uint8 = 1
	RelocRel32   uint8 = 2
	RelocAbs16   uint8 = 3
	RelocRel16   uint8 = 4
	RelocSyscall uint8 = 5
	RelocGOT     uint8 = 6
	RelocPLT     uint8 = 7
	// Optional variants allowed by spec.md §3's parenthetical; implementations
	// must reject anything outside this enumerated set.
	RelocAbs8 uint8 = 8
	RelocPC8  uint8 = 9
)

// Header is the in-memory representation of the 36-byte SMOF file header.
// It is never cast onto raw file bytes; Decode/Encode convert explicitly.
type Header struct {
	Magic             uint32
	Version           uint16
	Flags             uint16
	EntryPoint        uint32
	SectionCount      uint16
	SymbolCount       uint16
	StringTableOffset uint32
	StringTableSize   uint32
	SectionTableOffset uint32
	RelocTableOffset  uint32
	RelocCount        uint16
	ImportCount       uint16
}

// BigEndian reports whether the header's flags request big-endian decode
// of the remaining integer fields. SMOF files otherwise default to
// little-endian.
func (h *Header) BigEndian() bool {
	return h.Flags&FlagBigEndian != 0
}

// SectionEntry is the in-memory representation of one 20-byte section
// table entry.
type SectionEntry struct {
	NameOffset  uint32
	VirtualAddr uint32
	Size        uint32
	FileOffset  uint32 // 0 => zero-fill / BSS
	Flags       uint16
	Alignment   uint8 // power-of-two exponent
	Reserved    uint8
}

// AlignmentBytes returns 2^Alignment, the actual byte alignment requested.
func (s *SectionEntry) AlignmentBytes() uint32 {
	return uint32(1) << s.Alignment
}

// IsBSS reports whether the section occupies address space but no file
// bytes.
func (s *SectionEntry) IsBSS() bool {
	return s.FileOffset == 0 && s.Flags&SectZeroFill != 0
}

// SymbolEntry is the in-memory representation of one 16-byte symbol
// table entry.
type SymbolEntry struct {
	NameOffset   uint32
	Value        uint32
	Size         uint32
	SectionIndex uint16 // UndefinedSection => undefined
	Type         uint8
	Binding      uint8
}

// IsUndefined reports whether the symbol is an unresolved external
// reference.
func (s *SymbolEntry) IsUndefined() bool {
	return s.SectionIndex == UndefinedSection
}

// RelocEntry is the in-memory representation of one 8-byte relocation
// table entry.
type RelocEntry struct {
	Offset       uint32
	SymbolIndex  uint16
	Type         uint8
	SectionIndex uint8
}

// ImportEntry is the in-memory representation of one 8-byte import table
// entry. The core linker never emits these; they are reserved for
// dynamic-linking consumers and are parsed/round-tripped only.
type ImportEntry struct {
	LibraryNameOffset uint32
	SymbolNameOffset  uint32
}

// Section pairs a SectionEntry with its payload bytes. Decode gives a
// section with file_offset 0 (BSS) a zero-filled payload of Size bytes;
// Encode writes no payload bytes for a BSS section.
type Section struct {
	Entry   SectionEntry
	Name    string
	Payload []byte
}

// Symbol pairs a SymbolEntry with its decoded name.
type Symbol struct {
	Entry SymbolEntry
	Name  string
}

// File is the fully decoded in-memory form of a SMOF file.
type File struct {
	Header   Header
	Sections []Section
	Symbols  []Symbol
	Relocs   []RelocEntry
	Imports  []ImportEntry
}
