package smof

import (
	"encoding/binary"
	"fmt"

	"github.com/stix-toolchain/stld/internal/errcode"
)

// Decode parses a complete SMOF file from data, validating every
// structural invariant from spec.md §3 before returning. Every offset is
// range-checked before it is dereferenced, in the same style as the
// teacher's readObjectFile: compute every table boundary up front, reject
// on the first one that doesn't fit, and only then walk the tables.
func Decode(path string, data []byte) (*File, error) {
	if len(data) < HeaderSize {
		return nil, newFormatError(path, errcode.CorruptHeader,
			fmt.Sprintf("file too short for SMOF header (%d bytes, need %d)", len(data), HeaderSize))
	}

	// The header's own fields are always little-endian on disk (the
	// endianness flag governs only the fields after it is known), per
	// spec.md §4.1: "Endian conversion is driven by the header
	// endianness flag ... the reader byte-swaps on mismatch when
	// decoding integer fields." The header is decoded little-endian, and
	// its Flags then select the byte order used for every table after it.
	rawMagic := binary.LittleEndian.Uint32(data[0:4])
	if rawMagic != Magic {
		return nil, newFormatError(path, errcode.InvalidMagic,
			fmt.Sprintf("bad magic 0x%08X (expected 0x%08X)", rawMagic, Magic))
	}

	var order binary.ByteOrder = binary.LittleEndian

	var h Header
	h.Magic = order.Uint32(data[0:4])
	h.Version = order.Uint16(data[4:6])
	h.Flags = order.Uint16(data[6:8])
	h.EntryPoint = order.Uint32(data[8:12])
	h.SectionCount = order.Uint16(data[12:14])
	h.SymbolCount = order.Uint16(data[14:16])
	h.StringTableOffset = order.Uint32(data[16:20])
	h.StringTableSize = order.Uint32(data[20:24])
	h.SectionTableOffset = order.Uint32(data[24:28])
	h.RelocTableOffset = order.Uint32(data[28:32])
	h.RelocCount = order.Uint16(data[32:34])
	h.ImportCount = order.Uint16(data[34:36])
	order = byteOrderFor(h.Flags)

	if h.Version > VersionCurrent {
		return nil, newFormatError(path, errcode.UnsupportedVersion,
			fmt.Sprintf("version %d unsupported (max %d)", h.Version, VersionCurrent))
	}

	if err := validateHeaderRanges(&h, len(data)); err != nil {
		return nil, newFormatError(path, errcode.CorruptHeader, err.Error())
	}

	strtab := data[h.StringTableOffset : h.StringTableOffset+h.StringTableSize]

	sections, err := decodeSections(&h, data, strtab, order)
	if err != nil {
		return nil, newFormatError(path, errcode.InvalidSection, err.Error())
	}

	symbols, err := decodeSymbols(&h, data, strtab, order)
	if err != nil {
		return nil, newFormatError(path, errcode.InvalidSymbol, err.Error())
	}

	relocs, err := decodeRelocs(&h, data, order)
	if err != nil {
		return nil, newFormatError(path, errcode.InvalidRelocation, err.Error())
	}

	return &File{
		Header:   h,
		Sections: sections,
		Symbols:  symbols,
		Relocs:   relocs,
		Imports:  nil, // the core emits zero import entries; reserved per spec.md §3
	}, nil
}

func byteOrderFor(flags uint16) binary.ByteOrder {
	if flags&FlagBigEndian != 0 {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func decodeSections(h *Header, data, strtab []byte, order binary.ByteOrder) ([]Section, error) {
	sections := make([]Section, h.SectionCount)
	for i := range sections {
		base := int(h.SectionTableOffset) + i*SectionEntrySize
		if base+SectionEntrySize > len(data) {
			return nil, fmt.Errorf("section %d out of range", i)
		}
		e := SectionEntry{
			NameOffset:  order.Uint32(data[base : base+4]),
			VirtualAddr: order.Uint32(data[base+4 : base+8]),
			Size:        order.Uint32(data[base+8 : base+12]),
			FileOffset:  order.Uint32(data[base+12 : base+16]),
			Flags:       order.Uint16(data[base+16 : base+18]),
			Alignment:   data[base+18],
			Reserved:    data[base+19],
		}
		if e.Alignment > 31 {
			return nil, fmt.Errorf("section %d alignment exponent %d out of range", i, e.Alignment)
		}
		align := e.AlignmentBytes()
		if align != 0 && e.VirtualAddr%align != 0 {
			return nil, fmt.Errorf("section %d virtual_addr 0x%X not aligned to %d", i, e.VirtualAddr, align)
		}

		name, err := readString(strtab, e.NameOffset)
		if err != nil {
			return nil, fmt.Errorf("section %d: %v", i, err)
		}

		var payload []byte
		if e.FileOffset == 0 {
			payload = make([]byte, e.Size) // BSS: zero-fill, no file bytes
		} else {
			end := int(e.FileOffset) + int(e.Size)
			if end > len(data) {
				return nil, fmt.Errorf("section %d payload out of range", i)
			}
			payload = make([]byte, e.Size)
			copy(payload, data[e.FileOffset:end])
		}

		sections[i] = Section{Entry: e, Name: name, Payload: payload}
	}
	return sections, nil
}

func decodeSymbols(h *Header, data, strtab []byte, order binary.ByteOrder) ([]Symbol, error) {
	symStart := headerSymbolTableOffset(h)
	symbols := make([]Symbol, h.SymbolCount)
	for i := range symbols {
		base := symStart + i*SymbolEntrySize
		if base+SymbolEntrySize > len(data) {
			return nil, fmt.Errorf("symbol %d out of range", i)
		}
		e := SymbolEntry{
			NameOffset:   order.Uint32(data[base : base+4]),
			Value:        order.Uint32(data[base+4 : base+8]),
			Size:         order.Uint32(data[base+8 : base+12]),
			SectionIndex: order.Uint16(data[base+12 : base+14]),
			Type:         data[base+14],
			Binding:      data[base+15],
		}
		if e.SectionIndex != UndefinedSection && e.SectionIndex >= h.SectionCount {
			return nil, fmt.Errorf("symbol %d section_index %d >= section_count %d", i, e.SectionIndex, h.SectionCount)
		}
		name, err := readString(strtab, e.NameOffset)
		if err != nil {
			return nil, fmt.Errorf("symbol %d: %v", i, err)
		}
		symbols[i] = Symbol{Entry: e, Name: name}
	}
	return symbols, nil
}

func decodeRelocs(h *Header, data []byte, order binary.ByteOrder) ([]RelocEntry, error) {
	relocs := make([]RelocEntry, h.RelocCount)
	for i := range relocs {
		base := int(h.RelocTableOffset) + i*RelocEntrySize
		if base+RelocEntrySize > len(data) {
			return nil, fmt.Errorf("relocation %d out of range", i)
		}
		relocs[i] = RelocEntry{
			Offset:       order.Uint32(data[base : base+4]),
			SymbolIndex:  order.Uint16(data[base+4 : base+6]),
			Type:         data[base+6],
			SectionIndex: data[base+7],
		}
	}
	return relocs, nil
}

// headerSymbolTableOffset computes the symbol table's file offset. The
// header does not store this directly (only section_table_offset and
// reloc_table_offset are explicit); the symbol table is the region
// between the section table's end and the relocation table's start, by
// the fixed parse order spec.md §4.1 lays out.
func headerSymbolTableOffset(h *Header) int {
	return int(h.SectionTableOffset) + int(h.SectionCount)*SectionEntrySize
}

func readString(strtab []byte, offset uint32) (string, error) {
	if offset == 0 {
		return "", nil
	}
	if int(offset) >= len(strtab) {
		return "", fmt.Errorf("name offset %d out of range (string table size %d)", offset, len(strtab))
	}
	end := int(offset)
	for end < len(strtab) && strtab[end] != 0 {
		end++
	}
	if end >= len(strtab) {
		return "", fmt.Errorf("name offset %d: string not NUL-terminated", offset)
	}
	return string(strtab[offset:end]), nil
}
