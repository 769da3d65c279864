package smof

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/stix-toolchain/stld/internal/errcode"
)

// Encode serializes f deterministically: header, string table, section
// table, symbol table, relocation table, then section payloads in
// section-table order — the same fixed order the teacher's writer
// follows, extended with the string/symbol/relocation tables the WOF
// format the teacher targets does not have.
//
// Section payloads are preceded by zero padding so each section's
// on-disk file_offset matches the value recorded in its table entry;
// BSS sections (file_offset == 0) contribute no payload bytes at all.
func Encode(f *File, w io.Writer) error {
	strtab, nameOffsets := buildStringTable(f)

	stringTableOffset := uint32(HeaderSize)
	stringTableSize := uint32(len(strtab))
	sectionTableOffset := stringTableOffset + stringTableSize
	sectionTableSize := uint32(len(f.Sections)) * SectionEntrySize
	symbolTableOffset := sectionTableOffset + sectionTableSize
	symbolTableSize := uint32(len(f.Symbols)) * SymbolEntrySize
	relocTableOffset := symbolTableOffset + symbolTableSize
	relocTableSize := uint32(len(f.Relocs)) * RelocEntrySize

	payloadBase := relocTableOffset + relocTableSize
	fileOffsets := make([]uint32, len(f.Sections))
	cursor := payloadBase
	for i, s := range f.Sections {
		if s.Entry.IsBSS() {
			fileOffsets[i] = 0
			continue
		}
		fileOffsets[i] = cursor
		cursor += uint32(len(s.Payload))
	}

	h := f.Header
	h.Magic = Magic
	if h.Version == 0 {
		h.Version = VersionCurrent
	}
	h.SectionCount = uint16(len(f.Sections))
	h.SymbolCount = uint16(len(f.Symbols))
	h.RelocCount = uint16(len(f.Relocs))
	h.ImportCount = uint16(len(f.Imports))
	h.StringTableOffset = stringTableOffset
	h.StringTableSize = stringTableSize
	h.SectionTableOffset = sectionTableOffset
	h.RelocTableOffset = relocTableOffset

	if !Validate(&h) {
		return newFormatError("", errcode.CorruptHeader, "refusing to encode an invalid header")
	}

	order := byteOrderFor(h.Flags)

	// The header is always little-endian; order applies to the tables.
	var buf bytes.Buffer
	if err := writeHeader(&buf, &h, binary.LittleEndian); err != nil {
		return err
	}

	buf.Write(strtab)

	for i, s := range f.Sections {
		e := s.Entry
		e.NameOffset = nameOffsets[s.Name]
		e.FileOffset = fileOffsets[i]
		if err := writeSectionEntry(&buf, &e, order); err != nil {
			return err
		}
	}

	for _, s := range f.Symbols {
		e := s.Entry
		e.NameOffset = nameOffsets[s.Name]
		if err := writeSymbolEntry(&buf, &e, order); err != nil {
			return err
		}
	}

	for _, r := range f.Relocs {
		if err := writeRelocEntry(&buf, &r, order); err != nil {
			return err
		}
	}

	for i, s := range f.Sections {
		if s.Entry.IsBSS() {
			continue
		}
		want := int(fileOffsets[i])
		if buf.Len() < want {
			buf.Write(make([]byte, want-buf.Len()))
		}
		buf.Write(s.Payload)
	}

	_, err := w.Write(buf.Bytes())
	return err
}

func writeHeader(buf *bytes.Buffer, h *Header, order binary.ByteOrder) error {
	raw := make([]byte, HeaderSize)
	order.PutUint32(raw[0:4], h.Magic)
	order.PutUint16(raw[4:6], h.Version)
	order.PutUint16(raw[6:8], h.Flags)
	order.PutUint32(raw[8:12], h.EntryPoint)
	order.PutUint16(raw[12:14], h.SectionCount)
	order.PutUint16(raw[14:16], h.SymbolCount)
	order.PutUint32(raw[16:20], h.StringTableOffset)
	order.PutUint32(raw[20:24], h.StringTableSize)
	order.PutUint32(raw[24:28], h.SectionTableOffset)
	order.PutUint32(raw[28:32], h.RelocTableOffset)
	order.PutUint16(raw[32:34], h.RelocCount)
	order.PutUint16(raw[34:36], h.ImportCount)
	_, err := buf.Write(raw)
	return err
}

func writeSectionEntry(buf *bytes.Buffer, e *SectionEntry, order binary.ByteOrder) error {
	raw := make([]byte, SectionEntrySize)
	order.PutUint32(raw[0:4], e.NameOffset)
	order.PutUint32(raw[4:8], e.VirtualAddr)
	order.PutUint32(raw[8:12], e.Size)
	order.PutUint32(raw[12:16], e.FileOffset)
	order.PutUint16(raw[16:18], e.Flags)
	raw[18] = e.Alignment
	raw[19] = e.Reserved
	_, err := buf.Write(raw)
	return err
}

func writeSymbolEntry(buf *bytes.Buffer, e *SymbolEntry, order binary.ByteOrder) error {
	raw := make([]byte, SymbolEntrySize)
	order.PutUint32(raw[0:4], e.NameOffset)
	order.PutUint32(raw[4:8], e.Value)
	order.PutUint32(raw[8:12], e.Size)
	order.PutUint16(raw[12:14], e.SectionIndex)
	raw[14] = e.Type
	raw[15] = e.Binding
	_, err := buf.Write(raw)
	return err
}

func writeRelocEntry(buf *bytes.Buffer, r *RelocEntry, order binary.ByteOrder) error {
	raw := make([]byte, RelocEntrySize)
	order.PutUint32(raw[0:4], r.Offset)
	order.PutUint16(raw[4:6], r.SymbolIndex)
	raw[6] = r.Type
	raw[7] = r.SectionIndex
	_, err := buf.Write(raw)
	return err
}

// buildStringTable concatenates every section and symbol name into one
// NUL-terminated string table, offset 0 reserved for the empty string,
// and returns the name->offset map Encode uses to patch entries.
func buildStringTable(f *File) ([]byte, map[string]uint32) {
	strtab := []byte{0}
	offsets := map[string]uint32{"": 0}

	intern := func(name string) {
		if name == "" {
			return
		}
		if _, ok := offsets[name]; ok {
			return
		}
		offsets[name] = uint32(len(strtab))
		strtab = append(strtab, []byte(name)...)
		strtab = append(strtab, 0)
	}

	for _, s := range f.Sections {
		intern(s.Name)
	}
	for _, s := range f.Symbols {
		intern(s.Name)
	}

	return strtab, offsets
}
