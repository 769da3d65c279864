package smof

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func sampleFile() *File {
	return &File{
		Header: Header{Flags: FlagExecutable, EntryPoint: 0x1000},
		Sections: []Section{
			{
				Name:    ".text",
				Payload: []byte{0x90, 0x90, 0xC3},
				Entry: SectionEntry{
					VirtualAddr: 0x1000,
					Size:        3,
					Flags:       SectExecutable | SectReadable | SectLoadable,
					Alignment:   2, // 4-byte alignment
				},
			},
			{
				Name:    ".bss",
				Payload: nil,
				Entry: SectionEntry{
					VirtualAddr: 0x2000,
					Size:        16,
					Flags:       SectWritable | SectReadable | SectZeroFill,
					Alignment:   4, // 16-byte alignment
				},
			},
		},
		Symbols: []Symbol{
			{Name: "_start", Entry: SymbolEntry{Value: 0x1000, SectionIndex: 0, Type: SymFunc, Binding: BindGlobal}},
			{Name: "extern_fn", Entry: SymbolEntry{SectionIndex: UndefinedSection, Type: SymFunc, Binding: BindGlobal}},
		},
		Relocs: []RelocEntry{
			{Offset: 1, SymbolIndex: 1, Type: RelocAbs32, SectionIndex: 0},
		},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	want := sampleFile()

	var buf bytes.Buffer
	if err := Encode(want, &buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode("test.smof", buf.Bytes())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if diff := cmp.Diff(want.Header.Flags, got.Header.Flags); diff != "" {
		t.Errorf("header flags mismatch (-want +got):\n%s", diff)
	}
	if got.Header.EntryPoint != want.Header.EntryPoint {
		t.Errorf("entry point = 0x%X, want 0x%X", got.Header.EntryPoint, want.Header.EntryPoint)
	}

	for i := range want.Sections {
		if got.Sections[i].Name != want.Sections[i].Name {
			t.Errorf("section %d name = %q, want %q", i, got.Sections[i].Name, want.Sections[i].Name)
		}
		if !bytes.Equal(got.Sections[i].Payload, want.Sections[i].Payload) {
			if want.Sections[i].Entry.FileOffset != 0 || len(want.Sections[i].Payload) > 0 {
				t.Errorf("section %d payload mismatch: got %v, want %v", i, got.Sections[i].Payload, want.Sections[i].Payload)
			}
		}
	}

	if len(got.Symbols) != len(want.Symbols) {
		t.Fatalf("symbol count = %d, want %d", len(got.Symbols), len(want.Symbols))
	}
	for i := range want.Symbols {
		if got.Symbols[i].Name != want.Symbols[i].Name {
			t.Errorf("symbol %d name = %q, want %q", i, got.Symbols[i].Name, want.Symbols[i].Name)
		}
	}

	if len(got.Relocs) != 1 || got.Relocs[0].Type != RelocAbs32 {
		t.Errorf("relocs mismatch: %+v", got.Relocs)
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	data := make([]byte, HeaderSize)
	_, err := Decode("bad.smof", data)
	if err == nil {
		t.Fatal("expected error for bad magic, got nil")
	}
}

func TestDecodeRejectsTruncated(t *testing.T) {
	_, err := Decode("short.smof", []byte{0x53, 0x4D})
	if err == nil {
		t.Fatal("expected error for truncated file, got nil")
	}
}

func TestSectionAlignmentInvariant(t *testing.T) {
	want := sampleFile()
	var buf bytes.Buffer
	if err := Encode(want, &buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode("align.smof", buf.Bytes())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for i, s := range got.Sections {
		align := s.Entry.AlignmentBytes()
		if s.Entry.VirtualAddr%align != 0 {
			t.Errorf("section %d: virtual_addr 0x%X not aligned to %d", i, s.Entry.VirtualAddr, align)
		}
	}
}

func TestBigEndianRoundTrip(t *testing.T) {
	f := sampleFile()
	f.Header.Flags |= FlagBigEndian

	var buf bytes.Buffer
	if err := Encode(f, &buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode("be.smof", buf.Bytes())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !got.Header.BigEndian() {
		t.Error("expected decoded header to report big-endian")
	}
	if got.Header.EntryPoint != f.Header.EntryPoint {
		t.Errorf("entry point = 0x%X, want 0x%X", got.Header.EntryPoint, f.Header.EntryPoint)
	}
}
