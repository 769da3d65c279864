package linker

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stix-toolchain/stld/smof"
)

func buildObject(t *testing.T, f *smof.File) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := smof.Encode(f, &buf); err != nil {
		t.Fatalf("encoding fixture object: %v", err)
	}
	return buf.Bytes()
}

func writeTemp(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

// objA defines _start (referencing the undefined symbol "helper" through a
// REL32 relocation) in its own .text section.
func objA() *smof.File {
	return &smof.File{
		Sections: []smof.Section{
			{
				Name:    ".text",
				Payload: []byte{0x00, 0xFF, 0xFF, 0xFF, 0xFF},
				Entry: smof.SectionEntry{
					Size:  5,
					Flags: smof.SectExecutable | smof.SectReadable | smof.SectLoadable,
				},
			},
		},
		Symbols: []smof.Symbol{
			{Name: "_start", Entry: smof.SymbolEntry{SectionIndex: 0, Type: smof.SymFunc, Binding: smof.BindGlobal}},
			{Name: "helper", Entry: smof.SymbolEntry{SectionIndex: smof.UndefinedSection, Type: smof.SymFunc, Binding: smof.BindGlobal}},
		},
		Relocs: []smof.RelocEntry{
			{Offset: 1, SymbolIndex: 1, Type: smof.RelocRel32, SectionIndex: 0},
		},
	}
}

// objB defines helper in a differently named section so it is never a
// MergeByName candidate against objA's .text.
func objB() *smof.File {
	return &smof.File{
		Sections: []smof.Section{
			{
				Name:    ".textb",
				Payload: []byte{0x90, 0x90, 0x90, 0x90},
				Entry: smof.SectionEntry{
					Size:  4,
					Flags: smof.SectExecutable | smof.SectReadable | smof.SectLoadable,
				},
			},
		},
		Symbols: []smof.Symbol{
			{Name: "helper", Entry: smof.SymbolEntry{SectionIndex: 0, Type: smof.SymFunc, Binding: smof.BindGlobal}},
		},
	}
}

func TestLinkToResolvesAndEmitsSMOF(t *testing.T) {
	dir := t.TempDir()
	pathA := writeTemp(t, dir, "a.smof", buildObject(t, objA()))
	pathB := writeTemp(t, dir, "b.smof", buildObject(t, objB()))
	out := filepath.Join(dir, "linked.smof")

	opts := DefaultOptions()
	opts.BaseAddress = 0x8000

	ctx := New(opts, nil)
	ctx.AddInputPath(pathA)
	ctx.AddInputPath(pathB)

	if err := ctx.LinkTo(out); err != nil {
		t.Fatalf("LinkTo: %v", err)
	}

	stats := ctx.Stats()
	if stats.ResolvedRelocs != 1 {
		t.Errorf("resolved relocs = %d, want 1", stats.ResolvedRelocs)
	}
	if stats.EntryPoint == 0 {
		t.Error("expected a non-zero entry point resolved from _start")
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("reading linked output: %v", err)
	}
	linked, err := smof.Decode(out, data)
	if err != nil {
		t.Fatalf("decoding linked output: %v", err)
	}
	if linked.Header.EntryPoint != stats.EntryPoint {
		t.Errorf("emitted entry_point = 0x%X, want 0x%X", linked.Header.EntryPoint, stats.EntryPoint)
	}

	var textSection *smof.Section
	for i := range linked.Sections {
		if linked.Sections[i].Name == ".text" {
			textSection = &linked.Sections[i]
		}
	}
	if textSection == nil {
		t.Fatal(".text section missing from linked output")
	}
	// .text lies at 0x8000 and helper's .textb right after it at 0x8005, so
	// the REL32 at .text+1 is S - P - 4 = 0x8005 - 0x8001 - 4 = 0; the
	// 0xFF placeholder bytes show that the patch was written.
	patched := binary.LittleEndian.Uint32(textSection.Payload[1:5])
	if patched != 0 {
		t.Errorf("REL32 displacement = 0x%X, want 0", patched)
	}
}

func TestLinkToFailsOnUnresolvedSymbol(t *testing.T) {
	dir := t.TempDir()
	pathA := writeTemp(t, dir, "a.smof", buildObject(t, objA()))
	out := filepath.Join(dir, "linked.smof")

	ctx := New(DefaultOptions(), nil)
	ctx.AddInputPath(pathA)

	if err := ctx.LinkTo(out); err == nil {
		t.Fatal("expected link failure: 'helper' is never defined")
	}
	if _, err := os.Stat(out); err == nil {
		t.Error("a failed link must not leave an output file behind")
	}
}

func TestLinkToRejectsNoInputs(t *testing.T) {
	ctx := New(DefaultOptions(), nil)
	if err := ctx.LinkTo(filepath.Join(t.TempDir(), "out.smof")); err == nil {
		t.Fatal("expected error for zero input files")
	}
}

func TestLinkToEntrySymbolOverride(t *testing.T) {
	dir := t.TempDir()
	pathA := writeTemp(t, dir, "a.smof", buildObject(t, objA()))
	pathB := writeTemp(t, dir, "b.smof", buildObject(t, objB()))
	out := filepath.Join(dir, "linked.smof")

	opts := DefaultOptions()
	opts.BaseAddress = 0x8000
	opts.EntrySymbol = "helper"

	ctx := New(opts, nil)
	ctx.AddInputPath(pathA)
	ctx.AddInputPath(pathB)

	if err := ctx.LinkTo(out); err != nil {
		t.Fatalf("LinkTo: %v", err)
	}

	stats := ctx.Stats()
	if stats.EntryPoint == 0 {
		t.Error("expected entry point resolved from the 'helper' override")
	}
}

func TestLinkToEntrySymbolMissingFails(t *testing.T) {
	dir := t.TempDir()
	pathA := writeTemp(t, dir, "a.smof", buildObject(t, objA()))
	pathB := writeTemp(t, dir, "b.smof", buildObject(t, objB()))
	out := filepath.Join(dir, "linked.smof")

	opts := DefaultOptions()
	opts.EntrySymbol = "does_not_exist"

	ctx := New(opts, nil)
	ctx.AddInputPath(pathA)
	ctx.AddInputPath(pathB)

	if err := ctx.LinkTo(out); err == nil {
		t.Fatal("expected link failure for a missing entry symbol override")
	}
	if _, err := os.Stat(out); err == nil {
		t.Error("a failed link must not leave an output file behind")
	}
}

func TestLinkToBinaryFlat(t *testing.T) {
	dir := t.TempDir()
	pathB := writeTemp(t, dir, "b.smof", buildObject(t, objB()))
	out := filepath.Join(dir, "flat.bin")

	opts := DefaultOptions()
	opts.OutputType = BinaryFlat
	opts.BaseAddress = 0x0

	ctx := New(opts, nil)
	ctx.AddInputPath(pathB)
	if err := ctx.LinkTo(out); err != nil {
		t.Fatalf("LinkTo: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("reading flat output: %v", err)
	}
	if !bytes.Contains(data, []byte{0x90, 0x90, 0x90, 0x90}) {
		t.Error("flat binary should contain the raw section payload")
	}
}
