package star

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stix-toolchain/stld/smof"
)

func TestCreateListExtractRoundTrip(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "payload.bin")
	payload := []byte("hello archive world")
	writeFile(t, srcPath, payload)

	archivePath := filepath.Join(dir, "test.star")

	a := New(DefaultOptions(), nil)
	if err := a.AddFile(srcPath, "payload.bin"); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if err := a.Save(archivePath); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(archivePath, DefaultOptions(), nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	list := loaded.List()
	if len(list) != 1 || list[0].Name != "payload.bin" {
		t.Fatalf("List = %+v, want one member named payload.bin", list)
	}

	got, err := loaded.ExtractToMemory("payload.bin")
	if err != nil {
		t.Fatalf("ExtractToMemory: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("extracted payload = %q, want %q", got, payload)
	}
}

func TestDeleteIsCompactedOnSave(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "test.star")

	a := New(DefaultOptions(), nil)
	if err := a.AddMemory("keep.txt", []byte("keep"), 0, 1700000000); err != nil {
		t.Fatalf("AddMemory: %v", err)
	}
	if err := a.AddMemory("drop.txt", []byte("drop"), 0, 1700000000); err != nil {
		t.Fatalf("AddMemory: %v", err)
	}
	if err := a.Delete("drop.txt"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := a.Save(archivePath); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(archivePath, DefaultOptions(), nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	list := loaded.List()
	if len(list) != 1 || list[0].Name != "keep.txt" {
		t.Fatalf("List after delete+save = %+v, want only keep.txt", list)
	}
}

func TestExtractChecksumMismatchIsDetected(t *testing.T) {
	a := New(DefaultOptions(), nil)
	if err := a.AddMemory("m.bin", []byte("original"), 0, 1700000000); err != nil {
		t.Fatalf("AddMemory: %v", err)
	}
	i := a.byName["m.bin"]
	a.members[i].Header.Checksum ^= 0xFFFFFFFF // corrupt on purpose

	if _, err := a.ExtractToMemory("m.bin"); err == nil {
		t.Fatal("expected checksum mismatch error")
	}
}

func TestCompressionCodecsRoundTrip(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog, repeated for a more compressible sample. " +
		"the quick brown fox jumps over the lazy dog, repeated for a more compressible sample.")

	for _, alg := range []uint8{CompressNone, CompressLZ4, CompressZlib, CompressLZMA} {
		alg := alg
		t.Run(algName(alg), func(t *testing.T) {
			codec, err := CodecFor(alg)
			if err != nil {
				t.Fatalf("CodecFor: %v", err)
			}
			compressed, err := codec.Compress(data, 0)
			if err != nil {
				t.Fatalf("Compress: %v", err)
			}
			decompressed, err := codec.Decompress(compressed, len(data))
			if err != nil {
				t.Fatalf("Decompress: %v", err)
			}
			if string(decompressed) != string(data) {
				t.Errorf("round trip mismatch for %s", algName(alg))
			}
		})
	}
}

func TestBuildSymbolIndexFindsExportedSymbols(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "lib.star")

	obj := buildSampleObject(t)
	a := New(Options{CreateIndex: true}, nil)
	if err := a.AddMemory("obj.smof", obj, 0, 1700000000); err != nil {
		t.Fatalf("AddMemory: %v", err)
	}
	if err := a.Save(archivePath); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(archivePath, Options{CreateIndex: true}, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	member, _, found := loaded.FindSymbol("exported_fn")
	if !found {
		t.Fatal("expected to find exported_fn in the symbol index")
	}
	if member != "obj.smof" {
		t.Errorf("FindSymbol member = %q, want obj.smof", member)
	}
}

func algName(a uint8) string {
	switch a {
	case CompressNone:
		return "none"
	case CompressLZ4:
		return "lz4"
	case CompressZlib:
		return "zlib"
	case CompressLZMA:
		return "lzma"
	default:
		return "unknown"
	}
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func buildSampleObject(t *testing.T) []byte {
	t.Helper()
	f := &smof.File{
		Sections: []smof.Section{
			{
				Name:    ".text",
				Payload: []byte{0xC3},
				Entry:   smof.SectionEntry{Size: 1, Flags: smof.SectExecutable | smof.SectReadable},
			},
		},
		Symbols: []smof.Symbol{
			{Name: "exported_fn", Entry: smof.SymbolEntry{SectionIndex: 0, Type: smof.SymFunc, Binding: smof.BindExport}},
		},
	}
	var buf bytes.Buffer
	if err := smof.Encode(f, &buf); err != nil {
		t.Fatalf("encoding sample object: %v", err)
	}
	return buf.Bytes()
}
