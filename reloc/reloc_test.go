package reloc

import (
	"encoding/binary"
	"testing"

	"github.com/stix-toolchain/stld/smof"
)

type fakeResolver struct{ values map[string]uint32 }

func (r *fakeResolver) ResolvedValue(refKey string) (uint32, bool) {
	v, ok := r.values[refKey]
	return v, ok
}

type fakeWriter struct {
	bytes map[int][]byte
	bases map[int]uint32
}

func (w *fakeWriter) SectionBase(handle int) uint32  { return w.bases[handle] }
func (w *fakeWriter) SectionBytes(handle int) []byte { return w.bytes[handle] }

func TestProcessAllAbs32(t *testing.T) {
	writer := &fakeWriter{
		bytes: map[int][]byte{0: make([]byte, 8)},
		bases: map[int]uint32{0: 0x1000},
	}
	resolver := &fakeResolver{values: map[string]uint32{"sym": 0xAABBCCDD}}

	e := New(resolver, writer)
	e.Add(&Entry{SectionHandle: 0, Offset: 0, Type: smof.RelocAbs32, RefKey: "sym", DisplayName: "sym"})

	resolved, failed, err := e.ProcessAll()
	if err != nil {
		t.Fatalf("ProcessAll: %v", err)
	}
	if resolved != 1 || failed != 0 {
		t.Fatalf("resolved=%d failed=%d, want 1/0", resolved, failed)
	}
	got := binary.LittleEndian.Uint32(writer.bytes[0][0:4])
	if got != 0xAABBCCDD {
		t.Errorf("patched value = 0x%X, want 0xAABBCCDD", got)
	}
}

func TestProcessAllRel32Formula(t *testing.T) {
	writer := &fakeWriter{
		bytes: map[int][]byte{0: make([]byte, 8)},
		bases: map[int]uint32{0: 0x1000},
	}
	// S=0x2000, A=0, P=base+offset=0x1004, patch offset 4.
	resolver := &fakeResolver{values: map[string]uint32{"callee": 0x2000}}

	e := New(resolver, writer)
	e.Add(&Entry{SectionHandle: 0, Offset: 4, Type: smof.RelocRel32, RefKey: "callee", DisplayName: "callee"})

	if _, _, err := e.ProcessAll(); err != nil {
		t.Fatalf("ProcessAll: %v", err)
	}

	want := uint32(0x2000 - (0x1000 + 4) - 4)
	got := binary.LittleEndian.Uint32(writer.bytes[0][4:8])
	if got != want {
		t.Errorf("REL32 patch = 0x%X, want 0x%X", got, want)
	}
}

func TestProcessAllUnresolvedCollectsAllFailures(t *testing.T) {
	writer := &fakeWriter{bytes: map[int][]byte{0: make([]byte, 8)}, bases: map[int]uint32{0: 0}}
	resolver := &fakeResolver{values: map[string]uint32{}}

	e := New(resolver, writer)
	e.Add(&Entry{SectionHandle: 0, Offset: 0, Type: smof.RelocAbs32, RefKey: "a", DisplayName: "a"})
	e.Add(&Entry{SectionHandle: 0, Offset: 4, Type: smof.RelocAbs32, RefKey: "b", DisplayName: "b"})

	_, failed, err := e.ProcessAll()
	if err == nil {
		t.Fatal("expected error for unresolved references")
	}
	if failed != 2 {
		t.Errorf("failed = %d, want 2 (every entry should be attempted)", failed)
	}
}

func TestProcessAllAbs16Overflow(t *testing.T) {
	writer := &fakeWriter{bytes: map[int][]byte{0: make([]byte, 4)}, bases: map[int]uint32{0: 0}}
	resolver := &fakeResolver{values: map[string]uint32{"big": 0x12345678}}

	e := New(resolver, writer)
	e.Add(&Entry{SectionHandle: 0, Offset: 0, Type: smof.RelocAbs16, RefKey: "big", DisplayName: "big"})

	_, failed, err := e.ProcessAll()
	if err == nil || failed != 1 {
		t.Fatalf("expected ABS16 overflow to fail, got err=%v failed=%d", err, failed)
	}
}

func TestProcessAllGOTPLTAlwaysFail(t *testing.T) {
	writer := &fakeWriter{bytes: map[int][]byte{0: make([]byte, 4)}, bases: map[int]uint32{0: 0}}
	resolver := &fakeResolver{values: map[string]uint32{"plt_target": 0x5000, "got_target": 0x6000}}

	e := New(resolver, writer)
	e.Add(&Entry{SectionHandle: 0, Offset: 0, Type: smof.RelocPLT, RefKey: "plt_target", DisplayName: "plt_target"})
	e.Add(&Entry{SectionHandle: 0, Offset: 0, Type: smof.RelocGOT, RefKey: "got_target", DisplayName: "got_target"})

	_, failed, err := e.ProcessAll()
	if err == nil || failed != 2 {
		t.Fatalf("GOT and PLT relocations must fail in a static link, got err=%v failed=%d", err, failed)
	}
}
