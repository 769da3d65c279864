// Package reloc implements the relocation engine (C4): applying typed
// patches to section bytes using resolved symbol values.
package reloc

// State tracks one relocation entry's progress through ProcessAll.
type State int

const (
	Pending State = iota
	Resolved
	FailedUnresolved
	FailedOverflow
)

// Entry is one relocation to apply: which section to patch, at what
// in-section offset, by what type, referencing which symbol.
//
// RefKey identifies the symbol reference to the Resolver. It is NOT
// necessarily the symbol's display name: spec.md §4.2 rule 5 says LOCAL
// symbols never collide across inputs, so two different objects may
// define a same-named local symbol with different values. The linker
// driver builds RefKey as a key that is unique per physical reference
// (disambiguated by input file when the reference targets a local
// symbol) and keeps DisplayName purely for diagnostics.
type Entry struct {
	SectionHandle int // index into the caller's section list
	Offset        uint32
	Type          uint8
	RefKey        string
	DisplayName   string
	Addend        int64 // 0 if the source relocation record has no addend field
	State         State
}

// Resolver looks up a reference's final (post-layout) address by RefKey.
// The relocation engine depends only on this narrow interface rather than
// a concrete symtab.Table, so it can be unit-tested with a fake table.
type Resolver interface {
	ResolvedValue(refKey string) (value uint32, ok bool)
}

// SectionWriter exposes the one capability the engine needs from the
// section manager: patch bytes at an offset within a given section, and
// learn the section's own base address (for PC-relative math).
type SectionWriter interface {
	SectionBase(handle int) uint32
	SectionBytes(handle int) []byte
}

// Failure describes one relocation the engine could not apply.
type Failure struct {
	Entry  *Entry
	Reason error
}
