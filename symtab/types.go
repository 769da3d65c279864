// Package symtab implements the cross-input symbol table (C2): insertion,
// lookup, and the binding-aware resolution pass the linker runs once all
// inputs are loaded.
package symtab

import "github.com/stix-toolchain/stld/smof"

// Handle identifies one inserted symbol. Handles are stable for the
// lifetime of the Table; Table owns every Entry and nothing outside the
// package holds a pointer into its storage, per spec.md §9's
// integer-handle-only cross-reference rule.
type Handle int

// Entry is one symbol as tracked by the table: the decoded smof.Symbol
// plus the input file it came from and, once resolved, its section and
// value.
type Entry struct {
	Name       string
	Binding    uint8
	Type       uint8
	Value      uint32
	Size       uint32
	SectionIdx uint16 // smof.UndefinedSection if unresolved
	ObjIndex   int    // which input file defines/references it
	LocalIndex int     // index within that input's own symbol table
}

// IsUndefined reports whether the entry is an unresolved reference.
func (e *Entry) IsUndefined() bool {
	return e.SectionIdx == smof.UndefinedSection
}

// UnresolvedName names a reference that resolve_all could not satisfy.
type UnresolvedName struct {
	Name     string
	ObjIndex int
}
