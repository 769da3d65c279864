package symtab

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/stix-toolchain/stld/internal/errcode"
	"github.com/stix-toolchain/stld/smof"
)

// DuplicateError reports that two object files both define the same
// global symbol (spec.md §4.2 resolution rule 1).
type DuplicateError struct {
	Name string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("symbol %q defined in multiple object files", e.Name)
}

// DuplicateErrors collects every duplicate-global conflict found during a
// single ResolveAll pass, reported together per spec.md §7's rule that
// resolution errors are "collected into a list per link; reported all at
// once."
type DuplicateErrors []DuplicateError

func (e DuplicateErrors) Error() string {
	msg := fmt.Sprintf("%d duplicate symbol(s):", len(e))
	for _, d := range e {
		msg += fmt.Sprintf(" %s", d.Name)
	}
	return msg
}

// Table is the cross-input symbol table, C2. Lookup uses a built-in Go
// map — §4.2 leaves the hashing/bucket strategy to "implementation's
// choice" as long as lookup is O(1) amortized, which a map already
// guarantees without hand-rolling the FNV mix the spec prose sketches.
type Table struct {
	entries []Entry
	byName  map[string]Handle // only GLOBAL/WEAK/EXPORT entries participate
}

// New creates an empty symbol table.
func New() *Table {
	return &Table{byName: make(map[string]Handle)}
}

// Insert adds one symbol definition or reference. LOCAL symbols are
// always accepted (rule 5: they never collide across inputs). Non-local
// symbols are subject to the override rules applied later by ResolveAll;
// Insert itself never rejects a non-local duplicate — that is ResolveAll's
// job, run once after every input is loaded, so ordering across files is
// deterministic regardless of call order within a file.
func (t *Table) Insert(e Entry) Handle {
	h := Handle(len(t.entries))
	t.entries = append(t.entries, e)
	return h
}

// Get returns the entry for h.
func (t *Table) Get(h Handle) *Entry {
	return &t.entries[h]
}

// FindByName returns the resolved global/weak/export handle for name, if
// any. Valid only after ResolveAll has run.
func (t *Table) FindByName(name string) (Handle, bool) {
	h, ok := t.byName[name]
	return h, ok
}

// All iterates every entry in insertion order.
func (t *Table) All() []Entry {
	return t.entries
}

// MutateAll lets the caller update every entry in place by index — used
// by the layout phase to rewrite each defined symbol's Value once its
// section has an assigned virtual address (spec.md §4.5 phase 3). The
// table is single-threaded cooperative per spec.md §5, so an in-place
// callback is safe and avoids copying the whole entry slice out and back.
func (t *Table) MutateAll(fn func(i int, e *Entry)) {
	for i := range t.entries {
		fn(i, &t.entries[i])
	}
}

// ByBinding returns every entry with the given binding, in insertion
// order.
func (t *Table) ByBinding(binding uint8) []Entry {
	var out []Entry
	for _, e := range t.entries {
		if e.Binding == binding {
			out = append(out, e)
		}
	}
	return out
}

// BySection returns every entry defined in the given (objIndex, section)
// pair.
func (t *Table) BySection(objIndex int, sectionIdx uint16) []Entry {
	var out []Entry
	for _, e := range t.entries {
		if e.ObjIndex == objIndex && e.SectionIdx == sectionIdx {
			out = append(out, e)
		}
	}
	return out
}

// ResolveAll applies spec.md §4.2's four resolution rules across every
// entry inserted so far: two GLOBAL definitions of the same name is a
// duplicate, and every duplicate found in the pass is returned together
// as DuplicateErrors; a GLOBAL overrides any prior WEAK; the
// first WEAK seen wins over later ones; LOCAL entries never enter
// byName. It then checks every undefined reference (mirroring the
// teacher's resolveSymbols "Pass B") and collects anything still
// unsatisfied into the returned UnresolvedName list — the relocation
// engine performs the same check again per relocation record as its own
// defense, per spec.md §4.4 step 1.
func (t *Table) ResolveAll() ([]UnresolvedName, error) {
	kind := make(map[string]uint8) // name -> binding of the entry currently in byName
	var duplicates DuplicateErrors

	for i, e := range t.entries {
		if e.Binding == smof.BindLocal {
			continue
		}
		if e.IsUndefined() {
			continue // references are checked in the second pass below
		}

		switch e.Binding {
		case smof.BindGlobal, smof.BindExport:
			if existingKind, ok := kind[e.Name]; ok && (existingKind == smof.BindGlobal || existingKind == smof.BindExport) {
				duplicates = append(duplicates, DuplicateError{Name: e.Name})
				continue
			}
			t.byName[e.Name] = Handle(i)
			kind[e.Name] = e.Binding

		case smof.BindWeak:
			if _, ok := kind[e.Name]; ok {
				continue // rule 3: first weak (or any existing def) wins
			}
			t.byName[e.Name] = Handle(i)
			kind[e.Name] = e.Binding
		}
	}

	var unresolved []UnresolvedName
	for _, e := range t.entries {
		if e.Binding == smof.BindLocal || !e.IsUndefined() {
			continue
		}
		if _, ok := t.byName[e.Name]; !ok {
			unresolved = append(unresolved, UnresolvedName{Name: e.Name, ObjIndex: e.ObjIndex})
		}
	}

	if len(duplicates) > 0 {
		return unresolved, duplicates
	}

	return unresolved, nil
}

// AsError renders a non-empty UnresolvedName list as the "Symbol not
// found" errcode, one combined message per spec.md §7's rule that
// resolution errors are "collected into a list per link; reported all at
// once."
func AsError(unresolved []UnresolvedName) error {
	if len(unresolved) == 0 {
		return nil
	}
	msg := fmt.Sprintf("%d unresolved symbol(s):", len(unresolved))
	for _, u := range unresolved {
		msg += fmt.Sprintf(" %s(obj %d)", u.Name, u.ObjIndex)
	}
	return errors.Wrap(&errcode.Context{
		Code:     errcode.SymbolNotFound,
		Severity: errcode.Error,
		Message:  msg,
	}, "resolve")
}
