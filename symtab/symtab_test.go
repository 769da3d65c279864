package symtab

import (
	"testing"

	"github.com/stix-toolchain/stld/smof"
)

func TestResolveAllGlobalOverridesWeak(t *testing.T) {
	tab := New()
	tab.Insert(Entry{Name: "foo", Binding: smof.BindWeak, SectionIdx: 0, ObjIndex: 0})
	tab.Insert(Entry{Name: "foo", Binding: smof.BindGlobal, SectionIdx: 0, Value: 0x42, ObjIndex: 1})

	unresolved, err := tab.ResolveAll()
	if err != nil {
		t.Fatalf("ResolveAll: %v", err)
	}
	if len(unresolved) != 0 {
		t.Fatalf("unexpected unresolved: %+v", unresolved)
	}

	h, ok := tab.FindByName("foo")
	if !ok {
		t.Fatal("foo not found after resolve")
	}
	if tab.Get(h).Value != 0x42 {
		t.Errorf("global definition did not win: value = %d, want 0x42", tab.Get(h).Value)
	}
}

func TestResolveAllFirstWeakWins(t *testing.T) {
	tab := New()
	tab.Insert(Entry{Name: "bar", Binding: smof.BindWeak, Value: 1, ObjIndex: 0})
	tab.Insert(Entry{Name: "bar", Binding: smof.BindWeak, Value: 2, ObjIndex: 1})

	if _, err := tab.ResolveAll(); err != nil {
		t.Fatalf("ResolveAll: %v", err)
	}
	h, _ := tab.FindByName("bar")
	if tab.Get(h).Value != 1 {
		t.Errorf("expected first weak to win, got value %d", tab.Get(h).Value)
	}
}

func TestResolveAllDuplicateGlobalIsError(t *testing.T) {
	tab := New()
	tab.Insert(Entry{Name: "dup", Binding: smof.BindGlobal, ObjIndex: 0})
	tab.Insert(Entry{Name: "dup", Binding: smof.BindGlobal, ObjIndex: 1})

	_, err := tab.ResolveAll()
	if err == nil {
		t.Fatal("expected DuplicateErrors, got nil")
	}
	dups, ok := err.(DuplicateErrors)
	if !ok {
		t.Fatalf("expected DuplicateErrors, got %T", err)
	}
	if len(dups) != 1 || dups[0].Name != "dup" {
		t.Errorf("expected one duplicate named 'dup', got %+v", dups)
	}
}

func TestResolveAllCollectsEveryDuplicate(t *testing.T) {
	tab := New()
	tab.Insert(Entry{Name: "a", Binding: smof.BindGlobal, ObjIndex: 0})
	tab.Insert(Entry{Name: "a", Binding: smof.BindGlobal, ObjIndex: 1})
	tab.Insert(Entry{Name: "b", Binding: smof.BindGlobal, ObjIndex: 0})
	tab.Insert(Entry{Name: "b", Binding: smof.BindGlobal, ObjIndex: 1})

	_, err := tab.ResolveAll()
	dups, ok := err.(DuplicateErrors)
	if !ok {
		t.Fatalf("expected DuplicateErrors, got %T (%v)", err, err)
	}
	if len(dups) != 2 {
		t.Fatalf("expected both 'a' and 'b' reported as duplicates, got %+v", dups)
	}
}

func TestResolveAllLocalsNeverCollideAcrossInputs(t *testing.T) {
	tab := New()
	tab.Insert(Entry{Name: "helper", Binding: smof.BindLocal, ObjIndex: 0, LocalIndex: 0})
	tab.Insert(Entry{Name: "helper", Binding: smof.BindLocal, ObjIndex: 1, LocalIndex: 0})

	unresolved, err := tab.ResolveAll()
	if err != nil {
		t.Fatalf("ResolveAll: %v", err)
	}
	if len(unresolved) != 0 {
		t.Fatalf("locals should never be treated as references: %+v", unresolved)
	}
	if _, ok := tab.FindByName("helper"); ok {
		t.Error("LOCAL symbols must never enter the cross-file name table")
	}
}

func TestResolveAllUnresolvedReference(t *testing.T) {
	tab := New()
	tab.Insert(Entry{Name: "missing", Binding: smof.BindGlobal, SectionIdx: smof.UndefinedSection, ObjIndex: 0})

	unresolved, err := tab.ResolveAll()
	if err != nil {
		t.Fatalf("ResolveAll: %v", err)
	}
	if len(unresolved) != 1 || unresolved[0].Name != "missing" {
		t.Fatalf("expected one unresolved reference to 'missing', got %+v", unresolved)
	}
}
