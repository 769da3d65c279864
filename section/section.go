package section

import (
	"fmt"
)

// Manager owns every section's bytes, per spec.md §3's lifecycle rule
// that a section's bytes belong to the section manager and are never
// shared across contexts. Sections from different input files with the
// same name are merged (concatenated) on request, never silently.
type Manager struct {
	sections   []Section
	byName     map[string][]Handle // every handle that currently shares a name, for Merge
	dead       map[Handle]bool     // handles invalidated by a prior MergeByName
	replacedBy map[Handle]Handle   // dead handle -> the merged handle that replaced it
}

// New creates an empty section manager.
func New() *Manager {
	return &Manager{
		byName:     make(map[string][]Handle),
		dead:       make(map[Handle]bool),
		replacedBy: make(map[Handle]Handle),
	}
}

// ResolveLive follows replacedBy until it reaches a handle MergeByName
// has not invalidated. Callers that recorded a handle before a merge
// (the linker driver's per-input section index map) use this to find
// where that section's bytes live now.
func (m *Manager) ResolveLive(h Handle) Handle {
	for m.dead[h] {
		h = m.replacedBy[h]
	}
	return h
}

// Create adds a new section and returns its handle. alignment must be a
// power of two; 0 is rejected (spec.md §4.3: "Setting a non-power-of-two
// or zero alignment is rejected").
func (m *Manager) Create(s Section) (Handle, error) {
	if s.Alignment == 0 || s.Alignment&(s.Alignment-1) != 0 {
		return 0, fmt.Errorf("section %q: alignment %d is not a power of two", s.Name, s.Alignment)
	}
	if s.Size == 0 {
		s.Size = uint32(len(s.Bytes))
	}
	h := Handle(len(m.sections))
	m.sections = append(m.sections, s)
	m.byName[s.Name] = append(m.byName[s.Name], h)
	return h, nil
}

// Append adds bytes to the end of an existing section's payload.
func (m *Manager) Append(h Handle, data []byte) {
	m.sections[h].Bytes = append(m.sections[h].Bytes, data...)
	m.sections[h].Size += uint32(len(data))
}

// SetAlignment overrides a section's alignment explicitly.
func (m *Manager) SetAlignment(h Handle, alignment uint32) error {
	if alignment == 0 || alignment&(alignment-1) != 0 {
		return fmt.Errorf("alignment %d is not a power of two", alignment)
	}
	m.sections[h].Alignment = alignment
	return nil
}

// SetAddr assigns an explicit virtual address, bypassing layout for that
// section.
func (m *Manager) SetAddr(h Handle, addr uint32) {
	m.sections[h].VirtualAddr = addr
}

// Get returns the section for h.
func (m *Manager) Get(h Handle) *Section {
	return &m.sections[h]
}

// All returns every live section handle in storage order, excluding any
// handle a prior MergeByName invalidated.
func (m *Manager) All() []Handle {
	var out []Handle
	for i := range m.sections {
		if h := Handle(i); !m.dead[h] {
			out = append(out, h)
		}
	}
	return out
}

// Filter returns every live handle whose section satisfies pred.
func (m *Manager) Filter(pred func(*Section) bool) []Handle {
	var out []Handle
	for i := range m.sections {
		h := Handle(i)
		if m.dead[h] {
			continue
		}
		if pred(&m.sections[i]) {
			out = append(out, h)
		}
	}
	return out
}

// NamesWithMultiple returns every section name currently held by more
// than one handle — candidates for MergeByName.
func (m *Manager) NamesWithMultiple() []string {
	var out []string
	for name, handles := range m.byName {
		if len(handles) > 1 {
			out = append(out, name)
		}
	}
	return out
}

// MergeByName concatenates every section sharing name into one, in the
// order they were created. The merged alignment is max(a, b) across all
// merged sections' alignments, the second's bytes are padded to that
// alignment before being appended (and so on for subsequent merges), and
// the original handles are invalidated — looking them up after Merge is
// a programming error, mirroring "the originals are invalidated" in
// spec.md §4.3.
func (m *Manager) MergeByName(name string) (Handle, error) {
	handles, ok := m.byName[name]
	if !ok || len(handles) == 0 {
		return 0, fmt.Errorf("no section named %q", name)
	}
	if len(handles) == 1 {
		return handles[0], nil
	}

	merged := m.sections[handles[0]]
	merged.Bytes = append([]byte(nil), merged.Bytes...)
	for _, h := range handles[1:] {
		next := m.sections[h]
		if next.Alignment > merged.Alignment {
			merged.Alignment = next.Alignment
		}
		if pad := len(merged.Bytes) % int(merged.Alignment); pad != 0 {
			merged.Bytes = append(merged.Bytes, make([]byte, int(merged.Alignment)-pad)...)
		}
		merged.Bytes = append(merged.Bytes, next.Bytes...)
		merged.Size = uint32(len(merged.Bytes))
		if next.IsBSS() {
			merged.Size += next.Size // BSS contributes size without bytes
		}
	}

	newHandle := Handle(len(m.sections))
	m.sections = append(m.sections, merged)

	for _, h := range handles {
		m.dead[h] = true
		m.replacedBy[h] = newHandle
	}
	m.byName[name] = []Handle{newHandle}

	return newHandle, nil
}
