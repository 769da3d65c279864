package smof

import "fmt"

// validateHeaderRanges enforces spec.md §3 invariants 3–5 against a
// decoded header: every non-zero table offset lies at or beyond the
// header, the string/section/symbol/relocation tables fit within the
// file and do not overlap each other.
func validateHeaderRanges(h *Header, fileLen int) error {
	type region struct {
		name        string
		start, size int
	}

	symStart := headerSymbolTableOffset(h)
	regions := []region{
		{"string table", int(h.StringTableOffset), int(h.StringTableSize)},
		{"section table", int(h.SectionTableOffset), int(h.SectionCount) * SectionEntrySize},
		{"symbol table", symStart, int(h.SymbolCount) * SymbolEntrySize},
		{"relocation table", int(h.RelocTableOffset), int(h.RelocCount) * RelocEntrySize},
	}

	for _, r := range regions {
		if r.size == 0 {
			continue
		}
		if r.start < HeaderSize {
			return fmt.Errorf("%s offset %d is inside the header (size %d)", r.name, r.start, HeaderSize)
		}
		if r.start+r.size > fileLen {
			return fmt.Errorf("%s [%d, %d) extends past end of file (%d bytes)", r.name, r.start, r.start+r.size, fileLen)
		}
	}

	for i := 0; i < len(regions); i++ {
		for j := i + 1; j < len(regions); j++ {
			a, b := regions[i], regions[j]
			if a.size == 0 || b.size == 0 {
				continue
			}
			if a.start < b.start+b.size && b.start < a.start+a.size {
				return fmt.Errorf("%s overlaps %s", a.name, b.name)
			}
		}
	}

	return nil
}

// Validate reports whether header satisfies the structural invariants a
// freshly decoded header must hold, without access to the full file (used
// by callers that only want a quick sanity check on a header they
// constructed themselves, e.g. before Encode).
func Validate(h *Header) bool {
	if h.Magic != Magic {
		return false
	}
	if h.Version > VersionCurrent {
		return false
	}
	if h.StringTableOffset != 0 && h.StringTableOffset < HeaderSize {
		return false
	}
	if h.SectionTableOffset != 0 && h.SectionTableOffset < HeaderSize {
		return false
	}
	if h.RelocTableOffset != 0 && h.RelocTableOffset < HeaderSize {
		return false
	}
	return true
}

// ValidateSection reports whether a section entry's alignment and
// virtual address satisfy spec.md §3 invariant 6.
func ValidateSection(s *SectionEntry) bool {
	if s.Alignment > 31 {
		return false
	}
	align := s.AlignmentBytes()
	return s.VirtualAddr%align == 0
}
