// Package section implements the section manager (C3): section storage,
// alignment, the category-ordered layout algorithm, and same-name merge.
package section

import "github.com/stix-toolchain/stld/smof"

// Handle identifies one section. Merging invalidates the handles of the
// sections it consumed and returns a fresh one for the merged result, per
// spec.md §4.3.
type Handle int

// Category is the fixed placement order calculate_layout sorts by:
// text, then rodata, then data, then bss.
type Category int

const (
	CategoryText Category = iota
	CategoryRodata
	CategoryData
	CategoryBSS
)

// Section is one named, contiguous byte range together with its flags,
// alignment, and (once laid out) virtual address.
type Section struct {
	Name        string
	Bytes       []byte // empty for BSS
	Size        uint32 // byte count consumed by layout; == len(Bytes) except for BSS
	Flags       uint16
	Alignment   uint32 // byte alignment, power of two
	VirtualAddr uint32
	FileOffset  uint32
	ObjIndex    int // which input file contributed this section (pre-merge)
}

func (s *Section) IsText() bool {
	return s.Flags&smof.SectExecutable != 0 && s.Flags&smof.SectReadable != 0
}

func (s *Section) IsRodata() bool {
	return s.Flags&smof.SectReadable != 0 && s.Flags&smof.SectWritable == 0 && s.Flags&smof.SectExecutable == 0
}

func (s *Section) IsData() bool {
	return s.Flags&smof.SectWritable != 0 && s.Flags&smof.SectReadable != 0 && s.Flags&smof.SectZeroFill == 0
}

func (s *Section) IsBSS() bool {
	return s.Flags&smof.SectZeroFill != 0
}

// CategoryOf returns the fixed placement category for s.
func (s *Section) CategoryOf() Category {
	switch {
	case s.IsText():
		return CategoryText
	case s.IsRodata():
		return CategoryRodata
	case s.IsData():
		return CategoryData
	default:
		return CategoryBSS
	}
}
