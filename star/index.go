package star

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/stix-toolchain/stld/smof"
)

// symbolIndex is the in-memory symbol index: one entry per
// GLOBAL/WEAK/EXPORT definition across every live member, interned into
// the archive's shared string table like a member name. It exists purely
// to answer "which member defines symbol X" without decoding every SMOF
// member in the archive, the whole point of STAR_FLAG_INDEXED.
type symbolIndex struct {
	entries []SymbolIndexEntry
	names   []string // parallel to entries, same index
	byName  map[string]int
}

func newSymbolIndex() *symbolIndex {
	return &symbolIndex{byName: make(map[string]int)}
}

func (idx *symbolIndex) add(name string, memberIndex uint32, value uint32, symType, binding uint8) {
	i := len(idx.entries)
	idx.entries = append(idx.entries, SymbolIndexEntry{
		MemberIndex:   memberIndex,
		SymbolValue:   value,
		SymbolType:    symType,
		SymbolBinding: binding,
	})
	idx.names = append(idx.names, name)
	idx.byName[name] = i
}

// sortByName reorders entries/names by symbol name so the on-disk index
// supports binary search at load time, then rebuilds byName for the new
// positions.
func (idx *symbolIndex) sortByName() {
	order := make([]int, len(idx.entries))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool { return idx.names[order[i]] < idx.names[order[j]] })

	entries := make([]SymbolIndexEntry, len(idx.entries))
	names := make([]string, len(idx.names))
	for newPos, oldPos := range order {
		entries[newPos] = idx.entries[oldPos]
		names[newPos] = idx.names[oldPos]
		idx.byName[names[newPos]] = newPos
	}
	idx.entries = entries
	idx.names = names
}

func (idx *symbolIndex) find(name string) (SymbolIndexEntry, bool) {
	i, ok := idx.byName[name]
	if !ok {
		return SymbolIndexEntry{}, false
	}
	return idx.entries[i], true
}

// buildSymbolIndex decodes every live member as a SMOF object and collects
// its exported/global/weak definitions. A member that fails to decode as
// SMOF (e.g. a plain data file added via AddMemory) is silently skipped —
// the index only ever promises coverage of object members, same as
// archive_build_symbol_index building from whatever members parse.
func (a *Archive) buildSymbolIndex() (*symbolIndex, error) {
	idx := newSymbolIndex()
	memberIdx := uint32(0)
	for _, m := range a.members {
		if m.deleted {
			continue
		}
		data, err := a.memberBytes(m)
		if err == nil {
			if file, derr := smof.Decode(m.Name, data); derr == nil {
				for _, s := range file.Symbols {
					if isIndexable(s) {
						idx.add(s.Name, memberIdx, s.Entry.Value, s.Entry.Type, s.Entry.Binding)
					}
				}
			}
		}
		memberIdx++
	}
	return idx, nil
}

// FindSymbol looks up name in the archive's symbol index, rebuilding it
// first if none has been built yet. Returns the member name defining the
// symbol plus its index-entry fields.
func (a *Archive) FindSymbol(name string) (member string, entry SymbolIndexEntry, found bool) {
	if a.index == nil {
		idx, err := a.buildSymbolIndex()
		if err != nil {
			return "", SymbolIndexEntry{}, false
		}
		a.index = idx
	}
	e, ok := a.index.find(name)
	if !ok {
		return "", SymbolIndexEntry{}, false
	}
	if int(e.MemberIndex) >= len(a.liveMembers()) {
		return "", e, true
	}
	return a.liveMembers()[e.MemberIndex].Name, e, true
}

// encodeSymbolIndex serializes idx as a flat array of 16-byte entries,
// using nameOffsets (the archive's shared string table offsets) for each
// entry's NameOffset field.
func encodeSymbolIndex(idx *symbolIndex, nameOffsets map[string]uint32) []byte {
	buf := make([]byte, len(idx.entries)*SymbolEntrySize)
	for i, e := range idx.entries {
		e.NameOffset = nameOffsets[idx.names[i]]
		off := i * SymbolEntrySize
		binary.LittleEndian.PutUint32(buf[off:off+4], e.NameOffset)
		binary.LittleEndian.PutUint32(buf[off+4:off+8], e.MemberIndex)
		binary.LittleEndian.PutUint32(buf[off+8:off+12], e.SymbolValue)
		buf[off+12] = e.SymbolType
		buf[off+13] = e.SymbolBinding
	}
	return buf
}

// decodeSymbolIndex parses a flat symbol index of count entries out of
// buf, resolving each NameOffset through strtab.
func decodeSymbolIndex(buf []byte, strtab []byte) (*symbolIndex, error) {
	if len(buf)%SymbolEntrySize != 0 {
		return nil, fmt.Errorf("symbol index size %d is not a multiple of %d", len(buf), SymbolEntrySize)
	}
	idx := newSymbolIndex()
	count := len(buf) / SymbolEntrySize
	for i := 0; i < count; i++ {
		off := i * SymbolEntrySize
		e := SymbolIndexEntry{
			NameOffset:    binary.LittleEndian.Uint32(buf[off : off+4]),
			MemberIndex:   binary.LittleEndian.Uint32(buf[off+4 : off+8]),
			SymbolValue:   binary.LittleEndian.Uint32(buf[off+8 : off+12]),
			SymbolType:    buf[off+12],
			SymbolBinding: buf[off+13],
		}
		name, err := readString(strtab, e.NameOffset)
		if err != nil {
			return nil, err
		}
		idx.add(name, e.MemberIndex, e.SymbolValue, e.SymbolType, e.SymbolBinding)
	}
	return idx, nil
}
