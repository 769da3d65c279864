package star

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/stix-toolchain/stld/internal/errcode"
)

// Archive is an open STAR archive: every live member held in memory plus
// the options governing how new members are compressed and indexed. Like
// linker.Context, an Archive is single-threaded cooperative — nothing here
// is safe to share across goroutines, and one Archive must not be used
// against two different paths concurrently.
type Archive struct {
	opts    Options
	log     *logrus.Logger
	sink    errcode.Sink
	members []*Member
	byName  map[string]int
	index   *symbolIndex
}

// New creates an empty archive (STAR_MODE_CREATE) that has not yet been
// written to any file.
func New(opts Options, sink errcode.Sink) *Archive {
	log := logrus.New()
	if !opts.Verbose {
		log.SetLevel(logrus.WarnLevel)
	}
	return &Archive{opts: opts, log: log, sink: sink, byName: make(map[string]int)}
}

// Load reads an existing STAR archive fully into memory: header, member
// table, string table, and every member's (still possibly compressed)
// payload bytes. Payloads are decompressed lazily by Extract/memberBytes,
// mirroring archive_load_members without eagerly paying every member's
// decompression cost up front.
func Load(path string, opts Options, sink errcode.Sink) (*Archive, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}

	h, err := decodeHeader(data)
	if err != nil {
		return nil, err
	}
	if !ValidateHeader(h) {
		return nil, errors.Wrap(&errcode.Context{
			Code:     errcode.CorruptHeader,
			Severity: errcode.Error,
			Message:  fmt.Sprintf("%s: not a STAR archive", path),
		}, "load")
	}

	strEnd := int(h.StringTableOffset) + int(h.StringTableSize)
	if strEnd > len(data) {
		return nil, errors.Wrap(&errcode.Context{
			Code:     errcode.CorruptHeader,
			Severity: errcode.Error,
			Message:  "string table extends past end of file",
		}, "load")
	}
	strtab := data[h.StringTableOffset:strEnd]

	a := New(opts, sink)

	for i := uint32(0); i < h.MemberCount; i++ {
		off := int(h.MemberTableOffset) + int(i)*MemberHeaderSize
		if off+MemberHeaderSize > len(data) {
			return nil, fmt.Errorf("%s: member table truncated at entry %d", path, i)
		}
		mh := decodeMemberHeader(data[off : off+MemberHeaderSize])
		name, err := readString(strtab, mh.NameOffset)
		if err != nil {
			return nil, err
		}

		dataEnd := int(mh.DataOffset) + int(mh.CompressedSize)
		if dataEnd > len(data) {
			return nil, fmt.Errorf("%s: member %q payload extends past end of file", path, name)
		}
		payload := append([]byte(nil), data[mh.DataOffset:dataEnd]...)

		m := &Member{Header: *mh, Name: name, Data: payload}
		a.byName[name] = len(a.members)
		a.members = append(a.members, m)
	}

	if h.Flags&FlagIndexed != 0 && h.IndexSize > 0 {
		idxEnd := int(h.IndexOffset) + int(h.IndexSize)
		if idxEnd > len(data) {
			return nil, fmt.Errorf("%s: symbol index extends past end of file", path)
		}
		idx, err := decodeSymbolIndex(data[h.IndexOffset:idxEnd], strtab)
		if err == nil {
			a.index = idx
		}
	}

	return a, nil
}

// readString reads a NUL-terminated string out of strtab starting at
// offset.
func readString(strtab []byte, offset uint32) (string, error) {
	if int(offset) > len(strtab) {
		return "", fmt.Errorf("string offset %d out of range (table size %d)", offset, len(strtab))
	}
	end := int(offset)
	for end < len(strtab) && strtab[end] != 0 {
		end++
	}
	return string(strtab[offset:end]), nil
}

// liveMembers returns every non-deleted member, in archive order. Member
// indices used by the symbol index and CLI -t output are indices into
// this slice, not into the raw (possibly tombstoned) a.members.
func (a *Archive) liveMembers() []*Member {
	var out []*Member
	for _, m := range a.members {
		if !m.deleted {
			out = append(out, m)
		}
	}
	return out
}

// memberBytes returns m's uncompressed payload, decompressing through its
// recorded codec if necessary.
func (a *Archive) memberBytes(m *Member) ([]byte, error) {
	codec, err := CodecFor(m.Header.Compression)
	if err != nil {
		return nil, err
	}
	if m.Header.Compression == CompressNone {
		return m.Data, nil
	}
	return codec.Decompress(m.Data, int(m.Header.Size))
}

// AddFile reads path from disk and adds it as a member named name (the
// base name of path if name is empty). Adding a name that already exists
// replaces it in place, the same behavior archive_add_member documents for
// STAR_MODE_UPDATE.
func (a *Archive) AddFile(path string, name string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "reading %s", path)
	}
	if name == "" {
		name = filepath.Base(path)
	}
	info, err := os.Stat(path)
	var ts int64
	if err == nil {
		ts = info.ModTime().Unix()
	}
	return a.AddMemory(name, data, 0, ts)
}

// AddMemory adds an in-memory buffer as a member named name, compressing
// it with the archive's configured codec.
func (a *Archive) AddMemory(name string, data []byte, flags uint16, timestamp int64) error {
	if len(name) > MemberNameMax {
		return fmt.Errorf("member name %q exceeds %d bytes", name, MemberNameMax)
	}

	codec, err := CodecFor(a.opts.Compression)
	if err != nil {
		return err
	}
	compressed, err := codec.Compress(data, a.opts.CompressionLevel)
	if err != nil {
		return errors.Wrapf(err, "compressing member %q", name)
	}

	if timestamp == 0 {
		timestamp = time.Now().Unix()
	}

	m := &Member{
		Name: name,
		Data: compressed,
		Header: MemberHeader{
			Size:           uint32(len(data)),
			CompressedSize: uint32(len(compressed)),
			Checksum:       Checksum(data),
			Timestamp:      uint32(timestamp),
			Flags:          flags,
			Compression:    a.opts.Compression,
		},
	}

	if i, exists := a.byName[name]; exists {
		a.members[i] = m
		a.log.WithField("member", name).Info("replaced existing member")
	} else {
		a.byName[name] = len(a.members)
		a.members = append(a.members, m)
	}
	a.index = nil // stale once membership changes
	return nil
}

// Extract decompresses member name's payload and writes it to outputDir
// (or the current directory if empty).
func (a *Archive) Extract(name string, outputDir string) error {
	data, err := a.ExtractToMemory(name)
	if err != nil {
		return err
	}
	dest := name
	if outputDir != "" {
		dest = filepath.Join(outputDir, name)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	mode := os.FileMode(0o644)
	if i, ok := a.byName[name]; ok && a.members[i].isExecutable() {
		mode = 0o755
	}
	return os.WriteFile(dest, data, mode)
}

// ExtractToMemory decompresses and returns member name's payload, verifying
// its checksum (spec.md §4's "the archiver refuses to extract a member
// whose checksum does not match").
func (a *Archive) ExtractToMemory(name string) ([]byte, error) {
	i, ok := a.byName[name]
	if !ok {
		return nil, errors.Wrap(&errcode.Context{
			Code:     errcode.MemberNotFound,
			Severity: errcode.Error,
			Message:  fmt.Sprintf("no member named %q", name),
		}, "extract")
	}
	m := a.members[i]
	if m.deleted {
		return nil, fmt.Errorf("member %q was deleted", name)
	}
	data, err := a.memberBytes(m)
	if err != nil {
		return nil, errors.Wrapf(err, "decompressing member %q", name)
	}
	if Checksum(data) != m.Header.Checksum {
		return nil, errors.Wrap(&errcode.Context{
			Code:     errcode.ArchiveCorrupt,
			Severity: errcode.Error,
			Message:  fmt.Sprintf("member %q: checksum mismatch", name),
		}, "extract")
	}
	return data, nil
}

// List returns metadata for every live member, in archive order (or
// alphabetical, if SortMembers was requested).
func (a *Archive) List() []MemberInfo {
	members := a.liveMembers()
	if a.opts.SortMembers {
		sorted := append([]*Member(nil), members...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
		members = sorted
	}
	out := make([]MemberInfo, len(members))
	for i, m := range members {
		out[i] = m.Info()
	}
	return out
}

// Delete logically removes member name; it is skipped by List, Extract,
// the symbol index, and the next Save/Finalize's compact rewrite, but the
// in-memory Archive keeps the tombstone until then (spec.md §4.6: delete
// is "logical until the next save, which compacts the file").
func (a *Archive) Delete(name string) error {
	i, ok := a.byName[name]
	if !ok {
		return fmt.Errorf("no member named %q", name)
	}
	a.members[i].deleted = true
	delete(a.byName, name)
	a.index = nil
	return nil
}

// Update replaces (or adds, if absent) member name's contents from path —
// STAR_MODE_UPDATE.
func (a *Archive) Update(path string, name string) error {
	return a.AddFile(path, name)
}

// Stats summarizes the archive's current in-memory contents.
func (a *Archive) Stats() Stats {
	var st Stats
	for _, m := range a.liveMembers() {
		st.MemberCount++
		st.TotalSize += int64(m.Header.Size)
		st.CompressedSize += int64(m.Header.CompressedSize)
	}
	if a.index != nil {
		st.SymbolCount = len(a.index.entries)
	}
	return st
}

// Save writes the archive, compacted (deleted members dropped, fresh
// header/member-table/string-table/index), to path. Per spec.md §5, a
// failed Save removes any partially written output rather than leaving a
// corrupt file at path.
func (a *Archive) Save(path string) error {
	if err := a.save(path); err != nil {
		_ = os.Remove(path)
		return err
	}
	return nil
}

func (a *Archive) save(path string) error {
	live := a.liveMembers()
	if len(live) > MaxMembers {
		return fmt.Errorf("archive has %d members, exceeding the %d-member limit", len(live), MaxMembers)
	}

	strtab := []byte{0}
	offsets := map[string]uint32{"": 0}
	intern := func(name string) uint32 {
		if name == "" {
			return 0
		}
		if off, ok := offsets[name]; ok {
			return off
		}
		off := uint32(len(strtab))
		offsets[name] = off
		strtab = append(strtab, []byte(name)...)
		strtab = append(strtab, 0)
		return off
	}

	for _, m := range live {
		intern(m.Name)
	}

	var idx *symbolIndex
	if a.opts.CreateIndex {
		var err error
		idx, err = a.buildSymbolIndex()
		if err != nil {
			return err
		}
		for _, n := range idx.names {
			intern(n)
		}
	}

	memberTableOffset := uint32(HeaderSize)
	memberTableSize := uint32(len(live)) * MemberHeaderSize
	stringTableOffset := memberTableOffset + memberTableSize
	stringTableSize := uint32(len(strtab))

	payloadBase := stringTableOffset + stringTableSize
	cursor := payloadBase
	dataOffsets := make([]uint32, len(live))
	for i, m := range live {
		dataOffsets[i] = cursor
		cursor += uint32(len(m.Data))
	}

	indexOffset := cursor
	var indexBytes []byte
	if idx != nil {
		idx.sortByName()
		indexBytes = encodeSymbolIndex(idx, offsets)
	}
	indexSize := uint32(len(indexBytes))

	var flags uint16 = FlagLittleEndian
	if idx != nil {
		flags |= FlagIndexed
	}
	if a.opts.SortMembers {
		flags |= FlagSorted
	}
	if a.opts.Compression != CompressNone {
		flags |= FlagCompressed
	}

	h := Header{
		Magic:             Magic,
		Version:           VersionCurrent,
		Flags:             flags,
		MemberCount:       uint32(len(live)),
		IndexOffset:       indexOffset,
		IndexSize:         indexSize,
		MemberTableOffset: memberTableOffset,
		StringTableOffset: stringTableOffset,
		StringTableSize:   stringTableSize,
		CreationTime:      uint32(time.Now().Unix()),
	}
	h.Checksum = headerChecksum(&h)

	var buf bytes.Buffer
	buf.Write(encodeHeader(&h))

	for i, m := range live {
		mh := m.Header
		mh.NameOffset = offsets[m.Name]
		mh.DataOffset = dataOffsets[i]
		buf.Write(encodeMemberHeader(&mh))
	}

	buf.Write(strtab)
	for _, m := range live {
		buf.Write(m.Data)
	}
	buf.Write(indexBytes)

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	return nil
}

// Finalize is an alias for Save under the original terminology
// ("finalize the archive").
func (a *Archive) Finalize(path string) error {
	return a.Save(path)
}
