package linker

import (
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/stix-toolchain/stld/section"
	"github.com/stix-toolchain/stld/smof"
)

// phaseEmit writes the linked result to outputPath (spec.md §4.5 phase 5).
// SMOF output types (Executable/SharedLibrary/StaticLibrary/Object) produce
// a linked object through C1; BinaryFlat writes the raw concatenated
// section payloads at their laid-out addresses, with no SMOF framing at
// all.
func (c *Context) phaseEmit(outputPath string) error {
	entry, err := c.resolveEntryPoint()
	if err != nil {
		return err
	}
	c.stats.EntryPoint = entry

	var data []byte

	if c.opts.OutputType == BinaryFlat {
		return c.emitFlat(outputPath)
	}

	data, err = c.emitSMOF()
	if err != nil {
		return err
	}

	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", outputPath, err)
	}
	c.stats.OutputSize = len(data)
	return nil
}

// resolveEntryPoint implements spec.md §4.5's entry-point selection, plus
// the `-e SYM` CLI override: an explicit EntrySymbol wins over everything
// (it must resolve to a defined symbol or the link fails), then
// options.EntryPoint if non-zero, else the value of a symbol named
// "_start" if one was defined, else 0.
func (c *Context) resolveEntryPoint() (uint32, error) {
	if c.opts.EntrySymbol != "" {
		h, ok := c.symbols.FindByName(c.opts.EntrySymbol)
		if !ok {
			return 0, errors.Errorf("entry symbol %q not found", c.opts.EntrySymbol)
		}
		e := c.symbols.Get(h)
		if e.IsUndefined() {
			return 0, errors.Errorf("entry symbol %q is undefined", c.opts.EntrySymbol)
		}
		return e.Value, nil
	}
	if c.opts.EntryPoint != 0 {
		return c.opts.EntryPoint, nil
	}
	if h, ok := c.symbols.FindByName("_start"); ok {
		e := c.symbols.Get(h)
		if !e.IsUndefined() {
			return e.Value, nil
		}
	}
	return 0, nil
}

func (c *Context) headerFlags() uint16 {
	var flags uint16
	switch c.opts.OutputType {
	case Executable:
		flags |= smof.FlagExecutable
	case SharedLibrary:
		flags |= smof.FlagSharedLib
	case StaticLibrary:
		flags |= smof.FlagStatic
	case Object:
		// no type bit; an unlinked relocatable object
	}
	if c.opts.StripDebug {
		flags |= smof.FlagStripped
	}
	if c.opts.PositionIndependent {
		flags |= smof.FlagPositionIndep
	}
	return flags
}

// emitSMOF assembles the in-memory File from the current section/symbol
// collections and serializes it through C1. Every relocation queued during
// phaseRelocate has already either patched its target section in place or
// failed the link outright, so the emitted object carries no relocation
// table of its own — only Object output is relocatable by definition, and
// an Object build never merges in other inputs' unresolved references
// (phaseResolve fails the link on unresolved symbols for Object output the
// same as for any other output type).
func (c *Context) emitSMOF() ([]byte, error) {
	order := c.sections.LayoutOrder()
	outIndex := make(map[section.Handle]uint16, len(order))

	file := &smof.File{
		Header: smof.Header{
			Flags:      c.headerFlags(),
			EntryPoint: c.stats.EntryPoint,
		},
	}

	for i, h := range order {
		outIndex[h] = uint16(i)
		s := c.sections.Get(h)
		file.Sections = append(file.Sections, smof.Section{
			Name:    s.Name,
			Payload: s.Bytes,
			Entry: smof.SectionEntry{
				VirtualAddr: s.VirtualAddr,
				Size:        s.Size,
				Flags:       s.Flags,
				Alignment:   alignmentExponent(s.Alignment),
			},
		})
	}

	for _, e := range c.symbols.All() {
		if c.opts.StripDebug && (e.Type == smof.SymFile || e.Binding == smof.BindLocal) {
			continue
		}

		secIdx := smof.UndefinedSection
		if !e.IsUndefined() {
			handle := c.sectionHandleFor(e.ObjIndex, e.SectionIdx)
			if handle >= 0 {
				secIdx = outIndex[section.Handle(handle)]
			}
		}

		file.Symbols = append(file.Symbols, smof.Symbol{
			Name: e.Name,
			Entry: smof.SymbolEntry{
				Value:        e.Value,
				Size:         e.Size,
				SectionIndex: secIdx,
				Type:         e.Type,
				Binding:      e.Binding,
			},
		})
	}

	var buf bufferWriter
	if err := smof.Encode(file, &buf); err != nil {
		return nil, err
	}
	return buf.data, nil
}

// emitFlat writes the raw concatenated section payloads directly to
// outputPath, per spec.md §4.5: gaps between sections are filled with
// options.FillValue when options.FillGaps is set, otherwise left as holes
// by writing each payload at its own offset with WriteAt — a filesystem
// that supports sparse files allocates no blocks for them.
func (c *Context) emitFlat(outputPath string) error {
	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", outputPath, err)
	}
	defer f.Close()

	base := c.opts.BaseAddress
	var size int64
	var wrote int64

	for _, h := range c.sections.LayoutOrder() {
		s := c.sections.Get(h)
		if s.IsBSS() {
			continue
		}
		gap := int64(s.VirtualAddr-base) - wrote
		if gap > 0 {
			if c.opts.FillGaps {
				fill := make([]byte, gap)
				for i := range fill {
					fill[i] = c.opts.FillValue
				}
				if _, err := f.WriteAt(fill, wrote); err != nil {
					return err
				}
			}
			wrote += gap
		}
		if _, err := f.WriteAt(s.Bytes, wrote); err != nil {
			return err
		}
		wrote += int64(len(s.Bytes))
		if end := int64(s.VirtualAddr-base) + int64(len(s.Bytes)); end > size {
			size = end
		}
	}

	if !c.opts.FillGaps {
		if err := f.Truncate(size); err != nil {
			return err
		}
	}

	c.stats.OutputSize = int(size)
	return nil
}

func alignmentExponent(bytesAlign uint32) uint8 {
	if bytesAlign == 0 {
		return 0
	}
	var exp uint8
	for bytesAlign > 1 {
		bytesAlign >>= 1
		exp++
	}
	return exp
}

// bufferWriter is a minimal io.Writer accumulating bytes, used instead of
// bytes.Buffer directly so emitSMOF reads as "write into a buffer" without
// importing bytes twice for the same purpose smof.Encode already serves
// internally.
type bufferWriter struct {
	data []byte
}

func (b *bufferWriter) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}
