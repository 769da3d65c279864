package linker

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/stix-toolchain/stld/internal/errcode"
	"github.com/stix-toolchain/stld/reloc"
	"github.com/stix-toolchain/stld/section"
	"github.com/stix-toolchain/stld/smof"
	"github.com/stix-toolchain/stld/symtab"
)

// objectInput is everything the driver keeps about one loaded input
// file: its decoded form plus the global section handles its local
// section indices map to, so relocations (which reference local indices)
// can be translated once layout has assigned addresses.
type objectInput struct {
	path           string
	file           *smof.File
	sectionHandles []section.Handle // indexed by this file's local section_index
	localRelocs    []smof.RelocEntry
}

// Context is a linker context, created with an options bundle, that
// accumulates input files, holds owned symbol/section/relocation
// collections, produces one output, and is destroyed. Two contexts must
// never touch the same output file (spec.md §5); nothing here is safe
// to share across goroutines.
type Context struct {
	opts    Options
	sink    errcode.Sink
	log     *logrus.Logger
	objects []*objectInput
	sections *section.Manager
	symbols  *symtab.Table
	stats    Stats
}

// New creates a linker context bound to opts, reporting through sink
// (which may be nil).
func New(opts Options, sink errcode.Sink) *Context {
	log := logrus.New()
	if !opts.Verbose {
		log.SetLevel(logrus.WarnLevel)
	}
	return &Context{
		opts:     opts,
		sink:     sink,
		log:      log,
		sections: section.New(),
		symbols:  symtab.New(),
	}
}

// AddInputPath queues one input file path to be read during Load.
func (c *Context) AddInputPath(path string) {
	c.objects = append(c.objects, &objectInput{path: path})
}

// LinkTo runs Load, Resolve, Layout, and Relocate, then emits the result
// to outputPath (phase 5). On any failure the output file is removed
// (spec.md §5: "a partially written output file is closed and must be
// deleted... before returning a failing result").
func (c *Context) LinkTo(outputPath string) error {
	if len(c.objects) == 0 {
		return errors.Wrap(&errcode.Context{
			Code:     errcode.InvalidArgument,
			Severity: errcode.Error,
			Message:  "no input files",
		}, "link")
	}

	c.log.Info("phase: load")
	if err := c.phaseLoad(); err != nil {
		return err
	}

	c.log.Info("phase: resolve")
	if err := c.phaseResolve(); err != nil {
		return err
	}

	c.log.Info("phase: layout")
	c.phaseLayout()

	c.log.Info("phase: relocate")
	if err := c.phaseRelocate(); err != nil {
		return err
	}

	c.log.Info("phase: emit")
	if err := c.phaseEmit(outputPath); err != nil {
		_ = os.Remove(outputPath)
		return err
	}

	if c.opts.GenerateMap {
		mapPath := c.opts.MapFile
		if mapPath == "" {
			mapPath = outputPath + ".map"
		}
		if err := c.writeMapFile(mapPath); err != nil {
			_ = os.Remove(outputPath)
			return err
		}
	}

	return nil
}

// Stats returns the statistics gathered by the most recent LinkTo call.
func (c *Context) Stats() Stats {
	return c.stats
}

func (c *Context) phaseLoad() error {
	for objIdx, obj := range c.objects {
		data, err := os.ReadFile(obj.path)
		if err != nil {
			return errors.Wrapf(err, "reading %s", obj.path)
		}

		file, err := smof.Decode(obj.path, data)
		if err != nil {
			return err
		}
		obj.file = file

		obj.sectionHandles = make([]section.Handle, len(file.Sections))
		for i, s := range file.Sections {
			h, err := c.sections.Create(section.Section{
				Name:      s.Name,
				Bytes:     append([]byte(nil), s.Payload...),
				Size:      s.Entry.Size,
				Flags:     s.Entry.Flags,
				Alignment: s.Entry.AlignmentBytes(),
				ObjIndex:  objIdx,
			})
			if err != nil {
				return errors.Wrapf(err, "%s: section %q", obj.path, s.Name)
			}
			obj.sectionHandles[i] = h
		}

		for i, sym := range file.Symbols {
			c.symbols.Insert(symtab.Entry{
				Name:       sym.Name,
				Binding:    sym.Entry.Binding,
				Type:       sym.Entry.Type,
				Value:      sym.Entry.Value,
				Size:       sym.Entry.Size,
				SectionIdx: sym.Entry.SectionIndex,
				ObjIndex:   objIdx,
				LocalIndex: i,
			})
		}

		obj.localRelocs = append([]smof.RelocEntry(nil), file.Relocs...)

		c.stats.SectionCount += len(file.Sections)
		c.stats.SymbolCount += len(file.Symbols)
		c.stats.RelocCount += len(file.Relocs)

		if c.opts.Verbose {
			c.log.WithFields(logrus.Fields{
				"path":      obj.path,
				"sections":  len(file.Sections),
				"symbols":   len(file.Symbols),
				"relocs":    len(file.Relocs),
			}).Info("loaded input")
		}
	}

	for _, name := range c.sections.NamesWithMultiple() {
		if _, err := c.sections.MergeByName(name); err != nil {
			return err
		}
	}

	c.stats.InputCount = len(c.objects)
	return nil
}

func (c *Context) phaseResolve() error {
	unresolved, err := c.symbols.ResolveAll()
	if err != nil {
		errcode.Report(c.sink, errcode.DuplicateSymbol, errcode.Error, "phaseResolve", err.Error())
	}
	if len(unresolved) > 0 {
		combined := symtab.AsError(unresolved)
		errcode.Report(c.sink, errcode.SymbolNotFound, errcode.Error, "phaseResolve", combined.Error())
		if err != nil {
			return fmt.Errorf("%s; %s", err, combined)
		}
		return combined
	}
	return err
}

func (c *Context) phaseLayout() {
	base := c.opts.BaseAddress
	if c.opts.PageSize > 1 {
		if order := c.sections.LayoutOrder(); len(order) > 0 {
			if s := c.sections.Get(order[0]); s.Alignment < c.opts.PageSize {
				s.Alignment = c.opts.PageSize
			}
		}
	}

	if c.opts.PositionIndependent {
		for _, h := range c.sections.All() {
			c.sections.Get(h).Flags |= smof.SectPositionIndep
		}
	}

	c.sections.CalculateLayout(base)

	c.symbols.MutateAll(func(_ int, e *symtab.Entry) {
		if e.IsUndefined() {
			return
		}
		handle := c.sectionHandleFor(e.ObjIndex, e.SectionIdx)
		if handle < 0 {
			return
		}
		secBase := c.sections.Get(section.Handle(handle)).VirtualAddr
		e.Value = secBase + e.Value
	})
}

// sectionHandleFor maps a (objIndex, localSectionIndex) pair to the
// current (possibly merged) global section.Handle.
func (c *Context) sectionHandleFor(objIndex int, localSectionIndex uint16) int {
	if objIndex < 0 || objIndex >= len(c.objects) {
		return -1
	}
	obj := c.objects[objIndex]
	if int(localSectionIndex) >= len(obj.sectionHandles) {
		return -1
	}
	return int(c.sections.ResolveLive(obj.sectionHandles[localSectionIndex]))
}

func (c *Context) phaseRelocate() error {
	refs := make(map[string]uint32)
	resolver := &linkResolver{values: refs}
	writer := &sectionWriter{ctx: c}
	engine := reloc.New(resolver, writer)

	type relKey struct {
		objIdx int
		local  int
	}

	for objIdx, obj := range c.objects {
		for _, r := range obj.localRelocs {
			if int(r.SymbolIndex) >= len(obj.file.Symbols) {
				return fmt.Errorf("%s: relocation symbol_index %d out of range", obj.path, r.SymbolIndex)
			}
			localSym := obj.file.Symbols[r.SymbolIndex]

			var value uint32
			var ok bool
			display := localSym.Name

			if localSym.Entry.SectionIndex != smof.UndefinedSection {
				handle := c.sectionHandleFor(objIdx, localSym.Entry.SectionIndex)
				if handle < 0 {
					return fmt.Errorf("%s: symbol %q section out of range", obj.path, localSym.Name)
				}
				value = c.sections.Get(section.Handle(handle)).VirtualAddr + localSym.Entry.Value
				ok = true
			} else if h, found := c.symbols.FindByName(localSym.Name); found {
				value = c.symbols.Get(h).Value
				ok = true
			}

			key := relKey{objIdx, int(r.SymbolIndex)}
			refKey := fmt.Sprintf("%d:%d", key.objIdx, key.local)
			if ok {
				refs[refKey] = value
			}

			secHandle := c.sectionHandleFor(objIdx, uint16(r.SectionIndex))
			if secHandle < 0 {
				return fmt.Errorf("%s: relocation section_index %d out of range", obj.path, r.SectionIndex)
			}

			entry := &reloc.Entry{
				SectionHandle: secHandle,
				Offset:        r.Offset,
				Type:          r.Type,
				RefKey:        refKey,
				DisplayName:   display,
				Addend:        0,
			}
			engine.Add(entry)
		}
	}

	resolved, _, err := engine.ProcessAll()
	c.stats.ResolvedRelocs = resolved
	return err
}

// linkResolver adapts a precomputed objIndex:localSymbolIndex -> value
// map to reloc.Resolver. Keying by the physical reference (not the
// symbol's name) keeps same-named LOCAL symbols in different objects
// from colliding, per spec.md §4.2 rule 5.
type linkResolver struct {
	values map[string]uint32
}

func (r *linkResolver) ResolvedValue(refKey string) (uint32, bool) {
	v, ok := r.values[refKey]
	return v, ok
}

// sectionWriter adapts the section manager to reloc.SectionWriter.
type sectionWriter struct {
	ctx *Context
}

func (w *sectionWriter) SectionBase(handle int) uint32 {
	return w.ctx.sections.Get(section.Handle(handle)).VirtualAddr
}

func (w *sectionWriter) SectionBytes(handle int) []byte {
	return w.ctx.sections.Get(section.Handle(handle)).Bytes
}
