// Package linker implements the linker driver (C5): orchestrating the
// SMOF codec, symbol table, section manager, and relocation engine
// through the Load → Resolve → Layout → Relocate → Emit phases, and
// writing the output (a linked SMOF file, a flat binary image, or a
// textual map file).
package linker

// OutputType selects the emitted artifact's shape.
type OutputType int

const (
	Executable OutputType = iota
	SharedLibrary
	StaticLibrary
	Object
	BinaryFlat
)

// Options bundles every recognized driver knob from spec.md §4.5.
type Options struct {
	OutputType          OutputType
	EntryPoint          uint32 // overrides `_start` detection when non-zero
	EntrySymbol         string // resolved against the symbol table after Resolve; wins over EntryPoint
	BaseAddress         uint32
	Optimize            bool // reserved; does not change observable output
	StripDebug          bool // omit FILE/LOCAL symbols from the emitted table
	PositionIndependent bool
	FillGaps            bool
	FillValue           byte
	PageSize            uint32 // must be a power of two; min alignment for first section
	GenerateMap         bool
	MapFile             string // empty => default path derived from output path
	Verbose             bool
	TempDir             string
}

// DefaultOptions returns the zero-value-safe defaults: SMOF executable
// output, base address 0, no map file, fill byte 0.
func DefaultOptions() Options {
	return Options{
		OutputType: Executable,
		PageSize:   1,
	}
}

// Stats reports what a completed link did, for CLI summary printing.
type Stats struct {
	InputCount      int
	SectionCount    int
	SymbolCount     int
	RelocCount      int
	ResolvedRelocs  int
	OutputSize      int
	EntryPoint      uint32
}
