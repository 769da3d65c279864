package linker

import (
	"bufio"
	"fmt"
	"os"

	"github.com/stix-toolchain/stld/smof"
)

// writeMapFile renders the textual map file spec.md §6 describes: a
// "# Sections" block in layout order, a "# Symbols" block listing every
// defined symbol in symbol-table insertion order, and a "# Memory" block
// with one "total" line giving the address range from the first laid-out
// section to the end of the last. Columns are single-space separated, ragged — this is a
// human-readable diagnostic artifact, not a format other tools parse, so
// it is never run through C1 or given a fixed column width.
func (c *Context) writeMapFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating map file %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)

	fmt.Fprintln(w, "# Sections")
	order := c.sections.LayoutOrder()
	for _, h := range order {
		s := c.sections.Get(h)
		fmt.Fprintf(w, "%s 0x%08X 0x%X\n", s.Name, s.VirtualAddr, s.Size)
	}

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "# Symbols")
	for _, e := range c.symbols.All() {
		if e.IsUndefined() {
			continue
		}
		fmt.Fprintf(w, "%s 0x%08X %s %s\n", e.Name, e.Value, bindingName(e.Binding), typeName(e.Type))
	}

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "# Memory")
	if len(order) > 0 {
		first := c.sections.Get(order[0])
		last := c.sections.Get(order[len(order)-1])
		end := last.VirtualAddr + last.Size
		fmt.Fprintf(w, "total 0x%08X 0x%X\n", first.VirtualAddr, end-first.VirtualAddr)
	}

	return w.Flush()
}

func bindingName(b uint8) string {
	switch b {
	case smof.BindLocal:
		return "LOCAL"
	case smof.BindGlobal:
		return "GLOBAL"
	case smof.BindWeak:
		return "WEAK"
	case smof.BindExport:
		return "EXPORT"
	default:
		return "UNKNOWN"
	}
}

func typeName(t uint8) string {
	switch t {
	case smof.SymNoType:
		return "NOTYPE"
	case smof.SymObject:
		return "OBJECT"
	case smof.SymFunc:
		return "FUNC"
	case smof.SymSection:
		return "SECTION"
	case smof.SymFile:
		return "FILE"
	case smof.SymSyscall:
		return "SYSCALL"
	default:
		return "UNKNOWN"
	}
}
