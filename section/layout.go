package section

import "sort"

// CalculateLayout implements spec.md §4.3's calculate_layout(base):
// stable-sort every live section by category (text, rodata, data, bss),
// preserving input order within a category, then assign each section's
// virtual_addr by rounding the running cursor up to that section's
// alignment and advancing by its size. BSS sections consume address
// space but no file bytes.
//
// Layout is idempotent: calling it twice with the same base and the same
// live section set reproduces identical addresses, since the sort is
// stable and the cursor arithmetic is a pure function of the sections'
// sizes and alignments.
func (m *Manager) CalculateLayout(base uint32) {
	handles := m.All()
	order := make([]int, len(handles))
	for i := range order {
		order[i] = i
	}

	sort.SliceStable(order, func(a, b int) bool {
		sa := &m.sections[handles[order[a]]]
		sb := &m.sections[handles[order[b]]]
		return sa.CategoryOf() < sb.CategoryOf()
	})

	cursor := base
	for _, idx := range order {
		h := handles[idx]
		s := &m.sections[h]
		if s.Alignment == 0 {
			s.Alignment = 1
		}
		if rem := cursor % s.Alignment; rem != 0 {
			cursor += s.Alignment - rem
		}
		s.VirtualAddr = cursor
		cursor += s.Size
	}
}

// LayoutOrder returns the handles in the category-sorted placement order
// CalculateLayout used, for callers (e.g. the map-file writer, the flat
// binary emitter) that need to walk sections in layout order rather than
// creation order.
func (m *Manager) LayoutOrder() []Handle {
	handles := m.All()
	sort.SliceStable(handles, func(a, b int) bool {
		sa := &m.sections[handles[a]]
		sb := &m.sections[handles[b]]
		return sa.CategoryOf() < sb.CategoryOf()
	})
	return handles
}
