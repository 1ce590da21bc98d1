package vmm

import "pagemap/kernel/mm"

// Mapping describes a page that is mapped by a Mapper.
type Mapping struct {
	// The first mapped page.
	Page mm.Page

	// The frame that Page is mapped to.
	Frame mm.Frame

	// The size of the mapping: 4K for P1 entries, 2M and 1G for huge
	// P2 and P3 entries.
	Size mm.Size

	// Flags stores the entry flags.
	Flags PageTableEntryFlag

	// Level is the level of the table that holds the mapping entry.
	Level Level
}

// MappingVisitor is invoked by Visit for each mapping. Returning false stops
// the traversal.
type MappingVisitor func(Mapping) bool

// Visit invokes fn for each mapping in ascending virtual address order. P4
// entries that point back to the P4 table are skipped.
//
// fn runs while the mapper lock is held and must not call other Mapper methods.
func (m *Mapper) Visit(fn MappingVisitor) {
	m.mutex.Acquire()
	defer m.mutex.Release()

	for p4Index := uint(0); p4Index < EntryCount; p4Index++ {
		if frame, ok := m.p4.Entry(p4Index).Frame(); ok && frame == m.root {
			continue
		}

		p3, ok := m.p4.NextTable(p4Index)
		if !ok {
			continue
		}

		if !visitP3(p3, []uint{p4Index}, fn) {
			return
		}
	}
}

func visitP3(p3 P3Table, indices []uint, fn MappingVisitor) bool {
	for index := uint(0); index < EntryCount; index++ {
		entry := p3.Entry(index)
		if entry.HasFlags(FlagPresent | FlagHugePage) {
			if !visitEntry(*entry, append(indices, index), Level3, fn) {
				return false
			}
			continue
		}

		if p2, ok := p3.NextTable(index); ok && !visitP2(p2, append(indices, index), fn) {
			return false
		}
	}

	return true
}

func visitP2(p2 P2Table, indices []uint, fn MappingVisitor) bool {
	for index := uint(0); index < EntryCount; index++ {
		entry := p2.Entry(index)
		if entry.HasFlags(FlagPresent | FlagHugePage) {
			if !visitEntry(*entry, append(indices, index), Level2, fn) {
				return false
			}
			continue
		}

		p1, ok := p2.NextTable(index)
		if !ok {
			continue
		}

		for p1Index := uint(0); p1Index < EntryCount; p1Index++ {
			if !visitEntry(*p1.Entry(p1Index), append(indices, index, p1Index), Level1, fn) {
				return false
			}
		}
	}

	return true
}

// visitEntry reports entry to fn if it is present. indices holds the table
// indices, starting from P4, that select the entry.
func visitEntry(entry Entry, indices []uint, level Level, fn MappingVisitor) bool {
	frame, ok := entry.Frame()
	if !ok {
		return true
	}

	var addr uintptr
	for i, index := range indices {
		addr |= uintptr(index) << pageLevelShifts[i]
	}

	return fn(Mapping{
		Page:  mm.PageFromAddress(canonicalAddress(addr)),
		Frame: frame,
		Size:  mm.Size(1) << pageLevelShifts[len(indices)-1],
		Flags: entry.Flags(),
		Level: level,
	})
}
