package vmm

import "pagemap/kernel/mm"

// TableResolver converts page table frames into virtual addresses through
// which the mapper can access them.
type TableResolver interface {
	// RootTableAddress returns the virtual address of the P4 table stored
	// in root.
	RootTableAddress(root mm.Frame) uintptr

	// NextTableAddress returns the virtual address of the table referenced
	// by entry index of the table at tableAddr. next is the physical frame
	// stored in that entry.
	NextTableAddress(tableAddr uintptr, index uint, next mm.Frame) uintptr
}

// RecursiveMapping resolves table addresses for a P4 table whose entry at
// Slot points back to the P4 table itself. Each time the MMU follows the
// recursive entry it strips one paging level, so shifting a table address
// left by 9 bits and appending an entry index yields the address of the table
// that entry references.
type RecursiveMapping struct {
	Slot uint
}

// RootTableAddress implements TableResolver. The returned address selects
// the recursive slot at all four levels.
func (r RecursiveMapping) RootTableAddress(_ mm.Frame) uintptr {
	var addr uintptr
	for _, shift := range pageLevelShifts {
		addr |= uintptr(r.Slot) << shift
	}

	return canonicalAddress(addr)
}

// NextTableAddress implements TableResolver.
func (r RecursiveMapping) NextTableAddress(tableAddr uintptr, index uint, _ mm.Frame) uintptr {
	return canonicalAddress((tableAddr << 9) | (uintptr(index) << mm.PageShift))
}

// DirectMapping resolves table addresses for setups where all of physical
// memory is mapped at a fixed virtual Offset.
type DirectMapping struct {
	Offset uintptr
}

// RootTableAddress implements TableResolver.
func (d DirectMapping) RootTableAddress(root mm.Frame) uintptr {
	return d.Offset + root.Address()
}

// NextTableAddress implements TableResolver.
func (d DirectMapping) NextTableAddress(_ uintptr, _ uint, next mm.Frame) uintptr {
	return d.Offset + next.Address()
}
