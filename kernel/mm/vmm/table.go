package vmm

import (
	"fmt"
	"unsafe"

	"pagemap/kernel"
	"pagemap/kernel/kfmt"
	"pagemap/kernel/mm"

	"github.com/sirupsen/logrus"
)

var (
	// ptePtrFn returns a pointer to the page table located at the supplied
	// virtual address. Tests may override it to intercept table accesses.
	ptePtrFn = func(tableAddr uintptr) unsafe.Pointer {
		return unsafe.Pointer(tableAddr)
	}

	// ErrHugePageNotSupported is raised when a walk that needs to descend
	// to the P1 table runs into a huge page entry.
	ErrHugePageNotSupported = &kernel.Error{Module: "vmm", Message: "mapping code does not support huge pages"}

	// ErrInvalidTableEntry is raised when a used entry above the P1 level
	// does not reference a page table.
	ErrInvalidTableEntry = &kernel.Error{Module: "vmm", Message: "page table entry does not reference a page table"}
)

// Level identifies a paging level.
type Level uint8

// The supported paging levels ordered from the leaf to the root.
const (
	Level1 Level = iota + 1
	Level2
	Level3
	Level4
)

// String implements fmt.Stringer.
func (l Level) String() string {
	switch l {
	case Level1:
		return "P1"
	case Level2:
		return "P2"
	case Level3:
		return "P3"
	case Level4:
		return "P4"
	default:
		return "P?"
	}
}

// table provides access to the EntryCount entries of a page table that is
// reachable at virtual address addr.
type table struct {
	addr     uintptr
	resolver TableResolver
}

// Address returns the virtual address of the table.
func (t table) Address() uintptr {
	return t.addr
}

// Entry returns a pointer to the entry at index. Indices outside
// [0, EntryCount) cause a run-time panic.
func (t table) Entry(index uint) *Entry {
	return &(*[EntryCount]Entry)(ptePtrFn(t.addr))[index]
}

// zero marks all table entries as unused.
func (t table) zero() {
	kernel.Memset(uintptr(ptePtrFn(t.addr)), 0, mm.PageSize)
}

// nextTableAddress returns the virtual address of the table referenced by
// the entry at index. It returns false if the entry is not present or maps a
// huge page.
func (t table) nextTableAddress(index uint) (uintptr, bool) {
	entry := t.Entry(index)
	if entry.HasFlags(FlagHugePage) {
		return 0, false
	}

	frame, ok := entry.Frame()
	if !ok {
		return 0, false
	}

	return t.resolver.NextTableAddress(t.addr, index, frame), true
}

func (t table) nextTable(index uint) (table, bool) {
	addr, ok := t.nextTableAddress(index)
	if !ok {
		return table{}, false
	}

	return table{addr: addr, resolver: t.resolver}, true
}

// nextTableCreate returns the table referenced by the entry at index. If the
// entry is unused, a frame for the new table is obtained from alloc, installed
// as present and writable and cleared. level is the level of the next table.
func (t table) nextTableCreate(index uint, level Level, alloc mm.FrameAllocator) (table, *kernel.Error) {
	entry := t.Entry(index)

	switch {
	case entry.IsUnused():
		frame, err := alloc.AllocFrame()
		if err != nil {
			return table{}, err
		}
		if !frame.Valid() {
			return table{}, mm.ErrOutOfMemory
		}

		entry.Set(frame, FlagRW)
		next, _ := t.nextTable(index)
		next.zero()

		kfmt.Logger("vmm").WithFields(logrus.Fields{
			"table": level,
			"frame": fmt.Sprintf("%#x", frame.Address()),
		}).Debug("created page table")

		return next, nil
	case entry.HasFlags(FlagHugePage):
		kfmt.Panic(ErrHugePageNotSupported)
	}

	next, ok := t.nextTable(index)
	if !ok {
		kfmt.Panic(ErrInvalidTableEntry)
	}

	return next, nil
}

// P4Table is the root of the paging hierarchy. Its entries reference P3 tables.
type P4Table struct{ table }

// P3Table entries reference P2 tables or map 1G pages.
type P3Table struct{ table }

// P2Table entries reference P1 tables or map 2M pages.
type P2Table struct{ table }

// P1Table entries map 4K pages.
type P1Table struct{ table }

// Level returns Level4.
func (P4Table) Level() Level { return Level4 }

// Level returns Level3.
func (P3Table) Level() Level { return Level3 }

// Level returns Level2.
func (P2Table) Level() Level { return Level2 }

// Level returns Level1.
func (P1Table) Level() Level { return Level1 }

// NextTable returns the P3 table referenced by the entry at index.
func (t P4Table) NextTable(index uint) (P3Table, bool) {
	next, ok := t.nextTable(index)
	return P3Table{next}, ok
}

// NextTableCreate returns the P3 table referenced by the entry at index,
// allocating it if needed.
func (t P4Table) NextTableCreate(index uint, alloc mm.FrameAllocator) (P3Table, *kernel.Error) {
	next, err := t.nextTableCreate(index, Level3, alloc)
	return P3Table{next}, err
}

// NextTable returns the P2 table referenced by the entry at index.
func (t P3Table) NextTable(index uint) (P2Table, bool) {
	next, ok := t.nextTable(index)
	return P2Table{next}, ok
}

// NextTableCreate returns the P2 table referenced by the entry at index,
// allocating it if needed.
func (t P3Table) NextTableCreate(index uint, alloc mm.FrameAllocator) (P2Table, *kernel.Error) {
	next, err := t.nextTableCreate(index, Level2, alloc)
	return P2Table{next}, err
}

// NextTable returns the P1 table referenced by the entry at index.
func (t P2Table) NextTable(index uint) (P1Table, bool) {
	next, ok := t.nextTable(index)
	return P1Table{next}, ok
}

// NextTableCreate returns the P1 table referenced by the entry at index,
// allocating it if needed.
func (t P2Table) NextTableCreate(index uint, alloc mm.FrameAllocator) (P1Table, *kernel.Error) {
	next, err := t.nextTableCreate(index, Level1, alloc)
	return P1Table{next}, err
}
