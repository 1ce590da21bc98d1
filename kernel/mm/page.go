package mm

import (
	"math"

	"pagemap/kernel"
)

// Frame describes a physical memory page index.
type Frame uintptr

const (
	// InvalidFrame is returned by page allocators when
	// they fail to reserve the requested frame.
	InvalidFrame = Frame(math.MaxUint64)
)

// Valid returns true if this is a valid frame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns the physical memory address of the first byte in this Frame.
func (f Frame) Address() uintptr {
	return uintptr(f << PageShift)
}

// FrameFromAddress returns a Frame that corresponds to
// the given physical address. This function can handle
// both page-aligned and not aligned addresses. in the
// latter case, the input address will be rounded down
// to the frame that contains it.
func FrameFromAddress(physAddr uintptr) Frame {
	return Frame((physAddr & ^(uintptr(PageSize - 1))) >> PageShift)
}

var (
	// ErrOutOfMemory is returned by frame allocators when no physical
	// frames are available.
	ErrOutOfMemory = &kernel.Error{Module: "mm", Message: "out of memory"}
)

// FrameAllocator is the capability used by the virtual memory code to obtain
// and release physical frames. Allocators are always passed explicitly to the
// operations that need them and are never retained.
type FrameAllocator interface {
	// AllocFrame reserves a physical frame. Implementations return
	// ErrOutOfMemory (or a more specific error) when no frames are left.
	AllocFrame() (Frame, *kernel.Error)

	// FreeFrame releases a frame previously returned by AllocFrame.
	FreeFrame(Frame) *kernel.Error
}

// FrameAllocatorFn adapts a plain allocation function into a FrameAllocator
// that never releases frames.
type FrameAllocatorFn func() (Frame, *kernel.Error)

// AllocFrame implements FrameAllocator.
func (fn FrameAllocatorFn) AllocFrame() (Frame, *kernel.Error) { return fn() }

// FreeFrame implements FrameAllocator. Frames handed out by a
// FrameAllocatorFn are never reclaimed.
func (fn FrameAllocatorFn) FreeFrame(_ Frame) *kernel.Error { return nil }

// Page describes a virtual memory page index.
type Page uintptr

// Address returns the virtual address of the first byte in this Page.
func (p Page) Address() uintptr {
	return uintptr(p << PageShift)
}

// P4Index returns the index into the top-level (P4) table for this page.
func (p Page) P4Index() uint { return p.tableIndex(3) }

// P3Index returns the index into the P3 table for this page.
func (p Page) P3Index() uint { return p.tableIndex(2) }

// P2Index returns the index into the P2 table for this page.
func (p Page) P2Index() uint { return p.tableIndex(1) }

// P1Index returns the index into the leaf (P1) table for this page.
func (p Page) P1Index() uint { return p.tableIndex(0) }

// tableIndex extracts the 9-bit table index for the page table located
// level levels above the leaf table.
func (p Page) tableIndex(level uintptr) uint {
	return uint((uintptr(p) >> (level * TableIndexBits)) & tableIndexMask)
}

// PageFromAddress returns a Page that corresponds to the given virtual
// address. This function can handle both page-aligned and not aligned virtual
// addresses. in the latter case, the input address will be rounded down to the
// page that contains it.
func PageFromAddress(virtAddr uintptr) Page {
	return Page((virtAddr & ^(uintptr(PageSize - 1))) >> PageShift)
}
