// Package pmm contains code that manages physical memory frame allocations.
package pmm

import (
	"pagemap/kernel"
	"pagemap/kernel/hal/multiboot"
	"pagemap/kernel/kfmt"
	"pagemap/kernel/mm"
	"pagemap/kernel/sync"
)

var (
	// visitMemRegionsFn is used by tests to supply custom memory maps.
	visitMemRegionsFn = multiboot.VisitMemRegions

	errBitmapAllocOutOfMemory  = &kernel.Error{Module: "bitmap_alloc", Message: "out of memory"}
	errBitmapAllocFrameNotUsed = &kernel.Error{Module: "bitmap_alloc", Message: "frame not marked as used"}
	errBitmapAllocFrameInUse   = &kernel.Error{Module: "bitmap_alloc", Message: "frame already marked as used"}
	errBitmapAllocBadFrame     = &kernel.Error{Module: "bitmap_alloc", Message: "frame does not belong to any available memory pool"}
)

// markAs is passed to markFrame to select the new frame state.
type markAs bool

const (
	markReserved markAs = false
	markFree     markAs = true
)

type framePool struct {
	// startFrame is the frame number for the first page in this pool.
	// each free bitmap entry i corresponds to frame (startFrame + i).
	startFrame mm.Frame

	// endFrame tracks the last frame in the pool. The total number of
	// frames is given by: (endFrame - startFrame) + 1
	endFrame mm.Frame

	// freeCount tracks the available pages in this pool. The allocator
	// can use this field to skip fully allocated pools without the need
	// to scan the free bitmap.
	freeCount uint32

	// freeBitmap tracks used/free pages in the pool. A set bit marks a
	// reserved frame.
	freeBitmap []uint64
}

// BitmapAllocator implements a physical frame allocator that tracks frame
// reservations across the available memory pools using bitmaps. It
// implements mm.FrameAllocator.
type BitmapAllocator struct {
	mutex sync.Spinlock

	// totalPages tracks the total number of pages across all pools.
	totalPages uint32

	// reservedPages tracks the number of reserved pages across all pools.
	reservedPages uint32

	pools []framePool
}

// Init scans the boot memory map and sets up a pool with an empty free bitmap
// for each available memory region. Any previous allocator state is
// discarded.
func (alloc *BitmapAllocator) Init() *kernel.Error {
	alloc.mutex.Acquire()
	defer alloc.mutex.Release()

	alloc.pools = alloc.pools[:0]
	alloc.totalPages, alloc.reservedPages = 0, 0

	pageSizeMinus1 := uint64(mm.PageSize - 1)
	visitMemRegionsFn(func(region *multiboot.MemoryMapEntry) bool {
		if region.Type != multiboot.MemAvailable {
			return true
		}

		// Reported addresses may not be page-aligned; round up to get
		// the start frame and round down to get the end frame
		regionStartFrame := mm.Frame(((region.PhysAddress + pageSizeMinus1) & ^pageSizeMinus1) >> mm.PageShift)
		regionEndFrame := mm.Frame(((region.PhysAddress+region.Length) & ^pageSizeMinus1)>>mm.PageShift) - 1
		if regionEndFrame < regionStartFrame || !regionEndFrame.Valid() {
			return true
		}

		pageCount := uint32(regionEndFrame - regionStartFrame + 1)
		alloc.totalPages += pageCount

		// To represent the free page bitmap we need pageCount bits. Since our
		// slice uses uint64 for storing the bitmap we need to round up the
		// required bits so they are a multiple of 64 bits
		alloc.pools = append(alloc.pools, framePool{
			startFrame: regionStartFrame,
			endFrame:   regionEndFrame,
			freeCount:  pageCount,
			freeBitmap: make([]uint64, (pageCount+63)>>6),
		})
		return true
	})

	alloc.printStats()
	return nil
}

// poolForFrame returns the index of the pool that contains frame or -1 if
// the frame is not part of any pool.
func (alloc *BitmapAllocator) poolForFrame(frame mm.Frame) int {
	for poolIndex, pool := range alloc.pools {
		if frame >= pool.startFrame && frame <= pool.endFrame {
			return poolIndex
		}
	}

	return -1
}

// markFrame updates the reservation flag for the bitmap entry that
// corresponds to the supplied frame.
func (alloc *BitmapAllocator) markFrame(poolIndex int, frame mm.Frame, flag markAs) {
	// The offset in the block is given by: frame % 64. As the bitmap uses a
	// big-ending representation we need to set the bit at index: 63 - offset
	relFrame := frame - alloc.pools[poolIndex].startFrame
	block := relFrame >> 6
	mask := uint64(1 << (63 - (relFrame - block<<6)))
	switch flag {
	case markFree:
		alloc.pools[poolIndex].freeBitmap[block] &^= mask
		alloc.pools[poolIndex].freeCount++
		alloc.reservedPages--
	case markReserved:
		alloc.pools[poolIndex].freeBitmap[block] |= mask
		alloc.pools[poolIndex].freeCount--
		alloc.reservedPages++
	}
}

// isReserved returns true if frame is marked as reserved in its pool bitmap.
func (alloc *BitmapAllocator) isReserved(poolIndex int, frame mm.Frame) bool {
	relFrame := frame - alloc.pools[poolIndex].startFrame
	block := relFrame >> 6
	mask := uint64(1 << (63 - (relFrame - block<<6)))
	return alloc.pools[poolIndex].freeBitmap[block]&mask != 0
}

// AllocFrame reserves and returns the lowest-numbered free physical frame.
func (alloc *BitmapAllocator) AllocFrame() (mm.Frame, *kernel.Error) {
	alloc.mutex.Acquire()
	defer alloc.mutex.Release()

	for poolIndex := 0; poolIndex < len(alloc.pools); poolIndex++ {
		if alloc.pools[poolIndex].freeCount == 0 {
			continue
		}

		fullBlock := uint64(1<<64 - 1)
		totalFrames := alloc.pools[poolIndex].endFrame - alloc.pools[poolIndex].startFrame + 1
		for blockIndex, block := range alloc.pools[poolIndex].freeBitmap {
			if block == fullBlock {
				continue
			}

			// Block has at least one free slot; we need to scan its bits
			for blockOffset, mask := 0, uint64(1<<63); mask > 0; blockOffset, mask = blockOffset+1, mask>>1 {
				if block&mask != 0 {
					continue
				}

				relFrame := mm.Frame(blockIndex<<6 + blockOffset)
				if relFrame >= totalFrames {
					break
				}

				frame := alloc.pools[poolIndex].startFrame + relFrame
				alloc.markFrame(poolIndex, frame, markReserved)
				return frame, nil
			}
		}
	}

	return mm.InvalidFrame, errBitmapAllocOutOfMemory
}

// FreeFrame releases a frame previously allocated via a call to AllocFrame
// or ReserveFrame.
func (alloc *BitmapAllocator) FreeFrame(frame mm.Frame) *kernel.Error {
	alloc.mutex.Acquire()
	defer alloc.mutex.Release()

	poolIndex := alloc.poolForFrame(frame)
	if poolIndex < 0 {
		return errBitmapAllocBadFrame
	}

	if !alloc.isReserved(poolIndex, frame) {
		return errBitmapAllocFrameNotUsed
	}

	alloc.markFrame(poolIndex, frame, markFree)
	return nil
}

// ReserveFrame marks a specific frame as used so that it will never be
// returned by AllocFrame. Frames outside of the available memory pools are
// implicitly reserved and are accepted without changes.
func (alloc *BitmapAllocator) ReserveFrame(frame mm.Frame) *kernel.Error {
	alloc.mutex.Acquire()
	defer alloc.mutex.Release()

	poolIndex := alloc.poolForFrame(frame)
	if poolIndex < 0 {
		return nil
	}

	if alloc.isReserved(poolIndex, frame) {
		return errBitmapAllocFrameInUse
	}

	alloc.markFrame(poolIndex, frame, markReserved)
	return nil
}

// FreeCount returns the number of frames that are still available.
func (alloc *BitmapAllocator) FreeCount() uint32 {
	alloc.mutex.Acquire()
	defer alloc.mutex.Release()

	return alloc.totalPages - alloc.reservedPages
}

// printStats outputs the allocator pool layout.
func (alloc *BitmapAllocator) printStats() {
	kfmt.Logger("bitmap_alloc").
		WithField("pools", len(alloc.pools)).
		WithField("pages", alloc.totalPages).
		WithField("available", mm.Size(alloc.totalPages)<<mm.PageShift).
		Info("frame pools initialized")
}
