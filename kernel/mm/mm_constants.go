package mm

const (
	// PointerShift is equal to log2(unsafe.Sizeof(uintptr)). The pointer
	// size for this architecture is defined as (1 << PointerShift).
	PointerShift = uintptr(3)

	// PageShift is equal to log2(PageSize). This constant is used when
	// we need to convert a physical address to a page number (shift right by PageShift)
	// and vice-versa.
	PageShift = uintptr(12)

	// PageSize defines the system's page size in bytes.
	PageSize = uintptr(1 << PageShift)

	// TableIndexBits is the number of virtual address bits that select an
	// entry in a page table at any paging level.
	TableIndexBits = uintptr(9)

	// tableIndexMask extracts a single table index from a shifted address.
	tableIndexMask = uintptr(1<<TableIndexBits) - 1
)
