// Package multiboot holds the boot information handed to the kernel by the
// boot loader. In the simulated machine the boot loader is the hal package,
// which installs the memory map before any allocator is initialized.
package multiboot

import "pagemap/kernel"

// MemoryEntryType defines the type of a MemoryMapEntry.
type MemoryEntryType uint32

const (
	// MemAvailable indicates that the memory region is available for use.
	MemAvailable MemoryEntryType = iota + 1

	// MemReserved indicates that the memory region is not available for use.
	MemReserved

	// MemAcpiReclaimable indicates a memory region that holds ACPI info that
	// can be reused by the OS.
	MemAcpiReclaimable

	// MemNvs indicates memory that must be preserved when hibernating.
	MemNvs

	// Any value >= memUnknown will be mapped to MemReserved.
	memUnknown
)

// String implements fmt.Stringer for MemoryEntryType.
func (t MemoryEntryType) String() string {
	switch t {
	case MemAvailable:
		return "available"
	case MemReserved:
		return "reserved"
	case MemAcpiReclaimable:
		return "ACPI (reclaimable)"
	case MemNvs:
		return "NVS"
	default:
		return "unknown"
	}
}

// MemoryEntryTypeFromString parses the names produced by
// MemoryEntryType.String as well as the short forms "acpi" and "nvs".
func MemoryEntryTypeFromString(name string) (MemoryEntryType, *kernel.Error) {
	switch name {
	case "available":
		return MemAvailable, nil
	case "reserved":
		return MemReserved, nil
	case "acpi", "ACPI (reclaimable)":
		return MemAcpiReclaimable, nil
	case "nvs", "NVS":
		return MemNvs, nil
	default:
		return 0, errUnknownEntryType
	}
}

// MemRegionVisitor defies a visitor function that gets invoked by VisitMemRegions
// for each memory region provided by the boot loader. The visitor must return true
// to continue or false to abort the scan.
type MemRegionVisitor func(*MemoryMapEntry) bool

// MemoryMapEntry describes a memory region entry, namely its physical address,
// its length and its type.
type MemoryMapEntry struct {
	// The physical address for this memory region.
	PhysAddress uint64

	// The length of the memory region.
	Length uint64

	// The type of this entry.
	Type MemoryEntryType
}

var (
	memoryMap []MemoryMapEntry

	errUnknownEntryType = &kernel.Error{Module: "multiboot", Message: "unknown memory region type"}
	errOverlappingEntry = &kernel.Error{Module: "multiboot", Message: "memory map entries overlap or are not sorted by address"}
	errEmptyEntry       = &kernel.Error{Module: "multiboot", Message: "memory map entry has zero length"}
)

// SetMemoryMap installs the memory map that subsequent calls to
// VisitMemRegions will report. Entries must be sorted by address and must not
// overlap. Unknown entry types are reported as MemReserved.
func SetMemoryMap(entries []MemoryMapEntry) *kernel.Error {
	for i := range entries {
		if entries[i].Length == 0 {
			return errEmptyEntry
		}

		if i > 0 && entries[i].PhysAddress < entries[i-1].PhysAddress+entries[i-1].Length {
			return errOverlappingEntry
		}
	}

	memoryMap = make([]MemoryMapEntry, len(entries))
	copy(memoryMap, entries)
	for i := range memoryMap {
		if memoryMap[i].Type == 0 || memoryMap[i].Type >= memUnknown {
			memoryMap[i].Type = MemReserved
		}
	}

	return nil
}

// VisitMemRegions will invoke the supplied visitor for each memory region that
// is defined by the installed memory map.
func VisitMemRegions(visitor MemRegionVisitor) {
	for i := range memoryMap {
		entry := memoryMap[i]
		if !visitor(&entry) {
			return
		}
	}
}
