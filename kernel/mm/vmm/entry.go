package vmm

import (
	"strings"

	"pagemap/kernel/mm"
)

// PageTableEntryFlag describes a flag that can be applied to a page table entry.
type PageTableEntryFlag uintptr

var flagNames = []struct {
	flag PageTableEntryFlag
	name string
}{
	{FlagPresent, "P"},
	{FlagRW, "RW"},
	{FlagUserAccessible, "US"},
	{FlagWriteThroughCaching, "PWT"},
	{FlagDoNotCache, "PCD"},
	{FlagAccessed, "A"},
	{FlagDirty, "D"},
	{FlagHugePage, "PS"},
	{FlagGlobal, "G"},
	{FlagCopyOnWrite, "COW"},
	{FlagNoExecute, "NX"},
}

// String returns the short names of the set flags joined by "|" or "-" if no
// known flag is set.
func (f PageTableEntryFlag) String() string {
	var names []string
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			names = append(names, fn.name)
		}
	}

	if len(names) == 0 {
		return "-"
	}

	return strings.Join(names, "|")
}

// Entry describes a single page table slot. The physical frame it references
// is stored in bits 12-51; the remaining bits hold PageTableEntryFlag values.
// Depending on the table level and FlagHugePage the frame is either the next
// page table or the mapped page.
type Entry uintptr

// IsUnused returns true if the entry is zero.
func (e Entry) IsUnused() bool {
	return e == 0
}

// HasFlags returns true if this entry has all the input flags set.
func (e Entry) HasFlags(flags PageTableEntryFlag) bool {
	return (uintptr(e) & uintptr(flags)) == uintptr(flags)
}

// HasAnyFlag returns true if this entry has at least one of the input flags set.
func (e Entry) HasAnyFlag(flags PageTableEntryFlag) bool {
	return (uintptr(e) & uintptr(flags)) != 0
}

// SetFlags sets the input list of flags to the page table entry.
func (e *Entry) SetFlags(flags PageTableEntryFlag) {
	*e = (Entry)(uintptr(*e) | uintptr(flags))
}

// ClearFlags unsets the input list of flags from the page table entry.
func (e *Entry) ClearFlags(flags PageTableEntryFlag) {
	*e = (Entry)(uintptr(*e) &^ uintptr(flags))
}

// Flags returns the flag bits of this entry.
func (e Entry) Flags() PageTableEntryFlag {
	return PageTableEntryFlag(uintptr(e) &^ ptePhysPageMask)
}

// Frame returns the physical page frame that this entry points to. The
// returned bool is false if the entry is not present.
func (e Entry) Frame() (mm.Frame, bool) {
	if !e.HasFlags(FlagPresent) {
		return mm.InvalidFrame, false
	}

	return mm.Frame((uintptr(e) & ptePhysPageMask) >> mm.PageShift), true
}

// SetFrame points the entry to frame and leaves its flags untouched.
func (e *Entry) SetFrame(frame mm.Frame) {
	*e = (Entry)((uintptr(*e) &^ ptePhysPageMask) | (frame.Address() & ptePhysPageMask))
}

// Set overwrites the entry so that it references frame with the supplied
// flags. FlagPresent is always added.
func (e *Entry) Set(frame mm.Frame, flags PageTableEntryFlag) {
	*e = Entry(frame.Address()&ptePhysPageMask) | Entry(uintptr(flags|FlagPresent)&^ptePhysPageMask)
}

// SetUnused clears the entry.
func (e *Entry) SetUnused() {
	*e = 0
}
