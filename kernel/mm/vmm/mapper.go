// Package vmm implements the x86-64 four level page table mapper.
package vmm

import (
	"fmt"

	"pagemap/kernel"
	"pagemap/kernel/kfmt"
	"pagemap/kernel/mm"
	"pagemap/kernel/sync"

	"github.com/sirupsen/logrus"
)

var (
	// ErrPageAlreadyMapped is raised when mapping a page whose P1 entry
	// is in use.
	ErrPageAlreadyMapped = &kernel.Error{Module: "vmm", Message: "page already mapped"}

	// ErrPageNotMapped is raised when unmapping a page that does not
	// translate to a physical frame.
	ErrPageNotMapped = &kernel.Error{Module: "vmm", Message: "page not mapped"}

	// ErrMisalignedHugePage is raised when a huge page entry references a
	// frame that is not aligned to the size of the huge page.
	ErrMisalignedHugePage = &kernel.Error{Module: "vmm", Message: "huge page frame is not aligned to the huge page size"}

	// ErrMapperExists is returned by NewMapper when another live Mapper
	// already manages the requested P4 table.
	ErrMapperExists = &kernel.Error{Module: "vmm", Message: "page table is already managed by a mapper"}

	registryLock sync.Spinlock
	liveMappers  = make(map[uintptr]*Mapper)
)

// FlushTLBEntryFn invalidates the cached translation for the page that
// contains the supplied virtual address.
type FlushTLBEntryFn func(virtAddr uintptr)

// Mapper manages the page table hierarchy rooted at a P4 table. All Mapper
// methods are serialized by an internal lock.
//
// Fatal conditions (remapping a mapped page, unmapping an unmapped page,
// running into a huge page while unmapping or a misaligned huge page) are
// reported via kfmt.Panic with one of the Err* values of this package.
type Mapper struct {
	mutex sync.Spinlock

	root            mm.Frame
	p4              P4Table
	flushTLBEntryFn FlushTLBEntryFn
	log             *logrus.Entry
}

// NewMapper returns a Mapper for the P4 table stored in root. The resolver
// provides access to the tables of the hierarchy and flushFn is invoked after
// a mapping is removed. A nil flushFn disables TLB invalidation.
//
// Only one Mapper may manage a particular P4 table at any time; Release must
// be called before a new Mapper for the same table can be created. Tables are
// told apart by the address the resolver reaches them through, so two
// resolvers that alias the same physical memory at different addresses are
// not detected.
func NewMapper(root mm.Frame, resolver TableResolver, flushFn FlushTLBEntryFn) (*Mapper, *kernel.Error) {
	if flushFn == nil {
		flushFn = func(uintptr) {}
	}

	p4Addr := resolver.RootTableAddress(root)

	registryLock.Acquire()
	defer registryLock.Release()

	if _, exists := liveMappers[p4Addr]; exists {
		return nil, ErrMapperExists
	}

	m := &Mapper{
		root:            root,
		p4:              P4Table{table{addr: p4Addr, resolver: resolver}},
		flushTLBEntryFn: flushFn,
		log:             kfmt.Logger("vmm").WithField("p4", fmt.Sprintf("%#x", root.Address())),
	}
	liveMappers[p4Addr] = m

	return m, nil
}

// Release detaches the mapper from its P4 table. The page tables themselves
// are left untouched.
func (m *Mapper) Release() {
	registryLock.Acquire()
	if liveMappers[m.p4.addr] == m {
		delete(liveMappers, m.p4.addr)
	}
	registryLock.Release()
}

// Root returns the physical frame that holds the P4 table.
func (m *Mapper) Root() mm.Frame {
	return m.root
}

// P4 returns the root table of the hierarchy.
func (m *Mapper) P4() P4Table {
	return m.p4
}

// PageOffset returns the offset of virtAddr within its page.
func PageOffset(virtAddr uintptr) uintptr {
	return virtAddr & (mm.PageSize - 1)
}

// Translate returns the physical address that corresponds to the supplied
// virtual address. It returns false if the address is not mapped.
func (m *Mapper) Translate(virtAddr uintptr) (uintptr, bool) {
	frame, ok := m.TranslatePage(mm.PageFromAddress(virtAddr))
	if !ok {
		return 0, false
	}

	return frame.Address() + PageOffset(virtAddr), true
}

// TranslatePage returns the physical frame that page is mapped to. It returns
// false if the page is not mapped.
func (m *Mapper) TranslatePage(page mm.Page) (mm.Frame, bool) {
	m.mutex.Acquire()
	defer m.mutex.Release()

	return m.translatePage(page)
}

// TranslatePageFunc works like TranslatePage but also invokes fn with the
// frame before the mapper lock is released. fn must not call back into the
// mapper.
func (m *Mapper) TranslatePageFunc(page mm.Page, fn func(mm.Frame)) (mm.Frame, bool) {
	m.mutex.Acquire()
	defer m.mutex.Release()

	frame, ok := m.translatePage(page)
	if ok {
		fn(frame)
	}

	return frame, ok
}

func (m *Mapper) translatePage(page mm.Page) (mm.Frame, bool) {
	p3, ok := m.p4.NextTable(page.P4Index())
	if !ok {
		return mm.InvalidFrame, false
	}

	if p2, ok := p3.NextTable(page.P3Index()); ok {
		if p1, ok := p2.NextTable(page.P2Index()); ok {
			if frame, ok := p1.Entry(page.P1Index()).Frame(); ok {
				return frame, true
			}
		}
	}

	return translateHugePage(p3, page)
}

// translateHugePage resolves page through a 1G mapping in p3 or a 2M mapping
// in the P2 table below it.
func translateHugePage(p3 P3Table, page mm.Page) (mm.Frame, bool) {
	p3Entry := p3.Entry(page.P3Index())
	if frame, ok := p3Entry.Frame(); ok && p3Entry.HasFlags(FlagHugePage) {
		if frame%(EntryCount*EntryCount) != 0 {
			kfmt.Panic(ErrMisalignedHugePage)
		}

		return frame + mm.Frame(page.P2Index()*EntryCount+page.P1Index()), true
	}

	p2, ok := p3.NextTable(page.P3Index())
	if !ok {
		return mm.InvalidFrame, false
	}

	p2Entry := p2.Entry(page.P2Index())
	if frame, ok := p2Entry.Frame(); ok && p2Entry.HasFlags(FlagHugePage) {
		if frame%EntryCount != 0 {
			kfmt.Panic(ErrMisalignedHugePage)
		}

		return frame + mm.Frame(page.P1Index()), true
	}

	return mm.InvalidFrame, false
}

// MapTo establishes a mapping between page and frame. Missing page tables are
// allocated using alloc; if the allocator runs out of frames the error it
// reported is returned. FlagPresent is implied.
//
// Mapping a page that is already mapped is a fatal error (ErrPageAlreadyMapped).
func (m *Mapper) MapTo(page mm.Page, frame mm.Frame, flags PageTableEntryFlag, alloc mm.FrameAllocator) *kernel.Error {
	m.mutex.Acquire()
	defer m.mutex.Release()

	return m.mapTo(page, frame, flags, alloc)
}

func (m *Mapper) mapTo(page mm.Page, frame mm.Frame, flags PageTableEntryFlag, alloc mm.FrameAllocator) *kernel.Error {
	p3, err := m.p4.NextTableCreate(page.P4Index(), alloc)
	if err != nil {
		return err
	}

	p2, err := p3.NextTableCreate(page.P3Index(), alloc)
	if err != nil {
		return err
	}

	p1, err := p2.NextTableCreate(page.P2Index(), alloc)
	if err != nil {
		return err
	}

	entry := p1.Entry(page.P1Index())
	if !entry.IsUnused() {
		kfmt.Panic(ErrPageAlreadyMapped)
	}

	entry.Set(frame, flags)

	m.log.WithFields(logrus.Fields{
		"page":  fmt.Sprintf("%#x", page.Address()),
		"frame": fmt.Sprintf("%#x", frame.Address()),
		"flags": flags | FlagPresent,
	}).Debug("mapped page")

	return nil
}

// Map maps page to a frame obtained from alloc. The frame is handed back to
// the allocator if the mapping cannot be established.
func (m *Mapper) Map(page mm.Page, flags PageTableEntryFlag, alloc mm.FrameAllocator) *kernel.Error {
	m.mutex.Acquire()
	defer m.mutex.Release()

	frame, err := alloc.AllocFrame()
	switch {
	case err != nil:
		return err
	case !frame.Valid():
		return mm.ErrOutOfMemory
	}

	if err = m.mapTo(page, frame, flags, alloc); err != nil {
		if freeErr := alloc.FreeFrame(frame); freeErr != nil {
			m.log.WithError(freeErr).WithField("frame", fmt.Sprintf("%#x", frame.Address())).Warn("unable to release frame")
		}
		return err
	}

	return nil
}

// IdentityMap maps frame to the page with the same address.
func (m *Mapper) IdentityMap(frame mm.Frame, flags PageTableEntryFlag, alloc mm.FrameAllocator) *kernel.Error {
	return m.MapTo(mm.PageFromAddress(frame.Address()), frame, flags, alloc)
}

// IdentityMapRegion identity-maps size bytes of physical memory starting at
// startFrame. The size is rounded up to a multiple of the page size. It
// returns the first mapped page.
func (m *Mapper) IdentityMapRegion(startFrame mm.Frame, size mm.Size, flags PageTableEntryFlag, alloc mm.FrameAllocator) (mm.Page, *kernel.Error) {
	m.mutex.Acquire()
	defer m.mutex.Release()

	startPage := mm.PageFromAddress(startFrame.Address())
	for pageCount, i := size.Pages(), uint64(0); i < pageCount; i++ {
		frame := startFrame + mm.Frame(i)
		if err := m.mapTo(startPage+mm.Page(i), frame, flags, alloc); err != nil {
			return startPage, err
		}
	}

	return startPage, nil
}

// Unmap removes the mapping for page and invalidates its TLB entry.
//
// Unmapping a page that is not mapped is a fatal error (ErrPageNotMapped) and
// so is unmapping a page that is mapped through a huge page
// (ErrHugePageNotSupported).
func (m *Mapper) Unmap(page mm.Page, alloc mm.FrameAllocator) {
	m.mutex.Acquire()
	defer m.mutex.Release()

	if _, ok := m.translatePage(page); !ok {
		kfmt.Panic(ErrPageNotMapped)
	}

	p1, ok := m.p1TableFor(page)
	if !ok {
		kfmt.Panic(ErrHugePageNotSupported)
	}

	entry := p1.Entry(page.P1Index())
	frame, _ := entry.Frame()
	entry.SetUnused()
	m.flushTLBEntryFn(page.Address())

	// TODO: track the number of used entries per table so that empty P1-P3
	// tables and the vacated frame can be returned to alloc.

	m.log.WithFields(logrus.Fields{
		"page":  fmt.Sprintf("%#x", page.Address()),
		"frame": fmt.Sprintf("%#x", frame.Address()),
	}).Debug("unmapped page")
}

// p1TableFor returns the P1 table that holds the entry for page.
func (m *Mapper) p1TableFor(page mm.Page) (P1Table, bool) {
	p3, ok := m.p4.NextTable(page.P4Index())
	if !ok {
		return P1Table{}, false
	}

	p2, ok := p3.NextTable(page.P3Index())
	if !ok {
		return P1Table{}, false
	}

	return p2.NextTable(page.P2Index())
}
