// Package hal assembles the simulated machine: physical RAM, the boot memory
// map, the physical frame allocator, the TLB and the kernel page tables.
package hal

import (
	"io"

	"pagemap/kernel"
	"pagemap/kernel/cpu"
	"pagemap/kernel/hal/multiboot"
	"pagemap/kernel/kfmt"
	"pagemap/kernel/mm"
	"pagemap/kernel/mm/physmem"
	"pagemap/kernel/mm/pmm"
	"pagemap/kernel/mm/vmm"

	"github.com/docker/go-units"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
)

const (
	// lowMemorySize is the size of the region at the bottom of physical
	// memory that the default memory map reserves.
	lowMemorySize = mm.Mb
)

var (
	// newMemoryFn is used by tests to override physical memory setup.
	newMemoryFn = physmem.New

	errMemoryMapOutOfRange = &kernel.Error{Module: "hal", Message: "memory map entry exceeds physical memory"}
	errMemoryTooSmall      = &kernel.Error{Module: "hal", Message: "physical memory must be larger than the reserved low memory region"}
)

// Config describes the machine to boot.
type Config struct {
	// MemorySize is the amount of physical RAM.
	MemorySize mm.Size

	// MemoryMap is the boot memory map. If empty, DefaultMemoryMap is used.
	MemoryMap []multiboot.MemoryMapEntry
}

// DefaultMemoryMap returns a memory map that reserves the first megabyte of
// physical memory and marks the rest as available.
func DefaultMemoryMap(memSize mm.Size) []multiboot.MemoryMapEntry {
	return []multiboot.MemoryMapEntry{
		{PhysAddress: 0, Length: uint64(lowMemorySize), Type: multiboot.MemReserved},
		{PhysAddress: uint64(lowMemorySize), Length: uint64(memSize - lowMemorySize), Type: multiboot.MemAvailable},
	}
}

// Machine is a booted simulated machine.
type Machine struct {
	ID        xid.ID
	Memory    *physmem.Memory
	Allocator *pmm.BitmapAllocator
	TLB       *cpu.TLB
	Mapper    *vmm.Mapper

	log *logrus.Entry
}

// Boot brings up a machine with the supplied configuration. It installs the
// memory map, initializes the frame allocator and sets up an empty P4 table.
func Boot(cfg Config) (*Machine, *kernel.Error) {
	memMap := cfg.MemoryMap
	if len(memMap) == 0 {
		if cfg.MemorySize <= lowMemorySize {
			return nil, errMemoryTooSmall
		}
		memMap = DefaultMemoryMap(cfg.MemorySize)
	}

	for _, entry := range memMap {
		if entry.PhysAddress+entry.Length > uint64(cfg.MemorySize) {
			return nil, errMemoryMapOutOfRange
		}
	}

	if err := multiboot.SetMemoryMap(memMap); err != nil {
		return nil, err
	}

	mem, err := newMemoryFn(cfg.MemorySize)
	if err != nil {
		return nil, err
	}

	m := &Machine{
		ID:        xid.New(),
		Memory:    mem,
		Allocator: &pmm.BitmapAllocator{},
		TLB:       cpu.NewTLB(),
	}
	m.log = kfmt.Logger("hal").WithField("machine", m.ID.String())

	if err = m.setupPageTables(); err != nil {
		_ = mem.Close()
		return nil, err
	}

	m.log.WithFields(logrus.Fields{
		"memory": units.BytesSize(float64(mem.Size())),
		"free":   units.BytesSize(float64(mm.Size(m.Allocator.FreeCount()) << mm.PageShift)),
	}).Info("machine booted")

	return m, nil
}

func (m *Machine) setupPageTables() *kernel.Error {
	if err := m.Allocator.Init(); err != nil {
		return err
	}

	root, err := m.Allocator.AllocFrame()
	if err != nil {
		return err
	}

	rootAddr, err := m.Memory.FrameAddress(root)
	if err != nil {
		return err
	}
	kernel.Memset(rootAddr, 0, mm.PageSize)

	m.Mapper, err = vmm.NewMapper(root, vmm.DirectMapping{Offset: m.Memory.Base()}, m.TLB.FlushTLBEntry)
	return err
}

// Translate resolves virtAddr the way the MMU does: cached translations are
// served by the TLB and misses walk the page tables and fill the TLB. The
// fill happens under the mapper lock so it cannot race with the flush issued
// by a concurrent unmap.
func (m *Machine) Translate(virtAddr uintptr) (uintptr, bool) {
	page := mm.PageFromAddress(virtAddr)

	frame, ok := m.TLB.Lookup(page)
	if !ok {
		if frame, ok = m.Mapper.TranslatePageFunc(page, func(frame mm.Frame) {
			m.TLB.Insert(page, frame)
		}); !ok {
			return 0, false
		}
	}

	return frame.Address() + vmm.PageOffset(virtAddr), true
}

// Shutdown releases the page tables and the simulated RAM.
func (m *Machine) Shutdown() *kernel.Error {
	m.Mapper.Release()
	m.TLB.FlushAll()

	stats := m.TLB.Stats()
	m.log.WithFields(logrus.Fields{
		"tlb_hits":    stats.Hits,
		"tlb_misses":  stats.Misses,
		"tlb_flushes": stats.Flushes,
	}).Info("machine shut down")

	return m.Memory.Close()
}

// PrintMemoryMap writes the installed memory map to w.
func PrintMemoryMap(w io.Writer) {
	var (
		pw             = &kfmt.PrefixWriter{Sink: w, Prefix: []byte("[hal] ")}
		availableBytes uint64
	)

	kfmt.Fprintf(pw, "system memory map:\n")
	multiboot.VisitMemRegions(func(region *multiboot.MemoryMapEntry) bool {
		kfmt.Fprintf(pw, "\t[0x%10x - 0x%10x], size: %10s, type: %s\n",
			region.PhysAddress,
			region.PhysAddress+region.Length,
			units.BytesSize(float64(region.Length)),
			region.Type,
		)

		if region.Type == multiboot.MemAvailable {
			availableBytes += region.Length
		}
		return true
	})
	kfmt.Fprintf(pw, "available memory: %s\n", units.BytesSize(float64(availableBytes)))
}
