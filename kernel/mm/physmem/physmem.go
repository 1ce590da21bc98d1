// Package physmem simulates the machine's physical RAM with an anonymous
// host memory mapping. Physical address 0 corresponds to the first byte of
// the mapping, so every physical frame can be accessed through the virtual
// address Base() + frame.Address().
package physmem

import (
	"pagemap/kernel"
	"pagemap/kernel/mm"

	"golang.org/x/sys/unix"
)

var (
	// mmapFn and munmapFn are used by tests to simulate host failures.
	mmapFn   = unix.Mmap
	munmapFn = unix.Munmap

	errInvalidSize   = &kernel.Error{Module: "physmem", Message: "memory size must be a non-zero multiple of the page size"}
	errFrameOutRange = &kernel.Error{Module: "physmem", Message: "frame is outside of physical memory"}
	errClosed        = &kernel.Error{Module: "physmem", Message: "physical memory has been released"}
)

// Memory is a contiguous block of simulated physical RAM.
type Memory struct {
	data []byte
	base uintptr
}

// New reserves size bytes of zero-filled simulated physical memory.
func New(size mm.Size) (*Memory, *kernel.Error) {
	if size == 0 || size%mm.Size(mm.PageSize) != 0 {
		return nil, errInvalidSize
	}

	data, err := mmapFn(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, kernel.HostError("physmem", err)
	}

	return &Memory{
		data: data,
		base: uintptrOf(data),
	}, nil
}

// Base returns the host virtual address of physical address 0.
func (m *Memory) Base() uintptr {
	return m.base
}

// Size returns the amount of simulated physical memory in bytes.
func (m *Memory) Size() mm.Size {
	return mm.Size(len(m.data))
}

// FrameCount returns the number of physical frames.
func (m *Memory) FrameCount() uint64 {
	return uint64(len(m.data)) >> mm.PageShift
}

// Contains returns true if frame lies within the simulated memory.
func (m *Memory) Contains(frame mm.Frame) bool {
	return frame.Valid() && uint64(frame) < m.FrameCount()
}

// FrameAddress returns the host virtual address through which the contents of
// frame can be accessed.
func (m *Memory) FrameAddress(frame mm.Frame) (uintptr, *kernel.Error) {
	if m.data == nil {
		return 0, errClosed
	}

	if !m.Contains(frame) {
		return 0, errFrameOutRange
	}

	return m.base + frame.Address(), nil
}

// Bytes returns the contents of frame as a byte slice that aliases the
// simulated memory.
func (m *Memory) Bytes(frame mm.Frame) ([]byte, *kernel.Error) {
	if _, err := m.FrameAddress(frame); err != nil {
		return nil, err
	}

	start := frame.Address()
	return m.data[start : start+mm.PageSize : start+mm.PageSize], nil
}

// Close releases the simulated memory. Any addresses previously returned by
// Base or FrameAddress become invalid.
func (m *Memory) Close() *kernel.Error {
	if m.data == nil {
		return errClosed
	}

	err := munmapFn(m.data)
	m.data, m.base = nil, 0
	return kernel.HostError("physmem", err)
}
