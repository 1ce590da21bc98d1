package kernel

import "unsafe"

// bytesAt overlays a byte slice on top of the memory region that starts at
// addr. The region must not be managed by the Go allocator (e.g. it is backed
// by simulated physical memory) so the address stays valid while the slice
// is in use.
func bytesAt(addr, size uintptr) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
}

// Memset sets size bytes at the given address to the supplied value. Instead of
// using a for loop, this function uses log2(size) copy calls which should give
// us a speed boost as page addresses are always aligned.
func Memset(addr uintptr, value byte, size uintptr) {
	if size == 0 {
		return
	}

	target := bytesAt(addr, size)

	// Set first element and make log2(size) optimized copies
	target[0] = value
	for index := uintptr(1); index < size; index *= 2 {
		copy(target[index:], target[:index])
	}
}
