package physmem

import "unsafe"

// uintptrOf returns the address of the first byte of a host mapping.
func uintptrOf(data []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(data)))
}
