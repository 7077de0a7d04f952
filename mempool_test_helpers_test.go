package mempool

import "unsafe"

// uintptrOf and ptrFromUintptr let tests stash allocation addresses in an
// ordinary slice between an Allocate and a later Deallocate without the
// compiler complaining about holding unsafe.Pointer values across
// unrelated operations.
func uintptrOf(ptr unsafe.Pointer) uintptr {
	return uintptr(ptr)
}

func ptrFromUintptr(addr uintptr) unsafe.Pointer {
	return unsafe.Pointer(addr)
}

func uintptrOfSlice(buf []byte) uintptr {
	if len(buf) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&buf[0]))
}
