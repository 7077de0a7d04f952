// Package layout holds the narrow unsafe.Pointer/uintptr arithmetic shared
// by the fixed and dynamic pools. Keeping it in one place means the rest of
// the module can talk about addresses and offsets without sprinkling casts
// everywhere.
package layout

import "unsafe"

// PointerAlign is the alignment every header placement rounds up to, so
// that payload addresses computed as header+overhead stay pointer-aligned.
const PointerAlign = unsafe.Alignof(uintptr(0))

// AlignUp rounds size up to the next multiple of PointerAlign.
func AlignUp(size uintptr) uintptr {
	rem := size % PointerAlign
	if rem == 0 {
		return size
	}
	return size + (PointerAlign - rem)
}

// BaseAddr returns the address of buf's first byte, or 0 for an empty
// slice. The caller-owned buffer must outlive every address derived from
// it; the pools hold onto the slice header for exactly that reason.
func BaseAddr(buf []byte) uintptr {
	if len(buf) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&buf[0]))
}

// AtOffset returns the address base+offset as an unsafe.Pointer, ready to
// be cast to a header type.
func AtOffset(base uintptr, offset uintptr) unsafe.Pointer {
	return unsafe.Pointer(base + offset)
}
