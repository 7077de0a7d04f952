// Package mempool implements a pair of intrusive, caller-buffer-backed
// allocators: a FixedPool serving equal-sized slots from a free list, and a
// DynamicPool serving variable-sized allocations via boundary-tag blocks
// with splitting and coalescing. Neither pool touches the host allocator on
// the hot path; both carve allocations directly out of a []byte the caller
// already owns.
//
// Pools are not safe for concurrent use. A caller that shares a pool across
// goroutines must serialize Allocate/Deallocate calls itself.
package mempool

import (
	"errors"
	"unsafe"
)

var (
	// ErrNoSpace is returned when a pool cannot satisfy a request: the
	// dynamic pool's best-fit search failed and the main block (if any)
	// was too small, or the fixed pool's free list is empty.
	ErrNoSpace = errors.New("mempool: no space available")

	// ErrSizeTooLarge is returned by a FixedPool when the requested size
	// exceeds its block size.
	ErrSizeTooLarge = errors.New("mempool: requested size exceeds block size")

	// ErrBadPointer is returned by Deallocate when the given pointer does
	// not lie inside the pool's buffer.
	ErrBadPointer = errors.New("mempool: pointer does not belong to this pool")

	// ErrBadConfig is returned by a constructor given an unusable buffer,
	// size, or block size.
	ErrBadConfig = errors.New("mempool: invalid pool configuration")
)

// Pool is the capability set every pool variant implements: allocate,
// deallocate, and introspection. FixedPool and DynamicPool both satisfy it.
type Pool interface {
	// Allocate returns a payload address owned by the caller until it is
	// passed back to Deallocate. The address is aligned at least to
	// machine-pointer alignment.
	Allocate(size int) (unsafe.Pointer, error)

	// Deallocate returns memory previously obtained from Allocate. Calling
	// it with a pointer this pool did not produce, or with one already
	// deallocated, is a programmer error; Deallocate fails loudly when it
	// can detect the former.
	Deallocate(ptr unsafe.Pointer) error

	PoolSize() int
	PoolID() string
	PoolType() string
	MemoryPointer() unsafe.Pointer
	NumAllocations() int
	TotalAllocated() int
	NumBlocks() int

	// IsWithinPool reports whether ptr lies in [base, base+PoolSize()]. It
	// is the auxiliary interface a debug-mode tracker uses to validate
	// pointers before trusting them; it is not used by the pool itself
	// except inside the Deallocate bounds check.
	IsWithinPool(ptr unsafe.Pointer) bool
}

// header carries the bookkeeping every pool variant shares: the borrowed
// buffer, identity labels, and the live counters. It holds no allocation
// logic of its own — FixedPool and DynamicPool embed it and add whatever
// internal structure their variant needs.
type header struct {
	memory         []byte
	poolID         string
	poolType       string
	numAllocations int
	numBlocks      int
	totalAllocated int
}

func (h *header) PoolSize() int { return len(h.memory) }

func (h *header) PoolID() string { return h.poolID }

func (h *header) PoolType() string { return h.poolType }

func (h *header) MemoryPointer() unsafe.Pointer {
	if len(h.memory) == 0 {
		return nil
	}
	return unsafe.Pointer(&h.memory[0])
}

func (h *header) NumAllocations() int { return h.numAllocations }

func (h *header) TotalAllocated() int { return h.totalAllocated }

func (h *header) NumBlocks() int { return h.numBlocks }

func (h *header) IsWithinPool(ptr unsafe.Pointer) bool {
	if len(h.memory) == 0 {
		return false
	}
	base := uintptr(unsafe.Pointer(&h.memory[0]))
	addr := uintptr(ptr)
	return addr >= base && addr <= base+uintptr(len(h.memory))
}
