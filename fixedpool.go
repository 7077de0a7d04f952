package mempool

import (
	"unsafe"

	"github.com/rafalrebisz/mempool/internal/layout"
)

// fixedSlot is the intrusive free-list node a free slot reinterprets its
// own first machine word as. Once a slot is allocated this header is
// overwritten by the caller's payload; nothing reads it again until the
// slot comes back to Deallocate.
type fixedSlot struct {
	nextFree *fixedSlot
}

var fixedSlotSize = layout.AlignUp(unsafe.Sizeof(fixedSlot{}))

// FixedPool serves a fixed number of equal-sized slots carved out of a
// caller-owned buffer, backed by a singly linked free list threaded through
// the free slots themselves.
type FixedPool struct {
	header
	blockSize uintptr
	freeHead  *fixedSlot
}

// NewFixedPool lays out numBlocks contiguous slots of blockSize bytes each
// over buffer. blockSize must be at least a pointer's width (a free slot
// needs room for its own free-list link), and buffer must be exactly
// numBlocks*blockSize bytes.
//
// The free list is built by threading each slot onto the current head in
// address order, which leaves the list in last-slot-first traversal order.
// That order is never semantically significant to a caller: Allocate pops
// whichever slot is at the head.
func NewFixedPool(buffer []byte, numBlocks int, blockSize int, poolID string) (*FixedPool, error) {
	if buffer == nil || numBlocks <= 0 || blockSize <= 0 {
		return nil, ErrBadConfig
	}
	if uintptr(blockSize) < fixedSlotSize {
		return nil, ErrBadConfig
	}
	if len(buffer) != numBlocks*blockSize {
		return nil, ErrBadConfig
	}

	p := &FixedPool{
		header: header{
			memory:    buffer,
			poolID:    poolID,
			poolType:  "FixedPool",
			numBlocks: numBlocks,
		},
		blockSize: uintptr(blockSize),
	}

	base := layout.BaseAddr(buffer)

	p.freeHead = (*fixedSlot)(layout.AtOffset(base, 0))
	p.freeHead.nextFree = nil

	for i := 1; i < numBlocks; i++ {
		slot := (*fixedSlot)(layout.AtOffset(base, uintptr(i)*p.blockSize))
		slot.nextFree = p.freeHead
		p.freeHead = slot
	}

	return p, nil
}

// BlockSize returns the fixed slot size in bytes.
func (p *FixedPool) BlockSize() int { return int(p.blockSize) }

// Allocate pops the head of the free list and returns its address. It runs
// in O(1) and never splits or merges anything — every slot is the same
// size.
func (p *FixedPool) Allocate(size int) (unsafe.Pointer, error) {
	if uintptr(size) > p.blockSize {
		return nil, ErrSizeTooLarge
	}
	if p.freeHead == nil {
		return nil, ErrNoSpace
	}

	slot := p.freeHead
	p.freeHead = slot.nextFree
	slot.nextFree = nil

	p.numAllocations++
	p.totalAllocated += int(p.blockSize)

	return unsafe.Pointer(slot), nil
}

// Deallocate pushes the slot at ptr back onto the free list in O(1). Beyond
// the residency check, nothing about ptr's prior allocation state is
// verified — a double free silently corrupts the free list, matching the
// original implementation's contract (the caller must not do that).
func (p *FixedPool) Deallocate(ptr unsafe.Pointer) error {
	if !p.IsWithinPool(ptr) {
		return ErrBadPointer
	}

	slot := (*fixedSlot)(ptr)
	slot.nextFree = p.freeHead
	p.freeHead = slot

	p.numAllocations--
	p.totalAllocated -= int(p.blockSize)

	return nil
}

var _ Pool = (*FixedPool)(nil)
