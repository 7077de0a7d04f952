package mempool

import (
	"fmt"
	"unsafe"

	"github.com/rafalrebisz/mempool/internal/layout"
)

// allocationBlock is the in-band header preceding every payload in a
// DynamicPool's buffer. logicalNext/logicalPrev are free-list links,
// meaningful only while the block sits on the recycled list; physicalNext
// and physicalPrev link blocks by address and always cover the whole
// buffer, whether a block is free or allocated.
type allocationBlock struct {
	logicalNext  *allocationBlock
	logicalPrev  *allocationBlock
	physicalNext *allocationBlock
	physicalPrev *allocationBlock
	allocSize    uintptr
	isAllocated  bool
}

// blockOverhead is the in-band header size every physical block pays,
// rounded up so payload addresses (header+blockOverhead) stay
// pointer-aligned.
var blockOverhead = layout.AlignUp(unsafe.Sizeof(allocationBlock{}))

// minPayload is the smallest remainder, in bytes, a split is allowed to
// leave behind — mirrors the original source's literal threshold of 4
// rather than a derived sizeof(pointer), since that is what the reference
// implementation actually checks.
const minPayload = 4

// DynamicPool serves variable-sized allocations out of a caller-owned
// buffer using intrusive boundary-tag blocks: new allocations split off the
// trailing mainBlock or a recycled block, and deallocation coalesces a
// freed block with whichever physical neighbours are also free.
type DynamicPool struct {
	header
	mainBlock     *allocationBlock
	recycled      recycledList
	totalOverhead int
}

// NewDynamicPool places a single free block spanning the whole buffer
// (minus one header's worth of overhead) and designates it the main block.
// poolSize must exceed blockOverhead+sizeof(int), which leaves the initial
// block more than sizeof(int) bytes of payload. Splitting that block later
// takes a remainder of at least blockOverhead+minPayload, so a buffer only
// slightly over the minimum serves its first allocation whole.
func NewDynamicPool(buffer []byte, poolID string) (*DynamicPool, error) {
	if buffer == nil {
		return nil, ErrBadConfig
	}
	if uintptr(len(buffer)) <= blockOverhead+unsafe.Sizeof(int(0)) {
		return nil, ErrBadConfig
	}

	p := &DynamicPool{
		header: header{
			memory:    buffer,
			poolID:    poolID,
			poolType:  "DynamicPool",
			numBlocks: 1,
		},
	}

	base := layout.BaseAddr(buffer)
	p.mainBlock = createBlock(base, uintptr(len(buffer))-blockOverhead)
	p.totalOverhead = int(blockOverhead)

	return p, nil
}

// Overhead returns the in-band header size in bytes.
func (p *DynamicPool) Overhead() int { return int(blockOverhead) }

// TotalOverhead returns the sum of header overhead across every physical
// block currently partitioning the buffer.
func (p *DynamicPool) TotalOverhead() int { return p.totalOverhead }

func createBlock(atAddress uintptr, size uintptr) *allocationBlock {
	block := (*allocationBlock)(unsafe.Pointer(atAddress))
	block.logicalNext = nil
	block.logicalPrev = nil
	block.physicalNext = nil
	block.physicalPrev = nil
	block.isAllocated = false
	block.allocSize = size
	return block
}

func blockAddr(b *allocationBlock) uintptr {
	return uintptr(unsafe.Pointer(b))
}

func payloadPointer(b *allocationBlock) unsafe.Pointer {
	return unsafe.Pointer(blockAddr(b) + blockOverhead)
}

// Allocate tries the recycled list first (best fit) and falls back to
// carving off the main block. It fails with ErrNoSpace only when neither
// source can satisfy the request.
func (p *DynamicPool) Allocate(size int) (unsafe.Pointer, error) {
	if size <= 0 {
		return nil, ErrBadConfig
	}
	requested := uintptr(size)

	if blockToUse := p.findBlockOfBestSize(requested); blockToUse != nil {
		return p.recycleBlock(blockToUse, requested), nil
	}

	if p.mainBlock == nil {
		return nil, ErrNoSpace
	}

	remaining := int64(p.mainBlock.allocSize) - int64(requested)
	switch {
	case remaining >= int64(blockOverhead)+minPayload:
		// Enough room survives the split to leave a usable new main block.
		address := blockAddr(p.mainBlock) + blockOverhead + requested
		newBlockSize := p.mainBlock.allocSize - blockOverhead - requested

		allocated := p.mainBlock
		allocated.allocSize = requested
		allocated.isAllocated = true

		p.mainBlock = createBlock(address, newBlockSize)
		p.mainBlock.physicalPrev = allocated
		allocated.physicalNext = p.mainBlock

		p.totalOverhead += int(blockOverhead)
		p.numBlocks++
		p.totalAllocated += int(requested)
		p.numAllocations++

		return payloadPointer(allocated), nil

	case int64(p.mainBlock.allocSize) >= int64(requested):
		// Big enough to serve but not to split: take the whole block and
		// retire it — the caller still observes it via the old tail link,
		// which by invariant 3 is nil.
		allocated := p.mainBlock
		allocated.isAllocated = true
		// allocated.physicalNext is left as whatever mainBlock's was, which
		// by invariant 3 is already nil; checkInvariants asserts this in
		// tests rather than guarding it here on the hot path.

		p.totalAllocated += int(requested)
		p.numAllocations++

		p.mainBlock = nil

		return payloadPointer(allocated), nil

	default:
		return nil, ErrNoSpace
	}
}

// findBlockOfBestSize sweeps the recycled list from both ends toward the
// middle, returning the smallest block whose allocSize is at least
// requested, or nil if none fits. It exits the moment either end matches
// exactly. When front and back both fit on the same step and are unequal
// in size, the smaller one wins; a tie is broken in favour of front,
// matching the reference implementation's strict front > back comparison.
func (p *DynamicPool) findBlockOfBestSize(requested uintptr) *allocationBlock {
	front := p.recycled.first()
	back := p.recycled.last()
	var bestSoFar *allocationBlock

	for front != nil {
		if front.allocSize == requested {
			return front
		}
		if back.allocSize == requested {
			return back
		}

		if front == back {
			if front.allocSize >= requested {
				if bestSoFar == nil || bestSoFar.allocSize > front.allocSize {
					bestSoFar = front
				}
			}
			return bestSoFar
		}

		frontFits := front.allocSize >= requested
		backFits := back.allocSize >= requested

		switch {
		case frontFits && backFits:
			candidate := front
			if front.allocSize > back.allocSize {
				candidate = back
			}
			if bestSoFar == nil || bestSoFar.allocSize > candidate.allocSize {
				bestSoFar = candidate
			}
		case frontFits:
			if bestSoFar == nil || bestSoFar.allocSize > front.allocSize {
				bestSoFar = front
			}
		case backFits:
			if bestSoFar == nil || bestSoFar.allocSize > back.allocSize {
				bestSoFar = back
			}
		}

		front = front.logicalNext
		back = back.logicalPrev
	}

	return bestSoFar
}

// recycleBlock removes block from the recycled list and either splits off
// a new free block from its tail (when enough remainder would survive) or
// hands the whole block over as-is.
func (p *DynamicPool) recycleBlock(block *allocationBlock, requested uintptr) unsafe.Pointer {
	p.recycled.remove(block)

	remaining := int64(block.allocSize) - int64(requested)
	if remaining >= int64(blockOverhead)+minPayload {
		address := blockAddr(block) + blockOverhead + requested
		newBlockSize := block.allocSize - requested - blockOverhead

		newBlock := createBlock(address, newBlockSize)
		newBlock.physicalPrev = block
		newBlock.physicalNext = block.physicalNext
		if newBlock.physicalNext != nil {
			newBlock.physicalNext.physicalPrev = newBlock
		}

		p.recycled.insert(newBlock)

		block.physicalNext = newBlock
		block.allocSize = requested
		block.isAllocated = true

		p.totalOverhead += int(blockOverhead)
		p.numBlocks++
		p.totalAllocated += int(requested)
		p.numAllocations++

		return payloadPointer(block)
	}

	block.isAllocated = true
	p.totalAllocated += int(requested)
	p.numAllocations++

	return payloadPointer(block)
}

// Deallocate clears ptr's allocated flag, then coalesces with a free
// physical predecessor and/or successor before returning the (possibly
// merged) block to the main block or the recycled list.
func (p *DynamicPool) Deallocate(ptr unsafe.Pointer) error {
	if !p.IsWithinPool(ptr) {
		return ErrBadPointer
	}

	block := (*allocationBlock)(unsafe.Pointer(uintptr(ptr) - blockOverhead))

	block.isAllocated = false
	sizeReturned := block.allocSize

	if prev := block.physicalPrev; prev != nil && !prev.isAllocated {
		p.recycled.remove(prev)

		prev.allocSize += block.allocSize + blockOverhead
		prev.physicalNext = block.physicalNext
		if prev.physicalNext != nil {
			prev.physicalNext.physicalPrev = prev
		}

		block = prev

		p.totalOverhead -= int(blockOverhead)
		p.numBlocks--
	}

	next := block.physicalNext

	switch {
	case next == nil && p.mainBlock == nil:
		p.mainBlock = block

		p.numAllocations--
		p.totalAllocated -= int(sizeReturned)
		return nil

	case next == p.mainBlock:
		block.allocSize += p.mainBlock.allocSize + blockOverhead
		block.physicalNext = nil
		p.mainBlock = block

		p.totalOverhead -= int(blockOverhead)
		p.numBlocks--

		p.numAllocations--
		p.totalAllocated -= int(sizeReturned)
		return nil

	case next != nil && !next.isAllocated:
		p.recycled.remove(next)

		block.allocSize += next.allocSize + blockOverhead
		block.physicalNext = next.physicalNext
		if block.physicalNext != nil {
			block.physicalNext.physicalPrev = block
		}

		p.recycled.insert(block)

		p.totalOverhead -= int(blockOverhead)
		p.numBlocks--

		p.numAllocations--
		p.totalAllocated -= int(sizeReturned)
		return nil

	default:
		p.recycled.insert(block)

		p.numAllocations--
		p.totalAllocated -= int(sizeReturned)
		return nil
	}
}

var _ Pool = (*DynamicPool)(nil)

// checkInvariants recomputes spec invariants 1, 2, 4, 5 and the recycled
// list membership invariant from the current block graph. It backs the
// property-based tests; nothing on the Allocate/Deallocate path calls it.
func (p *DynamicPool) checkInvariants() error {
	if len(p.memory) == 0 {
		return nil
	}

	base := layout.BaseAddr(p.memory)
	cur := (*allocationBlock)(unsafe.Pointer(base))

	var sum uintptr
	var prev *allocationBlock
	count := 0
	inChain := map[*allocationBlock]bool{}

	for cur != nil {
		sum += blockOverhead + cur.allocSize
		count++
		inChain[cur] = true

		if cur.physicalPrev != prev {
			return fmt.Errorf("block %d: physicalPrev does not match walk order", count)
		}
		if prev != nil && !prev.isAllocated && !cur.isAllocated {
			return fmt.Errorf("block %d: two physically adjacent free blocks", count)
		}

		prev = cur
		cur = cur.physicalNext
	}

	if sum != uintptr(len(p.memory)) {
		return fmt.Errorf("physical chain covers %d bytes, want %d", sum, len(p.memory))
	}
	if count != p.numBlocks {
		return fmt.Errorf("numBlocks=%d but physical chain length=%d", p.numBlocks, count)
	}
	if p.totalOverhead != int(blockOverhead)*p.numBlocks {
		return fmt.Errorf("totalOverhead=%d, want %d", p.totalOverhead, int(blockOverhead)*p.numBlocks)
	}
	if p.mainBlock != nil {
		if p.mainBlock.physicalNext != nil {
			return fmt.Errorf("mainBlock is not the tail of the physical chain")
		}
		if !inChain[p.mainBlock] {
			return fmt.Errorf("mainBlock is not reachable from the physical chain")
		}
	}

	onRecycled := map[*allocationBlock]bool{}
	for b := p.recycled.first(); b != nil; b = b.logicalNext {
		if b.isAllocated {
			return fmt.Errorf("allocated block found on recycled list")
		}
		if b == p.mainBlock {
			return fmt.Errorf("mainBlock found on recycled list")
		}
		onRecycled[b] = true
	}

	cur = (*allocationBlock)(unsafe.Pointer(base))
	for cur != nil {
		shouldBeRecycled := !cur.isAllocated && cur != p.mainBlock
		if shouldBeRecycled != onRecycled[cur] {
			return fmt.Errorf("recycled-list membership mismatch at block addr %d", blockAddr(cur))
		}
		cur = cur.physicalNext
	}

	return nil
}
