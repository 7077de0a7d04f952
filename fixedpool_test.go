package mempool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFixedPoolRejectsBadConfig(t *testing.T) {
	buf := make([]byte, 256)

	_, err := NewFixedPool(nil, 8, 32, "bad")
	assert.ErrorIs(t, err, ErrBadConfig)

	_, err = NewFixedPool(buf, 0, 32, "bad")
	assert.ErrorIs(t, err, ErrBadConfig)

	_, err = NewFixedPool(buf, 8, 4, "bad")
	assert.ErrorIs(t, err, ErrBadConfig, "block size smaller than a pointer must be rejected")

	_, err = NewFixedPool(buf, 10, 32, "bad")
	assert.ErrorIs(t, err, ErrBadConfig, "buffer length must equal numBlocks*blockSize")
}

// Boundary scenario 6: construct with 8 slots of 32 bytes, allocate all 8,
// the 9th fails with ErrNoSpace, freeing all of them lets 8 more succeed.
func TestFixedPoolRoundTrip(t *testing.T) {
	const numBlocks = 8
	const blockSize = 32

	buf := make([]byte, numBlocks*blockSize)
	p, err := NewFixedPool(buf, numBlocks, blockSize, "fixed-roundtrip")
	require.NoError(t, err)

	allocated := make([]uintptr, 0, numBlocks)
	for i := 0; i < numBlocks; i++ {
		ptr, err := p.Allocate(blockSize)
		require.NoError(t, err)
		allocated = append(allocated, uintptrOf(ptr))
	}
	assert.Equal(t, numBlocks, p.NumAllocations())
	assert.Equal(t, numBlocks*blockSize, p.TotalAllocated())

	_, err = p.Allocate(blockSize)
	assert.ErrorIs(t, err, ErrNoSpace)

	for _, addr := range allocated {
		require.NoError(t, p.Deallocate(ptrFromUintptr(addr)))
	}
	assert.Equal(t, 0, p.NumAllocations())
	assert.Equal(t, 0, p.TotalAllocated())

	for i := 0; i < numBlocks; i++ {
		_, err := p.Allocate(blockSize)
		require.NoError(t, err)
	}
}

func TestFixedPoolAllocateSizeTooLarge(t *testing.T) {
	buf := make([]byte, 8*32)
	p, err := NewFixedPool(buf, 8, 32, "fixed-size")
	require.NoError(t, err)

	_, err = p.Allocate(33)
	assert.ErrorIs(t, err, ErrSizeTooLarge)
}

func TestFixedPoolDeallocateBadPointer(t *testing.T) {
	buf := make([]byte, 8*32)
	p, err := NewFixedPool(buf, 8, 32, "fixed-badptr")
	require.NoError(t, err)

	other := make([]byte, 32)
	err = p.Deallocate(ptrFromUintptr(uintptrOfSlice(other)))
	assert.ErrorIs(t, err, ErrBadPointer)
}

func TestFixedPoolAllocationsAreDisjoint(t *testing.T) {
	const numBlocks = 8
	const blockSize = 32

	buf := make([]byte, numBlocks*blockSize)
	p, err := NewFixedPool(buf, numBlocks, blockSize, "fixed-disjoint")
	require.NoError(t, err)

	seen := make(map[uintptr]bool)
	for i := 0; i < numBlocks; i++ {
		ptr, err := p.Allocate(blockSize)
		require.NoError(t, err)
		addr := uintptrOf(ptr)
		assert.False(t, seen[addr], "slot address reused while still live")
		seen[addr] = true
	}
}
