package tracker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerTracksLiveAllocations(t *testing.T) {
	tr := New()
	assert.Equal(t, 0, tr.Len())

	tr.OnAllocate(0x1000, "main.go", 42, 64)
	tr.OnAllocate(0x2000, "main.go", 43, 128)
	assert.Equal(t, 2, tr.Len())

	tr.OnDeallocate(0x1000)
	assert.Equal(t, 1, tr.Len())

	// Deallocating an address never tracked is a no-op.
	tr.OnDeallocate(0xdead)
	assert.Equal(t, 1, tr.Len())
}

func TestTrackerDumpReportsOnlyLiveAllocations(t *testing.T) {
	tr := New()
	tr.OnAllocate(0x3000, "leaky.go", 7, 256)
	tr.OnAllocate(0x4000, "freed.go", 9, 32)
	tr.OnDeallocate(0x4000)

	var buf strings.Builder
	require.NoError(t, tr.Dump(&buf))

	out := buf.String()
	assert.NotContains(t, out, "freed.go")
	assert.Contains(t, out, "leaky.go")
	assert.Contains(t, out, "Line:\t7")
	assert.Contains(t, out, "Size:\t256")
}

func TestTrackerDumpEmptyWritesNothing(t *testing.T) {
	tr := New()

	var buf strings.Builder
	require.NoError(t, tr.Dump(&buf))

	assert.Empty(t, buf.String())
}
