package slab_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funny-falcon/slabmalloc/bitmap"
	"github.com/funny-falcon/slabmalloc/slab"
	"github.com/funny-falcon/slabmalloc/supply"
)

func garbagePage(t *testing.T, size int) []byte {
	h := &supply.Heap{PageSize: size, Poison: true}
	mem, err := h.AcquirePage(0)
	require.NoError(t, err)
	return mem
}

func TestHeaderSize(t *testing.T) {
	require.Equal(t, 88, slab.HeaderSize)
	require.Equal(t, 4, slab.SlotsPerPage(slab.HeaderSize+32, 8))
	require.Equal(t, 1, slab.SlotsPerPage(4096, 2048))
	require.Equal(t, bitmap.Bits, slab.SlotsPerPage(8192, 8))
	require.Zero(t, slab.SlotsPerPage(slab.HeaderSize+7, 8))
}

func TestPage(t *testing.T) {
	mem := garbagePage(t, 4096)
	p, err := slab.NewPage(mem, 64, 7)
	require.NoError(t, err)

	capa := (4096 - slab.HeaderSize) / 64
	require.Equal(t, capa, p.Capacity())
	require.Equal(t, 0, p.Live())
	require.Equal(t, slab.Empty, p.Occupancy())
	require.Equal(t, uint32(7), p.Owner())

	var addrs []uintptr
	for i := 0; i < capa; i++ {
		a, ok := p.AllocSlot()
		require.True(t, ok)
		require.Equal(t, p.Base()+uintptr(i*64), a)
		require.True(t, p.Contains(a))
		addrs = append(addrs, a)
		if i < capa-1 {
			require.Equal(t, slab.Partial, p.Occupancy())
		}
	}
	require.Equal(t, slab.Full, p.Occupancy())
	_, ok := p.AllocSlot()
	require.False(t, ok)

	require.NoError(t, p.FreeSlot(addrs[5]))
	require.Equal(t, capa-1, p.Live())
	a, ok := p.AllocSlot()
	require.True(t, ok)
	require.Equal(t, addrs[5], a)

	var walked []uintptr
	p.Walk(func(a uintptr) bool {
		walked = append(walked, a)
		return true
	})
	require.Equal(t, addrs, walked)
}

func TestPage_FreeSlotMisuse(t *testing.T) {
	mem := garbagePage(t, 1024)
	p, err := slab.NewPage(mem, 32, 1)
	require.NoError(t, err)

	a, ok := p.AllocSlot()
	require.True(t, ok)
	assert.True(t, p.Allocated(a))
	assert.False(t, p.Allocated(a+8))
	assert.False(t, p.Allocated(a+32))
	assert.False(t, p.Allocated(p.Base()-32))

	assert.ErrorIs(t, p.FreeSlot(a+8), slab.ErrInvalidAddress)
	assert.ErrorIs(t, p.FreeSlot(p.Base()+uintptr(1024-slab.HeaderSize)), slab.ErrInvalidAddress)
	assert.ErrorIs(t, p.FreeSlot(p.Base()-32), slab.ErrInvalidAddress)
	assert.ErrorIs(t, p.FreeSlot(a+32), slab.ErrInvalidAddress)

	require.NoError(t, p.FreeSlot(a))
	assert.False(t, p.Allocated(a))
	assert.ErrorIs(t, p.FreeSlot(a), slab.ErrInvalidAddress)
	assert.Equal(t, slab.Empty, p.Occupancy())
}

func TestNewPage_TooSmall(t *testing.T) {
	_, err := slab.NewPage(make([]byte, slab.HeaderSize+8), 16, 0)
	require.ErrorIs(t, err, slab.ErrConfig)
	_, err = slab.NewPage(nil, 8, 0)
	require.ErrorIs(t, err, slab.ErrConfig)
}
