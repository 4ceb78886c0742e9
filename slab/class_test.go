package slab_test

import (
	"math/rand"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funny-falcon/slabmalloc/slab"
	"github.com/funny-falcon/slabmalloc/supply"
)

// four 8 byte slots per page
const tinyPage = slab.HeaderSize + 32

func newClass(t testing.TB, size, reserve, maxPages int) (*slab.SizeClass, *supply.Limited) {
	sup := &supply.Limited{
		Source: &supply.Heap{PageSize: tinyPage, Poison: true},
		Max:    maxPages,
	}
	c, err := slab.New(slab.Config{
		ID:         3,
		PageSize:   tinyPage,
		ObjectSize: size,
		Align:      size,
		Reserve:    reserve,
	}, sup)
	require.NoError(t, err)
	return c, sup
}

func TestSizeClass_FivePages(t *testing.T) {
	c, sup := newClass(t, 8, 1, 100)
	require.Equal(t, 4, c.SlotsPerPage())

	var addrs []uintptr
	for i := 0; i < 4; i++ {
		a, err := c.Allocate(8, 8)
		require.NoError(t, err)
		addrs = append(addrs, a)
	}
	st := c.Stats()
	assert.Equal(t, 1, st.FullPages)
	assert.Equal(t, 0, st.PartialPages)
	assert.Equal(t, 1, sup.Acquired)

	a, err := c.Allocate(8, 8)
	require.NoError(t, err)
	addrs = append(addrs, a)
	st = c.Stats()
	assert.Equal(t, 1, st.FullPages)
	assert.Equal(t, 1, st.PartialPages)
	assert.Equal(t, 2, sup.Acquired)
	assert.Equal(t, 5, st.Live)
	c.Check()

	for _, a := range addrs {
		require.NoError(t, c.Deallocate(a))
		c.Check()
	}
	st = c.Stats()
	assert.Equal(t, 0, st.Live)
	assert.Equal(t, 1, st.EmptyPages)
	assert.Equal(t, 1, st.Pages())
	assert.Equal(t, 1, sup.Released)
	assert.Equal(t, 1, sup.Outstanding())
}

func TestSizeClass_Reserve(t *testing.T) {
	for _, tc := range []struct {
		reserve int
		kept    int
	}{
		{0, 0},
		{1, 1},
		{2, 2},
		{slab.KeepAll, 3},
	} {
		c, sup := newClass(t, 8, tc.reserve, 100)
		var addrs []uintptr
		for i := 0; i < 12; i++ {
			a, err := c.Allocate(8, 8)
			require.NoError(t, err)
			addrs = append(addrs, a)
		}
		require.Equal(t, 3, sup.Outstanding())
		for _, a := range addrs {
			require.NoError(t, c.Deallocate(a))
		}
		c.Check()
		assert.Equal(t, tc.kept, c.Stats().EmptyPages, "reserve %d", tc.reserve)
		assert.Equal(t, tc.kept, sup.Outstanding(), "reserve %d", tc.reserve)

		assert.Equal(t, tc.kept, c.Reclaim(0))
		assert.Equal(t, 0, sup.Outstanding())
	}
}

func TestSizeClass_CapacityOne(t *testing.T) {
	c, sup := newClass(t, 32, 0, 100)
	require.Equal(t, 1, c.SlotsPerPage())

	a, err := c.Allocate(32, 32)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Stats().FullPages)
	assert.Zero(t, a%32)

	require.NoError(t, c.Deallocate(a))
	assert.Equal(t, 0, c.Stats().Pages())
	assert.Equal(t, 0, sup.Outstanding())
	c.Check()
}

func TestSizeClass_Exhaustion(t *testing.T) {
	c, _ := newClass(t, 8, 1, 2)
	var addrs []uintptr
	for i := 0; i < 8; i++ {
		a, err := c.Allocate(8, 8)
		require.NoError(t, err)
		*(*uint64)(unsafe.Pointer(a)) = uint64(i)
		addrs = append(addrs, a)
	}
	_, err := c.Allocate(8, 8)
	require.ErrorIs(t, err, slab.ErrOutOfMemory)
	require.ErrorIs(t, err, supply.ErrExhausted)

	for i, a := range addrs {
		require.Equal(t, uint64(i), *(*uint64)(unsafe.Pointer(a)))
		require.NoError(t, c.Deallocate(a))
	}
	c.Check()
	_, err = c.Allocate(8, 8)
	require.NoError(t, err)
}

func TestSizeClass_Misuse(t *testing.T) {
	c, _ := newClass(t, 8, 0, 100)
	a, err := c.Allocate(8, 8)
	require.NoError(t, err)
	b, err := c.Allocate(8, 8)
	require.NoError(t, err)

	assert.True(t, c.Allocated(a))
	assert.False(t, c.Allocated(a+4))
	assert.ErrorIs(t, c.Deallocate(a+4), slab.ErrInvalidAddress)
	require.NoError(t, c.Deallocate(a))
	assert.False(t, c.Allocated(a))
	assert.True(t, c.Owns(a))
	assert.ErrorIs(t, c.Deallocate(a), slab.ErrInvalidAddress)

	// the page goes back to the supplier with its last object
	require.NoError(t, c.Deallocate(b))
	assert.ErrorIs(t, c.Deallocate(b), slab.ErrAddressNotOwned)
	assert.False(t, c.Allocated(b))
	assert.ErrorIs(t, c.Deallocate(12345), slab.ErrAddressNotOwned)
	c.Check()

	assert.Panics(t, func() { c.Allocate(16, 8) })
	assert.Panics(t, func() { c.Allocate(8, 16) })
}

func TestSizeClass_Config(t *testing.T) {
	sup := supply.NewHeap(4096)
	for _, cfg := range []slab.Config{
		{PageSize: 4096, ObjectSize: 0, Align: 8},
		{PageSize: 4095, ObjectSize: 8, Align: 8},
		{PageSize: 4096, ObjectSize: 24, Align: 16},
		{PageSize: 4096, ObjectSize: 24, Align: 3},
		{PageSize: 4096, ObjectSize: 4096, Align: 8},
		{PageSize: 4096, ObjectSize: 8, Align: 8, Reserve: -2},
	} {
		_, err := slab.New(cfg, sup)
		require.ErrorIs(t, err, slab.ErrConfig, "%+v", cfg)
	}
	_, err := slab.New(slab.Config{PageSize: 4096, ObjectSize: 8, Align: 8}, nil)
	require.ErrorIs(t, err, slab.ErrConfig)

	c, err := slab.New(slab.Config{PageSize: 4096, ObjectSize: 24, Align: 8}, sup)
	require.NoError(t, err)
	assert.Equal(t, (4096-slab.HeaderSize)/24, c.SlotsPerPage())
}

func TestSizeClass_WrongSupplierPage(t *testing.T) {
	c, err := slab.New(slab.Config{PageSize: 4096, ObjectSize: 64, Align: 64}, supply.NewHeap(2048))
	require.NoError(t, err)
	_, err = c.Allocate(64, 64)
	require.ErrorIs(t, err, slab.ErrConfig)
	assert.Equal(t, 0, c.Stats().Pages())
}

func TestSizeClass_RefillWalkClose(t *testing.T) {
	heap := supply.NewHeap(4096)
	c, err := slab.New(slab.Config{ID: 1, PageSize: 4096, ObjectSize: 128, Align: 128, Reserve: slab.KeepAll}, heap)
	require.NoError(t, err)

	mem, err := heap.AcquirePage(1)
	require.NoError(t, err)
	require.NoError(t, c.Refill(mem))
	require.ErrorIs(t, c.Refill(make([]byte, 100)), slab.ErrConfig)
	assert.Equal(t, 1, c.Stats().EmptyPages)

	want := map[uintptr]bool{}
	for i := 0; i < 70; i++ {
		a, err := c.Allocate(100, 8)
		require.NoError(t, err)
		want[a] = true
	}
	assert.True(t, c.Owns(uintptr(unsafe.Pointer(&mem[0]))))
	assert.Equal(t, 3, heap.Outstanding())

	got := map[uintptr]bool{}
	c.Walk(func(a uintptr) bool {
		got[a] = true
		return true
	})
	assert.Equal(t, want, got)

	c.Close()
	assert.Equal(t, 0, heap.Outstanding())
	assert.Equal(t, 0, c.Stats().Pages())
	assert.Equal(t, 0, c.Stats().Live)
}

func TestSizeClass_Random(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for _, size := range []int{8, 16, 48, 256} {
		sup := &supply.Limited{Source: &supply.Heap{PageSize: 1024, Poison: true}, Max: 40}
		c, err := slab.New(slab.Config{PageSize: 1024, ObjectSize: size, Align: 8, Reserve: 1}, sup)
		require.NoError(t, err)

		live := map[uintptr]uint64{}
		var order []uintptr
		allocs, frees := 0, 0
		for n := 0; n < 5000; n++ {
			if len(order) == 0 || rnd.Intn(5) < 3 {
				a, err := c.Allocate(size, 8)
				if err != nil {
					require.ErrorIs(t, err, slab.ErrOutOfMemory)
					continue
				}
				require.Zero(t, a%8)
				_, dup := live[a]
				require.False(t, dup, "address %#x served twice", a)
				v := rnd.Uint64()
				*(*uint64)(unsafe.Pointer(a)) = v
				live[a] = v
				order = append(order, a)
				allocs++
			} else {
				i := rnd.Intn(len(order))
				a := order[i]
				order[i] = order[len(order)-1]
				order = order[:len(order)-1]
				require.Equal(t, live[a], *(*uint64)(unsafe.Pointer(a)))
				delete(live, a)
				require.NoError(t, c.Deallocate(a))
				frees++
			}
			require.Equal(t, allocs-frees, c.Stats().Live)
		}
		c.Check()
		for _, a := range order {
			require.Equal(t, live[a], *(*uint64)(unsafe.Pointer(a)))
		}
	}
}

func BenchmarkSizeClass_AllocFree(b *testing.B) {
	c, err := slab.New(slab.Config{PageSize: 4096, ObjectSize: 64, Align: 64, Reserve: 1}, supply.NewHeap(4096))
	require.NoError(b, err)
	var ring [1024]uintptr
	for i := 0; i < b.N; i++ {
		k := i & 1023
		if ring[k] != 0 {
			c.Deallocate(ring[k])
		}
		ring[k], _ = c.Allocate(64, 64)
	}
}
