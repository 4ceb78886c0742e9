package zone_test

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funny-falcon/slabmalloc/alloc"
	"github.com/funny-falcon/slabmalloc/zone"
)

type account struct {
	ID     int32
	Birth  int64
	Status uint8
	Likes  [5]uint32
}

type withSlice struct {
	ID    int32
	Likes []uint32
}

func TestZone_AllocOf(t *testing.T) {
	z, _ := newZone(t, zone.DefaultConfig(), 0)

	refs := make([]alloc.Ptr, 100)
	for i := range refs {
		ref, err := z.AllocOf((*account)(nil))
		require.NoError(t, err)
		var acc *account
		alloc.Get(ref, &acc)
		acc.ID = int32(i)
		acc.Birth = int64(i) * 1000
		acc.Likes[4] = uint32(i)
		refs[i] = ref
	}
	i, _ := z.ClassFor(int(unsafe.Sizeof(account{})), 8)
	assert.Equal(t, 100, z.Stats().Classes[i].Live)

	for i, ref := range refs {
		acc := (*account)(alloc.GetPtr(ref))
		require.Equal(t, int32(i), acc.ID)
		require.Equal(t, int64(i)*1000, acc.Birth)
		require.Equal(t, uint32(i), acc.Likes[4])
		require.NoError(t, z.FreeOf(ref, (*account)(nil)))
	}
	assert.Equal(t, 0, z.Stats().Live)

	_, err := z.AllocOf((*withSlice)(nil))
	require.ErrorIs(t, err, zone.ErrUnsupported)
	_, err = z.AllocOf(nil)
	require.ErrorIs(t, err, zone.ErrUnsupported)

	ref, err := z.AllocOf(uint64(0))
	require.NoError(t, err)
	require.NoError(t, z.FreeOf(ref, uint64(0)))
}
