package alloc

import (
	"math"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/funny-falcon/slabmalloc/slab"
)

// MaxLargeAlign is the largest alignment Large serves.
const MaxLargeAlign = 1 << 20

// Large serves objects bigger than any size class with one Go heap block
// each. It keeps blocks reachable until they are freed.
type Large struct {
	// Max bounds the bytes outstanding; 0 means no bound.
	Max int

	live       map[Ptr][]byte
	TotalAlloc int
	Count      int
}

func (l *Large) Alloc(size, align int) (Ptr, error) {
	if align <= 0 {
		align = 1
	}
	if align&(align-1) != 0 || align > MaxLargeAlign || size < 0 || size > math.MaxInt-align {
		return 0, errors.Wrapf(slab.ErrUnsupported, "large %d/%d", size, align)
	}
	if size == 0 {
		size = 1
	}
	if l.Max > 0 && size > l.Max-l.TotalAlloc {
		return 0, errors.Wrapf(slab.ErrOutOfMemory, "large %d bytes over %d byte budget", size, l.Max)
	}
	buf := make([]byte, size+align-1)
	off := int(-uintptr(unsafe.Pointer(&buf[0])) & uintptr(align-1))
	buf = buf[off : off+size : off+size]
	ptr := Ptr(unsafe.Pointer(&buf[0]))
	if l.live == nil {
		l.live = make(map[Ptr][]byte)
	}
	l.live[ptr] = buf
	l.TotalAlloc += size
	l.Count++
	return ptr, nil
}

// Owns reports whether ptr is a live block of l.
func (l *Large) Owns(ptr Ptr) bool {
	_, ok := l.live[ptr]
	return ok
}

func (l *Large) Dealloc(ptr Ptr, size, align int) error {
	buf, ok := l.live[ptr]
	if !ok {
		return errors.Wrapf(slab.ErrAddressNotOwned, "large %#x", uintptr(ptr))
	}
	delete(l.live, ptr)
	l.TotalAlloc -= len(buf)
	l.Count--
	return nil
}
