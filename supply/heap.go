package supply

import (
	"unsafe"

	"github.com/pkg/errors"
)

// Heap serves pages allocated on the Go heap. Released pages are kept for
// reuse and never given back to the runtime.
type Heap struct {
	PageSize int
	// Align defaults to the largest power of two not above PageSize.
	Align int
	// Max bounds the pages outstanding at once; 0 means no bound.
	Max int
	// Poison fills every page handed out with garbage.
	Poison bool

	free [][]byte
	out  map[uintptr]struct{}
}

func NewHeap(pageSize int) *Heap {
	return &Heap{PageSize: pageSize}
}

func (h *Heap) align() int {
	if h.Align > 0 {
		return h.Align
	}
	return floorPow2(h.PageSize)
}

func (h *Heap) AcquirePage(class int) ([]byte, error) {
	if h.PageSize <= 0 {
		return nil, errors.Errorf("supply: page size %d", h.PageSize)
	}
	if h.Max > 0 && len(h.out) >= h.Max {
		return nil, errors.Wrapf(ErrExhausted, "%d pages outstanding", len(h.out))
	}
	var page []byte
	if n := len(h.free); n > 0 {
		page = h.free[n-1]
		h.free = h.free[:n-1]
	} else {
		page = alignedPage(h.PageSize, h.align())
	}
	if h.Poison {
		poison(page)
	}
	if h.out == nil {
		h.out = make(map[uintptr]struct{})
	}
	h.out[base(page)] = struct{}{}
	return page, nil
}

func (h *Heap) ReleasePage(page []byte) {
	b := base(page)
	if _, ok := h.out[b]; !ok || len(page) != h.PageSize {
		panic("supply: release of a page not handed out")
	}
	delete(h.out, b)
	h.free = append(h.free, page)
}

// Outstanding is the number of pages handed out and not yet released.
func (h *Heap) Outstanding() int {
	return len(h.out)
}

func alignedPage(size, align int) []byte {
	buf := make([]byte, size+align-1)
	off := int(-base(buf) & uintptr(align-1))
	return buf[off : off+size : off+size]
}

func base(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}
