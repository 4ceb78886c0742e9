// Package zone routes allocations by size to a fixed table of slab size
// classes.
//
// A request for (size, align) goes to the smallest class whose object size
// is at least size and whose natural alignment is at least align. The table
// is built once by New and never changes. Deallocate re-derives the class
// from the same (size, align), so callers must pass back what they passed to
// Allocate; the zone keeps no per-object metadata beyond the slab bitmaps.
//
// Requests no class fits fail with ErrUnsupported unless Config.Large is set,
// in which case they go there.
//
// Zone does not lock. Wrap it in alloc.Locked, or lock around it, when it is
// shared.
package zone

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/funny-falcon/slabmalloc/alloc"
	"github.com/funny-falcon/slabmalloc/slab"
)

var (
	ErrUnsupported     = slab.ErrUnsupported
	ErrOutOfMemory     = slab.ErrOutOfMemory
	ErrAddressNotOwned = slab.ErrAddressNotOwned
	ErrInvalidAddress  = slab.ErrInvalidAddress
	ErrConfig          = slab.ErrConfig
)

type Zone struct {
	pageSize int
	sizes    []int
	aligns   []int
	classes  []*slab.SizeClass
	large    alloc.Allocator
}

func New(cfg Config, sup slab.Supplier) (*Zone, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	z := &Zone{
		pageSize: cfg.PageSize,
		sizes:    append([]int(nil), cfg.Classes...),
		large:    cfg.Large,
	}
	for i, size := range z.sizes {
		align := naturalAlign(size, cfg.MaxAlign)
		c, err := slab.New(slab.Config{
			ID:         uint32(i),
			PageSize:   cfg.PageSize,
			ObjectSize: size,
			Align:      align,
			Reserve:    cfg.Reserve,
		}, sup)
		if err != nil {
			return nil, errors.Wrapf(err, "zone: class %d", size)
		}
		z.aligns = append(z.aligns, align)
		z.classes = append(z.classes, c)
	}
	return z, nil
}

// ClassFor returns the index of the class serving (size, align).
func (z *Zone) ClassFor(size, align int) (int, bool) {
	if align <= 0 {
		align = 1
	}
	if !isPow2(align) {
		return -1, false
	}
	if size < 0 {
		return -1, false
	}
	if size == 0 {
		size = 1
	}
	for i := sort.SearchInts(z.sizes, size); i < len(z.sizes); i++ {
		if z.aligns[i] >= align {
			return i, true
		}
	}
	return -1, false
}

func (z *Zone) useLarge(align int) bool {
	return z.large != nil && (align <= 0 || isPow2(align))
}

func (z *Zone) Allocate(size, align int) (uintptr, error) {
	i, ok := z.ClassFor(size, align)
	if !ok {
		if z.useLarge(align) {
			p, err := z.large.Alloc(size, align)
			return uintptr(p), err
		}
		return 0, errors.Wrapf(ErrUnsupported, "zone: %d bytes aligned to %d", size, align)
	}
	return z.classes[i].Allocate(size, align)
}

// AllocateZeroed is Allocate with the first size bytes cleared.
func (z *Zone) AllocateZeroed(size, align int) (uintptr, error) {
	addr, err := z.Allocate(size, align)
	if err != nil {
		return 0, err
	}
	alloc.Zero(alloc.Ptr(addr), size)
	return addr, nil
}

func (z *Zone) Deallocate(addr uintptr, size, align int) error {
	i, ok := z.ClassFor(size, align)
	if !ok {
		if z.useLarge(align) {
			return z.large.Dealloc(alloc.Ptr(addr), size, align)
		}
		return errors.Wrapf(ErrAddressNotOwned, "zone: %#x with no class for %d/%d", addr, size, align)
	}
	return z.classes[i].Deallocate(addr)
}

// Reallocate moves the object at addr to room for newSize bytes, keeping the
// first min(oldSize, newSize) bytes. If both sizes map to the same class the
// object stays where it is. addr is checked before any byte is read.
func (z *Zone) Reallocate(addr uintptr, oldSize, align, newSize int) (uintptr, error) {
	if err := z.checkLive(addr, oldSize, align); err != nil {
		return 0, err
	}
	oi, ook := z.ClassFor(oldSize, align)
	if ni, nok := z.ClassFor(newSize, align); ook && nok && oi == ni {
		return addr, nil
	}
	naddr, err := z.Allocate(newSize, align)
	if err != nil {
		return 0, err
	}
	n := min(oldSize, newSize)
	copy(alloc.Bytes(alloc.Ptr(naddr), n), alloc.Bytes(alloc.Ptr(addr), n))
	if err := z.Deallocate(addr, oldSize, align); err != nil {
		if uerr := z.Deallocate(naddr, newSize, align); uerr != nil {
			panic(fmt.Sprintf("zone: realloc cannot free its own %#x: %v", naddr, uerr))
		}
		return 0, err
	}
	return naddr, nil
}

// checkLive returns nil if addr is a live object allocated as (size, align).
func (z *Zone) checkLive(addr uintptr, size, align int) error {
	if i, ok := z.ClassFor(size, align); ok {
		c := z.classes[i]
		if !c.Owns(addr) {
			return errors.Wrapf(ErrAddressNotOwned, "zone: %#x in %d byte class", addr, c.ObjectSize())
		}
		if !c.Allocated(addr) {
			return errors.Wrapf(ErrInvalidAddress, "zone: %#x is not a live %d byte object", addr, c.ObjectSize())
		}
		return nil
	}
	if !z.useLarge(align) {
		return errors.Wrapf(ErrAddressNotOwned, "zone: %#x with no class for %d/%d", addr, size, align)
	}
	o, ok := z.large.(alloc.Owner)
	if !ok {
		return errors.Wrapf(ErrUnsupported, "zone: large allocator cannot vouch for %#x", addr)
	}
	if !o.Owns(alloc.Ptr(addr)) {
		return errors.Wrapf(ErrAddressNotOwned, "zone: %#x is not a large object", addr)
	}
	return nil
}

func (z *Zone) Alloc(size, align int) (alloc.Ptr, error) {
	addr, err := z.Allocate(size, align)
	return alloc.Ptr(addr), err
}

func (z *Zone) Dealloc(ptr alloc.Ptr, size, align int) error {
	return z.Deallocate(uintptr(ptr), size, align)
}

// Owns reports whether addr lies in a page of any class.
func (z *Zone) Owns(addr uintptr) bool {
	for _, c := range z.classes {
		if c.Owns(addr) {
			return true
		}
	}
	return false
}

func (z *Zone) PageSize() int {
	return z.pageSize
}

func (z *Zone) NumClasses() int {
	return len(z.classes)
}

func (z *Zone) Class(i int) *slab.SizeClass {
	return z.classes[i]
}

// Reclaim returns every empty page of every class to the supplier.
func (z *Zone) Reclaim() int {
	n := 0
	for _, c := range z.classes {
		n += c.Reclaim(0)
	}
	return n
}

// Walk calls fn for every live object of every class.
func (z *Zone) Walk(fn func(class int, addr uintptr) bool) {
	for i, c := range z.classes {
		stop := false
		c.Walk(func(addr uintptr) bool {
			stop = !fn(i, addr)
			return !stop
		})
		if stop {
			return
		}
	}
}

// Check panics if any class's bookkeeping is inconsistent.
func (z *Zone) Check() {
	for _, c := range z.classes {
		c.Check()
	}
}

// Close returns every page to the supplier. Objects still live become
// invalid; objects served by Config.Large are not touched.
func (z *Zone) Close() {
	for _, c := range z.classes {
		c.Close()
	}
}
