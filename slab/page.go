package slab

import (
	"unsafe"

	"github.com/pkg/errors"

	"github.com/funny-falcon/slabmalloc/bitmap"
)

const pageMagic = 0x51ab9a6e

const nilPage = int32(-1)

// list tags stored in header.list
const (
	listNone uint8 = iota
	listEmpty
	listPartial
	listFull
)

type header struct {
	bits     bitmap.Block
	magic    uint32
	owner    uint32
	prev     int32
	next     int32
	size     uint32
	capacity uint16
	list     uint8
	_        uint8
}

// HeaderSize is the number of bytes at the end of every page reserved for
// the page header.
const HeaderSize = int(unsafe.Sizeof(header{}))

type Occupancy uint8

const (
	Empty Occupancy = iota
	Partial
	Full
)

func (o Occupancy) String() string {
	switch o {
	case Empty:
		return "empty"
	case Partial:
		return "partial"
	case Full:
		return "full"
	}
	return "unknown"
}

func (o Occupancy) list() uint8 {
	return uint8(o) + listEmpty
}

// SlotsPerPage is the number of slots of the given size a page holds.
func SlotsPerPage(pageSize, slotSize int) int {
	if slotSize <= 0 || pageSize < HeaderSize+slotSize {
		return 0
	}
	n := (pageSize - HeaderSize) / slotSize
	if n > bitmap.Bits {
		n = bitmap.Bits
	}
	return n
}

// Page is a view of a slab page. The state lives in the page memory itself;
// copies of a Page refer to the same page.
type Page struct {
	mem []byte
	hdr *header
}

// NewPage formats mem as an empty page of slotSize slots owned by owner.
// The previous content of mem is ignored.
func NewPage(mem []byte, slotSize int, owner uint32) (Page, error) {
	capa := SlotsPerPage(len(mem), slotSize)
	if capa == 0 {
		return Page{}, errors.Wrapf(ErrConfig, "page of %d bytes cannot hold a %d byte slot", len(mem), slotSize)
	}
	if len(mem)&7 != 0 || uintptr(unsafe.Pointer(&mem[0]))&7 != 0 {
		return Page{}, errors.Wrapf(ErrConfig, "page at %p of %d bytes is not 8 byte aligned", &mem[0], len(mem))
	}
	hdr := (*header)(unsafe.Pointer(&mem[len(mem)-HeaderSize]))
	*hdr = header{
		magic:    pageMagic,
		owner:    owner,
		prev:     nilPage,
		next:     nilPage,
		size:     uint32(slotSize),
		capacity: uint16(capa),
	}
	hdr.bits.Init(capa)
	return Page{mem: mem, hdr: hdr}, nil
}

func (p Page) check() {
	if p.hdr.magic != pageMagic {
		panic("slab: page header corrupted")
	}
}

func (p Page) Base() uintptr {
	return uintptr(unsafe.Pointer(&p.mem[0]))
}

func (p Page) Mem() []byte {
	return p.mem
}

func (p Page) Owner() uint32 {
	return p.hdr.owner
}

func (p Page) SlotSize() int {
	return int(p.hdr.size)
}

func (p Page) Capacity() int {
	return int(p.hdr.capacity)
}

// Live is the number of occupied slots.
func (p Page) Live() int {
	return p.hdr.bits.Count() - (bitmap.Bits - int(p.hdr.capacity))
}

func (p Page) Occupancy() Occupancy {
	switch p.Live() {
	case 0:
		return Empty
	case int(p.hdr.capacity):
		return Full
	}
	return Partial
}

func (p Page) bodyEnd() uintptr {
	return p.Base() + uintptr(p.hdr.capacity)*uintptr(p.hdr.size)
}

// Contains reports whether addr falls inside the page's slot area.
func (p Page) Contains(addr uintptr) bool {
	return addr >= p.Base() && addr < p.bodyEnd()
}

// Allocated reports whether addr is the start of a live slot.
func (p Page) Allocated(addr uintptr) bool {
	if !p.Contains(addr) {
		return false
	}
	off, size := addr-p.Base(), uintptr(p.hdr.size)
	return off%size == 0 && p.hdr.bits.Has(int(off/size))
}

// AllocSlot claims the first free slot. It returns false if the page is full.
func (p Page) AllocSlot() (uintptr, bool) {
	ix, ok := p.hdr.bits.FirstFree()
	if !ok {
		return 0, false
	}
	p.hdr.bits.Set(ix)
	return p.Base() + uintptr(ix)*uintptr(p.hdr.size), true
}

// FreeSlot releases the slot starting at addr.
func (p Page) FreeSlot(addr uintptr) error {
	if !p.Contains(addr) {
		return errors.Wrapf(ErrInvalidAddress, "%#x outside page body %#x-%#x", addr, p.Base(), p.bodyEnd())
	}
	off := addr - p.Base()
	size := uintptr(p.hdr.size)
	if off%size != 0 {
		return errors.Wrapf(ErrInvalidAddress, "%#x is not at a %d byte slot boundary", addr, size)
	}
	if !p.hdr.bits.Unset(int(off / size)) {
		return errors.Wrapf(ErrInvalidAddress, "%#x is not allocated", addr)
	}
	return nil
}

// Walk calls fn with the address of every live slot, in address order,
// until fn returns false.
func (p Page) Walk(fn func(addr uintptr) bool) bool {
	var r [bitmap.Bits]uint16
	base, size := p.Base(), uintptr(p.hdr.size)
	for _, ix := range p.hdr.bits.Unroll(int(p.hdr.capacity), &r) {
		if !fn(base + uintptr(ix)*size) {
			return false
		}
	}
	return true
}
