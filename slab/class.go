package slab

import (
	"fmt"

	"github.com/pkg/errors"
)

// Supplier hands out and takes back whole pages. AcquirePage must return
// promptly with an error when it has no page to give; the content of a
// returned page is unspecified.
type Supplier interface {
	AcquirePage(class int) ([]byte, error)
	ReleasePage(page []byte)
}

// KeepAll as Config.Reserve disables returning empty pages to the Supplier.
const KeepAll = -1

type Config struct {
	// ID is written into every page header and passed to the Supplier.
	ID uint32
	// PageSize is the exact size of pages the Supplier returns.
	PageSize int
	// ObjectSize is the slot size.
	ObjectSize int
	// Align is the alignment every slot honors. Pages must be aligned to it.
	Align int
	// Reserve is how many empty pages are kept when a free empties a page.
	// Further empty pages go back to the Supplier. KeepAll keeps them all.
	Reserve int
}

func isPow2(n int) bool {
	return n > 0 && n&(n-1) == 0
}

func (c Config) Validate() error {
	switch {
	case c.PageSize <= 0 || c.PageSize&7 != 0:
		return errors.Wrapf(ErrConfig, "page size %d must be a positive multiple of 8", c.PageSize)
	case c.ObjectSize <= 0:
		return errors.Wrapf(ErrConfig, "object size %d", c.ObjectSize)
	case !isPow2(c.Align):
		return errors.Wrapf(ErrConfig, "alignment %d is not a power of two", c.Align)
	case c.ObjectSize%c.Align != 0:
		return errors.Wrapf(ErrConfig, "object size %d is not a multiple of alignment %d", c.ObjectSize, c.Align)
	case SlotsPerPage(c.PageSize, c.ObjectSize) == 0:
		return errors.Wrapf(ErrConfig, "page size %d leaves no room for a %d byte slot after a %d byte header",
			c.PageSize, c.ObjectSize, HeaderSize)
	case c.Reserve < KeepAll:
		return errors.Wrapf(ErrConfig, "reserve %d", c.Reserve)
	}
	return nil
}

// SizeClass allocates objects of one size out of pages it files on three
// lists by occupancy.
type SizeClass struct {
	cfg   Config
	capa  int
	sup   Supplier
	arena arena
	spans spanIndex

	empty, partial, full pageList

	live     int
	acquired int
	released int
}

func New(cfg Config, sup Supplier) (*SizeClass, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sup == nil {
		return nil, errors.Wrap(ErrConfig, "nil supplier")
	}
	return &SizeClass{
		cfg:     cfg,
		capa:    SlotsPerPage(cfg.PageSize, cfg.ObjectSize),
		sup:     sup,
		empty:   newPageList(listEmpty),
		partial: newPageList(listPartial),
		full:    newPageList(listFull),
	}, nil
}

func (c *SizeClass) Config() Config {
	return c.cfg
}

func (c *SizeClass) ObjectSize() int {
	return c.cfg.ObjectSize
}

func (c *SizeClass) Align() int {
	return c.cfg.Align
}

// SlotsPerPage is the capacity of every page of this class.
func (c *SizeClass) SlotsPerPage() int {
	return c.capa
}

// Allocate returns the address of a free slot. size and align must not
// exceed what the class serves; violating that panics.
func (c *SizeClass) Allocate(size, align int) (uintptr, error) {
	if size > c.cfg.ObjectSize || align > c.cfg.Align {
		panic(fmt.Sprintf("slab: %d/%d request on %d/%d size class", size, align, c.cfg.ObjectSize, c.cfg.Align))
	}
	ix := c.partial.head
	if ix == nilPage {
		ix = c.empty.head
	}
	if ix == nilPage {
		var err error
		if ix, err = c.grow(); err != nil {
			return 0, err
		}
	}
	p := c.arena.page(ix)
	addr, ok := p.AllocSlot()
	if !ok {
		panic("slab: full page on " + c.listOf(p.hdr.list).name() + " list")
	}
	c.live++
	c.refile(ix, p)
	return addr, nil
}

// Deallocate frees the slot at addr and applies the reclaim policy to its
// page if the page became empty.
func (c *SizeClass) Deallocate(addr uintptr) error {
	ix, ok := c.spans.find(addr, c.cfg.PageSize)
	if !ok {
		return errors.Wrapf(ErrAddressNotOwned, "%#x in %d byte class", addr, c.cfg.ObjectSize)
	}
	p := c.arena.page(ix)
	if p.hdr.owner != c.cfg.ID {
		panic(fmt.Sprintf("slab: page %#x owned by %d filed in class %d", p.Base(), p.hdr.owner, c.cfg.ID))
	}
	if err := p.FreeSlot(addr); err != nil {
		return err
	}
	c.live--
	c.refile(ix, p)
	if c.cfg.Reserve != KeepAll && p.hdr.list == listEmpty && c.empty.n > c.cfg.Reserve {
		c.release(ix)
	}
	return nil
}

// Owns reports whether addr lies inside a page of this class.
func (c *SizeClass) Owns(addr uintptr) bool {
	_, ok := c.spans.find(addr, c.cfg.PageSize)
	return ok
}

// Allocated reports whether addr is a live object of this class.
func (c *SizeClass) Allocated(addr uintptr) bool {
	ix, ok := c.spans.find(addr, c.cfg.PageSize)
	return ok && c.arena.page(ix).Allocated(addr)
}

// Refill adds a page provided by the caller to the empty list. The page must
// be one the Supplier accepts back, since it is released there like any other.
func (c *SizeClass) Refill(mem []byte) error {
	if len(mem) != c.cfg.PageSize {
		return errors.Wrapf(ErrConfig, "refill page of %d bytes, want %d", len(mem), c.cfg.PageSize)
	}
	_, err := c.add(mem)
	return err
}

// Reclaim releases empty pages until at most keep remain and reports how
// many went back to the Supplier.
func (c *SizeClass) Reclaim(keep int) int {
	if keep < 0 {
		keep = 0
	}
	n := 0
	for c.empty.n > keep {
		c.release(c.empty.head)
		n++
	}
	return n
}

// Walk calls fn for every live object until fn returns false.
func (c *SizeClass) Walk(fn func(addr uintptr) bool) {
	visit := func(_ int32, p Page) bool { return p.Walk(fn) }
	if c.partial.each(&c.arena, visit) {
		c.full.each(&c.arena, visit)
	}
}

// Close returns every page, live objects included, to the Supplier.
func (c *SizeClass) Close() {
	for _, l := range []*pageList{&c.empty, &c.partial, &c.full} {
		for !l.isEmpty() {
			c.release(l.head)
		}
	}
	c.live = 0
}

func (c *SizeClass) grow() (int32, error) {
	mem, err := c.sup.AcquirePage(int(c.cfg.ID))
	if err != nil {
		return nilPage, &supplyError{size: c.cfg.ObjectSize, cause: err}
	}
	c.acquired++
	if len(mem) != c.cfg.PageSize {
		c.giveBack(mem)
		return nilPage, errors.Wrapf(ErrConfig, "supplier returned %d byte page, want %d", len(mem), c.cfg.PageSize)
	}
	ix, err := c.add(mem)
	if err != nil {
		c.giveBack(mem)
		return nilPage, err
	}
	return ix, nil
}

func (c *SizeClass) add(mem []byte) (int32, error) {
	p, err := NewPage(mem, c.cfg.ObjectSize, c.cfg.ID)
	if err != nil {
		return nilPage, err
	}
	if base := p.Base(); base%uintptr(c.cfg.Align) != 0 {
		return nilPage, errors.Wrapf(ErrConfig, "page %#x not aligned to %d", base, c.cfg.Align)
	}
	if _, ok := c.spans.find(p.Base(), c.cfg.PageSize); ok {
		panic(fmt.Sprintf("slab: page %#x handed out twice", p.Base()))
	}
	ix := c.arena.add(p)
	c.spans.insert(p.Base(), ix)
	c.empty.insert(&c.arena, ix)
	return ix, nil
}

func (c *SizeClass) release(ix int32) {
	p := c.arena.page(ix)
	c.live -= p.Live()
	c.listOf(p.hdr.list).remove(&c.arena, ix)
	c.spans.remove(p.Base())
	c.arena.drop(ix)
	c.giveBack(p.mem)
}

func (c *SizeClass) giveBack(mem []byte) {
	c.released++
	c.sup.ReleasePage(mem)
}

// refile moves page ix to the list matching its occupancy.
func (c *SizeClass) refile(ix int32, p Page) {
	want := p.Occupancy().list()
	if p.hdr.list == want {
		return
	}
	c.listOf(p.hdr.list).remove(&c.arena, ix)
	c.listOf(want).insert(&c.arena, ix)
}

func (c *SizeClass) listOf(tag uint8) *pageList {
	switch tag {
	case listEmpty:
		return &c.empty
	case listPartial:
		return &c.partial
	case listFull:
		return &c.full
	}
	panic(fmt.Sprintf("slab: page on unknown list %d", tag))
}

func (l *pageList) name() string {
	switch l.tag {
	case listEmpty:
		return "empty"
	case listPartial:
		return "partial"
	case listFull:
		return "full"
	}
	return "detached"
}

type Stats struct {
	ObjectSize   int
	Align        int
	SlotsPerPage int
	EmptyPages   int
	PartialPages int
	FullPages    int
	Live         int
	Acquired     int
	Released     int
}

func (s Stats) Pages() int {
	return s.EmptyPages + s.PartialPages + s.FullPages
}

func (c *SizeClass) Stats() Stats {
	return Stats{
		ObjectSize:   c.cfg.ObjectSize,
		Align:        c.cfg.Align,
		SlotsPerPage: c.capa,
		EmptyPages:   c.empty.n,
		PartialPages: c.partial.n,
		FullPages:    c.full.n,
		Live:         c.live,
		Acquired:     c.acquired,
		Released:     c.released,
	}
}

// Check walks every list and panics if a page's occupancy disagrees with
// the list it is on, or the live count disagrees with the bitmaps.
func (c *SizeClass) Check() {
	live, pages := 0, 0
	for _, l := range []*pageList{&c.empty, &c.partial, &c.full} {
		n := 0
		l.each(&c.arena, func(ix int32, p Page) bool {
			if p.Occupancy().list() != l.tag || p.hdr.list != l.tag {
				panic(fmt.Sprintf("slab: %s page %#x on %s list", p.Occupancy(), p.Base(), l.name()))
			}
			live += p.Live()
			n++
			return true
		})
		if n != l.n {
			panic(fmt.Sprintf("slab: %s list counts %d pages, links %d", l.name(), l.n, n))
		}
		pages += n
	}
	if live != c.live {
		panic(fmt.Sprintf("slab: %d live objects counted, bitmaps hold %d", c.live, live))
	}
	if pages != len(c.spans) {
		panic(fmt.Sprintf("slab: %d pages listed, %d indexed", pages, len(c.spans)))
	}
}
