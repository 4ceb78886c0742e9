package slab

import "sort"

// arena maps int32 handles to the pages a SizeClass owns. Handles of
// released pages are reused.
type arena struct {
	pages []Page
	free  []int32
}

func (a *arena) add(p Page) int32 {
	if n := len(a.free); n > 0 {
		ix := a.free[n-1]
		a.free = a.free[:n-1]
		a.pages[ix] = p
		return ix
	}
	a.pages = append(a.pages, p)
	return int32(len(a.pages) - 1)
}

func (a *arena) drop(ix int32) Page {
	p := a.pages[ix]
	a.pages[ix] = Page{}
	a.free = append(a.free, ix)
	return p
}

func (a *arena) page(ix int32) Page {
	p := a.pages[ix]
	if p.hdr == nil {
		panic("slab: handle of released page")
	}
	p.check()
	return p
}

// pageList is an intrusive doubly linked list threaded through page headers.
type pageList struct {
	head int32
	n    int
	tag  uint8
}

func newPageList(tag uint8) pageList {
	return pageList{head: nilPage, tag: tag}
}

func (l *pageList) isEmpty() bool {
	return l.head == nilPage
}

// insert puts page ix at the front of the list. The page must be detached.
func (l *pageList) insert(a *arena, ix int32) {
	h := a.page(ix).hdr
	if h.list != listNone || h.prev != nilPage || h.next != nilPage {
		panic("slab: pageList.insert of linked page")
	}
	h.next = l.head
	if l.head != nilPage {
		a.page(l.head).hdr.prev = ix
	}
	l.head = ix
	h.list = l.tag
	l.n++
}

func (l *pageList) remove(a *arena, ix int32) {
	h := a.page(ix).hdr
	if h.list != l.tag {
		panic("slab: pageList.remove of page on another list")
	}
	if h.prev == nilPage {
		l.head = h.next
	} else {
		a.page(h.prev).hdr.next = h.next
	}
	if h.next != nilPage {
		a.page(h.next).hdr.prev = h.prev
	}
	h.prev, h.next, h.list = nilPage, nilPage, listNone
	l.n--
}

func (l *pageList) pop(a *arena) int32 {
	ix := l.head
	if ix != nilPage {
		l.remove(a, ix)
	}
	return ix
}

func (l *pageList) each(a *arena, fn func(ix int32, p Page) bool) bool {
	for ix := l.head; ix != nilPage; {
		p := a.page(ix)
		next := p.hdr.next
		if !fn(ix, p) {
			return false
		}
		ix = next
	}
	return true
}

// span indexes a page by its base address for owner lookup on free.
type span struct {
	base uintptr
	ix   int32
}

type spanIndex []span

func (s spanIndex) search(base uintptr) int {
	return sort.Search(len(s), func(i int) bool { return s[i].base >= base })
}

func (s *spanIndex) insert(base uintptr, ix int32) {
	i := s.search(base)
	*s = append(*s, span{})
	copy((*s)[i+1:], (*s)[i:])
	(*s)[i] = span{base: base, ix: ix}
}

func (s *spanIndex) remove(base uintptr) {
	i := s.search(base)
	if i == len(*s) || (*s)[i].base != base {
		panic("slab: span index lost a page")
	}
	*s = append((*s)[:i], (*s)[i+1:]...)
}

// find returns the page whose [base, base+pageSize) range holds addr.
func (s spanIndex) find(addr uintptr, pageSize int) (int32, bool) {
	i := sort.Search(len(s), func(i int) bool { return s[i].base > addr }) - 1
	if i < 0 || addr-s[i].base >= uintptr(pageSize) {
		return nilPage, false
	}
	return s[i].ix, true
}
