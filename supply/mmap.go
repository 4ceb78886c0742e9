//go:build unix

package supply

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const DefaultRegionPages = 64

// Mmap carves pages out of anonymous private mappings of RegionPages pages
// each. Pages are aligned to the OS page size or to PageSize, whichever is
// smaller, when PageSize is a power of two.
type Mmap struct {
	PageSize    int
	RegionPages int
	// Max bounds the pages outstanding at once; 0 means no bound.
	Max int

	regions [][]byte
	cur     []byte
	free    [][]byte
	out     int
}

func NewMmap(pageSize int) *Mmap {
	return &Mmap{PageSize: pageSize, RegionPages: DefaultRegionPages}
}

func (m *Mmap) AcquirePage(class int) ([]byte, error) {
	if m.PageSize <= 0 {
		return nil, errors.Errorf("supply: page size %d", m.PageSize)
	}
	if m.Max > 0 && m.out >= m.Max {
		return nil, errors.Wrapf(ErrExhausted, "%d pages outstanding", m.out)
	}
	if n := len(m.free); n > 0 {
		page := m.free[n-1]
		m.free = m.free[:n-1]
		m.out++
		return page, nil
	}
	if len(m.cur) < m.PageSize {
		if err := m.mapRegion(); err != nil {
			return nil, err
		}
	}
	page := m.cur[:m.PageSize:m.PageSize]
	m.cur = m.cur[m.PageSize:]
	m.out++
	return page, nil
}

func (m *Mmap) mapRegion() error {
	n := m.RegionPages
	if n <= 0 {
		n = DefaultRegionPages
	}
	region, err := unix.Mmap(-1, 0, n*m.PageSize, unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return errors.Wrapf(ErrExhausted, "mmap %d bytes: %v", n*m.PageSize, err)
	}
	m.regions = append(m.regions, region)
	m.cur = region
	return nil
}

func (m *Mmap) ReleasePage(page []byte) {
	if len(page) != m.PageSize || !m.owns(page) {
		panic("supply: release of a page not handed out")
	}
	m.out--
	m.free = append(m.free, page)
}

func (m *Mmap) owns(page []byte) bool {
	b := base(page)
	for _, r := range m.regions {
		if lo := base(r); b >= lo && b < lo+uintptr(len(r)) {
			return true
		}
	}
	return false
}

// Outstanding is the number of pages handed out and not yet released.
func (m *Mmap) Outstanding() int {
	return m.out
}

// Close unmaps every region. Pages still handed out become invalid.
func (m *Mmap) Close() error {
	var first error
	for _, r := range m.regions {
		if err := unix.Munmap(r); err != nil && first == nil {
			first = errors.Wrap(err, "supply: munmap")
		}
	}
	m.regions, m.cur, m.free, m.out = nil, nil, nil, 0
	return first
}
