package zone

import (
	"github.com/pkg/errors"

	"github.com/funny-falcon/slabmalloc/alloc"
	"github.com/funny-falcon/slabmalloc/slab"
)

const DefaultPageSize = 4096

// DefaultReserve keeps one empty page per class so alternating
// alloc/free at a page boundary does not go to the supplier every time.
const DefaultReserve = 1

var DefaultClasses = []int{8, 16, 32, 64, 128, 256, 512, 1024, 2048}

type Config struct {
	// PageSize is the size of the pages the supplier hands out.
	// Zero means DefaultPageSize.
	PageSize int
	// MaxAlign is the alignment the supplier guarantees for pages and so the
	// largest alignment any class offers. Zero means the largest power of two
	// not above PageSize.
	MaxAlign int
	// Classes are the object sizes, strictly increasing multiples of 8.
	// Nil means DefaultClasses.
	Classes []int
	// Reserve is slab.Config.Reserve for every class.
	Reserve int
	// Large, when set, serves requests no class fits.
	Large alloc.Allocator
}

func DefaultConfig() Config {
	return Config{
		PageSize: DefaultPageSize,
		Classes:  DefaultClasses,
		Reserve:  DefaultReserve,
	}
}

func (c Config) withDefaults() Config {
	if c.PageSize == 0 {
		c.PageSize = DefaultPageSize
	}
	if c.MaxAlign == 0 {
		c.MaxAlign = 1
		for c.MaxAlign<<1 <= c.PageSize {
			c.MaxAlign <<= 1
		}
	}
	if c.Classes == nil {
		c.Classes = DefaultClasses
	}
	return c
}

func (c Config) Validate() error {
	c = c.withDefaults()
	if !isPow2(c.MaxAlign) {
		return errors.Wrapf(slab.ErrConfig, "zone: max alignment %d is not a power of two", c.MaxAlign)
	}
	if len(c.Classes) == 0 {
		return errors.Wrap(slab.ErrConfig, "zone: no size classes")
	}
	prev := 0
	for _, size := range c.Classes {
		if size <= prev {
			return errors.Wrapf(slab.ErrConfig, "zone: class %d after %d", size, prev)
		}
		if size&7 != 0 {
			return errors.Wrapf(slab.ErrConfig, "zone: class %d is not a multiple of 8", size)
		}
		prev = size
	}
	return nil
}

// naturalAlign is the largest power of two dividing size, capped at max.
func naturalAlign(size, max int) int {
	a := size & -size
	if a > max {
		a = max
	}
	return a
}

func isPow2(n int) bool {
	return n > 0 && n&(n-1) == 0
}
