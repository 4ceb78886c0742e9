package slab

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrUnsupported reports a size or alignment no size class serves.
	ErrUnsupported = errors.New("slab: unsupported size or alignment")

	// ErrOutOfMemory reports that the Supplier could not produce a page.
	ErrOutOfMemory = errors.New("slab: out of memory")

	// ErrAddressNotOwned reports an address outside every page the allocator tracks.
	ErrAddressNotOwned = errors.New("slab: address not owned")

	// ErrInvalidAddress reports an address inside a page that does not name a live slot.
	ErrInvalidAddress = errors.New("slab: invalid address")

	// ErrConfig reports a page size, object size or alignment that cannot work together.
	ErrConfig = errors.New("slab: bad configuration")
)

// supplyError is ErrOutOfMemory carrying the Supplier's own error.
type supplyError struct {
	size  int
	cause error
}

func (e *supplyError) Error() string {
	return fmt.Sprintf("%v: %d byte class: %v", ErrOutOfMemory, e.size, e.cause)
}

func (e *supplyError) Is(target error) bool {
	return target == ErrOutOfMemory
}

func (e *supplyError) Unwrap() error {
	return e.cause
}
