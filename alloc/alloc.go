// Package alloc is the generic allocation interface the zone allocator
// implements, with helpers for turning addresses into typed pointers.
package alloc

import (
	"unsafe"

	"github.com/modern-go/reflect2"
)

// Ptr is the address of an allocated object.
type Ptr uintptr

type Allocator interface {
	Alloc(size, align int) (Ptr, error)
	// Dealloc must be called with the size and align given to Alloc.
	Dealloc(ptr Ptr, size, align int) error
}

// Owner is implemented by allocators that can tell their live objects from
// foreign addresses.
type Owner interface {
	Owns(ptr Ptr) bool
}

// Get stores ref into the pointer variable ptr points to:
//
//	var acc *Account
//	alloc.Get(ref, &acc)
func Get(ref Ptr, ptr interface{}) {
	*(*unsafe.Pointer)(reflect2.PtrOf(ptr)) = unsafe.Pointer(ref)
}

func GetPtr(ref Ptr) unsafe.Pointer {
	return unsafe.Pointer(ref)
}

// Bytes is the n bytes at ref.
func Bytes(ref Ptr, n int) []byte {
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(ref)), n)
}

func Zero(ref Ptr, n int) {
	b := Bytes(ref, n)
	for i := range b {
		b[i] = 0
	}
}
