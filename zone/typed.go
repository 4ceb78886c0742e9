package zone

import (
	"reflect"

	"github.com/modern-go/reflect2"
	"github.com/pkg/errors"

	"github.com/funny-falcon/slabmalloc/alloc"
)

// AllocOf allocates room for one value of the type pat points to:
//
//	ref, err := z.AllocOf((*Account)(nil))
//	var acc *Account
//	alloc.Get(ref, &acc)
//
// Slab memory is invisible to the garbage collector, so the type must not
// hold pointers.
func (z *Zone) AllocOf(pat interface{}) (alloc.Ptr, error) {
	size, align, err := layoutOf(pat)
	if err != nil {
		return 0, err
	}
	return z.Alloc(size, align)
}

func (z *Zone) FreeOf(ref alloc.Ptr, pat interface{}) error {
	size, align, err := layoutOf(pat)
	if err != nil {
		return err
	}
	return z.Dealloc(ref, size, align)
}

func layoutOf(pat interface{}) (int, int, error) {
	if pat == nil {
		return 0, 0, errors.Wrap(ErrUnsupported, "zone: nil type pattern")
	}
	typ := reflect2.TypeOf(pat)
	if pt, ok := typ.(reflect2.PtrType); ok {
		typ = pt.Elem()
	}
	t := typ.Type1()
	if hasPointers(t) {
		return 0, 0, errors.Wrapf(ErrUnsupported, "zone: %v holds pointers", t)
	}
	return int(t.Size()), t.Align(), nil
}

func hasPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return false
	case reflect.Array:
		return t.Len() > 0 && hasPointers(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if hasPointers(t.Field(i).Type) {
				return true
			}
		}
		return false
	}
	return true
}
