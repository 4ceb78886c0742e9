package alloc

import "sync"

// Locked serializes every call into A with one mutex.
type Locked struct {
	sync.Mutex
	A Allocator
}

func (l *Locked) Alloc(size, align int) (Ptr, error) {
	l.Lock()
	defer l.Unlock()
	return l.A.Alloc(size, align)
}

func (l *Locked) Dealloc(ptr Ptr, size, align int) error {
	l.Lock()
	defer l.Unlock()
	return l.A.Dealloc(ptr, size, align)
}

// Do runs f with the lock held.
func (l *Locked) Do(f func(a Allocator)) {
	l.Lock()
	defer l.Unlock()
	f(l.A)
}
