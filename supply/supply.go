// Package supply provides page sources for slab size classes.
//
// Every supplier here hands out pages of a fixed PageSize and takes back
// only pages it handed out. None of them lock.
package supply

import "github.com/pkg/errors"

// ErrExhausted is returned by AcquirePage when the page budget is used up.
var ErrExhausted = errors.New("supply: no pages left")

// Source is the page supplier contract consumed by slab.SizeClass.
type Source interface {
	AcquirePage(class int) ([]byte, error)
	ReleasePage(page []byte)
}

// largest power of two not above n
func floorPow2(n int) int {
	p := 1
	for p<<1 <= n && p<<1 > 0 {
		p <<= 1
	}
	return p
}

const poisonByte = 0xa5

func poison(page []byte) {
	for i := range page {
		page[i] = poisonByte
	}
}
