// Package bitmap holds the fixed-width slot occupancy words embedded in slab
// page headers. A set bit means the slot is occupied.
package bitmap

import "math/bits"

const Words = 8
const Bits = Words * 64

type Block [Words]uint64

const all = ^uint64(0)

// Init marks slots [0, capacity) free and every bit past capacity occupied,
// so FirstFree never reports a slot the page does not have.
func (b *Block) Init(capacity int) {
	if capacity > Bits {
		capacity = Bits
	} else if capacity < 0 {
		capacity = 0
	}
	n := capacity >> 6
	for i := range b {
		if i < n {
			b[i] = 0
		} else {
			b[i] = all
		}
	}
	if rest := uint(capacity & 63); rest != 0 {
		b[n] = all << rest
	}
}

func (b *Block) Set(i int) bool {
	r := b.Has(i)
	b[i>>6] |= 1 << uint(i&63)
	return !r
}

func (b *Block) Unset(i int) bool {
	r := b.Has(i)
	b[i>>6] &^= 1 << uint(i&63)
	return r
}

func (b *Block) Has(i int) bool {
	return b[i>>6]&(1<<uint(i&63)) != 0
}

// FirstFree returns the lowest clear bit. Full words are skipped whole.
func (b *Block) FirstFree() (int, bool) {
	for i, v := range b {
		if v == all {
			continue
		}
		return i<<6 | bits.TrailingZeros64(^v), true
	}
	return 0, false
}

func (b *Block) Count() int {
	n := 0
	for _, v := range b {
		n += bits.OnesCount64(v)
	}
	return n
}

func (b *Block) Full() bool {
	return b[0]&b[1]&b[2]&b[3]&b[4]&b[5]&b[6]&b[7] == all
}

// Unroll writes the occupied indices below limit into r in ascending order.
func (b *Block) Unroll(limit int, r *[Bits]uint16) []uint16 {
	k := 0
	for j, v := range b {
		span := j << 6
		if span >= limit {
			break
		}
		for ; v != 0; v &= v - 1 {
			ix := span + bits.TrailingZeros64(v)
			if ix >= limit {
				break
			}
			r[k] = uint16(ix)
			k++
		}
	}
	return r[:k]
}
