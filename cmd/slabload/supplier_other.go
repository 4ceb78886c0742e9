//go:build !unix

package main

import (
	"github.com/funny-falcon/slabmalloc/slab"
	"github.com/funny-falcon/slabmalloc/supply"
)

func newSupplier(pageSize int) slab.Supplier {
	return supply.NewHeap(pageSize)
}
