//go:build unix

package main

import (
	"flag"

	"github.com/funny-falcon/slabmalloc/slab"
	"github.com/funny-falcon/slabmalloc/supply"
)

var useMmap = flag.Bool("mmap", true, "take pages from anonymous mappings instead of the Go heap")

func newSupplier(pageSize int) slab.Supplier {
	if *useMmap {
		return supply.NewMmap(pageSize)
	}
	return supply.NewHeap(pageSize)
}
