// Package slab implements the per-size-class half of the allocator: slab
// pages carved into equal slots and the SizeClass that files them.
//
// # Pages
//
// A page is one block of raw memory obtained from a Supplier. The slots
// occupy the front of the page; the header sits in the last HeaderSize bytes
// and holds the occupancy bitmap, the owner id and the list links. Links are
// int32 handles into the owning SizeClass's page arena, not pointers, so a
// page never references Go memory.
//
// # Lists
//
// Every page owned by a SizeClass is on exactly one of three lists: empty
// (no live slots), partial, or full. Allocation takes a slot from the head of
// partial, then from empty, and only then asks the Supplier for a new page.
// Freeing a slot moves its page back toward empty; how many empty pages are
// kept before they go back to the Supplier is Config.Reserve.
//
// # Thread Safety
//
// Nothing in this package locks. Callers sharing a SizeClass between
// goroutines must serialize every call themselves.
package slab
