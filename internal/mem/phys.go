// Package mem provides the kernel's memory collaborators: a physical page
// allocator with reference counts, two-level page tables stored in those
// physical pages, and validation of user-supplied address ranges.
package mem

import (
	"errors"
	"fmt"

	"github.com/GriffinCanCode/AgentOS/exokernel/internal/abi"
)

// ErrNoMem is returned when no physical page is available.
var ErrNoMem = errors.New("out of physical memory")

// PPN is a physical page number.
type PPN uint32

// Addr is the physical address of the page.
func (p PPN) Addr() uint32 { return uint32(p) << abi.PageShift }

// PhysMem is physical memory: one contiguous byte slab carved into pages.
// Page 0 is never handed out so a zero PPN can mean "no page".
type PhysMem struct {
	data []byte
	refs []uint32
	free []PPN
}

// NewPhysMem returns memory with npages pages, all free except page 0.
func NewPhysMem(npages int) *PhysMem {
	if npages < 2 {
		npages = 2
	}
	pm := &PhysMem{
		data: make([]byte, npages*abi.PageSize),
		refs: make([]uint32, npages),
		free: make([]PPN, 0, npages-1),
	}
	pm.refs[0] = 1
	for i := npages - 1; i >= 1; i-- {
		pm.free = append(pm.free, PPN(i))
	}
	return pm
}

// NPages is the size of memory in pages.
func (pm *PhysMem) NPages() int { return len(pm.refs) }

// FreeCount is the number of pages on the free list.
func (pm *PhysMem) FreeCount() int { return len(pm.free) }

// Alloc takes a page off the free list with a reference count of zero.
func (pm *PhysMem) Alloc(zero bool) (PPN, error) {
	n := len(pm.free)
	if n == 0 {
		return 0, ErrNoMem
	}
	p := pm.free[n-1]
	pm.free = pm.free[:n-1]
	if zero {
		clear(pm.Page(p))
	}
	return p, nil
}

// Free returns an unreferenced page to the free list.
func (pm *PhysMem) Free(p PPN) {
	if pm.refs[p] != 0 {
		panic(fmt.Sprintf("mem: freeing page %d with %d references", p, pm.refs[p]))
	}
	pm.free = append(pm.free, p)
}

// IncRef adds a reference to p.
func (pm *PhysMem) IncRef(p PPN) { pm.refs[p]++ }

// DecRef drops a reference to p, freeing it when none remain.
func (pm *PhysMem) DecRef(p PPN) {
	if pm.refs[p] == 0 {
		panic(fmt.Sprintf("mem: page %d reference count underflow", p))
	}
	pm.refs[p]--
	if pm.refs[p] == 0 {
		pm.Free(p)
	}
}

// Ref is the reference count of p.
func (pm *PhysMem) Ref(p PPN) int { return int(pm.refs[p]) }

// Page returns the bytes of p.
func (pm *PhysMem) Page(p PPN) []byte {
	off := int(p) * abi.PageSize
	return pm.data[off : off+abi.PageSize : off+abi.PageSize]
}

// Valid reports whether p names a page of this memory.
func (pm *PhysMem) Valid(p PPN) bool { return int(p) < len(pm.refs) }
