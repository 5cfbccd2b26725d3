package mem

import (
	"encoding/binary"

	"github.com/GriffinCanCode/AgentOS/exokernel/internal/abi"
)

// PageDir is a two-level address space. The directory and every page
// table occupy physical pages of the backing memory, so building tables
// can run out of memory like any other allocation.
type PageDir struct {
	pm  *PhysMem
	dir PPN
}

// NewPageDir allocates an empty address space.
func NewPageDir(pm *PhysMem) (*PageDir, error) {
	p, err := pm.Alloc(true)
	if err != nil {
		return nil, err
	}
	pm.IncRef(p)
	return &PageDir{pm: pm, dir: p}, nil
}

// Phys is the backing memory.
func (d *PageDir) Phys() *PhysMem { return d.pm }

func entry(page []byte, idx uint32) uint32 {
	return binary.LittleEndian.Uint32(page[idx*4:])
}

func setEntry(page []byte, idx, v uint32) {
	binary.LittleEndian.PutUint32(page[idx*4:], v)
}

// PDE returns directory entry pdx.
func (d *PageDir) PDE(pdx uint32) uint32 {
	return entry(d.pm.Page(d.dir), pdx)
}

// PTE returns the page table entry for va, or 0 if its table is absent.
func (d *PageDir) PTE(va uint32) uint32 {
	pde := d.PDE(abi.PDX(va))
	if pde&abi.PteP == 0 {
		return 0
	}
	return entry(d.pm.Page(PPN(abi.PTEAddr(pde)>>abi.PageShift)), abi.PTX(va))
}

// walk returns the table holding the entry for va, creating it if asked.
func (d *PageDir) walk(va uint32, create bool) ([]byte, error) {
	dir := d.pm.Page(d.dir)
	pdx := abi.PDX(va)
	pde := entry(dir, pdx)
	if pde&abi.PteP == 0 {
		if !create {
			return nil, nil
		}
		p, err := d.pm.Alloc(true)
		if err != nil {
			return nil, err
		}
		d.pm.IncRef(p)
		pde = p.Addr() | abi.PteP | abi.PteW | abi.PteU
		setEntry(dir, pdx, pde)
	}
	return d.pm.Page(PPN(abi.PTEAddr(pde) >> abi.PageShift)), nil
}

// Walk reports whether a page table covering va exists, creating one if
// create is set.
func (d *PageDir) Walk(va uint32, create bool) (bool, error) {
	tbl, err := d.walk(va, create)
	return tbl != nil, err
}

// Lookup returns the page mapped at va and its entry.
func (d *PageDir) Lookup(va uint32) (PPN, uint32, bool) {
	pte := d.PTE(va)
	if pte&abi.PteP == 0 {
		return 0, 0, false
	}
	return PPN(abi.PTEAddr(pte) >> abi.PageShift), pte, true
}

// Insert maps p at va with perm, replacing whatever was mapped there.
// Re-inserting the page already mapped at va only changes permissions.
func (d *PageDir) Insert(p PPN, va uint32, perm uint32) error {
	tbl, err := d.walk(va, true)
	if err != nil {
		return err
	}
	// take the new reference first so replacing a page by itself never
	// drops it to zero
	d.pm.IncRef(p)
	idx := abi.PTX(va)
	if old := entry(tbl, idx); old&abi.PteP != 0 {
		setEntry(tbl, idx, 0)
		d.pm.DecRef(PPN(abi.PTEAddr(old) >> abi.PageShift))
	}
	setEntry(tbl, idx, p.Addr()|perm&abi.PteFlags|abi.PteP)
	return nil
}

// Remove unmaps va; it does nothing if nothing is mapped.
func (d *PageDir) Remove(va uint32) {
	tbl, _ := d.walk(va, false)
	if tbl == nil {
		return
	}
	idx := abi.PTX(va)
	old := entry(tbl, idx)
	if old&abi.PteP == 0 {
		return
	}
	setEntry(tbl, idx, 0)
	d.pm.DecRef(PPN(abi.PTEAddr(old) >> abi.PageShift))
}

// Each calls fn for every present mapping below limit, in address order.
func (d *PageDir) Each(limit uint32, fn func(va uint32, p PPN, pte uint32)) {
	dir := d.pm.Page(d.dir)
	for pdx := uint32(0); pdx < abi.NPDEntries; pdx++ {
		base := abi.PGADDR(pdx, 0, 0)
		if uint64(base) >= uint64(limit) {
			return
		}
		pde := entry(dir, pdx)
		if pde&abi.PteP == 0 {
			continue
		}
		tbl := d.pm.Page(PPN(abi.PTEAddr(pde) >> abi.PageShift))
		for ptx := uint32(0); ptx < abi.NPTEntries; ptx++ {
			va := abi.PGADDR(pdx, ptx, 0)
			if uint64(va) >= uint64(limit) {
				return
			}
			if pte := entry(tbl, ptx); pte&abi.PteP != 0 {
				fn(va, PPN(abi.PTEAddr(pte)>>abi.PageShift), pte)
			}
		}
	}
}

// Free unmaps everything and releases the page tables and the directory.
func (d *PageDir) Free() {
	dir := d.pm.Page(d.dir)
	for pdx := uint32(0); pdx < abi.NPDEntries; pdx++ {
		pde := entry(dir, pdx)
		if pde&abi.PteP == 0 {
			continue
		}
		tp := PPN(abi.PTEAddr(pde) >> abi.PageShift)
		tbl := d.pm.Page(tp)
		for ptx := uint32(0); ptx < abi.NPTEntries; ptx++ {
			if pte := entry(tbl, ptx); pte&abi.PteP != 0 {
				setEntry(tbl, ptx, 0)
				d.pm.DecRef(PPN(abi.PTEAddr(pte) >> abi.PageShift))
			}
		}
		setEntry(dir, pdx, 0)
		d.pm.DecRef(tp)
	}
	d.pm.DecRef(d.dir)
	d.dir = 0
}
