package mem

import (
	"errors"
	"fmt"

	"github.com/GriffinCanCode/AgentOS/exokernel/internal/abi"
)

// ErrFault is wrapped by every access violation.
var ErrFault = errors.New("memory fault")

// FaultError names the first address of a range that failed a check.
type FaultError struct {
	VA   uint32
	Perm uint32
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("memory fault at va %08x (perm %#x)", e.VA, e.Perm)
}

func (e *FaultError) Unwrap() error { return ErrFault }

// UserCheck verifies that every page of [va, va+n) lies below ULIM and is
// mapped with at least perm|PTE_P.
func UserCheck(d *PageDir, va, n uint32, perm uint32) error {
	perm |= abi.PteP
	end := uint64(va) + uint64(n)
	for a := uint64(abi.RoundDown(va, abi.PageSize)); a < end; a += abi.PageSize {
		if a >= abi.ULim || d.PTE(uint32(a))&perm != perm {
			return &FaultError{VA: uint32(max(a, uint64(va))), Perm: perm}
		}
	}
	return nil
}

// Translate returns the physical page and offset backing va.
func (d *PageDir) Translate(va uint32) (PPN, uint32, bool) {
	p, _, ok := d.Lookup(va)
	return p, abi.PGOFF(va), ok
}

// Read copies len(buf) bytes at va into buf, ignoring permissions. The
// range must already have been checked.
func (d *PageDir) Read(va uint32, buf []byte) error {
	for len(buf) > 0 {
		p, off, ok := d.Translate(va)
		if !ok {
			return &FaultError{VA: va}
		}
		n := copy(buf, d.pm.Page(p)[off:])
		buf = buf[n:]
		va += uint32(n)
	}
	return nil
}

// Write copies buf to va, ignoring permissions. The range must already
// have been checked.
func (d *PageDir) Write(va uint32, buf []byte) error {
	for len(buf) > 0 {
		p, off, ok := d.Translate(va)
		if !ok {
			return &FaultError{VA: va}
		}
		n := copy(d.pm.Page(p)[off:], buf)
		buf = buf[n:]
		va += uint32(n)
	}
	return nil
}
