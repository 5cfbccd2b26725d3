package ulib

import (
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/abi"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/kernel"
)

// Fork creates a copy-on-write child that runs child and then exits. It
// returns the child's id.
//
// The child starts from the caller's frame with the instruction pointer
// swapped for an entry point that records the child's id in its (copied)
// user data page and calls child, so the child's first write already
// exercises the copy-on-write handler.
func Fork(c *kernel.CPU, child kernel.Routine) (abi.EnvID, error) {
	setHandler(c, c.Text().RegisterNamed(cowName, cowFault))

	entry := c.Text().Register(func(c *kernel.CPU) {
		c.Store32(abi.UData+abi.UDataThisEnv, uint32(Getenvid(c)))
		child(c)
		Exit(c)
	})
	resume := c.EIP()
	c.SetEIP(entry)
	id, err := Exofork(c)
	c.SetEIP(resume)
	if err != nil {
		return 0, err
	}

	limit := uint32(abi.UXStackTop - abi.PageSize)
	for pdx := uint32(0); pdx < abi.PDX(abi.UTop); pdx++ {
		if c.UVPD(pdx)&abi.PteP == 0 {
			continue
		}
		for ptx := uint32(0); ptx < abi.NPTEntries; ptx++ {
			va := abi.PGADDR(pdx, ptx, 0)
			if va >= limit {
				break
			}
			if err := duppage(c, id, va); err != nil {
				return 0, err
			}
		}
	}

	if err := PageAlloc(c, id, abi.UXStackTop-abi.PageSize, PermRW); err != nil {
		return 0, err
	}
	if err := EnvSetPgfaultUpcall(c, id, Thisenv(c).PgfaultUpcall); err != nil {
		return 0, err
	}
	if err := EnvSetStatus(c, id, abi.EnvRunnable); err != nil {
		return 0, err
	}
	return id, nil
}

// duppage maps the caller's page at va into child. Shared pages keep
// their permissions; writable and copy-on-write pages become
// copy-on-write on both sides, child first; read-only pages stay
// read-only.
func duppage(c *kernel.CPU, child abi.EnvID, va uint32) error {
	pte := c.UVPT(abi.PGNUM(va))
	if pte&abi.PteP == 0 {
		return nil
	}

	switch {
	case pte&abi.PteShare != 0:
		return PageMap(c, 0, va, child, va, pte&abi.PteSyscall)
	case pte&(abi.PteW|abi.PteCOW) != 0:
		const cow = abi.PteU | abi.PteP | abi.PteCOW
		if err := PageMap(c, 0, va, child, va, cow); err != nil {
			return err
		}
		return PageMap(c, 0, va, 0, va, cow)
	default:
		return PageMap(c, 0, va, child, va, abi.PteU|abi.PteP)
	}
}
