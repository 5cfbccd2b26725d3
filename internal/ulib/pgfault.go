package ulib

import (
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/abi"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/kernel"
)

const (
	upcallName = "ulib.pgfault_upcall"
	cowName    = "ulib.cow_fault"
)

// pgfaultUpcall is the entry point the kernel jumps to on a fault. It
// calls the handler whose address is kept in the user data page; the CPU
// resumes the faulting code when it returns.
func pgfaultUpcall(c *kernel.CPU) {
	eip := c.Load32(abi.UData + abi.UDataPgfaultHandler)
	h, ok := c.Text().Lookup(eip)
	if !ok {
		Panicf("pgfault upcall: no handler at %08x", eip)
	}
	h(c)
}

// FaultFrame is the record of the fault being handled. Only valid at the
// top of a handler.
func FaultFrame(c *kernel.CPU) abi.UTrapframe {
	var b [abi.UTrapframeSize]byte
	c.Read(c.ESP(), b[:])
	utf, _ := abi.UnmarshalUTrapframe(b[:])
	return utf
}

// SetPgfaultHandler installs h as the caller's page fault handler. The
// first call also allocates the exception stack and registers the upcall.
func SetPgfaultHandler(c *kernel.CPU, h kernel.Routine) {
	setHandler(c, c.Text().Register(h))
}

func setHandler(c *kernel.CPU, eip uint32) {
	if c.Load32(abi.UData+abi.UDataPgfaultHandler) == 0 {
		if err := PageAlloc(c, 0, abi.UXStackTop-abi.PageSize, PermRW); err != nil {
			Panicf("set_pgfault_handler: %v", err)
		}
		upcall := c.Text().RegisterNamed(upcallName, pgfaultUpcall)
		if err := EnvSetPgfaultUpcall(c, 0, upcall); err != nil {
			Panicf("set_pgfault_handler: %v", err)
		}
	}
	c.Store32(abi.UData+abi.UDataPgfaultHandler, eip)
}

// cowFault gives the caller a private writable copy of a copy-on-write
// page. Any other fault is fatal.
func cowFault(c *kernel.CPU) {
	utf := FaultFrame(c)
	addr := abi.RoundDown(utf.FaultVA, abi.PageSize)
	if utf.Err&abi.FECWr == 0 || c.UVPT(abi.PGNUM(addr))&abi.PteCOW == 0 {
		Panicf("pgfault: not a write to a copy-on-write page [0x%08x]", utf.FaultVA)
	}

	if err := PageAlloc(c, 0, abi.PFTemp, PermRW); err != nil {
		Panicf("pgfault: page_alloc: %v", err)
	}
	buf := make([]byte, abi.PageSize)
	c.Read(addr, buf)
	c.Write(abi.PFTemp, buf)
	if err := PageMap(c, 0, abi.PFTemp, 0, addr, PermRW); err != nil {
		Panicf("pgfault: page_map: %v", err)
	}
	if err := PageUnmap(c, 0, abi.PFTemp); err != nil {
		Panicf("pgfault: page_unmap: %v", err)
	}
}
