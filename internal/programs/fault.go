package programs

import (
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/kernel"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/ulib"
)

// Faultdie faults with a handler installed; the handler reports the fault
// and destroys its own environment.
func Faultdie(c *kernel.CPU) {
	ulib.SetPgfaultHandler(c, func(c *kernel.CPU) {
		utf := ulib.FaultFrame(c)
		ulib.Printf(c, "i faulted at va %x, err %x\n", utf.FaultVA, utf.Err&7)
		_ = ulib.EnvDestroy(c, ulib.Getenvid(c))
	})
	c.Store32(0xDeadBeef, 0)
}

// Faultread reads address zero with no handler.
func Faultread(c *kernel.CPU) {
	ulib.Printf(c, "I read %08x from location 0!\n", c.Load32(0))
}

// Faultwrite writes address zero with no handler.
func Faultwrite(c *kernel.CPU) {
	c.Store32(0, 0)
}
