package programs

import (
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/kernel"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/ulib"
)

// Hello greets and names its environment.
func Hello(c *kernel.CPU) {
	ulib.Printf(c, "hello, world\n")
	ulib.Printf(c, "i am environment %08x\n", uint32(ulib.Thisenv(c).ID))
}
