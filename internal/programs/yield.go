package programs

import (
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/kernel"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/ulib"
)

// Yield gives up the CPU five times, reporting after each return.
func Yield(c *kernel.CPU) {
	id := uint32(ulib.Thisenv(c).ID)
	ulib.Printf(c, "Hello, I am environment %08x.\n", id)
	for i := 0; i < 5; i++ {
		ulib.Yield(c)
		ulib.Printf(c, "Back in environment %08x, iteration %d.\n", id, i)
	}
	ulib.Printf(c, "All done in environment %08x.\n", id)
}
