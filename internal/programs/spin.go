package programs

import (
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/kernel"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/ulib"
)

// Spin forks a child that never yields; only the clock interrupt lets the
// parent run again and destroy it.
func Spin(c *kernel.CPU) {
	ulib.Printf(c, "I am the parent.  Forking the child...\n")
	child, err := ulib.Fork(c, func(c *kernel.CPU) {
		ulib.Printf(c, "I am the child.  Spinning...\n")
		for {
			c.Spin(1000)
		}
	})
	if err != nil {
		ulib.Panicf("fork: %v", err)
	}

	ulib.Printf(c, "I am the parent.  Running the child...\n")
	for i := 0; i < 8; i++ {
		ulib.Yield(c)
	}
	ulib.Printf(c, "I am the parent.  Killing the child...\n")
	if err := ulib.EnvDestroy(c, child); err != nil {
		ulib.Panicf("destroy: %v", err)
	}
}
