package ulib

import (
	"fmt"

	"github.com/GriffinCanCode/AgentOS/exokernel/internal/abi"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/kernel"
)

// chunk bounds how much of the stack one Cputs borrows.
const chunk = 256

// Cputs writes s to the console.
func Cputs(c *kernel.CPU, s string) {
	for len(s) > 0 {
		n := min(len(s), chunk)
		va := c.Push([]byte(s[:n]))
		c.Invoke(abi.Cputs{VA: va, Len: uint32(n)})
		c.Pop(n)
		s = s[n:]
	}
}

// Printf formats to the console.
func Printf(c *kernel.CPU, format string, args ...any) {
	Cputs(c, fmt.Sprintf(format, args...))
}

// Panicf aborts the caller. The kernel reports the message and destroys
// the environment.
func Panicf(format string, args ...any) {
	panic(fmt.Sprintf(format, args...))
}
