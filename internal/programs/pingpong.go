package programs

import (
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/kernel"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/ulib"
)

const pingpongRounds = 10

// Pingpong forks a child and bounces an incrementing counter between the
// two until it reaches ten.
func Pingpong(c *kernel.CPU) {
	who, err := ulib.Fork(c, pong)
	if err != nil {
		ulib.Panicf("fork: %v", err)
	}
	ulib.Printf(c, "send 0 from %x to %x\n", uint32(ulib.Getenvid(c)), uint32(who))
	ulib.IPCSend(c, who, 0, ulib.NoPage, 0)
	pong(c)
}

func pong(c *kernel.CPU) {
	for {
		msg, err := ulib.IPCRecv(c, ulib.NoPage)
		if err != nil {
			ulib.Panicf("ipc_recv: %v", err)
		}
		ulib.Printf(c, "%x got %d from %x\n", uint32(ulib.Getenvid(c)), msg.Value, uint32(msg.From))
		if msg.Value == pingpongRounds {
			return
		}
		next := msg.Value + 1
		ulib.IPCSend(c, msg.From, next, ulib.NoPage, 0)
		if next == pingpongRounds {
			return
		}
	}
}
