package programs

import (
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/kernel"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/ulib"
)

const primesLimit = 50

// Primes is the concurrent prime sieve: a generator feeds 2..50 into a
// pipeline where each stage prints its prime, forks the next stage and
// forwards what its prime does not divide. The pipeline ends blocked in
// ipc_recv.
func Primes(c *kernel.CPU) {
	id, err := ulib.Fork(c, primeproc)
	if err != nil {
		ulib.Panicf("fork: %v", err)
	}
	for i := uint32(2); i <= primesLimit; i++ {
		ulib.IPCSend(c, id, i, ulib.NoPage, 0)
	}
}

func primeproc(c *kernel.CPU) {
	msg, err := ulib.IPCRecv(c, ulib.NoPage)
	if err != nil {
		ulib.Panicf("ipc_recv: %v", err)
	}
	p := msg.Value
	ulib.Printf(c, "%d\n", p)

	next, err := ulib.Fork(c, primeproc)
	if err != nil {
		ulib.Panicf("fork: %v", err)
	}
	for {
		msg, err := ulib.IPCRecv(c, ulib.NoPage)
		if err != nil {
			ulib.Panicf("ipc_recv: %v", err)
		}
		if msg.Value%p != 0 {
			ulib.IPCSend(c, next, msg.Value, ulib.NoPage, 0)
		}
	}
}
