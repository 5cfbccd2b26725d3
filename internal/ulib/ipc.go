package ulib

import (
	"errors"

	"github.com/GriffinCanCode/AgentOS/exokernel/internal/abi"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/kernel"
)

// NoPage as a source or destination address means no page transfer.
const NoPage = abi.UTop

// Message is what IPCRecv delivers.
type Message struct {
	From  abi.EnvID
	Value uint32
	Perm  uint32 // nonzero if a page was mapped
}

// IPCTrySend attempts one send.
func IPCTrySend(c *kernel.CPU, to abi.EnvID, value, srcva, perm uint32) error {
	return result(c.Invoke(abi.IPCTrySend{Env: to, Value: value, SrcVA: srcva, Perm: perm}))
}

// IPCSend sends value, and the page at srcva unless it is NoPage, yielding
// until the target is receiving. Errors other than E_IPC_NOT_RECV panic.
func IPCSend(c *kernel.CPU, to abi.EnvID, value, srcva, perm uint32) {
	for {
		err := IPCTrySend(c, to, value, srcva, perm)
		if err == nil {
			return
		}
		if !errors.Is(err, abi.EIPCNotRecv) {
			Panicf("ipc_send: %v", err)
		}
		Yield(c)
	}
}

// IPCRecv blocks until a message arrives. A dstva below UTOP accepts a
// page there.
func IPCRecv(c *kernel.CPU, dstva uint32) (Message, error) {
	if err := result(c.Invoke(abi.IPCRecv{DstVA: dstva})); err != nil {
		return Message{}, err
	}
	self := Thisenv(c)
	return Message{From: self.IPCFrom, Value: self.IPCValue, Perm: self.IPCPerm}, nil
}
