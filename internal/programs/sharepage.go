package programs

import (
	"bytes"

	"github.com/GriffinCanCode/AgentOS/exokernel/internal/abi"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/kernel"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/ulib"
)

const (
	sharedVA  = 0x10000000
	privateVA = sharedVA + abi.PageSize
	sendVA    = sharedVA + 2*abi.PageSize
	recvVA    = sharedVA + 3*abi.PageSize
)

// Sharepage shows the three ways a page can cross fork and IPC: a
// PTE_SHARE page stays shared, a private page is copied on write, and a
// page sent over IPC is mapped into the receiver.
func Sharepage(c *kernel.CPU) {
	if err := ulib.PageAlloc(c, 0, sharedVA, ulib.PermRW|abi.PteShare); err != nil {
		ulib.Panicf("page_alloc: %v", err)
	}
	if err := ulib.PageAlloc(c, 0, privateVA, ulib.PermRW); err != nil {
		ulib.Panicf("page_alloc: %v", err)
	}
	writeString(c, sharedVA, "parent was here")
	writeString(c, privateVA, "before fork")

	if _, err := ulib.Fork(c, sharepageChild); err != nil {
		ulib.Panicf("fork: %v", err)
	}

	msg, err := ulib.IPCRecv(c, recvVA)
	if err != nil {
		ulib.Panicf("ipc_recv: %v", err)
	}
	ulib.Printf(c, "parent: shared page says %q\n", readString(c, sharedVA))
	ulib.Printf(c, "parent: private page says %q\n", readString(c, privateVA))
	if msg.Perm != 0 {
		ulib.Printf(c, "parent: received page says %q\n", readString(c, recvVA))
	}
}

func sharepageChild(c *kernel.CPU) {
	ulib.Printf(c, "child: shared page says %q\n", readString(c, sharedVA))
	writeString(c, sharedVA, "child was here")
	writeString(c, privateVA, "child private")

	if err := ulib.PageAlloc(c, 0, sendVA, ulib.PermRW); err != nil {
		ulib.Panicf("page_alloc: %v", err)
	}
	writeString(c, sendVA, "sent by ipc")
	ulib.IPCSend(c, ulib.Thisenv(c).ParentID, 0, sendVA, ulib.PermRW)
}

func writeString(c *kernel.CPU, va uint32, s string) {
	c.Write(va, append([]byte(s), 0))
}

func readString(c *kernel.CPU, va uint32) string {
	buf := make([]byte, 64)
	c.Read(va, buf)
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	return string(buf)
}
