// Package ulib is the library user environments link against: typed
// system call wrappers, console output, IPC helpers, the page fault upcall
// and copy-on-write fork. Every function takes the calling environment's
// CPU.
package ulib

import (
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/abi"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/kernel"
)

// Perm bits most callers want for a private page.
const PermRW = abi.PteP | abi.PteU | abi.PteW

func result(r int32) error { return abi.ResultError(r) }

// Getenvid returns the caller's id.
func Getenvid(c *kernel.CPU) abi.EnvID {
	return abi.EnvID(c.Invoke(abi.Getenvid{}))
}

// Thisenv is the caller's record in the UENVS window. The id is cached in
// the user data page, as the child side of fork expects.
func Thisenv(c *kernel.CPU) abi.EnvInfo {
	id := abi.EnvID(c.Load32(abi.UData + abi.UDataThisEnv))
	if id == 0 {
		id = Getenvid(c)
		c.Store32(abi.UData+abi.UDataThisEnv, uint32(id))
	}
	return c.Env(abi.ENVX(id))
}

// Cgetc polls the console; 0 means no input.
func Cgetc(c *kernel.CPU) byte {
	return byte(c.Invoke(abi.Cgetc{}))
}

// Yield gives up the CPU.
func Yield(c *kernel.CPU) {
	c.Invoke(abi.Yield{})
}

// Exit destroys the caller. It does not return.
func Exit(c *kernel.CPU) {
	c.Invoke(abi.EnvDestroy{Env: 0})
}

// EnvDestroy destroys the caller or one of its children.
func EnvDestroy(c *kernel.CPU, id abi.EnvID) error {
	return result(c.Invoke(abi.EnvDestroy{Env: id}))
}

// PageAlloc maps a fresh zeroed page at va in id.
func PageAlloc(c *kernel.CPU, id abi.EnvID, va, perm uint32) error {
	return result(c.Invoke(abi.PageAlloc{Env: id, VA: va, Perm: perm}))
}

// PageMap maps src's page at srcva into dst at dstva.
func PageMap(c *kernel.CPU, src abi.EnvID, srcva uint32, dst abi.EnvID, dstva, perm uint32) error {
	return result(c.Invoke(abi.PageMap{SrcEnv: src, SrcVA: srcva, DstEnv: dst, DstVA: dstva, Perm: perm}))
}

// PageUnmap removes the mapping at va in id.
func PageUnmap(c *kernel.CPU, id abi.EnvID, va uint32) error {
	return result(c.Invoke(abi.PageUnmap{Env: id, VA: va}))
}

// Exofork creates a blank child. It returns the child's id to the caller;
// the child starts at the caller's saved eip and sees 0.
func Exofork(c *kernel.CPU) (abi.EnvID, error) {
	r := c.Invoke(abi.Exofork{})
	if r < 0 {
		return 0, result(r)
	}
	return abi.EnvID(r), nil
}

// EnvSetStatus makes id runnable or not runnable.
func EnvSetStatus(c *kernel.CPU, id abi.EnvID, status abi.EnvStatus) error {
	return result(c.Invoke(abi.EnvSetStatus{Env: id, Status: status}))
}

// EnvSetTrapframe replaces id's saved frame with tf.
func EnvSetTrapframe(c *kernel.CPU, id abi.EnvID, tf abi.TrapFrame) error {
	va := c.Push(tf.Marshal())
	defer c.Pop(abi.TrapFrameSize)
	return result(c.Invoke(abi.EnvSetTrapframe{Env: id, TF: va}))
}

// EnvSetPgfaultUpcall sets id's page fault entry point.
func EnvSetPgfaultUpcall(c *kernel.CPU, id abi.EnvID, upcall uint32) error {
	return result(c.Invoke(abi.EnvSetPgfaultUpcall{Env: id, Func: upcall}))
}
