package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/GriffinCanCode/AgentOS/exokernel/internal/abi"
)

func TestIPCFirstSenderWins(t *testing.T) {
	r := newRig(t, nil)

	var first, second abi.EnvID
	recv := r.spawn(t, "receiver", func(c *CPU) {
		assert.EqualValues(t, 0, c.Invoke(abi.IPCRecv{DstVA: abi.UTop}))
		info := c.Env(abi.ENVX(self(c)))
		assert.EqualValues(t, 1, info.IPCValue)
		assert.Equal(t, first, info.IPCFrom)
		assert.Zero(t, info.IPCPerm)
	})
	first = r.spawn(t, "first", func(c *CPU) {
		assert.EqualValues(t, 0, c.Invoke(abi.IPCTrySend{Env: recv, Value: 1, SrcVA: abi.UTop}))
		c.Invoke(abi.Yield{})
	})
	second = r.spawn(t, "second", func(c *CPU) {
		assert.Equal(t, abi.EIPCNotRecv.Result(), c.Invoke(abi.IPCTrySend{Env: recv, Value: 2, SrcVA: abi.UTop}))
	})
	r.run(t)

	assert.NotEqual(t, first, second)
	assert.Contains(t, r.transitions(recv), abi.EnvNotRunnable)
}

func TestIPCRejectedSendLeavesTargetBlocked(t *testing.T) {
	r := newRig(t, nil)

	recv := r.spawn(t, "receiver", func(c *CPU) {
		assert.EqualValues(t, 0, c.Invoke(abi.IPCRecv{DstVA: scratch2}))
		info := c.Env(abi.ENVX(self(c)))
		assert.EqualValues(t, permRO, info.IPCPerm)
		assert.EqualValues(t, 5, info.IPCValue)
		assert.EqualValues(t, 0xfeed, c.Load32(scratch2))
	})
	r.spawn(t, "sender", func(c *CPU) {
		assert.EqualValues(t, 0, c.Invoke(abi.PageAlloc{VA: scratch, Perm: permRW}))
		c.Store32(scratch, 0xfeed)
		assert.EqualValues(t, 0, c.Invoke(abi.PageAlloc{VA: scratch + 2*abi.PageSize, Perm: permRO}))

		for _, call := range []abi.IPCTrySend{
			{Env: recv, Value: 5, SrcVA: scratch + 1, Perm: permRO},
			{Env: recv, Value: 5, SrcVA: scratch + 8*abi.PageSize, Perm: permRO},
			{Env: recv, Value: 5, SrcVA: scratch, Perm: abi.PteP},
			{Env: recv, Value: 5, SrcVA: scratch + 2*abi.PageSize, Perm: permRW},
		} {
			assert.Equal(t, abi.EInval.Result(), c.Invoke(call), "%+v", call)
		}
		info := c.Env(abi.ENVX(recv))
		assert.True(t, info.IPCRecving)
		assert.Equal(t, abi.EnvNotRunnable, info.Status)

		assert.Equal(t, abi.EBadEnv.Result(), c.Invoke(abi.IPCTrySend{Env: 0x5555, SrcVA: abi.UTop}))
		assert.EqualValues(t, 0, c.Invoke(abi.IPCTrySend{Env: recv, Value: 5, SrcVA: scratch, Perm: permRO}))
	})
	r.run(t)
}

func TestIPCPageToReceiverWithoutDestination(t *testing.T) {
	r := newRig(t, nil)

	recv := r.spawn(t, "receiver", func(c *CPU) {
		assert.EqualValues(t, 0, c.Invoke(abi.IPCRecv{DstVA: abi.UTop}))
		assert.Zero(t, c.Env(abi.ENVX(self(c))).IPCPerm)
		assert.Zero(t, c.UVPT(abi.PGNUM(scratch))&abi.PteP)
	})
	r.spawn(t, "sender", func(c *CPU) {
		assert.EqualValues(t, 0, c.Invoke(abi.PageAlloc{VA: scratch, Perm: permRW}))
		assert.EqualValues(t, 0, c.Invoke(abi.IPCTrySend{Env: recv, Value: 9, SrcVA: scratch, Perm: permRW}))
	})
	r.run(t)
}

func TestIPCRecvRejectsMisalignedDestination(t *testing.T) {
	r := newRig(t, nil)
	r.spawn(t, "receiver", func(c *CPU) {
		assert.Equal(t, abi.EInval.Result(), c.Invoke(abi.IPCRecv{DstVA: scratch + 12}))
		assert.Equal(t, abi.EnvRunning, c.Env(abi.ENVX(self(c))).Status)
	})
	r.run(t)
}
