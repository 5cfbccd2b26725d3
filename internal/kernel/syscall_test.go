package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/GriffinCanCode/AgentOS/exokernel/internal/abi"
)

const (
	permRW   = abi.PteP | abi.PteU | abi.PteW
	permRO   = abi.PteP | abi.PteU
	scratch  = 0x10000000
	scratch2 = scratch + abi.PageSize
)

// exofork creates a not-yet-runnable child that will start in fn, with a
// stack page so it can make system calls.
func exofork(t *testing.T, c *CPU, fn Routine) abi.EnvID {
	resume := c.EIP()
	c.SetEIP(c.Text().Register(fn))
	id := abi.EnvID(c.Invoke(abi.Exofork{}))
	c.SetEIP(resume)
	if !assert.Greater(t, int32(id), int32(0)) {
		return 0
	}
	assert.EqualValues(t, 0, c.Invoke(abi.PageAlloc{Env: id, VA: abi.UStackTop - abi.PageSize, Perm: permRW}))
	return id
}

func TestPageAllocRejectsWithoutLeaking(t *testing.T) {
	r := newRig(t, nil)
	r.spawn(t, "alloc", func(c *CPU) {
		free := r.k.phys.FreeCount()
		for _, call := range []abi.PageAlloc{
			{VA: abi.UTop, Perm: permRW},
			{VA: scratch + 1, Perm: permRW},
			{VA: scratch, Perm: abi.PteP | abi.PteW},
			{VA: scratch, Perm: permRW | 0x080},
		} {
			assert.Equal(t, abi.EInval.Result(), c.Invoke(call), "%+v", call)
		}
		assert.Equal(t, abi.EBadEnv.Result(), c.Invoke(abi.PageAlloc{Env: 0x7777, VA: scratch, Perm: permRW}))
		assert.Equal(t, free, r.k.phys.FreeCount())

		assert.EqualValues(t, 0, c.Invoke(abi.PageAlloc{VA: scratch, Perm: permRW}))
		c.Store32(scratch, 42)
		assert.EqualValues(t, 42, c.Load32(scratch))

		// a fresh page replaces the old one and is zeroed
		assert.EqualValues(t, 0, c.Invoke(abi.PageAlloc{VA: scratch, Perm: permRW}))
		assert.EqualValues(t, 0, c.Load32(scratch))

		assert.EqualValues(t, 0, c.Invoke(abi.PageUnmap{VA: scratch}))
		assert.EqualValues(t, 0, c.Invoke(abi.PageUnmap{VA: scratch}))
		assert.Zero(t, c.UVPT(abi.PGNUM(scratch))&abi.PteP)
	})
	r.run(t)
}

func TestPageMapChecks(t *testing.T) {
	r := newRig(t, nil)
	other := r.spawn(t, "other", func(c *CPU) {})
	r.spawn(t, "mapper", func(c *CPU) {
		assert.EqualValues(t, 0, c.Invoke(abi.PageAlloc{VA: scratch, Perm: permRO}))

		assert.Equal(t, abi.EInval.Result(),
			c.Invoke(abi.PageMap{SrcVA: scratch, DstVA: scratch2, Perm: permRW}), "write over read-only")
		assert.Equal(t, abi.EInval.Result(),
			c.Invoke(abi.PageMap{SrcVA: scratch2, DstVA: scratch, Perm: permRO}), "unmapped source")
		assert.Equal(t, abi.EInval.Result(),
			c.Invoke(abi.PageMap{SrcVA: scratch, DstVA: abi.UTop, Perm: permRO}), "kernel destination")
		assert.Equal(t, abi.EBadEnv.Result(),
			c.Invoke(abi.PageMap{SrcVA: scratch, DstEnv: other, DstVA: scratch, Perm: permRO}), "not a child")

		assert.EqualValues(t, 0, c.Invoke(abi.PageMap{SrcVA: scratch, DstVA: scratch2, Perm: permRO}))
		assert.Equal(t, c.UVPT(abi.PGNUM(scratch))&^abi.PteFlags, c.UVPT(abi.PGNUM(scratch2))&^abi.PteFlags)
	})
	r.run(t)
}

func TestExoforkSharesMappedPage(t *testing.T) {
	r := newRig(t, nil)
	r.spawn(t, "parent", func(c *CPU) {
		assert.EqualValues(t, 0, c.Invoke(abi.PageAlloc{VA: scratch, Perm: permRW}))
		c.Store32(scratch, 7)

		child := exofork(t, c, func(c *CPU) {
			assert.EqualValues(t, 7, c.Load32(scratch))
			c.Store32(scratch, 8)
		})
		assert.EqualValues(t, 0, c.Invoke(abi.PageMap{SrcVA: scratch, DstEnv: child, DstVA: scratch, Perm: permRW}))

		info := c.Env(abi.ENVX(child))
		assert.Equal(t, abi.EnvNotRunnable, info.Status)
		assert.Equal(t, self(c), info.ParentID)

		assert.Equal(t, abi.EInval.Result(), c.Invoke(abi.EnvSetStatus{Env: child, Status: abi.EnvRunning}))
		assert.EqualValues(t, 0, c.Invoke(abi.EnvSetStatus{Env: child, Status: abi.EnvRunnable}))
		for c.Env(abi.ENVX(child)).Status != abi.EnvFree {
			c.Invoke(abi.Yield{})
		}
		assert.EqualValues(t, 8, c.Load32(scratch))
	})
	r.run(t)
}

func TestEnvDestroyOwnership(t *testing.T) {
	r := newRig(t, nil)
	victim := r.spawn(t, "victim", func(c *CPU) {
		c.Invoke(abi.IPCRecv{DstVA: abi.UTop})
	})
	r.spawn(t, "stranger", func(c *CPU) {
		assert.Equal(t, abi.EBadEnv.Result(), c.Invoke(abi.EnvDestroy{Env: victim}))

		child := exofork(t, c, func(c *CPU) {})
		assert.EqualValues(t, 0, c.Invoke(abi.EnvDestroy{Env: child}))
		assert.Equal(t, abi.EBadEnv.Result(), c.Invoke(abi.EnvDestroy{Env: child}), "stale id")
	})
	r.run(t)

	e, ok := r.k.Snapshot().Env(victim)
	assert.True(t, ok)
	assert.Equal(t, "not_runnable", e.Status)
}

func TestSetTrapframeRestartsChild(t *testing.T) {
	r := newRig(t, nil)
	r.spawn(t, "parent", func(c *CPU) {
		child := exofork(t, c, func(c *CPU) {
			cputs(c, "wrong entry\n")
		})
		tf := abi.UserTrapFrame(c.Text().Register(func(c *CPU) {
			cputs(c, "right entry\n")
		}), abi.UStackTop)
		tf.EFlags = 0
		tf.CS = 0

		va := c.Push(tf.Marshal())
		assert.EqualValues(t, 0, c.Invoke(abi.EnvSetTrapframe{Env: child, TF: va}))
		c.Pop(abi.TrapFrameSize)

		assert.EqualValues(t, 0, c.Invoke(abi.EnvSetStatus{Env: child, Status: abi.EnvRunnable}))
	})
	r.run(t)

	assert.Contains(t, r.cons.String(), "right entry\n")
	assert.NotContains(t, r.cons.String(), "wrong entry")
}

func TestSetTrapframeSelf(t *testing.T) {
	r := newRig(t, nil)
	r.spawn(t, "restarter", func(c *CPU) {
		tf := abi.UserTrapFrame(c.Text().Register(func(c *CPU) {
			cputs(c, "restarted\n")
		}), abi.UStackTop)
		va := c.Push(tf.Marshal())
		c.Invoke(abi.EnvSetTrapframe{TF: va})
		cputs(c, "unreachable\n")
	})
	r.run(t)

	assert.Equal(t, "restarted\n"+quiescent, r.cons.String())
}

func TestBadPointerDestroys(t *testing.T) {
	r := newRig(t, nil)
	r.spawn(t, "bad", func(c *CPU) {
		c.Invoke(abi.Cputs{VA: abi.UTop, Len: 4})
		cputs(c, "unreachable\n")
	})
	r.run(t)

	assert.Equal(t, "[00001000] user_mem_check assertion failure for va eec00000\n"+quiescent, r.cons.String())
}

func TestUnknownSyscall(t *testing.T) {
	r := newRig(t, nil)
	r.spawn(t, "unknown", func(c *CPU) {
		assert.Equal(t, abi.EInval.Result(), c.Syscall(abi.NSyscalls+3))
	})
	r.run(t)
}

func TestPageFaultUpcall(t *testing.T) {
	r := newRig(t, nil)
	var faults []abi.UTrapframe
	r.spawn(t, "faulter", func(c *CPU) {
		upcall := c.Text().Register(func(c *CPU) {
			var b [abi.UTrapframeSize]byte
			c.Read(c.ESP(), b[:])
			utf, _ := abi.UnmarshalUTrapframe(b[:])
			faults = append(faults, utf)
			page := abi.RoundDown(utf.FaultVA, abi.PageSize)
			assert.EqualValues(t, 0, c.Invoke(abi.PageAlloc{VA: page, Perm: permRW}))
		})
		assert.EqualValues(t, 0, c.Invoke(abi.PageAlloc{VA: abi.UXStackTop - abi.PageSize, Perm: permRW}))
		assert.EqualValues(t, 0, c.Invoke(abi.EnvSetPgfaultUpcall{Func: upcall}))

		c.Store32(scratch+8, 99)
		assert.EqualValues(t, 99, c.Load32(scratch+8))
		assert.EqualValues(t, 0, c.Load32(scratch2+4))
	})
	r.run(t)

	if assert.Len(t, faults, 2) {
		assert.EqualValues(t, scratch+8, faults[0].FaultVA)
		assert.EqualValues(t, abi.FECU|abi.FECWr, faults[0].Err)
		assert.EqualValues(t, scratch2+4, faults[1].FaultVA)
		assert.EqualValues(t, abi.FECU, faults[1].Err)
	}
	assert.Equal(t, quiescent, r.cons.String())
}

func TestFaultWithoutExceptionStack(t *testing.T) {
	r := newRig(t, nil)
	r.spawn(t, "nostack", func(c *CPU) {
		upcall := c.Text().Register(func(c *CPU) {})
		c.Invoke(abi.EnvSetPgfaultUpcall{Func: upcall})
		c.Load32(scratch)
	})
	r.run(t)

	assert.Contains(t, r.cons.String(), "[00001000] user_mem_check assertion failure for va eebfffcc\n")
}

func TestFaultWithoutUpcall(t *testing.T) {
	r := newRig(t, nil)
	r.spawn(t, "fatal", func(c *CPU) {
		c.Store32(0, 1)
	})
	r.run(t)

	assert.Regexp(t, `^\[00001000\] user fault va 00000000 ip [0-9a-f]{8}\n`, r.cons.String())
}

func TestWindows(t *testing.T) {
	r := newRig(t, nil)
	r.spawn(t, "windows", func(c *CPU) {
		id := self(c)
		info := c.Env(abi.ENVX(id))
		assert.Equal(t, id, info.ID)
		assert.Equal(t, abi.EnvRunning, info.Status)

		assert.NotZero(t, c.UVPD(abi.PDX(abi.UStackTop-abi.PageSize))&abi.PteP)
		assert.NotZero(t, c.UVPT(abi.PGNUM(abi.UStackTop-abi.PageSize))&abi.PteW)
		assert.Zero(t, c.UVPT(abi.PGNUM(scratch)))
		assert.NotZero(t, c.UVPT(abi.PGNUM(abi.UVSys))&abi.PteP)
		assert.Zero(t, c.UVPT(abi.PGNUM(abi.UVSys))&abi.PteW)
	})
	r.run(t)
}
