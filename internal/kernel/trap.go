package kernel

import (
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/exokernel/internal/abi"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/env"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/mem"
)

// trap dispatches on the trap number in the current environment's frame.
// The frame is resumed when trap returns; a handler that gives up the CPU
// returns only once the environment is scheduled again.
func (k *Kernel) trap(c *CPU) {
	t := c.t
	e := t.env
	if e != k.cur {
		k.panicf("trap from env %v while %v is current", e.ID, k.curID())
	}
	t.inKernel = true

	switch no := e.TF.TrapNo; no {
	case abi.TSyscall:
		k.syscall(c)
	case abi.TPgflt:
		k.pageFault(c)
	case abi.IRQOffset + abi.IRQClock:
		k.clockInterrupt(t)
	case abi.IRQOffset + abi.IRQTimer:
		k.schedule(t)
	default:
		k.log.Warn("unexpected trap",
			logging.EnvID("envid", e.ID), zap.Uint32("trapno", no))
		k.destroy(e, t, "bad_trap")
	}

	t.inKernel = false
}

func (k *Kernel) curID() abi.EnvID {
	if k.cur == nil {
		return 0
	}
	return k.cur.ID
}

// clockInterrupt acknowledges the calendar chip, arms the next tick and
// preempts the running environment.
func (k *Kernel) clockInterrupt(t *task) {
	k.rtc.CheckStatus()
	k.nextTick = k.machine.ReadTSC() + k.tickCyc
	k.metrics.IncTimerTicks()
	k.schedule(t)
}

// pageFault reflects a user fault to the environment's upcall: it pushes a
// fault record on the user exception stack, recursively if the fault hit
// while already on that stack, and redirects the frame to the upcall.
// Without an upcall, or without room on the exception stack, the
// environment is destroyed.
func (k *Kernel) pageFault(c *CPU) {
	t := c.t
	e := t.env
	tf := &e.TF
	va := c.faultVA

	if e.PgfaultUpcall == 0 {
		k.metrics.RecordPageFault("fatal")
		k.console.Printf("[%08x] user fault va %08x ip %08x\n", uint32(e.ID), va, tf.EIP)
		k.log.Info("user fault",
			logging.EnvID("envid", e.ID), logging.VA("va", va), logging.VA("eip", tf.EIP))
		k.destroy(e, t, "fault")
	}

	top := uint32(abi.UXStackTop)
	if tf.ESP >= abi.UXStackTop-abi.PageSize && tf.ESP < abi.UXStackTop {
		top = tf.ESP - 4
	}
	utfVA := top - abi.UTrapframeSize
	k.userMemAssert(e, t, utfVA, abi.UTrapframeSize, abi.PteW)

	utf := abi.UTrapframe{
		FaultVA: va,
		Err:     tf.Err,
		Regs:    tf.Regs,
		EIP:     tf.EIP,
		EFlags:  tf.EFlags,
		ESP:     tf.ESP,
	}
	if err := e.PgDir.Write(utfVA, utf.Marshal()); err != nil {
		k.panicf("push fault record at %08x: %v", utfVA, err)
	}
	tf.ESP = utfVA
	tf.EIP = e.PgfaultUpcall

	k.metrics.RecordPageFault("upcall")
	k.log.Debug("page fault reflected",
		logging.EnvID("envid", e.ID), logging.VA("va", va), zap.Uint32("err", tf.Err))
}

// upcallMissing destroys an environment whose upcall names no code.
func (k *Kernel) upcallMissing(c *CPU) {
	c.save()
	c.t.inKernel = true
	e := c.t.env
	k.metrics.RecordPageFault("fatal")
	k.console.Printf("[%08x] page fault upcall %08x has no text\n", uint32(e.ID), c.eip)
	k.destroy(e, c.t, "fault")
}

// userMemAssert destroys e unless [va, va+n) is user-accessible with
// perm. It returns only on success.
func (k *Kernel) userMemAssert(e *env.Env, t *task, va, n, perm uint32) {
	err := mem.UserCheck(e.PgDir, va, n, perm|abi.PteU)
	if err == nil {
		return
	}
	bad := va
	if fe, ok := err.(*mem.FaultError); ok {
		bad = fe.VA
	}
	k.console.Printf("[%08x] user_mem_check assertion failure for va %08x\n", uint32(e.ID), bad)
	k.log.Info("user memory check failed",
		logging.EnvID("envid", e.ID), logging.VA("va", bad), zap.Uint32("perm", perm))
	k.destroy(e, t, "bad_pointer")
}
