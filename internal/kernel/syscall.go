package kernel

import (
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/exokernel/internal/abi"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/env"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/infrastructure/tracing"
)

// syscall decodes the request in the current frame, runs it and leaves
// the result in eax. Calls that give up the CPU finish when the
// environment is scheduled again; calls that destroy it never finish.
func (k *Kernel) syscall(c *CPU) {
	t := c.t
	e := t.env
	regs := e.TF.Regs
	no := abi.Syscall(regs.EAX)

	name := "unknown"
	if no < abi.NSyscalls {
		name = no.String()
	}
	timer := monitoring.NewTimer(k.metrics, name)
	var span *tracing.Span
	if k.tracer != nil {
		span = k.tracer.StartRootSpan(t.trace, "sys_"+name)
		span.SetTag("envid", e.ID.String())
	}

	var ret int32
	call, err := abi.Decode(no, abi.Args{regs.EDX, regs.ECX, regs.EBX, regs.EDI, regs.ESI})
	if err != nil {
		ret = errnoOf(err).Result()
	} else {
		ret = k.dispatch(c, e, call)
	}
	e.TF.Regs.EAX = uint32(ret)

	result := abi.ResultName(ret)
	timer.Stop(result)
	if span != nil {
		span.SetTag("result", result)
		if ret < 0 {
			span.SetError(abi.ResultError(ret))
		}
		span.Finish()
		k.tracer.Submit(span)
	}
	if k.cfg.Kernel.Trace {
		k.log.Debug("syscall",
			logging.EnvID("envid", e.ID), zap.String("syscall", name), zap.Int32("ret", ret))
	}
}

func (k *Kernel) dispatch(c *CPU, e *env.Env, call abi.Call) int32 {
	t := c.t
	switch call := call.(type) {
	case abi.Cputs:
		return k.sysCputs(e, t, call)
	case abi.Cgetc:
		if b, ok := k.console.Getc(); ok {
			return int32(b)
		}
		return 0
	case abi.Getenvid:
		return int32(e.ID)
	case abi.EnvDestroy:
		return k.sysEnvDestroy(e, t, call)
	case abi.PageAlloc:
		return k.sysPageAlloc(e, call)
	case abi.PageMap:
		return k.sysPageMap(e, call)
	case abi.PageUnmap:
		return k.sysPageUnmap(e, call)
	case abi.Exofork:
		return k.sysExofork(e)
	case abi.EnvSetStatus:
		return k.sysEnvSetStatus(e, call)
	case abi.EnvSetTrapframe:
		return k.sysEnvSetTrapframe(e, t, call)
	case abi.EnvSetPgfaultUpcall:
		target, err := k.envs.Lookup(call.Env, e, true)
		if err != nil {
			return errnoOf(err).Result()
		}
		target.PgfaultUpcall = call.Func
		return 0
	case abi.Yield:
		e.TF.Regs.EAX = 0
		k.schedule(t)
		return 0
	case abi.IPCTrySend:
		return k.sysIPCTrySend(e, call)
	case abi.IPCRecv:
		return k.sysIPCRecv(e, t, call)
	case abi.Gettime:
		return int32(k.rtc.Gettime())
	case abi.ClockGetres:
		return k.sysClockGetres(e, t, call)
	case abi.ClockGettime:
		return k.sysClockGettime(e, t, call)
	case abi.ClockSettime:
		return k.sysClockSettime(e, t, call)
	case abi.ClockNanosleep:
		return k.sysClockNanosleep(e, t, call)
	}
	return abi.EInval.Result()
}

// ============================================================================
// Console and environments
// ============================================================================

func (k *Kernel) sysCputs(e *env.Env, t *task, call abi.Cputs) int32 {
	k.userMemAssert(e, t, call.VA, call.Len, 0)
	buf := make([]byte, call.Len)
	if err := e.PgDir.Read(call.VA, buf); err != nil {
		k.panicf("cputs read after check: %v", err)
	}
	k.console.put(e.ID, buf)
	return 0
}

func (k *Kernel) sysEnvDestroy(e *env.Env, t *task, call abi.EnvDestroy) int32 {
	target, err := k.envs.Lookup(call.Env, e, true)
	if err != nil {
		return errnoOf(err).Result()
	}
	cause := "destroyed"
	if target == e {
		cause = "exit"
	}
	k.log.Debug("env destroy",
		logging.EnvID("caller", e.ID), logging.EnvID("target", target.ID))
	k.destroy(target, t, cause)
	return 0
}

// sysExofork creates a child with an empty address space and the caller's
// registers. The child is not runnable and sees 0 as the result.
func (k *Kernel) sysExofork(e *env.Env) int32 {
	child, err := k.allocEnv(e.ID, e.Name)
	if err != nil {
		return errnoOf(err).Result()
	}
	k.setStatus(child, abi.EnvNotRunnable)
	child.TF = e.TF
	child.TF.Regs.EAX = 0
	return int32(child.ID)
}

func (k *Kernel) sysEnvSetStatus(e *env.Env, call abi.EnvSetStatus) int32 {
	if call.Status != abi.EnvRunnable && call.Status != abi.EnvNotRunnable {
		return abi.EInval.Result()
	}
	target, err := k.envs.Lookup(call.Env, e, true)
	if err != nil {
		return errnoOf(err).Result()
	}
	k.setStatus(target, call.Status)
	return 0
}

// sysEnvSetTrapframe replaces a frame with a sanitized copy of one in
// user memory: interrupts stay enabled and the segments stay user
// segments. The target restarts from the new frame.
func (k *Kernel) sysEnvSetTrapframe(e *env.Env, t *task, call abi.EnvSetTrapframe) int32 {
	target, err := k.envs.Lookup(call.Env, e, true)
	if err != nil {
		return errnoOf(err).Result()
	}
	k.userMemAssert(e, t, call.TF, abi.TrapFrameSize, 0)
	buf := make([]byte, abi.TrapFrameSize)
	if err := e.PgDir.Read(call.TF, buf); err != nil {
		k.panicf("set_trapframe read after check: %v", err)
	}
	tf, err := abi.UnmarshalTrapFrame(buf)
	if err != nil {
		return abi.EInval.Result()
	}
	tf.EFlags |= abi.FLIF
	tf.CS = abi.GDUT
	tf.DS = abi.GDUD
	tf.ES = abi.GDUD
	tf.SS = abi.GDUD
	target.TF = tf

	if target == e {
		// the caller's task restarts once this trap unwinds
		target.TF.Regs.EAX = 0
		t.restart = true
		return 0
	}
	slot := target.Slot()
	if old := k.tasks[slot]; old != nil {
		old.kill()
	}
	k.tasks[slot] = newTask(target, k.tracer != nil)
	return 0
}

// ============================================================================
// Memory
// ============================================================================

// userVA reports whether va is a page-aligned user address.
func userVA(va uint32) bool {
	return va < abi.UTop && abi.Aligned(va)
}

// permOK reports whether perm is acceptable from user space: U and P set,
// nothing outside the syscall-settable bits.
func permOK(perm uint32) bool {
	const need = abi.PteU | abi.PteP
	return perm&need == need && perm&^abi.PteSyscall == 0
}

func (k *Kernel) sysPageAlloc(e *env.Env, call abi.PageAlloc) int32 {
	if !userVA(call.VA) || !permOK(call.Perm) {
		return abi.EInval.Result()
	}
	target, err := k.envs.Lookup(call.Env, e, true)
	if err != nil {
		return errnoOf(err).Result()
	}
	p, err := k.phys.Alloc(true)
	if err != nil {
		return abi.ENoMem.Result()
	}
	if err := target.PgDir.Insert(p, call.VA, call.Perm); err != nil {
		k.phys.Free(p)
		return abi.ENoMem.Result()
	}
	return 0
}

func (k *Kernel) sysPageMap(e *env.Env, call abi.PageMap) int32 {
	if !userVA(call.SrcVA) || !userVA(call.DstVA) {
		return abi.EInval.Result()
	}
	src, err := k.envs.Lookup(call.SrcEnv, e, true)
	if err != nil {
		return errnoOf(err).Result()
	}
	dst, err := k.envs.Lookup(call.DstEnv, e, true)
	if err != nil {
		return errnoOf(err).Result()
	}
	if !permOK(call.Perm) {
		return abi.EInval.Result()
	}
	p, pte, ok := src.PgDir.Lookup(call.SrcVA)
	if !ok {
		return abi.EInval.Result()
	}
	if call.Perm&abi.PteW != 0 && pte&abi.PteW == 0 {
		return abi.EInval.Result()
	}
	if err := dst.PgDir.Insert(p, call.DstVA, call.Perm); err != nil {
		return abi.ENoMem.Result()
	}
	return 0
}

func (k *Kernel) sysPageUnmap(e *env.Env, call abi.PageUnmap) int32 {
	if !userVA(call.VA) {
		return abi.EInval.Result()
	}
	target, err := k.envs.Lookup(call.Env, e, true)
	if err != nil {
		return errnoOf(err).Result()
	}
	target.PgDir.Remove(call.VA)
	return 0
}
