package kernel

import (
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/abi"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/env"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/infrastructure/logging"
)

// sysIPCTrySend delivers a value, and optionally a page, to an
// environment blocked in ipc_recv. Any environment may send to any other.
// The first sender after a receive wins; later senders see
// E_IPC_NOT_RECV until the target receives again.
func (k *Kernel) sysIPCTrySend(e *env.Env, call abi.IPCTrySend) int32 {
	ret := k.ipcTrySend(e, call)
	k.metrics.RecordIPCSend(abi.ResultName(ret))
	return ret
}

func (k *Kernel) ipcTrySend(e *env.Env, call abi.IPCTrySend) int32 {
	target, err := k.envs.Lookup(call.Env, e, false)
	if err != nil {
		return errnoOf(err).Result()
	}
	if !target.IPCRecving || target.IPCFrom != 0 {
		return abi.EIPCNotRecv.Result()
	}

	perm := uint32(0)
	if call.SrcVA < abi.UTop {
		if !abi.Aligned(call.SrcVA) || !permOK(call.Perm) {
			return abi.EInval.Result()
		}
		p, pte, ok := e.PgDir.Lookup(call.SrcVA)
		if !ok {
			return abi.EInval.Result()
		}
		if call.Perm&abi.PteW != 0 && pte&abi.PteW == 0 {
			return abi.EInval.Result()
		}
		if target.IPCDstVA < abi.UTop {
			if err := target.PgDir.Insert(p, target.IPCDstVA, call.Perm); err != nil {
				return abi.ENoMem.Result()
			}
			perm = call.Perm
		}
	}

	target.IPCRecving = false
	target.IPCFrom = e.ID
	target.IPCValue = call.Value
	target.IPCPerm = perm
	target.TF.Regs.EAX = 0
	k.setStatus(target, abi.EnvRunnable)

	k.log.Debug("ipc delivered",
		logging.EnvID("from", e.ID), logging.EnvID("to", target.ID),
		logging.VA("value", call.Value))
	return 0
}

// sysIPCRecv blocks until a sender delivers. A dstva below UTOP asks for
// a page to be mapped there.
func (k *Kernel) sysIPCRecv(e *env.Env, t *task, call abi.IPCRecv) int32 {
	if call.DstVA < abi.UTop && !abi.Aligned(call.DstVA) {
		return abi.EInval.Result()
	}
	e.IPCRecving = true
	e.IPCDstVA = call.DstVA
	e.IPCFrom = 0
	k.setStatus(e, abi.EnvNotRunnable)
	k.blockedOn(e, "ipc")

	k.schedule(t)
	return int32(e.TF.Regs.EAX)
}
