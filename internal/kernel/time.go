package kernel

import (
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/exokernel/internal/abi"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/env"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/shared/timespec"
)

// readTimespec copies a user timespec the caller already checked.
func (k *Kernel) readTimespec(e *env.Env, va uint32) timespec.Timespec {
	var b [abi.TimespecSize]byte
	if err := e.PgDir.Read(va, b[:]); err != nil {
		k.panicf("timespec read after check: %v", err)
	}
	ts, _ := abi.UnmarshalTimespec(b[:])
	return ts.ToTimespec()
}

func (k *Kernel) writeTimespec(e *env.Env, va uint32, v timespec.Timespec) {
	b := abi.FromTimespec(v).Marshal()
	if err := e.PgDir.Write(va, b); err != nil {
		k.panicf("timespec write after check: %v", err)
	}
}

func (k *Kernel) sysClockGetres(e *env.Env, t *task, call abi.ClockGetres) int32 {
	k.userMemAssert(e, t, call.Res, abi.TimespecSize, abi.PteW)
	res, err := k.clocks.Resolution(call.Clock)
	if err != nil {
		return abi.EInval.Result()
	}
	k.writeTimespec(e, call.Res, res)
	return 0
}

func (k *Kernel) sysClockGettime(e *env.Env, t *task, call abi.ClockGettime) int32 {
	k.userMemAssert(e, t, call.TP, abi.TimespecSize, abi.PteW)
	now, err := k.clocks.Get(call.Clock)
	if err != nil {
		return abi.EInval.Result()
	}
	k.writeTimespec(e, call.TP, now)
	return 0
}

func (k *Kernel) sysClockSettime(e *env.Env, t *task, call abi.ClockSettime) int32 {
	k.userMemAssert(e, t, call.TP, abi.TimespecSize, 0)
	v := k.readTimespec(e, call.TP)
	if err := k.clocks.Set(call.Clock, v); err != nil {
		k.log.Debug("clock_settime rejected", logging.EnvID("envid", e.ID), zap.Error(err))
		return errnoOf(err).Result()
	}
	k.metrics.RecordClockSet(call.Clock.String())
	k.log.Info("clock set",
		logging.EnvID("envid", e.ID),
		zap.Stringer("clock", call.Clock),
		zap.Stringer("value", v),
	)
	return 0
}

// sysClockNanosleep suspends the caller until a deadline on clock. With
// TIMER_ABSTIME the request is the deadline itself, otherwise it is
// relative to the monotonic clock. The remainder, if asked for, is what
// is left of the request when the sleeper runs again.
func (k *Kernel) sysClockNanosleep(e *env.Env, t *task, call abi.ClockNanosleep) int32 {
	if call.Rem != 0 {
		k.userMemAssert(e, t, call.Rem, abi.TimespecSize, abi.PteW)
	}
	if !call.Clock.Valid() || call.Clock == abi.ClockProcessCPUTime {
		return abi.EInval.Result()
	}
	k.userMemAssert(e, t, call.Req, abi.TimespecSize, 0)
	req := k.readTimespec(e, call.Req)
	if !req.Valid() {
		return abi.EInval.Result()
	}

	clock := call.Clock
	deadline := req
	if call.Flags&abi.TimerAbstime == 0 {
		clock = abi.ClockMonotonic
		deadline = k.clocks.MustGet(clock).Add(req)
	}

	e.SleepClock = clock
	e.WakeAt = deadline
	e.TF.Regs.EAX = 0
	k.setStatus(e, abi.EnvSleeping)
	k.blockedOn(e, "sleep")

	k.schedule(t)

	if call.Rem != 0 {
		k.userMemAssert(e, t, call.Rem, abi.TimespecSize, abi.PteW)
		left := deadline.Sub(k.clocks.MustGet(clock))
		if left.IsNegative() {
			left = timespec.Timespec{}
		}
		k.writeTimespec(e, call.Rem, left)
	}
	return int32(e.TF.Regs.EAX)
}
