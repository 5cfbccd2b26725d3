package kernel

import (
	"runtime"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/exokernel/internal/abi"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/env"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/infrastructure/logging"
)

// schedule picks the next environment and gives it the CPU. self is the
// task making the call, nil for the boot path. The call returns to self
// only when self's environment is picked again.
//
// Round robin: the scan starts just after the last environment that ran
// and takes the first RUNNABLE one, waking sleepers whose deadline has
// passed on the way. The current environment runs again only when nothing
// else can. With nothing to run but sleepers pending, the CPU idles one
// tick and scans again.
func (k *Kernel) schedule(self *task) {
	for {
		if k.cur != nil && k.cur.Status == abi.EnvDying {
			k.freeEnv(k.cur, k.dying)
		}
		k.publish()

		n := k.envs.Len()
		for i := 0; i < n; i++ {
			e := k.envs.At((k.last + 1 + i + n) % n)
			if e.Status == abi.EnvSleeping && k.deadlinePassed(e) {
				k.setStatus(e, abi.EnvRunnable)
			}
			if e.Status == abi.EnvRunnable {
				k.run(e, self)
				return
			}
		}
		if k.cur != nil && k.cur.Status == abi.EnvRunning {
			k.run(k.cur, self)
			return
		}

		if !k.anySchedulable() {
			k.halt(self)
			return
		}
		if !k.idle(self) {
			return
		}
	}
}

func (k *Kernel) deadlinePassed(e *env.Env) bool {
	now, err := k.clocks.Get(e.SleepClock)
	if err != nil {
		return true
	}
	return now.Sub(e.WakeAt).Elapsed()
}

func (k *Kernel) anySchedulable() bool {
	found := false
	k.envs.Each(func(e *env.Env) {
		found = found || e.Status.Schedulable()
	})
	return found
}

// run dispatches e. Control leaves self unless e is self's environment.
func (k *Kernel) run(e *env.Env, self *task) {
	if k.cur != e {
		if k.cur != nil && k.cur.Status == abi.EnvRunning {
			k.setStatus(k.cur, abi.EnvRunnable)
		}
		k.metrics.IncContextSwitches()
	}
	k.cur = e
	k.last = e.Slot()
	k.setStatus(e, abi.EnvRunning)
	e.Runs++

	t := k.tasks[e.Slot()]
	if t == nil {
		k.panicf("env %v has no task", e.ID)
	}
	if t == self {
		return
	}
	k.resume(t)
	if self != nil {
		self.park()
	}
}

// idle halts the CPU for one tick with no environment current. The tick
// doubles as a clock interrupt. It reports false when the kernel stopped.
func (k *Kernel) idle(self *task) bool {
	if k.cur != nil && k.cur.Status == abi.EnvRunning {
		k.setStatus(k.cur, abi.EnvRunnable)
	}
	k.cur = nil

	tick := k.tick
	if tick <= 0 {
		tick = idleTick
	}
	k.machine.Idle(tick)
	k.metrics.IncIdlePolls()
	if k.tickCyc > 0 {
		k.rtc.CheckStatus()
		k.nextTick = k.machine.ReadTSC() + k.tickCyc
		k.metrics.IncTimerTicks()
	}

	select {
	case <-k.ctxDone:
		k.log.Info("kernel cancelled while idle", zap.Error(k.ctx.Err()))
		k.finish(k.ctx.Err())
		if self != nil {
			runtime.Goexit()
		}
		return false
	default:
	}
	return true
}

// halt ends the run: nothing is runnable and nothing will become so.
func (k *Kernel) halt(self *task) {
	k.console.Printf("No runnable environments in the system!\n")
	counts := k.envs.Count()
	k.log.Info("no runnable environments",
		zap.Int("not_runnable", counts[abi.EnvNotRunnable]),
		zap.Int("free_pages", k.phys.FreeCount()),
	)
	if k.monitor != nil {
		k.inMonitor.Store(true)
		k.monitor(k)
		k.inMonitor.Store(false)
	}
	k.finish(nil)
	if self != nil {
		runtime.Goexit()
	}
}

// blockedOn logs an environment giving up the CPU until an event.
func (k *Kernel) blockedOn(e *env.Env, what string) {
	k.log.Debug("env blocked", logging.EnvID("envid", e.ID), zap.String("on", what))
}
