package kernel

import (
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/exokernel/internal/abi"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/env"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/infrastructure/tracing"
)

// task is the goroutine backing one environment. Exactly one task holds
// the CPU at a time; every other task is parked, unstarted or exiting.
type task struct {
	env   *env.Env
	trace tracing.TraceID

	wake     chan struct{}
	dead     chan struct{}
	killOnce sync.Once

	started  bool
	restart  bool // the frame was replaced by a self set_trapframe
	inKernel bool
}

func newTask(e *env.Env, traced bool) *task {
	t := &task{
		env:  e,
		wake: make(chan struct{}, 1),
		dead: make(chan struct{}),
	}
	if traced {
		t.trace = tracing.NewTraceID()
	}
	return t
}

// kill makes the task exit the next time it is scheduled or parks.
func (t *task) kill() {
	t.killOnce.Do(func() { close(t.dead) })
}

func (t *task) isDead() bool {
	select {
	case <-t.dead:
		return true
	default:
		return false
	}
}

// park blocks until the task is handed the CPU again.
func (t *task) park() {
	select {
	case <-t.wake:
	case <-t.dead:
		runtime.Goexit()
	}
}

// resume hands the CPU to t.
func (k *Kernel) resume(t *task) {
	if !t.started {
		t.started = true
		k.wg.Add(1)
		go k.taskMain(t)
		return
	}
	t.wake <- struct{}{}
}

// taskMain runs an environment from its saved frame. A routine that
// returns destroys its environment.
func (k *Kernel) taskMain(t *task) {
	defer k.wg.Done()
	defer k.afterTask(t)

	c := &CPU{k: k, t: t}
	c.load()
	r, ok := k.text.Lookup(c.eip)
	if !ok {
		t.inKernel = true
		k.log.Warn("no text at entry point",
			logging.EnvID("envid", t.env.ID), logging.VA("eip", c.eip))
		k.console.Printf("[%08x] bad entry point %08x\n", uint32(t.env.ID), c.eip)
		k.destroy(t.env, t, "bad_eip")
	}
	r(c)
	c.Syscall(abi.SysEnvDestroy, 0)
	k.panicf("env %v survived its own destruction", t.env.ID)
}

// afterTask handles the ways a task goroutine ends other than parking
// forever: panics in user code destroy the environment, panics in the
// kernel stop it, and a self set_trapframe restarts the task from its new
// frame.
func (k *Kernel) afterTask(t *task) {
	r := recover()
	if r == nil {
		if t.restart && !t.isDead() {
			t.restart = false
			k.wg.Add(1)
			go k.taskMain(t)
		}
		return
	}

	kp, isKernel := r.(*KernelPanic)
	if isKernel || t.inKernel {
		if kp == nil {
			kp = &KernelPanic{Msg: fmt.Sprint(r)}
			k.log.Error("kernel panic", zap.String("msg", kp.Msg), zap.Stack("stack"))
		}
		k.finish(kp)
		return
	}

	t.inKernel = true
	k.log.Warn("user panic", logging.EnvID("envid", t.env.ID), zap.Any("value", r))
	k.console.Printf("[%08x] user panic: %v\n", uint32(t.env.ID), r)
	k.destroy(t.env, t, "panic")
}
