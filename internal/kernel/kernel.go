package kernel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/exokernel/internal/abi"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/clock"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/env"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/hw"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/mem"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/shared/timespec"
)

// ErrRunning is returned by operations that are only legal before Run.
var ErrRunning = errors.New("kernel: already running")

// idleTick is the busy-poll period when the timer is disabled.
const idleTick = 10 * time.Millisecond

// StatusObserver sees every scheduling status change the kernel makes.
// It runs on the CPU and must not call back into the kernel.
type StatusObserver func(id abi.EnvID, from, to abi.EnvStatus)

// Kernel is one uniprocessor kernel instance.
//
// All fields below the machine are owned by whichever task goroutine
// currently holds the CPU, or by the caller of New, Spawn and Run before
// the first dispatch. Only snap, console subscribers and the atomics are
// safe to touch from other goroutines.
type Kernel struct {
	cfg     *config.Config
	log     *logging.Logger
	metrics *monitoring.Metrics
	tracer  *tracing.Tracer
	ownsTr  bool
	monitor func(*Kernel)
	observe StatusObserver
	bootID  id.BootID

	machine hw.Machine
	rtc     *hw.RTC
	clocks  *clock.Registry
	phys    *mem.PhysMem
	envs    *env.Table
	text    *Text
	console *Console

	tasks    [abi.NEnv]*task
	cur      *env.Env
	last     int // slot of the last dispatched env, -1 before the first
	dying    string
	vsys     mem.PPN
	tick     time.Duration
	tickCyc  uint64
	nextTick uint64

	ctx      context.Context
	ctxDone  <-chan struct{}
	done     chan struct{}
	finished bool
	err      error
	wg       sync.WaitGroup

	started   atomic.Bool
	inMonitor atomic.Bool
	seq       uint64
	snap      atomic.Pointer[Snapshot]
}

// Option configures a Kernel.
type Option func(*Kernel)

// WithLogger sets the kernel logger.
func WithLogger(l *logging.Logger) Option {
	return func(k *Kernel) { k.log = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(k *Kernel) { k.metrics = m }
}

// WithTracer traces every system call through t. Without it a tracer is
// created only when tracing is enabled in the configuration.
func WithTracer(t *tracing.Tracer) Option {
	return func(k *Kernel) { k.tracer = t }
}

// WithMonitor installs the hook run when the system goes quiescent,
// before Run returns.
func WithMonitor(fn func(*Kernel)) Option {
	return func(k *Kernel) { k.monitor = fn }
}

// WithStatusObserver installs fn as the status observer.
func WithStatusObserver(fn StatusObserver) Option {
	return func(k *Kernel) { k.observe = fn }
}

// New boots a kernel on m: it enables the calendar chip's periodic
// interrupt, calibrates the cycle counter, sizes physical memory and
// prepares the vsyscall page.
func New(cfg *config.Config, m hw.Machine, opts ...Option) (*Kernel, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	k := &Kernel{
		cfg:     cfg,
		machine: m,
		last:    -1,
		done:    make(chan struct{}),
		bootID:  id.NewBootID(),
	}
	for _, opt := range opts {
		opt(k)
	}
	if k.log == nil {
		k.log = logging.NewNop()
	}
	k.log = k.log.Named("kernel")
	if k.metrics == nil {
		k.metrics = monitoring.NewMetrics()
	}
	if k.tracer == nil && cfg.Kernel.Trace {
		k.tracer = tracing.New("kernel", k.log.Logger)
		k.ownsTr = true
	}

	k.rtc = hw.NewRTC(m)
	k.rtc.Init()
	k.clocks = clock.New(m)
	k.phys = mem.NewPhysMem(cfg.Kernel.NPages)
	k.envs = env.NewTable()
	k.text = NewText()
	k.console = newConsole(m.Console(), cfg.Console, k.consoleTime, k.metrics)

	vsys, err := k.phys.Alloc(true)
	if err != nil {
		return nil, err
	}
	k.phys.IncRef(vsys)
	k.vsys = vsys

	k.tick = cfg.Kernel.Tick()
	if k.tick > 0 {
		k.tickCyc = uint64(k.tick.Seconds() * float64(k.clocks.Hz()))
	}

	k.log.Info("kernel booted",
		zap.String("boot_id", k.bootID.String()),
		zap.Int("npages", k.phys.NPages()),
		zap.Uint64("tsc_hz", k.clocks.Hz()),
		zap.Duration("tick", k.tick),
		zap.String("rtc", timespec.EpochToCalendar(k.clocks.BootEpoch()).String()),
	)
	k.publish()
	return k, nil
}

// BootID identifies this kernel instance.
func (k *Kernel) BootID() id.BootID { return k.bootID }

// Console is the kernel console.
func (k *Kernel) Console() *Console { return k.console }

// Text is the shared user text image.
func (k *Kernel) Text() *Text { return k.text }

// Metrics is the kernel's metrics collector.
func (k *Kernel) Metrics() *monitoring.Metrics { return k.metrics }

// Spawn creates a top-level environment running r, the way the boot loader
// creates the initial environments: parent 0, a fresh stack page, a user
// data page and the vsyscall page. It must be called before Run.
func (k *Kernel) Spawn(r Routine, name string) (abi.EnvID, error) {
	if k.started.Load() {
		return 0, ErrRunning
	}
	e, err := k.allocEnv(0, name)
	if err != nil {
		return 0, err
	}
	for _, va := range []uint32{abi.UStackTop - abi.PageSize, abi.UData} {
		p, err := k.phys.Alloc(true)
		if err == nil {
			err = e.PgDir.Insert(p, va, abi.PteP|abi.PteU|abi.PteW)
			if err != nil {
				k.phys.Free(p)
			}
		}
		if err != nil {
			k.freeEnv(e, "spawn_failed")
			return 0, err
		}
	}
	e.TF = abi.UserTrapFrame(k.text.Register(r), abi.UStackTop)
	k.publish()
	return e.ID, nil
}

// Run dispatches environments until the system goes quiescent (nil), ctx
// is cancelled (ctx.Err()) or a kernel invariant breaks (*KernelPanic).
// All task goroutines have exited when Run returns.
func (k *Kernel) Run(ctx context.Context) error {
	if !k.started.CompareAndSwap(false, true) {
		return ErrRunning
	}
	k.ctx = ctx
	k.ctxDone = ctx.Done()
	k.nextTick = k.machine.ReadTSC() + k.tickCyc

	k.log.Info("kernel running", zap.String("boot_id", k.bootID.String()))
	k.boot()

	<-k.done
	k.wg.Wait()
	if k.ownsTr {
		k.tracer.Close()
	}
	k.log.Info("kernel stopped", zap.Error(k.err))
	return k.err
}

// boot makes the first dispatch from the caller's goroutine.
func (k *Kernel) boot() {
	defer func() {
		if r := recover(); r != nil {
			kp, ok := r.(*KernelPanic)
			if !ok {
				kp = &KernelPanic{Msg: fmt.Sprint(r)}
			}
			k.finish(kp)
		}
	}()
	k.schedule(nil)
}

// Done is closed when the kernel stops.
func (k *Kernel) Done() <-chan struct{} { return k.done }

// finish stops the kernel. It runs on the CPU; every other task is killed
// and Run is released.
func (k *Kernel) finish(err error) {
	if k.finished {
		return
	}
	k.finished = true
	k.err = err
	for _, t := range k.tasks {
		if t != nil {
			t.kill()
		}
	}
	k.publish()
	close(k.done)
}

// setStatus is the single place scheduling statuses change after
// allocation.
func (k *Kernel) setStatus(e *env.Env, s abi.EnvStatus) {
	if e.Status == s {
		return
	}
	from := e.Status
	e.Status = s
	if k.observe != nil {
		k.observe(e.ID, from, s)
	}
}

// allocEnv allocates a record with an address space holding only the
// vsyscall page, and an unstarted task.
func (k *Kernel) allocEnv(parent abi.EnvID, name string) (*env.Env, error) {
	e, err := k.envs.Alloc(parent)
	if err != nil {
		return nil, err
	}
	pd, err := mem.NewPageDir(k.phys)
	if err == nil {
		err = pd.Insert(k.vsys, abi.UVSys, abi.PteP|abi.PteU)
		if err != nil {
			pd.Free()
		}
	}
	if err != nil {
		k.envs.Free(e)
		return nil, err
	}
	e.PgDir = pd
	e.Name = name
	k.tasks[e.Slot()] = newTask(e, k.tracer != nil)
	if k.observe != nil {
		k.observe(e.ID, abi.EnvFree, e.Status)
	}

	k.metrics.IncEnvsCreated()
	k.log.Debug("env created",
		logging.EnvID("envid", e.ID),
		logging.EnvID("parent", parent),
		zap.String("name", name),
	)
	return e, nil
}

// freeEnv releases e at once: its task, its address space and its slot.
func (k *Kernel) freeEnv(e *env.Env, cause string) {
	slot := e.Slot()
	if t := k.tasks[slot]; t != nil {
		t.kill()
		k.tasks[slot] = nil
	}
	if e.PgDir != nil {
		e.PgDir.Free()
		e.PgDir = nil
	}
	id := e.ID
	k.console.forget(id)
	k.setStatus(e, abi.EnvFree)
	k.envs.Free(e)
	if k.cur == e {
		k.cur = nil
	}

	k.metrics.RecordEnvDestroyed(cause)
	k.log.Debug("env freed", logging.EnvID("envid", id), zap.String("cause", cause))
}

// destroy tears e down. Destroying the running environment marks it
// dying and reschedules; that call never returns to self.
func (k *Kernel) destroy(e *env.Env, self *task, cause string) {
	if e == k.cur {
		k.setStatus(e, abi.EnvDying)
		k.dying = cause
		k.schedule(self)
		k.panicf("dying env %v rescheduled", e.ID)
	}
	k.freeEnv(e, cause)
}
