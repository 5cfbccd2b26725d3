package hw

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/AgentOS/exokernel/internal/shared/timespec"
)

// Machine is the hardware a kernel instance runs on.
type Machine interface {
	PortIO

	// ReadTSC samples the free-running cycle counter.
	ReadTSC() uint64
	// PITDelay spins on PIT channel 2 for d.
	PITDelay(d time.Duration)
	// Idle halts the CPU for d, or until the next interrupt.
	Idle(d time.Duration)
	// Step accounts for one unit of user work.
	Step()
	// Console is the terminal device.
	Console() Console
}

// cyclesFor converts d to cycles at hz without overflowing for any
// reasonable duration.
func cyclesFor(d time.Duration, hz uint64) uint64 {
	if d <= 0 {
		return 0
	}
	sec := uint64(d / time.Second)
	rem := uint64(d % time.Second)
	return sec*hz + rem*hz/timespec.NanosPerSecond
}

// ============================================================================
// Simulated machine
// ============================================================================

// SimConfig configures a SimMachine.
type SimConfig struct {
	TSCHz   uint64        // cycle counter rate
	OpCost  time.Duration // time charged per Step
	Boot    time.Time     // wall-clock time at power on
	Console Console
}

// SimMachine is a deterministic machine: its clock advances only when the
// kernel idles, spins on the PIT, steps user work or the owner calls
// Advance.
type SimMachine struct {
	*CMOS

	hz      uint64
	opCost  uint64
	boot    time.Time
	cycles  atomic.Uint64
	console Console
}

// NewSimMachine builds a simulated machine.
func NewSimMachine(cfg SimConfig) *SimMachine {
	if cfg.TSCHz == 0 {
		cfg.TSCHz = 1_000_000_000
	}
	if cfg.Boot.IsZero() {
		cfg.Boot = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	if cfg.Console == nil {
		cfg.Console = NewBufferConsole()
	}

	m := &SimMachine{
		hz:      cfg.TSCHz,
		opCost:  cyclesFor(cfg.OpCost, cfg.TSCHz),
		boot:    cfg.Boot,
		console: cfg.Console,
	}
	m.CMOS = NewCMOS(m.Now)
	return m
}

// Now is the machine's wall-clock time.
func (m *SimMachine) Now() time.Time {
	return m.boot.Add(m.Elapsed().Duration())
}

// Elapsed is the time since power on.
func (m *SimMachine) Elapsed() timespec.Timespec {
	return timespec.FromTicks(m.cycles.Load(), m.hz)
}

// Advance moves the clock forward by d.
func (m *SimMachine) Advance(d time.Duration) {
	m.cycles.Add(cyclesFor(d, m.hz))
}

func (m *SimMachine) ReadTSC() uint64          { return m.cycles.Load() }
func (m *SimMachine) PITDelay(d time.Duration) { m.Advance(d) }
func (m *SimMachine) Idle(d time.Duration)     { m.Advance(d) }
func (m *SimMachine) Console() Console         { return m.console }

func (m *SimMachine) Step() {
	if m.opCost > 0 {
		m.cycles.Add(m.opCost)
	}
}

// ============================================================================
// Hosted machine
// ============================================================================

// HostMachine runs on the host's clocks: the cycle counter follows the
// host monotonic clock and the calendar chip follows the host wall clock.
type HostMachine struct {
	*CMOS

	hz      uint64
	start   time.Time
	console Console
}

// NewHostMachine builds a machine whose counter ticks at hz.
func NewHostMachine(hz uint64, console Console) *HostMachine {
	if hz == 0 {
		hz = 1_000_000_000
	}
	return &HostMachine{
		CMOS:    NewCMOS(time.Now),
		hz:      hz,
		start:   time.Now(),
		console: console,
	}
}

func (m *HostMachine) ReadTSC() uint64 {
	return cyclesFor(time.Since(m.start), m.hz)
}

func (m *HostMachine) PITDelay(d time.Duration) {
	start := time.Now()
	for time.Since(start) < d {
		runtime.Gosched()
	}
}

func (m *HostMachine) Idle(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}

func (m *HostMachine) Step()            {}
func (m *HostMachine) Console() Console { return m.console }
