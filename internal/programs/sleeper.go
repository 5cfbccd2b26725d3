package programs

import (
	"time"

	"github.com/GriffinCanCode/AgentOS/exokernel/internal/abi"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/kernel"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/shared/timespec"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/ulib"
)

// Sleeper sleeps one second on the monotonic clock, then until two
// seconds ahead on the realtime clock, and checks the vsyscall page
// against the calendar chip.
func Sleeper(c *kernel.CPU) {
	start := mustGettime(c, abi.ClockMonotonic)
	if err := ulib.Sleep(c, time.Second); err != nil {
		ulib.Panicf("sleep: %v", err)
	}
	slept := mustGettime(c, abi.ClockMonotonic).Sub(start)
	ulib.Printf(c, "sleeper: relative sleep took %d s\n", slept.Sec)

	deadline := mustGettime(c, abi.ClockRealtime).Add(timespec.Timespec{Sec: 2})
	rem, err := ulib.ClockNanosleep(c, abi.ClockRealtime, abi.TimerAbstime, deadline)
	if err != nil {
		ulib.Panicf("nanosleep: %v", err)
	}
	late := mustGettime(c, abi.ClockRealtime).Sub(deadline)
	ulib.Printf(c, "sleeper: absolute sleep woke %d s late, %d s left\n", late.Sec, rem.Sec)

	if d := ulib.VsysGettime(c) - ulib.Gettime(c); d >= -1 && d <= 1 {
		ulib.Printf(c, "sleeper: vsyscall clock agrees\n")
	} else {
		ulib.Printf(c, "sleeper: vsyscall clock off by %d s\n", d)
	}
}

func mustGettime(c *kernel.CPU, clock abi.ClockID) timespec.Timespec {
	ts, err := ulib.ClockGettime(c, clock)
	if err != nil {
		ulib.Panicf("clock_gettime(%v): %v", clock, err)
	}
	return ts
}
