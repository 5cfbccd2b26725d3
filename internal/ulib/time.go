package ulib

import (
	"time"

	"github.com/GriffinCanCode/AgentOS/exokernel/internal/abi"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/kernel"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/shared/timespec"
)

// Gettime reads the calendar chip through the kernel.
func Gettime(c *kernel.CPU) int32 {
	return c.Invoke(abi.Gettime{})
}

// VsysGettime reads wall-clock seconds from the vsyscall page without
// entering the kernel.
func VsysGettime(c *kernel.CPU) int32 {
	return int32(c.Load32(abi.UVSys + 4*abi.VSysGettime))
}

// VsysMonotonic reads the monotonic clock as of the last scheduling
// decision from the vsyscall page.
func VsysMonotonic(c *kernel.CPU) timespec.Timespec {
	return timespec.Timespec{
		Sec:  int64(c.Load32(abi.UVSys + 4*abi.VSysMonoSec)),
		Nsec: int64(c.Load32(abi.UVSys + 4*abi.VSysMonoNsec)),
	}
}

// withTimespec lends the syscall a timespec slot on the stack.
func withTimespec(c *kernel.CPU, in timespec.Timespec, call func(va uint32) int32) (timespec.Timespec, error) {
	va := c.Push(abi.FromTimespec(in).Marshal())
	defer c.Pop(abi.TimespecSize)

	if err := result(call(va)); err != nil {
		return timespec.Timespec{}, err
	}
	var b [abi.TimespecSize]byte
	c.Read(va, b[:])
	ts, _ := abi.UnmarshalTimespec(b[:])
	return ts.ToTimespec(), nil
}

// ClockGettime reads clock.
func ClockGettime(c *kernel.CPU, clock abi.ClockID) (timespec.Timespec, error) {
	return withTimespec(c, timespec.Timespec{}, func(va uint32) int32 {
		return c.Invoke(abi.ClockGettime{Clock: clock, TP: va})
	})
}

// ClockGetres reads the resolution of clock.
func ClockGetres(c *kernel.CPU, clock abi.ClockID) (timespec.Timespec, error) {
	return withTimespec(c, timespec.Timespec{}, func(va uint32) int32 {
		return c.Invoke(abi.ClockGetres{Clock: clock, Res: va})
	})
}

// ClockSettime sets clock to v.
func ClockSettime(c *kernel.CPU, clock abi.ClockID, v timespec.Timespec) error {
	_, err := withTimespec(c, v, func(va uint32) int32 {
		return c.Invoke(abi.ClockSettime{Clock: clock, TP: va})
	})
	return err
}

// ClockNanosleep sleeps until req on clock with abi.TimerAbstime in flags,
// or for req otherwise, and returns what was left of the request.
func ClockNanosleep(c *kernel.CPU, clock abi.ClockID, flags uint32, req timespec.Timespec) (timespec.Timespec, error) {
	rem := c.Push(make([]byte, abi.TimespecSize))
	defer c.Pop(abi.TimespecSize)

	left, err := withTimespec(c, req, func(va uint32) int32 {
		r := c.Invoke(abi.ClockNanosleep{Clock: clock, Flags: flags, Req: va, Rem: rem})
		if r == 0 {
			// report the remainder through the request slot
			var b [abi.TimespecSize]byte
			c.Read(rem, b[:])
			c.Write(va, b[:])
		}
		return r
	})
	return left, err
}

// Sleep sleeps for d on the monotonic clock.
func Sleep(c *kernel.CPU, d time.Duration) error {
	_, err := ClockNanosleep(c, abi.ClockMonotonic, 0, timespec.FromDuration(d))
	return err
}
