package programs

import (
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/abi"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/kernel"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/shared/timespec"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/ulib"
)

const (
	spinLong  = 300_000
	spinShort = 20_000
)

var clockCases = []struct {
	name   string
	points int
	run    func(*kernel.CPU) int
}{
	{"clock_gettime", 30, testGettime},
	{"clock_getres", 10, testGetres},
	{"clock_settime", 30, testSettime},
	{"clock_nanosleep", 30, testNanosleep},
}

// Clocktest runs the clock syscall checks and prints a score out of 100.
func Clocktest(c *kernel.CPU) {
	score := 0
	for _, tc := range clockCases {
		if failed := tc.run(c); failed != 0 {
			ulib.Printf(c, "%s: FAIL (test %d)\n", tc.name, failed)
			continue
		}
		ulib.Printf(c, "%s: OK\n", tc.name)
		score += tc.points
	}
	ulib.Printf(c, "Score: %d/100\n", score)
}

func badClocks() []abi.ClockID { return []abi.ClockID{500, -1} }

func testGettime(c *kernel.CPU) int {
	for _, clock := range badClocks() {
		if _, err := ulib.ClockGettime(c, clock); err == nil {
			return 1
		}
	}

	rt, err := ulib.ClockGettime(c, abi.ClockRealtime)
	if err != nil {
		return 2
	}
	if d := rt.Sec - int64(ulib.Gettime(c)); d < -1 || d > 1 {
		return 2
	}

	for _, clock := range []abi.ClockID{abi.ClockMonotonic, abi.ClockRealtime} {
		start := ulib.Gettime(c)
		t1, err := ulib.ClockGettime(c, clock)
		if err != nil {
			return 3
		}
		c.Spin(spinLong)
		wall := int64(ulib.Gettime(c) - start)
		t2, err := ulib.ClockGettime(c, clock)
		if err != nil {
			return 3
		}
		if d := wall - (t2.Sec - t1.Sec); d < -1 || d > 1 {
			return 3
		}
	}

	// The same amount of work should cost the same CPU time each round.
	var prevSec, prevNsec int64
	for k := int64(0); k < 6; k++ {
		t1, err := ulib.ClockGettime(c, abi.ClockProcessCPUTime)
		if err != nil {
			return 4
		}
		c.Spin(spinShort)
		t2, err := ulib.ClockGettime(c, abi.ClockProcessCPUTime)
		if err != nil {
			return 4
		}
		dsec, dnsec := t2.Sec-t1.Sec, t2.Nsec-t1.Nsec
		if prevSec != 0 && prevNsec != 0 {
			if dsec != prevSec || abs(dnsec-prevNsec) > 50 {
				return 4
			}
		}
		prevSec = dsec
		prevNsec = (prevNsec*k + dnsec) / (k + 1)
	}
	return 0
}

func testGetres(c *kernel.CPU) int {
	var first timespec.Timespec
	for clock := abi.ClockMonotonic; clock < abi.ClockNum; clock++ {
		res, err := ulib.ClockGetres(c, clock)
		if err != nil {
			return 1
		}
		if clock == abi.ClockMonotonic {
			first = res
		} else if timespec.Compare(res, first) != 0 {
			return 1
		}
	}
	return 0
}

func testSettime(c *kernel.CPU) int {
	one := timespec.Timespec{Sec: 1}
	for _, clock := range append(badClocks(), -1, abi.ClockMonotonic) {
		if ulib.ClockSettime(c, clock, one) == nil {
			return 1
		}
	}

	bad := []struct {
		ts     timespec.Timespec
		failed int
	}{
		{timespec.Timespec{Sec: -1}, 2},
		{timespec.Timespec{Sec: 1, Nsec: -1}, 3},
		{timespec.Timespec{Sec: 1, Nsec: 1_000_000_000}, 4},
	}
	for _, b := range bad {
		for _, clock := range []abi.ClockID{abi.ClockRealtime, abi.ClockProcessCPUTime} {
			if ulib.ClockSettime(c, clock, b.ts) == nil {
				return b.failed
			}
		}
	}

	for _, clock := range []abi.ClockID{abi.ClockRealtime, abi.ClockProcessCPUTime} {
		if ulib.ClockSettime(c, clock, one) != nil {
			return 5
		}
		now, err := ulib.ClockGettime(c, clock)
		if err != nil || now.Sub(one).Sec != 0 {
			return 5
		}
	}

	// A set value is truncated to the clock's resolution.
	for _, clock := range []abi.ClockID{abi.ClockRealtime, abi.ClockProcessCPUTime} {
		res, err := ulib.ClockGetres(c, clock)
		if err != nil || res.Nsec == 0 {
			return 6
		}
		v := res
		v.Nsec++
		if ulib.ClockSettime(c, clock, v) != nil {
			return 6
		}
		c.Spin(spinShort)
		now, err := ulib.ClockGettime(c, clock)
		if err != nil || now.Nsec%res.Nsec != 0 {
			return 6
		}
	}
	return 0
}

func testNanosleep(c *kernel.CPU) int {
	if _, err := ulib.ClockNanosleep(c, abi.ClockProcessCPUTime, 0, timespec.Timespec{Sec: 1}); err == nil {
		return 1
	}

	sleepable := []abi.ClockID{abi.ClockMonotonic, abi.ClockRealtime}
	for _, clock := range sleepable {
		deadline := mustGettime(c, clock).Add(timespec.Timespec{Sec: 4})
		if _, err := ulib.ClockNanosleep(c, clock, abi.TimerAbstime, deadline); err != nil {
			return 2
		}
		if mustGettime(c, clock).Sub(deadline).Sec != 0 {
			return 2
		}
	}

	for _, clock := range sleepable {
		req := timespec.Timespec{Sec: 3, Nsec: 361462}
		start := mustGettime(c, clock)
		if _, err := ulib.ClockNanosleep(c, clock, 0, req); err != nil {
			return 3
		}
		if mustGettime(c, clock).Sub(start).Sec > 3 {
			return 3
		}
	}

	// A child moves the realtime clock while the parent sleeps on it. An
	// absolute sleep wakes early; a relative one still lasts its full
	// length.
	for _, flags := range []uint32{abi.TimerAbstime, 0} {
		target := timespec.Timespec{Sec: 4, Nsec: 4}
		if flags == abi.TimerAbstime {
			target = mustGettime(c, abi.ClockRealtime).Add(timespec.Timespec{Sec: 4})
		}
		start := mustGettime(c, abi.ClockMonotonic)

		_, err := ulib.Fork(c, func(c *kernel.CPU) {
			_ = ulib.ClockSettime(c, abi.ClockRealtime, target)
		})
		if err != nil {
			return 4
		}
		if _, err := ulib.ClockNanosleep(c, abi.ClockRealtime, flags, target); err != nil {
			return 4
		}
		slept := mustGettime(c, abi.ClockMonotonic).Sub(start)
		if (flags == abi.TimerAbstime) == (slept.Sec >= 4) {
			return 4
		}
	}
	return 0
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
