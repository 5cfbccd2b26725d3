package kernel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/GriffinCanCode/AgentOS/exokernel/internal/abi"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/shared/timespec"
)

func readTS(c *CPU, va uint32) timespec.Timespec {
	var b [abi.TimespecSize]byte
	c.Read(va, b[:])
	ts, _ := abi.UnmarshalTimespec(b[:])
	return ts.ToTimespec()
}

func clockGet(c *CPU, clock abi.ClockID) (timespec.Timespec, int32) {
	va := c.Push(make([]byte, abi.TimespecSize))
	defer c.Pop(abi.TimespecSize)
	ret := c.Invoke(abi.ClockGettime{Clock: clock, TP: va})
	return readTS(c, va), ret
}

func clockSet(c *CPU, clock abi.ClockID, v abi.Timespec) int32 {
	va := c.Push(v.Marshal())
	defer c.Pop(abi.TimespecSize)
	return c.Invoke(abi.ClockSettime{Clock: clock, TP: va})
}

// nanosleep sleeps and returns the result and the reported remainder.
func nanosleep(c *CPU, clock abi.ClockID, flags uint32, req timespec.Timespec) (int32, timespec.Timespec) {
	rem := c.Push(abi.Timespec{Sec: -1}.Marshal())
	reqVA := c.Push(abi.FromTimespec(req).Marshal())
	defer c.Pop(2 * abi.TimespecSize)
	ret := c.Invoke(abi.ClockNanosleep{Clock: clock, Flags: flags, Req: reqVA, Rem: rem})
	return ret, readTS(c, rem)
}

func TestAbsoluteSleepWakes(t *testing.T) {
	r := newRig(t, nil)
	id := r.spawn(t, "sleeper", func(c *CPU) {
		now, _ := clockGet(c, abi.ClockRealtime)
		deadline := now.Add(timespec.Timespec{Sec: 2})

		ret, rem := nanosleep(c, abi.ClockRealtime, abi.TimerAbstime, deadline)
		assert.EqualValues(t, 0, ret)
		assert.Equal(t, timespec.Timespec{}, rem)

		after, _ := clockGet(c, abi.ClockRealtime)
		assert.GreaterOrEqual(t, timespec.Compare(after, deadline), 0)
		assert.Less(t, after.Sub(deadline).Duration(), 100*time.Millisecond)
	})
	r.run(t)

	trans := r.transitions(id)
	assert.Subset(t, trans, []abi.EnvStatus{abi.EnvSleeping})
	for i, s := range trans {
		if s == abi.EnvSleeping {
			assert.Equal(t, []abi.EnvStatus{abi.EnvRunnable, abi.EnvRunning}, trans[i+1:i+3])
		}
	}
}

func TestRelativeSleepUsesMonotonic(t *testing.T) {
	r := newRig(t, nil)
	r.spawn(t, "sleeper", func(c *CPU) {
		start, _ := clockGet(c, abi.ClockMonotonic)
		assert.EqualValues(t, 0, clockSet(c, abi.ClockRealtime, abi.Timespec{Sec: 5}))

		ret, rem := nanosleep(c, abi.ClockRealtime, 0, timespec.Timespec{Sec: 1, Nsec: 500_000_000})
		assert.EqualValues(t, 0, ret)
		assert.Equal(t, timespec.Timespec{}, rem)

		end, _ := clockGet(c, abi.ClockMonotonic)
		assert.GreaterOrEqual(t, end.Sub(start).Duration(), 1500*time.Millisecond)
	})
	r.run(t)
}

func TestSleepersWakeInDeadlineOrder(t *testing.T) {
	r := newRig(t, nil)
	for _, d := range []int64{3, 1, 2} {
		r.spawn(t, "sleeper", func(c *CPU) {
			nanosleep(c, abi.ClockMonotonic, 0, timespec.Timespec{Sec: d})
			cputs(c, string(rune('0'+d)))
		})
	}
	r.run(t)
	assert.Equal(t, "123"+quiescent, r.cons.String())
}

func TestNanosleepRejects(t *testing.T) {
	r := newRig(t, nil)
	r.spawn(t, "bad", func(c *CPU) {
		tests := []struct {
			clock abi.ClockID
			req   timespec.Timespec
		}{
			{abi.ClockProcessCPUTime, timespec.Timespec{Sec: 1}},
			{abi.ClockNum, timespec.Timespec{Sec: 1}},
			{-1, timespec.Timespec{Sec: 1}},
			{abi.ClockMonotonic, timespec.Timespec{Sec: -1}},
			{abi.ClockMonotonic, timespec.Timespec{Nsec: 1_000_000_000}},
			{abi.ClockRealtime, timespec.Timespec{Nsec: -5}},
		}
		for _, tt := range tests {
			ret, _ := nanosleep(c, tt.clock, 0, tt.req)
			assert.Equal(t, abi.EInval.Result(), ret, "%v %v", tt.clock, tt.req)
		}
	})
	r.run(t)
	assert.NotContains(t, r.transitions(0x1000), abi.EnvSleeping)
}

func TestSettime(t *testing.T) {
	r := newRig(t, nil)
	r.spawn(t, "setter", func(c *CPU) {
		assert.Equal(t, abi.EInval.Result(), clockSet(c, abi.ClockMonotonic, abi.Timespec{Sec: 1}))
		assert.Equal(t, abi.EInval.Result(), clockSet(c, 7, abi.Timespec{Sec: 1}))
		assert.Equal(t, abi.EInval.Result(), clockSet(c, abi.ClockRealtime, abi.Timespec{Sec: -1}))
		assert.Equal(t, abi.EInval.Result(), clockSet(c, abi.ClockRealtime, abi.Timespec{Sec: 1, Nsec: 1_000_000_000}))

		for _, clock := range []abi.ClockID{abi.ClockRealtime, abi.ClockProcessCPUTime} {
			assert.EqualValues(t, 0, clockSet(c, clock, abi.Timespec{Sec: 1000}))
			now, ret := clockGet(c, clock)
			assert.EqualValues(t, 0, ret)
			assert.EqualValues(t, 1000, now.Sec)
		}
		mono, _ := clockGet(c, abi.ClockMonotonic)
		assert.Less(t, mono.Sec, int64(1000))
	})
	r.run(t)
}

func TestGetresAndGettime(t *testing.T) {
	r := newRig(t, nil)
	r.spawn(t, "reader", func(c *CPU) {
		var first timespec.Timespec
		for clock := abi.ClockMonotonic; clock < abi.ClockNum; clock++ {
			va := c.Push(make([]byte, abi.TimespecSize))
			assert.EqualValues(t, 0, c.Invoke(abi.ClockGetres{Clock: clock, Res: va}))
			res := readTS(c, va)
			c.Pop(abi.TimespecSize)
			if clock == abi.ClockMonotonic {
				first = res
			}
			assert.Equal(t, first, res)
		}
		_, ret := clockGet(c, 42)
		assert.Equal(t, abi.EInval.Result(), ret)

		boot := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC).Unix()
		wall := c.Invoke(abi.Gettime{})
		assert.InDelta(t, boot, int64(wall), 1)
		assert.EqualValues(t, wall, int32(c.Load32(abi.UVSys+4*abi.VSysGettime)))

		rt, _ := clockGet(c, abi.ClockRealtime)
		assert.InDelta(t, int64(wall), rt.Sec, 1)
	})
	r.run(t)
}

func TestGettimeBadPointerDestroys(t *testing.T) {
	r := newRig(t, nil)
	r.spawn(t, "bad", func(c *CPU) {
		c.Invoke(abi.ClockGettime{Clock: abi.ClockMonotonic, TP: abi.UVSys})
	})
	r.run(t)
	assert.Contains(t, r.cons.String(), "user_mem_check assertion failure for va eefff000")
}
