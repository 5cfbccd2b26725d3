// Package clock keeps the kernel's logical clocks.
//
// All three clocks are derived from the time stamp counter. The monotonic
// clock is the counter itself converted at the calibrated rate and can
// never be set. The realtime clock starts at the calendar chip's reading
// taken at boot and the process CPU-time clock starts at zero; both carry
// an offset that Set recomputes. Every reading is truncated to the counter
// resolution, which is the same for all clocks.
package clock

import (
	"errors"
	"fmt"

	"github.com/GriffinCanCode/AgentOS/exokernel/internal/abi"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/hw"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/shared/timespec"
)

var (
	// ErrUnknownClock is returned for an id outside the clock table.
	ErrUnknownClock = errors.New("unknown clock")
	// ErrNotSettable is returned when setting the monotonic clock.
	ErrNotSettable = errors.New("clock cannot be set")
	// ErrInvalidTime is returned for a malformed time value.
	ErrInvalidTime = errors.New("invalid time value")
)

// Registry holds the per-clock offsets.
type Registry struct {
	tsc       func() uint64
	hz        uint64
	bootTSC   uint64
	bootEpoch int64
	res       timespec.Timespec
	offset    [abi.ClockNum]timespec.Timespec
}

// New calibrates the counter of m and reads the calendar chip once.
func New(m hw.Machine) *Registry {
	hz := hw.CalibrateTSC(m)
	return NewWithRate(m.ReadTSC, hz, hw.NewRTC(m).Gettime())
}

// NewWithRate builds a registry over a counter running at hz whose current
// reading corresponds to bootEpoch seconds of wall-clock time.
func NewWithRate(tsc func() uint64, hz uint64, bootEpoch int64) *Registry {
	if hz == 0 {
		hz = 1
	}
	res := (timespec.NanosPerSecond + hz - 1) / hz
	return &Registry{
		tsc:       tsc,
		hz:        hz,
		bootTSC:   tsc(),
		bootEpoch: bootEpoch,
		res:       timespec.Timespec{Nsec: int64(res)}.Normalize(),
	}
}

// Hz is the calibrated counter rate.
func (r *Registry) Hz() uint64 { return r.hz }

// Uptime is the time since the registry was built, untruncated.
func (r *Registry) Uptime() timespec.Timespec {
	return timespec.FromTicks(r.tsc()-r.bootTSC, r.hz)
}

// BootEpoch is the calendar chip's reading at boot.
func (r *Registry) BootEpoch() int64 { return r.bootEpoch }

// Wallclock is the unadjusted wall-clock time in whole seconds.
func (r *Registry) Wallclock() int64 {
	return r.bootEpoch + r.Uptime().Sec
}

func (r *Registry) base(id abi.ClockID) timespec.Timespec {
	up := r.Uptime()
	if id == abi.ClockRealtime {
		return up.Add(timespec.Timespec{Sec: r.bootEpoch})
	}
	return up
}

// Get reads a clock.
func (r *Registry) Get(id abi.ClockID) (timespec.Timespec, error) {
	if !id.Valid() {
		return timespec.Timespec{}, fmt.Errorf("get %v: %w", id, ErrUnknownClock)
	}
	return r.base(id).Add(r.offset[id]).Truncate(r.res), nil
}

// MustGet reads a clock known to be valid.
func (r *Registry) MustGet(id abi.ClockID) timespec.Timespec {
	t, err := r.Get(id)
	if err != nil {
		panic(err)
	}
	return t
}

// Set makes clock id read v from now on.
func (r *Registry) Set(id abi.ClockID, v timespec.Timespec) error {
	switch {
	case !id.Valid():
		return fmt.Errorf("set %v: %w", id, ErrUnknownClock)
	case id == abi.ClockMonotonic:
		return fmt.Errorf("set %v: %w", id, ErrNotSettable)
	case !v.Valid():
		return fmt.Errorf("set %v to %d.%09d: %w", id, v.Sec, v.Nsec, ErrInvalidTime)
	}
	r.offset[id] = v.Sub(r.base(id))
	return nil
}

// Resolution is the granularity of a clock.
func (r *Registry) Resolution(id abi.ClockID) (timespec.Timespec, error) {
	if !id.Valid() {
		return timespec.Timespec{}, fmt.Errorf("getres %v: %w", id, ErrUnknownClock)
	}
	return r.res, nil
}

// Snapshot reads every clock.
func (r *Registry) Snapshot() [abi.ClockNum]timespec.Timespec {
	var out [abi.ClockNum]timespec.Timespec
	for id := range abi.ClockNum {
		out[id] = r.MustGet(id)
	}
	return out
}
