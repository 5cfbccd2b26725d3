package abi

import (
	"encoding/binary"
	"fmt"

	"github.com/GriffinCanCode/AgentOS/exokernel/internal/shared/timespec"
)

// ClockID selects one of the logical clocks.
type ClockID int32

const (
	ClockMonotonic ClockID = iota
	ClockRealtime
	ClockProcessCPUTime
	ClockNum
)

// TimerAbstime makes clock_nanosleep interpret its request as a deadline.
const TimerAbstime = 1

// Valid reports whether c names a clock.
func (c ClockID) Valid() bool { return c >= 0 && c < ClockNum }

func (c ClockID) String() string {
	switch c {
	case ClockMonotonic:
		return "monotonic"
	case ClockRealtime:
		return "realtime"
	case ClockProcessCPUTime:
		return "process_cputime"
	default:
		return fmt.Sprintf("clock(%d)", int32(c))
	}
}

// TimespecSize is the in-memory size of a user timespec.
const TimespecSize = 8

// Timespec is the user-memory layout of a duration: two 32-bit words.
type Timespec struct {
	Sec  int32
	Nsec int32
}

// ToTimespec widens ts without normalizing it, so validation sees exactly
// what user code wrote.
func (ts Timespec) ToTimespec() timespec.Timespec {
	return timespec.Timespec{Sec: int64(ts.Sec), Nsec: int64(ts.Nsec)}
}

// FromTimespec narrows t to the user layout.
func FromTimespec(t timespec.Timespec) Timespec {
	return Timespec{Sec: int32(t.Sec), Nsec: int32(t.Nsec)}
}

// Marshal encodes ts.
func (ts Timespec) Marshal() []byte {
	b := make([]byte, TimespecSize)
	binary.LittleEndian.PutUint32(b[0:], uint32(ts.Sec))
	binary.LittleEndian.PutUint32(b[4:], uint32(ts.Nsec))
	return b
}

// UnmarshalTimespec decodes a user timespec from b.
func UnmarshalTimespec(b []byte) (Timespec, error) {
	if len(b) < TimespecSize {
		return Timespec{}, fmt.Errorf("timespec: short buffer (%d bytes)", len(b))
	}
	return Timespec{
		Sec:  int32(binary.LittleEndian.Uint32(b[0:])),
		Nsec: int32(binary.LittleEndian.Uint32(b[4:])),
	}, nil
}
