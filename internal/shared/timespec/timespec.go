package timespec

import (
	"fmt"
	"time"
)

// NanosPerSecond is the number of nanoseconds in one second.
const NanosPerSecond = 1_000_000_000

// Timespec is a signed (seconds, nanoseconds) duration.
//
// A normalized value never mixes signs: both components are >= 0 or both
// are <= 0, and |Nsec| < NanosPerSecond.
type Timespec struct {
	Sec  int64
	Nsec int64
}

// New returns the normalized value of sec seconds plus nsec nanoseconds.
func New(sec, nsec int64) Timespec {
	return Timespec{Sec: sec, Nsec: nsec}.Normalize()
}

// FromDuration converts a time.Duration.
func FromDuration(d time.Duration) Timespec {
	return New(0, int64(d))
}

// Duration converts t to a time.Duration, saturating on overflow.
func (t Timespec) Duration() time.Duration {
	const maxSec = int64(1<<63-1) / NanosPerSecond
	switch {
	case t.Sec > maxSec:
		return time.Duration(1<<63 - 1)
	case t.Sec < -maxSec:
		return time.Duration(-1 << 63)
	}
	return time.Duration(t.Sec*NanosPerSecond + t.Nsec)
}

// Normalize carries whole seconds out of Nsec and removes any sign mismatch.
func (t Timespec) Normalize() Timespec {
	t.Sec += t.Nsec / NanosPerSecond
	t.Nsec %= NanosPerSecond

	switch {
	case t.Sec > 0 && t.Nsec < 0:
		t.Sec--
		t.Nsec += NanosPerSecond
	case t.Sec < 0 && t.Nsec > 0:
		t.Sec++
		t.Nsec -= NanosPerSecond
	}
	return t
}

// Add returns a+b, normalized.
func Add(a, b Timespec) Timespec {
	return Timespec{Sec: a.Sec + b.Sec, Nsec: a.Nsec + b.Nsec}.Normalize()
}

// Sub returns a-b, normalized.
func Sub(a, b Timespec) Timespec {
	return Timespec{Sec: a.Sec - b.Sec, Nsec: a.Nsec - b.Nsec}.Normalize()
}

// Add returns t+u.
func (t Timespec) Add(u Timespec) Timespec { return Add(t, u) }

// Sub returns t-u.
func (t Timespec) Sub(u Timespec) Timespec { return Sub(t, u) }

// Neg returns -t.
func (t Timespec) Neg() Timespec {
	return Timespec{Sec: -t.Sec, Nsec: -t.Nsec}.Normalize()
}

// IsNegative reports whether the normalized value is below zero.
func (t Timespec) IsNegative() bool {
	n := t.Normalize()
	return n.Sec < 0 || n.Nsec < 0
}

// Elapsed reports whether both components of t are non-negative, i.e. a
// deadline subtracted from the current time has been reached.
func (t Timespec) Elapsed() bool {
	return t.Sec >= 0 && t.Nsec >= 0
}

// Compare returns -1, 0 or +1 as a is less than, equal to or greater than b.
func Compare(a, b Timespec) int {
	d := Sub(a, b)
	switch {
	case d.Sec < 0 || d.Nsec < 0:
		return -1
	case d.Sec > 0 || d.Nsec > 0:
		return 1
	}
	return 0
}

// Valid reports whether t is acceptable as an absolute clock value or a
// requested sleep: non-negative seconds and nanoseconds in [0, 1e9).
func (t Timespec) Valid() bool {
	return t.Sec >= 0 && t.Nsec >= 0 && t.Nsec < NanosPerSecond
}

// Truncate rounds a non-negative t down to a multiple of res.
func (t Timespec) Truncate(res Timespec) Timespec {
	if res.Sec != 0 || res.Nsec <= 1 || t.IsNegative() {
		return t
	}
	t.Nsec -= t.Nsec % res.Nsec
	return t
}

// FromTicks converts a tick count at hz ticks per second.
func FromTicks(ticks, hz uint64) Timespec {
	if hz == 0 {
		return Timespec{}
	}
	sec := ticks / hz
	rem := ticks % hz
	// rem < hz, so rem*1e9 fits as long as hz < ~18 GHz
	return Timespec{Sec: int64(sec), Nsec: int64(rem * NanosPerSecond / hz)}
}

func (t Timespec) String() string {
	n := t.Normalize()
	if n.Sec < 0 || n.Nsec < 0 {
		return fmt.Sprintf("-%d.%09ds", -n.Sec, -n.Nsec)
	}
	return fmt.Sprintf("%d.%09ds", n.Sec, n.Nsec)
}
