// Package id generates the identifiers the kernel's outer surfaces use:
// one boot id per kernel instance and the span and trace ids of traced
// system calls.
//
// Identifiers are prefixed ULIDs (boot_*, span_*, trace_*). They sort by
// creation time and never look like environment ids, which are plain
// 32-bit integers.
package id

import (
	"crypto/rand"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// BootID identifies one kernel instance from New to the end of Run.
type BootID string

// SpanID identifies one traced operation.
type SpanID string

// TraceID groups the spans of one environment's lifetime.
type TraceID string

func (b BootID) String() string  { return string(b) }
func (s SpanID) String() string  { return string(s) }
func (t TraceID) String() string { return string(t) }

const (
	BootPrefix  = "boot"
	SpanPrefix  = "span"
	TracePrefix = "trace"
)

// Source hands out ULIDs that strictly increase, even within one
// millisecond. It is safe for concurrent use.
type Source struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

// NewSource reads randomness from entropy, or crypto/rand when nil.
func NewSource(entropy io.Reader) *Source {
	if entropy == nil {
		entropy = rand.Reader
	}
	return &Source{entropy: ulid.Monotonic(entropy, 0), now: time.Now}
}

// Next returns the next ULID.
func (s *Source) Next() ulid.ULID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(s.now()), s.entropy)
}

// Prefixed returns prefix_<ulid>.
func (s *Source) Prefixed(prefix string) string {
	return prefix + "_" + s.Next().String()
}

var global = NewSource(nil)

func NewBootID() BootID   { return BootID(global.Prefixed(BootPrefix)) }
func NewSpanID() SpanID   { return SpanID(global.Prefixed(SpanPrefix)) }
func NewTraceID() TraceID { return TraceID(global.Prefixed(TracePrefix)) }

// Parse parses an id, with or without its type prefix.
func Parse(s string) (ulid.ULID, error) {
	if i := strings.LastIndexByte(s, '_'); i >= 0 {
		s = s[i+1:]
	}
	return ulid.ParseStrict(s)
}

// Created is the time an id was generated, to the millisecond.
func Created(s string) (time.Time, error) {
	u, err := Parse(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()), nil
}
