package resilience

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrCircuitOpen is returned without calling through while open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests is returned while half-open once every probe
	// slot is taken.
	ErrTooManyRequests = errors.New("too many probe requests")
)

// State is where a breaker is in its cycle.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

var stateNames = [...]string{"closed", "half-open", "open"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Settings configures a Breaker. Zero values take defaults.
type Settings struct {
	Probes        uint32                            // calls admitted while half-open (1)
	Window        time.Duration                     // closed-state counting period (1m)
	Cooldown      time.Duration                     // time spent open (30s)
	Trip          func(Counts) bool                 // opens the circuit after a failure (5 in a row)
	OnStateChange func(name string, from, to State) // optional
	Now           func() time.Time                  // clock (time.Now)
}

func (s *Settings) fill() {
	if s.Probes == 0 {
		s.Probes = 1
	}
	if s.Window == 0 {
		s.Window = time.Minute
	}
	if s.Cooldown == 0 {
		s.Cooldown = 30 * time.Second
	}
	if s.Trip == nil {
		s.Trip = func(c Counts) bool { return c.ConsecutiveFailures >= 5 }
	}
	if s.Now == nil {
		s.Now = time.Now
	}
}

// Counts are the outcomes seen in the current window or probe phase.
type Counts struct {
	Requests             uint32
	Successes            uint32
	Failures             uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

func (c *Counts) add(ok bool) {
	if ok {
		c.Successes++
		c.ConsecutiveSuccesses++
		c.ConsecutiveFailures = 0
		return
	}
	c.Failures++
	c.ConsecutiveFailures++
	c.ConsecutiveSuccesses = 0
}

// Breaker fails calls fast while the thing behind it is down.
type Breaker struct {
	name string
	set  Settings

	mu     sync.Mutex
	state  State
	counts Counts
	// phase changes on every transition and window reset; outcomes of
	// calls admitted in an older phase are ignored.
	phase    uint64
	deadline time.Time // end of the closed window or of the cooldown
}

// New returns a closed breaker.
func New(name string, s Settings) *Breaker {
	s.fill()
	return &Breaker{name: name, set: s, deadline: s.Now().Add(s.Window)}
}

// State is the state as of now.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tick(b.set.Now())
	return b.state
}

// Counts returns a copy of the current counts.
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Do runs fn through b. An error from fn counts as a failure; so does a
// panic, which is re-raised.
func Do[T any](b *Breaker, fn func() (T, error)) (T, error) {
	phase, err := b.enter()
	if err != nil {
		var zero T
		return zero, err
	}

	ok := false
	defer func() { b.leave(phase, ok) }()
	v, err := fn()
	ok = err == nil
	return v, err
}

func (b *Breaker) enter() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tick(b.set.Now())
	if b.state == StateOpen {
		return 0, ErrCircuitOpen
	}
	if b.state == StateHalfOpen && b.counts.Requests >= b.set.Probes {
		return 0, ErrTooManyRequests
	}
	b.counts.Requests++
	return b.phase, nil
}

func (b *Breaker) leave(phase uint64, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.set.Now()
	b.tick(now)
	if phase != b.phase {
		return
	}
	b.counts.add(ok)

	switch {
	case ok && b.state == StateHalfOpen && b.counts.ConsecutiveSuccesses >= b.set.Probes:
		b.moveTo(StateClosed, now)
	case !ok && (b.state == StateHalfOpen || b.set.Trip(b.counts)):
		b.moveTo(StateOpen, now)
	}
}

// tick applies what the passage of time alone does: a closed window
// resets its counts and an expired cooldown goes half-open. Half-open
// waits for its probes.
func (b *Breaker) tick(now time.Time) {
	if b.state == StateHalfOpen || now.Before(b.deadline) {
		return
	}
	if b.state == StateOpen {
		b.moveTo(StateHalfOpen, now)
		return
	}
	b.counts = Counts{}
	b.phase++
	b.deadline = now.Add(b.set.Window)
}

func (b *Breaker) moveTo(to State, now time.Time) {
	from := b.state
	b.state, b.counts = to, Counts{}
	b.phase++
	switch to {
	case StateClosed:
		b.deadline = now.Add(b.set.Window)
	case StateOpen:
		b.deadline = now.Add(b.set.Cooldown)
	}
	if b.set.OnStateChange != nil {
		b.set.OnStateChange(b.name, from, to)
	}
}
