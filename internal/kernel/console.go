package kernel

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/AgentOS/exokernel/internal/abi"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/hw"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/infrastructure/monitoring"
)

// tailSize bounds the output kept for late subscribers.
const tailSize = 8192

// Console is the kernel side of the terminal. Kernel messages go straight
// to the device; sys_cputs output is throttled per environment on machine
// time, and bytes over the limit are dropped. Everything written is also
// fanned out to subscribers without blocking.
type Console struct {
	dev     hw.Console
	now     func() time.Time
	metrics *monitoring.Metrics

	limit    rate.Limit
	burst    int
	limiters map[abi.EnvID]*rate.Limiter

	mu     sync.Mutex
	subs   map[int]chan []byte
	nextID int
	tail   []byte
}

func newConsole(dev hw.Console, cfg config.ConsoleConfig, now func() time.Time, m *monitoring.Metrics) *Console {
	c := &Console{
		dev:      dev,
		now:      now,
		metrics:  m,
		limit:    rate.Inf,
		burst:    cfg.Burst,
		limiters: make(map[abi.EnvID]*rate.Limiter),
		subs:     make(map[int]chan []byte),
	}
	if cfg.Rate > 0 {
		c.limit = rate.Limit(cfg.Rate)
		c.burst = max(cfg.Burst, 1)
	}
	return c
}

// consoleTime is machine wall-clock time, so throttling follows the
// simulated clock on a simulated machine.
func (k *Kernel) consoleTime() time.Time {
	up := k.clocks.Uptime()
	return time.Unix(k.clocks.BootEpoch(), 0).Add(up.Duration())
}

// Printf writes a kernel message.
func (c *Console) Printf(format string, args ...any) {
	b := []byte(fmt.Sprintf(format, args...))
	c.write(b)
	c.metrics.RecordConsole(len(b), 0)
}

// put writes user output on behalf of id.
func (c *Console) put(id abi.EnvID, b []byte) {
	n := len(b)
	if c.limit != rate.Inf {
		lim, ok := c.limiters[id]
		if !ok {
			lim = rate.NewLimiter(c.limit, c.burst)
			c.limiters[id] = lim
		}
		now := c.now()
		n = min(n, int(lim.TokensAt(now)))
		if n > 0 && !lim.AllowN(now, n) {
			n = 0
		}
	}
	if n > 0 {
		c.write(b[:n])
	}
	c.metrics.RecordConsole(n, len(b)-n)
}

// forget drops the limiter of a freed environment.
func (c *Console) forget(id abi.EnvID) {
	delete(c.limiters, id)
}

func (c *Console) write(b []byte) {
	_, _ = c.dev.Write(b)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.tail = append(c.tail, b...)
	if over := len(c.tail) - tailSize; over > 0 {
		c.tail = append(c.tail[:0], c.tail[over:]...)
	}
	for _, ch := range c.subs {
		out := append([]byte(nil), b...)
		select {
		case ch <- out:
		default:
		}
	}
}

// Getc polls the device for one input byte.
func (c *Console) Getc() (byte, bool) {
	return c.dev.Getc()
}

// Subscribe returns a channel receiving every later write and a function
// that cancels the subscription. A subscriber that falls behind by more
// than buf writes misses output.
func (c *Console) Subscribe(buf int) (<-chan []byte, func()) {
	ch := make(chan []byte, buf)

	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = ch
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// Tail returns the most recent output.
func (c *Console) Tail() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.tail...)
}
