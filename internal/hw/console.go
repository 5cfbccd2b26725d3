package hw

import (
	"bufio"
	"bytes"
	"io"
	"sync"
)

// Console is a character device: output is written in chunks, input is
// polled one byte at a time without blocking.
type Console interface {
	io.Writer
	// Getc returns the next input byte, or false if none is waiting.
	Getc() (byte, bool)
}

// BufferConsole keeps output in memory and serves input from a queue.
type BufferConsole struct {
	mu  sync.Mutex
	out bytes.Buffer
	in  []byte
}

// NewBufferConsole returns an empty console.
func NewBufferConsole() *BufferConsole {
	return &BufferConsole{}
}

func (c *BufferConsole) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.Write(p)
}

func (c *BufferConsole) Getc() (byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.in) == 0 {
		return 0, false
	}
	b := c.in[0]
	c.in = c.in[1:]
	return b, true
}

// Feed queues input.
func (c *BufferConsole) Feed(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.in = append(c.in, s...)
}

// String returns everything written so far.
func (c *BufferConsole) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.String()
}

// StreamConsole writes to w and reads input from r in the background.
type StreamConsole struct {
	w  io.Writer
	mu sync.Mutex
	in chan byte
}

// NewStreamConsole starts a reader goroutine on r; it exits when r does.
func NewStreamConsole(w io.Writer, r io.Reader) *StreamConsole {
	c := &StreamConsole{w: w, in: make(chan byte, 512)}
	if r != nil {
		go c.pump(r)
	}
	return c
}

func (c *StreamConsole) pump(r io.Reader) {
	br := bufio.NewReader(r)
	for {
		b, err := br.ReadByte()
		if err != nil {
			return
		}
		c.in <- b
	}
}

func (c *StreamConsole) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.w.Write(p)
}

func (c *StreamConsole) Getc() (byte, bool) {
	select {
	case b := <-c.in:
		return b, true
	default:
		return 0, false
	}
}
