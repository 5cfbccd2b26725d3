package kernel

import (
	"sync"

	"github.com/GriffinCanCode/AgentOS/exokernel/internal/abi"
)

// Routine is user code. It runs on the CPU of the environment whose
// instruction pointer names it and interacts with the kernel only through
// its CPU.
type Routine func(*CPU)

// textStride spaces entry points in the text segment.
const textStride = 16

// Text is the text segment shared by every address space: a table from
// instruction pointers to routines. Registering the same routine twice
// yields two entry points.
type Text struct {
	mu       sync.RWMutex
	routines []Routine
	names    map[string]uint32
}

// NewText returns an empty segment.
func NewText() *Text {
	return &Text{names: make(map[string]uint32)}
}

// Register places r in the segment and returns its entry point.
func (t *Text) Register(r Routine) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.register(r)
}

func (t *Text) register(r Routine) uint32 {
	t.routines = append(t.routines, r)
	return abi.UText + textStride*uint32(len(t.routines)-1)
}

// RegisterNamed registers r once under name; later calls return the
// first entry point.
func (t *Text) RegisterNamed(name string, r Routine) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if eip, ok := t.names[name]; ok {
		return eip
	}
	eip := t.register(r)
	t.names[name] = eip
	return eip
}

// Addr returns the entry point registered under name.
func (t *Text) Addr(name string) (uint32, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	eip, ok := t.names[name]
	return eip, ok
}

// Lookup returns the routine at eip.
func (t *Text) Lookup(eip uint32) (Routine, bool) {
	if eip < abi.UText || (eip-abi.UText)%textStride != 0 {
		return nil, false
	}
	i := int((eip - abi.UText) / textStride)

	t.mu.RLock()
	defer t.mu.RUnlock()
	if i >= len(t.routines) {
		return nil, false
	}
	return t.routines[i], true
}

// Len is the number of entry points.
func (t *Text) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.routines)
}
