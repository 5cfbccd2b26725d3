// Package env holds environment records and the fixed-capacity table they
// live in. Identifiers carry a generation above the slot index, so an id
// that outlives its environment never resolves to the slot's next tenant.
package env

import (
	"errors"
	"fmt"

	"github.com/GriffinCanCode/AgentOS/exokernel/internal/abi"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/mem"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/shared/timespec"
)

var (
	// ErrNoFreeEnv is returned when every slot is in use.
	ErrNoFreeEnv = errors.New("no free environment")
	// ErrBadEnv is returned for a stale id or one the caller may not touch.
	ErrBadEnv = errors.New("bad environment")
)

// Env is one environment.
type Env struct {
	ID       abi.EnvID
	ParentID abi.EnvID
	Status   abi.EnvStatus
	Runs     uint32
	Name     string

	TF    abi.TrapFrame
	PgDir *mem.PageDir

	PgfaultUpcall uint32

	IPCRecving bool
	IPCDstVA   uint32
	IPCValue   uint32
	IPCFrom    abi.EnvID
	IPCPerm    uint32

	SleepClock abi.ClockID
	WakeAt     timespec.Timespec
}

// Slot is the table index of e.
func (e *Env) Slot() int { return abi.ENVX(e.ID) }

// Info is the user-visible view of e.
func (e *Env) Info() abi.EnvInfo {
	return abi.EnvInfo{
		ID:            e.ID,
		ParentID:      e.ParentID,
		Status:        e.Status,
		Runs:          e.Runs,
		PgfaultUpcall: e.PgfaultUpcall,
		IPCRecving:    e.IPCRecving,
		IPCDstVA:      e.IPCDstVA,
		IPCValue:      e.IPCValue,
		IPCFrom:       e.IPCFrom,
		IPCPerm:       e.IPCPerm,
	}
}

func (e *Env) String() string {
	return fmt.Sprintf("[%v] %s %v", e.ID, e.Name, e.Status)
}

// Table is the environment arena.
type Table struct {
	envs []Env
	free []int // stack, top is the next slot handed out
}

// NewTable returns a table of abi.NEnv free slots. Slots are handed out
// lowest first until some are recycled.
func NewTable() *Table {
	t := &Table{
		envs: make([]Env, abi.NEnv),
		free: make([]int, 0, abi.NEnv),
	}
	for i := abi.NEnv - 1; i >= 0; i-- {
		t.free = append(t.free, i)
	}
	return t
}

// Len is the table capacity.
func (t *Table) Len() int { return len(t.envs) }

// At returns slot i.
func (t *Table) At(i int) *Env { return &t.envs[i] }

// Alloc claims a slot for a child of parent. The new record is RUNNABLE
// with a zero trap frame and no address space.
func (t *Table) Alloc(parent abi.EnvID) (*Env, error) {
	n := len(t.free)
	if n == 0 {
		return nil, ErrNoFreeEnv
	}
	slot := t.free[n-1]
	t.free = t.free[:n-1]

	e := &t.envs[slot]
	gen := (e.ID + (1 << abi.EnvGenShift)) &^ (abi.NEnv - 1)
	if gen <= 0 {
		gen = 1 << abi.EnvGenShift
	}

	*e = Env{
		ID:       gen | abi.EnvID(slot),
		ParentID: parent,
		Status:   abi.EnvRunnable,
	}
	return e, nil
}

// Free releases e's slot. The caller has already torn down its address
// space. The id is kept so the next Alloc of the slot bumps its generation.
func (t *Table) Free(e *Env) {
	id := e.ID
	*e = Env{ID: id, Status: abi.EnvFree}
	t.free = append(t.free, abi.ENVX(id))
}

// Lookup resolves id on behalf of cur. Id 0 means cur itself. With
// mustOwn set, the target must be cur or one of its immediate children.
func (t *Table) Lookup(id abi.EnvID, cur *Env, mustOwn bool) (*Env, error) {
	if id == 0 {
		if cur == nil {
			return nil, fmt.Errorf("lookup 0 with no current env: %w", ErrBadEnv)
		}
		return cur, nil
	}

	e := &t.envs[abi.ENVX(id)]
	if e.Status == abi.EnvFree || e.ID != id {
		return nil, fmt.Errorf("lookup %v: %w", id, ErrBadEnv)
	}

	if mustOwn && (cur == nil || (e != cur && e.ParentID != cur.ID)) {
		return nil, fmt.Errorf("lookup %v: not owned: %w", id, ErrBadEnv)
	}
	return e, nil
}

// Each calls fn for every allocated record in slot order.
func (t *Table) Each(fn func(*Env)) {
	for i := range t.envs {
		if t.envs[i].Status != abi.EnvFree {
			fn(&t.envs[i])
		}
	}
}

// Count returns the number of records in each status.
func (t *Table) Count() map[abi.EnvStatus]int {
	out := make(map[abi.EnvStatus]int)
	for i := range t.envs {
		out[t.envs[i].Status]++
	}
	return out
}
