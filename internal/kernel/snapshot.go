package kernel

import (
	"encoding/binary"

	"github.com/GriffinCanCode/AgentOS/exokernel/internal/abi"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/env"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/shared/timespec"
)

// EnvSnapshot is one environment as of a snapshot.
type EnvSnapshot struct {
	ID         abi.EnvID `json:"-"`
	EnvID      string    `json:"id"`
	ParentID   string    `json:"parent_id"`
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	Runs       uint32    `json:"runs"`
	Upcall     uint32    `json:"pgfault_upcall,omitempty"`
	IPCRecving bool      `json:"ipc_recving"`
	IPCFrom    string    `json:"ipc_from,omitempty"`
	SleepClock string    `json:"sleep_clock,omitempty"`
	WakeAt     string    `json:"wake_at,omitempty"`
}

// ClockSnapshot is one clock reading.
type ClockSnapshot struct {
	Name  string `json:"name"`
	Sec   int64  `json:"sec"`
	Nsec  int64  `json:"nsec"`
	Value string `json:"value"`
}

// Snapshot is a consistent view of the kernel, published by the CPU at
// every scheduling decision. It is safe to read from any goroutine.
type Snapshot struct {
	BootID     string          `json:"boot_id"`
	Seq        uint64          `json:"seq"`
	Uptime     string          `json:"uptime"`
	Wallclock  string          `json:"wallclock"`
	Resolution string          `json:"resolution"`
	Clocks     []ClockSnapshot `json:"clocks"`
	Current    string          `json:"current,omitempty"`
	Envs       []EnvSnapshot   `json:"envs"`
	FreePages  int             `json:"free_pages"`
	NPages     int             `json:"npages"`
	TextLen    int             `json:"text_entries"`
	TSCHz      uint64          `json:"tsc_hz"`
	Halted     bool            `json:"halted"`
}

// Env finds an environment by id.
func (s *Snapshot) Env(id abi.EnvID) (EnvSnapshot, bool) {
	for _, e := range s.Envs {
		if e.ID == id {
			return e, true
		}
	}
	return EnvSnapshot{}, false
}

// Count returns the number of environments in status.
func (s *Snapshot) Count(status abi.EnvStatus) int {
	n := 0
	for _, e := range s.Envs {
		if e.Status == status.String() {
			n++
		}
	}
	return n
}

// Snapshot returns the latest published view.
func (k *Kernel) Snapshot() *Snapshot {
	return k.snap.Load()
}

// publish refreshes the snapshot, the metric gauges and the vsyscall page.
func (k *Kernel) publish() {
	k.seq++
	up := k.clocks.Uptime()
	res, _ := k.clocks.Resolution(abi.ClockMonotonic)

	s := &Snapshot{
		BootID:     k.bootID.String(),
		Seq:        k.seq,
		Uptime:     up.String(),
		Wallclock:  timespec.EpochToCalendar(k.clocks.Wallclock()).String(),
		Resolution: res.String(),
		FreePages:  k.phys.FreeCount(),
		NPages:     k.phys.NPages(),
		TextLen:    k.text.Len(),
		TSCHz:      k.clocks.Hz(),
		Halted:     k.finished,
	}
	for id, v := range k.clocks.Snapshot() {
		s.Clocks = append(s.Clocks, ClockSnapshot{
			Name:  abi.ClockID(id).String(),
			Sec:   v.Sec,
			Nsec:  v.Nsec,
			Value: v.String(),
		})
	}
	if k.cur != nil {
		s.Current = k.cur.ID.String()
	}

	counts := make(map[string]int)
	k.envs.Each(func(e *env.Env) {
		s.Envs = append(s.Envs, envSnapshot(e))
		counts[e.Status.String()]++
	})
	k.snap.Store(s)

	k.metrics.SetEnvsByStatus(counts)
	k.metrics.SetFreePages(s.FreePages)
	k.metrics.SetUptime(up.Duration())
	k.updateVsys()
}

func envSnapshot(e *env.Env) EnvSnapshot {
	es := EnvSnapshot{
		ID:         e.ID,
		EnvID:      e.ID.String(),
		ParentID:   e.ParentID.String(),
		Name:       e.Name,
		Status:     e.Status.String(),
		Runs:       e.Runs,
		Upcall:     e.PgfaultUpcall,
		IPCRecving: e.IPCRecving,
	}
	if e.IPCFrom != 0 {
		es.IPCFrom = e.IPCFrom.String()
	}
	if e.Status == abi.EnvSleeping {
		es.SleepClock = e.SleepClock.String()
		es.WakeAt = e.WakeAt.String()
	}
	return es
}

// updateVsys writes the words user code reads without a system call.
func (k *Kernel) updateVsys() {
	page := k.phys.Page(k.vsys)
	binary.LittleEndian.PutUint32(page[4*abi.VSysGettime:], uint32(k.clocks.Wallclock()))
	mono := k.clocks.MustGet(abi.ClockMonotonic)
	binary.LittleEndian.PutUint32(page[4*abi.VSysMonoSec:], uint32(mono.Sec))
	binary.LittleEndian.PutUint32(page[4*abi.VSysMonoNsec:], uint32(mono.Nsec))
}
