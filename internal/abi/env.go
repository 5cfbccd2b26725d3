package abi

import "fmt"

// EnvID names an environment. Zero means "the caller" wherever a syscall
// takes an id.
type EnvID int32

const (
	LogNEnv     = 10
	NEnv        = 1 << LogNEnv
	EnvGenShift = 12
)

// ENVX returns the table slot an id refers to.
func ENVX(id EnvID) int { return int(id) & (NEnv - 1) }

func (id EnvID) String() string { return fmt.Sprintf("%08x", uint32(id)) }

// EnvStatus is the scheduling state of an environment.
type EnvStatus uint32

const (
	EnvFree EnvStatus = iota
	EnvDying
	EnvRunnable
	EnvRunning
	EnvNotRunnable
	EnvSleeping
)

func (s EnvStatus) String() string {
	switch s {
	case EnvFree:
		return "free"
	case EnvDying:
		return "dying"
	case EnvRunnable:
		return "runnable"
	case EnvRunning:
		return "running"
	case EnvNotRunnable:
		return "not_runnable"
	case EnvSleeping:
		return "sleeping"
	default:
		return fmt.Sprintf("status(%d)", uint32(s))
	}
}

// ParseEnvStatus is the inverse of EnvStatus.String.
func ParseEnvStatus(s string) (EnvStatus, bool) {
	for st := EnvFree; st <= EnvSleeping; st++ {
		if st.String() == s {
			return st, true
		}
	}
	return 0, false
}

// Schedulable reports whether s keeps the system from being quiescent.
func (s EnvStatus) Schedulable() bool {
	return s == EnvRunnable || s == EnvRunning || s == EnvSleeping || s == EnvDying
}

// EnvInfo is the read-only view of an environment that user code sees
// through the UENVS window.
type EnvInfo struct {
	ID            EnvID
	ParentID      EnvID
	Status        EnvStatus
	Runs          uint32
	PgfaultUpcall uint32

	IPCRecving bool
	IPCDstVA   uint32
	IPCValue   uint32
	IPCFrom    EnvID
	IPCPerm    uint32
}
