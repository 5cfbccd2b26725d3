package abi

import "fmt"

// Syscall is a system call number.
type Syscall uint32

const (
	SysCputs Syscall = iota
	SysCgetc
	SysGetenvid
	SysEnvDestroy
	SysPageAlloc
	SysPageMap
	SysPageUnmap
	SysExofork
	SysEnvSetStatus
	SysEnvSetTrapframe
	SysEnvSetPgfaultUpcall
	SysYield
	SysIPCTrySend
	SysIPCRecv
	SysGettime
	SysClockGetres
	SysClockGettime
	SysClockSettime
	SysClockNanosleep
	NSyscalls
)

var syscallNames = [NSyscalls]string{
	SysCputs:               "cputs",
	SysCgetc:               "cgetc",
	SysGetenvid:            "getenvid",
	SysEnvDestroy:          "env_destroy",
	SysPageAlloc:           "page_alloc",
	SysPageMap:             "page_map",
	SysPageUnmap:           "page_unmap",
	SysExofork:             "exofork",
	SysEnvSetStatus:        "env_set_status",
	SysEnvSetTrapframe:     "env_set_trapframe",
	SysEnvSetPgfaultUpcall: "env_set_pgfault_upcall",
	SysYield:               "yield",
	SysIPCTrySend:          "ipc_try_send",
	SysIPCRecv:             "ipc_recv",
	SysGettime:             "gettime",
	SysClockGetres:         "clock_getres",
	SysClockGettime:        "clock_gettime",
	SysClockSettime:        "clock_settime",
	SysClockNanosleep:      "clock_nanosleep",
}

func (s Syscall) String() string {
	if s < NSyscalls {
		return syscallNames[s]
	}
	return fmt.Sprintf("syscall(%d)", uint32(s))
}

// Args is the raw argument block of a syscall trap.
type Args [5]uint32
