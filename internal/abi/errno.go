package abi

import "fmt"

// Errno is a kernel error code. Syscalls return it negated.
type Errno int32

const (
	EUnspecified Errno = 1 + iota // unspecified or unknown problem
	EBadEnv                       // environment doesn't exist or otherwise cannot be used
	EInval                        // invalid parameter
	ENoMem                        // request failed due to memory shortage
	ENoFreeEnv                    // no free environment slot
	EFault                        // memory fault
	EIPCNotRecv                   // target is not receiving
)

var errnoText = map[Errno]string{
	EUnspecified: "unspecified error",
	EBadEnv:      "bad environment",
	EInval:       "invalid parameter",
	ENoMem:       "out of memory",
	ENoFreeEnv:   "out of environments",
	EFault:       "segmentation fault",
	EIPCNotRecv:  "env is not recving",
}

var errnoNames = map[Errno]string{
	EUnspecified: "E_UNSPECIFIED",
	EBadEnv:      "E_BAD_ENV",
	EInval:       "E_INVAL",
	ENoMem:       "E_NO_MEM",
	ENoFreeEnv:   "E_NO_FREE_ENV",
	EFault:       "E_FAULT",
	EIPCNotRecv:  "E_IPC_NOT_RECV",
}

// Name is the symbolic name of e, like E_INVAL.
func (e Errno) Name() string {
	if s, ok := errnoNames[e]; ok {
		return s
	}
	return "E_UNKNOWN"
}

func (e Errno) Error() string {
	if s, ok := errnoText[e]; ok {
		return s
	}
	return fmt.Sprintf("error %d", int32(e))
}

// Result is the value a syscall returns for e.
func (e Errno) Result() int32 { return -int32(e) }

// ResultName labels a syscall return value: "ok" or the errno name.
func ResultName(r int32) string {
	if r >= 0 {
		return "ok"
	}
	return Errno(-r).Name()
}

// ResultError converts a syscall return value into an error, nil for r >= 0.
func ResultError(r int32) error {
	if r >= 0 {
		return nil
	}
	return Errno(-r)
}
