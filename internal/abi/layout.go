// Package abi defines the user/kernel boundary: the numeric syscall ABI,
// error codes, page-table permission bits, the user address-space layout
// and the binary layout of the structures the kernel and user code share
// through memory.
package abi

// ============================================================================
// Paging
// ============================================================================

const (
	PageSize   = 4096
	PageShift  = 12
	NPDEntries = 1024
	NPTEntries = 1024
	PTSize     = PageSize * NPTEntries // bytes mapped by one page directory entry
	PTXShift   = 12
	PDXShift   = 22
)

// Page table entry bits.
const (
	PteP     = 0x001 // present
	PteW     = 0x002 // writeable
	PteU     = 0x004 // user
	PteAvail = 0xE00 // available for software use

	// PteShare marks a page that fork maps into the child unchanged.
	PteShare = 0x400
	// PteCOW marks a copy-on-write page.
	PteCOW = 0x800

	// PteSyscall is every bit user code may pass to a mapping syscall.
	PteSyscall = PteAvail | PteP | PteW | PteU

	// PteFlags masks the permission part of an entry.
	PteFlags = 0xFFF
)

// PDX returns the page directory index of va.
func PDX(va uint32) uint32 { return (va >> PDXShift) & 0x3FF }

// PTX returns the page table index of va.
func PTX(va uint32) uint32 { return (va >> PTXShift) & 0x3FF }

// PGNUM returns the page number of va.
func PGNUM(va uint32) uint32 { return va >> PageShift }

// PGOFF returns the offset of va within its page.
func PGOFF(va uint32) uint32 { return va & (PageSize - 1) }

// PGADDR builds a virtual address from its parts.
func PGADDR(pdx, ptx, off uint32) uint32 {
	return pdx<<PDXShift | ptx<<PTXShift | off
}

// PTEAddr returns the physical address held in a page table entry.
func PTEAddr(pte uint32) uint32 { return pte &^ PteFlags }

// RoundDown rounds va down to a multiple of n, a power of two.
func RoundDown(va, n uint32) uint32 { return va &^ (n - 1) }

// RoundUp rounds va up to a multiple of n, a power of two.
func RoundUp(va, n uint32) uint32 { return RoundDown(va+n-1, n) }

// Aligned reports whether va is page aligned.
func Aligned(va uint32) bool { return va%PageSize == 0 }

// ============================================================================
// User address-space layout
// ============================================================================
//
//	ULIM        0xef800000  top of user-visible memory
//	UVPT        0xef400000  read-only page table view (PTSize)
//	UPAGES      0xef000000  read-only page info
//	UVSYS       0xeefff000  read-only vsyscall page
//	UENVS,UTOP  0xeec00000  read-only env table view
//	UXSTACKTOP  0xeec00000  user exception stack, one page below
//	            0xeebff000  empty
//	USTACKTOP   0xeebfe000  normal user stack grows down
//	UDATA       0x00c00000  user library globals
//	UTEXT       0x00800000  program text
//	PFTEMP      0x007ff000  scratch page for the fault handler
//	UTEMP       0x00400000  scratch mappings

const (
	ULim       = 0xEF800000
	UVPT       = ULim - PTSize
	UPages     = UVPT - PTSize
	UEnvs      = UPages - PTSize
	UVSys      = UPages - PageSize
	UTop       = UEnvs
	UXStackTop = UTop
	UStackTop  = UTop - 2*PageSize
	UTemp      = PTSize
	PFTemp     = UTemp + PTSize - PageSize
	UText      = 2 * PTSize
	UData      = UText + PTSize
)

// Offsets inside the user data page.
const (
	UDataPgfaultHandler = 0 // address of the registered fault handler
	UDataThisEnv        = 4 // envid of the running environment
)

// Word indices inside the vsyscall page.
const (
	VSysGettime  = iota // wall-clock seconds
	VSysMonoSec         // monotonic seconds
	VSysMonoNsec        // monotonic nanoseconds
	NVSyscalls
)

// ============================================================================
// Traps
// ============================================================================

const (
	TPgflt    = 14
	TSyscall  = 48
	IRQOffset = 32
	IRQTimer  = 0
	IRQKbd    = 1
	IRQClock  = 8
)

// FLIF is the interrupt-enable bit of EFLAGS.
const FLIF = 0x200

// Page fault error code bits.
const (
	FECPr = 0x1 // protection violation, otherwise page not present
	FECWr = 0x2 // caused by a write
	FECU  = 0x4 // raised in user mode
)

// Segment selectors user trap frames carry.
const (
	GDUT = 0x18 | 3
	GDUD = 0x20 | 3
)
