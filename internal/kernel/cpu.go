package kernel

import (
	"encoding/binary"
	"runtime"

	"github.com/GriffinCanCode/AgentOS/exokernel/internal/abi"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/mem"
)

// CPU is the processor as seen by the user code of one environment. Every
// method is a point where the kernel may take the CPU away: the clock
// interrupt preempts there, and a destroyed environment stops there.
//
// Memory access goes through the environment's page directory with user
// permissions. A violation raises a page fault, which is either reflected
// to the environment's upcall or destroys it.
type CPU struct {
	k *Kernel
	t *task

	eip uint32
	esp uint32

	faultVA  uint32 // cr2
	detached bool
}

// ============================================================================
// Registers
// ============================================================================

// EIP is the current instruction pointer.
func (c *CPU) EIP() uint32 { return c.eip }

// SetEIP changes the instruction pointer saved on the next trap.
func (c *CPU) SetEIP(eip uint32) { c.eip = eip }

// ESP is the stack pointer.
func (c *CPU) ESP() uint32 { return c.esp }

// SetESP changes the stack pointer.
func (c *CPU) SetESP(esp uint32) { c.esp = esp }

// Text is the shared text segment, where user code registers the entry
// points it hands to the kernel.
func (c *CPU) Text() *Text { return c.k.text }

func (c *CPU) save() {
	tf := &c.t.env.TF
	tf.EIP = c.eip
	tf.ESP = c.esp
}

func (c *CPU) load() {
	tf := &c.t.env.TF
	c.eip = tf.EIP
	c.esp = tf.ESP
}

// checkpoint accounts one unit of work and takes any pending interrupt.
func (c *CPU) checkpoint() {
	if c.detached || c.t.isDead() {
		runtime.Goexit()
	}
	k := c.k
	k.machine.Step()

	select {
	case <-k.ctxDone:
		k.finish(k.ctx.Err())
		runtime.Goexit()
	default:
	}

	if k.tickCyc > 0 && k.machine.ReadTSC() >= k.nextTick {
		c.save()
		c.t.env.TF.TrapNo = abi.IRQOffset + abi.IRQClock
		c.trap()
	}
}

// trap enters the kernel with the frame already saved and resumes from it.
func (c *CPU) trap() {
	c.k.trap(c)
	if c.t.restart {
		c.detached = true
		runtime.Goexit()
	}
	c.load()
}

// Spin burns n units of work.
func (c *CPU) Spin(n int) {
	for range n {
		c.checkpoint()
	}
}

// ============================================================================
// System calls
// ============================================================================

// Syscall traps into the kernel with the syscall number in eax and up to
// five arguments in edx, ecx, ebx, edi and esi. The result comes back in
// eax.
func (c *CPU) Syscall(no abi.Syscall, args ...uint32) int32 {
	var a abi.Args
	copy(a[:], args)

	c.checkpoint()
	c.save()
	tf := &c.t.env.TF
	tf.Regs.EAX = uint32(no)
	tf.Regs.EDX = a[0]
	tf.Regs.ECX = a[1]
	tf.Regs.EBX = a[2]
	tf.Regs.EDI = a[3]
	tf.Regs.ESI = a[4]
	tf.TrapNo = abi.TSyscall
	c.trap()
	return int32(c.t.env.TF.Regs.EAX)
}

// Invoke issues a typed system call.
func (c *CPU) Invoke(call abi.Call) int32 {
	no, a := abi.Encode(call)
	return c.Syscall(no, a[:]...)
}

// ============================================================================
// Memory
// ============================================================================

func (c *CPU) pgdir() *mem.PageDir { return c.t.env.PgDir }

// ensure faults until va is accessible with user permissions.
func (c *CPU) ensure(va uint32, write bool) {
	perm := uint32(abi.PteP | abi.PteU)
	if write {
		perm |= abi.PteW
	}
	for va >= abi.ULim || c.pgdir().PTE(va)&perm != perm {
		c.fault(va, write)
	}
}

// fault raises a page fault at va and, when the kernel reflects it, runs
// the upcall on the exception stack, then returns to the faulting access.
func (c *CPU) fault(va uint32, write bool) {
	errc := uint32(abi.FECU)
	if va < abi.ULim && c.pgdir().PTE(va)&abi.PteP != 0 {
		errc |= abi.FECPr
	}
	if write {
		errc |= abi.FECWr
	}

	c.save()
	tf := &c.t.env.TF
	tf.TrapNo = abi.TPgflt
	tf.Err = errc
	c.faultVA = va
	c.trap()

	// The kernel pointed eip at the upcall and esp at the fault record.
	utfVA := c.esp
	upcall, ok := c.k.text.Lookup(c.eip)
	if !ok {
		c.k.upcallMissing(c)
	}
	upcall(c)

	var b [abi.UTrapframeSize]byte
	c.Read(utfVA, b[:])
	utf, _ := abi.UnmarshalUTrapframe(b[:])
	c.eip = utf.EIP
	c.esp = utf.ESP
}

// FaultVA is the address of the last page fault.
func (c *CPU) FaultVA() uint32 { return c.faultVA }

// Read copies user memory at va into buf.
func (c *CPU) Read(va uint32, buf []byte) {
	c.checkpoint()
	for len(buf) > 0 {
		n := min(len(buf), int(abi.PageSize-abi.PGOFF(va)))
		c.ensure(va, false)
		if err := c.pgdir().Read(va, buf[:n]); err != nil {
			c.k.panicf("read %08x after check: %v", va, err)
		}
		buf = buf[n:]
		va += uint32(n)
	}
}

// Write copies buf to user memory at va.
func (c *CPU) Write(va uint32, buf []byte) {
	c.checkpoint()
	for len(buf) > 0 {
		n := min(len(buf), int(abi.PageSize-abi.PGOFF(va)))
		c.ensure(va, true)
		if err := c.pgdir().Write(va, buf[:n]); err != nil {
			c.k.panicf("write %08x after check: %v", va, err)
		}
		buf = buf[n:]
		va += uint32(n)
	}
}

// Load8 reads a byte.
func (c *CPU) Load8(va uint32) uint8 {
	var b [1]byte
	c.Read(va, b[:])
	return b[0]
}

// Store8 writes a byte.
func (c *CPU) Store8(va uint32, v uint8) {
	c.Write(va, []byte{v})
}

// Load32 reads a little-endian word.
func (c *CPU) Load32(va uint32) uint32 {
	var b [4]byte
	c.Read(va, b[:])
	return binary.LittleEndian.Uint32(b[:])
}

// Store32 writes a little-endian word.
func (c *CPU) Store32(va uint32, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	c.Write(va, b[:])
}

// Push copies b onto the stack and returns its address.
func (c *CPU) Push(b []byte) uint32 {
	c.esp -= abi.RoundUp(uint32(len(b)), 4)
	c.Write(c.esp, b)
	return c.esp
}

// Pop releases n bytes of stack.
func (c *CPU) Pop(n int) {
	c.esp += abi.RoundUp(uint32(n), 4)
}

// ============================================================================
// Read-only kernel windows
// ============================================================================

// UVPT reads page table entry pn through the UVPT window. Entries under
// an absent page table read as zero.
func (c *CPU) UVPT(pn uint32) uint32 {
	c.checkpoint()
	return c.pgdir().PTE(pn << abi.PageShift)
}

// UVPD reads page directory entry pdx through the UVPD window.
func (c *CPU) UVPD(pdx uint32) uint32 {
	c.checkpoint()
	return c.pgdir().PDE(pdx)
}

// Env reads slot i of the UENVS window.
func (c *CPU) Env(i int) abi.EnvInfo {
	c.checkpoint()
	return c.k.envs.At(i & (abi.NEnv - 1)).Info()
}
