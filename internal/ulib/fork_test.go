package ulib_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/exokernel/internal/abi"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/hw"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/kernel"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/ulib"
)

const (
	privateVA = 0x20000000
	sharedVA  = privateVA + abi.PageSize
)

func newKernel(t *testing.T) *kernel.Kernel {
	t.Helper()
	cfg := config.Default()
	cfg.Machine.Kind = "sim"
	k, err := kernel.New(cfg, hw.NewSimMachine(hw.SimConfig{}))
	require.NoError(t, err)
	return k
}

func run(t *testing.T, k *kernel.Kernel, fn kernel.Routine) {
	t.Helper()
	_, err := k.Spawn(fn, "test")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, k.Run(ctx))
}

func upcalls(k *kernel.Kernel) int {
	return int(testutil.ToFloat64(k.Metrics().PageFaults.WithLabelValues("upcall")))
}

// Values observed from user mode. Only one environment runs at a time
// and Run returns after the last one exits, so the test reads them
// without locking.
type forkView struct {
	parentBefore, parentAfter   uint32 // parent's private PTE
	childBefore, childAfter     uint32 // child's private PTE around its write
	parentShared, childShared   uint32
	parentPrivate, childPrivate string
	parentSharedText            string
	childWriteFaults            int // upcalls taken by the child's private write
	childRewriteFaults          int // and by a second write to the same page
}

func TestForkCopiesPrivatePagesOnWrite(t *testing.T) {
	var v forkView
	k := newKernel(t)

	run(t, k, func(c *kernel.CPU) {
		assert.NoError(t, ulib.PageAlloc(c, 0, privateVA, ulib.PermRW))
		assert.NoError(t, ulib.PageAlloc(c, 0, sharedVA, ulib.PermRW|abi.PteShare))
		c.Write(privateVA, []byte("parent"))
		c.Write(sharedVA, []byte("parent"))

		_, err := ulib.Fork(c, func(c *kernel.CPU) {
			v.childBefore = c.UVPT(abi.PGNUM(privateVA))
			n := upcalls(k)
			c.Write(privateVA, []byte("child!"))
			v.childWriteFaults = upcalls(k) - n
			v.childAfter = c.UVPT(abi.PGNUM(privateVA))
			n = upcalls(k)
			c.Write(privateVA+8, []byte("again"))
			v.childRewriteFaults = upcalls(k) - n
			c.Write(sharedVA, []byte("child!"))
			v.childShared = c.UVPT(abi.PGNUM(sharedVA))
			v.childPrivate = readN(c, privateVA, 6)
			ulib.IPCSend(c, ulib.Thisenv(c).ParentID, 1, ulib.NoPage, 0)
		})
		assert.NoError(t, err)
		v.parentBefore = c.UVPT(abi.PGNUM(privateVA))

		_, err = ulib.IPCRecv(c, ulib.NoPage)
		assert.NoError(t, err)
		v.parentAfter = c.UVPT(abi.PGNUM(privateVA))
		v.parentShared = c.UVPT(abi.PGNUM(sharedVA))
		v.parentPrivate = readN(c, privateVA, 6)
		v.parentSharedText = readN(c, sharedVA, 6)
	})

	// Both sides start copy-on-write on one frame.
	assert.NotZero(t, v.parentBefore&abi.PteCOW)
	assert.Zero(t, v.parentBefore&abi.PteW)
	assert.NotZero(t, v.childBefore&abi.PteCOW)
	assert.Equal(t, abi.PTEAddr(v.parentBefore), abi.PTEAddr(v.childBefore))

	// The child's write gave it a private writable frame, through
	// exactly one fault.
	assert.Equal(t, 1, v.childWriteFaults)
	assert.Zero(t, v.childRewriteFaults)
	assert.NotZero(t, v.childAfter&abi.PteW)
	assert.Zero(t, v.childAfter&abi.PteCOW)
	assert.NotEqual(t, abi.PTEAddr(v.parentBefore), abi.PTEAddr(v.childAfter))

	// The parent is untouched until it writes itself.
	assert.Equal(t, v.parentBefore, v.parentAfter)
	assert.Equal(t, "parent", v.parentPrivate)
	assert.Equal(t, "child!", v.childPrivate)

	// The shared page is one frame, writable on both sides.
	assert.Equal(t, abi.PTEAddr(v.parentShared), abi.PTEAddr(v.childShared))
	assert.NotZero(t, v.parentShared&abi.PteW)
	assert.Zero(t, v.parentShared&abi.PteCOW)
	assert.Equal(t, "child!", v.parentSharedText)
}

func TestForkChildGetsFreshExceptionStack(t *testing.T) {
	var parentX, childX uint32
	run(t, newKernel(t), func(c *kernel.CPU) {
		_, err := ulib.Fork(c, func(c *kernel.CPU) {
			childX = c.UVPT(abi.PGNUM(abi.UXStackTop - abi.PageSize))
			ulib.IPCSend(c, ulib.Thisenv(c).ParentID, 0, ulib.NoPage, 0)
		})
		assert.NoError(t, err)
		parentX = c.UVPT(abi.PGNUM(abi.UXStackTop - abi.PageSize))
		_, err = ulib.IPCRecv(c, ulib.NoPage)
		assert.NoError(t, err)
	})

	require.NotZero(t, childX&abi.PteP)
	assert.NotZero(t, childX&abi.PteW)
	assert.Zero(t, childX&abi.PteCOW)
	assert.NotEqual(t, abi.PTEAddr(parentX), abi.PTEAddr(childX))
}

func readN(c *kernel.CPU, va uint32, n int) string {
	b := make([]byte, n)
	c.Read(va, b)
	return string(b)
}
