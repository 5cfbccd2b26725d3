package mem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/exokernel/internal/abi"
)

const userRW = abi.PteP | abi.PteU | abi.PteW

func TestPhysMemAllocFree(t *testing.T) {
	pm := NewPhysMem(8)
	assert.Equal(t, 7, pm.FreeCount())

	p, err := pm.Alloc(false)
	require.NoError(t, err)
	assert.Equal(t, PPN(1), p, "lowest free page first")
	assert.Equal(t, 0, pm.Ref(p))

	pm.IncRef(p)
	pm.IncRef(p)
	pm.DecRef(p)
	assert.Equal(t, 6, pm.FreeCount())
	pm.DecRef(p)
	assert.Equal(t, 7, pm.FreeCount())

	assert.Panics(t, func() { pm.DecRef(p) })
}

func TestPhysMemExhaustion(t *testing.T) {
	pm := NewPhysMem(3)
	_, err := pm.Alloc(false)
	require.NoError(t, err)
	_, err = pm.Alloc(false)
	require.NoError(t, err)
	_, err = pm.Alloc(false)
	assert.ErrorIs(t, err, ErrNoMem)
}

func TestAllocZeroes(t *testing.T) {
	pm := NewPhysMem(4)
	p, _ := pm.Alloc(false)
	pm.Page(p)[10] = 0xAA
	pm.Free(p)

	q, _ := pm.Alloc(true)
	require.Equal(t, p, q)
	assert.Zero(t, pm.Page(q)[10])
}

func TestInsertLookupRemove(t *testing.T) {
	pm := NewPhysMem(16)
	d, err := NewPageDir(pm)
	require.NoError(t, err)

	p, _ := pm.Alloc(true)
	va := uint32(0x00801000)
	require.NoError(t, d.Insert(p, va, userRW))

	got, pte, ok := d.Lookup(va)
	require.True(t, ok)
	assert.Equal(t, p, got)
	assert.Equal(t, uint32(userRW), pte&abi.PteFlags)
	assert.Equal(t, 1, pm.Ref(p))
	assert.NotZero(t, d.PDE(abi.PDX(va))&abi.PteP)

	// same page again: permissions change, the page survives
	require.NoError(t, d.Insert(p, va, abi.PteP|abi.PteU))
	assert.Equal(t, 1, pm.Ref(p))
	assert.Zero(t, d.PTE(va)&abi.PteW)

	d.Remove(va)
	_, _, ok = d.Lookup(va)
	assert.False(t, ok)
	assert.Equal(t, 0, pm.Ref(p))

	d.Remove(va) // nothing mapped
	d.Remove(0x40000000)
}

func TestInsertReplaces(t *testing.T) {
	pm := NewPhysMem(16)
	d, _ := NewPageDir(pm)

	a, _ := pm.Alloc(true)
	b, _ := pm.Alloc(true)
	require.NoError(t, d.Insert(a, 0x1000, userRW))
	require.NoError(t, d.Insert(b, 0x1000, userRW))

	got, _, _ := d.Lookup(0x1000)
	assert.Equal(t, b, got)
	assert.Equal(t, 0, pm.Ref(a))
}

func TestInsertOutOfMemoryForTable(t *testing.T) {
	pm := NewPhysMem(3) // page 0, the directory, one data page
	d, err := NewPageDir(pm)
	require.NoError(t, err)

	p, err := pm.Alloc(true)
	require.NoError(t, err)

	assert.ErrorIs(t, d.Insert(p, 0x1000, userRW), ErrNoMem)
	assert.Equal(t, 0, pm.Ref(p))
}

func TestSharedPageAndFree(t *testing.T) {
	pm := NewPhysMem(32)
	before := pm.FreeCount()

	d1, _ := NewPageDir(pm)
	d2, _ := NewPageDir(pm)
	p, _ := pm.Alloc(true)
	require.NoError(t, d1.Insert(p, 0x2000, userRW))
	require.NoError(t, d2.Insert(p, 0x5000, userRW))
	assert.Equal(t, 2, pm.Ref(p))

	require.NoError(t, d1.Write(0x2ff0, []byte("shared bytes!!")))
	buf := make([]byte, 14)
	require.NoError(t, d2.Read(0x5ff0, buf))
	assert.Equal(t, "shared bytes!!", string(buf))

	d1.Free()
	assert.Equal(t, 1, pm.Ref(p))
	d2.Free()
	assert.Equal(t, before, pm.FreeCount())
}

func TestEach(t *testing.T) {
	pm := NewPhysMem(32)
	d, _ := NewPageDir(pm)
	for _, va := range []uint32{0x3000, 0x400000, 0x00800000} {
		p, _ := pm.Alloc(true)
		require.NoError(t, d.Insert(p, va, userRW))
	}

	var seen []uint32
	d.Each(0x00800000, func(va uint32, _ PPN, _ uint32) { seen = append(seen, va) })
	assert.Equal(t, []uint32{0x3000, 0x400000}, seen)
}

func TestUserCheck(t *testing.T) {
	pm := NewPhysMem(16)
	d, _ := NewPageDir(pm)
	ro, _ := pm.Alloc(true)
	rw, _ := pm.Alloc(true)
	require.NoError(t, d.Insert(ro, 0x1000, abi.PteP|abi.PteU))
	require.NoError(t, d.Insert(rw, 0x2000, userRW))

	assert.NoError(t, UserCheck(d, 0x1000, 2*abi.PageSize, abi.PteU))
	assert.NoError(t, UserCheck(d, 0x2ff8, 8, abi.PteU|abi.PteW))
	assert.NoError(t, UserCheck(d, 0x5000, 0, abi.PteU))

	err := UserCheck(d, 0x1ff0, 0x20, abi.PteU|abi.PteW)
	var fe *FaultError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, uint32(0x1ff0), fe.VA)
	assert.ErrorIs(t, err, ErrFault)

	err = UserCheck(d, 0x2800, 0x1000, abi.PteU)
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, uint32(0x3000), fe.VA)

	assert.Error(t, UserCheck(d, abi.ULim-4, 8, abi.PteU))
	assert.Error(t, UserCheck(d, 0xfffffff0, 0x100, abi.PteU))
}
