package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/GriffinCanCode/AgentOS/exokernel/internal/abi"
)

func TestTextRegister(t *testing.T) {
	text := NewText()
	called := ""
	a := text.Register(func(*CPU) { called = "a" })
	b := text.Register(func(*CPU) { called = "b" })

	assert.EqualValues(t, abi.UText, a)
	assert.EqualValues(t, abi.UText+textStride, b)
	assert.Equal(t, 2, text.Len())

	r, ok := text.Lookup(b)
	assert.True(t, ok)
	r(nil)
	assert.Equal(t, "b", called)

	for _, eip := range []uint32{0, abi.UText + 1, abi.UText + 2*textStride} {
		_, ok := text.Lookup(eip)
		assert.False(t, ok, "%08x", eip)
	}
}

func TestTextRegisterNamed(t *testing.T) {
	text := NewText()
	first := text.RegisterNamed("upcall", func(*CPU) {})
	again := text.RegisterNamed("upcall", func(*CPU) {})
	assert.Equal(t, first, again)
	assert.Equal(t, 1, text.Len())

	eip, ok := text.Addr("upcall")
	assert.True(t, ok)
	assert.Equal(t, first, eip)

	_, ok = text.Addr("missing")
	assert.False(t, ok)
}
