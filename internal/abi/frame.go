package abi

import (
	"encoding/binary"
	"fmt"
)

// PushRegs is the general register block in pusha order.
type PushRegs struct {
	EDI  uint32
	ESI  uint32
	EBP  uint32
	OESP uint32 // useless
	EBX  uint32
	EDX  uint32
	ECX  uint32
	EAX  uint32
}

// TrapFrame is the saved user context of an environment.
type TrapFrame struct {
	Regs   PushRegs
	ES     uint32
	DS     uint32
	TrapNo uint32
	Err    uint32
	EIP    uint32
	CS     uint32
	EFlags uint32
	ESP    uint32
	SS     uint32
}

// UTrapframe is the record the kernel pushes on the user exception stack
// before calling the page fault upcall.
type UTrapframe struct {
	FaultVA uint32
	Err     uint32
	Regs    PushRegs
	EIP     uint32
	EFlags  uint32
	ESP     uint32
}

const (
	PushRegsSize   = 32
	TrapFrameSize  = PushRegsSize + 9*4
	UTrapframeSize = 2*4 + PushRegsSize + 3*4
)

// Marshal encodes tf in its in-memory layout.
func (tf *TrapFrame) Marshal() []byte {
	b := make([]byte, 0, TrapFrameSize)
	b, _ = binary.Append(b, binary.LittleEndian, tf)
	return b
}

// UnmarshalTrapFrame decodes a trap frame from b.
func UnmarshalTrapFrame(b []byte) (TrapFrame, error) {
	var tf TrapFrame
	if len(b) < TrapFrameSize {
		return tf, fmt.Errorf("trapframe: short buffer (%d bytes)", len(b))
	}
	if _, err := binary.Decode(b[:TrapFrameSize], binary.LittleEndian, &tf); err != nil {
		return tf, fmt.Errorf("trapframe: %w", err)
	}
	return tf, nil
}

// Marshal encodes utf in its in-memory layout.
func (utf *UTrapframe) Marshal() []byte {
	b := make([]byte, 0, UTrapframeSize)
	b, _ = binary.Append(b, binary.LittleEndian, utf)
	return b
}

// UnmarshalUTrapframe decodes a fault record from b.
func UnmarshalUTrapframe(b []byte) (UTrapframe, error) {
	var utf UTrapframe
	if len(b) < UTrapframeSize {
		return utf, fmt.Errorf("utrapframe: short buffer (%d bytes)", len(b))
	}
	if _, err := binary.Decode(b[:UTrapframeSize], binary.LittleEndian, &utf); err != nil {
		return utf, fmt.Errorf("utrapframe: %w", err)
	}
	return utf, nil
}

// UserTrapFrame returns the initial frame of a user environment entering
// at eip with stack esp.
func UserTrapFrame(eip, esp uint32) TrapFrame {
	return TrapFrame{
		DS:     GDUD,
		ES:     GDUD,
		SS:     GDUD,
		CS:     GDUT,
		EIP:    eip,
		ESP:    esp,
		EFlags: FLIF,
	}
}
