package hw

import (
	"sync"
	"time"
)

// CMOS emulates the MC146818 behind ports 0x70/0x71. Calendar registers
// are computed from now on every read.
type CMOS struct {
	mu    sync.Mutex
	now   func() time.Time
	index uint8
	regB  uint8
}

// NewCMOS returns a chip whose calendar follows now.
func NewCMOS(now func() time.Time) *CMOS {
	return &CMOS{now: now, regB: 0x02} // 24-hour mode
}

func (c *CMOS) Outb(port uint16, v uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch port {
	case IORTCCmnd:
		c.index = v
	case IORTCData:
		if c.index&^NMILock == RTCBReg {
			c.regB = v
		}
	}
}

func (c *CMOS) Inb(port uint16) uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch port {
	case IORTCCmnd:
		return c.index
	case IORTCData:
		return c.register(c.index &^ NMILock)
	}
	return 0xFF
}

// NMIMasked reports whether the NMI mask bit is set in the index port.
func (c *CMOS) NMIMasked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index&NMILock != 0
}

func (c *CMOS) register(reg uint8) uint8 {
	t := c.now().UTC()
	switch reg {
	case RTCSec:
		return Bin2BCD(uint8(t.Second()))
	case RTCMin:
		return Bin2BCD(uint8(t.Minute()))
	case RTCHour:
		return Bin2BCD(uint8(t.Hour()))
	case RTCDay:
		return Bin2BCD(uint8(t.Day()))
	case RTCMon:
		return Bin2BCD(uint8(t.Month()))
	case RTCYear:
		return Bin2BCD(uint8(t.Year() % 100))
	case RTCAReg:
		return 0x26 // 32.768kHz base, 1024Hz rate, no update in progress
	case RTCBReg:
		return c.regB
	case RTCCReg:
		if c.regB&RTCPIE != 0 {
			return RTCPF
		}
		return 0
	}
	return 0
}
