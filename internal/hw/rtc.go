// Package hw models the hardware the kernel samples time from: the
// battery-backed MC146818 calendar chip behind CMOS port I/O, the 8253/8254
// PIT used to calibrate the time stamp counter, and the machine the kernel
// runs on (simulated or hosted).
package hw

import (
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/shared/timespec"
)

// PortIO is byte-wide x86 port I/O.
type PortIO interface {
	Outb(port uint16, v uint8)
	Inb(port uint16) uint8
}

// CMOS ports and MC146818 registers.
const (
	IORTCCmnd = 0x070
	IORTCData = 0x071

	NMILock = 0x80

	RTCSec  = 0x00
	RTCMin  = 0x02
	RTCHour = 0x04
	RTCDay  = 0x07
	RTCMon  = 0x08
	RTCYear = 0x09

	RTCAReg = 0x0A
	RTCBReg = 0x0B
	RTCCReg = 0x0C

	RTCUpdateInProgress = 0x80 // register A
	RTCPIE              = 0x40 // register B, periodic interrupt enable
	RTCPF               = 0x40 // register C, periodic interrupt flag
)

// uipPollLimit bounds the wait for an update cycle to finish. The chip
// holds UIP for under 2ms, so hitting the limit means the chip is broken.
const uipPollLimit = 1 << 20

// RTC drives the calendar chip.
type RTC struct {
	io     PortIO
	masked bool
}

// NewRTC returns a driver for the chip behind io.
func NewRTC(io PortIO) *RTC {
	return &RTC{io: io}
}

func (r *RTC) selectReg(reg uint8) {
	if r.masked {
		reg |= NMILock
	}
	r.io.Outb(IORTCCmnd, reg)
}

// Read returns the raw value of a register.
func (r *RTC) Read(reg uint8) uint8 {
	r.selectReg(reg)
	return r.io.Inb(IORTCData)
}

// Write stores v in a register.
func (r *RTC) Write(reg, v uint8) {
	r.selectReg(reg)
	r.io.Outb(IORTCData, v)
}

// NMIDisable masks non-maskable interrupts through the CMOS index port.
func (r *RTC) NMIDisable() {
	r.masked = true
	r.io.Outb(IORTCCmnd, r.io.Inb(IORTCCmnd)|NMILock)
}

// NMIEnable unmasks non-maskable interrupts.
func (r *RTC) NMIEnable() {
	r.masked = false
	r.io.Outb(IORTCCmnd, r.io.Inb(IORTCCmnd)&^NMILock)
}

// Init turns on the periodic interrupt.
func (r *RTC) Init() {
	r.NMIDisable()
	defer r.NMIEnable()

	r.Write(RTCBReg, r.Read(RTCBReg)|RTCPIE)
}

// CheckStatus reads register C, acknowledging a pending interrupt.
func (r *RTC) CheckStatus() uint8 {
	return r.Read(RTCCReg)
}

// Gettime returns the chip's time as seconds since the Unix epoch.
//
// The chip may start an update between field reads, so two full samples
// are taken; if they disagree a third one is taken and trusted.
func (r *RTC) Gettime() int64 {
	r.NMIDisable()
	defer r.NMIEnable()

	t1 := r.sample()
	t2 := r.sample()
	if t1 != t2 {
		return r.sample()
	}
	return t2
}

func (r *RTC) sample() int64 {
	for range uipPollLimit {
		if r.Read(RTCAReg)&RTCUpdateInProgress == 0 {
			break
		}
	}

	tm := timespec.Tm{
		Sec:  int(BCD2Bin(r.Read(RTCSec))),
		Min:  int(BCD2Bin(r.Read(RTCMin))),
		Hour: int(BCD2Bin(r.Read(RTCHour))),
		MDay: int(BCD2Bin(r.Read(RTCDay))),
		Mon:  int(BCD2Bin(r.Read(RTCMon))) - 1,
		Year: 100 + int(BCD2Bin(r.Read(RTCYear))),
	}
	return timespec.CalendarToEpoch(tm)
}

// BCD2Bin decodes a packed BCD byte.
func BCD2Bin(v uint8) uint8 { return v&0x0F + (v>>4)*10 }

// Bin2BCD encodes v (< 100) as packed BCD.
func Bin2BCD(v uint8) uint8 { return (v/10)<<4 | v%10 }
