package hw

import (
	"math"
	"time"
)

// PITTickRate is the input clock of the 8253/8254.
const PITTickRate = 1193182

const (
	calibrateWindow = 10 * time.Millisecond
	calibrateLoops  = 3
)

// CalibrateTSC measures the cycle counter rate against the PIT. The
// shortest of several windows is used, since anything that interrupts a
// window only makes it longer.
func CalibrateTSC(m Machine) uint64 {
	best := uint64(math.MaxUint64)
	for range calibrateLoops {
		t0 := m.ReadTSC()
		m.PITDelay(calibrateWindow)
		t1 := m.ReadTSC()
		if d := t1 - t0; d < best {
			best = d
		}
	}
	return best * uint64(time.Second/calibrateWindow)
}
