package kernel

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/exokernel/internal/abi"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/clock"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/env"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/mem"
)

// KernelPanic reports a broken kernel invariant. Run returns it and the
// kernel stops; user environments never see it.
type KernelPanic struct {
	Msg string
}

func (p *KernelPanic) Error() string { return "kernel panic: " + p.Msg }

func (k *Kernel) panicf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	k.log.Error("kernel panic", zap.String("msg", msg), zap.Stack("stack"))
	panic(&KernelPanic{Msg: msg})
}

// errnoOf maps an internal error to the code user space sees.
func errnoOf(err error) abi.Errno {
	var errno abi.Errno
	switch {
	case errors.As(err, &errno):
		return errno
	case errors.Is(err, mem.ErrNoMem):
		return abi.ENoMem
	case errors.Is(err, env.ErrBadEnv):
		return abi.EBadEnv
	case errors.Is(err, env.ErrNoFreeEnv):
		return abi.ENoFreeEnv
	case errors.Is(err, mem.ErrFault):
		return abi.EFault
	case errors.Is(err, clock.ErrUnknownClock),
		errors.Is(err, clock.ErrNotSettable),
		errors.Is(err, clock.ErrInvalidTime):
		return abi.EInval
	}
	return abi.EUnspecified
}
