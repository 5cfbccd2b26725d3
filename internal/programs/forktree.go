package programs

import (
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/kernel"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/ulib"
)

const forktreeDepth = 3

// Forktree forks a binary tree of environments; each names its path from
// the root.
func Forktree(c *kernel.CPU) {
	forktree(c, "")
}

func forktree(c *kernel.CPU, cur string) {
	ulib.Printf(c, "%04x: I am '%s'\n", uint32(ulib.Getenvid(c)), cur)
	forkchild(c, cur, '0')
	forkchild(c, cur, '1')
}

func forkchild(c *kernel.CPU, cur string, branch byte) {
	if len(cur) >= forktreeDepth {
		return
	}
	next := cur + string(branch)
	if _, err := ulib.Fork(c, func(c *kernel.CPU) { forktree(c, next) }); err != nil {
		ulib.Panicf("fork: %v", err)
	}
}
