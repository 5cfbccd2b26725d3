// Command kernel boots the exokernel on a host or simulated machine and
// runs a set of built-in user programs until the system goes quiescent.
//
// Programs come from -programs (comma separated, globs allowed), from a
// boot manifest named by -boot or KERNEL_BOOT, or default to hello:
//
//	kernel -programs forktree,pingpong
//	MACHINE_KIND=sim MACHINE_OP_COST=1us kernel -programs clocktest
//	kernel -boot boot.toml -monitor 127.0.0.1:8070 -linger
//
// When the system goes quiescent the kernel monitor prints the
// environment table and every clock. Exit status is 0 on quiescence or
// timeout, 2 on a kernel panic and 130 on interrupt.
//
// Configuration is read from the environment; see the config package for
// the variables.
package main
