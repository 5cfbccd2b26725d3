/*
Package kernel is a uniprocessor exokernel hosted in a Go process.

# Execution model

Every environment is backed by a goroutine, but only one of them holds
the CPU at any time. The holder runs user code and, on a trap, kernel
code; giving up the CPU means waking the next environment's goroutine and
parking its own. Kernel state therefore needs no locks: whoever holds the
CPU owns it. The only state shared with other goroutines is the published
Snapshot, the console subscribers and the metrics.

User code is a Routine registered in the shared Text segment. It sees the
machine only through its *CPU: system calls, loads and stores through its
page directory, and the read-only UVPT/UVPD/UENVS windows. Each CPU method
is a preemption point where the clock interrupt may reschedule.

# Traps

A system call saves eip and esp in the environment's trap frame, loads
the number and arguments into the register block and enters trap. Page
faults raised by CPU memory access are reflected to the environment's
upcall on the user exception stack, or destroy it. The clock interrupt
acknowledges the calendar chip and yields.

# Scheduling

Round robin over the environment table, starting after the environment
that ran last. Sleepers whose deadline has passed become runnable during
the scan. With only sleepers left the CPU idles one tick at a time; with
nothing left at all the kernel prints

	No runnable environments in the system!

runs the monitor hook and Run returns nil.

# Usage

	k, err := kernel.New(cfg, hw.NewSimMachine(hw.SimConfig{}),
		kernel.WithLogger(logger),
		kernel.WithMetrics(metrics),
	)
	if err != nil {
		return err
	}
	k.Spawn(programs.Hello, "hello")
	return k.Run(ctx)
*/
package kernel
