// Package programs is the catalog of user programs the kernel can boot.
//
// Every program is a kernel.Routine written against package ulib: it sees
// the kernel only through system calls, its own memory and the read-only
// windows. A boot manifest names programs from the catalog; Registry.Boot
// spawns them before the kernel runs.
//
// Closures passed to ulib.Fork must only capture values that are fixed at
// the time of the fork. Anything the child changes belongs in user memory.
package programs
