package programs

func builtins() []Program {
	return []Program{
		{"hello", "Print a greeting and the environment id", CategoryDemo, Hello},
		{"yield", "Yield the CPU five times in a row", CategoryDemo, Yield},
		{"spin", "Fork a child that spins forever, then destroy it", CategoryDemo, Spin},
		{"forktree", "Fork a binary tree of environments", CategoryDemo, Forktree},
		{"pingpong", "Bounce a counter between parent and child over IPC", CategoryDemo, Pingpong},
		{"sharepage", "Share a page between parent and child across fork", CategoryDemo, Sharepage},
		{"primes", "Concurrent prime sieve over an IPC pipeline", CategoryDemo, Primes},
		{"sleeper", "Sleep on the monotonic and realtime clocks", CategoryDemo, Sleeper},
		{"clocktest", "Exercise clock gettime getres settime and nanosleep", CategoryTest, Clocktest},
		{"faultdie", "Fault with a handler that destroys itself", CategoryFault, Faultdie},
		{"faultread", "Read address zero without a handler", CategoryFault, Faultread},
		{"faultwrite", "Write address zero without a handler", CategoryFault, Faultwrite},
	}
}
