package kernel

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/GriffinCanCode/AgentOS/exokernel/internal/mem"
)

// ErrUnknownCommand is returned by RunCommand for a command it lacks.
var ErrUnknownCommand = errors.New("unknown command")

type command struct {
	name string
	desc string
	fn   func(k *Kernel, w io.Writer, args []string) error
}

var commands []command

func init() {
	commands = []command{
		{"help", "Display this list of commands", (*Kernel).cmdHelp},
		{"kerninfo", "Display information about the kernel", (*Kernel).cmdKerninfo},
		{"envs", "List environments", (*Kernel).cmdEnvs},
		{"clocks", "Display every clock", (*Kernel).cmdClocks},
		{"pages", "Display physical page usage", (*Kernel).cmdPages},
	}
}

// RunCommand runs one monitor command line, writing its output to w. Every
// command but pages reads the published snapshot and may run at any time;
// pages walks physical memory and needs the kernel halted.
func (k *Kernel) RunCommand(w io.Writer, line string) error {
	args := strings.Fields(line)
	if len(args) == 0 {
		return nil
	}
	for _, c := range commands {
		if c.name == args[0] {
			return c.fn(k, w, args[1:])
		}
	}
	fmt.Fprintf(w, "Unknown command '%s'\n", args[0])
	return fmt.Errorf("%q: %w", args[0], ErrUnknownCommand)
}

func (k *Kernel) cmdHelp(w io.Writer, _ []string) error {
	for _, c := range commands {
		fmt.Fprintf(w, "%s - %s\n", c.name, c.desc)
	}
	return nil
}

func (k *Kernel) cmdKerninfo(w io.Writer, _ []string) error {
	s := k.Snapshot()
	fmt.Fprintf(w, "boot id   %s\n", s.BootID)
	fmt.Fprintf(w, "tsc       %d Hz\n", s.TSCHz)
	fmt.Fprintf(w, "tick      %v\n", k.tick)
	fmt.Fprintf(w, "uptime    %s\n", s.Uptime)
	fmt.Fprintf(w, "wallclock %s\n", s.Wallclock)
	fmt.Fprintf(w, "memory    %d pages, %d free\n", s.NPages, s.FreePages)
	fmt.Fprintf(w, "text      %d entry points\n", s.TextLen)
	return nil
}

func (k *Kernel) cmdEnvs(w io.Writer, _ []string) error {
	s := k.Snapshot()
	fmt.Fprintf(w, "%-8s %-8s %-12s %6s  %s\n", "ENVID", "PARENT", "STATUS", "RUNS", "NAME")
	for _, e := range s.Envs {
		mark := ""
		if e.EnvID == s.Current {
			mark = " *"
		}
		fmt.Fprintf(w, "%-8s %-8s %-12s %6d  %s%s\n", e.EnvID, e.ParentID, e.Status, e.Runs, e.Name, mark)
	}
	return nil
}

func (k *Kernel) cmdClocks(w io.Writer, _ []string) error {
	s := k.Snapshot()
	clocks := append([]ClockSnapshot(nil), s.Clocks...)
	sort.Slice(clocks, func(i, j int) bool { return clocks[i].Name < clocks[j].Name })
	for _, c := range clocks {
		fmt.Fprintf(w, "%-20s %s\n", c.Name, c.Value)
	}
	fmt.Fprintf(w, "%-20s %s\n", "resolution", s.Resolution)
	return nil
}

// cmdPages prints runs of pages as "beg..end ALLOCATED" or "beg FREE".
func (k *Kernel) cmdPages(w io.Writer, _ []string) error {
	if !k.inMonitor.Load() && !k.stopped() {
		fmt.Fprintln(w, "pages: kernel is running")
		return nil
	}
	n := k.phys.NPages()
	label := func(used bool) string {
		if used {
			return "ALLOCATED"
		}
		return "FREE"
	}
	beg := 0
	for i := 1; i <= n; i++ {
		if i < n && (k.phys.Ref(mem.PPN(i)) > 0) == (k.phys.Ref(mem.PPN(beg)) > 0) {
			continue
		}
		if i-1 > beg {
			fmt.Fprintf(w, "%d..%d %s\n", beg, i-1, label(k.phys.Ref(mem.PPN(beg)) > 0))
		} else {
			fmt.Fprintf(w, "%d %s\n", beg, label(k.phys.Ref(mem.PPN(beg)) > 0))
		}
		beg = i
	}
	return nil
}

func (k *Kernel) stopped() bool {
	select {
	case <-k.done:
		return true
	default:
		return false
	}
}
