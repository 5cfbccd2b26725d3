// Command kstat queries a running kernel's monitor.
//
//	kstat [-addr host:port] [-watch 1s] health|envs [status]|env <id>|clocks|metrics|tail|cmd <name> [args...]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/GriffinCanCode/AgentOS/exokernel/internal/abi"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/api/client"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/infrastructure/logging"
)

var errUsage = errors.New("usage: kstat [-addr host:port] [-watch interval] health|envs [status]|env <id>|clocks|metrics|tail|cmd <name> [args...]")

func main() {
	addr := flag.String("addr", envOr("MONITOR_ADDR", "127.0.0.1:8070"), "Monitor address")
	watch := flag.Duration("watch", 0, "Repeat every interval until interrupted")
	timeout := flag.Duration("timeout", 10*time.Second, "Per-request timeout")
	verbose := flag.Bool("v", false, "Log client events")
	flag.Parse()

	log := logging.NewNop()
	if *verbose {
		log = logging.NewDevelopment()
	}
	c := client.New(*addr, client.WithTimeout(*timeout), client.WithLogger(log))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	for {
		if err := query(ctx, c, os.Stdout, flag.Args()); err != nil {
			fmt.Fprintln(os.Stderr, err)
			if errors.Is(err, errUsage) {
				os.Exit(2)
			}
			if *watch == 0 {
				os.Exit(1)
			}
		}
		if *watch == 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(*watch):
		}
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func query(ctx context.Context, c *client.Client, w io.Writer, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "health":
		h, err := c.Health(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s boot=%s seq=%d halted=%v\n", h.Status, h.BootID, h.Seq, h.Halted)

	case "envs":
		status := ""
		if len(args) > 1 {
			status = args[1]
		}
		l, err := c.Envs(ctx, status)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
		fmt.Fprintln(tw, "ENVID\tPARENT\tSTATUS\tRUNS\tNAME")
		for _, e := range l.Envs {
			name := e.Name
			if e.EnvID == l.Current {
				name += " *"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", e.EnvID, e.ParentID, e.Status, e.Runs, name)
		}
		return tw.Flush()

	case "env":
		if len(args) != 2 {
			return errUsage
		}
		n, err := strconv.ParseUint(strings.TrimPrefix(args[1], "0x"), 16, 32)
		if err != nil {
			return fmt.Errorf("env id %q: %w", args[1], err)
		}
		e, err := c.Env(ctx, abi.EnvID(uint32(n)))
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "id       %s\nparent   %s\nname     %s\nstatus   %s\nruns     %d\n",
			e.EnvID, e.ParentID, e.Name, e.Status, e.Runs)
		if e.IPCRecving {
			fmt.Fprintln(w, "ipc      receiving")
		}
		if e.WakeAt != "" {
			fmt.Fprintf(w, "sleeps   until %s on %s\n", e.WakeAt, e.SleepClock)
		}

	case "clocks":
		cl, err := c.Clocks(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
		for _, k := range cl.Clocks {
			fmt.Fprintf(tw, "%s\t%s\n", k.Name, k.Value)
		}
		fmt.Fprintf(tw, "resolution\t%s\nwallclock\t%s\n", cl.Resolution, cl.Wallclock)
		return tw.Flush()

	case "metrics":
		m, err := c.Metrics(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "syscalls %d (%.1f%% errors), switches %d, faults %d, ipc %d\n",
			m.Kernel.Syscalls, 100*m.Scheduler.ErrorRate, m.Kernel.ContextSwitches,
			m.Kernel.PageFaults, m.Kernel.IPCDelivered)
		fmt.Fprintf(w, "memory %d/%d pages used\n", m.Memory.Pages-m.Memory.FreePages, m.Memory.Pages)
		fmt.Fprintf(w, "envs %d live, runs mean %.1f stddev %.1f, fairness %.3f\n",
			m.Scheduler.Live, m.Scheduler.MeanRuns, m.Scheduler.StdDevRuns, m.Scheduler.Fairness)

	case "tail":
		b, err := c.Tail(ctx)
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err

	case "cmd":
		if len(args) < 2 {
			return errUsage
		}
		out, err := c.Command(ctx, args[1], args[2:]...)
		if err != nil {
			return err
		}
		fmt.Fprint(w, out)

	default:
		return errUsage
	}
	return nil
}
