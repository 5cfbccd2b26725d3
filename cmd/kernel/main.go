package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/exokernel/internal/hw"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/infrastructure/server"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/kernel"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/programs"
)

func main() {
	os.Exit(run())
}

func run() int {
	progs := flag.String("programs", "", "Comma-separated programs to boot (globs allowed)")
	boot := flag.String("boot", "", "Boot manifest (.yaml, .toml or .json)")
	list := flag.Bool("list", false, "List the built-in programs and exit")
	monitorAddr := flag.String("monitor", "", "Serve the monitor on this address")
	linger := flag.Bool("linger", false, "Keep the monitor up after the kernel halts")
	timeout := flag.Duration("timeout", 0, "Stop the kernel after this long")
	flag.Parse()

	registry := programs.Default()
	if *list {
		for _, p := range registry.List(nil) {
			fmt.Printf("%-12s %-6s %s\n", p.Name, p.Category, p.Description)
		}
		return 0
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if *boot != "" {
		cfg.Kernel.Boot = *boot
	}
	if *monitorAddr != "" {
		cfg.Monitor.Addr = *monitorAddr
		cfg.Monitor.Enabled = true
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Development = cfg.Logging.Development
	logger, err := logging.New(logCfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer logger.Sync()

	manifest, err := loadManifest(cfg, *progs)
	if err != nil {
		logger.Error("Failed to load boot manifest", zap.Error(err))
		return 1
	}

	console := hw.NewStreamConsole(os.Stdout, os.Stdin)
	var machine hw.Machine
	switch cfg.Machine.Kind {
	case "sim":
		machine = hw.NewSimMachine(hw.SimConfig{
			TSCHz:   cfg.Machine.TSCHz,
			OpCost:  cfg.Machine.OpCost,
			Console: console,
		})
	default:
		machine = hw.NewHostMachine(cfg.Machine.TSCHz, console)
	}

	metrics := monitoring.NewMetrics()
	k, err := kernel.New(cfg, machine,
		kernel.WithLogger(logger),
		kernel.WithMetrics(metrics),
		kernel.WithMonitor(func(k *kernel.Kernel) {
			for _, cmd := range []string{"envs", "clocks"} {
				_ = k.RunCommand(os.Stdout, cmd)
			}
		}),
	)
	if err != nil {
		logger.Error("Failed to boot kernel", zap.Error(err))
		return 1
	}
	ids, err := registry.Boot(k, manifest)
	if err != nil {
		logger.Error("Failed to spawn boot programs", zap.Error(err))
		return 1
	}
	logger.Info("Boot programs spawned", zap.Int("envs", len(ids)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx := ctx
	if *timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	var srvDone chan error
	srvCtx, stopSrv := context.WithCancel(ctx)
	defer stopSrv()
	if cfg.Monitor.Enabled {
		if !cfg.Logging.Development {
			gin.SetMode(gin.ReleaseMode)
		}
		var tracer *tracing.Tracer
		if cfg.Kernel.Trace {
			tracer = tracing.New("monitor", logger.Logger)
			defer tracer.Close()
		}
		srv := server.NewServer(cfg.Monitor, k, registry, logger, tracer)
		srvDone = make(chan error, 1)
		go func() { srvDone <- srv.Run(srvCtx) }()
	}

	runErr := k.Run(runCtx)
	code := exitCode(logger, runErr)

	if srvDone != nil {
		if *linger && code == 0 {
			logger.Info("Kernel halted; monitor lingering until interrupted")
			<-ctx.Done()
		}
		stopSrv()
		if err := <-srvDone; err != nil {
			logger.Error("Monitor server failed", zap.Error(err))
		}
	}
	return code
}

func loadManifest(cfg *config.Config, progs string) (*config.Manifest, error) {
	switch {
	case progs != "":
		return config.ManifestOf(strings.Split(progs, ",")...), nil
	case cfg.Kernel.Boot != "":
		return config.LoadManifest(cfg.Kernel.Boot)
	default:
		return config.ManifestOf("hello"), nil
	}
}

func exitCode(logger *logging.Logger, err error) int {
	var kp *kernel.KernelPanic
	switch {
	case err == nil:
		return 0
	case errors.As(err, &kp):
		logger.Error("Kernel panicked", zap.String("msg", kp.Msg))
		return 2
	case errors.Is(err, context.DeadlineExceeded):
		logger.Info("Kernel stopped at timeout")
		return 0
	case errors.Is(err, context.Canceled):
		logger.Info("Kernel interrupted")
		return 130
	default:
		logger.Error("Kernel stopped", zap.Error(err))
		return 1
	}
}
