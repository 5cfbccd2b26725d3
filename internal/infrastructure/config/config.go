package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all kernel configuration.
type Config struct {
	Kernel  KernelConfig
	Machine MachineConfig
	Console ConsoleConfig
	Logging LogConfig
	Monitor MonitorConfig
}

// KernelConfig sizes the kernel.
type KernelConfig struct {
	NPages  int    `envconfig:"KERNEL_NPAGES" default:"8192"`
	TimerHz int    `envconfig:"KERNEL_TIMER_HZ" default:"100"`
	Trace   bool   `envconfig:"KERNEL_TRACE" default:"false"`
	Boot    string `envconfig:"KERNEL_BOOT" default:""` // path to a boot manifest
}

// Tick is the timer period, or zero when preemption is off.
func (k KernelConfig) Tick() time.Duration {
	if k.TimerHz <= 0 {
		return 0
	}
	return time.Second / time.Duration(k.TimerHz)
}

// MachineConfig selects the hardware the kernel runs on.
type MachineConfig struct {
	Kind   string        `envconfig:"MACHINE_KIND" default:"host"` // host or sim
	TSCHz  uint64        `envconfig:"MACHINE_TSC_HZ" default:"1000000000"`
	OpCost time.Duration `envconfig:"MACHINE_OP_COST" default:"0s"`
}

// ConsoleConfig throttles sys_cputs per environment. Rate 0 disables it.
type ConsoleConfig struct {
	Rate  int `envconfig:"CONSOLE_RATE" default:"0"`
	Burst int `envconfig:"CONSOLE_BURST" default:"4096"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// MonitorConfig holds the monitor HTTP server configuration.
type MonitorConfig struct {
	Addr         string   `envconfig:"MONITOR_ADDR" default:"127.0.0.1:8070"`
	Enabled      bool     `envconfig:"MONITOR_ENABLED" default:"false"`
	RateLimit    int      `envconfig:"MONITOR_RATE_LIMIT" default:"100"`
	Burst        int      `envconfig:"MONITOR_BURST" default:"200"`
	MaxConns     int      `envconfig:"MONITOR_MAX_CONNS" default:"64"`
	AllowOrigins []string `envconfig:"MONITOR_ALLOW_ORIGINS" default:"*"`
	Gzip         bool     `envconfig:"MONITOR_GZIP" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Kernel: KernelConfig{
			NPages:  8192,
			TimerHz: 100,
		},
		Machine: MachineConfig{
			Kind:  "host",
			TSCHz: 1_000_000_000,
		},
		Console: ConsoleConfig{
			Burst: 4096,
		},
		Logging: LogConfig{
			Level: "info",
		},
		Monitor: MonitorConfig{
			Addr:         "127.0.0.1:8070",
			RateLimit:    100,
			Burst:        200,
			MaxConns:     64,
			AllowOrigins: []string{"*"},
			Gzip:         true,
		},
	}
}

// Validate rejects values the kernel cannot boot with.
func (c *Config) Validate() error {
	switch {
	case c.Kernel.NPages < 64:
		return fmt.Errorf("KERNEL_NPAGES %d: need at least 64 pages", c.Kernel.NPages)
	case c.Kernel.TimerHz < 0:
		return fmt.Errorf("KERNEL_TIMER_HZ %d: must not be negative", c.Kernel.TimerHz)
	case c.Machine.Kind != "host" && c.Machine.Kind != "sim":
		return fmt.Errorf("MACHINE_KIND %q: want host or sim", c.Machine.Kind)
	case c.Machine.TSCHz == 0:
		return fmt.Errorf("MACHINE_TSC_HZ must be positive")
	case c.Console.Rate < 0 || c.Console.Burst < 0:
		return fmt.Errorf("console rate and burst must not be negative")
	case c.Monitor.RateLimit < 0 || c.Monitor.Burst < 0 || c.Monitor.MaxConns < 0:
		return fmt.Errorf("monitor rate limit, burst and max conns must not be negative")
	}
	return nil
}
