package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "exokernel"

// Metrics holds all Prometheus metrics of one kernel instance.
type Metrics struct {
	registry *prometheus.Registry

	// Syscall metrics
	SyscallsTotal   *prometheus.CounterVec
	SyscallDuration *prometheus.HistogramVec

	// Scheduler metrics
	ContextSwitches prometheus.Counter
	IdlePolls       prometheus.Counter
	TimerTicks      prometheus.Counter
	EnvsByStatus    *prometheus.GaugeVec
	EnvsCreated     prometheus.Counter
	EnvsDestroyed   *prometheus.CounterVec

	// Memory metrics
	PageFaults *prometheus.CounterVec
	FreePages  prometheus.Gauge

	// IPC metrics
	IPCSends *prometheus.CounterVec

	// Clock metrics
	ClockSets *prometheus.CounterVec
	Uptime    prometheus.Gauge

	// Console metrics
	ConsoleBytes   prometheus.Counter
	ConsoleDropped prometheus.Counter

	// Monitor HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	WSConnections   prometheus.Gauge

	snapshot MetricsSnapshot
	mu       sync.RWMutex
}

// MetricsSnapshot holds running totals for the JSON API.
type MetricsSnapshot struct {
	Syscalls        int64 `json:"syscalls"`
	SyscallErrors   int64 `json:"syscall_errors"`
	ContextSwitches int64 `json:"context_switches"`
	PageFaults      int64 `json:"page_faults"`
	IPCDelivered    int64 `json:"ipc_delivered"`
	ConsoleBytes    int64 `json:"console_bytes"`
}

// NewMetrics creates a collector on a fresh registry, so several kernels
// can live in one process.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	return NewMetricsWith(reg)
}

// NewMetricsWith registers the kernel metrics on reg.
func NewMetricsWith(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{
		registry: reg,

		SyscallsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "syscalls_total",
				Help:      "Total number of system calls by name and result",
			},
			[]string{"syscall", "result"},
		),
		SyscallDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "syscall_duration_seconds",
				Help:      "Host time spent in the kernel per system call, blocking calls included",
				Buckets:   []float64{.000001, .00001, .0001, .001, .01, .1, 1, 10},
			},
			[]string{"syscall"},
		),

		ContextSwitches: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "context_switches_total",
				Help:      "Number of dispatches of a different environment",
			},
		),
		IdlePolls: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "idle_polls_total",
				Help:      "Scheduler passes that found nothing to run",
			},
		),
		TimerTicks: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "timer_ticks_total",
				Help:      "Timer interrupts delivered",
			},
		),
		EnvsByStatus: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "envs",
				Help:      "Environments by scheduling status",
			},
			[]string{"status"},
		),
		EnvsCreated: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "envs_created_total",
				Help:      "Environments allocated",
			},
		),
		EnvsDestroyed: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "envs_destroyed_total",
				Help:      "Environments destroyed by cause",
			},
			[]string{"cause"},
		),

		PageFaults: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "page_faults_total",
				Help:      "User page faults by outcome",
			},
			[]string{"outcome"},
		),
		FreePages: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "free_pages",
				Help:      "Physical pages on the free list",
			},
		),

		IPCSends: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ipc_sends_total",
				Help:      "IPC send attempts by result",
			},
			[]string{"result"},
		),

		ClockSets: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "clock_sets_total",
				Help:      "Successful clock_settime calls by clock",
			},
			[]string{"clock"},
		),
		Uptime: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "uptime_seconds",
				Help:      "Monotonic clock reading at the last scheduler entry",
			},
		),

		ConsoleBytes: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "console_bytes_total",
				Help:      "Bytes written to the console",
			},
		),
		ConsoleDropped: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "console_dropped_bytes_total",
				Help:      "Console bytes dropped by the per-environment rate limit",
			},
		),

		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "monitor_http_requests_total",
				Help:      "Monitor HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "monitor_http_request_duration_seconds",
				Help:      "Monitor HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"method", "path"},
		),
		WSConnections: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "monitor_ws_connections",
				Help:      "Open console stream connections",
			},
		),
	}
	return m
}

// Registry is the registry the metrics live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RecordSyscall records one completed system call.
func (m *Metrics) RecordSyscall(name, result string, duration time.Duration) {
	m.SyscallsTotal.WithLabelValues(name, result).Inc()
	m.SyscallDuration.WithLabelValues(name).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.Syscalls++
	if result != "ok" {
		m.snapshot.SyscallErrors++
	}
	m.mu.Unlock()
}

// IncContextSwitches counts a dispatch of a different environment.
func (m *Metrics) IncContextSwitches() {
	m.ContextSwitches.Inc()
	m.mu.Lock()
	m.snapshot.ContextSwitches++
	m.mu.Unlock()
}

// IncIdlePolls counts an idle scheduler pass.
func (m *Metrics) IncIdlePolls() { m.IdlePolls.Inc() }

// IncTimerTicks counts a timer interrupt.
func (m *Metrics) IncTimerTicks() { m.TimerTicks.Inc() }

// SetEnvsByStatus replaces the per-status gauges.
func (m *Metrics) SetEnvsByStatus(counts map[string]int) {
	m.EnvsByStatus.Reset()
	for status, n := range counts {
		m.EnvsByStatus.WithLabelValues(status).Set(float64(n))
	}
}

// IncEnvsCreated counts an allocated environment.
func (m *Metrics) IncEnvsCreated() { m.EnvsCreated.Inc() }

// RecordEnvDestroyed counts a destroyed environment.
func (m *Metrics) RecordEnvDestroyed(cause string) {
	m.EnvsDestroyed.WithLabelValues(cause).Inc()
}

// RecordPageFault counts a user page fault.
func (m *Metrics) RecordPageFault(outcome string) {
	m.PageFaults.WithLabelValues(outcome).Inc()
	m.mu.Lock()
	m.snapshot.PageFaults++
	m.mu.Unlock()
}

// SetFreePages sets the free page gauge.
func (m *Metrics) SetFreePages(n int) { m.FreePages.Set(float64(n)) }

// RecordIPCSend counts an IPC send attempt.
func (m *Metrics) RecordIPCSend(result string) {
	m.IPCSends.WithLabelValues(result).Inc()
	if result == "ok" {
		m.mu.Lock()
		m.snapshot.IPCDelivered++
		m.mu.Unlock()
	}
}

// RecordClockSet counts a clock change.
func (m *Metrics) RecordClockSet(clock string) {
	m.ClockSets.WithLabelValues(clock).Inc()
}

// SetUptime sets the uptime gauge.
func (m *Metrics) SetUptime(d time.Duration) { m.Uptime.Set(d.Seconds()) }

// RecordConsole counts written and dropped console bytes.
func (m *Metrics) RecordConsole(written, dropped int) {
	if written > 0 {
		m.ConsoleBytes.Add(float64(written))
	}
	if dropped > 0 {
		m.ConsoleDropped.Add(float64(dropped))
	}
	m.mu.Lock()
	m.snapshot.ConsoleBytes += int64(written)
	m.mu.Unlock()
}

// RecordHTTPRequest records a monitor HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// IncWSConnections increments console stream connections.
func (m *Metrics) IncWSConnections() { m.WSConnections.Inc() }

// DecWSConnections decrements console stream connections.
func (m *Metrics) DecWSConnections() { m.WSConnections.Dec() }

// Snapshot returns the running totals.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}
