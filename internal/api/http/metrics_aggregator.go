package http

import (
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gonum.org/v1/gonum/stat"

	"github.com/GriffinCanCode/AgentOS/exokernel/internal/abi"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/kernel"
)

// MetricsAggregator joins the kernel counters with figures derived from
// the environment table.
type MetricsAggregator struct {
	src Source
}

// NewMetricsAggregator creates a metrics aggregator.
func NewMetricsAggregator(src Source) *MetricsAggregator {
	return &MetricsAggregator{src: src}
}

// MetricsSnapshot is the JSON metrics document.
type MetricsSnapshot struct {
	Timestamp time.Time                  `json:"timestamp"`
	Kernel    monitoring.MetricsSnapshot `json:"kernel"`
	Envs      map[string]int             `json:"envs"`
	Memory    MemorySummary              `json:"memory"`
	Scheduler SchedulerSummary           `json:"scheduler"`
}

// MemorySummary is physical page usage.
type MemorySummary struct {
	Pages     int     `json:"pages"`
	FreePages int     `json:"free_pages"`
	UsedRatio float64 `json:"used_ratio"`
}

// SchedulerSummary describes how evenly the CPU went round the live
// environments. Fairness is Jain's index over their run counts: 1 when
// every environment ran equally often, 1/n when one ran alone.
type SchedulerSummary struct {
	Live       int     `json:"live"`
	MeanRuns   float64 `json:"mean_runs"`
	StdDevRuns float64 `json:"stddev_runs"`
	MaxRuns    float64 `json:"max_runs"`
	Fairness   float64 `json:"fairness"`
	ErrorRate  float64 `json:"syscall_error_rate"`
}

// Summarize derives the aggregate view of one snapshot.
func Summarize(s *kernel.Snapshot, m monitoring.MetricsSnapshot) MetricsSnapshot {
	out := MetricsSnapshot{
		Timestamp: time.Now().UTC(),
		Kernel:    m,
		Envs:      make(map[string]int),
		Memory: MemorySummary{
			Pages:     s.NPages,
			FreePages: s.FreePages,
		},
	}
	if s.NPages > 0 {
		out.Memory.UsedRatio = float64(s.NPages-s.FreePages) / float64(s.NPages)
	}

	var runs []float64
	for _, e := range s.Envs {
		out.Envs[e.Status]++
		st, _ := abi.ParseEnvStatus(e.Status)
		if st.Schedulable() || st == abi.EnvNotRunnable {
			runs = append(runs, float64(e.Runs))
		}
	}
	out.Scheduler = schedulerSummary(runs)
	if m.Syscalls > 0 {
		out.Scheduler.ErrorRate = float64(m.SyscallErrors) / float64(m.Syscalls)
	}
	return out
}

func schedulerSummary(runs []float64) SchedulerSummary {
	sum := SchedulerSummary{Live: len(runs)}
	if len(runs) == 0 {
		return sum
	}
	sum.MeanRuns = stat.Mean(runs, nil)
	if len(runs) > 1 {
		sum.StdDevRuns = stat.StdDev(runs, nil)
	}
	var sq float64
	for _, r := range runs {
		sum.MaxRuns = math.Max(sum.MaxRuns, r)
		sq += r * r
	}
	if sq == 0 {
		sum.Fairness = 1
		return sum
	}
	total := sum.MeanRuns * float64(len(runs))
	sum.Fairness = total * total / (float64(len(runs)) * sq)
	return sum
}

// GetAggregatedMetrics serves the JSON metrics document.
func (ma *MetricsAggregator) GetAggregatedMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, Summarize(ma.src.Snapshot(), ma.src.Metrics().Snapshot()))
}
