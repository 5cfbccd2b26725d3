package http

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/GriffinCanCode/AgentOS/exokernel/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/kernel"
)

func TestSchedulerSummary(t *testing.T) {
	tests := []struct {
		name     string
		runs     []float64
		mean     float64
		fairness float64
	}{
		{"empty", nil, 0, 0},
		{"never ran", []float64{0, 0}, 0, 1},
		{"even", []float64{4, 4, 4, 4}, 4, 1},
		{"one hog", []float64{9, 0, 0}, 3, 1.0 / 3},
		{"uneven", []float64{1, 3}, 2, 0.8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := schedulerSummary(tt.runs)
			assert.Equal(t, len(tt.runs), s.Live)
			assert.InDelta(t, tt.mean, s.MeanRuns, 1e-9)
			assert.InDelta(t, tt.fairness, s.Fairness, 1e-9)
		})
	}
}

func TestSummarize(t *testing.T) {
	snap := &kernel.Snapshot{
		NPages:    100,
		FreePages: 75,
		Envs: []kernel.EnvSnapshot{
			{Status: "runnable", Runs: 2},
			{Status: "not_runnable", Runs: 2},
			{Status: "dying", Runs: 2},
		},
	}
	out := Summarize(snap, monitoring.MetricsSnapshot{Syscalls: 10, SyscallErrors: 1})

	assert.Equal(t, map[string]int{"runnable": 1, "not_runnable": 1, "dying": 1}, out.Envs)
	assert.InDelta(t, 0.25, out.Memory.UsedRatio, 1e-9)
	assert.Equal(t, 3, out.Scheduler.Live)
	assert.InDelta(t, 1.0, out.Scheduler.Fairness, 1e-9)
	assert.InDelta(t, 0.1, out.Scheduler.ErrorRate, 1e-9)
}
