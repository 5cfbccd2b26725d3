package monitoring

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTwoKernelsDoNotCollide(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.IncContextSwitches()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.ContextSwitches))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.ContextSwitches))
}

func TestSyscallTimerAndSnapshot(t *testing.T) {
	m := NewMetrics()

	NewTimer(m, "sys_yield").Stop("ok")
	NewTimer(m, "sys_page_alloc").Stop("E_INVAL")
	m.RecordPageFault("cow")
	m.RecordIPCSend("ok")
	m.RecordIPCSend("E_IPC_NOT_RECV")
	m.RecordConsole(5, 3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SyscallsTotal.WithLabelValues("sys_page_alloc", "E_INVAL")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ConsoleDropped))

	snap := m.Snapshot()
	assert.Equal(t, MetricsSnapshot{
		Syscalls:      2,
		SyscallErrors: 1,
		PageFaults:    1,
		IPCDelivered:  1,
		ConsoleBytes:  5,
	}, snap)
}

func TestEnvsByStatusReset(t *testing.T) {
	m := NewMetrics()
	m.SetEnvsByStatus(map[string]int{"RUNNABLE": 2, "SLEEPING": 1})
	m.SetEnvsByStatus(map[string]int{"RUNNING": 1})

	assert.Equal(t, 1, testutil.CollectAndCount(m.EnvsByStatus))
}

func TestHandlerExposesKernelMetrics(t *testing.T) {
	m := NewMetrics()
	m.SetUptime(3 * time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "exokernel_uptime_seconds 3")
}
