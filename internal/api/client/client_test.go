package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/exokernel/internal/hw"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/infrastructure/server"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/kernel"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/programs"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// monitor serves a kernel that ran the prime sieve to quiescence.
func monitor(t *testing.T) (*httptest.Server, *kernel.Kernel) {
	t.Helper()
	cfg := config.Default()
	cfg.Machine.Kind = "sim"
	k, err := kernel.New(cfg, hw.NewSimMachine(hw.SimConfig{Console: hw.NewBufferConsole()}))
	require.NoError(t, err)
	_, err = programs.Default().Boot(k, config.ManifestOf("primes"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, k.Run(ctx))

	mcfg := cfg.Monitor
	mcfg.RateLimit = 0
	srv := httptest.NewServer(server.NewServer(mcfg, k, programs.Default(), nil, nil).Handler())
	t.Cleanup(srv.Close)
	return srv, k
}

func TestClientReadsMonitor(t *testing.T) {
	srv, k := monitor(t)
	c := New(srv.URL)
	ctx := context.Background()

	h, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, k.BootID().String(), h.BootID)
	assert.True(t, h.Halted)

	envs, err := c.Envs(ctx, "not_runnable")
	require.NoError(t, err)
	require.Len(t, envs.Envs, 16)
	assert.EqualValues(t, 0x1001, envs.Envs[0].ID)

	e, err := c.Env(ctx, 0x1002)
	require.NoError(t, err)
	assert.Equal(t, "00001001", e.ParentID)

	cl, err := c.Clocks(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, cl.Clocks)

	m, err := c.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 16, m.Scheduler.Live)
	assert.Positive(t, m.Kernel.Syscalls)

	out, err := c.Command(ctx, "help")
	require.NoError(t, err)
	assert.Contains(t, out, "kerninfo - ")

	tail, err := c.Tail(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(tail), "47\n")
}

func TestClientErrors(t *testing.T) {
	srv, _ := monitor(t)
	c := New(srv.URL)
	ctx := context.Background()

	_, err := c.Env(ctx, 0x1000)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "no environment 00001000", apiErr.Message)

	_, err = c.Command(ctx, "reboot")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Unknown command 'reboot'", apiErr.Message)

	_, err = c.Envs(ctx, "zombie")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)

	assert.Equal(t, resilience.StateClosed, c.BreakerState())
}

func TestClientRetriesThenTrips(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL,
		WithRetry(1, time.Millisecond, time.Millisecond),
		WithBreaker(resilience.Settings{
			Cooldown: time.Hour,
			Trip:     func(c resilience.Counts) bool { return c.ConsecutiveFailures >= 2 },
		}))
	ctx := context.Background()

	for range 2 {
		_, err := c.Health(ctx)
		require.Error(t, err)
	}
	assert.EqualValues(t, 4, hits.Load())
	assert.Equal(t, resilience.StateOpen, c.BreakerState())

	_, err := c.Health(ctx)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.EqualValues(t, 4, hits.Load())
}

func TestClientRecoversFromTransientFailure(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","boot_id":"b","seq":3}`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithRetry(2, time.Millisecond, time.Millisecond))
	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(3), h.Seq)
	assert.EqualValues(t, 2, hits.Load())
}
