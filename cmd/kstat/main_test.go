package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/exokernel/internal/api/client"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/hw"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/infrastructure/server"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/kernel"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/programs"
)

func TestQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := config.Default()
	cfg.Machine.Kind = "sim"
	k, err := kernel.New(cfg, hw.NewSimMachine(hw.SimConfig{Console: hw.NewBufferConsole()}))
	require.NoError(t, err)
	_, err = programs.Default().Boot(k, config.ManifestOf("pingpong"))
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, k.Run(ctx))

	srv := httptest.NewServer(server.NewServer(cfg.Monitor, k, programs.Default(), nil, nil).Handler())
	defer srv.Close()
	c := client.New(srv.URL)

	tests := []struct {
		args []string
		want string
	}{
		{[]string{"health"}, "ok boot=" + k.BootID().String()},
		{[]string{"envs"}, "ENVID"},
		{[]string{"clocks"}, "resolution"},
		{[]string{"metrics"}, "fairness"},
		{[]string{"tail"}, "1001 got 10 from 1000"},
		{[]string{"cmd", "kerninfo"}, "boot id"},
	}
	for _, tt := range tests {
		t.Run(tt.args[0], func(t *testing.T) {
			var out bytes.Buffer
			require.NoError(t, query(ctx, c, &out, tt.args))
			assert.Contains(t, out.String(), tt.want)
		})
	}

	for _, bad := range [][]string{nil, {"env"}, {"cmd"}, {"reboot"}} {
		assert.ErrorIs(t, query(ctx, c, &bytes.Buffer{}, bad), errUsage)
	}
	assert.Error(t, query(ctx, c, &bytes.Buffer{}, []string{"env", "1000"}))
}
