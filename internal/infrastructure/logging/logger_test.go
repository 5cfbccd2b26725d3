package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)

	l, err := New(Config{Level: "warn"})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zap.InfoLevel))
	assert.True(t, l.Core().Enabled(zap.WarnLevel))
}

func TestKernelFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := (&Logger{Logger: zap.New(core)}).Named("kernel")

	l.Info("env created", EnvID("envid", int32(0x1001)), VA("va", 0xeebfe000))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "kernel", entry.LoggerName)
	fields := entry.ContextMap()
	assert.Equal(t, "00001001", fields["envid"])
	assert.Equal(t, "eebfe000", fields["va"])
}

func TestDevelopmentLogger(t *testing.T) {
	l := NewDevelopment()
	assert.True(t, l.Core().Enabled(zap.DebugLevel))
	assert.NotNil(t, NewNop().With(zap.String("k", "v")))
}
