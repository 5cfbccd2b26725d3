package kernel

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/exokernel/internal/abi"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/infrastructure/config"
)

func TestConsoleRateLimitDropsExcess(t *testing.T) {
	r := newRig(t, func(cfg *config.Config) {
		cfg.Console.Rate = 10
		cfg.Console.Burst = 5
	})
	r.spawn(t, "chatty", func(c *CPU) {
		assert.EqualValues(t, 0, cputs(c, "0123456789"))
		assert.EqualValues(t, 0, cputs(c, "abc"))
	})
	r.run(t)

	assert.Equal(t, "01234"+quiescent, r.cons.String())
	assert.EqualValues(t, len("01234"+quiescent), r.k.Metrics().Snapshot().ConsoleBytes)
}

func TestConsoleRateLimitIsPerEnv(t *testing.T) {
	r := newRig(t, func(cfg *config.Config) {
		cfg.Console.Rate = 1
		cfg.Console.Burst = 2
	})
	for range 2 {
		r.spawn(t, "chatty", func(c *CPU) { cputs(c, "xyz") })
	}
	r.run(t)
	assert.Equal(t, "xyxy"+quiescent, r.cons.String())
}

func TestConsoleSubscribeAndTail(t *testing.T) {
	r := newRig(t, nil)
	ch, cancel := r.k.Console().Subscribe(16)
	defer cancel()

	r.spawn(t, "talker", func(c *CPU) {
		cputs(c, "one\n")
		cputs(c, "two\n")
	})
	r.run(t)

	var got []string
	for len(ch) > 0 {
		got = append(got, string(<-ch))
	}
	assert.Equal(t, []string{"one\n", "two\n", quiescent}, got)
	assert.Equal(t, "one\ntwo\n"+quiescent, string(r.k.Console().Tail()))

	cancel()
	cancel()
	r.k.Console().Printf("after\n")
	assert.Empty(t, ch)
}

func TestConsoleTailIsBounded(t *testing.T) {
	r := newRig(t, nil)
	chunk := strings.Repeat("x", 1000) + "\n"
	r.spawn(t, "flood", func(c *CPU) {
		for range 20 {
			cputs(c, chunk)
		}
	})
	r.run(t)

	tail := r.k.Console().Tail()
	require.Len(t, tail, tailSize)
	assert.True(t, strings.HasSuffix(string(tail), quiescent))
}

func TestCgetc(t *testing.T) {
	r := newRig(t, nil)
	r.cons.Feed("k")
	r.spawn(t, "reader", func(c *CPU) {
		assert.EqualValues(t, 'k', c.Invoke(abi.Cgetc{}))
		assert.EqualValues(t, 0, c.Invoke(abi.Cgetc{}))
	})
	r.run(t)
}
