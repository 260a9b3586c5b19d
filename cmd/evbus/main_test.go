package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"evbus/internal/config"
	"evbus/internal/events"
	"evbus/internal/input"
	"evbus/internal/journal"
	"evbus/internal/relay"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runLines(t *testing.T, lines string) (*events.Bus, *input.State) {
	t.Helper()
	bus := events.NewBus(events.WithRegistry(events.NewRegistry()))
	state := input.NewState(zerolog.Nop())
	state.Attach(bus)
	logger := zerolog.Nop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		run(ctx, bus, state, strings.NewReader(lines), &logger)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("run did not return")
	}
	return bus, state
}

func TestRun_StopsOnQuit(t *testing.T) {
	_, state := runLines(t, "resize 640 480\nkey ctrl+q\n")

	select {
	case <-state.Quit():
	default:
		t.Fatal("quit not requested")
	}
	w, h := state.Size()
	assert.Equal(t, 640.0, w)
	assert.Equal(t, 480.0, h)
}

func TestRun_StopsAtEndOfInput(t *testing.T) {
	_, state := runLines(t, "key escape\nbogus\ntext ab\n")

	assert.True(t, state.OverlayOpen())
	assert.Equal(t, []string{"text:a", "text:b"}, state.Captured())
}

func TestNewLogger(t *testing.T) {
	cfg := testConfig(t, "log:\n  level: warn\n  console: true\n")
	logger := newLogger(cfg)
	require.Equal(t, zerolog.TraceLevel, logger.GetLevel())
	assert.Equal(t, zerolog.WarnLevel, cfg.LogLevel())
}

func testConfig(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(yaml))
	require.NoError(t, err)
	return cfg
}

func TestStart_ReturnsConfigError(t *testing.T) {
	t.Setenv("EVBUS_CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))

	err := start()
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestAttachJournal_Detach(t *testing.T) {
	jr, err := journal.Open(filepath.Join(t.TempDir(), "events.db"), zerolog.Nop())
	require.NoError(t, err)
	defer jr.Close()

	bus := events.NewBus(events.WithRegistry(events.NewRegistry()))
	d := attachJournal(jr, bus)
	assert.Len(t, d, 9)
	assert.Equal(t, 1, events.Count[input.KeyDown](bus))
	assert.Equal(t, 1, events.Count[input.GamepadButton](bus))

	d.detach()
	assert.Equal(t, 0, events.Count[input.KeyDown](bus))
	assert.Equal(t, 0, events.Count[input.GamepadButton](bus))
}

func TestAttachRelay_Detach(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus(events.WithRegistry(events.NewRegistry()))
	r := relay.New(rdb, relay.DefaultConfig(), zerolog.Nop())

	d, err := attachRelay(ctx, r, bus)
	require.NoError(t, err)
	// One subscription and one forwarding handler per input type.
	assert.Len(t, d, 18)
	assert.Equal(t, 1, events.Count[input.Resize](bus))

	d.detach()
	assert.Equal(t, 0, events.Count[input.Resize](bus))
	assert.Equal(t, 0, events.Count[input.KeyDown](bus))
}

func TestAttachRelay_FailureLeavesNothingAttached(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
	defer rdb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	bus := events.NewBus(events.WithRegistry(events.NewRegistry()))
	r := relay.New(rdb, relay.DefaultConfig(), zerolog.Nop())

	d, err := attachRelay(ctx, r, bus)
	require.Error(t, err)
	assert.Nil(t, d)
	assert.Equal(t, 0, events.Count[input.KeyDown](bus))
	assert.Equal(t, 0, events.Count[input.GamepadButton](bus))
}
