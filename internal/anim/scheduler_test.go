package anim

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"route-animator/internal/render"
)

const wait = time.Second

type frameCounter struct{ n int }

func (f *frameCounter) FrameObserve(time.Duration) { f.n++ }

// harness runs a scheduler over twoLegs in the background.
type harness struct {
	scene    *render.Scene
	clock    *render.ManualClock
	gate     *Gate
	run      *Run
	progress chan float64
	result   chan error
	cancel   context.CancelFunc
}

func start(t *testing.T, metrics Metrics) *harness {
	t.Helper()
	h := &harness{
		scene:    render.NewScene(zerolog.Nop()),
		clock:    render.NewManualClock(),
		gate:     NewGate(),
		progress: make(chan float64, 64),
		result:   make(chan error, 1),
	}
	h.run = NewRun(h.scene, twoLegs(t), Options{OnProgress: func(p float64) { h.progress <- p }})
	s := &Scheduler{Clock: h.clock, Logger: zerolog.Nop(), Metrics: metrics}

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	t.Cleanup(cancel)
	go func() { h.result <- s.Run(ctx, h.run, h.gate) }()
	return h
}

func (h *harness) frame(t *testing.T) float64 {
	t.Helper()
	require.True(t, h.clock.TryTick(wait), "scheduler did not take a frame")
	select {
	case p := <-h.progress:
		return p
	case <-time.After(wait):
		t.Fatal("no progress after frame")
		return 0
	}
}

func TestScheduler_RunsToCompletion(t *testing.T) {
	fc := &frameCounter{}
	h := start(t, fc)

	var last float64
	for i := 0; i < 17; i++ {
		last = h.frame(t)
	}
	assert.Equal(t, 100.0, last)

	select {
	case err := <-h.result:
		require.NoError(t, err)
	case <-time.After(wait):
		t.Fatal("run did not finish")
	}
	assert.Equal(t, 17, fc.n)
	assert.True(t, h.scene.HasSource(MarkerID), "trail and marker stay drawn after completion")
	assert.False(t, h.clock.TryTick(20*time.Millisecond))
}

func TestScheduler_PauseFreezesState(t *testing.T) {
	h := start(t, nil)
	for i := 0; i < 3; i++ {
		h.frame(t)
	}
	before := h.run.Snapshot()

	require.True(t, h.gate.Pause())
	// a frame already being waited for is dropped, after that none are taken
	h.clock.TryTick(50 * time.Millisecond)
	assert.False(t, h.clock.TryTick(50*time.Millisecond))
	assert.Empty(t, h.progress)
	assert.Equal(t, before, h.run.Snapshot())

	require.True(t, h.gate.Resume())
	h.frame(t)
	after := h.run.Snapshot()
	assert.Equal(t, before.Frames+1, after.Frames)
	assert.Equal(t, before.Point+1, after.Point)
	assert.Equal(t, before.BufferLen+1, after.BufferLen)
}

func TestScheduler_CancelResets(t *testing.T) {
	h := start(t, nil)
	for i := 0; i < 12; i++ {
		h.frame(t)
	}
	require.NotEmpty(t, h.scene.Sources())

	h.cancel()
	select {
	case err := <-h.result:
		assert.ErrorIs(t, err, ErrCancelled)
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(wait):
		t.Fatal("run did not stop")
	}
	assert.Empty(t, h.scene.Sources())
	assert.Empty(t, h.scene.Layers())
	snap := h.run.Snapshot()
	assert.Equal(t, 0, snap.BufferLen)
	assert.Equal(t, 0, snap.TrailLen)
}

func TestScheduler_CancelWhilePaused(t *testing.T) {
	h := start(t, nil)
	h.frame(t)
	h.gate.Pause()
	h.clock.TryTick(20 * time.Millisecond)

	h.cancel()
	select {
	case err := <-h.result:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(wait):
		t.Fatal("paused run did not observe cancellation")
	}
	assert.Empty(t, h.scene.Sources())
}

func TestScheduler_RendererFailureIsFatal(t *testing.T) {
	h := start(t, nil)
	h.frame(t)
	h.scene.Close()

	require.True(t, h.clock.TryTick(wait))
	select {
	case err := <-h.result:
		assert.ErrorIs(t, err, render.ErrClosed)
		assert.NotErrorIs(t, err, ErrCancelled)
	case <-time.After(wait):
		t.Fatal("run did not fail")
	}
	snap := h.run.Snapshot()
	assert.Equal(t, 0, snap.BufferLen)
	assert.Equal(t, 0, snap.Frames)
}

func TestGate(t *testing.T) {
	g := NewGate()
	assert.NoError(t, g.Wait(context.Background()))
	assert.False(t, g.Resume())
	assert.True(t, g.Pause())
	assert.False(t, g.Pause())
	assert.True(t, g.Paused())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, g.Wait(ctx), context.DeadlineExceeded)

	done := make(chan error, 1)
	go func() { done <- g.Wait(context.Background()) }()
	g.Resume()
	assert.NoError(t, <-done)
	assert.False(t, g.Paused())
}
