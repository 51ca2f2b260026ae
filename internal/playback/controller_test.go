package playback

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"route-animator/internal/anim"
	"route-animator/internal/render"
	"route-animator/internal/route"
)

const waitTimeout = time.Second

func eastOf(meters float64) orb.Point {
	return orb.Point{meters / orb.EarthRadius * 180 / math.Pi, 0}
}

func northOf(meters float64) orb.Point {
	return orb.Point{0, meters / orb.EarthRadius * 180 / math.Pi}
}

type days [][]route.Segment

func (d days) Len() int { return len(d) }

func (d days) Segments(day int) ([]route.Segment, error) { return d[day], nil }

var itinerary = days{
	{
		{Origin: orb.Point{0, 0}, Destination: eastOf(100), Mode: route.Car},
		{Origin: eastOf(100), Destination: eastOf(150), Mode: route.Flight},
	},
	{
		{Origin: northOf(0), Destination: northOf(30), Mode: route.Flight},
	},
}

// recorder records which ids were released through the renderer.
type recorder struct {
	*render.Scene
	mu      sync.Mutex
	removed map[string]bool
}

func (p *recorder) RemoveLayer(id string) bool {
	p.mu.Lock()
	p.removed[id] = true
	p.mu.Unlock()
	return p.Scene.RemoveLayer(id)
}

func (p *recorder) clear() {
	p.mu.Lock()
	p.removed = map[string]bool{}
	p.mu.Unlock()
}

func (p *recorder) released() map[string]bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]bool, len(p.removed))
	for k, v := range p.removed {
		out[k] = v
	}
	return out
}

type stateChange struct {
	state State
	day   int
}

type fixture struct {
	c        *Controller
	scene    *recorder
	clock    *render.ManualClock
	progress chan float64
	states   chan stateChange
}

func newFixture(t *testing.T, d Days) *fixture {
	t.Helper()
	f := &fixture{
		scene:    &recorder{Scene: render.NewScene(zerolog.Nop()), removed: map[string]bool{}},
		clock:    render.NewManualClock(),
		progress: make(chan float64, 128),
		states:   make(chan stateChange, 32),
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	f.c = New(ctx, Options{
		Renderer:     f.scene,
		Clock:        f.clock,
		Days:         d,
		StepDistance: 10,
		Logger:       zerolog.Nop(),
		OnProgress:   func(p float64) { f.progress <- p },
		OnState:      func(s State, day int) { f.states <- stateChange{s, day} },
	})
	return f
}

func (f *fixture) frame(t *testing.T) float64 {
	t.Helper()
	require.True(t, f.clock.TryTick(waitTimeout), "no run took the frame")
	select {
	case p := <-f.progress:
		return p
	case <-time.After(waitTimeout):
		t.Fatal("no progress after frame")
		return 0
	}
}

func (f *fixture) nextState(t *testing.T) stateChange {
	t.Helper()
	select {
	case s := <-f.states:
		return s
	case <-time.After(waitTimeout):
		t.Fatal("no state change")
		return stateChange{}
	}
}

func (f *fixture) waitIdle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(t, f.c.Wait(ctx))
	require.Equal(t, Idle, f.c.State())
}

func TestController_PlaysDayToCompletion(t *testing.T) {
	f := newFixture(t, itinerary)
	assert.Equal(t, Idle, f.c.State())

	require.NoError(t, f.c.Toggle(context.Background()))
	assert.Equal(t, stateChange{Playing, 0}, f.nextState(t))

	var last float64
	for i := 0; i < 17; i++ {
		last = f.frame(t)
	}
	assert.Equal(t, 100.0, last)

	assert.Equal(t, stateChange{Idle, 0}, f.nextState(t))
	f.waitIdle(t)
	assert.False(t, f.clock.TryTick(20*time.Millisecond), "no frames after completion")

	st := f.c.Status()
	assert.Equal(t, Idle, st.State)
	require.NotNil(t, st.Snapshot)
	assert.Equal(t, 17, st.Snapshot.Frames)
	assert.Equal(t, 100.0, st.Snapshot.Progress)
	assert.NotEmpty(t, st.RunID)
	assert.Empty(t, st.LastError)
}

func TestController_RejectsConcurrentPlay(t *testing.T) {
	f := newFixture(t, itinerary)
	require.NoError(t, f.c.Play(0))
	assert.ErrorIs(t, f.c.Play(1), ErrAlreadyPlaying)

	require.NoError(t, f.c.Pause())
	assert.ErrorIs(t, f.c.Play(0), ErrAlreadyPlaying)
	assert.Equal(t, Paused, f.c.State())
}

func TestController_PauseResumeInPlace(t *testing.T) {
	f := newFixture(t, itinerary)
	require.NoError(t, f.c.Toggle(context.Background()))
	for i := 0; i < 4; i++ {
		f.frame(t)
	}

	require.NoError(t, f.c.Toggle(context.Background()))
	assert.Equal(t, Paused, f.c.State())
	before := f.c.Status().Snapshot

	f.clock.TryTick(50 * time.Millisecond)
	assert.False(t, f.clock.TryTick(50*time.Millisecond))
	assert.Equal(t, before, f.c.Status().Snapshot)

	require.NoError(t, f.c.Toggle(context.Background()))
	assert.Equal(t, Playing, f.c.State())
	f.frame(t)
	after := f.c.Status().Snapshot
	assert.Equal(t, before.Frames+1, after.Frames)
	assert.Equal(t, before.BufferLen+1, after.BufferLen)
}

func TestController_DaySwitchWhilePaused(t *testing.T) {
	f := newFixture(t, itinerary)
	require.NoError(t, f.c.Toggle(context.Background()))
	for i := 0; i < 13; i++ {
		f.frame(t)
	}
	first := f.c.Status().RunID

	require.NoError(t, f.c.Toggle(context.Background()))
	require.NoError(t, f.c.Select(1))
	assert.Equal(t, Paused, f.c.State(), "selecting a day does not restart by itself")

	f.scene.clear()
	require.NoError(t, f.c.Toggle(context.Background()))

	released := f.scene.released()
	for _, prefix := range []string{anim.DynamicPrefix, anim.TrailPrefix} {
		for i := 0; i < 5; i++ {
			id := fmt.Sprintf("%s-%d", prefix, i)
			assert.True(t, released[id], "%s not released", id)
		}
	}
	assert.True(t, released[anim.MarkerID])
	assert.Empty(t, f.scene.Sources())

	st := f.c.Status()
	assert.Equal(t, Playing, st.State)
	assert.Equal(t, 1, st.Active)
	assert.NotEqual(t, first, st.RunID)
	require.NotNil(t, st.Snapshot)
	assert.Equal(t, 0, st.Snapshot.Feature)
	assert.Equal(t, 0, st.Snapshot.Point)
	assert.Equal(t, 0, st.Snapshot.TrailLen)
	assert.Equal(t, 0, st.Snapshot.BufferLen)

	f.frame(t)
	assert.Equal(t, northOf(0), f.c.Status().Snapshot.Marker.Position)
	for i := 0; i < 3; i++ {
		f.frame(t)
	}
	f.waitIdle(t)
}

func TestController_SelectBackBeforeResumeKeepsPosition(t *testing.T) {
	f := newFixture(t, itinerary)
	require.NoError(t, f.c.Play(0))
	for i := 0; i < 3; i++ {
		f.frame(t)
	}
	require.NoError(t, f.c.Toggle(context.Background()))
	id := f.c.Status().RunID

	require.NoError(t, f.c.Select(1))
	require.NoError(t, f.c.Select(0))
	require.NoError(t, f.c.Toggle(context.Background()))

	st := f.c.Status()
	assert.Equal(t, Playing, st.State)
	assert.Equal(t, id, st.RunID)
	assert.Equal(t, 3, st.Snapshot.Frames)
}

func TestController_SelectWhileIdleOnlyChangesSelection(t *testing.T) {
	f := newFixture(t, itinerary)
	require.NoError(t, f.c.Select(1))
	assert.Equal(t, Idle, f.c.State())
	assert.False(t, f.clock.TryTick(20*time.Millisecond))
	assert.ErrorIs(t, f.c.Select(2), ErrUnknownDay)
	assert.ErrorIs(t, f.c.Select(-1), ErrUnknownDay)

	require.NoError(t, f.c.Toggle(context.Background()))
	assert.Equal(t, 1, f.c.Status().Active)
}

func TestController_MalformedDayFailsBeforePlaying(t *testing.T) {
	bad := days{{{Origin: orb.Point{math.NaN(), 0}, Destination: orb.Point{1, 1}}}}
	f := newFixture(t, bad)

	err := f.c.Play(0)
	assert.ErrorIs(t, err, route.ErrInvalidCoordinate)
	assert.Equal(t, Idle, f.c.State())
	assert.Empty(t, f.scene.released())
	assert.ErrorIs(t, f.c.Play(3), ErrUnknownDay)
}

func TestController_RendererFailureReturnsToIdle(t *testing.T) {
	f := newFixture(t, itinerary)
	require.NoError(t, f.c.Play(0))
	f.frame(t)
	f.scene.Close()
	require.True(t, f.clock.TryTick(waitTimeout))

	f.waitIdle(t)
	st := f.c.Status()
	assert.Contains(t, st.LastError, render.ErrClosed.Error())
	assert.Equal(t, 0, st.Snapshot.BufferLen)
}

func TestController_PauseResumeErrors(t *testing.T) {
	f := newFixture(t, itinerary)
	assert.ErrorIs(t, f.c.Pause(), ErrNotPlaying)
	assert.ErrorIs(t, f.c.Resume(), ErrNotPlaying)

	require.NoError(t, f.c.Play(0))
	assert.NoError(t, f.c.Resume())
	require.NoError(t, f.c.Pause())
	assert.NoError(t, f.c.Pause())
	require.NoError(t, f.c.Resume())
	assert.Equal(t, Playing, f.c.State())
}

func TestController_ResetAndStop(t *testing.T) {
	f := newFixture(t, itinerary)
	require.NoError(t, f.c.Play(0))
	for i := 0; i < 5; i++ {
		f.frame(t)
	}

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(t, f.c.Reset(ctx))
	assert.Equal(t, Idle, f.c.State())
	assert.Empty(t, f.scene.Sources())

	require.NoError(t, f.c.Play(1))
	require.NoError(t, f.c.Stop(ctx))
	assert.Equal(t, Idle, f.c.State())
	assert.NoError(t, f.c.Stop(ctx))
}

func TestController_CompletedTrailClearedOnNextPlay(t *testing.T) {
	f := newFixture(t, itinerary)
	require.NoError(t, f.c.Play(1))
	for i := 0; i < 4; i++ {
		f.frame(t)
	}
	f.waitIdle(t)
	require.True(t, f.scene.HasSource("passed-0"))

	require.NoError(t, f.c.Play(0))
	assert.Empty(t, f.scene.Sources())
}

func TestController_StateNotificationsFollowTransitions(t *testing.T) {
	var (
		mu       sync.Mutex
		seen     []State
		idleOnce sync.Once
	)
	entered := make(chan struct{})
	release := make(chan struct{})
	clock := render.NewManualClock()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	c := New(ctx, Options{
		Renderer:     render.NewScene(zerolog.Nop()),
		Clock:        clock,
		Days:         days{{{Origin: orb.Point{0, 0}, Destination: orb.Point{0, 0}, Mode: route.Car}}},
		StepDistance: 10,
		Logger:       zerolog.Nop(),
		OnState: func(s State, day int) {
			mu.Lock()
			seen = append(seen, s)
			mu.Unlock()
			if s == Idle {
				idleOnce.Do(func() {
					close(entered)
					<-release
				})
			}
		},
	})

	require.NoError(t, c.Play(0))
	require.True(t, clock.TryTick(waitTimeout))
	select {
	case <-entered:
	case <-time.After(waitTimeout):
		t.Fatal("run did not finish")
	}

	played := make(chan error, 1)
	go func() { played <- c.Play(0) }()
	time.Sleep(20 * time.Millisecond)
	close(release)

	select {
	case err := <-played:
		require.NoError(t, err)
	case <-time.After(waitTimeout):
		t.Fatal("second play did not return")
	}

	assert.Equal(t, Playing, c.State())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{Playing, Idle, Playing}, seen)
}
