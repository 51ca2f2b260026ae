package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"route-animator/internal/anim"
	"route-animator/internal/render"
	"route-animator/internal/route"
)

var (
	ErrAlreadyPlaying = errors.New("already playing")
	ErrNotPlaying     = errors.New("not playing")
	ErrUnknownDay     = errors.New("unknown day")
)

type State string

const (
	Idle    State = "idle"
	Playing State = "playing"
	Paused  State = "paused"
)

// Days gives access to the transport segments of each itinerary day.
type Days interface {
	Len() int
	Segments(day int) ([]route.Segment, error)
}

type Metrics interface {
	anim.Metrics
	RunStarted()
	RunFinished(outcome string)
	BindInc(pool string)
	ProgressSet(pct float64)
	StateSet(state string)
}

type Options struct {
	Renderer     render.Renderer
	Clock        render.Clock
	Days         Days
	StepDistance float64
	Styles       anim.Styles
	Logger       zerolog.Logger
	Metrics      Metrics

	OnProgress func(pct float64)
	OnState    func(state State, day int)
}

type Status struct {
	State     State          `json:"state"`
	Selected  int            `json:"selectedDay"`
	Active    int            `json:"activeDay"`
	RunID     string         `json:"runId,omitempty"`
	Snapshot  *anim.Snapshot `json:"snapshot,omitempty"`
	LastError string         `json:"lastError,omitempty"`
}

// Controller maps play/pause/day selection onto animation runs. At most one
// run is active at a time.
type Controller struct {
	opts  Options
	base  context.Context
	sched *anim.Scheduler

	// ops serializes control operations, including the wait for a cancelled
	// run to finish its reset.
	ops sync.Mutex

	// emit is held across a state change and its notification so that
	// observers see states in the order they were entered.
	emit sync.Mutex

	mu       sync.Mutex
	state    State
	selected int
	active   int
	gate     *anim.Gate
	cancel   context.CancelFunc
	done     chan struct{}
	run      *anim.Run
	runID    string
	lastErr  error
}

// New creates an idle controller. Runs are bound to ctx and stop when it is done.
func New(ctx context.Context, opts Options) *Controller {
	return &Controller{
		opts:  opts,
		base:  ctx,
		sched: &anim.Scheduler{Clock: opts.Clock, Logger: opts.Logger, Metrics: opts.Metrics},
		state: Idle,
	}
}

// Select changes the day the next Play or Toggle starts. It never starts or
// stops an animation by itself.
func (c *Controller) Select(day int) error {
	if day < 0 || day >= c.opts.Days.Len() {
		return fmt.Errorf("%w: %d", ErrUnknownDay, day)
	}
	c.mu.Lock()
	c.selected = day
	c.mu.Unlock()
	return nil
}

// Play starts animating day. It fails with ErrAlreadyPlaying unless idle.
func (c *Controller) Play(day int) error {
	c.ops.Lock()
	defer c.ops.Unlock()
	return c.play(day)
}

// Toggle is the single play/pause button: idle starts the selected day,
// playing pauses, paused resumes in place when the selected day is still the
// active one and otherwise cancels the paused run and starts the selected day.
func (c *Controller) Toggle(ctx context.Context) error {
	c.ops.Lock()
	defer c.ops.Unlock()

	c.emit.Lock()
	c.mu.Lock()
	state, selected, active := c.state, c.selected, c.active
	switch state {
	case Idle:
		c.mu.Unlock()
		c.emit.Unlock()
		return c.play(selected)
	case Playing:
		c.gate.Pause()
		c.state = Paused
		c.mu.Unlock()
		c.notify(Paused, active)
		c.emit.Unlock()
		return nil
	}

	if selected == active {
		c.gate.Resume()
		c.state = Playing
		c.mu.Unlock()
		c.notify(Playing, active)
		c.emit.Unlock()
		return nil
	}
	c.cancel()
	c.gate.Resume()
	done := c.done
	c.mu.Unlock()
	c.emit.Unlock()

	c.opts.Logger.Info().Int("from_day", active).Int("to_day", selected).Msg("switching day")
	if err := waitDone(ctx, done); err != nil {
		return err
	}
	return c.play(selected)
}

// Pause freezes the active run before its next frame.
func (c *Controller) Pause() error {
	c.ops.Lock()
	defer c.ops.Unlock()
	c.emit.Lock()
	defer c.emit.Unlock()

	c.mu.Lock()
	switch c.state {
	case Idle:
		c.mu.Unlock()
		return ErrNotPlaying
	case Paused:
		c.mu.Unlock()
		return nil
	}
	c.gate.Pause()
	c.state = Paused
	day := c.active
	c.mu.Unlock()
	c.notify(Paused, day)
	return nil
}

// Resume continues the active day where it was paused.
func (c *Controller) Resume() error {
	c.ops.Lock()
	defer c.ops.Unlock()
	c.emit.Lock()
	defer c.emit.Unlock()

	c.mu.Lock()
	switch c.state {
	case Idle:
		c.mu.Unlock()
		return ErrNotPlaying
	case Playing:
		c.mu.Unlock()
		return nil
	}
	c.gate.Resume()
	c.state = Playing
	day := c.active
	c.mu.Unlock()
	c.notify(Playing, day)
	return nil
}

// Reset stops any run and removes every drawable the animation may have left.
func (c *Controller) Reset(ctx context.Context) error {
	c.ops.Lock()
	defer c.ops.Unlock()

	if err := c.stop(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	run := c.run
	c.mu.Unlock()
	if run == nil {
		run = c.newRun(nil)
	}
	return run.Reset()
}

// Stop cancels any run and waits for it to finish.
func (c *Controller) Stop(ctx context.Context) error {
	c.ops.Lock()
	defer c.ops.Unlock()
	return c.stop(ctx)
}

// Wait blocks until the current run, if any, has finished.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return nil
	}
	return waitDone(ctx, done)
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{State: c.state, Selected: c.selected, Active: c.active, RunID: c.runID}
	if c.run != nil {
		snap := c.run.Snapshot()
		st.Snapshot = &snap
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	return st
}

func (c *Controller) play(day int) error {
	c.mu.Lock()
	if c.state != Idle {
		c.mu.Unlock()
		return ErrAlreadyPlaying
	}
	c.mu.Unlock()

	if day < 0 || day >= c.opts.Days.Len() {
		return fmt.Errorf("%w: %d", ErrUnknownDay, day)
	}
	segments, err := c.opts.Days.Segments(day)
	if err != nil {
		return fmt.Errorf("day %d: %w", day, err)
	}
	features, err := route.Preprocess(segments, c.opts.StepDistance)
	if err != nil {
		return fmt.Errorf("day %d: %w", day, err)
	}

	run := c.newRun(features)
	if err := run.Reset(); err != nil {
		return fmt.Errorf("reset renderer: %w", err)
	}

	ctx, cancel := context.WithCancel(c.base)
	gate := anim.NewGate()
	done := make(chan struct{})
	id := uuid.New().String()

	c.emit.Lock()
	c.mu.Lock()
	c.state = Playing
	c.active = day
	c.gate = gate
	c.cancel = cancel
	c.done = done
	c.run = run
	c.runID = id
	c.lastErr = nil
	c.mu.Unlock()
	c.notify(Playing, day)
	c.emit.Unlock()

	c.opts.Logger.Info().Str("run_id", id).Int("day", day).Int("features", len(features)).
		Int("frames", route.TotalFrames(features)).Msg("starting run")
	if c.opts.Metrics != nil {
		c.opts.Metrics.RunStarted()
	}

	go c.drive(ctx, cancel, run, gate, done, id, day)
	return nil
}

func (c *Controller) drive(ctx context.Context, cancel context.CancelFunc, run *anim.Run, gate *anim.Gate, done chan struct{}, id string, day int) {
	defer close(done)
	defer cancel()

	err := c.sched.Run(ctx, run, gate)

	outcome := "completed"
	switch {
	case err == nil:
		c.opts.Logger.Info().Str("run_id", id).Int("day", day).Msg("finished run")
	case errors.Is(err, anim.ErrCancelled):
		outcome = "cancelled"
		c.opts.Logger.Info().Str("run_id", id).Int("day", day).Msg("cancelled run")
	default:
		outcome = "failed"
		c.opts.Logger.Error().Err(err).Str("run_id", id).Int("day", day).Msg("run failed")
	}
	if c.opts.Metrics != nil {
		c.opts.Metrics.RunFinished(outcome)
	}

	c.emit.Lock()
	defer c.emit.Unlock()
	c.mu.Lock()
	c.state = Idle
	c.gate = nil
	c.cancel = nil
	if outcome == "failed" {
		c.lastErr = err
	}
	c.mu.Unlock()
	c.notify(Idle, day)
}

func (c *Controller) stop(ctx context.Context) error {
	c.mu.Lock()
	if c.state == Idle {
		c.mu.Unlock()
		return nil
	}
	c.cancel()
	c.gate.Resume()
	done := c.done
	c.mu.Unlock()
	return waitDone(ctx, done)
}

func (c *Controller) newRun(features []route.Feature) *anim.Run {
	opts := anim.Options{Styles: c.opts.Styles, OnProgress: c.progress}
	if m := c.opts.Metrics; m != nil {
		opts.OnBind = m.BindInc
	}
	return anim.NewRun(c.opts.Renderer, features, opts)
}

func (c *Controller) progress(pct float64) {
	if c.opts.Metrics != nil {
		c.opts.Metrics.ProgressSet(pct)
	}
	if c.opts.OnProgress != nil {
		c.opts.OnProgress(pct)
	}
}

func (c *Controller) notify(state State, day int) {
	if c.opts.Metrics != nil {
		c.opts.Metrics.StateSet(string(state))
	}
	if c.opts.OnState != nil {
		c.opts.OnState(state, day)
	}
}

func waitDone(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
