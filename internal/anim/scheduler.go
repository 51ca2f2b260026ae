package anim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"route-animator/internal/render"
)

// ErrCancelled is returned by Scheduler.Run when the run's context is cancelled.
var ErrCancelled = errors.New("animation cancelled")

// Metrics is the subset of the collector the scheduler reports to.
type Metrics interface {
	FrameObserve(d time.Duration)
}

// Scheduler advances a Run by one Step per renderer frame.
type Scheduler struct {
	Clock   render.Clock
	Logger  zerolog.Logger
	Metrics Metrics
}

// Run plays run to completion. Pausing the gate freezes the run between
// frames without touching its state. Cancelling ctx resets the run and
// returns ErrCancelled; a renderer failure resets the run and returns the
// failure. On completion the drawn trail is left in place.
func (s *Scheduler) Run(ctx context.Context, run *Run, gate *Gate) error {
	for !run.Done() {
		if err := gate.Wait(ctx); err != nil {
			return s.cancel(run, err)
		}
		if err := ctx.Err(); err != nil {
			return s.cancel(run, err)
		}
		if err := s.Clock.NextFrame(ctx); err != nil {
			return s.cancel(run, err)
		}
		if err := ctx.Err(); err != nil {
			return s.cancel(run, err)
		}
		if gate.Paused() {
			continue
		}

		start := time.Now()
		if _, err := run.Step(); err != nil {
			snap := run.Snapshot()
			if rerr := run.Reset(); rerr != nil {
				s.Logger.Warn().Err(rerr).Msg("reset after failed frame")
			}
			return fmt.Errorf("frame %d of %d: %w", snap.Frames+1, snap.Total, err)
		}
		if s.Metrics != nil {
			s.Metrics.FrameObserve(time.Since(start))
		}
	}
	return nil
}

func (s *Scheduler) cancel(run *Run, cause error) error {
	snap := run.Snapshot()
	if err := run.Reset(); err != nil {
		s.Logger.Warn().Err(err).Msg("reset after cancel")
	}
	s.Logger.Debug().Int("frames", snap.Frames).Int("total", snap.Total).Msg("animation cancelled")
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}
