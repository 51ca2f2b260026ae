package render

import (
	"context"
	"time"
)

// Clock delivers renderer frames. NextFrame blocks until the next frame or
// until ctx is done.
type Clock interface {
	NextFrame(ctx context.Context) error
}

// TickerClock produces frames at a fixed rate.
type TickerClock struct {
	tick *time.Ticker
}

func NewTickerClock(fps int) *TickerClock {
	if fps <= 0 {
		fps = 60
	}
	return &TickerClock{tick: time.NewTicker(time.Second / time.Duration(fps))}
}

func (c *TickerClock) NextFrame(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.tick.C:
		return nil
	}
}

func (c *TickerClock) Stop() { c.tick.Stop() }

// ManualClock hands out frames only when Tick is called. Used to step
// animations deterministically.
type ManualClock struct {
	frames chan struct{}
}

func NewManualClock() *ManualClock {
	return &ManualClock{frames: make(chan struct{})}
}

func (c *ManualClock) NextFrame(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.frames:
		return nil
	}
}

// Tick blocks until a NextFrame caller has taken the frame.
func (c *ManualClock) Tick() { c.frames <- struct{}{} }

// TryTick is Tick with a timeout. It reports whether the frame was taken.
func (c *ManualClock) TryTick(timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case c.frames <- struct{}{}:
		return true
	case <-t.C:
		return false
	}
}
