package anim

import (
	"context"
	"sync"
)

// Gate is the pause token shared between the playback controller and a
// running animation. While paused, Wait blocks on a channel that Resume
// closes, so a resumed animation continues on its next frame.
type Gate struct {
	mu     sync.Mutex
	resume chan struct{}
}

func NewGate() *Gate { return &Gate{} }

// Pause reports whether the gate changed state.
func (g *Gate) Pause() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.resume != nil {
		return false
	}
	g.resume = make(chan struct{})
	return true
}

// Resume reports whether the gate changed state.
func (g *Gate) Resume() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.resume == nil {
		return false
	}
	close(g.resume)
	g.resume = nil
	return true
}

func (g *Gate) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.resume != nil
}

// Wait returns immediately when not paused, otherwise when resumed or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	g.mu.Lock()
	ch := g.resume
	g.mu.Unlock()
	if ch == nil {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
