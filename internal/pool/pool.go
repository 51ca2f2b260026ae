// Package pool rotates a fixed set of renderer drawable identifiers so that a
// long animation never registers more than Size sources and layers at once.
package pool

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb/geojson"

	"route-animator/internal/render"
)

// Size is the number of slots per pool.
const Size = 5

// Pool owns Size slots, each bound to at most one source and one layer with
// the same identifier.
type Pool struct {
	r      render.Renderer
	prefix string
	size   int
	style  render.Style

	next   int
	issued int
	binds  func()
}

// New creates a pool whose identifiers are "<prefix>-<slot>".
func New(r render.Renderer, prefix string, size int, style render.Style) *Pool {
	if size <= 0 {
		size = Size
	}
	return &Pool{r: r, prefix: prefix, size: size, style: style}
}

// OnBind registers a hook called after every successful Bind.
func (p *Pool) OnBind(fn func()) { p.binds = fn }

// ID returns the identifier of slot.
func (p *Pool) ID(slot int) string { return fmt.Sprintf("%s-%d", p.prefix, slot) }

// IDs returns every identifier of the pool in slot order.
func (p *Pool) IDs() []string {
	ids := make([]string, p.size)
	for i := range ids {
		ids[i] = p.ID(i)
	}
	return ids
}

// Acquire returns the identifier of the slot after the last one handed out.
// The drawable previously bound there is retired by the next Bind.
func (p *Pool) Acquire() string {
	slot := p.next
	p.next = (p.next + 1) % p.size
	if p.issued < p.size {
		p.issued++
	}
	return p.ID(slot)
}

// Issued is the number of distinct identifiers handed out so far.
func (p *Pool) Issued() int { return p.issued }

// Bind replaces whatever is drawn at id with data.
func (p *Pool) Bind(id string, data *geojson.FeatureCollection) error {
	if err := p.release(id); err != nil {
		return err
	}
	if err := p.r.AddSource(id, data); err != nil {
		return fmt.Errorf("bind %s: %w", id, err)
	}
	if err := p.r.AddLayer(id, id, p.style); err != nil {
		return fmt.Errorf("bind %s: %w", id, err)
	}
	if p.binds != nil {
		p.binds()
	}
	return nil
}

// ReleaseAll removes every slot's drawable whether or not it was used, and
// rewinds the rotation.
func (p *Pool) ReleaseAll() error {
	var errs []error
	for _, id := range p.IDs() {
		if err := p.release(id); err != nil {
			errs = append(errs, err)
		}
	}
	p.next = 0
	p.issued = 0
	return errors.Join(errs...)
}

func (p *Pool) release(id string) error {
	p.r.RemoveLayer(id)
	if p.r.HasSource(id) {
		if err := p.r.RemoveSource(id); err != nil {
			return fmt.Errorf("release %s: %w", id, err)
		}
	}
	return nil
}
