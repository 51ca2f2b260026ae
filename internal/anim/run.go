package anim

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"route-animator/internal/pool"
	"route-animator/internal/render"
	"route-animator/internal/route"
)

// MarkerID is the source and layer id of the moving marker.
const MarkerID = "point"

const (
	DynamicPrefix = "dynamic"
	TrailPrefix   = "passed"
)

// Styles configures the drawables of a run.
type Styles struct {
	Dynamic  render.Style
	Trail    render.Style
	IconSize float64
}

// DefaultStyles returns the 5px #db7916 lines and the 1.5 icon size.
func DefaultStyles() Styles {
	return Styles{
		Dynamic:  render.LineStyle(5, "#db7916"),
		Trail:    render.LineStyle(5, "#db7916"),
		IconSize: 1.5,
	}
}

// Options configures a Run.
type Options struct {
	Styles Styles
	// OnProgress receives the share of frames played, in [0,100], once per frame.
	OnProgress func(pct float64)
	// OnBind is called after every drawable bind with the pool prefix.
	OnBind func(pool string)
}

// Marker is the position and heading of the moving marker.
type Marker struct {
	Position orb.Point `json:"position"`
	Bearing  float64   `json:"bearing"`
	Feature  int       `json:"feature"`
}

// Snapshot is a copy of a run's observable state, safe to read from any goroutine.
type Snapshot struct {
	Marker    Marker  `json:"marker"`
	Feature   int     `json:"feature"`
	Point     int     `json:"point"`
	BufferLen int     `json:"bufferLen"`
	TrailLen  int     `json:"trailLen"`
	Frames    int     `json:"frames"`
	Total     int     `json:"total"`
	Progress  float64 `json:"progress"`
}

// Run is the state of one day's playback. It is owned by the goroutine
// stepping it; other goroutines only read Snapshot.
type Run struct {
	r        render.Renderer
	features []route.Feature
	opts     Options

	dynamic *pool.Pool
	trail   *pool.Pool

	feature   int
	point     int
	marker    Marker
	buffer    orb.LineString
	traversed []route.Feature
	frames    int
	total     int

	snap atomic.Pointer[Snapshot]
}

func NewRun(r render.Renderer, features []route.Feature, opts Options) *Run {
	if opts.Styles.IconSize == 0 {
		opts.Styles = DefaultStyles()
	}
	run := &Run{
		r:        r,
		features: features,
		opts:     opts,
		dynamic:  pool.New(r, DynamicPrefix, pool.Size, opts.Styles.Dynamic),
		trail:    pool.New(r, TrailPrefix, pool.Size, opts.Styles.Trail),
		total:    route.TotalFrames(features),
	}
	if opts.OnBind != nil {
		run.dynamic.OnBind(func() { opts.OnBind(DynamicPrefix) })
		run.trail.OnBind(func() { opts.OnBind(TrailPrefix) })
	}
	run.publish()
	return run
}

// Done reports whether every feature has been played.
func (r *Run) Done() bool { return r.feature >= len(r.features) }

func (r *Run) Snapshot() Snapshot { return *r.snap.Load() }

// Traversed returns the features played to completion so far.
func (r *Run) Traversed() []route.Feature { return r.traversed }

// Buffer returns the points visited within the current feature.
func (r *Run) Buffer() orb.LineString { return r.buffer }

// Step renders one frame and reports whether the run is complete.
func (r *Run) Step() (bool, error) {
	if r.Done() {
		return true, nil
	}
	f := r.features[r.feature]

	if f.Degenerate() {
		if err := r.complete(f); err != nil {
			return false, err
		}
		r.frame()
		return r.Done(), nil
	}

	if r.point == 0 {
		r.buffer = nil
	}
	p := f.Points[r.point]
	if r.point == 0 {
		if next := f.Points[1]; !p.Equal(next) {
			r.marker.Bearing = route.Bearing(p, next)
		}
	} else if prev := f.Points[r.point-1]; !prev.Equal(p) {
		r.marker.Bearing = route.Bearing(prev, p)
	}
	r.marker.Position = p
	r.marker.Feature = r.feature
	r.buffer = append(r.buffer, p)

	if err := r.dynamic.Bind(r.dynamic.Acquire(), lineCollection(f.Mode, r.buffer.Clone())); err != nil {
		return false, err
	}
	if err := r.r.SetViewCenter(p); err != nil {
		return false, fmt.Errorf("set view center: %w", err)
	}
	if err := r.drawMarker(f.Mode); err != nil {
		return false, err
	}

	r.point++
	if r.point == len(f.Points) {
		if err := r.complete(f); err != nil {
			return false, err
		}
	}
	r.frame()
	return r.Done(), nil
}

// Reset releases every drawable the run may have registered, including
// slots it never used, clears the trail and buffer and rewinds to the first
// feature.
func (r *Run) Reset() error {
	errs := []error{
		r.dynamic.ReleaseAll(),
		r.trail.ReleaseAll(),
		r.removeMarker(),
	}
	r.feature, r.point, r.frames = 0, 0, 0
	r.buffer = nil
	r.traversed = nil
	r.marker = Marker{}
	r.publish()
	return errors.Join(errs...)
}

func (r *Run) complete(f route.Feature) error {
	r.traversed = append(r.traversed, f)
	fc := geojson.NewFeatureCollection()
	for _, t := range r.traversed {
		feat := geojson.NewFeature(t.Points.Clone())
		feat.Properties["mode"] = string(t.Mode)
		fc.Append(feat)
	}
	if err := r.trail.Bind(r.trail.Acquire(), fc); err != nil {
		return err
	}
	r.feature++
	r.point = 0
	return nil
}

func (r *Run) frame() {
	r.frames++
	r.publish()
	if r.opts.OnProgress != nil {
		r.opts.OnProgress(r.progress())
	}
}

func (r *Run) progress() float64 {
	if r.total == 0 {
		return 100
	}
	if r.frames >= r.total {
		return 100
	}
	return float64(r.frames) * 100 / float64(r.total)
}

func (r *Run) publish() {
	r.snap.Store(&Snapshot{
		Marker:    r.marker,
		Feature:   r.feature,
		Point:     r.point,
		BufferLen: len(r.buffer),
		TrailLen:  len(r.traversed),
		Frames:    r.frames,
		Total:     r.total,
		Progress:  r.progress(),
	})
}

func (r *Run) drawMarker(mode route.Mode) error {
	if err := r.removeMarker(); err != nil {
		return err
	}
	feat := geojson.NewFeature(r.marker.Position)
	feat.Properties["bearing"] = r.marker.Bearing
	feat.Properties["mode"] = string(mode)
	if err := r.r.AddSource(MarkerID, geojson.NewFeatureCollection().Append(feat)); err != nil {
		return fmt.Errorf("draw marker: %w", err)
	}
	if err := r.r.AddLayer(MarkerID, MarkerID, render.MarkerStyle(string(mode), r.opts.Styles.IconSize)); err != nil {
		return fmt.Errorf("draw marker: %w", err)
	}
	return nil
}

func (r *Run) removeMarker() error {
	r.r.RemoveLayer(MarkerID)
	if r.r.HasSource(MarkerID) {
		if err := r.r.RemoveSource(MarkerID); err != nil {
			return fmt.Errorf("remove marker: %w", err)
		}
	}
	return nil
}

func lineCollection(mode route.Mode, ls orb.LineString) *geojson.FeatureCollection {
	feat := geojson.NewFeature(ls)
	feat.Properties["mode"] = string(mode)
	return geojson.NewFeatureCollection().Append(feat)
}
