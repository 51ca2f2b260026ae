package render

import (
	"fmt"
	"sort"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"
)

type layer struct {
	source string
	style  Style
}

// Scene is an in-memory Renderer. It mirrors the sources and layers a map
// client would hold and forwards every mutation to its sinks as a Command.
type Scene struct {
	mu      sync.RWMutex
	sources map[string]*geojson.FeatureCollection
	layers  map[string]layer
	order   []string
	center  *orb.Point
	closed  bool
	seq     uint64
	sinks   []Sink
	logger  zerolog.Logger
}

func NewScene(logger zerolog.Logger, sinks ...Sink) *Scene {
	return &Scene{
		sources: make(map[string]*geojson.FeatureCollection),
		layers:  make(map[string]layer),
		sinks:   sinks,
		logger:  logger,
	}
}

// AddSink attaches another command sink.
func (s *Scene) AddSink(sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, sink)
}

func (s *Scene) AddSource(id string, data *geojson.FeatureCollection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.sources[id]; ok {
		return fmt.Errorf("add source %q: %w", id, ErrSourceExists)
	}
	if data == nil {
		data = geojson.NewFeatureCollection()
	}
	s.sources[id] = data
	s.emit(Command{Op: OpAddSource, ID: id, Data: data})
	return nil
}

func (s *Scene) RemoveSource(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.sources[id]; !ok {
		return fmt.Errorf("remove source %q: %w", id, ErrSourceMissing)
	}
	for lid, l := range s.layers {
		if l.source == id {
			return fmt.Errorf("remove source %q (layer %q): %w", id, lid, ErrSourceInUse)
		}
	}
	delete(s.sources, id)
	s.emit(Command{Op: OpRemoveSource, ID: id})
	return nil
}

func (s *Scene) HasSource(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sources[id]
	return ok
}

func (s *Scene) AddLayer(id, source string, style Style) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.layers[id]; ok {
		return fmt.Errorf("add layer %q: %w", id, ErrLayerExists)
	}
	if _, ok := s.sources[source]; !ok {
		return fmt.Errorf("add layer %q: %w", id, ErrSourceMissing)
	}
	s.layers[id] = layer{source: source, style: style}
	s.order = append(s.order, id)
	st := style
	s.emit(Command{Op: OpAddLayer, ID: id, Source: source, Style: &st})
	return nil
}

func (s *Scene) RemoveLayer(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if _, ok := s.layers[id]; !ok {
		return false
	}
	delete(s.layers, id)
	for i, lid := range s.order {
		if lid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.emit(Command{Op: OpRemoveLayer, ID: id})
	return true
}

func (s *Scene) SetViewCenter(center orb.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	c := center
	s.center = &c
	s.emit(Command{Op: OpSetCenter, Center: &c})
	return nil
}

// Emit forwards a notification that is not a scene mutation (progress, state).
func (s *Scene) Emit(cmd Command) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emit(cmd)
}

// Close marks the scene as torn down. Later mutations fail with ErrClosed.
func (s *Scene) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// Snapshot returns the commands that rebuild the current scene from empty,
// and the sequence number of the last command already reflected in them.
// Sequence numbers of the returned commands are left at zero.
func (s *Scene) Snapshot() ([]Command, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sources))
	for id := range s.sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	cmds := make([]Command, 0, len(ids)+len(s.order)+1)
	for _, id := range ids {
		cmds = append(cmds, Command{Op: OpAddSource, ID: id, Data: s.sources[id]})
	}
	for _, id := range s.order {
		l := s.layers[id]
		st := l.style
		cmds = append(cmds, Command{Op: OpAddLayer, ID: id, Source: l.source, Style: &st})
	}
	if s.center != nil {
		c := *s.center
		cmds = append(cmds, Command{Op: OpSetCenter, Center: &c})
	}
	return cmds, s.seq
}

// Sources lists the registered source ids in sorted order.
func (s *Scene) Sources() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sources))
	for id := range s.sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Layers lists layer ids in draw order.
func (s *Scene) Layers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

func (s *Scene) Source(id string) (*geojson.FeatureCollection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fc, ok := s.sources[id]
	return fc, ok
}

func (s *Scene) Layer(id string) (source string, style Style, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.layers[id]
	return l.source, l.style, ok
}

func (s *Scene) Center() (orb.Point, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.center == nil {
		return orb.Point{}, false
	}
	return *s.center, true
}

func (s *Scene) emit(cmd Command) {
	s.seq++
	cmd.Seq = s.seq
	for _, sink := range s.sinks {
		if err := sink.Publish(cmd); err != nil {
			s.logger.Debug().Err(err).Str("op", string(cmd.Op)).Msg("sink publish failed")
		}
	}
}
