package render

import (
	"errors"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct{ cmds []Command }

func (r *recorder) Publish(cmd Command) error {
	r.cmds = append(r.cmds, cmd)
	return nil
}

func line(pts ...orb.Point) *geojson.FeatureCollection {
	return geojson.NewFeatureCollection().Append(geojson.NewFeature(orb.LineString(pts)))
}

func TestScene_SourceLayerLifecycle(t *testing.T) {
	rec := &recorder{}
	s := NewScene(zerolog.Nop(), rec)

	require.NoError(t, s.AddSource("a", line(orb.Point{0, 0}, orb.Point{1, 1})))
	assert.True(t, s.HasSource("a"))
	assert.ErrorIs(t, s.AddSource("a", nil), ErrSourceExists)

	assert.ErrorIs(t, s.AddLayer("l", "missing", LineStyle(5, "#db7916")), ErrSourceMissing)
	require.NoError(t, s.AddLayer("a", "a", LineStyle(5, "#db7916")))
	assert.ErrorIs(t, s.AddLayer("a", "a", LineStyle(5, "#db7916")), ErrLayerExists)

	assert.ErrorIs(t, s.RemoveSource("a"), ErrSourceInUse)
	assert.True(t, s.RemoveLayer("a"))
	assert.False(t, s.RemoveLayer("a"))
	require.NoError(t, s.RemoveSource("a"))
	assert.ErrorIs(t, s.RemoveSource("a"), ErrSourceMissing)
	assert.False(t, s.HasSource("a"))

	require.Len(t, rec.cmds, 4)
	ops := []Op{OpAddSource, OpAddLayer, OpRemoveLayer, OpRemoveSource}
	for i, cmd := range rec.cmds {
		assert.Equal(t, ops[i], cmd.Op)
		assert.Equal(t, uint64(i+1), cmd.Seq)
	}
}

func TestScene_Closed(t *testing.T) {
	s := NewScene(zerolog.Nop())
	require.NoError(t, s.AddSource("a", nil))
	s.Close()

	assert.ErrorIs(t, s.AddSource("b", nil), ErrClosed)
	assert.ErrorIs(t, s.RemoveSource("a"), ErrClosed)
	assert.ErrorIs(t, s.AddLayer("a", "a", Style{}), ErrClosed)
	assert.ErrorIs(t, s.SetViewCenter(orb.Point{1, 2}), ErrClosed)
	assert.False(t, s.RemoveLayer("a"))
}

func TestScene_Snapshot(t *testing.T) {
	s := NewScene(zerolog.Nop())
	require.NoError(t, s.AddSource("b", nil))
	require.NoError(t, s.AddSource("a", nil))
	require.NoError(t, s.AddLayer("b", "b", LineStyle(5, "#fff")))
	require.NoError(t, s.AddLayer("a", "a", MarkerStyle("car", 1.5)))
	require.NoError(t, s.SetViewCenter(orb.Point{3, 4}))

	snap, seq := s.Snapshot()
	assert.Equal(t, uint64(5), seq)
	require.Len(t, snap, 5)
	assert.Equal(t, "a", snap[0].ID)
	assert.Equal(t, "b", snap[1].ID)
	assert.Equal(t, OpAddLayer, snap[2].Op)
	assert.Equal(t, "b", snap[2].ID)
	assert.Equal(t, "a", snap[3].ID)
	assert.Equal(t, "bearing", snap[3].Style.IconRotateProperty)
	assert.Equal(t, orb.Point{3, 4}, *snap[4].Center)

	c, ok := s.Center()
	assert.True(t, ok)
	assert.Equal(t, orb.Point{3, 4}, c)
	assert.Equal(t, []string{"b", "a"}, s.Layers())
	assert.Equal(t, []string{"a", "b"}, s.Sources())
}

func TestScene_SinkErrorsDoNotFailMutations(t *testing.T) {
	s := NewScene(zerolog.Nop(), SinkFunc(func(Command) error { return errors.New("down") }))
	assert.NoError(t, s.AddSource("a", nil))
}

func TestScene_EmitNotifications(t *testing.T) {
	rec := &recorder{}
	s := NewScene(zerolog.Nop())
	s.AddSink(rec)
	s.Emit(ProgressCommand(42))
	s.Emit(StateCommand("playing", 2))

	require.Len(t, rec.cmds, 2)
	assert.Equal(t, 42.0, *rec.cmds[0].Progress)
	assert.Equal(t, "playing", rec.cmds[1].State)
	assert.Equal(t, 2, *rec.cmds[1].Day)
}

func TestManualClock(t *testing.T) {
	c := NewManualClock()
	assert.False(t, c.TryTick(10*time.Millisecond))

	done := make(chan error, 1)
	go func() { done <- c.NextFrame(t.Context()) }()
	c.Tick()
	assert.NoError(t, <-done)
}
