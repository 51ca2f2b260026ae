package render

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

type Op string

const (
	OpAddSource    Op = "addSource"
	OpRemoveSource Op = "removeSource"
	OpAddLayer     Op = "addLayer"
	OpRemoveLayer  Op = "removeLayer"
	OpSetCenter    Op = "setCenter"
	OpProgress     Op = "progress"
	OpState        Op = "state"
)

// Command is one scene mutation or playback notification as streamed to map
// clients. Seq is strictly increasing per scene.
type Command struct {
	Seq      uint64                     `json:"seq"`
	Op       Op                         `json:"op"`
	ID       string                     `json:"id,omitempty"`
	Source   string                     `json:"source,omitempty"`
	Data     *geojson.FeatureCollection `json:"data,omitempty"`
	Style    *Style                     `json:"style,omitempty"`
	Center   *orb.Point                 `json:"center,omitempty"`
	Progress *float64                   `json:"progress,omitempty"`
	State    string                     `json:"state,omitempty"`
	Day      *int                       `json:"day,omitempty"`
}

// Sink receives every command emitted by a Scene. Publish is called with the
// scene lock held, so implementations must not block or call back into the scene.
type Sink interface {
	Publish(cmd Command) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(cmd Command) error

func (f SinkFunc) Publish(cmd Command) error { return f(cmd) }

// ProgressCommand builds a progress notification.
func ProgressCommand(pct float64) Command {
	return Command{Op: OpProgress, Progress: &pct}
}

// StateCommand builds a playback state notification.
func StateCommand(state string, day int) Command {
	return Command{Op: OpState, State: state, Day: &day}
}
