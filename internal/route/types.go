package route

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
)

// Mode selects the marker icon used while a segment is traversed.
type Mode string

const (
	Car    Mode = "car"
	Flight Mode = "flight"
)

// ParseMode accepts the icon names used by itinerary sources.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case Car:
		return Car, nil
	case Flight, "":
		return Flight, nil
	default:
		return "", fmt.Errorf("unknown transport mode %q", s)
	}
}

// Segment is one origin/destination leg of a day's itinerary.
type Segment struct {
	Origin      orb.Point
	Destination orb.Point
	Mode        Mode
}

// Feature is a densified segment. Points are never mutated after Densify.
type Feature struct {
	Points orb.LineString
	Mode   Mode
}

// Degenerate reports whether the feature collapsed to a single point.
func (f Feature) Degenerate() bool { return len(f.Points) < 2 }

// Frames is the number of animation frames the feature takes to play.
func (f Feature) Frames() int { return len(f.Points) }

// TotalFrames sums Frames over all features.
func TotalFrames(features []Feature) int {
	n := 0
	for _, f := range features {
		n += f.Frames()
	}
	return n
}
