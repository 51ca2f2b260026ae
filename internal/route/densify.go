package route

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/s2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

var (
	// ErrInvalidCoordinate is returned for non-finite or out of range coordinates.
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	// ErrInvalidStep is returned when the step distance is not a positive finite number.
	ErrInvalidStep = errors.New("step distance must be positive")
)

// stepTolerance absorbs floating point noise so that 100m/10m yields 10 steps, not 11.
const stepTolerance = 1e-9

// ValidCoordinate reports whether p is a finite lon/lat pair within range.
func ValidCoordinate(p orb.Point) bool {
	lon, lat := p.Lon(), p.Lat()
	if math.IsNaN(lon) || math.IsNaN(lat) || math.IsInf(lon, 0) || math.IsInf(lat, 0) {
		return false
	}
	return lon >= -180 && lon <= 180 && lat >= -90 && lat <= 90
}

// Length returns the great-circle length of a segment in meters.
func Length(s Segment) float64 {
	return geo.DistanceHaversine(s.Origin, s.Destination)
}

// Densify turns each segment into a feature whose consecutive points are
// stepDistance meters apart along the great circle (the last gap is L/n with
// n = ceil(L/stepDistance), so all gaps are equal and never exceed the step).
// All segments are validated before any feature is built.
func Densify(segments []Segment, stepDistance float64) ([]Feature, error) {
	if !(stepDistance > 0) || math.IsInf(stepDistance, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStep, stepDistance)
	}
	for i, s := range segments {
		if !ValidCoordinate(s.Origin) {
			return nil, fmt.Errorf("segment %d origin %v: %w", i, s.Origin, ErrInvalidCoordinate)
		}
		if !ValidCoordinate(s.Destination) {
			return nil, fmt.Errorf("segment %d destination %v: %w", i, s.Destination, ErrInvalidCoordinate)
		}
	}

	features := make([]Feature, 0, len(segments))
	for _, s := range segments {
		features = append(features, Feature{Points: arc(s, stepDistance), Mode: s.Mode})
	}
	return features, nil
}

// Preprocess densifies a day's segments before playback.
func Preprocess(segments []Segment, stepDistance float64) ([]Feature, error) {
	return Densify(segments, stepDistance)
}

func arc(s Segment, stepDistance float64) orb.LineString {
	l := Length(s)
	if l == 0 || s.Origin.Equal(s.Destination) {
		return orb.LineString{s.Origin}
	}
	n := int(math.Ceil(l/stepDistance - stepTolerance*l/stepDistance))
	if n < 1 {
		n = 1
	}

	a := toS2(s.Origin)
	b := toS2(s.Destination)
	pts := make(orb.LineString, n+1)
	pts[0] = s.Origin
	for i := 1; i < n; i++ {
		pts[i] = fromS2(s2.Interpolate(float64(i)/float64(n), a, b))
	}
	pts[n] = s.Destination
	return pts
}

func toS2(p orb.Point) s2.Point {
	return s2.PointFromLatLng(s2.LatLngFromDegrees(p.Lat(), p.Lon()))
}

func fromS2(p s2.Point) orb.Point {
	ll := s2.LatLngFromPoint(p)
	return orb.Point{ll.Lng.Degrees(), ll.Lat.Degrees()}
}
