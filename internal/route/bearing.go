package route

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// Bearing returns the initial compass heading from one point to the next in
// degrees within [0, 360). Equal points yield 0; callers that need a stable
// heading keep their previous value in that case.
func Bearing(from, to orb.Point) float64 {
	if from.Equal(to) {
		return 0
	}
	b := math.Mod(geo.Bearing(from, to), 360)
	if b < 0 {
		b += 360
	}
	if b >= 360 {
		b = 0
	}
	return b
}
