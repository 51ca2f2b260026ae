package itinerary

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"route-animator/internal/route"
)

var (
	ErrMissingEndpoints  = errors.New("origin and destination must be defined for a transport")
	ErrMissingCoordinate = errors.New("place coordinates must be defined for a place")
	ErrBadPosition       = errors.New("invalid position")
)

// Location is a non-transport stop of a day (hotel, sight, ...).
type Location struct {
	Type       string    `json:"type"`
	Coordinate orb.Point `json:"coordinate"`
}

type Day struct {
	Index     int             `json:"index"`
	Label     string          `json:"label"`
	Locations []Location      `json:"locations"`
	Segments  []route.Segment `json:"-"`
}

// Itinerary is an ordered list of days. It satisfies playback.Days.
type Itinerary struct {
	ID    string
	Start time.Time
	Days  []Day
}

func (it *Itinerary) Len() int { return len(it.Days) }

func (it *Itinerary) Segments(day int) ([]route.Segment, error) {
	if day < 0 || day >= len(it.Days) {
		return nil, fmt.Errorf("day %d out of range [0,%d)", day, len(it.Days))
	}
	return it.Days[day].Segments, nil
}

// Label returns the display label of day, falling back to its position.
func (it *Itinerary) Label(day int) string {
	if day >= 0 && day < len(it.Days) && it.Days[day].Label != "" {
		return it.Days[day].Label
	}
	return fmt.Sprintf("Day %d", day+1)
}

// relabel assigns "02 Jan" labels counted from Start.
func (it *Itinerary) relabel() {
	if it.Start.IsZero() {
		return
	}
	labels := Labels(it.Start, len(it.Days))
	for i := range it.Days {
		it.Days[i].Label = labels[i]
	}
}

// Labels returns n consecutive day labels starting at start, formatted as "02 Jan".
func Labels(start time.Time, n int) []string {
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, start.AddDate(0, 0, i).Format("02 Jan"))
	}
	return out
}

// ParsePosition parses a "lat,lon" string into a (lon, lat) point.
func ParsePosition(s string) (orb.Point, error) {
	lat, lon, ok := strings.Cut(s, ",")
	if !ok {
		return orb.Point{}, fmt.Errorf("%w: %q", ErrBadPosition, s)
	}
	la, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("%w: %q", ErrBadPosition, s)
	}
	lo, err := strconv.ParseFloat(strings.TrimSpace(lon), 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("%w: %q", ErrBadPosition, s)
	}
	p := orb.Point{lo, la}
	if !route.ValidCoordinate(p) {
		return orb.Point{}, fmt.Errorf("%w: %q: %w", ErrBadPosition, s, route.ErrInvalidCoordinate)
	}
	return p, nil
}

var dateLayouts = []string{time.RFC3339, "2006-01-02", "2006-01-02 15:04:05", "01/02/2006"}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
