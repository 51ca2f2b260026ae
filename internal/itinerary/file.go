package itinerary

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"route-animator/internal/route"
)

const transportPlace = "transport"

type rawDay struct {
	Days  int        `json:"days" yaml:"days"`
	Place []rawPlace `json:"place" yaml:"place"`
}

type rawPlace struct {
	PlaceType       string   `json:"place_type" yaml:"place_type"`
	PlaceCoordinate string   `json:"place_coordinate" yaml:"place_coordinate"`
	MetaData        *rawMeta `json:"meta_data" yaml:"meta_data"`
}

type rawMeta struct {
	Origin            string `json:"origin" yaml:"origin"`
	Destination       string `json:"destination" yaml:"destination"`
	Destionation      string `json:"destionation" yaml:"destionation"` // misspelt key used by older exports
	Mode              string `json:"mode" yaml:"mode"`
	LastTicketingDate string `json:"lastTicketingDate" yaml:"lastTicketingDate"`
}

func (m *rawMeta) destination() string {
	if m.Destination != "" {
		return m.Destination
	}
	return m.Destionation
}

// LoadFile reads an itinerary export. Files ending in .yaml or .yml are
// decoded as YAML, everything else as JSON.
func LoadFile(path string) (*Itinerary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ext := strings.ToLower(filepath.Ext(path))
	it, err := Parse(data, ext == ".yaml" || ext == ".yml")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	it.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return it, nil
}

// Parse decodes an export: a list of days, each a list of places. The first
// place of every day is the day header and carries no geometry; the first
// day's header holds the start date.
func Parse(data []byte, isYAML bool) (*Itinerary, error) {
	var raw []rawDay
	var err error
	if isYAML {
		err = yaml.Unmarshal(data, &raw)
	} else {
		err = json.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, fmt.Errorf("decode itinerary: %w", err)
	}

	it := &Itinerary{Days: make([]Day, 0, len(raw))}
	for i, rd := range raw {
		day, err := buildDay(rd)
		if err != nil {
			return nil, fmt.Errorf("day %d: %w", i, err)
		}
		it.Days = append(it.Days, day)
	}

	if len(raw) > 0 && len(raw[0].Place) > 0 && raw[0].Place[0].MetaData != nil {
		if s := raw[0].Place[0].MetaData.LastTicketingDate; s != "" {
			start, err := parseDate(s)
			if err != nil {
				return nil, fmt.Errorf("start date: %w", err)
			}
			it.Start = start
		}
	}
	it.relabel()
	return it, nil
}

func buildDay(rd rawDay) (Day, error) {
	day := Day{Index: rd.Days}
	for i := 1; i < len(rd.Place); i++ {
		p := rd.Place[i]
		if p.PlaceType != transportPlace {
			if p.PlaceCoordinate == "" {
				return Day{}, fmt.Errorf("place %d: %w", i, ErrMissingCoordinate)
			}
			c, err := ParsePosition(p.PlaceCoordinate)
			if err != nil {
				return Day{}, fmt.Errorf("place %d: %w", i, err)
			}
			day.Locations = append(day.Locations, Location{Type: p.PlaceType, Coordinate: c})
			continue
		}

		if p.MetaData == nil || p.MetaData.Origin == "" || p.MetaData.destination() == "" {
			return Day{}, fmt.Errorf("place %d: %w", i, ErrMissingEndpoints)
		}
		seg, err := segment(p.MetaData.Origin, p.MetaData.destination(), p.MetaData.Mode)
		if err != nil {
			return Day{}, fmt.Errorf("place %d: %w", i, err)
		}
		day.Segments = append(day.Segments, seg)
	}
	return day, nil
}

func segment(origin, destination, mode string) (route.Segment, error) {
	o, err := ParsePosition(origin)
	if err != nil {
		return route.Segment{}, fmt.Errorf("origin: %w", err)
	}
	d, err := ParsePosition(destination)
	if err != nil {
		return route.Segment{}, fmt.Errorf("destination: %w", err)
	}
	m, err := route.ParseMode(mode)
	if err != nil {
		return route.Segment{}, err
	}
	return route.Segment{Origin: o, Destination: d, Mode: m}, nil
}
