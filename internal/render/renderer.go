package render

import (
	"errors"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

var (
	ErrClosed        = errors.New("renderer closed")
	ErrSourceExists  = errors.New("source already exists")
	ErrSourceMissing = errors.New("source does not exist")
	ErrSourceInUse   = errors.New("source is used by a layer")
	ErrLayerExists   = errors.New("layer already exists")
)

// Renderer is the map surface the animation draws on. Sources hold GeoJSON
// data, layers draw a source with a style.
type Renderer interface {
	AddSource(id string, data *geojson.FeatureCollection) error
	RemoveSource(id string) error
	HasSource(id string) bool
	AddLayer(id, source string, style Style) error
	RemoveLayer(id string) bool
	SetViewCenter(center orb.Point) error
}

type LayerKind string

const (
	LineLayer   LayerKind = "line"
	SymbolLayer LayerKind = "symbol"
)

// Style carries the paint and layout parameters of a layer.
type Style struct {
	Kind LayerKind `json:"kind"`

	LineWidth float64 `json:"lineWidth,omitempty"`
	LineColor string  `json:"lineColor,omitempty"`

	Icon string `json:"icon,omitempty"`
	// IconSize scales the icon image.
	IconSize float64 `json:"iconSize,omitempty"`
	// IconRotateProperty names the feature property holding the rotation in degrees.
	IconRotateProperty string `json:"iconRotateProperty,omitempty"`
	RotationAlignment  string `json:"rotationAlignment,omitempty"`
	AllowOverlap       bool   `json:"allowOverlap,omitempty"`
	IgnorePlacement    bool   `json:"ignorePlacement,omitempty"`
}

// LineStyle returns a line layer style.
func LineStyle(width float64, color string) Style {
	return Style{Kind: LineLayer, LineWidth: width, LineColor: color}
}

// MarkerStyle returns the symbol style used for the moving marker. The icon
// is rotated by the "bearing" property of the marker feature.
func MarkerStyle(icon string, size float64) Style {
	return Style{
		Kind:               SymbolLayer,
		Icon:               icon,
		IconSize:           size,
		IconRotateProperty: "bearing",
		RotationAlignment:  "map",
		AllowOverlap:       true,
		IgnorePlacement:    true,
	}
}
