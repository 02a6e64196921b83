// Package places holds the registry of georeferenced model anchors.
package places

import (
	"fmt"
	"math"

	"github.com/geoarkit/placer/internal/geo"
)

// Bound selects one end of a visibility range.
type Bound string

const (
	BoundMin Bound = "min"
	BoundMax Bound = "max"
)

// ParseBound converts "min" or "max" into a Bound.
func ParseBound(s string) (Bound, error) {
	switch Bound(s) {
	case BoundMin, BoundMax:
		return Bound(s), nil
	default:
		return "", fmt.Errorf("unknown bound %q", s)
	}
}

// VisibilityRange is the open interval of distances, in meters, within which
// a model is shown.
type VisibilityRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether d lies strictly between Min and Max.
func (r VisibilityRange) Contains(d float64) bool {
	return r.Min < d && d < r.Max
}

// Valid reports whether both bounds are finite and 0 <= Min < Max.
// Non-finite bounds cannot be encoded in the export document.
func (r VisibilityRange) Valid() bool {
	if math.IsInf(r.Max, 0) || math.IsNaN(r.Max) || math.IsNaN(r.Min) {
		return false
	}
	return r.Min >= 0 && r.Min < r.Max
}

// With returns a copy of r with bound b set to value.
func (r VisibilityRange) With(b Bound, value float64) VisibilityRange {
	if b == BoundMin {
		r.Min = value
	} else {
		r.Max = value
	}
	return r
}

// Place is one georeferenced model anchor.
type Place struct {
	Name            string          `json:"name"`
	FilePath        string          `json:"filePath"`
	Location        geo.Coordinate  `json:"location"`
	VisibilityRange VisibilityRange `json:"visibilityRange"`
}

// SeedPlaces returns the static place list the registry starts from.
func SeedPlaces() []Place {
	return []Place{
		{
			Name:     "Magnemite",
			FilePath: "./assets/magnemite/scene.gltf",
			Location: geo.Coordinate{
				Latitude:  1.3087085765187283,
				Longitude: 103.85002403454892,
			},
			VisibilityRange: VisibilityRange{Min: 0, Max: 100},
		},
		{
			Name:     "Dragonite",
			FilePath: "./assets/dragonite/scene.gltf",
			Location: geo.Coordinate{
				Latitude:  1.306656407996899,
				Longitude: 103.85012141436107,
			},
			VisibilityRange: VisibilityRange{Min: 10, Max: 150},
		},
	}
}
