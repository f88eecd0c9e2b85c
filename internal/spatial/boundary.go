package spatial

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrMalformedBoundary is returned when a boundary payload cannot be parsed
// or fails validation. A malformed boundary is rejected outright; it is never
// silently treated as "no boundary".
var ErrMalformedBoundary = errors.New("malformed boundary")

// Boundary is the geographic area assigned to a staff member. Implementations
// are immutable after construction; replacing a boundary means swapping the
// whole value.
type Boundary interface {
	// Contains reports whether the point lies within the boundary.
	// The boundary edge counts as inside for circles (closed disk).
	Contains(lat, lon float64) bool

	// Encode returns the boundary in wire format
	Encode() (json.RawMessage, error)
}

// Circle is a radius boundary around a center point
type Circle struct {
	CenterLat float64
	CenterLon float64
	RadiusKm  float64
}

// Contains reports whether the great-circle distance from the center is
// within the radius
func (c *Circle) Contains(lat, lon float64) bool {
	return HaversineDistanceKm(c.CenterLat, c.CenterLon, lat, lon) <= c.RadiusKm
}

// Encode returns the circle in wire format: center is [lon, lat]
func (c *Circle) Encode() (json.RawMessage, error) {
	return json.Marshal(wireBoundary{
		Type:     "Circle",
		Center:   []float64{c.CenterLon, c.CenterLat},
		RadiusKm: c.RadiusKm,
	})
}

// Polygon is a closed-ring boundary. The ring keeps the closing vertex
// (first == last) as loaded from the wire.
type Polygon struct {
	ring []Point
}

// Ring returns a copy of the polygon's vertex ring
func (p *Polygon) Ring() []Point {
	out := make([]Point, len(p.ring))
	copy(out, p.ring)
	return out
}

// Contains performs an exact ray-casting point-in-polygon test. A bounding
// box is only used as a cheap pre-filter; it never decides containment on
// its own.
func (p *Polygon) Contains(lat, lon float64) bool {
	minLat, minLon, maxLat, maxLon := RingBounds(p.ring)
	if lat < minLat || lat > maxLat || lon < minLon || lon > maxLon {
		return false
	}
	return PointInRing(Point{Lat: lat, Lon: lon}, p.ring)
}

// Encode returns the polygon in wire format: coordinates are [lon, lat]
func (p *Polygon) Encode() (json.RawMessage, error) {
	ring := make([][]float64, len(p.ring))
	for i, pt := range p.ring {
		ring[i] = []float64{pt.Lon, pt.Lat}
	}
	return json.Marshal(wireBoundary{
		Type:        "Polygon",
		Coordinates: [][][]float64{ring},
	})
}

// NewPolygon builds a polygon from an ordered vertex ring. The ring must be
// closed (first == last), have at least 4 vertices, and every vertex must be
// a finite in-range coordinate.
func NewPolygon(ring []Point) (*Polygon, error) {
	if len(ring) < 4 {
		return nil, fmt.Errorf("%w: ring has %d points, need at least 4", ErrMalformedBoundary, len(ring))
	}
	for i, pt := range ring {
		if !validCoordinate(pt.Lat, pt.Lon) {
			return nil, fmt.Errorf("%w: vertex %d out of range", ErrMalformedBoundary, i)
		}
	}
	if ring[0] != ring[len(ring)-1] {
		return nil, fmt.Errorf("%w: ring is not closed", ErrMalformedBoundary)
	}

	owned := make([]Point, len(ring))
	copy(owned, ring)
	return &Polygon{ring: owned}, nil
}

// wireBoundary is the GeoJSON-like wire representation. Coordinate order on
// the wire is [lon, lat]; internal order is (lat, lon).
type wireBoundary struct {
	Type        string        `json:"type"`
	Coordinates [][][]float64 `json:"coordinates,omitempty"`
	Center      []float64     `json:"center,omitempty"`
	RadiusKm    float64       `json:"radius_km,omitempty"`
}

// ParseBoundary decodes and validates a wire-format boundary. A nil or empty
// payload means "no boundary" and returns (nil, nil); anything else either
// parses cleanly or fails with ErrMalformedBoundary.
func ParseBoundary(data json.RawMessage) (Boundary, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var w wireBoundary
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBoundary, err)
	}

	switch w.Type {
	case "Polygon":
		return parsePolygon(w)
	case "Circle":
		return parseCircle(w)
	default:
		return nil, fmt.Errorf("%w: unsupported type %q", ErrMalformedBoundary, w.Type)
	}
}

func parsePolygon(w wireBoundary) (*Polygon, error) {
	if len(w.Coordinates) == 0 {
		return nil, fmt.Errorf("%w: polygon has no ring", ErrMalformedBoundary)
	}

	raw := w.Coordinates[0]
	if len(raw) < 4 {
		return nil, fmt.Errorf("%w: ring has %d points, need at least 4", ErrMalformedBoundary, len(raw))
	}

	ring := make([]Point, len(raw))
	for i, pair := range raw {
		if len(pair) != 2 {
			return nil, fmt.Errorf("%w: vertex %d is not a [lon, lat] pair", ErrMalformedBoundary, i)
		}
		ring[i] = Point{Lat: pair[1], Lon: pair[0]}
	}

	return NewPolygon(ring)
}

func parseCircle(w wireBoundary) (*Circle, error) {
	if len(w.Center) != 2 {
		return nil, fmt.Errorf("%w: circle center is not a [lon, lat] pair", ErrMalformedBoundary)
	}
	lon, lat := w.Center[0], w.Center[1]
	if !validCoordinate(lat, lon) {
		return nil, fmt.Errorf("%w: circle center out of range", ErrMalformedBoundary)
	}
	if !(w.RadiusKm > 0) || math.IsInf(w.RadiusKm, 1) {
		return nil, fmt.Errorf("%w: circle radius must be positive", ErrMalformedBoundary)
	}

	return &Circle{CenterLat: lat, CenterLon: lon, RadiusKm: w.RadiusKm}, nil
}

func validCoordinate(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lon) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
