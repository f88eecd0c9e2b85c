package spatial

// Point represents a 2D point with latitude and longitude
type Point struct {
	Lat float64
	Lon float64
}

// PointInRing checks if a point is inside a closed ring using ray casting.
// The ring is the ordered vertex list of a polygon; the closing vertex
// (first == last) may be present or not, the parity result is the same.
func PointInRing(point Point, ring []Point) bool {
	if len(ring) < 3 {
		return false
	}

	inside := false
	j := len(ring) - 1

	for i := 0; i < len(ring); i++ {
		if ((ring[i].Lat > point.Lat) != (ring[j].Lat > point.Lat)) &&
			(point.Lon < (ring[j].Lon-ring[i].Lon)*(point.Lat-ring[i].Lat)/(ring[j].Lat-ring[i].Lat)+ring[i].Lon) {
			inside = !inside
		}
		j = i
	}

	return inside
}

// RingBounds calculates the bounding box of a ring.
// Returns (minLat, minLon, maxLat, maxLon).
func RingBounds(ring []Point) (float64, float64, float64, float64) {
	if len(ring) == 0 {
		return 0, 0, 0, 0
	}

	minLat, maxLat := ring[0].Lat, ring[0].Lat
	minLon, maxLon := ring[0].Lon, ring[0].Lon

	for _, p := range ring[1:] {
		if p.Lat < minLat {
			minLat = p.Lat
		}
		if p.Lat > maxLat {
			maxLat = p.Lat
		}
		if p.Lon < minLon {
			minLon = p.Lon
		}
		if p.Lon > maxLon {
			maxLon = p.Lon
		}
	}

	return minLat, minLon, maxLat, maxLon
}
