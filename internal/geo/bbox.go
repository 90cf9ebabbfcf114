package geo

import "math"

// metersPerDegreeLat is the length of one degree of latitude on the mean sphere.
const metersPerDegreeLat = earthRadiusMeters * math.Pi / 180.0

// Box is a latitude/longitude bounding box. When the box crosses the
// antimeridian MinLon is greater than MaxLon.
type Box struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

// WorldBox covers the whole globe.
var WorldBox = Box{MinLat: -90, MaxLat: 90, MinLon: -180, MaxLon: 180}

// BoundingBox approximates a circle of radius meters around (lat, lon).
// Longitude span is widened by 1/cos(lat); boxes touching a pole or wider
// than the globe fall back to the full longitude range.
func BoundingBox(lat, lon, radius float64) Box {
	if radius <= 0 {
		return Box{MinLat: lat, MaxLat: lat, MinLon: lon, MaxLon: lon}
	}

	dLat := radius / metersPerDegreeLat
	if dLat >= 180 {
		return WorldBox
	}

	box := Box{
		MinLat: math.Max(lat-dLat, -90),
		MaxLat: math.Min(lat+dLat, 90),
	}

	cosLat := math.Cos(ToRadians(lat))
	if box.MinLat <= -90 || box.MaxLat >= 90 || cosLat < 1e-9 {
		box.MinLon, box.MaxLon = -180, 180
		return box
	}

	dLon := dLat / cosLat
	if dLon >= 180 {
		box.MinLon, box.MaxLon = -180, 180
		return box
	}

	box.MinLon = wrapLongitude(lon - dLon)
	box.MaxLon = wrapLongitude(lon + dLon)
	return box
}

// Contains reports whether the point lies within the box.
func (b Box) Contains(lat, lon float64) bool {
	if lat < b.MinLat || lat > b.MaxLat {
		return false
	}
	if b.MinLon <= b.MaxLon {
		return lon >= b.MinLon && lon <= b.MaxLon
	}
	// antimeridian crossing
	return lon >= b.MinLon || lon <= b.MaxLon
}

// IsWorld reports whether the box spans every longitude and latitude.
func (b Box) IsWorld() bool {
	return b.MinLat <= -90 && b.MaxLat >= 90 && b.spansAllLongitudes()
}

func (b Box) spansAllLongitudes() bool {
	return b.MinLon <= -180 && b.MaxLon >= 180
}

// Center returns the midpoint of the box.
func (b Box) Center() (lat, lon float64) {
	lat = (b.MinLat + b.MaxLat) / 2
	if b.MinLon <= b.MaxLon {
		return lat, (b.MinLon + b.MaxLon) / 2
	}
	return lat, wrapLongitude(b.MinLon + b.lonSpan()/2)
}

// Dimensions returns the box width (measured along its center latitude) and
// height in meters.
func (b Box) Dimensions() (width, height float64) {
	lat, _ := b.Center()
	height = (b.MaxLat - b.MinLat) * metersPerDegreeLat
	width = b.lonSpan() * metersPerDegreeLat * math.Cos(ToRadians(lat))
	return width, height
}

func (b Box) lonSpan() float64 {
	if b.MinLon <= b.MaxLon {
		return b.MaxLon - b.MinLon
	}
	return 360 - b.MinLon + b.MaxLon
}

func wrapLongitude(lon float64) float64 {
	for lon > 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return lon
}
