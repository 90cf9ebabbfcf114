package geo

import (
	"math"
)

const earthRadiusMeters = 6371000.0 // Earth's mean radius in meters

// Distance calculates the great-circle distance between two points on Earth in meters
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := ToRadians(lat1)
	lat2Rad := ToRadians(lat2)
	deltaLat := ToRadians(lat2 - lat1)
	deltaLon := ToRadians(lon2 - lon1)

	// Haversine formula
	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

// Bearing returns the initial compass bearing from point 1 to point 2 in
// degrees [0, 360), 0 = north, clockwise.
func Bearing(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := ToRadians(lat1)
	lat2Rad := ToRadians(lat2)
	deltaLon := ToRadians(lon2 - lon1)

	y := math.Sin(deltaLon) * math.Cos(lat2Rad)
	x := math.Cos(lat1Rad)*math.Sin(lat2Rad) -
		math.Sin(lat1Rad)*math.Cos(lat2Rad)*math.Cos(deltaLon)

	return normalizeDegrees(ToDegrees(math.Atan2(y, x)))
}

// ToRadians converts an angle in degrees to radians.
func ToRadians(degrees float64) float64 {
	return degrees * math.Pi / 180.0
}

// ToDegrees converts an angle in radians to degrees.
func ToDegrees(radians float64) float64 {
	return radians * 180.0 / math.Pi
}

func normalizeDegrees(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	// math.Mod(-0.0000001, 360) + 360 rounds to exactly 360
	if deg >= 360 {
		deg = 0
	}
	return deg
}
