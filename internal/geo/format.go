package geo

import (
	"fmt"
	"math"
)

// roundTo50 rounds a distance to the nearest 50 meters so labels never leak
// exact separation.
func roundTo50(distance float64) int {
	return int(math.Round(distance/50.0) * 50)
}

// FormatDistance returns a privacy-preserving distance label
func FormatDistance(distance float64) string {
	rounded := roundTo50(distance)
	if rounded < 50 {
		return "< 50 m"
	}
	if rounded < 1000 {
		return fmt.Sprintf("%d m", rounded)
	}

	km := float64(rounded) / 1000.0
	if km < 10 {
		return fmt.Sprintf("%.1f km", km)
	}
	return fmt.Sprintf("%.0f km", km)
}
