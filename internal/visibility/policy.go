package visibility

import (
	"math"

	"github.com/askwhyharsh/liveradar/internal/geo"
)

const (
	blurExponent      = 0.7
	fadeStartFraction = 0.6
	opacityFloor      = 0.3
	radarDisplayRatio = 0.45 // keeps markers off the outer ring
)

// Blur returns 0 (sharp) .. 1 (fully obscured). Below the immediate floor the
// candidate is sharp; beyond it blur follows (d/R)^0.7.
func Blur(distance, maxRadius, immediateFloor float64) float64 {
	if distance < immediateFloor || maxRadius <= 0 {
		return 0
	}
	return clamp(math.Pow(distance/maxRadius, blurExponent), 0, 1)
}

// Opacity is 1 until 60% of maxRadius, then fades linearly to 0.3 at the
// edge. It never reaches zero: exclusion is the hidden tier's job.
func Opacity(distance, maxRadius float64) float64 {
	if maxRadius <= 0 {
		return 1
	}

	fadeStart := fadeStartFraction * maxRadius
	if distance < fadeStart {
		return 1
	}

	progress := (distance - fadeStart) / (maxRadius - fadeStart)
	return clamp(1-progress*(1-opacityFloor), opacityFloor, 1)
}

// RadarPosition places a candidate on a unit display square centered on the
// viewer at (0.5, 0.5). Bearing 0 points up (decreasing y).
func RadarPosition(distance, bearing, maxRadius float64) (x, y float64) {
	normalized := 0.0
	if maxRadius > 0 {
		normalized = clamp(distance/maxRadius, 0, 1) * radarDisplayRatio
	}

	angle := geo.ToRadians(bearing)
	x = 0.5 + normalized*math.Sin(angle)
	y = 0.5 - normalized*math.Cos(angle)
	return x, y
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Presentation is everything the radar needs to draw one candidate.
type Presentation struct {
	Tier    Tier
	Blur    float64
	Opacity float64
	X       float64
	Y       float64
}

// Assess derives the presentation of a candidate at distance/bearing for a
// viewer whose effective radius is radius.
func (c RadiusConfig) Assess(distance, bearing, radius float64) Presentation {
	x, y := RadarPosition(distance, bearing, radius)
	return Presentation{
		Tier:    TierFor(distance, c.Thresholds(radius)),
		Blur:    Blur(distance, radius, c.ImmediateFloor),
		Opacity: Opacity(distance, radius),
		X:       x,
		Y:       y,
	}
}
