package geo

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistance_SamePointIsZero(t *testing.T) {
	points := [][2]float64{{52.52, 13.405}, {0, 0}, {-33.8688, 151.2093}, {89.9, -179.9}}
	for _, p := range points {
		assert.Equal(t, 0.0, Distance(p[0], p[1], p[0], p[1]))
	}
}

func TestDistance_Symmetric(t *testing.T) {
	pairs := [][4]float64{
		{52.5200, 13.4050, 52.5210, 13.4060},
		{40.7128, -74.0060, 34.0522, -118.2437},
		{-1, 179.9, 1, -179.9},
	}
	for _, p := range pairs {
		assert.InDelta(t, Distance(p[0], p[1], p[2], p[3]), Distance(p[2], p[3], p[0], p[1]), 1e-6)
	}
}

func TestDistance_BerlinNeighbors(t *testing.T) {
	d := Distance(52.5200, 13.4050, 52.5210, 13.4060)
	assert.InDelta(t, 130, d, 2)
}

func TestDistance_KnownCities(t *testing.T) {
	// New York to Los Angeles, ~3936 km on the mean sphere
	d := Distance(40.7128, -74.0060, 34.0522, -118.2437)
	assert.InDelta(t, 3_936_000, d, 10_000)
}

func TestDistance_NaNPropagates(t *testing.T) {
	assert.True(t, math.IsNaN(Distance(math.NaN(), 0, 0, 0)))
	assert.True(t, math.IsNaN(Bearing(0, math.NaN(), 0, 0)))
}

func TestBearing_CardinalDirections(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon float64
		want     float64
	}{
		{"north", 1, 0, 0},
		{"east", 0, 1, 90},
		{"south", -1, 0, 180},
		{"west", 0, -1, 270},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Bearing(0, 0, tt.lat, tt.lon), 1e-9)
		})
	}
}

func TestBearing_Range(t *testing.T) {
	for lon := -10.0; lon <= 10; lon += 0.5 {
		b := Bearing(10, 0, 9, lon)
		assert.GreaterOrEqual(t, b, 0.0)
		assert.Less(t, b, 360.0)
	}
}

func TestAngleConversion(t *testing.T) {
	assert.InDelta(t, math.Pi, ToRadians(180), 1e-12)
	assert.InDelta(t, -math.Pi/2, ToRadians(-90), 1e-12)
	assert.InDelta(t, 90, ToDegrees(math.Pi/2), 1e-12)
	assert.InDelta(t, 52.52, ToDegrees(ToRadians(52.52)), 1e-12)
}

func TestBoundingBox_ContainsCircle(t *testing.T) {
	lat, lon, radius := 52.52, 13.405, 5000.0
	box := BoundingBox(lat, lon, radius)

	for bearing := 0.0; bearing < 360; bearing += 15 {
		// walk slightly inside the radius along the bearing
		dLat := (radius * 0.99 / metersPerDegreeLat) * math.Cos(ToRadians(bearing))
		dLon := (radius * 0.99 / metersPerDegreeLat) * math.Sin(ToRadians(bearing)) / math.Cos(ToRadians(lat))
		require.True(t, box.Contains(lat+dLat, lon+dLon), "bearing %v", bearing)
	}
	assert.False(t, box.Contains(lat+0.1, lon))
	assert.False(t, box.IsWorld())
}

func TestBoundingBox_LongitudeCompression(t *testing.T) {
	equator := BoundingBox(0, 0, 10000)
	north := BoundingBox(60, 0, 10000)

	assert.InDelta(t, equator.MaxLat-equator.MinLat, north.MaxLat-north.MinLat, 1e-9)
	// cos(60deg) = 0.5 doubles the longitude span
	assert.InDelta(t, 2*(equator.MaxLon-equator.MinLon), north.MaxLon-north.MinLon, 1e-6)
}

func TestBoundingBox_Antimeridian(t *testing.T) {
	box := BoundingBox(0, 179.99, 5000)
	assert.Greater(t, box.MinLon, box.MaxLon)
	assert.True(t, box.Contains(0, -179.99))
	assert.True(t, box.Contains(0, 179.98))
	assert.False(t, box.Contains(0, 0))
}

func TestBoundingBox_GlobalRadiusIsWorld(t *testing.T) {
	box := BoundingBox(52.52, 13.405, 20_037_508)
	assert.True(t, box.IsWorld())
	assert.True(t, box.Contains(-89, -179))
}

func TestBoundingBox_Dimensions(t *testing.T) {
	width, height := BoundingBox(0, 0, 1000).Dimensions()
	assert.InDelta(t, 2000, height, 1)
	assert.InDelta(t, 2000, width, 1)
}

func TestFormatDistance(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{10, "< 50 m"},
		{130, "150 m"},
		{980, "1.0 km"},
		{1220, "1.2 km"},
		{15400, "15 km"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDistance(tt.in))
	}
}

func TestWatchPrefixes_CoverRadius(t *testing.T) {
	lat, lon := 52.52, 13.405
	prefixes := WatchPrefixes(lat, lon, 500)

	require.Len(t, prefixes, 9)
	for _, p := range prefixes {
		assert.Len(t, p, 6)
	}
	assert.True(t, MatchesAny(Cell(lat, lon), prefixes))
	// ~400m east is still covered
	assert.True(t, MatchesAny(Cell(lat, lon+0.006), prefixes))
	// Munich is not
	assert.False(t, MatchesAny(Cell(48.137, 11.575), prefixes))
}

func TestWatchPrefixes_GlobalRadius(t *testing.T) {
	assert.Nil(t, WatchPrefixes(52.52, 13.405, 20_037_508))
	assert.True(t, MatchesAny("u33dc0", nil))
}

func TestCell_Precision(t *testing.T) {
	cell := Cell(52.52, 13.405)
	assert.Len(t, cell, CellPrecision)
	assert.True(t, strings.HasPrefix(cell, "u33"))
}
