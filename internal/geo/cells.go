package geo

import (
	"math"
	"strings"

	"github.com/mmcloughlin/geohash"
)

// CellPrecision is the geohash length stored with every published position
// (~153m x 153m cells).
const CellPrecision = 7

// Cell encodes a position as a geohash of CellPrecision characters.
func Cell(lat, lon float64) string {
	return geohash.EncodeWithPrecision(lat, lon, CellPrecision)
}

// WatchPrefixes returns the geohash prefixes whose cells cover every point
// within radius meters of (lat, lon): the enclosing cell at the longest
// precision that is at least radius wide and tall, plus its eight neighbors.
// A nil result means no precision is coarse enough and the whole globe must
// be watched.
func WatchPrefixes(lat, lon, radius float64) []string {
	for chars := uint(CellPrecision); chars >= 1; chars-- {
		hash := geohash.EncodeWithPrecision(lat, lon, chars)
		width, height := cellDimensions(hash)
		if width < radius || height < radius {
			continue
		}

		prefixes := make([]string, 0, 9)
		prefixes = append(prefixes, hash)
		seen := map[string]bool{hash: true}
		for _, n := range geohash.Neighbors(hash) {
			if !seen[n] {
				seen[n] = true
				prefixes = append(prefixes, n)
			}
		}
		return prefixes
	}
	return nil
}

// MatchesAny reports whether cell falls under one of the prefixes. An empty
// prefix list matches everything.
func MatchesAny(cell string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if strings.HasPrefix(cell, p) {
			return true
		}
	}
	return false
}

// cellDimensions measures a geohash cell at its narrowest latitude.
func cellDimensions(hash string) (width, height float64) {
	box := geohash.BoundingBox(hash)
	height = (box.MaxLat - box.MinLat) * metersPerDegreeLat
	narrowLat := math.Max(math.Abs(box.MinLat), math.Abs(box.MaxLat))
	width = (box.MaxLng - box.MinLng) * metersPerDegreeLat * math.Cos(ToRadians(narrowLat))
	return width, height
}
