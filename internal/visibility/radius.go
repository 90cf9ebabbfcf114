package visibility

import (
	"errors"
	"fmt"
)

// AccessTier is the requester's subscription level. It alone decides how far
// the radar reaches.
type AccessTier string

const (
	TierStandard   AccessTier = "standard"
	TierPremium    AccessTier = "premium"
	TierPrivileged AccessTier = "privileged"
)

// ParseAccessTier maps stored tier names to an AccessTier, defaulting to standard.
func ParseAccessTier(s string) AccessTier {
	switch AccessTier(s) {
	case TierPremium:
		return TierPremium
	case TierPrivileged:
		return TierPrivileged
	default:
		return TierStandard
	}
}

// Flags are the privileged-mode switches carried in tracker state.
type Flags struct {
	Invisible   bool `json:"invisible"`
	GlobalReach bool `json:"global_reach"`
}

// RadiusConfig holds the per-tier search radii (meters) and the ratios of the
// effective radius at which each visibility tier ends.
type RadiusConfig struct {
	Standard       float64
	Premium        float64
	Global         float64
	TierRatios     [5]float64 // immediate, near, medium, far, edge
	ImmediateFloor float64    // blur is zero below this distance
}

// DefaultRadiusConfig returns the radii used when nothing is configured.
func DefaultRadiusConfig() RadiusConfig {
	return RadiusConfig{
		Standard:       5000,
		Premium:        25000,
		Global:         20_037_508, // half the equatorial circumference
		TierRatios:     [5]float64{0.1, 0.25, 0.5, 0.75, 1.0},
		ImmediateFloor: 200,
	}
}

// Validate checks the radii are positive and the tier ratios strictly increase
// up to exactly 1, so that hidden begins at the radius edge.
func (c RadiusConfig) Validate() error {
	if c.Standard <= 0 || c.Premium <= 0 || c.Global <= 0 {
		return errors.New("radii must be positive")
	}
	if c.ImmediateFloor < 0 {
		return errors.New("immediate floor must not be negative")
	}

	prev := 0.0
	for i, r := range c.TierRatios {
		if r <= prev {
			return fmt.Errorf("tier ratio %d (%v) must be greater than %v", i, r, prev)
		}
		prev = r
	}
	if c.TierRatios[len(c.TierRatios)-1] != 1 {
		return errors.New("edge tier ratio must be 1")
	}
	return nil
}

// SearchRadius is the effective radius for a requester. Global reach wins over
// any configured tier.
func (c RadiusConfig) SearchRadius(tier AccessTier, flags Flags) float64 {
	if flags.GlobalReach {
		return c.Global
	}

	switch tier {
	case TierPrivileged:
		return c.Global
	case TierPremium:
		return c.Premium
	default:
		return c.Standard
	}
}

// Thresholds scales the tier ratios to an effective radius.
func (c RadiusConfig) Thresholds(radius float64) Thresholds {
	var t Thresholds
	for i, r := range c.TierRatios {
		t[i] = r * radius
	}
	return t
}
