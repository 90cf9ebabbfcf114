package visibility

import "fmt"

// Tier is a discrete distance bucket. Ordered: a larger value is farther.
type Tier int

const (
	TierImmediate Tier = iota
	TierNear
	TierMedium
	TierFar
	TierEdge
	TierHidden
)

var tierNames = [...]string{"immediate", "near", "medium", "far", "edge", "hidden"}

func (t Tier) String() string {
	if t < TierImmediate || t > TierHidden {
		return "unknown"
	}
	return tierNames[t]
}

func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(text []byte) error {
	for i, name := range tierNames {
		if name == string(text) {
			*t = Tier(i)
			return nil
		}
	}
	return fmt.Errorf("unknown tier %q", text)
}

// Thresholds are the upper bounds in meters of immediate, near, medium, far
// and edge, ascending.
type Thresholds [5]float64

// TierFor returns the first tier whose threshold the distance falls under.
// At or beyond the last threshold the candidate is hidden.
func TierFor(distance float64, thresholds Thresholds) Tier {
	for i, limit := range thresholds {
		if distance < limit {
			return Tier(i)
		}
	}
	return TierHidden
}
