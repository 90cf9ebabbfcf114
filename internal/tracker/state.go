package tracker

import (
	"time"

	"github.com/askwhyharsh/liveradar/internal/location"
	"github.com/askwhyharsh/liveradar/internal/visibility"
)

// Mode is the acquisition cadence.
type Mode string

const (
	ModeHigh     Mode = "high"
	ModeBalanced Mode = "balanced"
	ModeLow      Mode = "low"
)

// State is a snapshot of the tracker. Snapshots handed out are never mutated.
type State struct {
	Tracking   bool                   `json:"tracking"`
	Location   *location.LiveLocation `json:"location"`
	LastUpdate time.Time              `json:"last_update"`
	Error      *PositionError         `json:"error"`
	Mode       Mode                   `json:"mode"`
	Tier       visibility.AccessTier  `json:"tier"`
	Flags      visibility.Flags       `json:"flags"`
	Accepted   uint64                 `json:"accepted"`
	Suppressed uint64                 `json:"suppressed"`
}

func (s State) clone() State {
	if s.Location != nil {
		loc := *s.Location
		s.Location = &loc
	}
	return s
}
