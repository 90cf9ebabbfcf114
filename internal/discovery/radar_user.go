package discovery

import (
	"github.com/askwhyharsh/liveradar/internal/visibility"
)

// RadarUser is a discovered candidate as the radar draws it. It is rebuilt on
// every query and never stored.
type RadarUser struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Handle      string `json:"handle"`
	AvatarURL   string `json:"avatar_url"`
	Verified    bool   `json:"verified"`
	Privileged  bool   `json:"privileged"`

	Distance      float64         `json:"distance"`
	Bearing       float64         `json:"bearing"`
	DistanceLabel string          `json:"distance_label"`
	Blur          float64         `json:"blur"`
	Opacity       float64         `json:"opacity"`
	Tier          visibility.Tier `json:"tier"`
	IsActive      bool            `json:"is_active"`
	X             float64         `json:"x"`
	Y             float64         `json:"y"`
}
