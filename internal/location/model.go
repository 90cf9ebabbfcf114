package location

import (
	"time"

	"github.com/askwhyharsh/liveradar/internal/geo"
)

// LiveLocation is one position reading. It is never mutated; the next
// reading supersedes it.
type LiveLocation struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy"`
	Altitude  *float64  `json:"altitude,omitempty"`
	Heading   *float64  `json:"heading,omitempty"`
	Speed     *float64  `json:"speed,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// DistanceTo returns the great-circle distance to other in meters.
func (l LiveLocation) DistanceTo(other LiveLocation) float64 {
	return geo.Distance(l.Latitude, l.Longitude, other.Latitude, other.Longitude)
}

// Record is the per-user document kept in the location store.
type Record struct {
	UserID    string    `json:"user_id"`
	Latitude  float64   `json:"lat"`
	Longitude float64   `json:"lon"`
	Accuracy  float64   `json:"accuracy"`
	Altitude  *float64  `json:"altitude,omitempty"`
	Heading   *float64  `json:"heading,omitempty"`
	Speed     *float64  `json:"speed,omitempty"`
	Geohash   string    `json:"geohash"`
	Visible   bool      `json:"visible"`
	Active    bool      `json:"active"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewRecord builds the visible document for a published position.
func NewRecord(userID string, loc LiveLocation, now time.Time, ttl time.Duration) Record {
	return Record{
		UserID:    userID,
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		Accuracy:  loc.Accuracy,
		Altitude:  loc.Altitude,
		Heading:   loc.Heading,
		Speed:     loc.Speed,
		Geohash:   geo.Cell(loc.Latitude, loc.Longitude),
		Visible:   true,
		Active:    true,
		UpdatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// HiddenRecord is the retraction marker written when a user turns invisible.
// It carries no coordinates.
func HiddenRecord(userID string, now time.Time, ttl time.Duration) Record {
	return Record{
		UserID:    userID,
		Visible:   false,
		Active:    false,
		UpdatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// Expired reports whether the record's expiry marker has passed.
func (r Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// Discoverable reports whether others may see this record at now.
func (r Record) Discoverable(now time.Time) bool {
	return r.Visible && r.Active && !r.Expired(now)
}

// Location returns the reading stored in the record.
func (r Record) Location() LiveLocation {
	return LiveLocation{
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
		Accuracy:  r.Accuracy,
		Altitude:  r.Altitude,
		Heading:   r.Heading,
		Speed:     r.Speed,
		Timestamp: r.UpdatedAt,
	}
}

// Change is published whenever a user's record is written or removed.
type Change struct {
	UserID  string    `json:"user_id"`
	Cell    string    `json:"cell"`
	Visible bool      `json:"visible"`
	At      time.Time `json:"at"`
}
