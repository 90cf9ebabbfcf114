package profile

import (
	"context"

	"github.com/askwhyharsh/liveradar/internal/visibility"
	apperrors "github.com/askwhyharsh/liveradar/pkg/errors"
)

// Profile is the display metadata joined onto discovered users.
type Profile struct {
	UserID      string                `json:"user_id"`
	DisplayName string                `json:"display_name"`
	Handle      string                `json:"handle"`
	AvatarURL   string                `json:"avatar_url"`
	Tier        visibility.AccessTier `json:"tier"`
	Verified    bool                  `json:"verified"`
}

// Privileged reports whether the profile carries the privileged role.
func (p Profile) Privileged() bool {
	return p.Tier == visibility.TierPrivileged
}

// Lookup resolves profiles in batches. Unknown ids are absent from the
// returned map rather than an error.
type Lookup interface {
	Profiles(ctx context.Context, ids []string) (map[string]Profile, error)
}

// Directory is a Lookup that can also store profiles.
type Directory interface {
	Lookup
	Put(ctx context.Context, p Profile) error
}

// Get resolves a single profile.
func Get(ctx context.Context, l Lookup, userID string) (Profile, error) {
	profiles, err := l.Profiles(ctx, []string{userID})
	if err != nil {
		return Profile{}, err
	}
	p, ok := profiles[userID]
	if !ok {
		return Profile{}, apperrors.ErrProfileNotFound
	}
	return p, nil
}
