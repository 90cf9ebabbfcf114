package profile

import (
	"context"
	"fmt"

	"github.com/askwhyharsh/liveradar/internal/storage"
	"github.com/askwhyharsh/liveradar/internal/visibility"
)

// profileRows is the slice of storage.PostgresClient the directory needs.
type profileRows interface {
	ProfilesByID(ctx context.Context, ids []string) ([]storage.ProfileRow, error)
	UpsertProfile(ctx context.Context, row storage.ProfileRow) error
}

// PostgresDirectory reads and writes the profiles table.
type PostgresDirectory struct {
	db profileRows
}

func NewPostgresDirectory(db profileRows) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) Profiles(ctx context.Context, ids []string) (map[string]Profile, error) {
	rows, err := d.db.ProfilesByID(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}

	out := make(map[string]Profile, len(rows))
	for _, row := range rows {
		out[row.UserID] = Profile{
			UserID:      row.UserID,
			DisplayName: row.DisplayName,
			Handle:      row.Handle,
			AvatarURL:   row.AvatarURL,
			Tier:        visibility.ParseAccessTier(row.AccessTier),
			Verified:    row.Verified,
		}
	}
	return out, nil
}

func (d *PostgresDirectory) Put(ctx context.Context, p Profile) error {
	tier := p.Tier
	if tier == "" {
		tier = visibility.TierStandard
	}

	if err := d.db.UpsertProfile(ctx, storage.ProfileRow{
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
		Handle:      p.Handle,
		AvatarURL:   p.AvatarURL,
		AccessTier:  string(tier),
		Verified:    p.Verified,
	}); err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}
