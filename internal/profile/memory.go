package profile

import (
	"context"
	"sync"
)

type MemoryDirectory struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

func NewMemoryDirectory(profiles ...Profile) *MemoryDirectory {
	d := &MemoryDirectory{profiles: make(map[string]Profile, len(profiles))}
	for _, p := range profiles {
		d.profiles[p.UserID] = p
	}
	return d
}

func (d *MemoryDirectory) Profiles(ctx context.Context, ids []string) (map[string]Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[string]Profile, len(ids))
	for _, id := range ids {
		if p, ok := d.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (d *MemoryDirectory) Put(ctx context.Context, p Profile) error {
	d.mu.Lock()
	d.profiles[p.UserID] = p
	d.mu.Unlock()
	return nil
}
