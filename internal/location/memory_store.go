package location

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/askwhyharsh/liveradar/internal/geo"
	apperrors "github.com/askwhyharsh/liveradar/pkg/errors"
)

// MemoryStore is a single-process Store and ChangeFeed. It backs the
// "memory" store backend and the tests.
type MemoryStore struct {
	mu       sync.RWMutex
	records  map[string]Record
	watchers *watcherSet
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  make(map[string]Record),
		watchers: newWatcherSet(),
		now:      time.Now,
	}
}

// WithClock replaces the store's time source.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Upsert(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	prevCell := ""
	if prev, ok := s.records[rec.UserID]; ok {
		prevCell = prev.Geohash
	}
	cell := rec.Geohash
	if cell == "" {
		cell = prevCell
	}
	if !rec.Visible {
		// keep the last known cell so a later hide still reaches the same watchers
		rec.Geohash = cell
	}
	s.records[rec.UserID] = rec
	s.mu.Unlock()

	change := Change{UserID: rec.UserID, Cell: cell, Visible: rec.Visible, At: rec.UpdatedAt}
	s.watchers.dispatch(change)
	if prevCell != "" && prevCell != cell {
		change.Cell = prevCell
		s.watchers.dispatch(change)
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, userID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[userID]
	if !ok || rec.Expired(s.now()) {
		return nil, apperrors.ErrLocationNotFound
	}
	return &rec, nil
}

func (s *MemoryStore) Remove(ctx context.Context, userID string) error {
	s.mu.Lock()
	prev, ok := s.records[userID]
	delete(s.records, userID)
	s.mu.Unlock()

	if ok {
		s.watchers.dispatch(Change{UserID: userID, Cell: prev.Geohash, Visible: false, At: s.now()})
	}
	return nil
}

func (s *MemoryStore) QueryBox(ctx context.Context, box geo.Box, limit int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := s.now()
	s.mu.RLock()
	results := make([]Record, 0)
	for _, rec := range s.records {
		if rec.Discoverable(now) && box.Contains(rec.Latitude, rec.Longitude) {
			results = append(results, rec)
		}
	}
	s.mu.RUnlock()

	lat, lon := box.Center()
	sort.Slice(results, func(i, j int) bool {
		return geo.Distance(lat, lon, results[i].Latitude, results[i].Longitude) <
			geo.Distance(lat, lon, results[j].Latitude, results[j].Longitude)
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *MemoryStore) Watch(prefixes []string, fn func(Change)) func() {
	return s.watchers.add(prefixes, fn)
}

// Watchers reports how many watches are registered.
func (s *MemoryStore) Watchers() int {
	return s.watchers.len()
}

// Sweep drops expired records.
func (s *MemoryStore) Sweep(ctx context.Context) (int, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, rec := range s.records {
		if rec.Expired(now) {
			delete(s.records, id)
			removed++
		}
	}
	return removed, nil
}
