package location

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/askwhyharsh/liveradar/internal/geo"
	"github.com/askwhyharsh/liveradar/internal/storage"
	apperrors "github.com/askwhyharsh/liveradar/pkg/errors"
)

const (
	geoIndexKey   = "location:geo"
	changeChannel = "location:changes:"
	// batchSize bounds the keys of one MGET and the members of one sweep page.
	batchSize = 500
)

// RedisStore keeps one JSON document per user (with TTL) plus a GEO index of
// visible users, and publishes a Change per write.
type RedisStore struct {
	redis storage.RedisClient
	now   func() time.Time
}

func NewRedisStore(redisClient storage.RedisClient) *RedisStore {
	return &RedisStore{
		redis: redisClient,
		now:   time.Now,
	}
}

func (s *RedisStore) Upsert(ctx context.Context, rec Record) error {
	prevCell := ""
	if prev, err := s.Get(ctx, rec.UserID); err == nil {
		prevCell = prev.Geohash
	}

	cell := rec.Geohash
	if !rec.Visible {
		// retraction goes to the watchers of the last published cell
		if prevCell != "" {
			cell = prevCell
		}
		rec.Geohash = cell
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal location: %w", err)
	}

	ttl := rec.ExpiresAt.Sub(rec.UpdatedAt)
	if ttl <= 0 {
		ttl = time.Minute
	}

	if err := s.redis.Set(ctx, s.locationKey(rec.UserID), data, ttl); err != nil {
		return fmt.Errorf("failed to store location: %w", err)
	}

	if rec.Visible {
		if err := s.redis.GeoAdd(ctx, geoIndexKey, &redis.GeoLocation{
			Name:      rec.UserID,
			Longitude: rec.Longitude,
			Latitude:  rec.Latitude,
		}); err != nil {
			return fmt.Errorf("failed to add to geo index: %w", err)
		}
	} else {
		if err := s.redis.ZRem(ctx, geoIndexKey, rec.UserID); err != nil {
			return fmt.Errorf("failed to remove from geo index: %w", err)
		}
	}

	change := Change{UserID: rec.UserID, Cell: cell, Visible: rec.Visible, At: rec.UpdatedAt}
	if err := s.publish(ctx, change); err != nil {
		return err
	}

	// a move across cells must also reach the watchers of the cell it left
	if prevCell != "" && prevCell != cell {
		change.Cell = prevCell
		return s.publish(ctx, change)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, userID string) (*Record, error) {
	data, err := s.redis.Get(ctx, s.locationKey(userID))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.ErrLocationNotFound
		}
		return nil, fmt.Errorf("failed to get location: %w", err)
	}

	var rec Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal location: %w", err)
	}

	return &rec, nil
}

func (s *RedisStore) Remove(ctx context.Context, userID string) error {
	// Get current location so the removal reaches the right watchers
	cell := ""
	if rec, err := s.Get(ctx, userID); err == nil {
		cell = rec.Geohash
	}

	if err := s.redis.ZRem(ctx, geoIndexKey, userID); err != nil {
		return fmt.Errorf("failed to remove from geo index: %w", err)
	}
	if err := s.redis.Del(ctx, s.locationKey(userID)); err != nil {
		return fmt.Errorf("failed to delete location: %w", err)
	}

	return s.publish(ctx, Change{UserID: userID, Cell: cell, Visible: false, At: s.now()})
}

// QueryBox uses GEOSEARCH BYBOX for the prefilter; a world box reads the
// whole index. Documents are fetched in MGET batches and rechecked against
// the box, visibility and expiry.
func (s *RedisStore) QueryBox(ctx context.Context, box geo.Box, limit int) ([]Record, error) {
	members, err := s.candidates(ctx, box, limit)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return []Record{}, nil
	}

	values, err := s.fetch(ctx, members)
	if err != nil {
		return nil, err
	}

	now := s.now()
	records := make([]Record, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// expired document, the sweeper drops its index entry
			continue
		}

		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			continue
		}
		if rec.Discoverable(now) && box.Contains(rec.Latitude, rec.Longitude) {
			records = append(records, rec)
		}
	}

	return records, nil
}

// fetch reads the documents of members in MGET batches. Missing documents
// come back as nil, in member order.
func (s *RedisStore) fetch(ctx context.Context, members []string) ([]interface{}, error) {
	values := make([]interface{}, 0, len(members))
	for start := 0; start < len(members); start += batchSize {
		end := start + batchSize
		if end > len(members) {
			end = len(members)
		}

		keys := make([]string, 0, end-start)
		for _, m := range members[start:end] {
			keys = append(keys, s.locationKey(m))
		}
		batch, err := s.redis.MGet(ctx, keys...)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch locations: %w", err)
		}
		values = append(values, batch...)
	}
	return values, nil
}

// candidates lists index members inside box, nearest to its center first
// except for a world box, which comes back in index order. limit <= 0
// returns all of them.
func (s *RedisStore) candidates(ctx context.Context, box geo.Box, limit int) ([]string, error) {
	if box.IsWorld() {
		stop := int64(-1)
		if limit > 0 {
			stop = int64(limit - 1)
		}
		members, err := s.redis.ZRange(ctx, geoIndexKey, 0, stop)
		if err != nil {
			return nil, fmt.Errorf("failed to read geo index: %w", err)
		}
		return members, nil
	}

	lat, lon := box.Center()
	width, height := box.Dimensions()
	members, err := s.redis.GeoSearch(ctx, geoIndexKey, &redis.GeoSearchQuery{
		Longitude: lon,
		Latitude:  lat,
		BoxWidth:  width,
		BoxHeight: height,
		BoxUnit:   "m",
		Sort:      "ASC",
		Count:     max(limit, 0),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search geo index: %w", err)
	}
	return members, nil
}

// Sweep removes GEO index members whose document has expired.
func (s *RedisStore) Sweep(ctx context.Context) (int, error) {
	removed := 0
	var start int64

	for {
		members, err := s.redis.ZRange(ctx, geoIndexKey, start, start+batchSize-1)
		if err != nil {
			return removed, fmt.Errorf("failed to read geo index: %w", err)
		}
		if len(members) == 0 {
			return removed, nil
		}

		values, err := s.fetch(ctx, members)
		if err != nil {
			return removed, err
		}

		stale := make([]interface{}, 0)
		for i, v := range values {
			if v == nil {
				stale = append(stale, members[i])
			}
		}
		if len(stale) > 0 {
			if err := s.redis.ZRem(ctx, geoIndexKey, stale...); err != nil {
				return removed, fmt.Errorf("failed to prune geo index: %w", err)
			}
			removed += len(stale)
		}

		if len(members) < batchSize {
			return removed, nil
		}
		start += int64(len(members) - len(stale))
	}
}

func (s *RedisStore) publish(ctx context.Context, change Change) error {
	data, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("failed to marshal change: %w", err)
	}
	if err := s.redis.Publish(ctx, changeChannel+change.Cell, data); err != nil {
		return fmt.Errorf("failed to publish change: %w", err)
	}
	return nil
}

func (s *RedisStore) locationKey(userID string) string {
	return fmt.Sprintf("location:%s", userID)
}
