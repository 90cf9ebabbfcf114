package profile

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/askwhyharsh/liveradar/internal/storage"
	"github.com/askwhyharsh/liveradar/internal/visibility"
	"github.com/askwhyharsh/liveradar/pkg/logger"
)

// CachedLookup keeps profiles as Redis hashes in front of a slower
// Directory. Cache failures degrade to reading through.
type CachedLookup struct {
	redis  storage.RedisClient
	next   Directory
	ttl    time.Duration
	logger logger.Logger
}

func NewCachedLookup(redisClient storage.RedisClient, next Directory, ttl time.Duration, log logger.Logger) *CachedLookup {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedLookup{
		redis:  redisClient,
		next:   next,
		ttl:    ttl,
		logger: log,
	}
}

func (c *CachedLookup) Profiles(ctx context.Context, ids []string) (map[string]Profile, error) {
	out := make(map[string]Profile, len(ids))
	misses := make([]string, 0)

	for _, id := range ids {
		fields, err := c.redis.HGetAll(ctx, c.key(id))
		if err != nil {
			c.logger.Warn("Profile cache read failed", "user_id", id, "error", err)
			misses = append(misses, id)
			continue
		}
		if len(fields) == 0 {
			misses = append(misses, id)
			continue
		}
		out[id] = fromHash(id, fields)
	}

	if len(misses) == 0 {
		return out, nil
	}

	fetched, err := c.next.Profiles(ctx, misses)
	if err != nil {
		return nil, err
	}
	for id, p := range fetched {
		out[id] = p
		c.store(ctx, p)
	}
	return out, nil
}

// Put writes through to the directory and drops the cached copy.
func (c *CachedLookup) Put(ctx context.Context, p Profile) error {
	if err := c.next.Put(ctx, p); err != nil {
		return err
	}
	if err := c.redis.Del(ctx, c.key(p.UserID)); err != nil {
		c.logger.Warn("Profile cache invalidation failed", "user_id", p.UserID, "error", err)
	}
	return nil
}

func (c *CachedLookup) store(ctx context.Context, p Profile) {
	key := c.key(p.UserID)
	if err := c.redis.HSet(ctx, key,
		"display_name", p.DisplayName,
		"handle", p.Handle,
		"avatar_url", p.AvatarURL,
		"tier", string(p.Tier),
		"verified", strconv.FormatBool(p.Verified),
	); err != nil {
		c.logger.Warn("Profile cache write failed", "user_id", p.UserID, "error", err)
		return
	}
	if err := c.redis.Expire(ctx, key, c.ttl); err != nil {
		c.logger.Warn("Profile cache expiry failed", "user_id", p.UserID, "error", err)
	}
}

func (c *CachedLookup) key(userID string) string {
	return fmt.Sprintf("profile:%s", userID)
}

func fromHash(userID string, fields map[string]string) Profile {
	verified, _ := strconv.ParseBool(fields["verified"])
	return Profile{
		UserID:      userID,
		DisplayName: fields["display_name"],
		Handle:      fields["handle"],
		AvatarURL:   fields["avatar_url"],
		Tier:        visibility.ParseAccessTier(fields["tier"]),
		Verified:    verified,
	}
}
