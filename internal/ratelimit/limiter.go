package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/askwhyharsh/liveradar/internal/config"
	"github.com/askwhyharsh/liveradar/internal/storage"
)

// RateLimiter defines the contract for enforcing rate limits.
type RateLimiter interface {
	// AllowFix checks if a session may submit another position fix.
	AllowFix(ctx context.Context, sessionID string) (bool, error)

	// AllowNearbyQuery checks if a session may run a one-shot nearby query.
	AllowNearbyQuery(ctx context.Context, sessionID string) (bool, error)

	// AllowSessionCreation checks if an IP can create a new session.
	AllowSessionCreation(ctx context.Context, ip string) (bool, error)

	// AllowIPRequest checks if an IP can make a request.
	AllowIPRequest(ctx context.Context, ip string) (bool, error)

	// ResetLimits clears all rate limit counters for a session.
	ResetLimits(ctx context.Context, sessionID string) error
}

type Limiter struct {
	redis  storage.RedisClient
	config config.RateLimitConfig
	now    func() time.Time
}

func NewLimiter(redisClient storage.RedisClient, config config.RateLimitConfig) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: config,
		now:    time.Now,
	}
}

// AllowFix checks if a session can submit a position fix
func (l *Limiter) AllowFix(ctx context.Context, sessionID string) (bool, error) {
	return l.checkSlidingWindow(ctx, l.fixKey(sessionID), l.config.FixesPerMin, time.Minute)
}

// AllowNearbyQuery checks if a session can run a nearby query
func (l *Limiter) AllowNearbyQuery(ctx context.Context, sessionID string) (bool, error) {
	return l.checkSlidingWindow(ctx, l.nearbyKey(sessionID), l.config.NearbyPerMin, time.Minute)
}

// AllowSessionCreation checks if an IP can create a new session
func (l *Limiter) AllowSessionCreation(ctx context.Context, ip string) (bool, error) {
	key := fmt.Sprintf("ratelimit:ip:%s:sessions", ip)

	count, err := l.redis.Incr(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to check session creation rate limit: %w", err)
	}

	// Set expiration on first increment (1 hour)
	if count == 1 {
		if err := l.redis.Expire(ctx, key, time.Hour); err != nil {
			return false, fmt.Errorf("failed to set session limit expiry: %w", err)
		}
	}

	return count <= int64(l.config.SessionsPerIPPerHour), nil
}

// AllowIPRequest checks if an IP can make a request
func (l *Limiter) AllowIPRequest(ctx context.Context, ip string) (bool, error) {
	key := fmt.Sprintf("ratelimit:ip:%s:requests", ip)
	return l.checkSlidingWindow(ctx, key, l.config.RequestsPerMinute, time.Minute)
}

// checkSlidingWindow implements a sliding window rate limiter using sorted sets
func (l *Limiter) checkSlidingWindow(ctx context.Context, key string, maxCount int, window time.Duration) (bool, error) {
	now := l.now()
	windowStart := now.Add(-window).UnixNano()

	// Remove old entries outside the window
	if err := l.redis.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(windowStart, 10)); err != nil {
		return false, fmt.Errorf("failed to clean old entries: %w", err)
	}

	// Count entries in current window
	count, err := l.redis.ZCard(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to count entries: %w", err)
	}

	if count >= int64(maxCount) {
		return false, nil
	}

	// members must be unique or bursts within one tick collapse
	if err := l.redis.ZAdd(ctx, key, &redis.Z{
		Score:  float64(now.UnixNano()),
		Member: fmt.Sprintf("%d-%d", now.UnixNano(), count),
	}); err != nil {
		return false, fmt.Errorf("failed to add entry: %w", err)
	}

	if err := l.redis.Expire(ctx, key, window); err != nil {
		return false, fmt.Errorf("failed to set window expiry: %w", err)
	}

	return true, nil
}

// ResetLimits resets all rate limits for a session (use with caution)
func (l *Limiter) ResetLimits(ctx context.Context, sessionID string) error {
	return l.redis.Del(ctx, l.fixKey(sessionID), l.nearbyKey(sessionID))
}

func (l *Limiter) fixKey(sessionID string) string {
	return fmt.Sprintf("ratelimit:fix:%s", sessionID)
}

func (l *Limiter) nearbyKey(sessionID string) string {
	return fmt.Sprintf("ratelimit:nearby:%s", sessionID)
}
