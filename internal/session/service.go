package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/askwhyharsh/liveradar/internal/profile"
	"github.com/askwhyharsh/liveradar/internal/storage"
	"github.com/askwhyharsh/liveradar/internal/visibility"
	apperrors "github.com/askwhyharsh/liveradar/pkg/errors"
)

type SessionService interface {
	Create(ctx context.Context, req CreateRequest) (*Session, error)
	Get(ctx context.Context, sessionID string) (*Session, error)
	UpdateLastSeen(ctx context.Context, sessionID string) error
	Delete(ctx context.Context, sessionID string) error
	Exists(ctx context.Context, sessionID string) (bool, error)
}

type Service struct {
	redis    storage.RedisClient
	profiles profile.Directory
	ttl      time.Duration
}

// Session binds a connection to a user. The access tier is stamped from the
// user's profile at creation and is never taken from the client.
type Session struct {
	ID          string                `json:"id"`
	UserID      string                `json:"user_id"`
	DisplayName string                `json:"display_name"`
	Tier        visibility.AccessTier `json:"tier"`
	CreatedAt   time.Time             `json:"created_at"`
	LastSeen    time.Time             `json:"last_seen"`
	IPAddress   string                `json:"ip_address"`
}

type CreateRequest struct {
	UserID      string
	DisplayName string
	Handle      string
	IPAddress   string
}

func NewService(redisClient storage.RedisClient, profiles profile.Directory, ttl time.Duration) *Service {
	return &Service{
		redis:    redisClient,
		profiles: profiles,
		ttl:      ttl,
	}
}

// Create opens a session for req.UserID. Unknown users get a standard-tier
// profile.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Session, error) {
	p, err := profile.Get(ctx, s.profiles, req.UserID)
	switch {
	case errors.Is(err, apperrors.ErrProfileNotFound):
		p = profile.Profile{
			UserID:      req.UserID,
			DisplayName: req.DisplayName,
			Handle:      req.Handle,
			Tier:        visibility.TierStandard,
		}
		if err := s.profiles.Put(ctx, p); err != nil {
			return nil, fmt.Errorf("failed to create profile: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to look up profile: %w", err)
	}

	now := time.Now()
	session := &Session{
		ID:          uuid.New().String(),
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
		Tier:        p.Tier,
		CreatedAt:   now,
		LastSeen:    now,
		IPAddress:   req.IPAddress,
	}

	if err := s.save(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

func (s *Service) Get(ctx context.Context, sessionID string) (*Session, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, apperrors.ErrInvalidSessionID
	}

	data, err := s.redis.Get(ctx, s.sessionKey(sessionID))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &session, nil
}

func (s *Service) UpdateLastSeen(ctx context.Context, sessionID string) error {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	session.LastSeen = time.Now()
	return s.save(ctx, session)
}

func (s *Service) Delete(ctx context.Context, sessionID string) error {
	return s.redis.Del(ctx, s.sessionKey(sessionID))
}

func (s *Service) Exists(ctx context.Context, sessionID string) (bool, error) {
	count, err := s.redis.Exists(ctx, s.sessionKey(sessionID))
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Service) save(ctx context.Context, session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	return s.redis.Set(ctx, s.sessionKey(session.ID), data, s.ttl)
}

func (s *Service) sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}
