package session

import (
	"context"
	"fmt"

	"github.com/askwhyharsh/liveradar/pkg/logger"
)

type Manager struct {
	service SessionService
	logger  logger.Logger
}

func NewManager(service SessionService, log logger.Logger) *Manager {
	return &Manager{
		service: service,
		logger:  log,
	}
}

// Resolve validates a session and refreshes its last-seen time.
func (m *Manager) Resolve(ctx context.Context, sessionID string) (*Session, error) {
	session, err := m.service.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to validate session: %w", err)
	}

	// Update last seen
	if err := m.service.UpdateLastSeen(ctx, sessionID); err != nil {
		m.logger.Error("Failed to update last seen", "session_id", sessionID, "error", err)
	}

	return session, nil
}

// ValidateSession checks if a session exists and is valid
func (m *Manager) ValidateSession(ctx context.Context, sessionID string) error {
	_, err := m.Resolve(ctx, sessionID)
	return err
}
