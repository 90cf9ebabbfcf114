package websocket

import (
	"context"
	"errors"
	"sync"

	"github.com/askwhyharsh/liveradar/internal/discovery"
	"github.com/askwhyharsh/liveradar/internal/location"
	"github.com/askwhyharsh/liveradar/internal/radar"
	"github.com/askwhyharsh/liveradar/internal/session"
	"github.com/askwhyharsh/liveradar/internal/tracker"
	apperrors "github.com/askwhyharsh/liveradar/pkg/errors"
	"github.com/askwhyharsh/liveradar/pkg/logger"
)

// radarConn is one client's tracker and radar engine. Messages are handled
// on the client's read goroutine.
type radarConn struct {
	handler *Handler
	session *session.Session
	client  *Client
	source  *ClientSource
	syncer  *location.Syncer
	engine  *radar.Engine
	logger  logger.Logger

	// radius of the last state seen, read by the nearby listener
	mu     sync.Mutex
	radius float64

	unsubState  func()
	unsubNearby func()
	closeOnce   sync.Once
}

func (rc *radarConn) attach() {
	rc.unsubState = rc.engine.SubscribeState(func(state tracker.State) {
		rc.mu.Lock()
		rc.radius = rc.handler.cfg.Radar.Radius.SearchRadius(state.Tier, state.Flags)
		rc.mu.Unlock()
		rc.client.Send(NewStateMessage(state))
	})
}

func (rc *radarConn) HandleMessage(client *Client, msg *IncomingMessage) {
	switch msg.Type {
	case MessageTypeStartTracking:
		if err := rc.engine.Start(); err != nil {
			client.SendError(err.Error(), errorCode(err))
		}

	case MessageTypeStopTracking:
		rc.engine.Stop()

	case MessageTypePosition:
		rc.handlePosition(client, msg)

	case MessageTypePositionError:
		var cause error
		if msg.Message != "" {
			cause = errors.New(msg.Message)
		}
		rc.source.Fail(tracker.NewPositionError(tracker.ParseErrorCode(msg.Code), cause))

	case MessageTypeSetInvisible:
		if err := rc.engine.SetInvisible(msg.Enabled); err != nil {
			client.SendError(err.Error(), errorCode(err))
		}

	case MessageTypeSetBackground:
		rc.engine.SetBackground(msg.Enabled)

	case MessageTypeSubscribeNearby:
		if rc.unsubNearby != nil {
			return
		}
		rc.unsubNearby = rc.engine.SubscribeNearby(rc.onNearby)

	case MessageTypeUnsubscribeNearby:
		if rc.unsubNearby != nil {
			rc.unsubNearby()
			rc.unsubNearby = nil
		}

	case MessageTypeLocate:
		// the fix arrives on this goroutine, so wait for it elsewhere
		go func() {
			if err := rc.engine.Locate(client.Context()); err != nil && !errors.Is(err, context.Canceled) {
				client.SendError(err.Error(), errorCode(err))
			}
		}()

	case MessageTypePing:
		client.Send(NewPongMessage())

	default:
		client.SendError(apperrors.ErrInvalidMessageType.Error(), "INVALID_MESSAGE_TYPE")
	}
}

func (rc *radarConn) handlePosition(client *Client, msg *IncomingMessage) {
	if msg.Position == nil {
		client.SendError("position required", "INVALID_FORMAT")
		return
	}

	allowed, err := rc.handler.limiter.AllowFix(client.Context(), client.SessionID())
	if err != nil || !allowed {
		client.SendError(apperrors.ErrRateLimitExceeded.Error(), "RATE_LIMIT")
		return
	}

	fix := *msg.Position
	if err := rc.handler.validator.ValidateFix(fix); err != nil {
		client.SendError(err.Error(), "INVALID_POSITION")
		return
	}

	err = rc.source.Push(location.LiveLocation{
		Latitude:  fix.Latitude,
		Longitude: fix.Longitude,
		Accuracy:  fix.Accuracy,
		Altitude:  fix.Altitude,
		Heading:   fix.Heading,
		Speed:     fix.Speed,
	})
	if errors.Is(err, apperrors.ErrNotTracking) {
		client.SendError(err.Error(), errorCode(err))
	}
}

func (rc *radarConn) onNearby(users []discovery.RadarUser) {
	rc.mu.Lock()
	radius := rc.radius
	rc.mu.Unlock()
	rc.client.Send(NewNearbyMessage(users, radius))
}

// close tears the connection's radar down and withdraws the user from the
// store unless another connection of the same user is live. Pending writes
// are flushed before the removal.
func (rc *radarConn) close() {
	rc.closeOnce.Do(func() {
		if rc.unsubNearby != nil {
			rc.unsubNearby()
			rc.unsubNearby = nil
		}
		if rc.unsubState != nil {
			rc.unsubState()
		}

		rc.engine.Stop()
		rc.source.Close()
		rc.syncer.Close()

		// a reconnect already owns the record
		if rc.handler.hub.Connected(rc.session.UserID, rc.client) {
			rc.logger.Debug("Keeping location for newer connection")
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), removeTimeout)
		defer cancel()
		if err := rc.handler.store.Remove(ctx, rc.session.UserID); err != nil {
			rc.logger.Warn("Failed to remove location on disconnect", "error", err)
		}
	})
}

// errorCode maps engine errors onto the codes sent to clients.
func errorCode(err error) string {
	var pe *tracker.PositionError
	switch {
	case errors.As(err, &pe):
		return string(pe.Code)
	case errors.Is(err, apperrors.ErrSourceUnavailable):
		return "SOURCE_UNAVAILABLE"
	case errors.Is(err, apperrors.ErrNotTracking):
		return "NOT_TRACKING"
	case errors.Is(err, apperrors.ErrNotPrivileged):
		return "NOT_PRIVILEGED"
	case errors.Is(err, apperrors.ErrRateLimitExceeded):
		return "RATE_LIMIT"
	default:
		return "INTERNAL_ERROR"
	}
}
