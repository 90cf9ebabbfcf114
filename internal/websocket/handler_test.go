package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askwhyharsh/liveradar/internal/discovery"
	"github.com/askwhyharsh/liveradar/internal/location"
	"github.com/askwhyharsh/liveradar/internal/profile"
	"github.com/askwhyharsh/liveradar/internal/radar"
	"github.com/askwhyharsh/liveradar/internal/session"
	"github.com/askwhyharsh/liveradar/internal/tracker"
	"github.com/askwhyharsh/liveradar/internal/visibility"
	apperrors "github.com/askwhyharsh/liveradar/pkg/errors"
	"github.com/askwhyharsh/liveradar/pkg/logger"
	"github.com/askwhyharsh/liveradar/pkg/validator"
)

type staticSessions map[string]*session.Session

func (s staticSessions) Resolve(_ context.Context, sessionID string) (*session.Session, error) {
	sess, ok := s[sessionID]
	if !ok {
		return nil, apperrors.ErrSessionNotFound
	}
	return sess, nil
}

type switchLimiter struct {
	deny atomic.Bool
}

func (l *switchLimiter) AllowFix(context.Context, string) (bool, error) {
	return !l.deny.Load(), nil
}

type wsFixture struct {
	store   *location.MemoryStore
	hub     *Hub
	limiter *switchLimiter
	server  *httptest.Server
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := location.NewMemoryStore()
	directory := profile.NewMemoryDirectory(
		profile.Profile{UserID: "bob", DisplayName: "Bob", Tier: visibility.TierStandard},
	)
	finder := discovery.NewFinder(store, directory, discovery.DefaultConfig(), nil, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := NewHub(ctx, nil, logger.Nop())
	go hub.Run()

	tcfg := tracker.DefaultConfig()
	tcfg.AcquisitionTimeout = time.Minute

	limiter := &switchLimiter{}
	sessions := staticSessions{
		"s-alice": {ID: "s-alice", UserID: "alice", Tier: visibility.TierStandard},
	}
	h := NewHandler(hub, sessions, store, store, finder, limiter, validator.NewValidator(), Config{
		Tracker: tcfg,
		Syncer:  location.SyncerConfig{TTL: time.Minute, WriteTimeout: time.Second},
		Radar:   radar.Config{Radius: visibility.DefaultRadiusConfig(), MaxResults: 50},
	}, nil, logger.Nop())

	r := gin.New()
	r.GET("/ws", h.HandleWebSocket)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	return &wsFixture{store: store, hub: hub, limiter: limiter, server: server}
}

func (f *wsFixture) dial(t *testing.T, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?session_id=" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg map[string]any) {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

// readUntil returns the first message matching typ and pred.
func readUntil(t *testing.T, conn *websocket.Conn, typ string, pred func(*Message) bool) *Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		if msg.Type == typ && (pred == nil || pred(&msg)) {
			return &msg
		}
	}
}

func position(lat, lon float64) map[string]any {
	return map[string]any{
		"type":     MessageTypePosition,
		"position": map[string]any{"latitude": lat, "longitude": lon, "accuracy": 5},
	}
}

func TestHandleWebSocket_RejectsUnknownSession(t *testing.T) {
	f := newWSFixture(t)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?session_id=nope"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandleWebSocket_TrackAndDiscover(t *testing.T) {
	f := newWSFixture(t)
	now := time.Now()
	require.NoError(t, f.store.Upsert(context.Background(),
		location.NewRecord("bob", location.LiveLocation{Latitude: 52.5205, Longitude: 13.4050}, now, time.Minute)))

	conn := f.dial(t, "s-alice")

	initial := readUntil(t, conn, MessageTypeState, nil)
	assert.False(t, initial.State.Tracking)
	assert.Equal(t, visibility.TierStandard, initial.State.Tier)

	send(t, conn, map[string]any{"type": MessageTypeStartTracking})
	readUntil(t, conn, MessageTypeState, func(m *Message) bool { return m.State.Tracking })

	send(t, conn, position(52.5200, 13.4050))
	located := readUntil(t, conn, MessageTypeState, func(m *Message) bool { return m.State.Location != nil })
	assert.Equal(t, uint64(1), located.State.Accepted)

	require.Eventually(t, func() bool {
		_, err := f.store.Get(context.Background(), "alice")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	send(t, conn, map[string]any{"type": MessageTypeSubscribeNearby})
	nearby := readUntil(t, conn, MessageTypeNearby, nil)
	require.NotNil(t, nearby.Nearby)
	require.Len(t, nearby.Nearby.Users, 1)
	assert.Equal(t, "bob", nearby.Nearby.Users[0].UserID)
	assert.Equal(t, "Bob", nearby.Nearby.Users[0].DisplayName)
	assert.Equal(t, visibility.TierImmediate, nearby.Nearby.Users[0].Tier)
	assert.Equal(t, 5000.0, nearby.Nearby.Radius)
}

func TestHandleWebSocket_DisconnectRemovesLocation(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t, "s-alice")
	readUntil(t, conn, MessageTypeState, nil)

	send(t, conn, map[string]any{"type": MessageTypeStartTracking})
	send(t, conn, position(52.5200, 13.4050))
	require.Eventually(t, func() bool {
		_, err := f.store.Get(context.Background(), "alice")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return f.hub.Count() == 1 }, time.Second, 10*time.Millisecond)
	active, err := f.hub.ActiveConnections(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), active)

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		_, err := f.store.Get(context.Background(), "alice")
		return err == apperrors.ErrLocationNotFound
	}, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return f.hub.Count() == 0 }, time.Second, 10*time.Millisecond)
}

func TestHandleWebSocket_ReconnectKeepsLocation(t *testing.T) {
	f := newWSFixture(t)
	first := f.dial(t, "s-alice")
	readUntil(t, first, MessageTypeState, nil)

	send(t, first, map[string]any{"type": MessageTypeStartTracking})
	send(t, first, position(52.5200, 13.4050))
	require.Eventually(t, func() bool {
		_, err := f.store.Get(context.Background(), "alice")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	second := f.dial(t, "s-alice")
	readUntil(t, second, MessageTypeState, nil)

	// the hub drops the replaced socket
	require.NoError(t, first.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		if _, _, err := first.ReadMessage(); err != nil {
			break
		}
	}

	assert.Never(t, func() bool {
		_, err := f.store.Get(context.Background(), "alice")
		return err != nil
	}, 300*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, 1, f.hub.Count())

	require.NoError(t, second.Close())
	assert.Eventually(t, func() bool {
		_, err := f.store.Get(context.Background(), "alice")
		return err == apperrors.ErrLocationNotFound
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandleWebSocket_RejectsBadInput(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t, "s-alice")
	readUntil(t, conn, MessageTypeState, nil)

	send(t, conn, position(95, 13.4))
	msg := readUntil(t, conn, MessageTypeError, nil)
	assert.Equal(t, "INVALID_POSITION", msg.ErrorCode)

	send(t, conn, map[string]any{"type": "chat_message"})
	msg = readUntil(t, conn, MessageTypeError, nil)
	assert.Equal(t, "INVALID_MESSAGE_TYPE", msg.ErrorCode)

	send(t, conn, map[string]any{"type": MessageTypeSetInvisible, "enabled": true})
	msg = readUntil(t, conn, MessageTypeError, nil)
	assert.Equal(t, "NOT_PRIVILEGED", msg.ErrorCode)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	msg = readUntil(t, conn, MessageTypeError, nil)
	assert.Equal(t, "INVALID_FORMAT", msg.ErrorCode)
}

func TestHandleWebSocket_PositionWithoutTrackingIsRejected(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t, "s-alice")
	readUntil(t, conn, MessageTypeState, nil)

	send(t, conn, position(52.5200, 13.4050))
	msg := readUntil(t, conn, MessageTypeError, nil)
	assert.Equal(t, "NOT_TRACKING", msg.ErrorCode)

	_, err := f.store.Get(context.Background(), "alice")
	assert.ErrorIs(t, err, apperrors.ErrLocationNotFound)
}

func TestHandleWebSocket_RateLimitsFixes(t *testing.T) {
	f := newWSFixture(t)
	f.limiter.deny.Store(true)

	conn := f.dial(t, "s-alice")
	readUntil(t, conn, MessageTypeState, nil)

	send(t, conn, map[string]any{"type": MessageTypeStartTracking})
	send(t, conn, position(52.5200, 13.4050))

	msg := readUntil(t, conn, MessageTypeError, nil)
	assert.Equal(t, "RATE_LIMIT", msg.ErrorCode)

	_, err := f.store.Get(context.Background(), "alice")
	assert.ErrorIs(t, err, apperrors.ErrLocationNotFound)
}

func TestHandleWebSocket_PositionErrorSurfacesOnState(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t, "s-alice")
	readUntil(t, conn, MessageTypeState, nil)

	send(t, conn, map[string]any{"type": MessageTypeStartTracking})
	send(t, conn, map[string]any{"type": MessageTypePositionError, "code": "permission_denied", "message": "user said no"})

	msg := readUntil(t, conn, MessageTypeState, func(m *Message) bool { return m.State.Error != nil })
	assert.Equal(t, tracker.PermissionDenied, msg.State.Error.Code)
	assert.True(t, msg.State.Tracking)
}

func TestHandleWebSocket_Ping(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t, "s-alice")

	send(t, conn, map[string]any{"type": MessageTypePing})
	readUntil(t, conn, MessageTypePong, nil)
}
