package websocket

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/askwhyharsh/liveradar/internal/location"
	"github.com/askwhyharsh/liveradar/internal/metrics"
	"github.com/askwhyharsh/liveradar/internal/radar"
	"github.com/askwhyharsh/liveradar/internal/session"
	"github.com/askwhyharsh/liveradar/internal/tracker"
	"github.com/askwhyharsh/liveradar/pkg/logger"
	"github.com/askwhyharsh/liveradar/pkg/validator"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // origins are enforced by the CORS middleware
	},
}

// removeTimeout bounds the store cleanup after a disconnect.
const removeTimeout = 5 * time.Second

type SessionResolver interface {
	Resolve(ctx context.Context, sessionID string) (*session.Session, error)
}

type RateLimiter interface {
	AllowFix(ctx context.Context, sessionID string) (bool, error)
}

// Config is the per-connection template. The tracker tier is taken from the
// session, never from here.
type Config struct {
	Tracker tracker.Config
	Syncer  location.SyncerConfig
	Radar   radar.Config
}

type Handler struct {
	hub       *Hub
	sessions  SessionResolver
	store     location.Store
	feed      location.ChangeFeed
	finder    radar.Finder
	limiter   RateLimiter
	validator validator.Validator
	cfg       Config
	metrics   *metrics.Collector
	logger    logger.Logger
}

func NewHandler(
	hub *Hub,
	sessions SessionResolver,
	store location.Store,
	feed location.ChangeFeed,
	finder radar.Finder,
	limiter RateLimiter,
	val validator.Validator,
	cfg Config,
	m *metrics.Collector,
	log logger.Logger,
) *Handler {
	return &Handler{
		hub:       hub,
		sessions:  sessions,
		store:     store,
		feed:      feed,
		finder:    finder,
		limiter:   limiter,
		validator: val,
		cfg:       cfg,
		metrics:   m,
		logger:    log,
	}
}

// GET /ws?session_id=...
func (h *Handler) HandleWebSocket(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id required"})
		return
	}

	sess, err := h.sessions.Resolve(c.Request.Context(), sessionID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection", "session_id", sessionID, "error", err)
		return
	}

	rc := h.newRadarConn(sess)
	client := NewClient(h.hub, conn, sess.ID, sess.UserID, rc, rc.logger)
	rc.client = client

	if !h.hub.Register(client) {
		conn.Close()
		rc.close()
		return
	}
	rc.logger.Info("Radar connection opened", "tier", sess.Tier)

	rc.attach()
	go client.WritePump()
	client.ReadPump()

	rc.close()
	rc.logger.Info("Radar connection closed")
}

func (h *Handler) newRadarConn(sess *session.Session) *radarConn {
	log := h.logger.With("session_id", sess.ID, "user_id", sess.UserID)

	source := NewClientSource()
	syncer := location.NewSyncer(h.store, sess.UserID, h.cfg.Syncer, h.metrics, log)

	tcfg := h.cfg.Tracker
	tcfg.Tier = sess.Tier
	t := tracker.New(source, syncer, tcfg, h.metrics, log)

	return &radarConn{
		handler: h,
		session: sess,
		source:  source,
		syncer:  syncer,
		engine:  radar.NewEngine(sess.UserID, t, h.finder, h.feed, h.cfg.Radar, log),
		logger:  log,
	}
}
