package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/askwhyharsh/liveradar/internal/discovery"
	"github.com/askwhyharsh/liveradar/internal/location"
	"github.com/askwhyharsh/liveradar/internal/ratelimit"
	"github.com/askwhyharsh/liveradar/internal/session"
	"github.com/askwhyharsh/liveradar/internal/visibility"
	apperrors "github.com/askwhyharsh/liveradar/pkg/errors"
	"github.com/askwhyharsh/liveradar/pkg/logger"
	"github.com/askwhyharsh/liveradar/pkg/validator"
)

// NearbyFinder runs a single discovery query.
type NearbyFinder interface {
	Nearby(ctx context.Context, req discovery.Request) []discovery.RadarUser
}

// ConnectionCounter reports live websocket connections on this instance and
// across every instance sharing the Redis presence set.
type ConnectionCounter interface {
	Count() int
	ActiveConnections(ctx context.Context) (int64, error)
}

type Handler struct {
	sessionService session.SessionService
	finder         NearbyFinder
	radius         visibility.RadiusConfig
	rateLimiter    ratelimit.RateLimiter
	validator      validator.Validator
	connections    ConnectionCounter
	logger         logger.Logger
}

type SessionResponse struct {
	SessionID   string                `json:"session_id"`
	UserID      string                `json:"user_id"`
	DisplayName string                `json:"display_name"`
	Tier        visibility.AccessTier `json:"tier"`
	CreatedAt   string                `json:"created_at"`
}

type RadiusResponse struct {
	Tier       visibility.AccessTier `json:"tier"`
	Radius     float64               `json:"radius"`
	Thresholds visibility.Thresholds `json:"thresholds"`
}

func NewHandler(
	sessionService session.SessionService,
	finder NearbyFinder,
	radius visibility.RadiusConfig,
	rateLimiter ratelimit.RateLimiter,
	validator validator.Validator,
	connections ConnectionCounter,
	log logger.Logger,
) *Handler {
	return &Handler{
		sessionService: sessionService,
		finder:         finder,
		radius:         radius,
		rateLimiter:    rateLimiter,
		validator:      validator,
		connections:    connections,
		logger:         log,
	}
}

// POST /api/session/create
func (h *Handler) CreateSession(c *gin.Context) {
	var req struct {
		UserID      string `json:"user_id" binding:"required"`
		DisplayName string `json:"display_name"`
		Handle      string `json:"handle"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse("Invalid request", "INVALID_REQUEST"))
		return
	}

	ip := c.ClientIP()

	// Check rate limit
	allowed, err := h.rateLimiter.AllowSessionCreation(c, ip)
	if err != nil || !allowed {
		c.JSON(http.StatusTooManyRequests, ErrorResponse("Rate limit exceeded", "RATE_LIMIT"))
		return
	}

	// Create session
	sess, err := h.sessionService.Create(c, session.CreateRequest{
		UserID:      req.UserID,
		DisplayName: req.DisplayName,
		Handle:      req.Handle,
		IPAddress:   ip,
	})
	if err != nil {
		h.logger.Error("Failed to create session", "user_id", req.UserID, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse("Failed to create session", "INTERNAL_ERROR"))
		return
	}

	c.JSON(http.StatusCreated, SuccessResponse(SessionResponse{
		SessionID:   sess.ID,
		UserID:      sess.UserID,
		DisplayName: sess.DisplayName,
		Tier:        sess.Tier,
		CreatedAt:   sess.CreatedAt.Format(time.RFC3339),
	}))
}

// GET /api/radius
func (h *Handler) GetRadius(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	radius := h.radius.SearchRadius(sess.Tier, visibility.Flags{GlobalReach: sess.Tier == visibility.TierPrivileged})
	c.JSON(http.StatusOK, SuccessResponse(RadiusResponse{
		Tier:       sess.Tier,
		Radius:     radius,
		Thresholds: h.radius.Thresholds(radius),
	}))
}

// GET /api/nearby?lat=..&lon=..
//
// A one-shot radar from the supplied fix. Nothing is written to the store.
func (h *Handler) GetNearby(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lon, errLon := strconv.ParseFloat(c.Query("lon"), 64)
	if errLat != nil || errLon != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse("lat and lon required", "INVALID_REQUEST"))
		return
	}

	// Validate coordinates
	if err := h.validator.ValidateCoordinates(lat, lon); err != nil {
		RespondError(c, err)
		return
	}

	// Check rate limit
	allowed, err := h.rateLimiter.AllowNearbyQuery(c, sess.ID)
	if err != nil || !allowed {
		c.JSON(http.StatusTooManyRequests, ErrorResponse("Nearby query rate limit exceeded", "RATE_LIMIT"))
		return
	}

	radius := h.radius.SearchRadius(sess.Tier, visibility.Flags{GlobalReach: sess.Tier == visibility.TierPrivileged})
	users := h.finder.Nearby(c.Request.Context(), discovery.Request{
		UserID: sess.UserID,
		Origin: location.LiveLocation{Latitude: lat, Longitude: lon, Timestamp: time.Now()},
		Radius: radius,
	})

	c.JSON(http.StatusOK, SuccessResponse(gin.H{
		"count":  len(users),
		"radius": radius,
		"users":  users,
	}))
}

// GET /api/health
func (h *Handler) Health(c *gin.Context) {
	body := gin.H{
		"status": "ok",
		"time":   c.GetTime("request_time"),
	}
	if h.connections != nil {
		body["connections"] = h.connections.Count()

		total, err := h.connections.ActiveConnections(c.Request.Context())
		if err != nil {
			h.logger.Warn("Failed to count cluster connections", "error", err)
		} else {
			body["cluster_connections"] = total
		}
	}
	c.JSON(http.StatusOK, body)
}

// session loads the session put on the context by SessionRequired.
func (h *Handler) session(c *gin.Context) (*session.Session, bool) {
	sess, err := h.sessionService.Get(c, c.GetString("session_id"))
	if err != nil {
		if !errors.Is(err, apperrors.ErrSessionNotFound) && !errors.Is(err, apperrors.ErrInvalidSessionID) {
			h.logger.Error("Failed to load session", "error", err)
		}
		RespondError(c, err)
		return nil, false
	}
	return sess, true
}
