package ratelimit

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/askwhyharsh/liveradar/pkg/logger"
)

type Middleware struct {
	limiter RateLimiter
	logger  logger.Logger
}

func NewMiddleware(limiter RateLimiter, log logger.Logger) *Middleware {
	return &Middleware{
		limiter: limiter,
		logger:  log,
	}
}

// IPRateLimit middleware for general IP-based rate limiting
func (m *Middleware) IPRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()

		allowed, err := m.limiter.AllowIPRequest(c.Request.Context(), ip)
		if err != nil {
			// fail open when the limiter is unreachable
			m.logger.Warn("Rate limit check failed", "ip", ip, "error", err)
			c.Next()
			return
		}

		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error": gin.H{
					"message": "Rate limit exceeded. Please try again later.",
					"code":    "RATE_LIMIT_IP",
				},
			})
			return
		}

		c.Next()
	}
}

// SessionRequired middleware pulls the session ID from the header or query
func (m *Middleware) SessionRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.GetHeader("X-Session-ID")
		if sessionID == "" {
			sessionID = c.Query("session_id")
		}

		if sessionID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error": gin.H{
					"message": "Session ID required",
					"code":    "SESSION_REQUIRED",
				},
			})
			return
		}

		// Store session ID in context for handlers
		c.Set("session_id", sessionID)
		c.Next()
	}
}
