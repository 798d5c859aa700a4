package http

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/syncdrive/internal/logging"
	"github.com/dmitrijs2005/syncdrive/internal/server/auth"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	userIDKey   = "userID"
	deviceIDKey = "deviceID"

	// DeviceIDHeader carries the client-chosen device identifier on sync
	// operations.
	DeviceIDHeader = "X-Device-ID"
)

// UserIDFromContext returns the authenticated user id set by Auth.
func UserIDFromContext(c *gin.Context) string {
	if v, ok := c.Get(userIDKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// DeviceIDFromContext returns the device id set by DeviceID.
func DeviceIDFromContext(c *gin.Context) string {
	if v, ok := c.Get(deviceIDKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Auth validates the bearer token and resolves the authenticated user id.
func Auth(secretKey []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := strings.TrimSpace(c.GetHeader("Authorization"))
		if !strings.HasPrefix(strings.ToLower(h), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		userID, err := auth.GetUserIDFromToken(strings.TrimSpace(h[7:]), secretKey)
		if err != nil || userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// DeviceID extracts the X-Device-ID header. Operations that require a device
// reject a blank id at the service layer.
func DeviceID() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(deviceIDKey, strings.TrimSpace(c.GetHeader(DeviceIDHeader)))
		c.Next()
	}
}

// RateLimit applies a per-user token bucket. rps<=0 disables limiting.
func RateLimit(rps int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	var mu sync.Mutex
	limiters := make(map[string]*rate.Limiter)

	limiterFor := func(key string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		l, ok := limiters[key]
		if !ok {
			l = rate.NewLimiter(rate.Limit(rps), rps)
			limiters[key] = l
		}
		return l
	}

	return func(c *gin.Context) {
		key := UserIDFromContext(c)
		if key == "" {
			key = c.ClientIP()
		}
		if !limiterFor(key).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// RequestTimeout bounds each request's context so durable-store calls cannot
// block indefinitely. d<=0 disables the bound.
func RequestTimeout(d time.Duration) gin.HandlerFunc {
	if d <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequestLogger logs one line per request with method, path, status, and
// duration.
func RequestLogger(log logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info(c.Request.Context(), "request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
		)
	}
}
