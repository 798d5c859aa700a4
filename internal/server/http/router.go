// Package http is the protocol adapter: it exposes the sync engine over an
// HTTP/JSON surface and keeps all transport concerns (auth token parsing,
// status mapping, rate limits) out of the services.
package http

import (
	"net/http"

	"github.com/dmitrijs2005/syncdrive/internal/logging"
	"github.com/dmitrijs2005/syncdrive/internal/server/config"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter builds the gin engine with the full route table.
func NewRouter(cfg *config.Config, h *SyncHandler, log logging.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Authorization", "Content-Type", DeviceIDHeader},
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/sync/v1")
	v1.Use(Auth([]byte(cfg.SecretKey)))
	v1.Use(RateLimit(cfg.RateLimitRPS))
	v1.Use(RequestTimeout(cfg.DBTimeout))
	v1.Use(DeviceID())
	{
		v1.POST("/devices", h.RegisterDevice)
		v1.GET("/devices", h.ListDevices)
		v1.POST("/devices/:deviceId/deactivate", h.DeactivateDevice)
		v1.DELETE("/devices/:deviceId", h.RemoveDevice)

		v1.GET("/changes", h.Pull)
		v1.POST("/changes", h.Push)

		v1.GET("/items/:itemId/signature", h.GetSignature)
		v1.POST("/items/:itemId/delta", h.DeltaUpload)

		v1.GET("/conflicts", h.ListConflicts)
		v1.POST("/conflicts/:conflictId/resolve", h.ResolveConflict)
	}
	return r
}
