package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"udf_backend_project/services"
)

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SyncStatus exposes the outcome of the last symbol sync.
type SyncStatus interface {
	LastResult() *services.SyncResult
}

type HealthController struct {
	db   Pinger
	sync SyncStatus
}

// NewHealthController creates the probe handlers. sync may be nil when the
// synchronizer is disabled.
func NewHealthController(db Pinger, sync SyncStatus) *HealthController {
	return &HealthController{db: db, sync: sync}
}

// Liveness probe, always OK while the process serves requests
// GET /healthz
func (hc *HealthController) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readiness probe: the database answers and, with sync enabled, one cycle has completed
// GET /readyz
func (hc *HealthController) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := hc.db.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "not_ready",
			"message": "Database ping failed",
			"error":   err.Error(),
		})
		return
	}

	if hc.sync == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
		return
	}
	last := hc.sync.LastResult()
	if last == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "not_ready",
			"message": "Symbol list not synchronized yet",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "last_sync": last})
}
