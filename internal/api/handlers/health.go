package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jimmy058910/replitballgame-sub015/internal/season"
	"github.com/jimmy058910/replitballgame-sub015/internal/services"
	"github.com/jimmy058910/replitballgame-sub015/internal/sim"
	"github.com/jimmy058910/replitballgame-sub015/pkg/database"
)

type HealthHandler struct {
	db     *database.DB
	runner *sim.Runner
	hub    *services.WebSocketHub
	coord  *season.Coordinator
	ai     *services.AITeamService
}

func NewHealthHandler(db *database.DB, runner *sim.Runner, hub *services.WebSocketHub, coord *season.Coordinator, ai *services.AITeamService) *HealthHandler {
	return &HealthHandler{
		db:     db,
		runner: runner,
		hub:    hub,
		coord:  coord,
		ai:     ai,
	}
}

// GetHealth returns basic health status - always returns 200 if server is running
// This is used for basic liveness probes
func (h *HealthHandler) GetHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	dbStatus := "ok"
	if err := h.db.Healthy(ctx); err != nil {
		dbStatus = "unreachable"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
		"database":  dbStatus,
		"matches": gin.H{
			"active": h.runner.ActiveCount(),
		},
		"websocket": gin.H{
			"clients": h.hub.ClientCount(),
		},
		"scheduler":  h.coord.Status(),
		"ai_breaker": h.ai.BreakerState().String(),
	})
}

// GetReady returns readiness status - only returns 200 when critical services are ready
// This is used for readiness probes in container orchestration
func (h *HealthHandler) GetReady(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Healthy(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
	})
}
