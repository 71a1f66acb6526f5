package api

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/jimmy058910/replitballgame-sub015/internal/api/handlers"
	"github.com/jimmy058910/replitballgame-sub015/internal/api/middleware"
	"github.com/jimmy058910/replitballgame-sub015/internal/season"
	"github.com/jimmy058910/replitballgame-sub015/internal/services"
	"github.com/jimmy058910/replitballgame-sub015/internal/sim"
	"github.com/jimmy058910/replitballgame-sub015/internal/store"
	"github.com/jimmy058910/replitballgame-sub015/internal/tournament"
	"github.com/jimmy058910/replitballgame-sub015/pkg/config"
)

// SetupRoutes configures all API routes on the given router group
func SetupRoutes(group *gin.RouterGroup, st *store.Store, runner *sim.Runner, tournaments *tournament.Service, coord *season.Coordinator, cache *services.CacheService, cfg *config.Config, log *logrus.Logger) {
	// Initialize handlers
	matchHandler := handlers.NewMatchHandler(st, runner, cache, log)
	tournamentHandler := handlers.NewTournamentHandler(st, tournaments, log)
	standingsHandler := handlers.NewStandingsHandler(st, cache, log)
	seasonHandler := handlers.NewSeasonHandler(st, coord, log)

	// Match endpoints
	group.GET("/matches/live", matchHandler.GetLive)
	group.GET("/matches/:id/enhanced-data", matchHandler.GetEnhancedData)
	// Force-start is an operator action; keep it behind a tight limiter so a
	// stuck dashboard cannot hammer the runner.
	group.POST("/matches/:id/force-start", middleware.RateLimit(rate.Limit(1), 5), matchHandler.ForceStart)

	// Tournament endpoints
	group.GET("/tournaments/:id", tournamentHandler.Get)
	group.POST("/tournaments/:id/enter", middleware.RequireTeam(), tournamentHandler.Enter)

	// League endpoints
	group.GET("/standings", standingsHandler.Get)
	group.GET("/season/current", seasonHandler.GetCurrent)

	// WebSocket and health endpoints live at the root level, not under
	// /api/v1 - they are wired in main.go.
}
