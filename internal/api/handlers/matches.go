package handlers

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/jimmy058910/replitballgame-sub015/internal/models"
	"github.com/jimmy058910/replitballgame-sub015/internal/services"
	"github.com/jimmy058910/replitballgame-sub015/internal/sim"
	"github.com/jimmy058910/replitballgame-sub015/internal/store"
	"github.com/jimmy058910/replitballgame-sub015/pkg/utils"
)

type MatchHandler struct {
	store  *store.Store
	runner *sim.Runner
	cache  *services.CacheService
	log    *logrus.Logger
}

func NewMatchHandler(st *store.Store, runner *sim.Runner, cache *services.CacheService, log *logrus.Logger) *MatchHandler {
	return &MatchHandler{
		store:  st,
		runner: runner,
		cache:  cache,
		log:    log,
	}
}

// MatchStateResponse is the enhanced-data body. Exactly one of Live, Final
// or Game is set, depending on where the freshest state lives.
type MatchStateResponse struct {
	Source string                `json:"source"` // "live", "recent" or "persisted"
	Live   *sim.LiveMatchState   `json:"live,omitempty"`
	Final  *sim.LifecyclePayload `json:"final,omitempty"`
	Game   *models.Game          `json:"game,omitempty"`
}

// GetLive lists every match currently running in this process.
func (h *MatchHandler) GetLive(c *gin.Context) {
	states := h.runner.ListLive()
	utils.SendSuccess(c, gin.H{
		"count":   len(states),
		"matches": states,
	})
}

// GetEnhancedData serves the best available state for one match: the live
// worker snapshot while it runs, the cached final snapshot shortly after it
// completes, and the persisted row otherwise.
func (h *MatchHandler) GetEnhancedData(c *gin.Context) {
	matchID, ok := parseIDParam(c)
	if !ok {
		return
	}

	if state, running := h.runner.Live(matchID); running {
		utils.SendSuccess(c, MatchStateResponse{Source: "live", Live: &state})
		return
	}

	var final sim.LifecyclePayload
	if err := h.cache.Get(c.Request.Context(), services.LiveMatchCacheKey(matchID), &final); err == nil {
		utils.SendSuccess(c, MatchStateResponse{Source: "recent", Final: &final})
		return
	} else if !errors.Is(err, services.ErrCacheMiss) {
		h.log.WithError(err).WithField("match_id", matchID).Warn("Match snapshot cache unavailable")
	}

	game, err := h.store.Games().GetWithTeams(c.Request.Context(), matchID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.SendNotFound(c, "Match not found")
			return
		}
		utils.SendInternalError(c, "Failed to load match")
		return
	}
	utils.SendSuccess(c, MatchStateResponse{Source: "persisted", Game: game})
}

// ForceStart moves a SCHEDULED match into the runner immediately. Admin
// convenience; normal starts go through the scheduler sweep.
func (h *MatchHandler) ForceStart(c *gin.Context) {
	matchID, ok := parseIDParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	game, err := h.store.Games().Get(ctx, matchID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.SendNotFound(c, "Match not found")
			return
		}
		utils.SendInternalError(c, "Failed to load match")
		return
	}
	if game.Status != models.GameStatusScheduled {
		utils.SendError(c, 409, utils.NewAppError(utils.ErrCodeMatchState,
			"Match is not in a startable state", game.Status))
		return
	}

	// The worker must outlive this request; store calls apply their own
	// per-operation timeouts.
	if err := h.runner.StartMatch(context.WithoutCancel(ctx), matchID); err != nil {
		switch {
		case errors.Is(err, store.ErrConflict):
			utils.SendConflict(c, "Match was started by another actor")
		case errors.Is(err, sim.ErrAtCapacity):
			utils.SendError(c, 409, utils.NewAppError(utils.ErrCodeMatchState,
				"Match runner is at capacity, try again shortly"))
		default:
			h.log.WithError(err).WithField("match_id", matchID).Error("Force start failed")
			utils.SendInternalError(c, "Failed to start match")
		}
		return
	}

	h.log.WithField("match_id", matchID).Info("Match force-started")
	utils.SendSuccess(c, gin.H{
		"match_id":   matchID,
		"status":     models.GameStatusInProgress,
		"started_at": time.Now().UTC(),
	})
}

// parseIDParam reads the :id path segment, answering 400 itself on garbage.
func parseIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		utils.SendValidationError(c, "Invalid id parameter", c.Param("id"))
		return 0, false
	}
	return uint(id), true
}
