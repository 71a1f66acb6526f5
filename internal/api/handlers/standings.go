package handlers

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/jimmy058910/replitballgame-sub015/internal/models"
	"github.com/jimmy058910/replitballgame-sub015/internal/services"
	"github.com/jimmy058910/replitballgame-sub015/internal/store"
	"github.com/jimmy058910/replitballgame-sub015/pkg/utils"
)

// standingsCacheTTL keeps the table fresh enough between match completions.
const standingsCacheTTL = 30 * time.Second

type StandingsHandler struct {
	store *store.Store
	cache *services.CacheService
	log   *logrus.Logger
}

func NewStandingsHandler(st *store.Store, cache *services.CacheService, log *logrus.Logger) *StandingsHandler {
	return &StandingsHandler{
		store: st,
		cache: cache,
		log:   log,
	}
}

// StandingsRow is one team's line in the table.
type StandingsRow struct {
	Position       int    `json:"position"`
	TeamID         uint   `json:"teamId"`
	Name           string `json:"name"`
	Wins           int    `json:"wins"`
	Losses         int    `json:"losses"`
	Draws          int    `json:"draws"`
	Points         int    `json:"points"`
	GoalsFor       int    `json:"goalsFor"`
	GoalsAgainst   int    `json:"goalsAgainst"`
	GoalDifference int    `json:"goalDifference"`
}

// Get serves one subdivision's table, ordered by points, goal difference,
// wins, fewest losses, then name.
func (h *StandingsHandler) Get(c *gin.Context) {
	division, err := strconv.Atoi(c.Query("division"))
	if err != nil || division < 1 || division > 8 {
		utils.SendValidationError(c, "division must be a number between 1 and 8", c.Query("division"))
		return
	}
	subdivision := c.Query("subdivision")
	if subdivision == "" {
		subdivision = "main"
	}
	ctx := c.Request.Context()
	cacheKey := services.StandingsCacheKey(division, subdivision)

	var rows []StandingsRow
	if err := h.cache.Get(ctx, cacheKey, &rows); err == nil {
		utils.SendSuccess(c, rows)
		return
	} else if !errors.Is(err, services.ErrCacheMiss) {
		h.log.WithError(err).Warn("Standings cache unavailable")
	}

	teams, err := h.store.Teams().Standings(ctx, division, subdivision)
	if err != nil {
		utils.SendInternalError(c, "Failed to load standings")
		return
	}

	rows = make([]StandingsRow, len(teams))
	for i, team := range teams {
		rows[i] = standingsRow(i+1, team)
	}
	if err := h.cache.SetWithRetry(ctx, cacheKey, rows, standingsCacheTTL, 2); err != nil {
		h.log.WithError(err).Warn("Could not cache standings")
	}

	utils.SendSuccess(c, rows)
}

func standingsRow(position int, team models.Team) StandingsRow {
	return StandingsRow{
		Position:       position,
		TeamID:         team.ID,
		Name:           team.Name,
		Wins:           team.Wins,
		Losses:         team.Losses,
		Draws:          team.Draws,
		Points:         team.Points,
		GoalsFor:       team.GoalsFor,
		GoalsAgainst:   team.GoalsAgainst,
		GoalDifference: team.GoalDifference(),
	}
}
