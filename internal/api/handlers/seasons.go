package handlers

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/jimmy058910/replitballgame-sub015/internal/clock"
	"github.com/jimmy058910/replitballgame-sub015/internal/season"
	"github.com/jimmy058910/replitballgame-sub015/internal/store"
	"github.com/jimmy058910/replitballgame-sub015/pkg/utils"
)

type SeasonHandler struct {
	store *store.Store
	coord *season.Coordinator
	log   *logrus.Logger
}

func NewSeasonHandler(st *store.Store, coord *season.Coordinator, log *logrus.Logger) *SeasonHandler {
	return &SeasonHandler{
		store: st,
		coord: coord,
		log:   log,
	}
}

// GetCurrent reports the active season resolved against the wall clock, so
// the day and phase are true even if the scheduler has not ticked yet.
func (h *SeasonHandler) GetCurrent(c *gin.Context) {
	s, err := h.store.Seasons().Active(c.Request.Context())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.SendNotFound(c, "No active season")
			return
		}
		utils.SendInternalError(c, "Failed to load season")
		return
	}

	day, phase, untilBoundary := clock.Resolve(time.Now(), s.StartDate)
	utils.SendSuccess(c, gin.H{
		"season":            s,
		"day":               day,
		"phase":             phase,
		"untilBoundarySecs": int(untilBoundary.Seconds()),
		"scheduler":         h.coord.Status(),
	})
}
