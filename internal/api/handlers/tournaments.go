package handlers

import (
	"errors"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/jimmy058910/replitballgame-sub015/internal/api/middleware"
	"github.com/jimmy058910/replitballgame-sub015/internal/models"
	"github.com/jimmy058910/replitballgame-sub015/internal/store"
	"github.com/jimmy058910/replitballgame-sub015/internal/tournament"
	"github.com/jimmy058910/replitballgame-sub015/pkg/utils"
)

type TournamentHandler struct {
	store       *store.Store
	tournaments *tournament.Service
	log         *logrus.Logger
}

func NewTournamentHandler(st *store.Store, svc *tournament.Service, log *logrus.Logger) *TournamentHandler {
	return &TournamentHandler{
		store:       st,
		tournaments: svc,
		log:         log,
	}
}

// BracketRound groups a round's games for display.
type BracketRound struct {
	Round int           `json:"round"`
	Games []models.Game `json:"games"`
}

// Get returns one tournament with its entries and the bracket so far.
func (h *TournamentHandler) Get(c *gin.Context) {
	tournamentID, ok := parseIDParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	t, err := h.store.Tournaments().GetWithEntries(ctx, tournamentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.SendNotFound(c, "Tournament not found")
			return
		}
		utils.SendInternalError(c, "Failed to load tournament")
		return
	}

	games, err := h.store.Games().ListByTournament(ctx, tournamentID)
	if err != nil {
		utils.SendInternalError(c, "Failed to load bracket")
		return
	}

	byRound := make(map[int][]models.Game)
	for _, g := range games {
		if g.TournamentRound == nil {
			continue
		}
		byRound[*g.TournamentRound] = append(byRound[*g.TournamentRound], g)
	}
	rounds := make([]BracketRound, 0, len(byRound))
	for round, roundGames := range byRound {
		rounds = append(rounds, BracketRound{Round: round, Games: roundGames})
	}
	sort.Slice(rounds, func(i, j int) bool { return rounds[i].Round < rounds[j].Round })

	utils.SendSuccess(c, gin.H{
		"tournament": t,
		"bracket":    rounds,
	})
}

// Enter registers the caller's team. Fee shortfalls answer 402; every other
// eligibility rejection answers 409 with its reason code.
func (h *TournamentHandler) Enter(c *gin.Context) {
	tournamentID, ok := parseIDParam(c)
	if !ok {
		return
	}
	teamID, ok := middleware.TeamID(c)
	if !ok {
		utils.SendUnauthorized(c, "A team token is required")
		return
	}

	entry, err := h.tournaments.Enter(c.Request.Context(), tournamentID, teamID)
	if err != nil {
		var notEligible *tournament.NotEligibleError
		switch {
		case errors.As(err, &notEligible):
			utils.SendNotEligible(c, notEligible.Reason, notEligible.Message)
		case errors.Is(err, store.ErrNotFound):
			utils.SendNotFound(c, "Tournament not found")
		default:
			h.log.WithError(err).WithFields(logrus.Fields{
				"tournament_id": tournamentID,
				"team_id":       teamID,
			}).Error("Tournament entry failed")
			utils.SendInternalError(c, "Failed to enter tournament")
		}
		return
	}

	utils.SendSuccess(c, entry)
}
