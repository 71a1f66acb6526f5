package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/jimmy058910/replitballgame-sub015/internal/models"
	"github.com/jimmy058910/replitballgame-sub015/internal/store"
)

// TeamGenerator produces AI-controlled teams eligible to fill a tournament
// field. How those teams come to exist is the provider's business; this
// module only consumes the contract.
type TeamGenerator interface {
	GenerateTeams(ctx context.Context, division *int, tournamentID uint, count int) ([]models.Team, error)
}

// PoolGenerator serves fill teams from the persisted AI pool: teams flagged
// IsAI in the tournament's division that have not already entered.
type PoolGenerator struct {
	store *store.Store
}

func NewPoolGenerator(st *store.Store) *PoolGenerator {
	return &PoolGenerator{store: st}
}

func (g *PoolGenerator) GenerateTeams(ctx context.Context, division *int, tournamentID uint, count int) ([]models.Team, error) {
	return g.store.Teams().ListAIFillPool(ctx, division, tournamentID, count)
}

// AITeamService fills short tournament fields through a circuit breaker, so
// a failing provider degrades registrations to byes instead of stalling
// every start sweep behind its timeouts.
type AITeamService struct {
	gen     TeamGenerator
	breaker *gobreaker.CircuitBreaker
	log     *logrus.Logger
}

func NewAITeamService(gen TeamGenerator, maxFailures int, log *logrus.Logger) *AITeamService {
	settings := gobreaker.Settings{
		Name:        "ai-team-provider",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(maxFailures)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.WithFields(logrus.Fields{
				"component": "circuit_breaker",
				"service":   name,
				"from":      from.String(),
				"to":        to.String(),
			}).Info("Circuit breaker state changed")
		},
	}
	return &AITeamService{
		gen:     gen,
		breaker: gobreaker.NewCircuitBreaker(settings),
		log:     log,
	}
}

// FillTeams returns up to needed AI teams for the tournament. An open
// breaker fails fast; the tournament engine turns any error into byes.
func (s *AITeamService) FillTeams(ctx context.Context, t *models.Tournament, needed int) ([]models.Team, error) {
	result, err := s.breaker.Execute(func() (interface{}, error) {
		return s.gen.GenerateTeams(ctx, t.Division, t.ID, needed)
	})
	if err != nil {
		return nil, err
	}
	teams := result.([]models.Team)
	if len(teams) < needed {
		s.log.WithFields(logrus.Fields{
			"tournament_id": t.ID,
			"requested":     needed,
			"provided":      len(teams),
		}).Warn("AI fill pool under-delivered, remaining slots become byes")
	}
	return teams, nil
}

// BreakerState exposes the breaker for the health endpoint.
func (s *AITeamService) BreakerState() gobreaker.State {
	return s.breaker.State()
}
