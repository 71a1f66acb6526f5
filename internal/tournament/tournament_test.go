package tournament

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jimmy058910/replitballgame-sub015/internal/clock"
	"github.com/jimmy058910/replitballgame-sub015/internal/events"
	"github.com/jimmy058910/replitballgame-sub015/internal/models"
	"github.com/jimmy058910/replitballgame-sub015/internal/sim"
	"github.com/jimmy058910/replitballgame-sub015/internal/store"
	"github.com/jimmy058910/replitballgame-sub015/pkg/config"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Season{},
		&models.Team{},
		&models.Player{},
		&models.Game{},
		&models.Tournament{},
		&models.TournamentEntry{},
		&models.InventoryItem{},
		&models.StepMarker{},
	))

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return store.New(db, log, 5*time.Second)
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

func testConfig() *config.Config {
	return &config.Config{
		SimulationTickPeriodMs: 100,
		MaxConcurrentMatches:   64,
		ProgressionBaseRate:    0.15,
		AgeDeclineStart:        31,
		RetirementStart:        40,
		MandatoryRetireAge:     45,
		DailyCupDivisions:      []int{2, 3, 4, 5, 6, 7, 8},
		DailyCupSize:           8,
		MidSeasonCupSize:       64,
		MidSeasonCupDay:        7,
		PrizeDistribution:      []float64{0.5, 0.3, 0.2},
		LeagueMatchHour:        20,
		DailyCupDeadlineHour:   18,
		DailyCupStartHour:      19,
		WorkerStallTimeout:     30 * time.Second,
		StoreOpTimeout:         5 * time.Second,
	}
}

// cupFixture wires a service against a fresh store with one season and a
// division of teams. The service clock is frozen at fixture.now, mid-morning
// of the cup day, well before the registration deadline.
type cupFixture struct {
	store   *store.Store
	bus     *events.Bus
	svc     *Service
	cfg     *config.Config
	season  *models.Season
	teams   []models.Team
	now     time.Time
	cupDate time.Time
}

func newCupFixture(t *testing.T, division, teamCount int) *cupFixture {
	t.Helper()
	s := newTestStore(t)
	ctx := context.Background()

	loc := clock.Location()
	cupDate := time.Date(2025, 3, 10, 4, 0, 0, 0, loc)
	now := time.Date(2025, 3, 10, 10, 0, 0, 0, loc)

	season := &models.Season{
		Name:       "Season 1",
		StartDate:  cupDate.AddDate(0, 0, -5).UTC(),
		CurrentDay: 6,
		Phase:      string(clock.PhaseRegular),
		IsActive:   true,
	}
	require.NoError(t, s.Seasons().Create(ctx, season))

	fx := &cupFixture{
		store:   s,
		bus:     events.NewBus(),
		cfg:     testConfig(),
		season:  season,
		now:     now,
		cupDate: cupDate,
	}
	fx.svc = NewService(s, fx.bus, quietLogger(), fx.cfg, nil)
	fx.svc.nowFn = func() time.Time { return fx.now }

	for i := 0; i < teamCount; i++ {
		team := models.Team{
			Name:        fmt.Sprintf("Division %d Club %d", division, i+1),
			Division:    division,
			Subdivision: "main",
			Credits:     50000,
			Gems:        100,
		}
		require.NoError(t, s.Teams().Create(ctx, &team))
		require.NoError(t, s.Inventory().Grant(ctx, team.ID, models.ItemTournamentEntry, 1))
		seedCupRoster(t, s, team.ID, 12+i)
		fx.teams = append(fx.teams, team)
	}
	return fx
}

func seedCupRoster(t *testing.T, s *store.Store, teamID uint, base int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 8; i++ {
		p := &models.Player{
			TeamID:         teamID,
			Name:           fmt.Sprintf("Player %d-%d", teamID, i),
			Age:            22 + i,
			Speed:          models.ClampAttribute(base + i),
			Power:          models.ClampAttribute(base + (i+2)%8),
			Throwing:       models.ClampAttribute(base + (i+4)%8),
			Catching:       models.ClampAttribute(base + (i+1)%8),
			Kicking:        models.ClampAttribute(base + (i+3)%8),
			Stamina:        models.ClampAttribute(base + (i+5)%8),
			Leadership:     models.ClampAttribute(base + (i+6)%8),
			Agility:        models.ClampAttribute(base + (i+7)%8),
			PotentialStars: 3.0,
		}
		require.NoError(t, s.Players().Create(ctx, p))
	}
}

// finishGame drives a scheduled tournament game straight to a final score.
func finishGame(t *testing.T, s *store.Store, gameID uint, home, away int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Games().CASStatus(ctx, gameID, models.GameStatusScheduled, models.GameStatusInProgress))
	require.NoError(t, s.Games().FinalizeScore(ctx, gameID, home, away, sim.LeagueDurationTicks, false))
}

// playRound finalizes every scheduled game of the tournament's pending
// round, home side winning, then lets the service react. Returns how many
// games it finished.
func playRound(t *testing.T, fx *cupFixture, tournamentID uint) int {
	t.Helper()
	ctx := context.Background()

	tournament, err := fx.store.Tournaments().Get(ctx, tournamentID)
	require.NoError(t, err)
	games, err := fx.store.Games().ListByTournamentRound(ctx, tournamentID, tournament.CurrentRound)
	require.NoError(t, err)

	finished := 0
	for i := range games {
		if games[i].Status != models.GameStatusScheduled {
			continue
		}
		finishGame(t, fx.store, games[i].ID, 3, 1)
		finished++
	}
	require.NoError(t, fx.svc.ProcessCompletion(ctx, tournamentID))
	return finished
}
