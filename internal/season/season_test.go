package season

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
	"github.com/jimmy058910/replitballgame-sub015/internal/models"
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

// constDice always returns the same draw.
func constDice(v float64) Dice {
	return func() float64 { return v }
}

// seasonStartFor anchors a season start so the given instant lands on the
// wanted game day.
func seasonStartFor(now time.Time, day int) time.Time {
	return clock.EffectiveDate(now).AddDate(0, 0, -(day - 1)).Add(8 * time.Hour)
}

func newTeam(t *testing.T, s *store.Store, name string, division int, subdivision string) *models.Team {
	t.Helper()
	team := &models.Team{
		Name:        name,
		Division:    division,
		Subdivision: subdivision,
		Credits:     50000,
		Gems:        100,
	}
	require.NoError(t, s.Teams().Create(context.Background(), team))
	return team
}

func newPlayer(t *testing.T, s *store.Store, teamID uint, age int, attr int, potential float64) *models.Player {
	t.Helper()
	p := &models.Player{
		TeamID:         teamID,
		Name:           fmt.Sprintf("Player %d-%d", teamID, age),
		Age:            age,
		Speed:          attr,
		Power:          attr,
		Agility:        attr,
		Throwing:       attr,
		Catching:       attr,
		Kicking:        attr,
		Stamina:        attr,
		Leadership:     attr,
		PotentialStars: potential,
	}
	require.NoError(t, s.Players().Create(context.Background(), p))
	return p
}

// completedLeagueGame records a finished league result between two teams.
func completedLeagueGame(t *testing.T, s *store.Store, seasonID, home, away uint, homeScore, awayScore, gameDay int) {
	t.Helper()
	ctx := context.Background()
	sid := seasonID
	game := &models.Game{
		HomeTeamID: home,
		AwayTeamID: away,
		MatchType:  models.MatchTypeLeague,
		Status:     models.GameStatusScheduled,
		GameDate:   time.Now().UTC().Add(-24 * time.Hour),
		SeasonID:   &sid,
		GameDay:    gameDay,
	}
	require.NoError(t, s.Games().Create(ctx, game))
	require.NoError(t, s.Games().CASStatus(ctx, game.ID, models.GameStatusScheduled, models.GameStatusInProgress))
	require.NoError(t, s.Games().FinalizeScore(ctx, game.ID, homeScore, awayScore, 1800, false))
}

// applyResult mirrors the completion hook's standings write, so tests can
// build stored records that either match or contradict the game log.
func applyResult(t *testing.T, s *store.Store, teamID uint, scored, conceded int) {
	t.Helper()
	ctx := context.Background()
	team, err := s.Teams().Get(ctx, teamID)
	require.NoError(t, err)
	require.NoError(t, s.Teams().SetRecord(ctx, teamID, team.Record().WithResult(scored, conceded)))
}
