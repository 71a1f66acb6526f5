package sim

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

	"github.com/jimmy058910/replitballgame-sub015/internal/models"
	"github.com/jimmy058910/replitballgame-sub015/internal/store"
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

// matchFixture seeds two teams with rosters and one scheduled league game.
// Creation order is fixed, so every fresh database hands out the same ids
// and a replay of the same fixture is tick-for-tick identical.
type matchFixture struct {
	store *store.Store
	game  *models.Game
	home  []models.Player
	away  []models.Player
}

func newMatchFixture(t *testing.T, matchType string) *matchFixture {
	t.Helper()
	s := newTestStore(t)
	ctx := context.Background()

	home := &models.Team{Name: "Oakland Cyclones", Division: 3, Subdivision: "main", Credits: 50000, Gems: 100}
	require.NoError(t, s.Teams().Create(ctx, home))
	away := &models.Team{Name: "Midland Reapers", Division: 3, Subdivision: "main", Credits: 50000, Gems: 100}
	require.NoError(t, s.Teams().Create(ctx, away))

	seedRoster(t, s, home.ID, 14)
	seedRoster(t, s, away.ID, 22)

	game := &models.Game{
		HomeTeamID: home.ID,
		AwayTeamID: away.ID,
		MatchType:  matchType,
		Status:     models.GameStatusScheduled,
		GameDate:   time.Now().UTC(),
	}
	require.NoError(t, s.Games().Create(ctx, game))

	loaded, err := s.Games().GetWithTeams(ctx, game.ID)
	require.NoError(t, err)

	homeRoster, err := s.Players().ListActiveByTeam(ctx, home.ID)
	require.NoError(t, err)
	awayRoster, err := s.Players().ListActiveByTeam(ctx, away.ID)
	require.NoError(t, err)

	return &matchFixture{store: s, game: loaded, home: homeRoster, away: awayRoster}
}

// seedRoster creates eight players whose attributes derive from the base
// value, keeping rosters distinct but reproducible.
func seedRoster(t *testing.T, s *store.Store, teamID uint, base int) {
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
