package handlers_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jimmy058910/replitballgame-sub015/internal/api"
	"github.com/jimmy058910/replitballgame-sub015/internal/api/handlers"
	"github.com/jimmy058910/replitballgame-sub015/internal/api/middleware"
	"github.com/jimmy058910/replitballgame-sub015/internal/clock"
	"github.com/jimmy058910/replitballgame-sub015/internal/events"
	"github.com/jimmy058910/replitballgame-sub015/internal/models"
	"github.com/jimmy058910/replitballgame-sub015/internal/season"
	"github.com/jimmy058910/replitballgame-sub015/internal/services"
	"github.com/jimmy058910/replitballgame-sub015/internal/sim"
	"github.com/jimmy058910/replitballgame-sub015/internal/store"
	"github.com/jimmy058910/replitballgame-sub015/internal/tournament"
	"github.com/jimmy058910/replitballgame-sub015/pkg/config"
	"github.com/jimmy058910/replitballgame-sub015/pkg/utils"
)

const testSecret = "handlers-test-secret"

// envelope mirrors the response wrapper with raw Data for per-test decoding.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *utils.AppError `json:"error,omitempty"`
}

type apiFixture struct {
	store  *store.Store
	runner *sim.Runner
	router *gin.Engine
}

type stubFill struct{}

func (stubFill) FillTeams(ctx context.Context, t *models.Tournament, needed int) ([]models.Team, error) {
	return nil, nil
}

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

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:              testSecret,
		SimulationTickPeriodMs: 100,
		MaxConcurrentMatches:   4,
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

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := newTestStore(t)
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	bus := events.NewBus()
	cfg := testConfig()

	// The hour-long tick period parks force-started workers without letting
	// them simulate; Drain reaps them at cleanup.
	runner := sim.NewRunner(st, bus, log, sim.RunnerConfig{
		MaxConcurrent: 4,
		TickPeriod:    time.Hour,
		StallTimeout:  time.Minute,
	})
	t.Cleanup(func() { runner.Drain(50 * time.Millisecond) })

	cups := tournament.NewService(st, bus, log, cfg, stubFill{})
	coord := season.NewCoordinator(st, bus, log, cfg, runner, cups)

	// Redis is deliberately unreachable: every handler must still answer
	// from the store when the cache is down.
	cache := services.NewCacheService(redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 100 * time.Millisecond,
	}), log)

	router := gin.New()
	router.Use(middleware.TeamAuth(testSecret))
	api.SetupRoutes(router.Group("/api/v1"), st, runner, cups, coord, cache, cfg, log)

	return &apiFixture{store: st, runner: runner, router: router}
}

func (fx *apiFixture) do(t *testing.T, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	fx.router.ServeHTTP(w, req)
	return w
}

func (fx *apiFixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	return fx.do(t, http.MethodGet, path, "")
}

func (fx *apiFixture) post(t *testing.T, path, token string) *httptest.ResponseRecorder {
	return fx.do(t, http.MethodPost, path, token)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func teamToken(t *testing.T, teamID uint) string {
	t.Helper()
	claims := middleware.TeamClaims{
		TeamID: teamID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func seedTeam(t *testing.T, st *store.Store, name string, division int) *models.Team {
	t.Helper()
	team := &models.Team{
		Name:        name,
		Division:    division,
		Subdivision: "main",
		Credits:     50000,
		Gems:        100,
	}
	require.NoError(t, st.Teams().Create(context.Background(), team))
	for i := 0; i < 8; i++ {
		p := &models.Player{
			TeamID:         team.ID,
			Name:           fmt.Sprintf("%s %d", name, i),
			Age:            24 + i,
			Speed:          20,
			Power:          20,
			Agility:        20,
			Throwing:       20,
			Catching:       20,
			Kicking:        20,
			Stamina:        20,
			Leadership:     20,
			PotentialStars: 3,
		}
		require.NoError(t, st.Players().Create(context.Background(), p))
	}
	return team
}

func seedGame(t *testing.T, st *store.Store, home, away uint, status string) *models.Game {
	t.Helper()
	game := &models.Game{
		HomeTeamID: home,
		AwayTeamID: away,
		MatchType:  models.MatchTypeLeague,
		Status:     status,
		GameDate:   time.Now().UTC(),
	}
	require.NoError(t, st.Games().Create(context.Background(), game))
	return game
}

func seedOpenCup(t *testing.T, st *store.Store, division int, feeCredits int64) *models.Tournament {
	t.Helper()
	cup := &models.Tournament{
		Name:                 fmt.Sprintf("Division %d Daily Cup", division),
		Type:                 models.TournamentTypeDailyCup,
		Division:             &division,
		Status:               models.TournamentStatusRegistrationOpen,
		MaxParticipants:      8,
		EntryFeeCredits:      feeCredits,
		PrizePoolCredits:     10000,
		RegistrationDeadline: time.Now().Add(time.Hour),
		StartTime:            time.Now().Add(2 * time.Hour),
		SeasonID:             1,
		GameDay:              5,
	}
	require.NoError(t, st.Tournaments().Create(context.Background(), cup))
	return cup
}

func TestLiveMatchesStartsEmpty(t *testing.T) {
	fx := newAPIFixture(t)

	w := fx.get(t, "/api/v1/matches/live")
	require.Equal(t, http.StatusOK, w.Code)

	env := decode(t, w)
	require.True(t, env.Success)
	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Zero(t, body.Count)
}

func TestEnhancedDataRejectsGarbageID(t *testing.T) {
	fx := newAPIFixture(t)

	w := fx.get(t, "/api/v1/matches/abc/enhanced-data")
	require.Equal(t, http.StatusBadRequest, w.Code)
	env := decode(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, utils.ErrCodeValidation, env.Error.Code)
}

func TestEnhancedDataMissingMatch(t *testing.T) {
	fx := newAPIFixture(t)

	w := fx.get(t, "/api/v1/matches/4242/enhanced-data")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestEnhancedDataServesPersistedGame(t *testing.T) {
	fx := newAPIFixture(t)
	home := seedTeam(t, fx.store, "Oakland Cyclones", 4)
	away := seedTeam(t, fx.store, "Midland Reapers", 4)
	game := seedGame(t, fx.store, home.ID, away.ID, models.GameStatusCompleted)

	w := fx.get(t, fmt.Sprintf("/api/v1/matches/%d/enhanced-data", game.ID))
	require.Equal(t, http.StatusOK, w.Code)

	env := decode(t, w)
	require.True(t, env.Success)
	var body struct {
		Source string       `json:"source"`
		Game   *models.Game `json:"game"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, "persisted", body.Source)
	require.NotNil(t, body.Game)
	assert.Equal(t, game.ID, body.Game.ID)
}

func TestEnhancedDataPrefersLiveWorker(t *testing.T) {
	fx := newAPIFixture(t)
	home := seedTeam(t, fx.store, "Oakland Cyclones", 4)
	away := seedTeam(t, fx.store, "Midland Reapers", 4)
	game := seedGame(t, fx.store, home.ID, away.ID, models.GameStatusScheduled)

	require.NoError(t, fx.runner.StartMatch(context.Background(), game.ID))

	w := fx.get(t, fmt.Sprintf("/api/v1/matches/%d/enhanced-data", game.ID))
	require.Equal(t, http.StatusOK, w.Code)

	env := decode(t, w)
	var body struct {
		Source string `json:"source"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, "live", body.Source)
}

func TestForceStartMissingMatch(t *testing.T) {
	fx := newAPIFixture(t)

	w := fx.post(t, "/api/v1/matches/4242/force-start", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	env := decode(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, utils.ErrCodeNotFound, env.Error.Code)
}

func TestForceStartRejectsFinishedMatch(t *testing.T) {
	fx := newAPIFixture(t)
	home := seedTeam(t, fx.store, "Oakland Cyclones", 4)
	away := seedTeam(t, fx.store, "Midland Reapers", 4)
	game := seedGame(t, fx.store, home.ID, away.ID, models.GameStatusCompleted)

	w := fx.post(t, fmt.Sprintf("/api/v1/matches/%d/force-start", game.ID), "")
	require.Equal(t, http.StatusConflict, w.Code)
	env := decode(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, utils.ErrCodeMatchState, env.Error.Code)
	assert.Equal(t, models.GameStatusCompleted, env.Error.Details)
}

func TestForceStartLaunchesScheduledMatch(t *testing.T) {
	fx := newAPIFixture(t)
	home := seedTeam(t, fx.store, "Oakland Cyclones", 4)
	away := seedTeam(t, fx.store, "Midland Reapers", 4)
	game := seedGame(t, fx.store, home.ID, away.ID, models.GameStatusScheduled)

	w := fx.post(t, fmt.Sprintf("/api/v1/matches/%d/force-start", game.ID), "")
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, decode(t, w).Success)

	loaded, err := fx.store.Games().Get(context.Background(), game.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GameStatusInProgress, loaded.Status)
	assert.Equal(t, 1, fx.runner.ActiveCount())

	// The second attempt finds the match no longer startable.
	w = fx.post(t, fmt.Sprintf("/api/v1/matches/%d/force-start", game.ID), "")
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, utils.ErrCodeMatchState, decode(t, w).Error.Code)
}

func TestTournamentNotFound(t *testing.T) {
	fx := newAPIFixture(t)

	w := fx.get(t, "/api/v1/tournaments/4242")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestTournamentBracketGroupsGamesByRound(t *testing.T) {
	fx := newAPIFixture(t)
	a := seedTeam(t, fx.store, "Oakland Cyclones", 4)
	b := seedTeam(t, fx.store, "Midland Reapers", 4)
	c := seedTeam(t, fx.store, "Harbor Kites", 4)
	d := seedTeam(t, fx.store, "Valley Sentinels", 4)
	cup := seedOpenCup(t, fx.store, 4, 0)

	ctx := context.Background()
	for _, team := range []*models.Team{a, b, c, d} {
		require.NoError(t, fx.store.Tournaments().CreateEntry(ctx, &models.TournamentEntry{
			TournamentID: cup.ID,
			TeamID:       team.ID,
		}))
	}

	round1, round2 := 1, 2
	semifinal1 := &models.Game{
		HomeTeamID: a.ID, AwayTeamID: b.ID,
		MatchType: models.MatchTypeTournament, Status: models.GameStatusCompleted,
		GameDate: time.Now().UTC(), TournamentID: &cup.ID, TournamentRound: &round1,
	}
	semifinal2 := &models.Game{
		HomeTeamID: c.ID, AwayTeamID: d.ID,
		MatchType: models.MatchTypeTournament, Status: models.GameStatusCompleted,
		GameDate: time.Now().UTC(), TournamentID: &cup.ID, TournamentRound: &round1,
	}
	final := &models.Game{
		HomeTeamID: a.ID, AwayTeamID: c.ID,
		MatchType: models.MatchTypeTournament, Status: models.GameStatusScheduled,
		GameDate: time.Now().UTC(), TournamentID: &cup.ID, TournamentRound: &round2,
	}
	for _, g := range []*models.Game{semifinal1, semifinal2, final} {
		require.NoError(t, fx.store.Games().Create(ctx, g))
	}

	w := fx.get(t, fmt.Sprintf("/api/v1/tournaments/%d", cup.ID))
	require.Equal(t, http.StatusOK, w.Code)

	env := decode(t, w)
	var body struct {
		Tournament models.Tournament       `json:"tournament"`
		Bracket    []handlers.BracketRound `json:"bracket"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, cup.ID, body.Tournament.ID)
	assert.Len(t, body.Tournament.Entries, 4)
	require.Len(t, body.Bracket, 2)
	assert.Equal(t, 1, body.Bracket[0].Round)
	assert.Len(t, body.Bracket[0].Games, 2)
	assert.Equal(t, 2, body.Bracket[1].Round)
	assert.Len(t, body.Bracket[1].Games, 1)
}

func TestEnterWithoutTokenIsUnauthorized(t *testing.T) {
	fx := newAPIFixture(t)
	cup := seedOpenCup(t, fx.store, 4, 0)

	w := fx.post(t, fmt.Sprintf("/api/v1/tournaments/%d/enter", cup.ID), "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, utils.ErrCodeUnauthorized, decode(t, w).Error.Code)
}

func TestEnterChargesFeeAndRecordsEntry(t *testing.T) {
	fx := newAPIFixture(t)
	team := seedTeam(t, fx.store, "Oakland Cyclones", 4)
	cup := seedOpenCup(t, fx.store, 4, 1000)

	w := fx.post(t, fmt.Sprintf("/api/v1/tournaments/%d/enter", cup.ID), teamToken(t, team.ID))
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, decode(t, w).Success)

	ctx := context.Background()
	entered, err := fx.store.Tournaments().HasEntry(ctx, cup.ID, team.ID)
	require.NoError(t, err)
	assert.True(t, entered)

	charged, err := fx.store.Teams().Get(ctx, team.ID)
	require.NoError(t, err)
	assert.Equal(t, team.Credits-1000, charged.Credits)
}

func TestEnterWithThinWalletIsPaymentRequired(t *testing.T) {
	fx := newAPIFixture(t)
	team := seedTeam(t, fx.store, "Oakland Cyclones", 4)
	team.Credits = 100
	require.NoError(t, fx.store.Teams().Save(context.Background(), team))
	cup := seedOpenCup(t, fx.store, 4, 1000)

	w := fx.post(t, fmt.Sprintf("/api/v1/tournaments/%d/enter", cup.ID), teamToken(t, team.ID))
	require.Equal(t, http.StatusPaymentRequired, w.Code)

	env := decode(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, utils.ErrCodePaymentRequired, env.Error.Code)
	assert.Equal(t, tournament.ReasonInsufficientCredits, env.Error.Details)
}

func TestEnterTwiceIsConflict(t *testing.T) {
	fx := newAPIFixture(t)
	team := seedTeam(t, fx.store, "Oakland Cyclones", 4)
	cup := seedOpenCup(t, fx.store, 4, 0)
	token := teamToken(t, team.ID)

	w := fx.post(t, fmt.Sprintf("/api/v1/tournaments/%d/enter", cup.ID), token)
	require.Equal(t, http.StatusOK, w.Code)

	w = fx.post(t, fmt.Sprintf("/api/v1/tournaments/%d/enter", cup.ID), token)
	require.Equal(t, http.StatusConflict, w.Code)

	env := decode(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, utils.ErrCodeNotEligible, env.Error.Code)
	assert.Equal(t, tournament.ReasonAlreadyEntered, env.Error.Details)
}

func TestStandingsRejectsBadDivision(t *testing.T) {
	fx := newAPIFixture(t)

	for _, query := range []string{"", "division=0", "division=9", "division=abc"} {
		w := fx.get(t, "/api/v1/standings?"+query)
		require.Equalf(t, http.StatusBadRequest, w.Code, "query %q", query)
		assert.Equal(t, utils.ErrCodeValidation, decode(t, w).Error.Code)
	}
}

func TestStandingsOrdersByPointsThenGoalDifference(t *testing.T) {
	fx := newAPIFixture(t)
	ctx := context.Background()

	first := seedTeam(t, fx.store, "Oakland Cyclones", 4)
	second := seedTeam(t, fx.store, "Midland Reapers", 4)
	third := seedTeam(t, fx.store, "Harbor Kites", 4)
	// Same division, different subdivision: must not appear.
	other := &models.Team{Name: "Distant Nomads", Division: 4, Subdivision: "east"}
	require.NoError(t, fx.store.Teams().Create(ctx, other))

	require.NoError(t, fx.store.Teams().SetRecord(ctx, first.ID,
		models.TeamRecord{Wins: 2, Points: 6, GoalsFor: 6, GoalsAgainst: 2}))
	require.NoError(t, fx.store.Teams().SetRecord(ctx, second.ID,
		models.TeamRecord{Wins: 2, Points: 6, GoalsFor: 4, GoalsAgainst: 2}))
	require.NoError(t, fx.store.Teams().SetRecord(ctx, third.ID,
		models.TeamRecord{Wins: 1, Losses: 1, Points: 3, GoalsFor: 3, GoalsAgainst: 3}))

	w := fx.get(t, "/api/v1/standings?division=4")
	require.Equal(t, http.StatusOK, w.Code)

	env := decode(t, w)
	var rows []handlers.StandingsRow
	require.NoError(t, json.Unmarshal(env.Data, &rows))
	require.Len(t, rows, 3)
	assert.Equal(t, []uint{first.ID, second.ID, third.ID}, []uint{rows[0].TeamID, rows[1].TeamID, rows[2].TeamID})
	assert.Equal(t, 1, rows[0].Position)
	assert.Equal(t, 4, rows[0].GoalDifference)
	assert.Equal(t, 3, rows[2].Position)
}

func TestSeasonCurrentWithoutActiveSeason(t *testing.T) {
	fx := newAPIFixture(t)

	w := fx.get(t, "/api/v1/season/current")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestSeasonCurrentResolvesDayFromClock(t *testing.T) {
	fx := newAPIFixture(t)
	now := time.Now().UTC()
	s := &models.Season{
		Name:       "Season 1",
		StartDate:  clock.EffectiveDate(now).AddDate(0, 0, -4).Add(8 * time.Hour),
		CurrentDay: 5,
		Phase:      string(clock.PhaseRegular),
		IsActive:   true,
	}
	require.NoError(t, fx.store.Seasons().Create(context.Background(), s))

	w := fx.get(t, "/api/v1/season/current")
	require.Equal(t, http.StatusOK, w.Code)

	env := decode(t, w)
	var body struct {
		Season            models.Season `json:"season"`
		Day               int           `json:"day"`
		Phase             string        `json:"phase"`
		UntilBoundarySecs int           `json:"untilBoundarySecs"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, s.ID, body.Season.ID)
	assert.Equal(t, 5, body.Day)
	assert.Equal(t, string(clock.PhaseRegular), body.Phase)
	assert.Greater(t, body.UntilBoundarySecs, 0)
	assert.LessOrEqual(t, body.UntilBoundarySecs, 24*60*60)
}
