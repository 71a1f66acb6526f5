package season

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jimmy058910/replitballgame-sub015/internal/clock"
	"github.com/jimmy058910/replitballgame-sub015/internal/models"
	"github.com/jimmy058910/replitballgame-sub015/internal/store"
)

func TestDeclineChanceCurve(t *testing.T) {
	assert.Zero(t, declineChance(30), "prime years never decline")
	assert.InDelta(t, 0.05, declineChance(31), 1e-9)
	assert.InDelta(t, 0.50, declineChance(40), 1e-9)
	assert.InDelta(t, 0.80, declineChance(60), 1e-9, "saturates well short of certainty")
}

func TestRetirementChanceCurve(t *testing.T) {
	assert.InDelta(t, 0.10, retirementChance(40, 40), 1e-9)
	assert.InDelta(t, 0.30, retirementChance(44, 40), 1e-9)
	assert.InDelta(t, 0.90, retirementChance(60, 40), 1e-9, "never a sure thing below the mandatory age")
}

func agingSeason(t *testing.T, s *store.Store) *models.Season {
	t.Helper()
	season := &models.Season{
		Name:       "Season 1",
		StartDate:  time.Now().UTC().AddDate(0, 0, -16),
		CurrentDay: clock.SeasonLengthDays,
		Phase:      string(clock.PhaseOffseason),
		IsActive:   true,
	}
	require.NoError(t, s.Seasons().Create(context.Background(), season))
	return season
}

func TestOffseasonAgingAdvancesEveryActivePlayer(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	agingSeason(t, s)
	team := newTeam(t, s, "Atlas", 4, "main")

	ages := []int{20, 30, 39, 43}
	ids := make([]uint, len(ages))
	for i, age := range ages {
		ids[i] = newPlayer(t, s, team.ID, age, 20, 3.0).ID
	}

	// Losing dice: everyone just gets a year older.
	out, err := RunOffseasonAging(ctx, s, testConfig(), constDice(0.999), quietLogger())
	require.NoError(t, err)
	assert.Equal(t, AgingOutcome{Aged: 4}, out)

	for i, id := range ids {
		p, err := s.Players().Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, ages[i]+1, p.Age)
		assert.False(t, p.IsRetired)
		assert.Equal(t, 20, p.Speed, "no decline on a losing roll")
	}
}

func TestOffseasonAgingMandatoryRetirementIgnoresDice(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	agingSeason(t, s)
	team := newTeam(t, s, "Atlas", 4, "main")

	onEdge := newPlayer(t, s, team.ID, 44, 20, 3.0)
	wayPast := newPlayer(t, s, team.ID, 50, 20, 3.0)

	out, err := RunOffseasonAging(ctx, s, testConfig(), constDice(0.999), quietLogger())
	require.NoError(t, err)
	assert.Equal(t, AgingOutcome{Aged: 2, Retired: 2}, out)

	for _, id := range []uint{onEdge.ID, wayPast.ID} {
		p, err := s.Players().Get(ctx, id)
		require.NoError(t, err)
		assert.True(t, p.IsRetired)
	}

	active, err := s.Players().ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active, "nobody plays past the mandatory age")
}

func TestOffseasonAgingWinningDiceRetireAndErode(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	agingSeason(t, s)
	team := newTeam(t, s, "Atlas", 4, "main")

	eligible := newPlayer(t, s, team.ID, 39, 20, 3.0)
	declining := newPlayer(t, s, team.ID, 30, 20, 3.0)

	out, err := RunOffseasonAging(ctx, s, testConfig(), constDice(0), quietLogger())
	require.NoError(t, err)
	assert.Equal(t, AgingOutcome{Aged: 2, Declined: 1, Retired: 1}, out)

	retiree, err := s.Players().Get(ctx, eligible.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, retiree.Age)
	assert.True(t, retiree.IsRetired, "winning roll at the retirement threshold ends the career")
	assert.Equal(t, 20, retiree.Speed, "retirees do not also decline")

	faded, err := s.Players().Get(ctx, declining.ID)
	require.NoError(t, err)
	assert.Equal(t, 31, faded.Age)
	assert.False(t, faded.IsRetired)
	assert.Equal(t, 19, faded.Speed, "a zero draw picks the first physical attribute")
	assert.Equal(t, 20, faded.Power)
	assert.Equal(t, 20, faded.Agility)
	assert.Equal(t, 20, faded.Throwing, "decline never touches skill ratings")
}

func TestOffseasonAgingDeclineFloorsAtMinimum(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	agingSeason(t, s)
	team := newTeam(t, s, "Atlas", 4, "main")

	worn := newPlayer(t, s, team.ID, 35, models.AttributeMin, 3.0)

	out, err := RunOffseasonAging(ctx, s, testConfig(), constDice(0), quietLogger())
	require.NoError(t, err)
	assert.Zero(t, out.Declined, "a floored rating cannot erode further")

	p, err := s.Players().Get(ctx, worn.ID)
	require.NoError(t, err)
	assert.Equal(t, 36, p.Age)
	assert.Equal(t, models.AttributeMin, p.Speed)
}

func TestOffseasonAgingSkipsRetiredPlayers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	agingSeason(t, s)
	team := newTeam(t, s, "Atlas", 4, "main")

	gone := newPlayer(t, s, team.ID, 38, 20, 3.0)
	gone.IsRetired = true
	require.NoError(t, s.Players().Save(ctx, gone))

	out, err := RunOffseasonAging(ctx, s, testConfig(), constDice(0), quietLogger())
	require.NoError(t, err)
	assert.Zero(t, out.Aged)

	p, err := s.Players().Get(ctx, gone.ID)
	require.NoError(t, err)
	assert.Equal(t, 38, p.Age, "retirement freezes the clock")
}
