package sim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jimmy058910/replitballgame-sub015/internal/events"
	"github.com/jimmy058910/replitballgame-sub015/internal/models"
	"github.com/jimmy058910/replitballgame-sub015/internal/store"
)

func addScheduledGame(t *testing.T, fx *matchFixture) *models.Game {
	t.Helper()
	game := &models.Game{
		HomeTeamID: fx.game.HomeTeamID,
		AwayTeamID: fx.game.AwayTeamID,
		MatchType:  models.MatchTypeLeague,
		Status:     models.GameStatusScheduled,
		GameDate:   time.Now().UTC(),
	}
	require.NoError(t, fx.store.Games().Create(context.Background(), game))
	return game
}

func waitForLifecycle(t *testing.T, sub *events.Subscription, eventType string, matchID uint) LifecyclePayload {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case ev := <-sub.C:
			payload, ok := ev.Payload.(LifecyclePayload)
			if !ok {
				continue
			}
			if ev.Type == eventType && payload.MatchID == matchID {
				return payload
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s on match %d", eventType, matchID)
		}
	}
}

func TestRunnerRunsMatchToCompletion(t *testing.T) {
	fx := newMatchFixture(t, models.MatchTypeLeague)
	bus := events.NewBus()
	sub := bus.Subscribe(events.MatchLifecycleAllTopic, 16)
	defer sub.Close()

	runner := NewRunner(fx.store, bus, quietLogger(), RunnerConfig{MaxConcurrent: 4})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, runner.StartMatch(ctx, fx.game.ID))

	started := waitForLifecycle(t, sub, events.TypeMatchStarted, fx.game.ID)
	assert.Equal(t, models.GameStatusInProgress, started.Status)

	completed := waitForLifecycle(t, sub, events.TypeMatchCompleted, fx.game.ID)
	assert.Equal(t, models.GameStatusCompleted, completed.Status)
	assert.False(t, completed.Recovered)

	require.Eventually(t, func() bool { return runner.ActiveCount() == 0 }, 5*time.Second, 10*time.Millisecond)

	game, err := fx.store.Games().Get(ctx, fx.game.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GameStatusCompleted, game.Status)
	assert.Equal(t, completed.HomeScore, game.HomeScore)
	assert.Equal(t, completed.AwayScore, game.AwayScore)
}

func TestRunnerStartMatchLosesRaceToEarlierStarter(t *testing.T) {
	fx := newMatchFixture(t, models.MatchTypeLeague)
	bus := events.NewBus()
	ctx := context.Background()

	require.NoError(t, fx.store.Games().CASStatus(ctx, fx.game.ID, models.GameStatusScheduled, models.GameStatusInProgress))

	runner := NewRunner(fx.store, bus, quietLogger(), RunnerConfig{MaxConcurrent: 4})
	err := runner.StartMatch(ctx, fx.game.ID)
	assert.ErrorIs(t, err, store.ErrConflict)
	assert.Zero(t, runner.ActiveCount())
}

func TestRunnerRejectsBeyondCapacity(t *testing.T) {
	fx := newMatchFixture(t, models.MatchTypeLeague)
	second := addScheduledGame(t, fx)
	bus := events.NewBus()

	// A long tick period keeps the first match occupying the only slot.
	runner := NewRunner(fx.store, bus, quietLogger(), RunnerConfig{MaxConcurrent: 1, TickPeriod: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, runner.StartMatch(ctx, fx.game.ID))
	require.Equal(t, 1, runner.ActiveCount())

	err := runner.StartMatch(ctx, second.ID)
	assert.ErrorIs(t, err, ErrAtCapacity)

	// The rejected game stays claimed for the next recovery sweep.
	game, err := fx.store.Games().Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GameStatusInProgress, game.Status)

	cancel()
	require.Eventually(t, func() bool { return runner.ActiveCount() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestRunnerRecoverForceCompletesWithoutCheckpoint(t *testing.T) {
	fx := newMatchFixture(t, models.MatchTypeLeague)
	bus := events.NewBus()
	sub := bus.Subscribe(events.MatchLifecycleAllTopic, 16)
	defer sub.Close()
	ctx := context.Background()

	// A worker claimed the game and died before its first checkpoint.
	require.NoError(t, fx.store.Games().CASStatus(ctx, fx.game.ID, models.GameStatusScheduled, models.GameStatusInProgress))

	runner := NewRunner(fx.store, bus, quietLogger(), RunnerConfig{MaxConcurrent: 4})
	require.NoError(t, runner.Recover(ctx))

	completed := waitForLifecycle(t, sub, events.TypeMatchCompleted, fx.game.ID)
	assert.True(t, completed.Recovered)

	game, err := fx.store.Games().Get(ctx, fx.game.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GameStatusCompleted, game.Status)
	assert.True(t, game.Recovered)
	assert.Zero(t, game.HomeScore)
	assert.Zero(t, game.AwayScore)

	// The goalless force-complete still lands as a league draw.
	home, err := fx.store.Teams().Get(ctx, fx.game.HomeTeamID)
	require.NoError(t, err)
	away, err := fx.store.Teams().Get(ctx, fx.game.AwayTeamID)
	require.NoError(t, err)
	assert.Equal(t, 1, home.Draws)
	assert.Equal(t, 1, away.Draws)
	assert.Equal(t, 1, home.Points)
	assert.Equal(t, 1, away.Points)
}

func TestRunnerRecoverResumesFromCheckpoint(t *testing.T) {
	fx := newMatchFixture(t, models.MatchTypeLeague)
	bus := events.NewBus()
	sub := bus.Subscribe(events.MatchLifecycleAllTopic, 16)
	defer sub.Close()
	ctx := context.Background()

	// Drive the doomed worker far enough to leave a checkpoint behind.
	engine, err := NewEngine(fx.game, fx.home, fx.away, bus, fx.store, quietLogger(), 0)
	require.NoError(t, err)
	require.NoError(t, fx.store.Games().CASStatus(ctx, fx.game.ID, models.GameStatusScheduled, models.GameStatusInProgress))
	for tick := 1; tick <= 840; tick++ {
		engine.step(tick)
	}
	require.NoError(t, engine.writeCheckpoint(ctx, 840))

	runner := NewRunner(fx.store, bus, quietLogger(), RunnerConfig{MaxConcurrent: 4})
	require.NoError(t, runner.Recover(ctx))

	completed := waitForLifecycle(t, sub, events.TypeMatchCompleted, fx.game.ID)
	assert.False(t, completed.Recovered, "checkpoint resume is a clean finish")

	game, err := fx.store.Games().Get(ctx, fx.game.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GameStatusCompleted, game.Status)
	assert.Equal(t, LeagueDurationTicks, game.GameTime)
	assert.False(t, game.Recovered)
}

func TestRunnerRecoverSkipsOwnedMatches(t *testing.T) {
	fx := newMatchFixture(t, models.MatchTypeLeague)
	bus := events.NewBus()

	runner := NewRunner(fx.store, bus, quietLogger(), RunnerConfig{MaxConcurrent: 4, TickPeriod: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, runner.StartMatch(ctx, fx.game.ID))
	require.Equal(t, 1, runner.ActiveCount())

	// The sweep must not steal a match a live worker owns.
	require.NoError(t, runner.Recover(ctx))
	assert.Equal(t, 1, runner.ActiveCount())

	cancel()
	require.Eventually(t, func() bool { return runner.ActiveCount() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestRunnerWatchdogKillsStalledWorker(t *testing.T) {
	fx := newMatchFixture(t, models.MatchTypeLeague)
	bus := events.NewBus()

	runner := NewRunner(fx.store, bus, quietLogger(), RunnerConfig{MaxConcurrent: 4, TickPeriod: time.Hour, StallTimeout: 30 * time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, runner.StartMatch(ctx, fx.game.ID))
	require.Equal(t, 1, runner.ActiveCount())

	// From a minute in the future the worker looks dead.
	runner.killStalled(time.Now().Add(time.Minute))

	require.Eventually(t, func() bool { return runner.ActiveCount() == 0 }, 5*time.Second, 10*time.Millisecond)

	// The orphan stays claimed so the next sweep can pick it up.
	game, err := fx.store.Games().Get(ctx, fx.game.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GameStatusInProgress, game.Status)
}

func TestRunnerLiveSnapshots(t *testing.T) {
	fx := newMatchFixture(t, models.MatchTypeLeague)
	bus := events.NewBus()

	runner := NewRunner(fx.store, bus, quietLogger(), RunnerConfig{MaxConcurrent: 4, TickPeriod: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, ok := runner.Live(fx.game.ID)
	assert.False(t, ok)
	assert.Empty(t, runner.ListLive())

	require.NoError(t, runner.StartMatch(ctx, fx.game.ID))

	state, ok := runner.Live(fx.game.ID)
	require.True(t, ok)
	assert.Equal(t, fx.game.ID, state.MatchID)
	assert.Equal(t, fx.game.HomeTeamID, state.HomeTeamID)

	live := runner.ListLive()
	require.Len(t, live, 1)
	assert.Equal(t, fx.game.ID, live[0].MatchID)

	cancel()
	require.Eventually(t, func() bool { return runner.ActiveCount() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestRunnerDrainStopsAdmissionAndWaits(t *testing.T) {
	fx := newMatchFixture(t, models.MatchTypeLeague)
	second := addScheduledGame(t, fx)
	bus := events.NewBus()

	runner := NewRunner(fx.store, bus, quietLogger(), RunnerConfig{MaxConcurrent: 4, TickPeriod: time.Hour})
	ctx := context.Background()

	require.NoError(t, runner.StartMatch(ctx, fx.game.ID))
	runner.Drain(50 * time.Millisecond)
	assert.Zero(t, runner.ActiveCount())

	// A drained runner refuses new matches.
	err := runner.StartMatch(ctx, second.ID)
	assert.Error(t, err)
	assert.Zero(t, runner.ActiveCount())
}
