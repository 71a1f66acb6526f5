package sim

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jimmy058910/replitballgame-sub015/internal/events"
	"github.com/jimmy058910/replitballgame-sub015/internal/models"
	"github.com/jimmy058910/replitballgame-sub015/internal/store"
)

// ErrAtCapacity means the worker pool is full; the scheduler sweep retries
// the match on its next tick.
var ErrAtCapacity = errors.New("sim: match worker pool at capacity")

// RunnerConfig sizes the worker pool.
type RunnerConfig struct {
	MaxConcurrent int
	TickPeriod    time.Duration
	StallTimeout  time.Duration
}

// Runner owns every live match worker. One worker simulates one match; the
// pool is capped, stalled workers are killed by the watchdog, and orphaned
// IN_PROGRESS games are picked back up by Recover.
type Runner struct {
	store *store.Store
	bus   *events.Bus
	log   *logrus.Logger
	cfg   RunnerConfig

	mu       sync.Mutex
	workers  map[uint]*matchWorker
	draining bool
	wg       sync.WaitGroup
	sem      chan struct{}
}

type matchWorker struct {
	id     string
	engine *Engine
	cancel context.CancelFunc
}

func NewRunner(st *store.Store, bus *events.Bus, log *logrus.Logger, cfg RunnerConfig) *Runner {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 64
	}
	if cfg.StallTimeout <= 0 {
		cfg.StallTimeout = 30 * time.Second
	}
	return &Runner{
		store:   st,
		bus:     bus,
		log:     log,
		cfg:     cfg,
		workers: make(map[uint]*matchWorker),
		sem:     make(chan struct{}, cfg.MaxConcurrent),
	}
}

// Start launches the watchdog. Match workers come and go with StartMatch
// and Recover; the watchdog only reaps the ones that stop ticking.
func (r *Runner) Start(ctx context.Context) {
	interval := r.cfg.StallTimeout / 3
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.killStalled(time.Now())
			}
		}
	}()
}

// StartMatch claims a scheduled game and spawns its worker. The CAS start
// is the ownership handshake: whoever flips SCHEDULED to IN_PROGRESS owns
// the match, so a double sweep cannot start it twice.
func (r *Runner) StartMatch(ctx context.Context, gameID uint) error {
	if err := r.store.Games().CASStatus(ctx, gameID, models.GameStatusScheduled, models.GameStatusInProgress); err != nil {
		return err
	}

	game, err := r.store.Games().GetWithTeams(ctx, gameID)
	if err != nil {
		return err
	}
	engine, err := r.buildEngine(ctx, game, nil)
	if err != nil {
		return err
	}
	if err := r.launch(ctx, game, engine); err != nil {
		return err
	}

	PublishLifecycle(r.bus, events.TypeMatchStarted, LifecyclePayload{
		MatchID:      game.ID,
		MatchType:    game.MatchType,
		Status:       models.GameStatusInProgress,
		HomeTeamID:   game.HomeTeamID,
		AwayTeamID:   game.AwayTeamID,
		TournamentID: game.TournamentID,
		Round:        game.TournamentRound,
	})
	return nil
}

// Recover sweeps IN_PROGRESS games that no live worker owns: resume from
// the last checkpoint when one exists, otherwise force-complete with the
// last persisted score and flag the game as recovered.
func (r *Runner) Recover(ctx context.Context) error {
	games, err := r.store.Games().ListInProgress(ctx)
	if err != nil {
		return err
	}

	var firstErr error
	for i := range games {
		game := games[i]
		if r.owns(game.ID) {
			continue
		}
		if err := r.recoverOne(ctx, game.ID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Runner) recoverOne(ctx context.Context, gameID uint) error {
	game, err := r.store.Games().GetWithTeams(ctx, gameID)
	if err != nil {
		return err
	}

	if len(game.Checkpoint) == 0 || game.CheckpointTick <= 0 {
		return r.forceComplete(ctx, game)
	}

	engine, err := r.buildEngine(ctx, game, game.Checkpoint)
	if err != nil {
		r.log.WithError(err).WithField("match_id", game.ID).Warn("Checkpoint resume failed, force-completing")
		return r.forceComplete(ctx, game)
	}
	if err := r.launch(ctx, game, engine); err != nil {
		return err
	}
	r.log.WithFields(logrus.Fields{
		"match_id": game.ID,
		"tick":     game.CheckpointTick,
	}).Info("Resumed orphaned match from checkpoint")
	return nil
}

// forceComplete finishes an unresumable game with its last persisted score.
// Same transaction shape as the engine's completion hook, plus the
// recovered flag.
func (r *Runner) forceComplete(ctx context.Context, game *models.Game) error {
	err := store.RetryConflict(ctx, func() error {
		return r.store.WithTx(ctx, func(tx *store.Store) error {
			if err := tx.Games().FinalizeScore(ctx, game.ID, game.HomeScore, game.AwayScore, game.GameTime, true); err != nil {
				return err
			}
			if game.MatchType == models.MatchTypeLeague {
				return applyLeagueRecords(ctx, tx, game.HomeTeamID, game.AwayTeamID, game.HomeScore, game.AwayScore)
			}
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil
		}
		return fmt.Errorf("force-complete game %d: %w", game.ID, err)
	}

	PublishLifecycle(r.bus, events.TypeMatchCompleted, LifecyclePayload{
		MatchID:      game.ID,
		MatchType:    game.MatchType,
		Status:       models.GameStatusCompleted,
		HomeTeamID:   game.HomeTeamID,
		AwayTeamID:   game.AwayTeamID,
		HomeScore:    game.HomeScore,
		AwayScore:    game.AwayScore,
		TournamentID: game.TournamentID,
		Round:        game.TournamentRound,
		Recovered:    true,
	})
	r.log.WithFields(logrus.Fields{
		"match_id":  game.ID,
		"game_time": game.GameTime,
	}).Warn("Force-completed unrecoverable match")
	return nil
}

func (r *Runner) buildEngine(ctx context.Context, game *models.Game, checkpoint []byte) (*Engine, error) {
	homeRoster, err := r.store.Players().ListActiveByTeam(ctx, game.HomeTeamID)
	if err != nil {
		return nil, err
	}
	awayRoster, err := r.store.Players().ListActiveByTeam(ctx, game.AwayTeamID)
	if err != nil {
		return nil, err
	}
	if checkpoint != nil {
		return NewEngineFromCheckpoint(game, homeRoster, awayRoster, r.bus, r.store, r.log, r.cfg.TickPeriod, checkpoint)
	}
	return NewEngine(game, homeRoster, awayRoster, r.bus, r.store, r.log, r.cfg.TickPeriod)
}

// launch registers the worker and starts its goroutine. Pool admission is
// non-blocking: a full pool rejects with ErrAtCapacity and the game stays
// IN_PROGRESS for the next recovery sweep.
func (r *Runner) launch(parent context.Context, game *models.Game, engine *Engine) error {
	select {
	case r.sem <- struct{}{}:
	default:
		return ErrAtCapacity
	}

	r.mu.Lock()
	if r.draining {
		r.mu.Unlock()
		<-r.sem
		return fmt.Errorf("sim: runner is draining")
	}
	if _, exists := r.workers[game.ID]; exists {
		r.mu.Unlock()
		<-r.sem
		return fmt.Errorf("sim: match %d already has a worker", game.ID)
	}
	ctx, cancel := context.WithCancel(parent)
	worker := &matchWorker{id: uuid.NewString(), engine: engine, cancel: cancel}
	r.workers[game.ID] = worker
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer func() {
			r.mu.Lock()
			delete(r.workers, game.ID)
			r.mu.Unlock()
			<-r.sem
			r.wg.Done()
			cancel()
		}()

		if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.log.WithError(err).WithFields(logrus.Fields{
				"match_id":  game.ID,
				"worker_id": worker.id,
			}).Error("Match worker stopped before completion")
		}
	}()
	return nil
}

// killStalled cancels workers that have not produced a tick within the
// stall timeout. The orphaned game is picked up by the next Recover sweep.
func (r *Runner) killStalled(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for matchID, worker := range r.workers {
		if now.Sub(worker.engine.LastTickAt()) > r.cfg.StallTimeout {
			r.log.WithFields(logrus.Fields{
				"match_id":  matchID,
				"worker_id": worker.id,
			}).Warn("Match worker stalled, killing")
			worker.cancel()
		}
	}
}

// owns reports whether a live worker holds the match.
func (r *Runner) owns(matchID uint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.workers[matchID]
	return ok
}

// Live returns the snapshot of one running match.
func (r *Runner) Live(matchID uint) (LiveMatchState, bool) {
	r.mu.Lock()
	worker, ok := r.workers[matchID]
	r.mu.Unlock()
	if !ok {
		return LiveMatchState{}, false
	}
	return worker.engine.Snapshot(), true
}

// ListLive snapshots every running match, ordered by match id.
func (r *Runner) ListLive() []LiveMatchState {
	r.mu.Lock()
	engines := make([]*Engine, 0, len(r.workers))
	for _, worker := range r.workers {
		engines = append(engines, worker.engine)
	}
	r.mu.Unlock()

	states := make([]LiveMatchState, 0, len(engines))
	for _, engine := range engines {
		states = append(states, engine.Snapshot())
	}
	sort.Slice(states, func(i, j int) bool { return states[i].MatchID < states[j].MatchID })
	return states
}

// ActiveCount reports how many match workers are running.
func (r *Runner) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workers)
}

// Drain stops admission, waits up to grace for workers to finish on their
// own, then cancels the stragglers. Cancelled matches stay IN_PROGRESS with
// their last checkpoint and resume on the next start.
func (r *Runner) Drain(grace time.Duration) {
	r.mu.Lock()
	r.draining = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-time.After(grace):
	}

	r.mu.Lock()
	for _, worker := range r.workers {
		worker.cancel()
	}
	r.mu.Unlock()
	<-done
}
