package sim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/jimmy058910/replitballgame-sub015/internal/events"
	"github.com/jimmy058910/replitballgame-sub015/internal/models"
	"github.com/jimmy058910/replitballgame-sub015/internal/store"
)

const (
	kFatigue        = 0.06
	maxMatchStamina = 100.0
	recentEventsCap = 32
)

// Engine simulates one match tick by tick. All outcomes derive from a
// match-id-seeded RNG, so the same fixture replays identically.
type Engine struct {
	game *models.Game
	home sideState
	away sideState

	bus     *events.Bus
	store   *store.Store
	log     *logrus.Entry
	limiter *rate.Limiter

	duration int
	halftime int
	rng      *rand.Rand

	mu         sync.Mutex
	tick       int
	homeScore  int
	awayScore  int
	possession uint
	carrierID  *uint
	fieldPos   int
	stamina    map[uint]float64
	meter      *revenueMeter
	snapshots  []RevenueSnapshot
	recent     []MatchEvent
	opening    uint
	resumed    bool

	lastTickNano atomic.Int64
}

type sideState struct {
	team    *models.Team
	players []models.Player
}

func (s sideState) pick(rng *rand.Rand) *models.Player {
	return &s.players[rng.Intn(len(s.players))]
}

// NewEngine builds a fresh engine for a scheduled game. The game must carry
// preloaded team rows; rosters must not be empty.
func NewEngine(game *models.Game, homeRoster, awayRoster []models.Player, bus *events.Bus, st *store.Store, log *logrus.Logger, tickPeriod time.Duration) (*Engine, error) {
	e, err := newEngineBase(game, homeRoster, awayRoster, bus, st, log, tickPeriod)
	if err != nil {
		return nil, err
	}

	e.rng = rand.New(rand.NewSource(int64(game.ID)))
	e.fieldPos = 50
	e.stamina = make(map[uint]float64, len(e.home.players)+len(e.away.players))
	for _, p := range e.home.players {
		e.stamina[p.ID] = maxMatchStamina
	}
	for _, p := range e.away.players {
		e.stamina[p.ID] = maxMatchStamina
	}

	// Opening possession by fair coin.
	if e.rng.Float64() < 0.5 {
		e.possession = game.HomeTeamID
	} else {
		e.possession = game.AwayTeamID
	}
	e.opening = e.possession
	e.meter = newRevenueMeter(game.HomeTeam.Division, e.duration)
	return e, nil
}

// NewEngineFromCheckpoint rebuilds an engine from the persisted resume blob
// so an orphaned match continues from its last checkpoint.
func NewEngineFromCheckpoint(game *models.Game, homeRoster, awayRoster []models.Player, bus *events.Bus, st *store.Store, log *logrus.Logger, tickPeriod time.Duration, blob []byte) (*Engine, error) {
	e, err := newEngineBase(game, homeRoster, awayRoster, bus, st, log, tickPeriod)
	if err != nil {
		return nil, err
	}

	var cp checkpointState
	if err := json.Unmarshal(blob, &cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint for game %d: %w", game.ID, err)
	}
	if cp.Tick <= 0 || cp.Tick >= e.duration {
		return nil, fmt.Errorf("checkpoint tick %d out of range for game %d", cp.Tick, game.ID)
	}

	// A fresh stream re-seeded past the checkpoint keeps the resumed run
	// deterministic without replaying the first half of the match.
	e.rng = rand.New(rand.NewSource(int64(game.ID) + int64(cp.Tick)<<20))
	e.tick = cp.Tick
	e.homeScore = cp.HomeScore
	e.awayScore = cp.AwayScore
	e.possession = cp.PossessionTeamID
	e.carrierID = cp.BallCarrierID
	e.fieldPos = cp.FieldPos
	e.stamina = cp.Stamina
	if e.stamina == nil {
		e.stamina = make(map[uint]float64)
	}
	e.opening = cp.OpeningPossession
	e.meter = newRevenueMeter(game.HomeTeam.Division, e.duration)
	e.meter.restore(cp.Revenue)
	e.resumed = true
	return e, nil
}

func newEngineBase(game *models.Game, homeRoster, awayRoster []models.Player, bus *events.Bus, st *store.Store, log *logrus.Logger, tickPeriod time.Duration) (*Engine, error) {
	if game.HomeTeam == nil || game.AwayTeam == nil {
		return nil, fmt.Errorf("game %d is missing preloaded teams", game.ID)
	}
	if len(homeRoster) == 0 || len(awayRoster) == 0 {
		return nil, fmt.Errorf("game %d has an empty roster", game.ID)
	}

	e := &Engine{
		game:     game,
		home:     sideState{team: game.HomeTeam, players: fieldSquad(homeRoster)},
		away:     sideState{team: game.AwayTeam, players: fieldSquad(awayRoster)},
		bus:      bus,
		store:    st,
		log:      log.WithField("match_id", game.ID),
		duration: MatchDuration(game.MatchType),
	}
	e.halftime = e.duration / 2
	if tickPeriod > 0 {
		e.limiter = rate.NewLimiter(rate.Every(tickPeriod), 1)
	}
	e.lastTickNano.Store(time.Now().UnixNano())
	return e, nil
}

// fieldSquad keeps the first six players; rosters arrive strongest-first.
func fieldSquad(roster []models.Player) []models.Player {
	if len(roster) > PlayersPerSide {
		return roster[:PlayersPerSide]
	}
	return roster
}

// MatchID identifies the game this engine owns.
func (e *Engine) MatchID() uint {
	return e.game.ID
}

// LastTickAt is the watchdog heartbeat.
func (e *Engine) LastTickAt() time.Time {
	return time.Unix(0, e.lastTickNano.Load())
}

// Run drives the match to completion. The producer advances one sim-second
// per tick period; subscribers pace themselves. Cancelling the context stops
// the loop between ticks with no partial writes.
func (e *Engine) Run(ctx context.Context) error {
	start := e.tick + 1
	for t := start; t <= e.duration; t++ {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return err
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		env := e.step(t)
		e.publishTick(env)
		e.lastTickNano.Store(time.Now().UnixNano())

		if t%CheckpointEveryTicks == 0 && t < e.duration {
			if err := e.writeCheckpoint(ctx, t); err != nil {
				if errors.Is(err, store.ErrConflict) {
					// Another writer owns this game now; stop producing.
					return err
				}
				e.log.WithError(err).WithField("tick", t).Warn("Checkpoint write failed")
			}
		}
	}
	return e.complete(ctx)
}

// step advances the state machine one tick and returns the bus envelope.
func (e *Engine) step(t int) TickEnvelope {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.tick = t
	e.decayStamina()

	var ev MatchEvent
	switch {
	case t == e.halftime:
		ev = e.newEvent(EventHalftime, 1, nil)
		e.flipSides()
	case t == e.duration:
		ev = e.newEvent(EventFinalWhistle, 1, nil)
	default:
		ev = e.resolveAction()
	}

	e.meter.accrue()
	e.recordEvent(ev)

	env := TickEnvelope{
		MatchID:   e.game.ID,
		Tick:      t,
		GameTime:  t,
		HomeScore: e.homeScore,
		AwayScore: e.awayScore,
		Event:     &ev,
	}
	if t%CheckpointEveryTicks == 0 {
		snap := e.meter.snapshot(t)
		e.snapshots = append(e.snapshots, snap)
		env.Revenue = &snap
	}
	return env
}

// resolveAction plays out one possession tick. Callers hold e.mu.
func (e *Engine) resolveAction() MatchEvent {
	attacking, defending := e.sides()
	carrier := e.currentCarrier(attacking)

	items, weights := actionWeights(carrier, e.fieldPos)
	action := weightedSelect(e.rng, items, weights)

	switch action {
	case actionPass:
		return e.resolvePass(attacking, defending, carrier)
	case actionRun:
		return e.resolveRun(defending, carrier)
	case actionKick:
		return e.resolveKick(carrier)
	default:
		return e.resolveScoreAttempt(defending, carrier)
	}
}

func (e *Engine) resolvePass(attacking, defending sideState, carrier *models.Player) MatchEvent {
	target := attacking.pick(e.rng)
	for target.ID == carrier.ID && len(attacking.players) > 1 {
		target = attacking.pick(e.rng)
	}

	thrown := bernoulli(e.rng, attributeChance(carrier.Throwing)*fatigueFactor(e.stamina[carrier.ID]))
	if !thrown {
		defender := defending.pick(e.rng)
		if bernoulli(e.rng, attributeChance(defender.Agility)*0.5) {
			e.transferPossession()
			return e.newEvent(EventInterception, 1, &defender.ID)
		}
		return e.newEvent(EventPassAttempt, 2, &carrier.ID)
	}

	caught := bernoulli(e.rng, attributeChance(target.Catching)*fatigueFactor(e.stamina[target.ID]))
	if !caught {
		// Loose ball: a scrum decides possession, leadership tilts it.
		defender := defending.pick(e.rng)
		keepChance := 0.5 + float64(carrier.Leadership-defender.Leadership)/160.0
		if !bernoulli(e.rng, keepChance) {
			e.transferPossession()
		}
		return e.newEvent(EventScrum, 2, nil)
	}

	e.fieldPos = clampFieldPos(e.fieldPos + 5 + e.rng.Intn(10))
	e.carrierID = &target.ID
	if e.fieldPos >= 80 {
		return e.newEvent(EventSuccessfulPassScoring, 2, &target.ID)
	}
	return e.newEvent(EventRegularPass, 3, &target.ID)
}

func (e *Engine) resolveRun(defending sideState, carrier *models.Player) MatchEvent {
	evaded := bernoulli(e.rng, attributeChance(carrier.Speed)*fatigueFactor(e.stamina[carrier.ID]))
	if evaded {
		e.fieldPos = clampFieldPos(e.fieldPos + 3 + e.rng.Intn(8))
		return e.newEvent(EventStandardMovement, 3, &carrier.ID)
	}

	if bernoulli(e.rng, attributeChance(carrier.Power)*0.35) {
		e.fieldPos = clampFieldPos(e.fieldPos + 1 + e.rng.Intn(3))
		return e.newEvent(EventRoutinePlay, 3, &carrier.ID)
	}

	// Brought down. Rarely the hit injures the carrier.
	tackler := defending.pick(e.rng)
	if bernoulli(e.rng, 0.02) {
		e.transferPossession()
		return e.newEvent(EventInjury, 1, &carrier.ID)
	}
	e.transferPossession()
	return e.newEvent(EventMajorTackle, 1, &tackler.ID)
}

func (e *Engine) resolveKick(carrier *models.Player) MatchEvent {
	good := bernoulli(e.rng, attributeChance(carrier.Kicking))
	if !good {
		e.transferPossession()
		return e.newEvent(EventDefensiveStop, 2, &carrier.ID)
	}

	distance := 15 + int(float64(carrier.Kicking)*0.8) + e.rng.Intn(10)
	landing := clampFieldPos(e.fieldPos + distance)
	e.fieldPos = landing
	e.transferPossession()
	return e.newEvent(EventRoutinePlay, 3, &carrier.ID)
}

func (e *Engine) resolveScoreAttempt(defending sideState, carrier *models.Player) MatchEvent {
	positionFactor := 0.3 + 0.7*float64(e.fieldPos)/100.0
	skill := attributeChance((carrier.Kicking + carrier.Agility) / 2)
	if bernoulli(e.rng, skill*fatigueFactor(e.stamina[carrier.ID])*positionFactor) {
		if e.possession == e.game.HomeTeamID {
			e.homeScore++
		} else {
			e.awayScore++
		}
		ev := e.newEvent(EventScore, 1, &carrier.ID)
		e.resetAfterScore()
		return ev
	}

	_ = defending
	e.transferPossession()
	return e.newEvent(EventScoreAttempt, 1, &carrier.ID)
}

// sides returns (attacking, defending) for the current possession.
func (e *Engine) sides() (sideState, sideState) {
	if e.possession == e.game.HomeTeamID {
		return e.home, e.away
	}
	return e.away, e.home
}

func (e *Engine) currentCarrier(attacking sideState) *models.Player {
	if e.carrierID != nil {
		for i := range attacking.players {
			if attacking.players[i].ID == *e.carrierID {
				return &attacking.players[i]
			}
		}
	}
	carrier := attacking.pick(e.rng)
	e.carrierID = &carrier.ID
	return carrier
}

// transferPossession hands the ball over and mirrors the field position.
func (e *Engine) transferPossession() {
	if e.possession == e.game.HomeTeamID {
		e.possession = e.game.AwayTeamID
	} else {
		e.possession = e.game.HomeTeamID
	}
	e.fieldPos = clampFieldPos(100 - e.fieldPos)
	e.carrierID = nil
}

// resetAfterScore gives the ball to the conceding team at midfield.
func (e *Engine) resetAfterScore() {
	if e.possession == e.game.HomeTeamID {
		e.possession = e.game.AwayTeamID
	} else {
		e.possession = e.game.HomeTeamID
	}
	e.fieldPos = 50
	e.carrierID = nil
}

// flipSides starts the second half: the team that did not open gets the
// ball at midfield.
func (e *Engine) flipSides() {
	if e.opening == e.game.HomeTeamID {
		e.possession = e.game.AwayTeamID
	} else {
		e.possession = e.game.HomeTeamID
	}
	e.fieldPos = 50
	e.carrierID = nil
}

func (e *Engine) decayStamina() {
	for _, p := range e.home.players {
		e.applyFatigue(p)
	}
	for _, p := range e.away.players {
		e.applyFatigue(p)
	}
}

func (e *Engine) applyFatigue(p models.Player) {
	loss := kFatigue * (1 - float64(p.Stamina)/float64(models.AttributeMax))
	s := e.stamina[p.ID] - loss
	if s < 0 {
		s = 0
	}
	e.stamina[p.ID] = s
}

func (e *Engine) newEvent(eventType string, priority int, actor *uint) MatchEvent {
	return MatchEvent{
		Type:          eventType,
		Priority:      priority,
		ActorPlayerID: actor,
		FieldPos:      e.fieldPos,
		Tick:          e.tick,
		Timestamp:     time.Now().UTC(),
	}
}

func (e *Engine) recordEvent(ev MatchEvent) {
	e.recent = append(e.recent, ev)
	if len(e.recent) > recentEventsCap {
		e.recent = e.recent[len(e.recent)-recentEventsCap:]
	}
}

func (e *Engine) publishTick(env TickEnvelope) {
	e.bus.Publish(events.MatchTickTopic(e.game.ID), events.Event{
		Type:    events.TypeMatchTick,
		Payload: env,
	})
}

func (e *Engine) writeCheckpoint(ctx context.Context, tick int) error {
	e.mu.Lock()
	cp := checkpointState{
		Tick:              tick,
		HomeScore:         e.homeScore,
		AwayScore:         e.awayScore,
		PossessionTeamID:  e.possession,
		BallCarrierID:     e.carrierID,
		FieldPos:          e.fieldPos,
		Stamina:           e.stamina,
		Revenue:           e.meter.totals,
		OpeningPossession: e.opening,
	}
	home, away := e.homeScore, e.awayScore
	e.mu.Unlock()

	blob, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	return e.store.Games().SaveCheckpoint(ctx, e.game.ID, tick, home, away, blob)
}

// complete runs the completion hook: one transaction that finalizes the
// score and, for league games, applies both team records under CAS.
func (e *Engine) complete(ctx context.Context) error {
	e.mu.Lock()
	home, away := e.homeScore, e.awayScore
	e.mu.Unlock()

	err := store.RetryConflict(ctx, func() error {
		return e.store.WithTx(ctx, func(tx *store.Store) error {
			if err := tx.Games().FinalizeScore(ctx, e.game.ID, home, away, e.duration, false); err != nil {
				return err
			}
			if e.game.MatchType == models.MatchTypeLeague {
				return applyLeagueRecords(ctx, tx, e.game.HomeTeamID, e.game.AwayTeamID, home, away)
			}
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Someone already completed this game; the first write won.
			e.log.Info("Completion already applied elsewhere")
			return nil
		}
		return fmt.Errorf("complete game %d: %w", e.game.ID, err)
	}

	// The checkpoint is dead weight once the final score is durable.
	if err := e.store.Games().ClearCheckpoint(ctx, e.game.ID); err != nil {
		e.log.WithError(err).Warn("Could not clear checkpoint after completion")
	}

	PublishLifecycle(e.bus, events.TypeMatchCompleted, LifecyclePayload{
		MatchID:      e.game.ID,
		MatchType:    e.game.MatchType,
		Status:       models.GameStatusCompleted,
		HomeTeamID:   e.game.HomeTeamID,
		AwayTeamID:   e.game.AwayTeamID,
		HomeScore:    home,
		AwayScore:    away,
		TournamentID: e.game.TournamentID,
		Round:        e.game.TournamentRound,
	})
	e.log.WithFields(logrus.Fields{
		"home_score": home,
		"away_score": away,
	}).Info("Match completed")
	return nil
}

// applyLeagueRecords folds a final score into both team rows.
func applyLeagueRecords(ctx context.Context, tx *store.Store, homeID, awayID uint, homeScore, awayScore int) error {
	homeTeam, err := tx.Teams().Get(ctx, homeID)
	if err != nil {
		return err
	}
	if err := tx.Teams().CASRecord(ctx, homeID, homeTeam.Record(), homeTeam.Record().WithResult(homeScore, awayScore)); err != nil {
		return err
	}

	awayTeam, err := tx.Teams().Get(ctx, awayID)
	if err != nil {
		return err
	}
	return tx.Teams().CASRecord(ctx, awayID, awayTeam.Record(), awayTeam.Record().WithResult(awayScore, homeScore))
}

// PublishLifecycle fans a lifecycle change out to the per-match topic and
// the aggregate topic the tournament engine listens on.
func PublishLifecycle(bus *events.Bus, eventType string, payload LifecyclePayload) {
	ev := events.Event{Type: eventType, Payload: payload}
	bus.Publish(events.MatchLifecycleTopic(payload.MatchID), ev)
	bus.Publish(events.MatchLifecycleAllTopic, ev)
}

// Snapshot copies the externally visible live state.
func (e *Engine) Snapshot() LiveMatchState {
	e.mu.Lock()
	defer e.mu.Unlock()

	stamina := make(map[uint]float64, len(e.stamina))
	for id, s := range e.stamina {
		stamina[id] = s
	}
	recent := make([]MatchEvent, len(e.recent))
	copy(recent, e.recent)
	snaps := make([]RevenueSnapshot, len(e.snapshots))
	copy(snaps, e.snapshots)

	return LiveMatchState{
		MatchID:          e.game.ID,
		MatchType:        e.game.MatchType,
		Tick:             e.tick,
		HomeTeamID:       e.game.HomeTeamID,
		AwayTeamID:       e.game.AwayTeamID,
		HomeScore:        e.homeScore,
		AwayScore:        e.awayScore,
		PossessionTeamID: e.possession,
		BallCarrierID:    e.carrierID,
		FieldPos:         e.fieldPos,
		Stamina:          stamina,
		RecentEvents:     recent,
		RevenueSnapshots: snaps,
	}
}

func clampFieldPos(pos int) int {
	if pos < 0 {
		return 0
	}
	if pos > 100 {
		return 100
	}
	return pos
}
