package season

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/jimmy058910/replitballgame-sub015/internal/clock"
	"github.com/jimmy058910/replitballgame-sub015/internal/events"
	"github.com/jimmy058910/replitballgame-sub015/internal/models"
	"github.com/jimmy058910/replitballgame-sub015/internal/sim"
	"github.com/jimmy058910/replitballgame-sub015/internal/store"
	"github.com/jimmy058910/replitballgame-sub015/pkg/config"
)

// Scheduler step names, stable because they key failure counters and the
// at-most-once marker rows.
const (
	stepResolveDay  = "resolve_day"
	stepStandings   = "standings_rebuild"
	stepProgression = "daily_progression"
	stepDailyCups   = "daily_cups"
	stepStartSweep  = "tournament_start_sweep"
	stepClassic     = "mid_season_classic"
	stepFixtures    = "league_fixtures"
	stepMatchSweep  = "match_start_sweep"
	stepAging       = "offseason_aging"
)

// MatchStarter is the slice of the match runner the scheduler drives.
type MatchStarter interface {
	StartMatch(ctx context.Context, gameID uint) error
	Recover(ctx context.Context) error
}

// CupOperator is the slice of the tournament engine the scheduler drives.
type CupOperator interface {
	CreateDailyCup(ctx context.Context, seasonID uint, division, gameDay int, effectiveDate time.Time) (*models.Tournament, error)
	CreateMidSeasonClassic(ctx context.Context, seasonID uint, gameDay int, effectiveDate time.Time) (*models.Tournament, error)
	StartDue(ctx context.Context) error
}

// PhasePayload rides season.phase on rollovers.
type PhasePayload struct {
	SeasonID    uint   `json:"seasonId"`
	Day         int    `json:"day"`
	PreviousDay int    `json:"previousDay"`
	Phase       string `json:"phase"`
}

// Status is the scheduler's health snapshot.
type Status struct {
	Running      bool              `json:"running"`
	LastTickAt   time.Time         `json:"last_tick_at,omitempty"`
	CurrentDay   int               `json:"current_day"`
	Phase        string            `json:"phase"`
	StepFailures map[string]uint64 `json:"step_failures,omitempty"`
}

// Coordinator owns the season calendar. It ticks every minute plus an
// aligned tick at the 3 AM Eastern boundary, and runs the daily pipeline:
// day resolution, standings rebuild on rollover, progression, cup and
// fixture creation, tournament and match start sweeps, offseason aging.
// Every step is idempotent and fails independently of the others.
type Coordinator struct {
	store  *store.Store
	bus    *events.Bus
	log    *logrus.Logger
	cfg    *config.Config
	runner MatchStarter
	cups   CupOperator

	nowFn func() time.Time
	dice  Dice

	cron      *cron.Cron
	mu        sync.Mutex
	isRunning bool

	tickMu sync.Mutex

	statusMu sync.Mutex
	lastTick time.Time
	lastDay  int
	lastPh   clock.Phase
	failures map[string]uint64
}

func NewCoordinator(st *store.Store, bus *events.Bus, log *logrus.Logger, cfg *config.Config, runner MatchStarter, cups CupOperator) *Coordinator {
	return &Coordinator{
		store:    st,
		bus:      bus,
		log:      log,
		cfg:      cfg,
		runner:   runner,
		cups:     cups,
		nowFn:    time.Now,
		dice:     SystemDice(),
		failures: make(map[string]uint64),
	}
}

// Start schedules the minute cadence and the boundary tick and runs one
// immediate pass, so a restarted process catches up without waiting.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isRunning {
		return fmt.Errorf("season coordinator is already running")
	}

	c.cron = cron.New(cron.WithLocation(clock.Location()))
	if _, err := c.cron.AddFunc("@every 60s", func() { c.Tick(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule season tick: %w", err)
	}
	if _, err := c.cron.AddFunc("0 3 * * *", func() { c.Tick(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule boundary tick: %w", err)
	}
	c.cron.Start()
	c.isRunning = true

	go c.Tick(ctx)

	c.log.Info("Season coordinator started")
	return nil
}

// Stop halts the schedules and waits for a running tick to finish.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isRunning {
		return
	}

	stopped := c.cron.Stop()
	<-stopped.Done()

	c.isRunning = false
	c.log.Info("Season coordinator stopped")
}

// Status reports the last observed day and per-step failure counts.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	running := c.isRunning
	c.mu.Unlock()

	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	failures := make(map[string]uint64, len(c.failures))
	for k, v := range c.failures {
		failures[k] = v
	}
	return Status{
		Running:      running,
		LastTickAt:   c.lastTick,
		CurrentDay:   c.lastDay,
		Phase:        string(c.lastPh),
		StepFailures: failures,
	}
}

// Tick runs one scheduler pass. Overlapping passes collapse: if one is
// already running the new one is skipped, not queued.
func (c *Coordinator) Tick(ctx context.Context) {
	if !c.tickMu.TryLock() {
		return
	}
	defer c.tickMu.Unlock()

	now := c.nowFn()

	season, err := c.store.Seasons().Active(ctx)
	if err != nil {
		c.recordFailure(stepResolveDay, err)
		c.log.WithError(err).Error("No active season, scheduler pass skipped")
		return
	}

	day, phase, _ := clock.Resolve(now, season.StartDate)
	prevDay := season.CurrentDay
	rolled := false
	if day != prevDay {
		err := c.store.Seasons().CASDay(ctx, season.ID, prevDay, day, string(phase))
		switch {
		case err == nil:
			rolled = true
			c.publishRollover(season.ID, prevDay, day, phase)
			c.log.WithFields(logrus.Fields{
				"from_day": prevDay,
				"to_day":   day,
				"phase":    phase,
			}).Info("Season day advanced")
		case errors.Is(err, store.ErrConflict):
			// Another scheduler claimed the rollover first.
		default:
			c.recordFailure(stepResolveDay, err)
		}
	}

	effDate := clock.EffectiveDate(now)
	dateKey := effDate.Format("2006-01-02")

	if rolled {
		c.step(stepStandings, func() error {
			corrected, err := RebuildStandings(ctx, c.store, c.log, season.ID)
			if corrected > 0 {
				c.log.WithField("corrected", corrected).Warn("Standings rebuild corrected drifted rows")
			}
			return err
		})
	}

	c.step(stepProgression, func() error {
		claimed, err := c.store.Markers().Claim(ctx, stepProgression, dateKey, season.ID)
		if err != nil || !claimed {
			return err
		}
		improved, raised, err := RunDailyProgression(ctx, c.store, c.cfg, c.dice, c.log)
		c.log.WithFields(logrus.Fields{
			"players_improved":  improved,
			"attributes_raised": raised,
		}).Info("Daily progression applied")
		return err
	})

	if phase == clock.PhaseRegular {
		c.step(stepDailyCups, func() error {
			var firstErr error
			for _, division := range c.cfg.DailyCupDivisions {
				if _, err := c.cups.CreateDailyCup(ctx, season.ID, division, day, effDate); err != nil && firstErr == nil {
					firstErr = err
				}
			}
			return firstErr
		})

		if day == c.cfg.MidSeasonCupDay {
			c.step(stepClassic, func() error {
				_, err := c.cups.CreateMidSeasonClassic(ctx, season.ID, day, effDate)
				return err
			})
		}

		c.step(stepFixtures, func() error {
			claimed, err := c.store.Markers().Claim(ctx, stepFixtures, dateKey, season.ID)
			if err != nil || !claimed {
				return err
			}
			created, err := GenerateDailyFixtures(ctx, c.store, c.cfg, c.log, season.ID, day, effDate)
			if created > 0 {
				c.log.WithFields(logrus.Fields{
					"game_day": day,
					"games":    created,
				}).Info("League fixtures scheduled")
			}
			return err
		})
	}

	c.step(stepStartSweep, func() error {
		return c.cups.StartDue(ctx)
	})

	c.step(stepMatchSweep, func() error {
		if err := c.runner.Recover(ctx); err != nil {
			return err
		}
		return c.startDueMatches(ctx, now)
	})

	if day == clock.SeasonLengthDays {
		c.step(stepAging, func() error {
			claimed, err := c.store.Markers().Claim(ctx, stepAging, dateKey, season.ID)
			if err != nil || !claimed {
				return err
			}
			out, err := RunOffseasonAging(ctx, c.store, c.cfg, c.dice, c.log)
			c.log.WithFields(logrus.Fields{
				"aged":     out.Aged,
				"declined": out.Declined,
				"retired":  out.Retired,
			}).Info("Offseason aging applied")
			return err
		})
	}

	c.statusMu.Lock()
	c.lastTick = now
	c.lastDay = day
	c.lastPh = phase
	c.statusMu.Unlock()
}

// startDueMatches hands every due scheduled game to the runner. A full
// runner ends the sweep; the games stay scheduled for the next pass.
func (c *Coordinator) startDueMatches(ctx context.Context, now time.Time) error {
	due, err := c.store.Games().ListDueScheduled(ctx, now)
	if err != nil {
		return err
	}

	var firstErr error
	for i := range due {
		err := c.runner.StartMatch(ctx, due[i].ID)
		switch {
		case err == nil:
		case errors.Is(err, sim.ErrAtCapacity):
			c.log.WithField("pending", len(due)-i).Warn("Match runner at capacity, deferring remaining starts")
			return firstErr
		case errors.Is(err, store.ErrConflict):
			// Another scheduler or a tournament start already owns it.
		default:
			c.log.WithError(err).WithField("match_id", due[i].ID).Error("Could not start scheduled match")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (c *Coordinator) publishRollover(seasonID uint, prevDay, day int, phase clock.Phase) {
	payload := PhasePayload{
		SeasonID:    seasonID,
		Day:         day,
		PreviousDay: prevDay,
		Phase:       string(phase),
	}
	c.bus.Publish(events.SeasonPhaseTopic, events.Event{Type: events.TypeDayAdvanced, Payload: payload})
	if clock.PhaseForDay(prevDay) != phase {
		c.bus.Publish(events.SeasonPhaseTopic, events.Event{Type: events.TypePhaseChanged, Payload: payload})
	}
}

// step runs one scheduler stage, converting errors and panics into failure
// counters so the rest of the pass always runs.
func (c *Coordinator) step(name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			c.recordFailure(name, fmt.Errorf("panic: %v", r))
		}
	}()
	if err := fn(); err != nil {
		c.recordFailure(name, err)
	}
}

func (c *Coordinator) recordFailure(step string, err error) {
	c.statusMu.Lock()
	c.failures[step]++
	c.statusMu.Unlock()
	c.log.WithError(err).WithField("step", step).Error("Scheduler step failed")
}
