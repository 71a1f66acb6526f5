package tournament

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jimmy058910/replitballgame-sub015/internal/events"
	"github.com/jimmy058910/replitballgame-sub015/internal/models"
	"github.com/jimmy058910/replitballgame-sub015/internal/sim"
	"github.com/jimmy058910/replitballgame-sub015/internal/store"
	"github.com/jimmy058910/replitballgame-sub015/pkg/config"
)

// FillProvider pads an underfilled bracket with AI teams. The concrete
// implementation lives in services; the engine only needs the contract.
type FillProvider interface {
	FillTeams(ctx context.Context, t *models.Tournament, needed int) ([]models.Team, error)
}

// StatePayload rides tournament.<id>.state and the aggregate mirror.
type StatePayload struct {
	TournamentID uint   `json:"tournamentId"`
	Type         string `json:"type"`
	Status       string `json:"status"`
	Round        int    `json:"round,omitempty"`
	ChampionID   uint   `json:"championId,omitempty"`
}

// Service is the tournament engine. All bracket work for one tournament is
// serialized by a per-tournament mutex; everything it decides is re-derived
// from rows, never from memory.
type Service struct {
	store *store.Store
	bus   *events.Bus
	log   *logrus.Logger
	cfg   *config.Config
	fill  FillProvider

	nowFn func() time.Time

	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

func NewService(st *store.Store, bus *events.Bus, log *logrus.Logger, cfg *config.Config, fill FillProvider) *Service {
	return &Service{
		store: st,
		bus:   bus,
		log:   log,
		cfg:   cfg,
		fill:  fill,
		nowFn: time.Now,
		locks: make(map[uint]*sync.Mutex),
	}
}

func (s *Service) lockFor(tournamentID uint) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locks[tournamentID] == nil {
		s.locks[tournamentID] = &sync.Mutex{}
	}
	return s.locks[tournamentID]
}

func (s *Service) logFor(tournamentID uint) *logrus.Entry {
	return s.log.WithField("tournament_id", tournamentID)
}

func (s *Service) publishState(eventType string, payload StatePayload) {
	ev := events.Event{Type: eventType, Payload: payload}
	s.bus.Publish(events.TournamentTopic(payload.TournamentID), ev)
	s.bus.Publish(events.TournamentStateAllTopic, ev)
}

// CreateDailyCup opens one division's cup for the given season day. Returns
// nil without error when the cup already exists.
func (s *Service) CreateDailyCup(ctx context.Context, seasonID uint, division, gameDay int, effectiveDate time.Time) (*models.Tournament, error) {
	exists, err := s.store.Tournaments().ExistsForDay(ctx, seasonID, models.TournamentTypeDailyCup, &division, gameDay)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, nil
	}

	t := DailyCupParams(s.cfg, division, effectiveDate).Model(seasonID, gameDay)
	if err := s.store.Tournaments().Create(ctx, t); err != nil {
		return nil, err
	}
	s.logFor(t.ID).WithFields(logrus.Fields{
		"division": division,
		"game_day": gameDay,
	}).Info("Daily cup registration open")
	return t, nil
}

// CreateMidSeasonClassic opens the cross-division classic. One per season;
// recreation attempts are no-ops.
func (s *Service) CreateMidSeasonClassic(ctx context.Context, seasonID uint, gameDay int, effectiveDate time.Time) (*models.Tournament, error) {
	exists, err := s.store.Tournaments().ExistsForDay(ctx, seasonID, models.TournamentTypeMidSeasonClassic, nil, gameDay)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, nil
	}

	t := ClassicParams(s.cfg, effectiveDate).Model(seasonID, gameDay)
	if err := s.store.Tournaments().Create(ctx, t); err != nil {
		return nil, err
	}
	s.logFor(t.ID).WithField("game_day", gameDay).Info("Mid-season classic registration open")
	return t, nil
}

// Enter registers a team. The fee, entry item and seat are captured in one
// transaction; losing any of those races surfaces as a NotEligibleError
// exactly like the pre-check would have reported.
func (s *Service) Enter(ctx context.Context, tournamentID, teamID uint) (*models.TournamentEntry, error) {
	t, err := s.store.Tournaments().Get(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	team, err := s.store.Teams().Get(ctx, teamID)
	if err != nil {
		return nil, err
	}
	already, err := s.store.Tournaments().HasEntry(ctx, tournamentID, teamID)
	if err != nil {
		return nil, err
	}
	count, err := s.store.Tournaments().CountEntries(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	items := 0
	if t.RequiresEntryItem {
		if items, err = s.store.Inventory().Quantity(ctx, teamID, models.ItemTournamentEntry); err != nil {
			return nil, err
		}
	}

	if reason := CheckEligibility(EntryContext{
		Team:       team,
		Tournament: t,
		Now:        s.nowFn(),
		AlreadyIn:  already,
		EntryCount: count,
		EntryItems: items,
	}); reason != nil {
		return nil, reason
	}

	entry := &models.TournamentEntry{
		TournamentID: tournamentID,
		TeamID:       teamID,
		Paid:         t.EntryFeeCredits > 0 || t.EntryFeeGems > 0 || t.RequiresEntryItem,
	}
	err = s.store.WithTx(ctx, func(tx *store.Store) error {
		if t.EntryFeeCredits > 0 || t.EntryFeeGems > 0 {
			if err := tx.Teams().ChargeEntryFee(ctx, teamID, t.EntryFeeCredits, t.EntryFeeGems); err != nil {
				if errors.Is(err, store.ErrConflict) {
					return notEligible(ReasonInsufficientCredits, "balance changed during registration")
				}
				return err
			}
		}
		if t.RequiresEntryItem {
			if err := tx.Inventory().Consume(ctx, teamID, models.ItemTournamentEntry); err != nil {
				if errors.Is(err, store.ErrConflict) {
					return notEligible(ReasonMissingEntryItem, "entry item was spent elsewhere")
				}
				return err
			}
		}
		if err := tx.Tournaments().CreateEntry(ctx, entry); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return notEligible(ReasonAlreadyEntered, "team %d is already registered", teamID)
			}
			return err
		}

		// Seat check under the same transaction; over-capacity rolls the
		// whole registration back.
		after, err := tx.Tournaments().CountEntries(ctx, tournamentID)
		if err != nil {
			return err
		}
		if after > t.MaxParticipants {
			return notEligible(ReasonTournamentFull, "field of %d is full", t.MaxParticipants)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logFor(tournamentID).WithField("team_id", teamID).Info("Team registered")

	// A full field starts immediately instead of waiting for the deadline.
	full, err := s.store.Tournaments().CountEntries(ctx, tournamentID)
	if err == nil && full >= t.MaxParticipants {
		if err := s.Start(ctx, tournamentID); err != nil {
			s.logFor(tournamentID).WithError(err).Error("Auto-start on full field failed")
		}
	}
	return entry, nil
}

// StartDue sweeps tournaments whose registration deadline has passed.
func (s *Service) StartDue(ctx context.Context) error {
	due, err := s.store.Tournaments().ListOpenPastDeadline(ctx, s.nowFn())
	if err != nil {
		return err
	}
	var firstErr error
	for i := range due {
		if err := s.Start(ctx, due[i].ID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Start fills, seeds and opens the bracket. Fewer than two entrants, even
// after AI fill, cancels the tournament with refunds.
func (s *Service) Start(ctx context.Context, tournamentID uint) error {
	lock := s.lockFor(tournamentID)
	lock.Lock()
	defer lock.Unlock()

	t, err := s.store.Tournaments().Get(ctx, tournamentID)
	if err != nil {
		return err
	}
	if t.Status != models.TournamentStatusRegistrationOpen {
		return nil
	}

	entries, err := s.store.Tournaments().ListEntries(ctx, tournamentID)
	if err != nil {
		return err
	}
	entries, err = s.fillWithAITeams(ctx, t, entries)
	if err != nil {
		return err
	}

	if len(entries) < 2 {
		return s.cancel(ctx, t, entries)
	}

	// The draw: one seeded shuffle fixes every slot, persisted so restarts
	// and audits replay the identical bracket.
	ids := make([]uint, len(entries))
	for i := range entries {
		ids[i] = entries[i].TeamID
	}
	slotOf := make(map[uint]int, len(ids))
	for slot, teamID := range SeededShuffle(ids, int64(t.ID)) {
		slotOf[teamID] = slot
	}
	for i := range entries {
		seed := slotOf[entries[i].TeamID]
		entries[i].Seed = &seed
		if err := s.store.Tournaments().SaveEntry(ctx, &entries[i]); err != nil {
			return err
		}
	}

	if err := s.store.Tournaments().CASStatus(ctx, t.ID, models.TournamentStatusRegistrationOpen, models.TournamentStatusInProgress); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil
		}
		return err
	}
	t.Status = models.TournamentStatusInProgress

	if err := s.reconcile(ctx, t, entries); err != nil {
		return err
	}

	s.publishState(events.TypeTournamentStarted, StatePayload{
		TournamentID: t.ID,
		Type:         t.Type,
		Status:       models.TournamentStatusInProgress,
		Round:        t.CurrentRound,
	})
	s.logFor(t.ID).WithField("entries", len(entries)).Info("Tournament started")
	return nil
}

// fillWithAITeams pads the field from the division's AI pool. Fill failures
// degrade to byes rather than blocking the start.
func (s *Service) fillWithAITeams(ctx context.Context, t *models.Tournament, entries []models.TournamentEntry) ([]models.TournamentEntry, error) {
	missing := t.MaxParticipants - len(entries)
	if missing <= 0 || s.fill == nil {
		return entries, nil
	}

	fills, err := s.fill.FillTeams(ctx, t, missing)
	if err != nil {
		s.logFor(t.ID).WithError(err).Warn("AI fill unavailable, bracket will carry byes")
		return entries, nil
	}
	for i := range fills {
		entry := &models.TournamentEntry{TournamentID: t.ID, TeamID: fills[i].ID}
		if err := s.store.Tournaments().CreateEntry(ctx, entry); err != nil {
			if errors.Is(err, store.ErrConflict) {
				continue
			}
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}

// cancel closes an underfilled tournament and returns every captured fee
// and entry item in one transaction with the status flip.
func (s *Service) cancel(ctx context.Context, t *models.Tournament, entries []models.TournamentEntry) error {
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		if err := tx.Tournaments().CASStatus(ctx, t.ID, models.TournamentStatusRegistrationOpen, models.TournamentStatusCancelled); err != nil {
			return err
		}
		for i := range entries {
			if !entries[i].Paid {
				continue
			}
			if t.EntryFeeCredits > 0 || t.EntryFeeGems > 0 {
				if err := tx.Teams().RefundEntryFee(ctx, entries[i].TeamID, t.EntryFeeCredits, t.EntryFeeGems); err != nil {
					return err
				}
			}
			if t.RequiresEntryItem {
				if err := tx.Inventory().Grant(ctx, entries[i].TeamID, models.ItemTournamentEntry, 1); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil
		}
		return err
	}

	s.publishState(events.TypeTournamentCancelled, StatePayload{
		TournamentID: t.ID,
		Type:         t.Type,
		Status:       models.TournamentStatusCancelled,
	})
	s.logFor(t.ID).WithField("entries", len(entries)).Warn("Tournament cancelled, not enough entrants")
	return nil
}

// Run reacts to match completions, advancing the owning bracket. Blocks
// until the context is cancelled.
func (s *Service) Run(ctx context.Context) {
	sub := s.bus.Subscribe(events.MatchLifecycleAllTopic, 256)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if ev.Type != events.TypeMatchCompleted {
				continue
			}
			payload, ok := ev.Payload.(sim.LifecyclePayload)
			if !ok || payload.TournamentID == nil {
				continue
			}
			if err := s.ProcessCompletion(ctx, *payload.TournamentID); err != nil {
				s.logFor(*payload.TournamentID).WithError(err).Error("Bracket advancement failed")
			}
		}
	}
}

// ProcessCompletion re-walks the bracket and performs the next pending
// action: create the following round or complete the tournament. Safe to
// call any number of times.
func (s *Service) ProcessCompletion(ctx context.Context, tournamentID uint) error {
	lock := s.lockFor(tournamentID)
	lock.Lock()
	defer lock.Unlock()

	t, err := s.store.Tournaments().Get(ctx, tournamentID)
	if err != nil {
		return err
	}
	if t.Status != models.TournamentStatusInProgress {
		return nil
	}

	entries, err := s.store.Tournaments().ListEntries(ctx, tournamentID)
	if err != nil {
		return err
	}
	return s.reconcile(ctx, t, entries)
}

// bracketWalk is the replayed state of a bracket: the pairings entering each
// round, the loser lists of finished rounds, and either the champion or the
// first round that is still pending.
type bracketWalk struct {
	rounds    [][]Pairing
	losers    [][]uint
	champion  uint
	nextRound int
}

// walk replays the bracket from persisted seeds and games. It stops at the
// first round whose games are missing or unfinished, or at the champion.
func (s *Service) walk(ctx context.Context, t *models.Tournament, entries []models.TournamentEntry) (*bracketWalk, error) {
	w := &bracketWalk{}
	pairs := MirrorPairings(SlotsFromEntries(entries, t.MaxParticipants))

	for round := 1; ; round++ {
		w.rounds = append(w.rounds, pairs)

		games, err := s.store.Games().ListByTournamentRound(ctx, t.ID, round)
		if err != nil {
			return nil, err
		}

		advancers := make([]uint, 0, len(pairs))
		var losers []uint
		for _, p := range pairs {
			if p.Bye() {
				advancers = append(advancers, p.Home)
				continue
			}
			game := findPairGame(games, p)
			if game == nil || game.Status != models.GameStatusCompleted {
				w.nextRound = round
				return w, nil
			}
			winner, err := s.winnerOf(ctx, game)
			if err != nil {
				return nil, err
			}
			advancers = append(advancers, winner)
			if winner == game.HomeTeamID {
				losers = append(losers, game.AwayTeamID)
			} else {
				losers = append(losers, game.HomeTeamID)
			}
		}

		w.losers = append(w.losers, losers)
		switch len(advancers) {
		case 0:
			return nil, fmt.Errorf("tournament %d round %d produced no advancers", t.ID, round)
		case 1:
			w.champion = advancers[0]
			return w, nil
		}
		pairs = SequentialPairings(advancers)
	}
}

// reconcile acts on the walk result. Callers hold the tournament lock.
func (s *Service) reconcile(ctx context.Context, t *models.Tournament, entries []models.TournamentEntry) error {
	w, err := s.walk(ctx, t, entries)
	if err != nil {
		return err
	}
	if w.champion != 0 {
		return s.complete(ctx, t, entries, w)
	}

	// Create whatever games the pending round is missing. Existing games
	// mean the round is simply still being played.
	games, err := s.store.Games().ListByTournamentRound(ctx, t.ID, w.nextRound)
	if err != nil {
		return err
	}
	var toCreate []Pairing
	for _, p := range w.rounds[w.nextRound-1] {
		if !p.Bye() && findPairGame(games, p) == nil {
			toCreate = append(toCreate, p)
		}
	}
	if len(toCreate) == 0 {
		return nil
	}
	if err := s.createGames(ctx, t, toCreate, w.nextRound); err != nil {
		return err
	}
	if t.CurrentRound != w.nextRound {
		if err := s.store.Tournaments().SetCurrentRound(ctx, t.ID, w.nextRound); err != nil {
			return err
		}
		t.CurrentRound = w.nextRound
		if w.nextRound > 1 {
			s.publishState(events.TypeTournamentRoundAdvanced, StatePayload{
				TournamentID: t.ID,
				Type:         t.Type,
				Status:       models.TournamentStatusInProgress,
				Round:        w.nextRound,
			})
		}
	}
	s.logFor(t.ID).WithFields(logrus.Fields{
		"round": w.nextRound,
		"games": len(toCreate),
	}).Info("Bracket round created")
	return nil
}

// createGames schedules one game per pairing. Round-one games honor the
// tournament's start time; later rounds start at the next sweep.
func (s *Service) createGames(ctx context.Context, t *models.Tournament, pairs []Pairing, round int) error {
	start := t.StartTime
	if now := s.nowFn(); round > 1 || start.Before(now) {
		start = now
	}

	games := make([]*models.Game, 0, len(pairs))
	for _, p := range pairs {
		r := round
		tid := t.ID
		sid := t.SeasonID
		games = append(games, &models.Game{
			HomeTeamID:      p.Home,
			AwayTeamID:      p.Away,
			MatchType:       models.MatchTypeTournament,
			Status:          models.GameStatusScheduled,
			GameDate:        start.UTC(),
			SeasonID:        &sid,
			GameDay:         t.GameDay,
			TournamentID:    &tid,
			TournamentRound: &r,
		})
	}
	return s.store.Games().CreateBatch(ctx, games)
}

// winnerOf decides a completed tournament game. Draws resolve through one
// sudden-death block seeded by the match id; the verdict is persisted so
// every later walk of the bracket reads the same winner.
func (s *Service) winnerOf(ctx context.Context, game *models.Game) (uint, error) {
	if game.HomeScore > game.AwayScore {
		return game.HomeTeamID, nil
	}
	if game.AwayScore > game.HomeScore {
		return game.AwayTeamID, nil
	}
	if game.WinnerTeamID != nil {
		return *game.WinnerTeamID, nil
	}

	loaded, err := s.store.Games().GetWithTeams(ctx, game.ID)
	if err != nil {
		return 0, err
	}
	if loaded.WinnerTeamID != nil {
		return *loaded.WinnerTeamID, nil
	}

	homeRoster, err := s.store.Players().ListActiveByTeam(ctx, game.HomeTeamID)
	if err != nil {
		return 0, err
	}
	awayRoster, err := s.store.Players().ListActiveByTeam(ctx, game.AwayTeamID)
	if err != nil {
		return 0, err
	}

	result := sim.ResolveSuddenDeath(loaded, homeRoster, awayRoster, s.bus)
	if err := s.store.Games().SetWinner(ctx, game.ID, result.WinnerTeamID); err != nil {
		return 0, err
	}
	s.log.WithFields(logrus.Fields{
		"match_id":       game.ID,
		"winner_team_id": result.WinnerTeamID,
		"coin_flip":      result.CoinFlip,
	}).Info("Sudden death decided drawn tournament game")
	return result.WinnerTeamID, nil
}

// complete assigns final ranks and pays the pool in one transaction with
// the status flip, so a crash can never leave a half-paid podium.
func (s *Service) complete(ctx context.Context, t *models.Tournament, entries []models.TournamentEntry, w *bracketWalk) error {
	ranks := []uint{w.champion}
	for i := len(w.losers) - 1; i >= 0 && len(ranks) < 4; i-- {
		for _, loser := range w.losers[i] {
			if len(ranks) >= 4 {
				break
			}
			ranks = append(ranks, loser)
		}
	}

	payouts := SplitPrizePool(t.PrizePoolCredits, s.cfg.PrizeDistribution, len(ranks))

	type payoutLine struct {
		TeamID  uint  `json:"team_id"`
		Rank    int   `json:"rank"`
		Credits int64 `json:"credits"`
	}
	breakdown := make([]payoutLine, 0, len(ranks))

	entryByTeam := make(map[uint]*models.TournamentEntry, len(entries))
	for i := range entries {
		entryByTeam[entries[i].TeamID] = &entries[i]
	}

	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		if err := tx.Tournaments().CASStatus(ctx, t.ID, models.TournamentStatusInProgress, models.TournamentStatusCompleted); err != nil {
			return err
		}
		for i, teamID := range ranks {
			rank := i + 1
			var prize int64
			if i < len(payouts) {
				prize = payouts[i]
			}
			entry := entryByTeam[teamID]
			if entry == nil {
				return fmt.Errorf("tournament %d has no entry for ranked team %d", t.ID, teamID)
			}
			if err := tx.Tournaments().SetEntryResult(ctx, entry.ID, rank, prize); err != nil {
				return err
			}
			if prize > 0 {
				if err := tx.Teams().AddCredits(ctx, teamID, prize); err != nil {
					return err
				}
			}
			breakdown = append(breakdown, payoutLine{TeamID: teamID, Rank: rank, Credits: prize})
		}
		blob, err := json.Marshal(breakdown)
		if err != nil {
			return err
		}
		return tx.Tournaments().SetPrizeBreakdown(ctx, t.ID, blob)
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil
		}
		return err
	}

	s.publishState(events.TypeTournamentCompleted, StatePayload{
		TournamentID: t.ID,
		Type:         t.Type,
		Status:       models.TournamentStatusCompleted,
		ChampionID:   w.champion,
	})
	s.logFor(t.ID).WithFields(logrus.Fields{
		"champion_team_id": w.champion,
		"prize_pool":       t.PrizePoolCredits,
	}).Info("Tournament completed")
	return nil
}

func findPairGame(games []models.Game, p Pairing) *models.Game {
	for i := range games {
		g := &games[i]
		if (g.HomeTeamID == p.Home && g.AwayTeamID == p.Away) ||
			(g.HomeTeamID == p.Away && g.AwayTeamID == p.Home) {
			return g
		}
	}
	return nil
}
