package sim

import (
	"math/rand"
	"time"

	"github.com/jimmy058910/replitballgame-sub015/internal/events"
	"github.com/jimmy058910/replitballgame-sub015/internal/models"
)

// SuddenDeathResult reports how a drawn tournament game was decided.
type SuddenDeathResult struct {
	WinnerTeamID uint `json:"winnerTeamId"`
	HomeGoals    int  `json:"homeGoals"`
	AwayGoals    int  `json:"awayGoals"`
	DecidingTick int  `json:"decidingTick"`
	CoinFlip     bool `json:"coinFlip"`
}

// ResolveSuddenDeath breaks a tie with one overtime block of up to 300
// sim-seconds that emits scoring events only; the first score wins. A
// scoreless block falls to a coin flip. Everything is seeded by the match
// id, so replaying the tie-break yields the same winner.
func ResolveSuddenDeath(game *models.Game, homeRoster, awayRoster []models.Player, bus *events.Bus) SuddenDeathResult {
	rng := rand.New(rand.NewSource(int64(game.ID)))
	regulation := MatchDuration(game.MatchType)

	home := fieldSquad(homeRoster)
	away := fieldSquad(awayRoster)

	attackingHome := rng.Float64() < 0.5
	for t := 1; t <= SuddenDeathTicks; t++ {
		squad, teamID := away, game.AwayTeamID
		if attackingHome {
			squad, teamID = home, game.HomeTeamID
		}
		attacker := &squad[rng.Intn(len(squad))]

		// Overtime drives end in a shot; only the shot quality varies.
		chance := attributeChance((attacker.Kicking+attacker.Agility)/2) * suddenDeathShotFactor
		tick := regulation + t
		if bernoulli(rng, chance) {
			result := SuddenDeathResult{WinnerTeamID: teamID, DecidingTick: tick}
			if attackingHome {
				result.HomeGoals = 1
			} else {
				result.AwayGoals = 1
			}
			publishSuddenDeathTick(bus, game, tick, EventScore, attacker.ID, result)
			return result
		}
		publishSuddenDeathTick(bus, game, tick, EventScoreAttempt, attacker.ID, SuddenDeathResult{})
		attackingHome = !attackingHome
	}

	winner := game.AwayTeamID
	if rng.Float64() < 0.5 {
		winner = game.HomeTeamID
	}
	return SuddenDeathResult{
		WinnerTeamID: winner,
		DecidingTick: regulation + SuddenDeathTicks,
		CoinFlip:     true,
	}
}

// suddenDeathShotFactor keeps per-tick scoring rare enough that overtime
// lasts a handful of drives instead of ending on the first one.
const suddenDeathShotFactor = 0.08

func publishSuddenDeathTick(bus *events.Bus, game *models.Game, tick int, eventType string, actorID uint, result SuddenDeathResult) {
	if bus == nil {
		return
	}
	ev := MatchEvent{
		Type:          eventType,
		Priority:      PriorityCritical,
		ActorPlayerID: &actorID,
		FieldPos:      90,
		Tick:          tick,
		Timestamp:     time.Now().UTC(),
	}
	bus.Publish(events.MatchTickTopic(game.ID), events.Event{
		Type: events.TypeMatchTick,
		Payload: TickEnvelope{
			MatchID:   game.ID,
			Tick:      tick,
			GameTime:  tick,
			HomeScore: game.HomeScore + result.HomeGoals,
			AwayScore: game.AwayScore + result.AwayGoals,
			Event:     &ev,
		},
	})
}
