package events

import (
	"fmt"
)

// SeasonPhaseTopic carries day and phase changes from the season scheduler.
const SeasonPhaseTopic = "season.phase"

// Event type names shared across emitters.
const (
	TypeMatchStarted   = "MATCH_STARTED"
	TypeMatchCompleted = "MATCH_COMPLETED"
	TypeMatchTick      = "MATCH_TICK"

	TypeTournamentStarted       = "TOURNAMENT_STARTED"
	TypeTournamentRoundAdvanced = "TOURNAMENT_ROUND_ADVANCED"
	TypeTournamentCompleted     = "TOURNAMENT_COMPLETED"
	TypeTournamentCancelled     = "TOURNAMENT_CANCELLED"

	TypeDayAdvanced  = "DAY_ADVANCED"
	TypePhaseChanged = "PHASE_CHANGED"
)

// MatchTickTopic streams per-tick envelopes for one match.
func MatchTickTopic(matchID uint) string {
	return fmt.Sprintf("match.%d.tick", matchID)
}

// MatchLifecycleTopic carries start/completion events for one match.
func MatchLifecycleTopic(matchID uint) string {
	return fmt.Sprintf("match.%d.lifecycle", matchID)
}

// MatchLifecycleAllTopic carries every match's lifecycle events; the
// tournament engine listens here to advance brackets.
const MatchLifecycleAllTopic = "match.lifecycle"

// TournamentTopic carries bracket state changes for one tournament.
func TournamentTopic(tournamentID uint) string {
	return fmt.Sprintf("tournament.%d.state", tournamentID)
}

// TournamentStateAllTopic mirrors every tournament's state changes; the
// websocket relay listens here so it never has to discover tournament ids.
const TournamentStateAllTopic = "tournament.state"
