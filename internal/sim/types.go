// Package sim runs live matches as discrete-tick state machines. One worker
// owns one match from start to completion; everything the outside world sees
// flows through the event bus or the persistence gateway.
package sim

import (
	"time"

	"github.com/jimmy058910/replitballgame-sub015/internal/models"
)

// Match lengths in sim-seconds. One tick advances one sim-second.
const (
	LeagueDurationTicks     = 1800
	ExhibitionDurationTicks = 1200
	CheckpointEveryTicks    = 60
	SuddenDeathTicks        = 300
	PlayersPerSide          = 6
)

// MatchDuration returns total ticks for a match type.
func MatchDuration(matchType string) int {
	if matchType == models.MatchTypeExhibition {
		return ExhibitionDurationTicks
	}
	return LeagueDurationTicks
}

// Event types emitted by the tick loop.
const (
	EventScore                = "SCORE"
	EventScoreAttempt         = "SCORE_ATTEMPT"
	EventInterception         = "INTERCEPTION"
	EventMajorTackle          = "MAJOR_TACKLE"
	EventInjury               = "INJURY"
	EventHalftime             = "HALFTIME"
	EventFinalWhistle         = "FINAL_WHISTLE"
	EventSuccessfulPassScoring = "SUCCESSFUL_PASS_SCORING"
	EventDefensiveStop        = "DEFENSIVE_STOP"
	EventPassAttempt          = "PASS_ATTEMPT"
	EventScrum                = "SCRUM"
	EventRoutinePlay          = "ROUTINE_PLAY"
	EventRegularPass          = "REGULAR_PASS"
	EventStandardMovement     = "STANDARD_MOVEMENT"
)

// MatchEvent is one classified occurrence inside a match. Tick doubles as
// the sim-second timestamp used for playback lookahead.
type MatchEvent struct {
	Type          string    `json:"type"`
	Priority      int       `json:"priority"`
	ActorPlayerID *uint     `json:"actorPlayerId,omitempty"`
	FieldPos      int       `json:"fieldPos"`
	Tick          int       `json:"tick"`
	Timestamp     time.Time `json:"timestamp"`
}

// TickEnvelope is the per-tick bus payload for match.<id>.tick.
type TickEnvelope struct {
	MatchID   uint             `json:"matchId"`
	Tick      int              `json:"tick"`
	GameTime  int              `json:"gameTime"`
	HomeScore int              `json:"homeScore"`
	AwayScore int              `json:"awayScore"`
	Event     *MatchEvent      `json:"event,omitempty"`
	Revenue   *RevenueSnapshot `json:"revenue,omitempty"`
}

// LifecyclePayload rides match.<id>.lifecycle and the aggregate topic.
type LifecyclePayload struct {
	MatchID      uint   `json:"matchId"`
	MatchType    string `json:"matchType"`
	Status       string `json:"status"`
	HomeTeamID   uint   `json:"homeTeamId"`
	AwayTeamID   uint   `json:"awayTeamId"`
	HomeScore    int    `json:"homeScore"`
	AwayScore    int    `json:"awayScore"`
	TournamentID *uint  `json:"tournamentId,omitempty"`
	Round        *int   `json:"round,omitempty"`
	Recovered    bool   `json:"recovered,omitempty"`
}

// LiveMatchState is the externally visible snapshot of a running match.
// It is owned by one worker and copied out under lock for readers.
type LiveMatchState struct {
	MatchID          uint              `json:"matchId"`
	MatchType        string            `json:"matchType"`
	Tick             int               `json:"tick"`
	HomeTeamID       uint              `json:"homeTeamId"`
	AwayTeamID       uint              `json:"awayTeamId"`
	HomeScore        int               `json:"homeScore"`
	AwayScore        int               `json:"awayScore"`
	PossessionTeamID uint              `json:"possessionTeamId"`
	BallCarrierID    *uint             `json:"ballCarrierId,omitempty"`
	FieldPos         int               `json:"fieldPos"` // 0..100 toward the defending goal
	Stamina          map[uint]float64  `json:"stamina"`
	RecentEvents     []MatchEvent      `json:"recentEvents"`
	RevenueSnapshots []RevenueSnapshot `json:"revenueSnapshots"`
}

// checkpointState is the resume blob persisted every 60 ticks.
type checkpointState struct {
	Tick             int              `json:"tick"`
	HomeScore        int              `json:"homeScore"`
	AwayScore        int              `json:"awayScore"`
	PossessionTeamID uint             `json:"possessionTeamId"`
	BallCarrierID    *uint            `json:"ballCarrierId,omitempty"`
	FieldPos         int              `json:"fieldPos"`
	Stamina          map[uint]float64 `json:"stamina"`
	Revenue          RevenueTotals    `json:"revenue"`
	OpeningPossession uint            `json:"openingPossession"`
}
