package models

import (
	"time"

	"gorm.io/datatypes"
)

// Match types
const (
	MatchTypeLeague     = "LEAGUE"
	MatchTypeTournament = "TOURNAMENT"
	MatchTypeExhibition = "EXHIBITION"
)

// Game statuses. Transitions only move forward: SCHEDULED -> IN_PROGRESS ->
// COMPLETED, each guarded by a compare-and-set on the previous status.
const (
	GameStatusScheduled  = "SCHEDULED"
	GameStatusInProgress = "IN_PROGRESS"
	GameStatusCompleted  = "COMPLETED"
)

type Game struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	HomeTeamID uint   `gorm:"not null;index" json:"home_team_id"`
	AwayTeamID uint   `gorm:"not null;index" json:"away_team_id"`
	HomeScore  int    `gorm:"default:0" json:"home_score"`
	AwayScore  int    `gorm:"default:0" json:"away_score"`
	GameTime   int    `gorm:"default:0" json:"game_time"` // elapsed sim seconds
	MatchType  string `gorm:"not null;index" json:"match_type"`
	Status     string `gorm:"not null;default:'SCHEDULED';index" json:"status"`

	GameDate time.Time `gorm:"not null;index" json:"game_date"`
	SeasonID *uint     `gorm:"index" json:"season_id,omitempty"`
	GameDay  int       `json:"game_day,omitempty"` // 1..17 when season-scheduled

	TournamentID    *uint `gorm:"index" json:"tournament_id,omitempty"`
	TournamentRound *int  `json:"tournament_round,omitempty"`

	// WinnerTeamID records the advancing team for tournament games. Set by
	// the bracket engine; for drawn games it holds the sudden-death result.
	WinnerTeamID *uint `json:"winner_team_id,omitempty"`

	// Recovered marks a game force-completed or resumed after its worker died.
	Recovered bool `gorm:"default:false" json:"recovered"`

	// Checkpoint is the latest resume blob written every 60 ticks.
	Checkpoint     datatypes.JSON `gorm:"type:jsonb" json:"checkpoint,omitempty"`
	CheckpointTick int            `gorm:"default:0" json:"checkpoint_tick"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relationships
	HomeTeam *Team `gorm:"foreignKey:HomeTeamID" json:"home_team,omitempty"`
	AwayTeam *Team `gorm:"foreignKey:AwayTeamID" json:"away_team,omitempty"`
}

// TableName specifies the table name for GORM
func (Game) TableName() string {
	return "games"
}

// IsFinal reports whether no further state transitions are allowed.
func (g *Game) IsFinal() bool {
	return g.Status == GameStatusCompleted
}

// CountsForStandings reports whether this game's result feeds league points.
func (g *Game) CountsForStandings() bool {
	return g.MatchType == MatchTypeLeague
}
