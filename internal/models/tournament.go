package models

import (
	"time"

	"gorm.io/datatypes"
)

// Tournament types
const (
	TournamentTypeDailyCup         = "DAILY_DIVISIONAL_CUP"
	TournamentTypeMidSeasonClassic = "MID_SEASON_CLASSIC"
)

// Tournament statuses
const (
	TournamentStatusRegistrationOpen = "REGISTRATION_OPEN"
	TournamentStatusInProgress       = "IN_PROGRESS"
	TournamentStatusCompleted        = "COMPLETED"
	TournamentStatusCancelled        = "CANCELLED"
)

type Tournament struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Name     string `gorm:"not null" json:"name"`
	Type     string `gorm:"not null;index:idx_tournaments_type_day" json:"type"`
	Division *int   `gorm:"index" json:"division,omitempty"` // nil for the cross-division classic
	Status   string `gorm:"not null;default:'REGISTRATION_OPEN';index" json:"status"`

	MaxParticipants   int   `gorm:"not null" json:"max_participants"`
	EntryFeeCredits   int64 `gorm:"default:0" json:"entry_fee_credits"`
	EntryFeeGems      int   `gorm:"default:0" json:"entry_fee_gems"`
	RequiresEntryItem bool  `gorm:"default:false" json:"requires_entry_item"`
	PrizePoolCredits  int64 `gorm:"not null" json:"prize_pool_credits"`

	RegistrationDeadline time.Time `gorm:"not null" json:"registration_deadline"`
	StartTime            time.Time `json:"start_time"`

	SeasonID     uint `gorm:"index" json:"season_id"`
	GameDay      int  `gorm:"index:idx_tournaments_type_day" json:"game_day"`
	CurrentRound int  `gorm:"default:0" json:"current_round"`

	// PrizeBreakdown records the credited payouts at completion (audit trail).
	PrizeBreakdown datatypes.JSON `gorm:"type:jsonb" json:"prize_breakdown,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relationships
	Entries []TournamentEntry `gorm:"foreignKey:TournamentID" json:"entries,omitempty"`
}

// TableName specifies the table name for GORM
func (Tournament) TableName() string {
	return "tournaments"
}

// RegistrationOpen reports whether entries are still accepted at t.
func (tr *Tournament) RegistrationOpen(t time.Time) bool {
	return tr.Status == TournamentStatusRegistrationOpen && t.Before(tr.RegistrationDeadline)
}

type TournamentEntry struct {
	ID           uint  `gorm:"primaryKey" json:"id"`
	TournamentID uint  `gorm:"not null;uniqueIndex:idx_entries_tournament_team" json:"tournament_id"`
	TeamID       uint  `gorm:"not null;uniqueIndex:idx_entries_tournament_team" json:"team_id"`
	Seed         *int  `json:"seed,omitempty"`      // bracket slot after the seeded shuffle
	FinalRank    *int  `json:"final_rank,omitempty"` // 1..4 once the bracket resolves
	PrizeCredits int64 `gorm:"default:0" json:"prize_credits"`
	Paid         bool  `gorm:"default:false" json:"paid"` // entry fee captured

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relationships
	Team *Team `gorm:"foreignKey:TeamID" json:"team,omitempty"`
}

// TableName specifies the table name for GORM
func (TournamentEntry) TableName() string {
	return "tournament_entries"
}
