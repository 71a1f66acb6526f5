package models

import (
	"time"
)

type Team struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	Name         string `gorm:"uniqueIndex;not null" json:"name"`
	Division     int    `gorm:"not null;index:idx_teams_division_subdivision" json:"division"` // 1 (top) .. 8
	Subdivision  string `gorm:"not null;default:'main';index:idx_teams_division_subdivision" json:"subdivision"`
	Wins         int    `gorm:"default:0" json:"wins"`
	Losses       int    `gorm:"default:0" json:"losses"`
	Draws        int    `gorm:"default:0" json:"draws"`
	Points       int    `gorm:"default:0" json:"points"` // 3*wins + draws
	GoalsFor     int    `gorm:"default:0" json:"goals_for"`
	GoalsAgainst int    `gorm:"default:0" json:"goals_against"`
	Credits      int64  `gorm:"default:0" json:"credits"`
	Gems         int    `gorm:"default:0" json:"gems"`
	IsAI         bool   `gorm:"default:false;index" json:"is_ai"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relationships
	Players []Player `gorm:"foreignKey:TeamID" json:"players,omitempty"`
}

// TableName specifies the table name for GORM
func (Team) TableName() string {
	return "teams"
}

// TeamRecord is the standings slice of a team row. CAS updates compare the
// whole record so two match completions can never double-apply.
type TeamRecord struct {
	Wins         int `json:"wins"`
	Losses       int `json:"losses"`
	Draws        int `json:"draws"`
	Points       int `json:"points"`
	GoalsFor     int `json:"goals_for"`
	GoalsAgainst int `json:"goals_against"`
}

// Record returns the team's current standings counters.
func (t *Team) Record() TeamRecord {
	return TeamRecord{
		Wins:         t.Wins,
		Losses:       t.Losses,
		Draws:        t.Draws,
		Points:       t.Points,
		GoalsFor:     t.GoalsFor,
		GoalsAgainst: t.GoalsAgainst,
	}
}

// GoalDifference is the standings tie-break after points.
func (t *Team) GoalDifference() int {
	return t.GoalsFor - t.GoalsAgainst
}

// WithResult returns the record after one more final score from this team's
// perspective. Points follow the 3/1/0 rule.
func (r TeamRecord) WithResult(scored, conceded int) TeamRecord {
	next := r
	next.GoalsFor += scored
	next.GoalsAgainst += conceded
	switch {
	case scored > conceded:
		next.Wins++
		next.Points += 3
	case scored < conceded:
		next.Losses++
	default:
		next.Draws++
		next.Points++
	}
	return next
}
