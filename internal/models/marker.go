package models

import (
	"time"
)

// StepMarker makes daily scheduler steps at-most-once. Claiming a step
// inserts a row under the (step, marker_date) unique index; a second claim
// for the same game-day date loses the insert and skips the work.
type StepMarker struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Step       string    `gorm:"not null;uniqueIndex:idx_markers_step_date" json:"step"`
	MarkerDate string    `gorm:"not null;uniqueIndex:idx_markers_step_date" json:"marker_date"` // effective date, YYYY-MM-DD
	SeasonID   uint      `gorm:"index" json:"season_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM
func (StepMarker) TableName() string {
	return "step_markers"
}
