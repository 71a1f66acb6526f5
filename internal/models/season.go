package models

import (
	"time"
)

// Season is the 17-day competition cycle. StartDate is the first 3 AM
// Eastern boundary of day 1, stored in UTC. Exactly one season has
// IsActive=true at a time.
type Season struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Name       string    `gorm:"not null" json:"name"`
	StartDate  time.Time `gorm:"not null" json:"start_date"`
	CurrentDay int       `gorm:"not null;default:1" json:"current_day"` // 1..17
	Phase      string    `gorm:"not null;default:'REGULAR'" json:"phase"`
	IsActive   bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Season) TableName() string {
	return "seasons"
}
