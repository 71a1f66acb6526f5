package models

import (
	"time"
)

// Item types held in team inventories. Only the tournament entry item is
// consumed by this service; granting items is the marketplace's job.
const (
	ItemTournamentEntry = "TOURNAMENT_ENTRY"
)

type InventoryItem struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	TeamID   uint   `gorm:"not null;uniqueIndex:idx_inventory_team_item" json:"team_id"`
	ItemType string `gorm:"not null;uniqueIndex:idx_inventory_team_item" json:"item_type"`
	Quantity int    `gorm:"default:0" json:"quantity"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (InventoryItem) TableName() string {
	return "inventory_items"
}
