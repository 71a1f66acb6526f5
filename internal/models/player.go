package models

import (
	"time"
)

// Attribute bounds. Every rating is clamped into this range by all
// progression, decline, and seeding paths.
const (
	AttributeMin = 1
	AttributeMax = 40
)

type Player struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	TeamID uint   `gorm:"not null;index" json:"team_id"`
	Name   string `gorm:"not null" json:"name"`
	Age    int    `gorm:"not null" json:"age"`

	Speed      int `gorm:"default:20" json:"speed"`
	Power      int `gorm:"default:20" json:"power"`
	Agility    int `gorm:"default:20" json:"agility"`
	Throwing   int `gorm:"default:20" json:"throwing"`
	Catching   int `gorm:"default:20" json:"catching"`
	Kicking    int `gorm:"default:20" json:"kicking"`
	Stamina    int `gorm:"default:20" json:"stamina"`
	Leadership int `gorm:"default:20" json:"leadership"`

	PotentialStars float64 `gorm:"default:2.5" json:"potential_stars"` // 0.5 .. 5.0
	IsRetired      bool    `gorm:"default:false;index" json:"is_retired"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Player) TableName() string {
	return "players"
}

// AttributeNames lists every trainable rating in a stable order.
var AttributeNames = []string{
	"speed", "power", "agility", "throwing", "catching", "kicking", "stamina", "leadership",
}

// PhysicalAttributeNames are the ratings age decline erodes.
var PhysicalAttributeNames = []string{"speed", "power", "agility"}

// AttributeMap exposes the ratings by name for progression and aging sweeps.
func (p *Player) AttributeMap() map[string]*int {
	return map[string]*int{
		"speed":      &p.Speed,
		"power":      &p.Power,
		"agility":    &p.Agility,
		"throwing":   &p.Throwing,
		"catching":   &p.Catching,
		"kicking":    &p.Kicking,
		"stamina":    &p.Stamina,
		"leadership": &p.Leadership,
	}
}

// ClampAttribute bounds a rating into [AttributeMin, AttributeMax].
func ClampAttribute(v int) int {
	if v < AttributeMin {
		return AttributeMin
	}
	if v > AttributeMax {
		return AttributeMax
	}
	return v
}
