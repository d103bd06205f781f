package models

import "time"

// Profile is a player's public identity and progression, keyed by wallet.
type Profile struct {
	Wallet         string `json:"wallet" gorm:"primaryKey"`
	DisplayName    string `json:"displayName" gorm:"not null"`
	DisplayNameKey string `json:"-" gorm:"uniqueIndex;not null"` // case-folded DisplayName
	AvatarID       int    `json:"avatarId" gorm:"default:0"`
	ImageURL       string `json:"imageUrl"`

	// Core progression
	Rank       Rank    `json:"rank" gorm:"type:varchar(2);default:'E'"`
	Level      int     `json:"level" gorm:"default:1"`
	XP         int64   `json:"xp" gorm:"default:0;index"`
	SbtTokenID *string `json:"sbtTokenId,omitempty"`

	// Milestones
	LastLevelUpAt *time.Time `json:"lastLevelUpAt,omitempty"`
	LastRankUpAt  *time.Time `json:"lastRankUpAt,omitempty"`

	Timestamps
}
