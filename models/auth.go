package models

import "time"

// AuthNonce is a single-use login challenge for a wallet.
type AuthNonce struct {
	Nonce     string     `gorm:"primaryKey"`
	Wallet    string     `gorm:"index;not null"`
	IssuedAt  time.Time  `gorm:"not null"`
	ExpiresAt time.Time  `gorm:"not null;index"`
	UsedAt    *time.Time
}

// All lists every model for AutoMigrate.
func All() []any {
	return []any{
		&Gate{},
		&GateOccupancy{},
		&Party{},
		&PartyMember{},
		&Run{},
		&ContributionRecord{},
		&OutboxEntry{},
		&Profile{},
		&InventoryItem{},
		&AuthNonce{},
	}
}
