package models

import (
	"time"

	"gorm.io/datatypes"
)

// InventoryItem is a relic held by a wallet, reconciled against on-chain ownership.
type InventoryItem struct {
	ID        string                            `json:"-" gorm:"primaryKey"`
	Wallet    string                            `json:"wallet" gorm:"not null;uniqueIndex:ux_inventory_wallet_token,priority:1"`
	TokenID   string                            `json:"tokenId" gorm:"not null;uniqueIndex:ux_inventory_wallet_token,priority:2"`
	RelicType string                            `json:"relicType"`
	Affixes   datatypes.JSONType[map[string]int] `json:"affixes"`
	CID       string                            `json:"cid"`
	Equipped  bool                              `json:"equipped" gorm:"default:false"`

	// Sync bookkeeping
	LastSynced   *time.Time `json:"lastSynced,omitempty" gorm:"index"`
	SyncAttempts int        `json:"syncAttempts" gorm:"default:0"`

	Timestamps
}
