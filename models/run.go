// models/run.go
package models

import (
	"time"

	"gorm.io/datatypes"
)

type Run struct {
	ID        string `json:"runId" gorm:"primaryKey"`
	PartyID   string `json:"partyId" gorm:"index"`
	GateID    string `json:"gateId" gorm:"index;not null"`
	BossID    string `json:"bossId"`
	Synthetic bool   `json:"synthetic" gorm:"default:false"` // dev simulations; no party to close

	Participants datatypes.JSONSlice[RunParticipant] `json:"participants"`

	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty" gorm:"index"`
	TxHash    *string    `json:"txHash,omitempty"`

	MintedRelics datatypes.JSONSlice[MintedRelic] `json:"mintedRelics"`
	XPAwards     datatypes.JSONSlice[XPAward]     `json:"xpAwards"`
	RankUps      datatypes.JSONSlice[RankUp]      `json:"rankUps"`

	SettlementError string `json:"settlementError,omitempty"`

	Timestamps
}

func (r *Run) Finished() bool { return r.EndedAt != nil }

func (r *Run) HasParticipant(wallet string) bool {
	for _, p := range r.Participants {
		if p.Wallet == wallet {
			return true
		}
	}
	return false
}

type RunParticipant struct {
	Wallet           string   `json:"wallet"`
	DisplayName      string   `json:"displayName"`
	AvatarID         int      `json:"avatarId"`
	EquippedRelicIDs []string `json:"equippedRelicIds"`
	Damage           int64    `json:"damage"`
	NormalKills      int64    `json:"normalKills"`
}

type MintedRelic struct {
	TokenID   string         `json:"tokenId"`
	RelicType string         `json:"relicType"`
	Affixes   map[string]int `json:"affixes"`
	CID       string         `json:"cid"`
	Owner     string         `json:"owner"`
}

type XPAward struct {
	Wallet     string  `json:"wallet"`
	XP         int64   `json:"xp"`      // gained this run
	TotalXP    int64   `json:"totalXp"` // profile xp after the run
	Level      int     `json:"level"`
	Rank       Rank    `json:"rank"`
	SbtTokenID *string `json:"sbtTokenId,omitempty"`
}

// RankUp is recorded whenever the level increases, even if the rank letter stays the same.
type RankUp struct {
	Wallet string `json:"wallet"`
	From   Rank   `json:"from"`
	To     Rank   `json:"to"`
}

// ContributionRecord is a flattened per-participant row written when a run ends.
type ContributionRecord struct {
	ID          string    `json:"-" gorm:"primaryKey"`
	RunID       string    `json:"runId" gorm:"index;not null"`
	Wallet      string    `json:"wallet" gorm:"index;not null"`
	GateID      string    `json:"gateId"`
	BossID      string    `json:"bossId" gorm:"index"`
	Damage      int64     `json:"damage"`
	NormalKills int64     `json:"normalKills"`
	EndedAt     time.Time `json:"endedAt" gorm:"index"`
}

// SettlementResult is what chain settlement reports back for a run.
type SettlementResult struct {
	TxHash      string            `json:"txHash"`
	Relics      []MintedRelic     `json:"relics"`
	SbtTokenIDs map[string]string `json:"-"`
}

// Contribution is a client-reported contribution for one participant.
type Contribution struct {
	Wallet      string `json:"wallet" validate:"required"`
	Damage      int64  `json:"damage" validate:"gte=0"`
	NormalKills int64  `json:"normalKills" validate:"gte=0"`
}
