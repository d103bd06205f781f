// models/party.go
package models

import "time"

type PartyState string

const (
	PartyWaiting  PartyState = "waiting"
	PartyStarting PartyState = "starting"
	PartyStarted  PartyState = "started"
	PartyClosed   PartyState = "closed"
)

// MaxEquippedRelics caps relics a member can bring into a run.
const MaxEquippedRelics = 3

type Party struct {
	ID        string     `json:"partyId" gorm:"primaryKey"`
	GateID    string     `json:"gateId" gorm:"index;not null"`
	Leader    string     `json:"leader" gorm:"not null"`
	Capacity  int        `json:"capacity" gorm:"not null"`
	State     PartyState `json:"state" gorm:"type:varchar(16);index;not null;default:'waiting'"`
	RunID     *string    `json:"runId,omitempty"`
	ExpiresAt time.Time  `json:"expiresAt" gorm:"index"`
	ClosedAt  *time.Time `json:"closedAt,omitempty"`

	Members []PartyMember `json:"members" gorm:"foreignKey:PartyID;constraint:OnDelete:CASCADE"`

	Timestamps
}

type PartyMember struct {
	ID               string    `json:"-" gorm:"primaryKey"`
	PartyID          string    `json:"-" gorm:"not null;uniqueIndex:ux_party_wallet,priority:1"`
	Wallet           string    `json:"wallet" gorm:"not null;index;uniqueIndex:ux_party_wallet,priority:2"`
	DisplayName      string    `json:"displayName"`
	AvatarID         int       `json:"avatarId"`
	IsReady          bool      `json:"isReady"`
	IsLocked         bool      `json:"isLocked"`
	EquippedRelicIDs []string  `json:"equippedRelicIds" gorm:"type:text;serializer:json"`
	Position         int       `json:"position"`
	JoinedAt         time.Time `json:"joinedAt"`
}

// Member returns the member with the given wallet, or nil.
func (p *Party) Member(wallet string) *PartyMember {
	for i := range p.Members {
		if p.Members[i].Wallet == wallet {
			return &p.Members[i]
		}
	}
	return nil
}

// AllReadyAndLocked reports whether every member has both flags set.
func (p *Party) AllReadyAndLocked() bool {
	if len(p.Members) == 0 {
		return false
	}
	for _, m := range p.Members {
		if !m.IsReady || !m.IsLocked {
			return false
		}
	}
	return true
}

// PartyEventType names a broadcast event on a party stream.
type PartyEventType string

const (
	EventMemberJoined  PartyEventType = "member_joined"
	EventMemberLeft    PartyEventType = "member_left"
	EventReadyChanged  PartyEventType = "ready_changed"
	EventLockedChanged PartyEventType = "locked_changed"
	EventLeaderChanged PartyEventType = "leader_changed"
	EventStarted       PartyEventType = "started"
	EventClosed        PartyEventType = "closed"
)

// PartyEvent is pushed to live subscribers; it is never persisted.
type PartyEvent struct {
	Type    PartyEventType `json:"type"`
	PartyID string         `json:"partyId"`
	Wallet  string         `json:"wallet,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	At      time.Time      `json:"at"`
}
