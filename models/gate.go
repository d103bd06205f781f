// models/gate.go
package models

// Rank is shared by gates (difficulty) and players (progression).
type Rank string

const (
	RankE Rank = "E"
	RankD Rank = "D"
	RankC Rank = "C"
	RankB Rank = "B"
	RankA Rank = "A"
	RankS Rank = "S"
)

// RankOrder lists ranks from lowest to highest.
var RankOrder = []Rank{RankE, RankD, RankC, RankB, RankA, RankS}

// Index returns the position of r in RankOrder, or -1.
func (r Rank) Index() int {
	for i, candidate := range RankOrder {
		if candidate == r {
			return i
		}
	}
	return -1
}

func (r Rank) Valid() bool { return r.Index() >= 0 }

type Gate struct {
	ID       string `json:"id" yaml:"id" gorm:"primaryKey"`
	Name     string `json:"name" yaml:"name" gorm:"not null"`
	Rank     Rank   `json:"rank" yaml:"rank" gorm:"type:varchar(2);not null"`
	Capacity int    `json:"capacity" yaml:"capacity" gorm:"not null"`
	BossID   string `json:"bossId" yaml:"bossId" gorm:"not null"`
	IsActive bool   `json:"isActive" yaml:"isActive" gorm:"default:true"`

	Occupancy []GateOccupancy `json:"occupancy" yaml:"-" gorm:"foreignKey:GateID"`

	Timestamps `yaml:"-"`
}

// GateOccupancy is a live counter of one party's headcount inside a gate.
type GateOccupancy struct {
	ID      string `json:"-" gorm:"primaryKey"`
	GateID  string `json:"-" gorm:"not null;uniqueIndex:ux_gate_party,priority:1"`
	PartyID string `json:"partyId" gorm:"not null;uniqueIndex:ux_gate_party,priority:2"`
	Current int    `json:"current"`
	Max     int    `json:"max"`
}

// Occupied sums current headcount over every occupancy entry.
func (g *Gate) Occupied() int {
	total := 0
	for _, o := range g.Occupancy {
		total += o.Current
	}
	return total
}
