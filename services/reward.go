package services

import (
	"math/rand/v2"

	"gatecrawl-backend/chain"
	"gatecrawl-backend/models"
)

// MaxRelicsPerRun caps relic mints for one run.
const MaxRelicsPerRun = 3

// RelicTypes is the mintable relic catalog in draw order.
var RelicTypes = []string{"blade", "aegis", "sigil", "totem", "crown"}

// RelicAffixPools lists the affixes each relic type can roll.
var RelicAffixPools = map[string][]string{
	"blade": {"sharpness", "bleed", "crit_chance", "attack_speed"},
	"aegis": {"armor", "block", "thorns", "vitality"},
	"sigil": {"arcana", "focus", "cooldown", "mana_regen"},
	"totem": {"regen", "aura", "summon_power", "resilience"},
	"crown": {"leadership", "fortune", "xp_boost", "presence"},
}

const (
	minAffixes   = 2
	maxAffixes   = 3
	minMagnitude = 1
	maxMagnitude = 20
)

// Rewards is everything derived from a finished run before settlement.
type Rewards struct {
	XPAwards []models.XPAward
	RankUps  []models.RankUp
	Relics   []models.MintedRelic
}

// CalculateRewards derives XP, level, rank and relic drops for every participant of run.
// profiles is keyed by wallet; a missing entry counts as a fresh profile.
func CalculateRewards(run *models.Run, profiles map[string]*models.Profile, rng *rand.Rand) Rewards {
	n := int64(len(run.Participants))
	out := Rewards{
		XPAwards: []models.XPAward{},
		RankUps:  []models.RankUp{},
		Relics:   []models.MintedRelic{},
	}
	if n == 0 {
		return out
	}

	var totalDamage int64
	for _, p := range run.Participants {
		totalDamage += p.Damage
	}
	shared := totalDamage / n / 10

	for _, p := range run.Participants {
		var (
			oldXP    int64
			oldLevel = 1
			oldRank  = models.RankE
			sbtID    *string
		)
		if prof, ok := profiles[p.Wallet]; ok && prof != nil {
			oldXP, oldLevel, oldRank, sbtID = prof.XP, prof.Level, prof.Rank, prof.SbtTokenID
			if !oldRank.Valid() {
				oldRank = models.RankE
			}
		}

		gained := shared + p.Damage/100
		newXP := oldXP + gained
		newLevel, newRank := CalculateLevelAndRank(newXP)

		out.XPAwards = append(out.XPAwards, models.XPAward{
			Wallet:     p.Wallet,
			XP:         gained,
			TotalXP:    newXP,
			Level:      newLevel,
			Rank:       newRank,
			SbtTokenID: sbtID,
		})

		// Recorded on any level increase, even when the rank letter does not move.
		if newLevel > oldLevel {
			out.RankUps = append(out.RankUps, models.RankUp{Wallet: p.Wallet, From: oldRank, To: newRank})
		}
	}

	drops := min(MaxRelicsPerRun, len(run.Participants))
	for _, p := range run.Participants[:drops] {
		out.Relics = append(out.Relics, rollRelic(p.Wallet, rng))
	}
	return out
}

func rollRelic(owner string, rng *rand.Rand) models.MintedRelic {
	return rollRelicOfType(owner, RelicTypes[rng.IntN(len(RelicTypes))], rng)
}

func rollRelicOfType(owner, relicType string, rng *rand.Rand) models.MintedRelic {
	pool := RelicAffixPools[relicType]

	count := minAffixes + rng.IntN(maxAffixes-minAffixes+1)
	affixes := make(map[string]int, count)
	for _, idx := range rng.Perm(len(pool))[:count] {
		affixes[pool[idx]] = minMagnitude + rng.IntN(maxMagnitude-minMagnitude+1)
	}

	return models.MintedRelic{
		RelicType: relicType,
		Affixes:   affixes,
		CID:       chain.ContentID(chain.RelicMetadataJSON(relicType, affixes)),
		Owner:     owner,
	}
}
