package services

import (
	"time"

	"gatecrawl-backend/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// XPPerLevel is the flat XP step between levels.
	XPPerLevel = 1000
	// LevelsPerRank is how many levels share one rank letter.
	LevelsPerRank = 5
)

func determineRank(level int) models.Rank {
	idx := (level - 1) / LevelsPerRank
	if idx < 0 {
		idx = 0
	}
	if idx > len(models.RankOrder)-1 {
		idx = len(models.RankOrder) - 1
	}
	return models.RankOrder[idx]
}

// CalculateLevelAndRank derives level and rank from total XP.
func CalculateLevelAndRank(xp int64) (int, models.Rank) {
	if xp < 0 {
		xp = 0
	}
	level := int(xp/XPPerLevel) + 1
	return level, determineRank(level)
}

// ApplyAwards writes computed XP, level and rank onto each awarded profile inside tx.
// Wallets without a profile are skipped.
func (s *ProfileService) ApplyAwards(tx *gorm.DB, awards []models.XPAward, sbtTokenIDs map[string]string, now time.Time) error {
	for _, award := range awards {
		var prog models.Profile
		err := tx.Where("wallet = ?", award.Wallet).First(&prog).Error
		if err == gorm.ErrRecordNotFound {
			s.log.Warn("[PROFILE] award for wallet without profile", zap.String("wallet", award.Wallet))
			continue
		}
		if err != nil {
			return err
		}

		if award.Level > prog.Level {
			prog.LastLevelUpAt = &now
		}
		if award.Rank.Index() > prog.Rank.Index() {
			prog.LastRankUpAt = &now
		}
		prog.XP = award.TotalXP
		prog.Level = award.Level
		prog.Rank = award.Rank
		if id, ok := sbtTokenIDs[award.Wallet]; ok {
			prog.SbtTokenID = &id
		}

		if err := tx.Save(&prog).Error; err != nil {
			return err
		}

		s.log.Info("🎮 [PROFILE] XP awarded",
			zap.String("wallet", prog.Wallet),
			zap.Int64("gained", award.XP),
			zap.Int64("xp", prog.XP),
			zap.Int("level", prog.Level),
			zap.String("rank", string(prog.Rank)),
		)
	}
	return nil
}
