package services

import (
	"context"
	"strings"
	"time"

	"gatecrawl-backend/apperrors"
	"gatecrawl-backend/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	weeklyWindow     = 7 * 24 * time.Hour
	defaultBoardSize = 50
	maxBoardSize     = 200
)

type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	Wallet      string `json:"wallet"`
	DisplayName string `json:"displayName"`
	Score       int64  `json:"score"`
}

type LeaderboardService struct {
	DB  *gorm.DB
	log *zap.Logger
	now func() time.Time
}

func NewLeaderboardService(db *gorm.DB, log *zap.Logger) *LeaderboardService {
	return &LeaderboardService{DB: db, log: log, now: time.Now}
}

type damageRow struct {
	Wallet string
	Score  int64
}

func boardSize(limit int) int {
	if limit <= 0 {
		return defaultBoardSize
	}
	if limit > maxBoardSize {
		return maxBoardSize
	}
	return limit
}

// Weekly sums damage over runs that ended in the last seven days.
func (s *LeaderboardService) Weekly(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	since := s.now().Add(-weeklyWindow)
	return s.damageBoard(ctx, limit, func(db *gorm.DB) *gorm.DB {
		return db.Where("ended_at >= ?", since)
	})
}

// Boss sums all-time damage dealt to one boss.
func (s *LeaderboardService) Boss(ctx context.Context, bossID string, limit int) ([]LeaderboardEntry, error) {
	bossID = strings.TrimSpace(bossID)
	if bossID == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "bossId is required")
	}
	return s.damageBoard(ctx, limit, func(db *gorm.DB) *gorm.DB {
		return db.Where("boss_id = ?", bossID)
	})
}

func (s *LeaderboardService) damageBoard(ctx context.Context, limit int, scope func(*gorm.DB) *gorm.DB) ([]LeaderboardEntry, error) {
	db := s.DB.WithContext(ctx)

	var rows []damageRow
	err := db.Model(&models.ContributionRecord{}).
		Scopes(scope).
		Select("wallet, SUM(damage) AS score").
		Group("wallet").
		Order("score DESC, wallet ASC").
		Limit(boardSize(limit)).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	wallets := make([]string, len(rows))
	for i, r := range rows {
		wallets[i] = r.Wallet
	}
	profiles, err := profilesByWallet(db, wallets)
	if err != nil {
		return nil, err
	}

	entries := make([]LeaderboardEntry, len(rows))
	for i, r := range rows {
		entries[i] = LeaderboardEntry{Rank: i + 1, Wallet: r.Wallet, Score: r.Score}
		if p, ok := profiles[r.Wallet]; ok {
			entries[i].DisplayName = p.DisplayName
		}
	}
	return entries, nil
}

// AllTime ranks profiles by total XP, then level.
func (s *LeaderboardService) AllTime(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	var profiles []models.Profile
	if err := s.DB.WithContext(ctx).
		Order("xp DESC, level DESC, wallet ASC").
		Limit(boardSize(limit)).
		Find(&profiles).Error; err != nil {
		return nil, err
	}

	entries := make([]LeaderboardEntry, len(profiles))
	for i, p := range profiles {
		entries[i] = LeaderboardEntry{
			Rank:        i + 1,
			Wallet:      p.Wallet,
			DisplayName: p.DisplayName,
			Score:       p.XP,
		}
	}
	return entries, nil
}
