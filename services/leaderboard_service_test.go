package services

import (
	"context"
	"testing"
	"time"

	"gatecrawl-backend/apperrors"
	"gatecrawl-backend/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func recordDamage(t *testing.T, db *gorm.DB, wallet, bossID string, damage int64, endedAt time.Time) {
	t.Helper()
	require.NoError(t, db.Create(&models.ContributionRecord{
		ID:      uuid.NewString(),
		RunID:   uuid.NewString(),
		Wallet:  wallet,
		GateID:  "g1",
		BossID:  bossID,
		Damage:  damage,
		EndedAt: endedAt,
	}).Error)
}

func TestWeeklyLeaderboard(t *testing.T) {
	db := newTestDB(t)
	svc := NewLeaderboardService(db, zap.NewNop())
	now := time.Now()
	svc.now = func() time.Time { return now }

	seedProfile(t, db, walletN(0), "alpha")
	recordDamage(t, db, walletN(0), "wyrm", 500, now.Add(-time.Hour))
	recordDamage(t, db, walletN(0), "lich", 700, now.Add(-48*time.Hour))
	recordDamage(t, db, walletN(1), "wyrm", 900, now.Add(-time.Hour))
	recordDamage(t, db, walletN(2), "wyrm", 5000, now.Add(-8*24*time.Hour))

	entries, err := svc.Weekly(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []LeaderboardEntry{
		{Rank: 1, Wallet: walletN(0), DisplayName: "alpha", Score: 1200},
		{Rank: 2, Wallet: walletN(1), Score: 900},
	}, entries)
}

func TestBossLeaderboard(t *testing.T) {
	db := newTestDB(t)
	svc := NewLeaderboardService(db, zap.NewNop())
	now := time.Now()

	recordDamage(t, db, walletN(0), "wyrm", 500, now)
	recordDamage(t, db, walletN(1), "wyrm", 300, now)
	recordDamage(t, db, walletN(1), "wyrm", 300, now.Add(-30*24*time.Hour))
	recordDamage(t, db, walletN(0), "lich", 9999, now)

	entries, err := svc.Boss(context.Background(), "wyrm", 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, walletN(1), entries[0].Wallet)
	assert.Equal(t, int64(600), entries[0].Score)

	_, err = svc.Boss(context.Background(), " ", 10)
	requireCode(t, err, apperrors.CodeValidation)
}

func TestAllTimeLeaderboard(t *testing.T) {
	db := newTestDB(t)
	svc := NewLeaderboardService(db, zap.NewNop())

	for i, xp := range []int64{1500, 4200, 1500} {
		p := seedProfile(t, db, walletN(i), []string{"alpha", "bravo", "charlie"}[i])
		level, _ := CalculateLevelAndRank(xp)
		require.NoError(t, db.Model(p).Updates(map[string]any{"xp": xp, "level": level}).Error)
	}

	entries, err := svc.AllTime(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "bravo", entries[0].DisplayName)
	assert.Equal(t, int64(4200), entries[0].Score)
	assert.Equal(t, []int{1, 2, 3}, []int{entries[0].Rank, entries[1].Rank, entries[2].Rank})
	assert.Equal(t, walletN(0), entries[1].Wallet)
}
