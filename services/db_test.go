package services

import (
	"fmt"
	"testing"
	"time"

	"gatecrawl-backend/models"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection keeps every query on the same in-memory database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func walletN(i int) string {
	return fmt.Sprintf("0x%040x", i+1)
}

func seedGate(t *testing.T, db *gorm.DB, id string, capacity int, active bool) *models.Gate {
	t.Helper()
	gate := &models.Gate{ID: id, Name: id, Rank: models.RankC, Capacity: capacity, BossID: "boss-" + id, IsActive: true}
	require.NoError(t, db.Create(gate).Error)
	if !active {
		require.NoError(t, db.Model(gate).Update("is_active", false).Error)
		gate.IsActive = false
	}
	return gate
}

func seedProfile(t *testing.T, db *gorm.DB, wallet, name string) *models.Profile {
	t.Helper()
	p := &models.Profile{
		Wallet:         wallet,
		DisplayName:    name,
		DisplayNameKey: foldName(name),
		Rank:           models.RankE,
		Level:          1,
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

type testServices struct {
	db        *gorm.DB
	events    *MemoryBroker
	gates     *GateService
	profiles  *ProfileService
	inventory *InventoryService
	parties   *PartyService
	runs      *RunService
	settler   *fakeSettler
}

func newTestServices(t *testing.T) *testServices {
	t.Helper()
	db := newTestDB(t)
	log := zap.NewNop()

	events := NewMemoryBroker(log)
	settler := &fakeSettler{}
	gates := NewGateService(db, log)
	profiles := NewProfileService(db, log)
	inventory := NewInventoryService(db, nil, log)
	parties := NewPartyService(db, events, gates, inventory, 30*time.Minute, log)
	runs := NewRunService(db, settler, parties, profiles, inventory, log)
	runs.rng = testRNG

	return &testServices{
		db:        db,
		events:    events,
		gates:     gates,
		profiles:  profiles,
		inventory: inventory,
		parties:   parties,
		runs:      runs,
		settler:   settler,
	}
}
