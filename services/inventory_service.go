package services

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"gatecrawl-backend/apperrors"
	"gatecrawl-backend/models"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ownerLookupConcurrency bounds parallel ownerOf calls during a sync.
const ownerLookupConcurrency = 8

// OwnerLookup resolves on-chain relic ownership.
type OwnerLookup interface {
	MockMode() bool
	OwnerOf(ctx context.Context, tokenID string) (string, error)
}

type InventoryService struct {
	DB    *gorm.DB
	chain OwnerLookup
	log   *zap.Logger
	now   func() time.Time
}

func NewInventoryService(db *gorm.DB, chain OwnerLookup, log *zap.Logger) *InventoryService {
	return &InventoryService{DB: db, chain: chain, log: log, now: time.Now}
}

type SyncResult struct {
	Synced  int `json:"synced"`
	Removed int `json:"removed"`
	Failed  int `json:"failed"`
}

func (s *InventoryService) List(ctx context.Context, wallet string) ([]models.InventoryItem, error) {
	items := []models.InventoryItem{}
	err := s.DB.WithContext(ctx).
		Where("wallet = ?", wallet).
		Order("created_at ASC, token_id ASC").
		Find(&items).Error
	return items, err
}

// checkOwned fails with RELIC_NOT_OWNED unless wallet holds every token id.
func (s *InventoryService) checkOwned(tx *gorm.DB, wallet string, tokenIDs []string) error {
	if len(tokenIDs) == 0 {
		return nil
	}
	want := mapset.NewSet(tokenIDs...)

	var held []string
	if err := tx.Model(&models.InventoryItem{}).
		Where("wallet = ? AND token_id IN ?", wallet, want.ToSlice()).
		Pluck("token_id", &held).Error; err != nil {
		return err
	}

	missing := want.Difference(mapset.NewSet(held...))
	if missing.Cardinality() > 0 {
		return apperrors.New(apperrors.CodeRelicNotOwned, "relic not in inventory").
			WithDetails(map[string]any{"tokenIds": missing.ToSlice()})
	}
	return nil
}

// Equip marks exactly tokenIDs as equipped for wallet.
func (s *InventoryService) Equip(ctx context.Context, wallet string, tokenIDs []string) ([]models.InventoryItem, error) {
	ids := mapset.NewSet(tokenIDs...).ToSlice()
	if len(ids) > models.MaxEquippedRelics {
		return nil, apperrors.Newf(apperrors.CodeValidation, "at most %d relics can be equipped", models.MaxEquippedRelics)
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.checkOwned(tx, wallet, ids); err != nil {
			return err
		}
		if err := tx.Model(&models.InventoryItem{}).
			Where("wallet = ?", wallet).
			Update("equipped", false).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		return tx.Model(&models.InventoryItem{}).
			Where("wallet = ? AND token_id IN ?", wallet, ids).
			Update("equipped", true).Error
	})
	if err != nil {
		return nil, err
	}
	return s.List(ctx, wallet)
}

// AddMinted upserts freshly minted relics into their owners' inventories.
func (s *InventoryService) AddMinted(tx *gorm.DB, relics []models.MintedRelic) error {
	if len(relics) == 0 {
		return nil
	}
	now := s.now()
	items := make([]models.InventoryItem, 0, len(relics))
	for _, r := range relics {
		items = append(items, models.InventoryItem{
			ID:         uuid.NewString(),
			Wallet:     r.Owner,
			TokenID:    r.TokenID,
			RelicType:  r.RelicType,
			Affixes:    datatypes.NewJSONType(r.Affixes),
			CID:        r.CID,
			LastSynced: &now,
		})
	}

	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "wallet"}, {Name: "token_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"relic_type", "affixes", "cid", "last_synced", "updated_at"}),
	}).Create(&items).Error
}

// Grant adds a single relic outside of a run.
func (s *InventoryService) Grant(ctx context.Context, relic models.MintedRelic) error {
	return s.AddMinted(s.DB.WithContext(ctx), []models.MintedRelic{relic})
}

// GrantRandom rolls a relic of relicType (any type when empty) and grants it under a
// synthetic token id. Used by the dev endpoints.
func (s *InventoryService) GrantRandom(ctx context.Context, wallet, relicType string, rng *rand.Rand) (*models.MintedRelic, error) {
	if relicType == "" {
		relicType = RelicTypes[rng.IntN(len(RelicTypes))]
	}
	if _, ok := RelicAffixPools[relicType]; !ok {
		return nil, apperrors.Newf(apperrors.CodeValidation, "unknown relic type %q", relicType)
	}

	relic := rollRelicOfType(wallet, relicType, rng)
	relic.TokenID = fmt.Sprintf("dev-%d%03d", s.now().UnixMilli(), rng.IntN(1000))
	if err := s.Grant(ctx, relic); err != nil {
		return nil, err
	}
	s.log.Info("🎁 [INVENTORY] dev relic granted", zap.String("wallet", wallet), zap.String("token", relic.TokenID))
	return &relic, nil
}

type ownerCheck struct {
	item  models.InventoryItem
	owner string
	err   error
}

// Sync reconciles a wallet's inventory with on-chain ownership. Items now owned by
// someone else are removed; lookups that fail bump syncAttempts.
func (s *InventoryService) Sync(ctx context.Context, wallet string) (*SyncResult, error) {
	items, err := s.List(ctx, wallet)
	if err != nil {
		return nil, err
	}
	now := s.now()
	res := &SyncResult{}

	if s.chain == nil || s.chain.MockMode() {
		if err := s.DB.WithContext(ctx).Model(&models.InventoryItem{}).
			Where("wallet = ?", wallet).
			Updates(map[string]any{"last_synced": now, "sync_attempts": 0}).Error; err != nil {
			return nil, err
		}
		res.Synced = len(items)
		inventorySynced.WithLabelValues("mock").Add(float64(len(items)))
		return res, nil
	}

	checks := make([]ownerCheck, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ownerLookupConcurrency)
	for i, item := range items {
		g.Go(func() error {
			owner, err := s.chain.OwnerOf(gctx, item.TokenID)
			checks[i] = ownerCheck{item: item, owner: owner, err: err}
			return nil
		})
	}
	_ = g.Wait()

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, c := range checks {
			switch {
			case c.err != nil:
				s.log.Warn("[INVENTORY] ownerOf failed", zap.String("token", c.item.TokenID), zap.Error(c.err))
				if err := tx.Model(&models.InventoryItem{}).Where("id = ?", c.item.ID).
					UpdateColumn("sync_attempts", gorm.Expr("sync_attempts + 1")).Error; err != nil {
					return err
				}
				res.Failed++
			case c.owner != wallet:
				if err := tx.Delete(&models.InventoryItem{}, "id = ?", c.item.ID).Error; err != nil {
					return err
				}
				res.Removed++
			default:
				if err := tx.Model(&models.InventoryItem{}).Where("id = ?", c.item.ID).
					Updates(map[string]any{"last_synced": now, "sync_attempts": 0}).Error; err != nil {
					return err
				}
				res.Synced++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	inventorySynced.WithLabelValues("synced").Add(float64(res.Synced))
	inventorySynced.WithLabelValues("removed").Add(float64(res.Removed))
	inventorySynced.WithLabelValues("failed").Add(float64(res.Failed))
	s.log.Info("[INVENTORY] synced", zap.String("wallet", wallet),
		zap.Int("synced", res.Synced), zap.Int("removed", res.Removed), zap.Int("failed", res.Failed))
	return res, nil
}

// StaleWallets lists wallets holding items not synced since cutoff.
func (s *InventoryService) StaleWallets(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	var wallets []string
	err := s.DB.WithContext(ctx).Model(&models.InventoryItem{}).
		Where("last_synced IS NULL OR last_synced < ?", cutoff).
		Distinct("wallet").
		Limit(limit).
		Pluck("wallet", &wallets).Error
	return wallets, err
}
