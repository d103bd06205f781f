package services

import (
	"context"
	"fmt"
	"os"

	"gatecrawl-backend/apperrors"
	"gatecrawl-backend/models"

	"github.com/gosimple/slug"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GateService struct {
	DB  *gorm.DB
	log *zap.Logger
}

func NewGateService(db *gorm.DB, log *zap.Logger) *GateService {
	return &GateService{DB: db, log: log}
}

type gateCatalog struct {
	Gates []struct {
		ID       string      `yaml:"id"`
		Name     string      `yaml:"name"`
		Rank     models.Rank `yaml:"rank"`
		Capacity int         `yaml:"capacity"`
		BossID   string      `yaml:"bossId"`
		IsActive *bool       `yaml:"isActive"`
	} `yaml:"gates"`
}

// ParseCatalog decodes a YAML gate catalog. Missing ids are slugged from the name and
// gates are active unless stated otherwise.
func ParseCatalog(raw []byte) ([]models.Gate, error) {
	var cat gateCatalog
	if err := yaml.Unmarshal(raw, &cat); err != nil {
		return nil, fmt.Errorf("parse gate catalog: %w", err)
	}

	seen := make(map[string]bool, len(cat.Gates))
	gates := make([]models.Gate, 0, len(cat.Gates))
	for i, g := range cat.Gates {
		id := g.ID
		if id == "" {
			id = slug.Make(g.Name)
		}
		switch {
		case id == "":
			return nil, fmt.Errorf("gate %d: name or id required", i)
		case seen[id]:
			return nil, fmt.Errorf("gate %d: duplicate id %q", i, id)
		case !g.Rank.Valid():
			return nil, fmt.Errorf("gate %q: invalid rank %q", id, g.Rank)
		case g.Capacity < 1:
			return nil, fmt.Errorf("gate %q: capacity must be positive", id)
		case g.BossID == "":
			return nil, fmt.Errorf("gate %q: bossId required", id)
		}
		seen[id] = true

		active := true
		if g.IsActive != nil {
			active = *g.IsActive
		}
		gates = append(gates, models.Gate{
			ID:       id,
			Name:     g.Name,
			Rank:     g.Rank,
			Capacity: g.Capacity,
			BossID:   g.BossID,
			IsActive: active,
		})
	}
	return gates, nil
}

func LoadCatalog(path string) ([]models.Gate, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read gate catalog: %w", err)
	}
	return ParseCatalog(raw)
}

// Seed upserts catalog gates by id. Occupancy is left untouched.
func (s *GateService) Seed(ctx context.Context, gates []models.Gate) error {
	if len(gates) == 0 {
		return nil
	}
	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "rank", "capacity", "boss_id", "is_active", "updated_at"}),
	}).Omit("Occupancy").Create(&gates).Error
	if err != nil {
		return err
	}

	// default:true swallows a false IsActive on insert
	for _, g := range gates {
		if !g.IsActive {
			if err := s.DB.WithContext(ctx).Model(&models.Gate{}).Where("id = ?", g.ID).Update("is_active", false).Error; err != nil {
				return err
			}
		}
	}
	s.log.Info("[GATES] catalog seeded", zap.Int("count", len(gates)))
	return nil
}

func (s *GateService) List(ctx context.Context) ([]models.Gate, error) {
	var gates []models.Gate
	err := s.DB.WithContext(ctx).Preload("Occupancy").Order("id").Find(&gates).Error
	return gates, err
}

func (s *GateService) Get(ctx context.Context, id string) (*models.Gate, error) {
	return s.getGate(s.DB.WithContext(ctx), id)
}

func (s *GateService) getGate(tx *gorm.DB, id string) (*models.Gate, error) {
	var gate models.Gate
	err := tx.Preload("Occupancy").Where("id = ?", id).First(&gate).Error
	if err == gorm.ErrRecordNotFound {
		return nil, apperrors.Newf(apperrors.CodeGateNotFound, "gate %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &gate, nil
}

func (s *GateService) addOccupancy(tx *gorm.DB, gateID, partyID string, current, max int) error {
	return tx.Create(&models.GateOccupancy{
		ID:      partyID,
		GateID:  gateID,
		PartyID: partyID,
		Current: current,
		Max:     max,
	}).Error
}

func (s *GateService) setOccupancy(tx *gorm.DB, gateID, partyID string, current int) error {
	return tx.Model(&models.GateOccupancy{}).
		Where("gate_id = ? AND party_id = ?", gateID, partyID).
		Update("current", current).Error
}

func (s *GateService) removeOccupancy(tx *gorm.DB, gateID, partyID string) error {
	return tx.Where("gate_id = ? AND party_id = ?", gateID, partyID).Delete(&models.GateOccupancy{}).Error
}
