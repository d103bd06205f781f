package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"gatecrawl-backend/apperrors"
	"gatecrawl-backend/models"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"gorm.io/gorm"
)

const (
	minDisplayName = 3
	maxDisplayName = 24
	maxSearchLimit = 100
)

type ProfileService struct {
	DB  *gorm.DB
	log *zap.Logger
}

func NewProfileService(db *gorm.DB, log *zap.Logger) *ProfileService {
	return &ProfileService{DB: db, log: log}
}

// foldName is the uniqueness key for display names.
func foldName(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

func validateDisplayName(name string) (string, error) {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n < minDisplayName || n > maxDisplayName {
		return "", apperrors.Newf(apperrors.CodeValidation, "display name must be %d-%d characters", minDisplayName, maxDisplayName)
	}
	return name, nil
}

type ProfilePatch struct {
	DisplayName *string `json:"displayName"`
	AvatarID    *int    `json:"avatarId" validate:"omitempty,gte=0"`
	ImageURL    *string `json:"imageUrl" validate:"omitempty,url"`
}

func (s *ProfileService) Create(ctx context.Context, wallet, displayName string, avatarID int) (*models.Profile, error) {
	name, err := validateDisplayName(displayName)
	if err != nil {
		return nil, err
	}

	prof := models.Profile{
		Wallet:         wallet,
		DisplayName:    name,
		DisplayNameKey: foldName(name),
		AvatarID:       avatarID,
		Rank:           models.RankE,
		Level:          1,
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Profile{}).Where("wallet = ?", wallet).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return apperrors.New(apperrors.CodeProfileExists, "profile already exists for this wallet")
		}
		if err := s.ensureNameFree(tx, prof.DisplayNameKey, wallet); err != nil {
			return err
		}
		return tx.Create(&prof).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, apperrors.New(apperrors.CodeNameTaken, "display name is taken")
	}
	if err != nil {
		return nil, err
	}

	s.log.Info("[PROFILE] created", zap.String("wallet", wallet), zap.String("name", name))
	return &prof, nil
}

func (s *ProfileService) ensureNameFree(tx *gorm.DB, key, wallet string) error {
	var count int64
	if err := tx.Model(&models.Profile{}).
		Where("display_name_key = ? AND wallet <> ?", key, wallet).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return apperrors.New(apperrors.CodeNameTaken, "display name is taken")
	}
	return nil
}

func (s *ProfileService) Get(ctx context.Context, wallet string) (*models.Profile, error) {
	return getProfile(s.DB.WithContext(ctx), wallet)
}

func getProfile(tx *gorm.DB, wallet string) (*models.Profile, error) {
	var prof models.Profile
	err := tx.Where("wallet = ?", wallet).First(&prof).Error
	if err == gorm.ErrRecordNotFound {
		return nil, apperrors.New(apperrors.CodeProfileNotFound, "profile not found")
	}
	if err != nil {
		return nil, err
	}
	return &prof, nil
}

func (s *ProfileService) Update(ctx context.Context, wallet string, patch ProfilePatch) (*models.Profile, error) {
	var name string
	if patch.DisplayName != nil {
		var err error
		if name, err = validateDisplayName(*patch.DisplayName); err != nil {
			return nil, err
		}
	}

	var prof *models.Profile
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if prof, err = getProfile(tx, wallet); err != nil {
			return err
		}

		if patch.DisplayName != nil {
			key := foldName(name)
			if err := s.ensureNameFree(tx, key, wallet); err != nil {
				return err
			}
			prof.DisplayName = name
			prof.DisplayNameKey = key
		}
		if patch.AvatarID != nil {
			prof.AvatarID = *patch.AvatarID
		}
		if patch.ImageURL != nil {
			prof.ImageURL = *patch.ImageURL
		}
		return tx.Save(prof).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, apperrors.New(apperrors.CodeNameTaken, "display name is taken")
	}
	return prof, err
}

// SetImageURL is used by media uploads.
func (s *ProfileService) SetImageURL(ctx context.Context, wallet, url string) (*models.Profile, error) {
	return s.Update(ctx, wallet, ProfilePatch{ImageURL: &url})
}

func (s *ProfileService) Delete(ctx context.Context, wallet string) error {
	res := s.DB.WithContext(ctx).Where("wallet = ?", wallet).Delete(&models.Profile{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.New(apperrors.CodeProfileNotFound, "profile not found")
	}
	s.log.Info("[PROFILE] deleted", zap.String("wallet", wallet))
	return nil
}

// likeEscaper makes user input literal inside a LIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Search matches display names or wallet prefixes, case-insensitively.
func (s *ProfileService) Search(ctx context.Context, query string, limit int) ([]models.Profile, error) {
	if limit <= 0 || limit > maxSearchLimit {
		limit = 50
	}

	db := s.DB.WithContext(ctx).Model(&models.Profile{}).Limit(limit).Order("xp DESC, wallet")
	if q := strings.TrimSpace(query); q != "" {
		db = db.Where(`display_name_key LIKE ? ESCAPE '\' OR wallet LIKE ? ESCAPE '\'`,
			"%"+likeEscaper.Replace(foldName(q))+"%", likeEscaper.Replace(strings.ToLower(q))+"%")
	}

	var profiles []models.Profile
	if err := db.Find(&profiles).Error; err != nil {
		return nil, err
	}
	return profiles, nil
}

// profilesByWallet loads the profiles for wallets, keyed by wallet.
func profilesByWallet(tx *gorm.DB, wallets []string) (map[string]*models.Profile, error) {
	var rows []models.Profile
	if len(wallets) > 0 {
		if err := tx.Where("wallet IN ?", wallets).Find(&rows).Error; err != nil {
			return nil, err
		}
	}
	out := make(map[string]*models.Profile, len(rows))
	for i := range rows {
		out[rows[i].Wallet] = &rows[i]
	}
	return out, nil
}
