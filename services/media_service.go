package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"path/filepath"
	"strings"

	"gatecrawl-backend/apperrors"
	"gatecrawl-backend/utils"

	"github.com/gosimple/slug"
	"go.uber.org/zap"
)

// MaxUploadBytes caps a single media upload.
const MaxUploadBytes = 5 << 20

type MediaKind string

const (
	MediaProfile MediaKind = "profile"
	MediaRelic   MediaKind = "relic"
)

type Upload struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
}

type MediaService struct {
	store    utils.ObjectStore
	profiles *ProfileService
	log      *zap.Logger
}

func NewMediaService(store utils.ObjectStore, profiles *ProfileService, log *zap.Logger) *MediaService {
	return &MediaService{store: store, profiles: profiles, log: log}
}

// imageExt picks a safe file extension, falling back to the mime subtype.
func imageExt(filename, contentType string) string {
	ext := slug.Make(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ext == "" {
		sub := strings.TrimPrefix(contentType, "image/")
		if i := strings.IndexAny(sub, "+;"); i >= 0 {
			sub = sub[:i]
		}
		ext = slug.Make(sub)
	}
	if ext == "" {
		return ""
	}
	return "." + ext
}

// Upload stores an image under <kind>/<sha256><ext>.
func (s *MediaService) Upload(ctx context.Context, kind MediaKind, filename, contentType string, body []byte) (*Upload, error) {
	if len(body) == 0 {
		return nil, apperrors.New(apperrors.CodeValidation, "file is empty")
	}
	if len(body) > MaxUploadBytes {
		return nil, apperrors.Newf(apperrors.CodePayloadTooLarge, "file exceeds %d bytes", MaxUploadBytes)
	}

	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(body)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, apperrors.Newf(apperrors.CodeValidation, "unsupported content type %q", contentType)
	}

	sum := sha256.Sum256(body)
	key := string(kind) + "/" + hex.EncodeToString(sum[:]) + imageExt(filename, contentType)

	url, err := s.store.Put(ctx, key, body, contentType)
	if err != nil {
		s.log.Error("❌ [MEDIA] upload failed", zap.String("key", key), zap.Error(err))
		return nil, apperrors.Wrap(err, apperrors.CodeStorage, "failed to store file")
	}

	s.log.Info("📤 [MEDIA] stored", zap.String("key", key), zap.Int("bytes", len(body)))
	return &Upload{Key: key, URL: url, ContentType: contentType, Size: len(body)}, nil
}

// UploadProfileImage stores the image and points the wallet's profile at it.
func (s *MediaService) UploadProfileImage(ctx context.Context, wallet, filename, contentType string, body []byte) (*Upload, error) {
	if _, err := s.profiles.Get(ctx, wallet); err != nil {
		return nil, err
	}
	up, err := s.Upload(ctx, MediaProfile, filename, contentType, body)
	if err != nil {
		return nil, err
	}
	if _, err := s.profiles.SetImageURL(ctx, wallet, up.URL); err != nil {
		return nil, err
	}
	return up, nil
}
