package handlers

import (
	"io"

	"gatecrawl-backend/apperrors"
	"gatecrawl-backend/middleware"
	"gatecrawl-backend/services"

	"github.com/gofiber/fiber/v2"
)

// readUpload loads the multipart `file` field, enforcing the upload size cap.
func readUpload(c *fiber.Ctx) (name, contentType string, body []byte, err error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return "", "", nil, apperrors.Wrap(err, apperrors.CodeValidation, "multipart field 'file' is required")
	}
	if fh.Size > services.MaxUploadBytes {
		return "", "", nil, apperrors.Newf(apperrors.CodePayloadTooLarge, "file exceeds %d bytes", services.MaxUploadBytes)
	}

	f, err := fh.Open()
	if err != nil {
		return "", "", nil, err
	}
	defer f.Close()

	body, err = io.ReadAll(io.LimitReader(f, services.MaxUploadBytes+1))
	if err != nil {
		return "", "", nil, err
	}
	return fh.Filename, fh.Header.Get(fiber.HeaderContentType), body, nil
}

func SetupMediaRoutes(api fiber.Router, media *services.MediaService, requireSession fiber.Handler) {
	g := api.Group("/media", requireSession)

	g.Post("/profile-image", func(c *fiber.Ctx) error {
		name, contentType, body, err := readUpload(c)
		if err != nil {
			return err
		}
		up, err := media.UploadProfileImage(c.UserContext(), middleware.Wallet(c), name, contentType, body)
		if err != nil {
			return err
		}
		return created(c, up)
	})

	g.Post("/relic-image", func(c *fiber.Ctx) error {
		name, contentType, body, err := readUpload(c)
		if err != nil {
			return err
		}
		up, err := media.Upload(c.UserContext(), services.MediaRelic, name, contentType, body)
		if err != nil {
			return err
		}
		return created(c, up)
	})
}
