package handlers

import (
	"errors"
	"reflect"
	"strings"

	"gatecrawl-backend/apperrors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report json field names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type fieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

// parseBody decodes the JSON body into dst and runs its validate tags.
func parseBody(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return apperrors.Wrap(err, apperrors.CodeValidation, "invalid request body")
	}
	return validateStruct(dst)
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.Wrap(err, apperrors.CodeValidation, "invalid request")
	}
	fields := make([]fieldError, len(verrs))
	names := make([]string, len(verrs))
	for i, fe := range verrs {
		fields[i] = fieldError{Field: fe.Namespace(), Rule: fe.Tag(), Param: fe.Param()}
		names[i] = fe.Field()
	}
	return apperrors.New(apperrors.CodeValidation, "invalid fields: "+strings.Join(names, ", ")).
		WithDetails(fields)
}
