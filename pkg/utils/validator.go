package utils

import (
	"net/http"

	apperrors "triage-system/pkg/errors"

	"github.com/go-playground/validator/v10"
)

// CustomValidator - адаптер go-playground/validator для echo.
type CustomValidator struct {
	validator *validator.Validate
}

func NewValidator(v *validator.Validate) *CustomValidator {
	return &CustomValidator{validator: v}
}

func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		return apperrors.NewHttpError(
			http.StatusBadRequest,
			"Ошибка валидации входных данных",
			err,
			nil,
		)
	}
	return nil
}
