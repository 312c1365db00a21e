package services

import (
	"fmt"

	"dinecast-api/pkg/models"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// validateStruct プロバイダー応答の境界検証
func validateStruct(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	return nil
}
