package accounts_http

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"ledger/internal/domain"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report fields by their JSON names.
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// validatePayload returns a validation business error describing the first
// failed constraint, or nil.
func validatePayload(payload any) error {
	err := getValidator().Struct(payload)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) || len(validationErrors) == 0 {
		return domain.Internal(fmt.Errorf("validate payload: %w", err))
	}

	fe := validationErrors[0]
	switch fe.Tag() {
	case "required":
		return domain.Validation(fmt.Sprintf("invalid payload: %s is required", fe.Field()))
	default:
		return domain.Validation(fmt.Sprintf("invalid payload: %s failed %s check", fe.Field(), fe.Tag()))
	}
}
