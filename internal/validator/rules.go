package validator

import (
	"github.com/go-playground/validator/v10"

	"elimu_backend/internal/services/payments"
)

// registerCustomRules adds application-specific rules.
func registerCustomRules(v *validator.Validate) error {
	// msisdn: the value must normalize to canonical 2547XX/2541XX form.
	return v.RegisterValidation("msisdn", func(fl validator.FieldLevel) bool {
		_, err := payments.NormalizeMSISDN(fl.Field().String())
		return err == nil
	})
}
