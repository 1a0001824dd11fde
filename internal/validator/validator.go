package validator

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// New creates a new validator instance with custom validations registered.
// This ensures consistent validation across the application and tests.
func New() *validator.Validate {
	v := validator.New()

	// Register custom "notblank" validator - rejects whitespace-only strings
	// This is used for fields like QR tokens that must have meaningful content
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		str, ok := fl.Field().Interface().(string)
		if !ok {
			return true // Not a string, let other validators handle it
		}
		return strings.TrimSpace(str) != ""
	})

	// Register custom "futuredate" validator - a YYYY-MM-DD date strictly
	// after today. Voucher expiries must never be created in the past.
	_ = v.RegisterValidation("futuredate", func(fl validator.FieldLevel) bool {
		str, ok := fl.Field().Interface().(string)
		if !ok {
			return true
		}
		t, err := time.ParseInLocation("2006-01-02", str, time.Local)
		if err != nil {
			return false
		}
		now := time.Now()
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)
		return t.After(today)
	})

	return v
}
