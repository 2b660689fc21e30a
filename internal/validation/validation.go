// Package validation provides input validation helpers for the ScamShield API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

// MaxDescriptionLength caps free-text payment descriptions.
const MaxDescriptionLength = 2000

var (
	// ibanRegex validates IBAN-style account identifiers: country code,
	// two check digits, then 11-30 alphanumerics.
	ibanRegex = regexp.MustCompile(`^[A-Z]{2}[0-9]{2}[A-Z0-9]{11,30}$`)
	// currencyRegex validates ISO 4217 currency codes.
	currencyRegex = regexp.MustCompile(`^[A-Z]{3}$`)
)

// validChannels are the accepted payment origination channels.
var validChannels = map[string]bool{"web": true, "mobile": true, "branch": true}

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidAccount checks whether a string is a plausible IBAN-style account.
func IsValidAccount(acct string) bool {
	return ibanRegex.MatchString(strings.ToUpper(strings.TrimSpace(acct)))
}

// IsValidCurrency checks an ISO 4217 currency code.
func IsValidCurrency(cur string) bool {
	return currencyRegex.MatchString(cur)
}

// IsValidChannel checks a payment channel value.
func IsValidChannel(ch string) bool {
	return validChannels[ch]
}

// NormalizeAccount uppercases and strips whitespace from an account identifier.
func NormalizeAccount(acct string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(acct), " ", ""))
}

// SanitizeString removes dangerous characters and limits length
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	s = strings.ReplaceAll(s, "\x00", "")
	return s
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate runs the given validators and collects their errors.
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errs ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errs = append(errs, *err)
		}
	}
	return errs
}

// ValidAccount returns a validator for an IBAN-style account field.
func ValidAccount(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if !IsValidAccount(value) {
			return &ValidationError{Field: field, Message: "must be a valid IBAN-style account identifier"}
		}
		return nil
	}
}

// ValidCurrency returns a validator for an ISO 4217 currency field.
func ValidCurrency(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if !IsValidCurrency(value) {
			return &ValidationError{Field: field, Message: "must be a 3-letter ISO 4217 code"}
		}
		return nil
	}
}

// ValidChannel returns a validator for the payment channel field.
func ValidChannel(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if !IsValidChannel(value) {
			return &ValidationError{Field: field, Message: "must be one of web, mobile, branch"}
		}
		return nil
	}
}

// PositiveAmount returns a validator for a positive monetary amount.
func PositiveAmount(field string, value float64) func() *ValidationError {
	return func() *ValidationError {
		if value <= 0 {
			return &ValidationError{Field: field, Message: "must be positive"}
		}
		return nil
	}
}
