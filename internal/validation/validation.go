// Package validation provides input validation for the tmxauth HTTP API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/tmxauth/internal/idgen"
)

// MaxRequestSize is the default request body limit (64KB).
const MaxRequestSize = 64 << 10

// MaxCallbackValueLength caps a single callback value returned by a client.
const MaxCallbackValueLength = 1024

var journeyNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidJourneyName reports whether s can name a journey in a URL.
func IsValidJourneyName(s string) bool {
	return journeyNameRegex.MatchString(s)
}

// IsValidAttemptID reports whether s has the shape of an engine-issued id.
func IsValidAttemptID(s string) bool {
	return idgen.IsValid(idgen.AttemptPrefix, s)
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

// Validate runs validators and collects their failures.
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errs ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errs = append(errs, *err)
		}
	}
	return errs
}

// Required checks if a field is non-empty
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// MaxLength checks if a field exceeds max length
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) > max {
			return &ValidationError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}

// NoControlChars rejects values carrying NUL or other ASCII control bytes.
func NoControlChars(field, value string) func() *ValidationError {
	return func() *ValidationError {
		for _, r := range value {
			if r < 0x20 || r == 0x7f {
				return &ValidationError{Field: field, Message: "contains control characters"}
			}
		}
		return nil
	}
}

// ParamMiddleware rejects requests whose :param fails valid before any
// handler or store lookup runs.
func ParamMiddleware(param string, valid func(string) bool, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if v := c.Param(param); v != "" && !valid(v) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_" + param,
				"message": message,
			})
			return
		}
		c.Next()
	}
}
