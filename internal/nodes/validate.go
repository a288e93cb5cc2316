package nodes

import (
	"reflect"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// newValidator reports fields by their yaml names so errors match what an
// operator wrote in the journey file.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validateConfig(node string, cfg any) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		reason := "failed " + fe.Tag()
		switch fe.Tag() {
		case "required":
			reason = "is required"
		case "url":
			reason = "must be an absolute URL"
		}
		return &ConfigurationError{Node: node, Field: fe.Field(), Reason: reason}
	}
	return &ConfigurationError{Node: node, Field: "config", Err: err}
}
