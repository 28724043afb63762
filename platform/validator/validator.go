// Package validator wraps go-playground/validator with the custom tags the
// request DTOs use.
package validator

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

// TagProviderName accepts a configured provider identifier: lower-case
// letters, digits, dash or underscore, starting with a letter.
const TagProviderName = "providername"

var providerNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,49}$`)

// Validator is injected into handlers.
type Validator struct {
	v *validator.Validate
}

// New returns a Validator with the custom tags registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Registration only fails for an empty tag or nil func.
	_ = v.RegisterValidation(TagProviderName, func(fl validator.FieldLevel) bool {
		return providerNamePattern.MatchString(fl.Field().String())
	})
	return &Validator{v: v}
}

// Struct validates s against its validate tags.
func (val *Validator) Struct(s interface{}) error {
	return val.v.Struct(s)
}
