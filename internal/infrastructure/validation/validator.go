// Package validation implements field checks on go-playground/validator.
package validation

import (
	"strings"

	"github.com/garyjia/record-workflow/internal/application/port"
	"github.com/go-playground/validator/v10"
)

// phoneSeparators are stripped before a phone number is checked as E.164
var phoneSeparators = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")

// Validator implements port.FieldValidator
type Validator struct {
	v *validator.Validate
}

var _ port.FieldValidator = (*Validator)(nil)

// New creates a validator
func New() *Validator {
	return &Validator{v: validator.New(validator.WithRequiredStructEnabled())}
}

// AssertRequired returns the fields that are absent, nil, zero or blank, in the order given
func (v *Validator) AssertRequired(record map[string]any, fields []string) []string {
	var missing []string
	for _, field := range fields {
		value, ok := record[field]
		if !ok || value == nil {
			missing = append(missing, field)
			continue
		}
		if s, isString := value.(string); isString {
			if strings.TrimSpace(s) == "" {
				missing = append(missing, field)
			}
			continue
		}
		if _, isBool := value.(bool); isBool {
			// false is a value, not an absence
			continue
		}
		if err := v.v.Var(value, "required"); err != nil {
			missing = append(missing, field)
		}
	}
	return missing
}

// IsValidEmail reports whether value is an email address
func (v *Validator) IsValidEmail(value string) bool {
	return v.v.Var(strings.TrimSpace(value), "required,email") == nil
}

// IsValidPhone reports whether value is an E.164 number once separators are removed
func (v *Validator) IsValidPhone(value string) bool {
	return v.v.Var(phoneSeparators.Replace(strings.TrimSpace(value)), "required,e164") == nil
}

// Struct validates struct fields tagged with `validate`
func (v *Validator) Struct(s interface{}) error {
	return v.v.Struct(s)
}
