package kind

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/garyjia/record-workflow/internal/domain/apperror"
)

// FieldType is the expected type of a payload field
type FieldType string

const (
	FieldString FieldType = "string"
	FieldEmail  FieldType = "email"
	FieldPhone  FieldType = "phone"
	FieldNumber FieldType = "number"
	FieldBool   FieldType = "bool"
	FieldEnum   FieldType = "enum"
)

// FormatChecker validates contact formats
type FormatChecker interface {
	IsValidEmail(value string) bool
	IsValidPhone(value string) bool
}

// FieldRule describes one payload field
type FieldRule struct {
	Name     string
	Type     FieldType
	Required bool
	MaxLen   int
	Min      *float64
	Enum     []string
	// Aliases are alternative names accepted from form intake
	Aliases []string
}

// Schema is the ordered list of fields a payload may carry
type Schema []FieldRule

// RequiredFields returns the names of required fields
func (s Schema) RequiredFields() []string {
	var out []string
	for _, f := range s {
		if f.Required {
			out = append(out, f.Name)
		}
	}
	return out
}

// Field looks up a rule by name
func (s Schema) Field(name string) (FieldRule, bool) {
	for _, f := range s {
		if f.Name == name {
			return f, true
		}
	}
	return FieldRule{}, false
}

// Check validates present fields against their rules. Missing fields are not
// reported here; required-ness is checked separately. Unknown fields are rejected.
func (s Schema) Check(payload map[string]any, checker FormatChecker) []apperror.FieldError {
	var problems []apperror.FieldError
	for _, key := range slices.Sorted(maps.Keys(payload)) {
		if _, ok := s.Field(key); !ok {
			problems = append(problems, apperror.FieldError{Field: key, Message: "is not a known field"})
		}
	}

	for _, f := range s {
		v, ok := payload[f.Name]
		if !ok || v == nil {
			continue
		}
		if msg := f.check(v, checker); msg != "" {
			problems = append(problems, apperror.FieldError{Field: f.Name, Message: msg})
		}
	}
	return problems
}

func (f FieldRule) check(v any, checker FormatChecker) string {
	switch f.Type {
	case FieldNumber:
		n, ok := toFloat(v)
		if !ok {
			return "must be a number"
		}
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return "must be a finite number"
		}
		if f.Min != nil && n < *f.Min {
			return fmt.Sprintf("must be at least %v", *f.Min)
		}
		return ""
	case FieldBool:
		if _, ok := v.(bool); !ok {
			return "must be true or false"
		}
		return ""
	}

	s, ok := v.(string)
	if !ok {
		return "must be a string"
	}
	if f.MaxLen > 0 && len([]rune(s)) > f.MaxLen {
		return fmt.Sprintf("must be at most %d characters", f.MaxLen)
	}
	if s == "" {
		return ""
	}

	switch f.Type {
	case FieldEmail:
		if !checker.IsValidEmail(s) {
			return "must be a valid email address"
		}
	case FieldPhone:
		if !checker.IsValidPhone(s) {
			return "must be a valid phone number"
		}
	case FieldEnum:
		for _, allowed := range f.Enum {
			if s == allowed {
				return ""
			}
		}
		return fmt.Sprintf("must be one of %s", strings.Join(f.Enum, ", "))
	}
	return ""
}

// FromForm maps raw form values onto schema fields, resolving aliases and
// converting numbers and booleans. Values for unknown names are kept as-is
// so Check can report them.
func (s Schema) FromForm(values map[string]string) map[string]any {
	out := make(map[string]any, len(values))
	for name, raw := range values {
		raw = strings.TrimSpace(raw)
		f, ok := s.resolve(name)
		if !ok {
			out[name] = raw
			continue
		}
		if raw == "" {
			continue
		}
		switch f.Type {
		case FieldNumber:
			if n, err := strconv.ParseFloat(raw, 64); err == nil {
				out[f.Name] = n
				continue
			}
		case FieldBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				out[f.Name] = b
				continue
			}
			if strings.EqualFold(raw, "yes") || strings.EqualFold(raw, "on") {
				out[f.Name] = true
				continue
			}
		case FieldEnum:
			for _, allowed := range f.Enum {
				if strings.EqualFold(raw, allowed) {
					raw = allowed
					break
				}
			}
		}
		out[f.Name] = raw
	}
	return out
}

func (s Schema) resolve(name string) (FieldRule, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	for _, f := range s {
		if f.Name == key {
			return f, true
		}
		for _, alias := range f.Aliases {
			if strings.EqualFold(alias, key) {
				return f, true
			}
		}
	}
	return FieldRule{}, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func floatPtr(v float64) *float64 {
	return &v
}
