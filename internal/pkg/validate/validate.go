// Package validate wraps go-playground/validator with the project's custom
// rules and turns its errors into per-field messages.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/techgrid/site-backend/internal/domain"
)

var validate *validator.Validate

var (
	personNameRe = regexp.MustCompile(`^[a-zA-Z\s'-]+$`)
	phoneRe      = regexp.MustCompile(`^\+?[\d\s\-().]{7,25}$`)
	tagRe        = regexp.MustCompile(`<[^>]*>`)
)

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = validate.RegisterValidation("personname", func(fl validator.FieldLevel) bool {
		return personNameRe.MatchString(fl.Field().String())
	})
	_ = validate.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phoneRe.MatchString(fl.Field().String())
	})
}

// fixed messages that do not follow the generic "<Label> ..." pattern.
var overrides = map[string]map[string]string{
	"terms": {"required": "Terms and conditions must be accepted"},
	"phone": {"phone": "Please provide a valid phone number (numbers, spaces, dashes, parentheses allowed)"},
}

// Struct validates s and returns a *domain.ValidationError listing every
// failed field, or nil.
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate: %w", err)
	}
	out := &domain.ValidationError{}
	for _, fe := range verrs {
		field := fieldKey(fe.Namespace())
		out.Add(field, message(field, fe))
	}
	return out
}

// Sanitize strips HTML tags and surrounding whitespace.
func Sanitize(s string) string {
	return strings.TrimSpace(tagRe.ReplaceAllString(s, ""))
}

// SanitizeAll sanitizes each string in place. Nil pointers are skipped.
func SanitizeAll(ptrs ...*string) {
	for _, p := range ptrs {
		if p != nil {
			*p = Sanitize(*p)
		}
	}
}

// fieldKey turns "RegistrationInput.interests[2]" into "interests" and
// "SubscribeInput.preferences.frequency" into "preferences.frequency".
func fieldKey(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	if i := strings.Index(ns, "["); i >= 0 {
		ns = ns[:i]
	}
	return ns
}

func message(field string, fe validator.FieldError) string {
	if m, ok := overrides[field][fe.Tag()]; ok {
		return m
	}
	label := Label(field)
	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "email":
		return "Please provide a valid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", label, fe.Param())
	case "max":
		return fmt.Sprintf("%s cannot exceed %s characters", label, fe.Param())
	case "personname":
		return label + " contains invalid characters"
	case "oneof":
		if strings.Contains(fe.Namespace(), "[") {
			return fmt.Sprintf("Invalid %s: %v", strings.ToLower(label), fe.Value())
		}
		return fmt.Sprintf("%s must be one of: %s", label, strings.Join(strings.Fields(fe.Param()), ", "))
	}
	return label + " is invalid"
}

// Label renders a JSON field path as a sentence-case label:
// "jobTitle" -> "Job title", "preferences.frequency" -> "Frequency".
func Label(field string) string {
	if i := strings.LastIndex(field, "."); i >= 0 {
		field = field[i+1:]
	}
	var b strings.Builder
	for i, r := range field {
		switch {
		case i == 0:
			b.WriteRune(unicode.ToUpper(r))
		case unicode.IsUpper(r):
			b.WriteRune(' ')
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
