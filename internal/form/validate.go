package form

import (
	"errors"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// ErrInvalid is wrapped by *ValidationError.
var ErrInvalid = errors.New("form has invalid fields")

var (
	validate   *validator.Validate
	translator ut.Translator
)

func init() {
	validate = validator.New()

	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(validate, translator)
}

// ValidationError lists per-field messages keyed by field name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for n := range e.Fields {
		names = append(names, n)
	}
	return ErrInvalid.Error() + ": " + strings.Join(names, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }

// Validate checks required fields and the kind's extra rules. It returns
// nil or a *ValidationError.
func Validate(t Template, rules map[string]string, v Values) error {
	fields := map[string]string{}
	for _, f := range t {
		c := f.common()
		val := v[c.Name]

		if c.Required {
			var err error
			if val.IsList() {
				err = validate.Var(val.Strings(), "gt=0")
			} else {
				err = validate.Var(val.String(), "required")
			}
			if err != nil {
				fields[c.Name] = message(c.Label, err)
				continue
			}
		}

		tag, ok := rules[c.Name]
		if !ok || val.IsList() {
			continue
		}
		if err := validate.Var(strings.TrimSpace(val.String()), tag); err != nil {
			fields[c.Name] = message(c.Label, err)
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// message translates the first validation failure and prefixes the label.
func message(label string, err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		msg := verrs[0].Translate(translator)
		// Var() errors carry an empty field name; the translation then
		// starts with a space.
		return label + " " + strings.TrimSpace(msg)
	}
	return label + " is invalid"
}
