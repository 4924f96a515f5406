// Package validate checks Person records (and update patches) against
// the collection's field rules before anything is written.
//
// The rules live in the validate:"..." struct tags on types.Person and
// types.Patch and are enforced by go-playground/validator. This package
// adds the one rule a tag cannot express (trim the name first) and turns
// validator.ValidationErrors into readable per-field messages.
package validate

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/aanand-mishra/people-lifecycle/internal/storage"
	"github.com/aanand-mishra/people-lifecycle/internal/types"
)

// A single *validator.Validate caches struct metadata and is safe for
// concurrent use, so the package keeps one instead of calling
// validator.New() per record.
var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New(validator.WithRequiredStructEnabled())
	// "finite" rejects NaN and ±Inf.
	if err := val.RegisterValidation("finite", isFinite); err != nil {
		panic(err)
	}
	return val
}

func isFinite(fl validator.FieldLevel) bool {
	switch f := fl.Field(); f.Kind() {
	case reflect.Float32, reflect.Float64:
		return !math.IsNaN(f.Float()) && !math.IsInf(f.Float(), 0)
	default:
		return true
	}
}

// FieldError describes one failed rule.
type FieldError struct {
	Field   string // struct field name, e.g. "Salary"
	Rule    string // validator tag, e.g. "min"
	Param   string // tag parameter, e.g. "0"
	Message string // human-readable sentence
}

// Error is returned when a record breaks one or more rules.
// errors.Is(err, storage.ErrValidation) holds for every *Error.
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	return "validation failed: " + strings.Join(msgs, ", ")
}

func (e *Error) Unwrap() error { return storage.ErrValidation }

// Person normalises p (trims the name) and checks every field rule.
// On success the normalised record is returned.
func Person(p types.Person) (types.Person, error) {
	p.Name = strings.TrimSpace(p.Name)
	if err := check(p); err != nil {
		return types.Person{}, err
	}
	return p, nil
}

// Patch normalises and checks the fields a patch sets. Unset fields are
// skipped, so an empty patch is valid.
func Patch(p types.Patch) (types.Patch, error) {
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		p.Name = &name
	}
	if err := check(p); err != nil {
		return types.Patch{}, err
	}
	return p, nil
}

func check(s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		// InvalidValidationError: we passed something that is not a struct.
		return fmt.Errorf("validate: %w", err)
	}

	out := &Error{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{
			Field:   fe.Field(),
			Rule:    fe.ActualTag(),
			Param:   fe.Param(),
			Message: message(fe),
		})
	}
	return out
}

// message converts a validator.FieldError into a plain English sentence.
func message(fe validator.FieldError) string {
	switch fe.ActualTag() {
	// "required" tag: field was missing or zero-valued
	case "required":
		return fmt.Sprintf("field %s is required", fe.Field())
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("field %s must be at least %s characters long", fe.Field(), fe.Param())
		}
		return fmt.Sprintf("field %s cannot be less than %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("field %s cannot be greater than %s", fe.Field(), fe.Param())
	case "finite":
		return fmt.Sprintf("field %s must be a finite number", fe.Field())
	case "oneof":
		return fmt.Sprintf("field %s must be one of [%s]", fe.Field(), fe.Param())
	// Catch-all for any other validation tag
	default:
		return fmt.Sprintf("field %s is invalid", fe.Field())
	}
}
