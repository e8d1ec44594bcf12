package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message,omitempty"`
}

// Error is the structured rejection of malformed input. It is always returned before any side effect.
type Error struct {
	Fields []FieldError
	// Decode is set when the body never reached validation: invalid_json_syntax or invalid_json_type.
	Decode string
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		if e.Decode != "" {
			return "validation failed: " + e.Decode
		}
		return "validation failed"
	}

	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Field builds a single-field Error for checks that happen outside struct tags.
func Field(field, rule, message string) *Error {
	return &Error{Fields: []FieldError{{Field: field, Rule: rule, Message: message}}}
}

var (
	once     sync.Once
	validate *validator.Validate
)

// engine shares the "binding" tag with gin so request structs carry a single rule set.
func engine() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.SetTagName("binding")
		UseJSONNames(validate)
	})
	return validate
}

// UseJSONNames makes v report fields by their JSON name. Call it on gin's engine too.
func UseJSONNames(v *validator.Validate) {
	v.RegisterTagNameFunc(jsonName)
}

func jsonName(sf reflect.StructField) string {
	name, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return sf.Name
	}
	return name
}

// Struct validates v and returns *Error listing each failing field by its JSON name.
func Struct(v any) error {
	err := engine().Struct(v)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("validate: %w", err)
	}

	return FromValidator(validationErrors)
}

// FromValidator converts validator errors; field names come from the engine's tag name func.
func FromValidator(errs validator.ValidationErrors) *Error {
	fields := make([]FieldError, 0, len(errs))

	for _, fe := range errs {
		fields = append(fields, FieldError{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Param:   fe.Param(),
			Message: Message(fe.Tag(), fe.Param()),
		})
	}

	return &Error{Fields: fields}
}

// FromDecode classifies a request body error from JSON decoding or tag validation.
// It returns nil for errors it does not recognise.
func FromDecode(err error) *Error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		return FromValidator(validationErrors)
	}

	var syntaxError *json.SyntaxError
	if errors.As(err, &syntaxError) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &Error{Decode: "invalid_json_syntax"}
	}

	var typeError *json.UnmarshalTypeError
	if errors.As(err, &typeError) {
		field := strings.TrimSpace(typeError.Field)
		return &Error{
			Decode: "invalid_json_type",
			Fields: []FieldError{{
				Field:   field,
				Rule:    "type",
				Message: fmt.Sprintf("must be of type %s", typeError.Type.String()),
			}},
		}
	}

	return nil
}

func Message(rule, param string) string {
	switch rule {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + param
	case "max":
		return "must be at most " + param
	case "len":
		return "must be exactly " + param
	case "oneof":
		return "must be one of " + strings.ReplaceAll(param, " ", ", ")
	default:
		if param != "" {
			return fmt.Sprintf("failed %s validation (%s)", rule, param)
		}
		return "failed " + rule + " validation"
	}
}
