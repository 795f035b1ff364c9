/*
Package factory provides JSON to Go payload conversion.

PURPOSE:
  Converts raw JSON request data into typed, validated Go structs. The
  approval workflow stores payloads as opaque JSON; this factory is how a
  dispatch handler turns that JSON back into its own payload type, and how
  the same shape is checked before a request is accepted.

VALIDATION:
  Struct rules are declared with `validate:"..."` tags and checked by
  go-playground/validator. Field names in errors use the json tag, so a
  caller sees "registrationNumber" rather than "RegistrationNumber".

  Payloads needing cross-field rules implement Checker; Check runs after
  the tag rules pass.

STRICTNESS:
  Unknown JSON fields are rejected. A MEMBER_UPDATE payload that tries to
  set "status" fails at submission instead of being silently dropped.

USAGE:
  decode := factory.JSONDecoder[MemberCreatePayload]()
  p, err := decode(raw)
  if generic.IsValidation(err) {
      // 400
  }

  // Plain structs (service inputs)
  if err := factory.Validate(in); err != nil {
      return nil, err
  }

SEE ALSO:
  - generic/dispatch.go: NewHandler takes a decoder built here
  - membership/approvals.go: Payload types
*/
package factory

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/warp/membership-engine/generic"
)

// Checker is implemented by payloads with rules struct tags cannot express.
type Checker interface {
	Check() error
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks struct tags and Checker rules on v. Failures are
// returned as *generic.ValidationError naming the first bad field.
func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fieldError(verrs[0])
		}
		return &generic.ValidationError{Message: err.Error()}
	}
	if c, ok := v.(Checker); ok {
		return c.Check()
	}
	return nil
}

func fieldError(fe validator.FieldError) *generic.ValidationError {
	var msg string
	switch fe.Tag() {
	case "required":
		msg = "is required"
	case "email":
		msg = "must be a valid email address"
	case "oneof":
		msg = fmt.Sprintf("must be one of [%s]", fe.Param())
	case "min":
		msg = fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		msg = fmt.Sprintf("must be at most %s", fe.Param())
	default:
		msg = fmt.Sprintf("failed %q rule", fe.Tag())
	}
	return &generic.ValidationError{Field: fieldPath(fe), Message: msg}
}

// fieldPath drops the root struct name from the namespace:
// "MemberUpdatePayload.updateData.email" becomes "updateData.email".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

// =============================================================================
// JSON DECODER
// =============================================================================

// JSONDecoder returns a function decoding raw JSON into T and validating it.
// An empty payload decodes as "{}".
func JSONDecoder[T any]() func(raw json.RawMessage) (T, error) {
	return func(raw json.RawMessage) (T, error) {
		var p T
		if len(bytes.TrimSpace(raw)) == 0 {
			raw = json.RawMessage(`{}`)
		}

		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&p); err != nil {
			return p, &generic.ValidationError{Field: "requestData", Message: err.Error()}
		}
		if err := dec.Decode(&struct{}{}); err != io.EOF {
			return p, &generic.ValidationError{Field: "requestData", Message: "must contain a single JSON object"}
		}

		if err := Validate(p); err != nil {
			return p, err
		}
		return p, nil
	}
}
