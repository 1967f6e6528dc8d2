package score

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Request is the wire schema of a prediction request.
// Pointers distinguish a missing field from an explicit zero.
type Request struct {
	PitchStrength *float64 `json:"pitch_strength_score" yaml:"pitch_strength_score" validate:"required,gte=0,lte=10"`
	IdentityModel *float64 `json:"identity_model_score" yaml:"identity_model_score" validate:"required,gte=0,lte=10"`
	Momentum      *float64 `json:"momentum_tracker_score" yaml:"momentum_tracker_score" validate:"required,gte=0,lte=10"`
}

// NewRequest wraps plain values, used by the CLI and the remote client.
func NewRequest(in Input) *Request {
	p, i, m := in.Pitch, in.Identity, in.Momentum
	return &Request{PitchStrength: &p, IdentityModel: &i, Momentum: &m}
}

// Validate checks presence and range of every field.
func (r *Request) Validate() error {
	if r == nil {
		return &ValidationError{Fields: []FieldError{{Field: "body", Rule: "required", Message: "request body required"}}}
	}

	err := validate.Struct(r)
	if err == nil {
		return nil
	}

	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return fmt.Errorf("validating request: %w", err)
	}

	ve := &ValidationError{Fields: make([]FieldError, 0, len(ves))}
	for _, fe := range ves {
		ve.Fields = append(ve.Fields, FieldError{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Message: ruleMessage(fe.Tag(), fe.Param()),
		})
	}
	return ve
}

// Input converts a validated request into the fixed-order record.
func (r *Request) Input() Input {
	return Input{
		Pitch:    deref(r.PitchStrength),
		Identity: deref(r.IdentityModel),
		Momentum: deref(r.Momentum),
	}
}

// ParseRequest decodes and validates a JSON request body.
// Any decode or schema failure is a *ValidationError.
func ParseRequest(body io.Reader) (Input, error) {
	var req Request
	dec := json.NewDecoder(body)
	if err := dec.Decode(&req); err != nil {
		return Input{}, bodyError(fmt.Sprintf("invalid JSON: %v", err))
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return Input{}, bodyError("invalid JSON: unexpected data after request object")
	}

	if err := req.Validate(); err != nil {
		return Input{}, err
	}

	return req.Input(), nil
}

func bodyError(msg string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{
		Field:   "body",
		Rule:    "json",
		Message: msg,
	}}}
}

// FieldError describes one rejected field.
type FieldError struct {
	Field   string `json:"field" yaml:"field"`
	Rule    string `json:"rule" yaml:"rule"`
	Message string `json:"message" yaml:"message"`
}

// ValidationError is returned for malformed, missing or out-of-range input.
type ValidationError struct {
	Fields []FieldError `json:"details" yaml:"details"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func ruleMessage(tag, param string) string {
	switch tag {
	case "required":
		return "field required"
	case "gte":
		return "must be greater than or equal to " + param
	case "lte":
		return "must be less than or equal to " + param
	default:
		return "failed on " + tag
	}
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
