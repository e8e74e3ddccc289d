package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"qmsgov/internal/types"

	"github.com/go-playground/validator/v10"
)

var (
	once     sync.Once
	validate *validator.Validate
)

// Validator represents a validator instance
type Validator struct {
	validate *validator.Validate
}

// New creates a new validator instance
func New() *Validator {
	once.Do(func() {
		validate = validator.New()

		// Register custom validation functions
		_ = validate.RegisterValidation("entity_type", validateEntityType)
		_ = validate.RegisterValidation("change_kind", validateChangeKind)
		_ = validate.RegisterValidation("impact_level", validateImpactLevel)
		_ = validate.RegisterValidation("decision", validateDecision)

		// Use JSON tag names in error messages
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})

	return &Validator{
		validate: validate,
	}
}

// Struct validates a struct. Field failures wrap types.ErrValidation.
func (v *Validator) Struct(s any) error {
	if err := v.validate.Struct(s); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			return fmt.Errorf("invalid validation error: %w", err)
		}

		var errMsgs []string
		for _, err := range err.(validator.ValidationErrors) {
			errMsgs = append(errMsgs, formatError(err))
		}
		return fmt.Errorf("%w: %s", types.ErrValidation, strings.Join(errMsgs, "; "))
	}
	return nil
}

// Var validates a single variable
func (v *Validator) Var(field any, tag string) error {
	return v.validate.Var(field, tag)
}

// Engine returns the underlying validator engine
func (v *Validator) Engine() any {
	return v.validate
}

// formatError formats a validation error
func formatError(err validator.FieldError) string {
	field := err.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, err.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, err.Param())
	case "email":
		return fmt.Sprintf("%s must be a valid email", field)
	case "entity_type":
		return fmt.Sprintf("%s must be a tracked entity type, got %q", field, err.Value())
	case "change_kind":
		return fmt.Sprintf("%s must be CREATE, UPDATE or DELETE, got %q", field, err.Value())
	case "impact_level":
		return fmt.Sprintf("%s must be LOW, MEDIUM, HIGH or CRITICAL, got %q", field, err.Value())
	case "decision":
		return fmt.Sprintf("%s must be APPROVED, REJECTED, ESCALATED or BYPASSED, got %q", field, err.Value())
	default:
		return fmt.Sprintf("%s failed on tag %s", field, err.Tag())
	}
}

func validateEntityType(fl validator.FieldLevel) bool {
	return types.EntityType(fl.Field().String()).Valid()
}

func validateChangeKind(fl validator.FieldLevel) bool {
	return types.ChangeKind(fl.Field().String()).Valid()
}

func validateImpactLevel(fl validator.FieldLevel) bool {
	v := fl.Field().String()
	return v == "" || types.ImpactLevel(v).Valid()
}

// A decision is any approval status other than PENDING
func validateDecision(fl validator.FieldLevel) bool {
	s := types.ApprovalStatus(fl.Field().String())
	return s.Valid() && s != types.ApprovalPending
}
