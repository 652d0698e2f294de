package schema

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Validator handles validation of parsed events against the schema.
type Validator struct {
	validate  *validator.Validate
	maxAge    time.Duration
	maxFuture time.Duration
}

// ValidatorConfig holds configuration for the validator.
type ValidatorConfig struct {
	MaxAge    time.Duration
	MaxFuture time.Duration
}

// DefaultValidatorConfig returns the default validator configuration.
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		MaxAge:    30 * 24 * time.Hour,
		MaxFuture: 5 * time.Minute,
	}
}

// NewValidator creates a new Validator with default configuration.
func NewValidator() *Validator {
	return NewValidatorWithConfig(DefaultValidatorConfig())
}

// NewValidatorWithConfig creates a new Validator with the specified
// configuration.
func NewValidatorWithConfig(cfg ValidatorConfig) *Validator {
	v := validator.New()

	v.RegisterValidation("waf_action", func(fl validator.FieldLevel) bool {
		return Action(fl.Field().String()).IsValid()
	})

	return &Validator{
		validate:  v,
		maxAge:    cfg.MaxAge,
		maxFuture: cfg.MaxFuture,
	}
}

// ValidateStruct runs the tag-level validation only, without the
// timestamp freshness bounds. Batch analysis replays historical events
// whose age is legitimate, so the parser uses this form.
func (v *Validator) ValidateStruct(event *ParsedEvent) error {
	if err := v.validate.Struct(event); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// Validate validates a parsed event including freshness bounds, for
// real-time ingestion paths.
func (v *Validator) Validate(event *ParsedEvent) error {
	if err := v.ValidateStruct(event); err != nil {
		return err
	}

	now := time.Now().UTC()

	if event.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}

	if event.Timestamp.Before(now.Add(-v.maxAge)) {
		return fmt.Errorf("timestamp too old: %v (max age: %v)", event.Timestamp, v.maxAge)
	}

	if event.Timestamp.After(now.Add(v.maxFuture)) {
		return fmt.Errorf("timestamp in future: %v (max future: %v)", event.Timestamp, v.maxFuture)
	}

	return nil
}
