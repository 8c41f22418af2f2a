package engine

import (
	"fmt"

	"go.temporal.io/sdk/temporal"
)

// EngineErrorType classifies error severity and retry behavior.
type EngineErrorType string

const (
	// ErrorTypeConfiguration signals a fatal DSL/config problem; never retried.
	ErrorTypeConfiguration EngineErrorType = "configuration"
	// ErrorTypeActivity signals an activity failure governed by the step's retry policy.
	ErrorTypeActivity EngineErrorType = "activity"
)

// Application error type names attached to Temporal failures. Names in this
// set abort the retry loop regardless of remaining attempts (see DefaultNonRetryableErrorTypes).
const (
	ErrConfigurationError = "ConfigurationError"
	ErrNoDocumentFound    = "NoDocumentFound"
	ErrNoParameterFound   = "NoParameterFound"
)

// DefaultNonRetryableErrorTypes is the engine-wide list merged into every
// computed retry policy.
var DefaultNonRetryableErrorTypes = []string{
	ErrConfigurationError,
	ErrNoDocumentFound,
	ErrNoParameterFound,
}

// EngineError is the canonical error type propagated through a DSL execution.
// It is JSON-serializable so it can cross the Temporal payload boundary intact.
type EngineError struct {
	Type    EngineErrorType `json:"type"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Step    string          `json:"step,omitempty"`
}

func (e *EngineError) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("[%s/%s] %s (step: %s)", e.Type, e.Code, e.Message, e.Step)
	}
	return fmt.Sprintf("[%s/%s] %s", e.Type, e.Code, e.Message)
}

// NewConfigurationError builds the fatal, non-retryable variant used for
// missing workflow definitions, missing input, and unresolvable rate-limit
// identifiers. The Temporal error type is ErrConfigurationError so the
// default retry policy refuses to retry it.
func NewConfigurationError(step, format string, args ...any) error {
	ee := &EngineError{
		Type:    ErrorTypeConfiguration,
		Code:    ErrConfigurationError,
		Message: fmt.Sprintf(format, args...),
		Step:    step,
	}
	return temporal.NewNonRetryableApplicationError(ee.Message, ErrConfigurationError, ee)
}
