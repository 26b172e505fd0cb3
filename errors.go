package capstan

import "fmt"

// Error codes for specific failure types
const (
	ErrCodeConfiguration = "CONFIGURATION_ERROR"
	ErrCodeCapability    = "CAPABILITY_ERROR"
	ErrCodePlanning      = "PLANNING_ERROR"
	ErrCodeExecution     = "EXECUTION_ERROR"
	ErrCodeAggregation   = "AGGREGATION_ERROR"
	ErrCodeScoring       = "SCORING_ERROR"
	ErrCodeTimeout       = "EXECUTION_TIMEOUT"
	ErrCodeCancelled     = "EXECUTION_CANCELLED"
	ErrCodeCache         = "CACHE_ERROR"
	ErrCodeInternal      = "INTERNAL_ERROR"
)

// Error is the structured error type used at every component boundary.
// Nothing below the orchestrator propagates a bare error to the caller;
// boundaries convert failures into structured data for the next stage.
type Error struct {
	Code    string // machine-readable code (e.g. ErrCodeCapability)
	Stage   string // pipeline stage where the error occurred
	Message string // human-readable message
	Cause   error  // underlying error, if any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Stage, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Stage, e.Code, e.Message)
}

// Unwrap returns the underlying cause, allowing for error chaining.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error.
func NewError(code, stage, message string, cause error) *Error {
	return &Error{Code: code, Stage: stage, Message: message, Cause: cause}
}

// IsError reports whether err is a capstan structured error.
func IsError(err error) bool {
	_, ok := err.(*Error)
	return ok
}

// Specific error constructors

func NewConfigurationError(message string, cause error) *Error {
	return NewError(ErrCodeConfiguration, "configuration", message, cause)
}

func NewCapabilityError(stage, capability string, cause error) *Error {
	return NewError(ErrCodeCapability, stage, fmt.Sprintf("capability '%s' failed", capability), cause)
}

func NewCapabilityNotFoundError(stage, capability string) *Error {
	return NewError(ErrCodeConfiguration, stage, fmt.Sprintf("capability '%s' is not registered", capability), nil)
}

func NewPlanningError(message string, cause error) *Error {
	return NewError(ErrCodePlanning, "planning", message, cause)
}

func NewExecutionError(message string, cause error) *Error {
	return NewError(ErrCodeExecution, "executing", message, cause)
}

func NewAggregationError(cause error) *Error {
	return NewError(ErrCodeAggregation, "aggregating", "failed to combine results", cause)
}

func NewScoringError(cause error) *Error {
	return NewError(ErrCodeScoring, "scoring", "failed to compute confidence", cause)
}

func NewTimeoutError(stage, capability string) *Error {
	return NewError(ErrCodeTimeout, stage, fmt.Sprintf("capability '%s' timed out", capability), nil)
}

func NewCacheError(operation string, cause error) *Error {
	return NewError(ErrCodeCache, "cache", fmt.Sprintf("cache operation '%s' failed", operation), cause)
}

func NewInternalError(stage, message string, cause error) *Error {
	return NewError(ErrCodeInternal, stage, message, cause)
}
