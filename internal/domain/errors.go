package domain

import (
	"fmt"
	"strings"
	"time"
)

// DashboardError represents a standardized error response
type DashboardError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// Error implements the error interface
func (e *DashboardError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeSchema        = "SCHEMA_ERROR"
	ErrCodeSource        = "SOURCE_ERROR"
	ErrCodeLedger        = "LEDGER_ERROR"
	ErrCodeNotReady      = "NOT_READY"
	ErrCodeInternal      = "INTERNAL_SERVER_ERROR"
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeRefreshFailed = "REFRESH_FAILED"
)

// SchemaError reports a required field missing from an input table. It is a
// structural failure and halts the run.
type SchemaError struct {
	Table   string   `json:"table"`
	Missing []string `json:"missing"`
}

// Error implements the error interface
func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error in %s table: missing required field(s) %s", e.Table, strings.Join(e.Missing, ", "))
}

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewDashboardError creates a new DashboardError with timestamp
func NewDashboardError(code, message, details, requestID string) *DashboardError {
	return &DashboardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// RequireFields returns a SchemaError when any of the required fields is not
// present in the field set.
func RequireFields(table string, present map[string]bool, required ...string) error {
	var missing []string
	for _, f := range required {
		if !present[f] {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return &SchemaError{Table: table, Missing: missing}
	}
	return nil
}
