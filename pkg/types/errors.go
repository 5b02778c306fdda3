package types

import "fmt"

// ConfigurationError reports invalid startup configuration (bad or
// missing credentials, duplicate master account). Fatal at startup only.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %s", e.Message)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
}

// NewConfigurationError builds a configuration error.
func NewConfigurationError(field, format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// AllocationErrorReason classifies allocation failures
type AllocationErrorReason string

const (
	AllocationErrDuplicateID      AllocationErrorReason = "duplicate_id"
	AllocationErrCapacityExceeded AllocationErrorReason = "capacity_exceeded"
	AllocationErrUnknownStrategy  AllocationErrorReason = "unknown_strategy"
	AllocationErrInvalidRequest   AllocationErrorReason = "invalid_request"
	AllocationErrConflictBlocked  AllocationErrorReason = "conflict_blocked"
	AllocationErrNotFound         AllocationErrorReason = "not_found"
	AllocationErrUnknownAccount   AllocationErrorReason = "unknown_account"
)

// AllocationError is returned to the caller when an allocation request
// is rejected; it never crashes the process. Conflicts carry the
// structured reason a caller can surface to the operator.
type AllocationError struct {
	Reason    AllocationErrorReason
	Message   string
	Conflicts []*AllocationConflict
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("allocation rejected (%s): %s", e.Reason, e.Message)
}

// NewAllocationError builds an allocation error without conflicts.
func NewAllocationError(reason AllocationErrorReason, format string, args ...interface{}) *AllocationError {
	return &AllocationError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}
