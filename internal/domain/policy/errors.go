package policy

import (
	"errors"
	"fmt"
)

var (
	// ErrPolicyNotFound is returned when no policy has the requested UUID
	ErrPolicyNotFound = errors.New("policy not found")

	ErrInvalidPolicyType = errors.New("invalid policy type")

	// ErrFieldNotAllowedForType is returned when a policy carries another variant's fields
	ErrFieldNotAllowedForType = errors.New("field not allowed for policy type")

	// ErrSpendLimitExceedsDeposits is returned when active spend limits on a subsidy sum past its deposits
	ErrSpendLimitExceedsDeposits = errors.New("sum of active policy spend limits exceeds subsidy total deposits")

	// ErrInvalidRequest is returned when a write request fails field validation
	ErrInvalidRequest = errors.New("invalid policy request")

	ErrInternal = errors.New("internal error")
)

// ValidationError describes a rejected policy write.
type ValidationError struct {
	Err     error
	Field   string
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
