package domain

import (
	"errors"
	"fmt"

	"github.com/plaenen/assetlimits/pkg/validators"
)

var (
	// ErrNotFound is returned by stores when a record doesn't exist.
	ErrNotFound = errors.New("record not found")

	// ErrConcurrencyConflict is returned when there's an optimistic concurrency conflict.
	// Callers retry the whole load-mutate-save cycle.
	ErrConcurrencyConflict = errors.New("concurrency conflict: version mismatch")

	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrAccountNotFound matches every *AccountNotFoundError.
	ErrAccountNotFound = errors.New("account not found")

	// ErrLimitExceeded matches every *LimitExceededError.
	ErrLimitExceeded = errors.New("account limit exceeded")
)

// ValidationError rejects input before any state changes.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// validationError converts the first failed result into a *ValidationError.
func validationError(results ...*validators.ValidationResult) error {
	failed := validators.Collect(results...).FirstError()
	if failed == nil {
		return nil
	}
	return &ValidationError{Field: failed.FieldName, Message: failed.Message}
}

// AccountNotFoundError is returned when a command targets an unknown account.
type AccountNotFoundError struct {
	AccountID AccountID
}

func (e *AccountNotFoundError) Error() string {
	return fmt.Sprintf("Account with id %s not found", e.AccountID)
}

func (e *AccountNotFoundError) Is(target error) bool {
	return target == ErrAccountNotFound
}

// LimitExceededError is a business rejection: admitting the asset would exceed the limit.
type LimitExceededError struct {
	Limit int
}

func (e *LimitExceededError) Error() string {
	noun := "assets"
	if e.Limit == 1 {
		noun = "asset"
	}
	return fmt.Sprintf("Allowed limit of %d downloaded %s exceeded", e.Limit, noun)
}

func (e *LimitExceededError) Is(target error) bool {
	return target == ErrLimitExceeded
}
