package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransaction matches every field-level validation or parse failure.
	ErrInvalidTransaction = errors.New("invalid transaction")

	// ErrInvalidBatch matches batch envelope failures.
	ErrInvalidBatch = errors.New("invalid batch")

	// ErrNumeric reports a non-finite intermediate value.
	ErrNumeric = errors.New("non-finite score")

	// ErrMissingField is wrapped by ParseError when the feature engineer meets an absent field.
	ErrMissingField = errors.New("missing required field")
)

// ValidationError reports a required field that is absent or blank.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return "Missing required field: " + e.Field
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidTransaction
}

// ParseError reports a field that could not be turned into a usable value.
type ParseError struct {
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	if errors.Is(e.Err, ErrMissingField) {
		return "Missing required field: " + e.Field
	}
	return fmt.Sprintf("Invalid value for field %s: %q (%v)", e.Field, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool {
	return target == ErrInvalidTransaction
}

// Batch envelope rejection reasons.
const (
	ReasonNotArray = "Transactions must be an array"
	ReasonEmpty    = "At least one transaction is required"
	ReasonTooLarge = "Maximum 100 transactions per batch"
)

// InvalidBatchError rejects a whole batch before any item is scored.
type InvalidBatchError struct {
	Size   int
	Reason string
}

func (e *InvalidBatchError) Error() string {
	return e.Reason
}

func (e *InvalidBatchError) Is(target error) bool {
	return target == ErrInvalidBatch
}
