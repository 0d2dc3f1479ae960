package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotFound marks a record, wallet or category that does not
	// exist or is not owned by the calling user. Never retried.
	ErrNotFound = errors.New("not found")

	// ErrContention marks a store transaction that could not serialize
	// within its time budget. The whole operation is safe to retry
	// from scratch with a fresh read of current state.
	ErrContention = errors.New("transaction contention")

	// ErrInvalidAmount marks a missing, non-numeric or non-positive
	// amount.
	ErrInvalidAmount = errors.New("invalid amount")
)

// ValidationError collects caller-correctable field errors. An
// operation gathers every failure it can detect before returning, so
// the caller sees the full list at once.
type ValidationError struct {
	Fields map[string][]string
}

// NewValidationError returns an empty ValidationError ready for Add.
func NewValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string][]string)}
}

// Add appends a message for the given field.
func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

// Empty reports whether no field errors were collected.
func (e *ValidationError) Empty() bool {
	return e == nil || len(e.Fields) == 0
}

// ErrOrNil returns the error itself when it holds failures, nil
// otherwise. Lets validation code build unconditionally and return in
// one place.
func (e *ValidationError) ErrOrNil() error {
	if e.Empty() {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	if e.Empty() {
		return "validation failed"
	}
	fields := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f, strings.Join(e.Fields[f], "; ")))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// ConfigError marks a deployment defect such as a missing system
// category. It is fatal and not user-correctable; callers should log
// it for operator attention and stop.
type ConfigError struct {
	Missing string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s is missing", e.Missing)
}

// IsRetryable reports whether the operation that produced err may be
// retried from scratch. Only contention qualifies.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrContention)
}
