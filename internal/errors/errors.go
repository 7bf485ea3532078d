// Package errors consolidates sentinel errors for the wattmon daemon.
//
// This file provides:
// - Sentinel errors for all error conditions
// - Error category checking functions
// - Error wrapping utilities
package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Sentinel errors
// ============================================================================

var (
	// Storage errors
	ErrNotDirectory  = errors.New("storage root is not a directory")
	ErrCorruptShard  = errors.New("corrupt shard entry")
	ErrShardNotFound = errors.New("shard not found")
	ErrShortRecord   = errors.New("truncated record")
	ErrStoreClosed   = errors.New("store is closed")

	// Acquisition errors
	ErrChannelRead      = errors.New("channel read failed")
	ErrNoSuchChannel    = errors.New("no such channel")
	ErrSampleOutOfRange = errors.New("sample exceeds ADC range")

	// Configuration errors
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrMissingField    = errors.New("missing required field")
	ErrInvalidInterval = errors.New("invalid interval")

	// Query errors
	ErrQueryTimeout = errors.New("query timeout")
	ErrNotRunning   = errors.New("service not running")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// IsStorage returns true if err is a storage-layer error.
// Storage errors are fatal for the enclosing save or discovery call;
// the caller decides whether to retry on the next cycle.
func IsStorage(err error) bool {
	return errors.Is(err, ErrNotDirectory) ||
		errors.Is(err, ErrCorruptShard) ||
		errors.Is(err, ErrShardNotFound) ||
		errors.Is(err, ErrShortRecord) ||
		errors.Is(err, ErrStoreClosed)
}

// IsAcquisition returns true if err is a sample acquisition error.
// These are transient by contract and recovered via stale-sample reuse.
func IsAcquisition(err error) bool {
	return errors.Is(err, ErrChannelRead) ||
		errors.Is(err, ErrNoSuchChannel) ||
		errors.Is(err, ErrSampleOutOfRange)
}

// IsValidation returns true if err is a configuration validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrInvalidInterval)
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// NewValidation creates a validation error with context.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidConfig)
}

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
}

// ============================================================================
// Validation Errors Collection
// ============================================================================

// ValidationErrors collects multiple validation errors.
type ValidationErrors struct {
	Errors []error
}

// NewValidationErrors creates a new ValidationErrors collector.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{}
}

// Add adds an error to the collection.
func (v *ValidationErrors) Add(err error) {
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
}

// AddField adds a field validation error.
func (v *ValidationErrors) AddField(field, reason string) {
	v.Errors = append(v.Errors, NewValidation(field, reason))
}

// AddMissing adds a missing field error.
func (v *ValidationErrors) AddMissing(field string) {
	v.Errors = append(v.Errors, NewMissingField(field))
}

// HasErrors returns true if there are any errors.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Error implements the error interface.
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	if len(v.Errors) == 1 {
		return v.Errors[0].Error()
	}

	msg := fmt.Sprintf("validation failed with %d errors:", len(v.Errors))
	for _, err := range v.Errors {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Err returns nil if no errors, otherwise returns the ValidationErrors.
func (v *ValidationErrors) Err() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v
}

// Unwrap returns the first error for errors.Is/As support.
func (v *ValidationErrors) Unwrap() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v.Errors[0]
}
