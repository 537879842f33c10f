// Package errors provides structured error types for the stayridge storage layer.
// All errors include a category, code, message, and retryable flag for
// consistent error handling across components.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryPartition  ErrorCategory = "PARTITION"
	ErrCategoryStorage    ErrorCategory = "STORAGE"
	ErrCategoryIndex      ErrorCategory = "INDEX"
	ErrCategoryQuery      ErrorCategory = "QUERY"
	ErrCategoryCatalog    ErrorCategory = "CATALOG"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeInvalidRecord = "INVALID_RECORD"

	// Partition codes
	CodeNoPartitionCoversValue = "NO_PARTITION_COVERS_VALUE"
	CodeOverlappingRange       = "OVERLAPPING_RANGE"
	CodeNonContiguous          = "NON_CONTIGUOUS"
	CodePartitionRetained      = "PARTITION_RETAINED"
	CodePartitionNotFound      = "PARTITION_NOT_FOUND"

	// Storage codes
	CodeRecordNotFound   = "RECORD_NOT_FOUND"
	CodeStorageExhausted = "STORAGE_EXHAUSTED"
	CodeAppendFailed     = "APPEND_FAILED"

	// Index codes
	CodeIndexPending   = "INDEX_PENDING"
	CodeIndexExists    = "INDEX_EXISTS"
	CodeIndexNotFound  = "INDEX_NOT_FOUND"
	CodeInvalidIndex   = "INVALID_INDEX"
	CodeBackfillFailed = "BACKFILL_FAILED"

	// Query codes
	CodeInvalidQuery  = "INVALID_QUERY"
	CodeInvalidCursor = "INVALID_CURSOR"

	// Catalog codes
	CodeCatalogCorruption = "CATALOG_CORRUPTION"
	CodeCatalogWrite      = "CATALOG_WRITE_FAILED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// StoreError is the structured error type used throughout the system.
type StoreError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *StoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *StoreError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *StoreError) Is(target error) bool {
	var t *StoreError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new StoreError.
func New(category ErrorCategory, code, message string) *StoreError {
	return &StoreError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new StoreError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *StoreError {
	return &StoreError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *StoreError) WithDetails(details map[string]interface{}) *StoreError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsCode checks whether an error (or its chain) carries the given code.
func IsCode(err error, code string) bool {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a StoreError.
func GetCategory(err error) ErrorCategory {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a StoreError.
func GetCode(err error) string {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// isRetryable determines if an error code is retryable. This layer performs
// no retries itself; the flag is advisory for the calling layer.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryCatalog && code == CodeCatalogWrite:
		return true
	case category == ErrCategoryStorage && code == CodeAppendFailed:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

// NoPartitionCoversValue reports a write or query key outside the
// provisioned range. The caller must provision the missing range.
func NoPartitionCoversValue(message string) *StoreError {
	return New(ErrCategoryPartition, CodeNoPartitionCoversValue, message)
}

// OverlappingRange reports a partition-management invariant violation.
func OverlappingRange(message string) *StoreError {
	return New(ErrCategoryPartition, CodeOverlappingRange, message)
}

// NonContiguous reports a new partition that does not abut the previous
// upper bound while contiguity is required by policy.
func NonContiguous(message string) *StoreError {
	return New(ErrCategoryPartition, CodeNonContiguous, message)
}

// RecordNotFound reports a stale or never-written record identifier.
func RecordNotFound(message string) *StoreError {
	return New(ErrCategoryStorage, CodeRecordNotFound, message)
}

// StorageExhausted reports a resource limit. Fatal to the operation.
func StorageExhausted(message string) *StoreError {
	return New(ErrCategoryStorage, CodeStorageExhausted, message)
}

// InvalidQuery reports a malformed descriptor, rejected before any
// storage access.
func InvalidQuery(message string) *StoreError {
	return New(ErrCategoryQuery, CodeInvalidQuery, message)
}

// NewCatalogError wraps a catalog persistence failure.
func NewCatalogError(code, message string, cause error) *StoreError {
	return Wrap(ErrCategoryCatalog, code, message, cause)
}

// NewInternalError wraps an unexpected failure.
func NewInternalError(message string, cause error) *StoreError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
