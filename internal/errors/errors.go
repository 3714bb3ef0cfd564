// Package errors provides the categorized error taxonomy shared by the
// services and the HTTP layer.
package errors

import (
	"fmt"
	"net/http"

	"github.com/portfolio-tracker/internal/types"
)

// Category represents the category of an error
type Category string

const (
	// CategoryNotFound represents missing portfolio/account/asset errors
	CategoryNotFound Category = "not_found"
	// CategoryAuthorization represents ownership and access errors
	CategoryAuthorization Category = "authorization"
	// CategoryValidation represents invalid caller input
	CategoryValidation Category = "validation"
	// CategoryConflict represents uniqueness-constraint violations that the
	// dedup step should have prevented
	CategoryConflict Category = "conflict"
	// CategoryReferenceData represents missing or stale reference data
	CategoryReferenceData Category = "reference_data"
	// CategoryJob represents collector job execution failures
	CategoryJob Category = "job"
	// CategoryDatabase represents storage errors
	CategoryDatabase Category = "database"
	// CategorySystem represents other internal errors
	CategorySystem Category = "system"
)

// CategorizedError carries a category, HTTP status, machine code, and an
// optional wrapped cause.
type CategorizedError struct {
	Category   Category
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewUnauthorizedError creates an ownership/access error
func NewUnauthorizedError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryAuthorization,
		StatusCode: http.StatusForbidden,
		Code:       "UNAUTHORIZED",
		Message:    message,
	}
}

// NewValidationError creates an invalid-parameter error
func NewValidationError(param, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_PARAMETER",
		Message:    fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// NewNoAllocationError signals that a portfolio has no constructed
// allocation to read or snapshot.
func NewNoAllocationError(portfolioID string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "NO_ALLOCATION",
		Message:    fmt.Sprintf("no allocation constructed for portfolio: %s", portfolioID),
		Details: map[string]interface{}{
			"portfolioId": portfolioID,
		},
	}
}

// NewUpsertConflictError signals a uniqueness violation that batch
// deduplication should have prevented. Surfaced as a job failure, never
// silently swallowed.
func NewUpsertConflictError(table string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       "UPSERT_CONFLICT",
		Message:    fmt.Sprintf("upsert conflict on %s: duplicate uniqueness key within one batch", table),
		Cause:      cause,
		Details: map[string]interface{}{
			"table": table,
		},
	}
}

// NewJobFailureError wraps a collector job failure.
func NewJobFailureError(jobName string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryJob,
		StatusCode: http.StatusInternalServerError,
		Code:       "JOB_FAILED",
		Message:    fmt.Sprintf("job %s failed", jobName),
		Cause:      cause,
		Details: map[string]interface{}{
			"job": jobName,
		},
	}
}

// NewDatabaseError creates a database error
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDatabase,
		StatusCode: http.StatusInternalServerError,
		Code:       "DATABASE_ERROR",
		Message:    fmt.Sprintf("database error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// Categorize maps any error into a CategorizedError. ServiceErrors carry
// their code through; everything else becomes an internal error.
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	if catErr, ok := err.(*CategorizedError); ok {
		return catErr
	}

	if svcErr, ok := err.(*types.ServiceError); ok {
		return categorizeServiceError(svcErr)
	}

	return NewInternalError("unexpected error", err)
}

func categorizeServiceError(err *types.ServiceError) *CategorizedError {
	status := http.StatusInternalServerError
	category := CategorySystem

	switch err.Code {
	case "PORTFOLIO_NOT_FOUND", "ACCOUNT_NOT_FOUND", "ASSET_NOT_FOUND", "SNAPSHOT_NOT_FOUND", "NO_ALLOCATION":
		status = http.StatusNotFound
		category = CategoryNotFound
	case "UNAUTHORIZED", "FORBIDDEN":
		status = http.StatusForbidden
		category = CategoryAuthorization
	case "INVALID_PARAMETER", "INVALID_SNAPSHOT_TYPE", "INVALID_DATE":
		status = http.StatusBadRequest
		category = CategoryValidation
	case "UPSERT_CONFLICT":
		status = http.StatusConflict
		category = CategoryConflict
	}

	return &CategorizedError{
		Category:   category,
		StatusCode: status,
		Code:       err.Code,
		Message:    err.Message,
		Details:    err.Details,
	}
}

// HTTPStatus returns the HTTP status code for an error
func HTTPStatus(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsNotFound reports whether the error resolves to the not-found category.
func IsNotFound(err error) bool {
	catErr := Categorize(err)
	return catErr != nil && catErr.Category == CategoryNotFound
}

// IsConflict reports whether the error resolves to the conflict category.
func IsConflict(err error) bool {
	catErr := Categorize(err)
	return catErr != nil && catErr.Category == CategoryConflict
}
