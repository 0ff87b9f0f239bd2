// Package errors provides custom error types for the household budget API.
// All service-layer errors should use AppError to ensure consistent,
// secure error responses that never leak internal details to clients.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// AppError represents a structured application error with an error code,
// human-readable message, HTTP status code, and optional internal error.
type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	StatusCode int            `json:"-"`
	Internal   error          `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string { return e.Message }

// Unwrap returns the internal error for use with errors.Is/As.
func (e *AppError) Unwrap() error { return e.Internal }

// Is reports whether target is an AppError with the same code, so that
// errors.Is(err, ErrConcurrentVersionConflict) matches wrapped copies.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

// Wrap creates a new AppError with the same code/message/status but wraps an internal error.
func Wrap(sentinel *AppError, internal error) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		Details:    sentinel.Details,
		StatusCode: sentinel.StatusCode,
		Internal:   internal,
	}
}

// WithMessage creates a new AppError with a custom message.
func WithMessage(sentinel *AppError, message string) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    message,
		Details:    sentinel.Details,
		StatusCode: sentinel.StatusCode,
		Internal:   sentinel.Internal,
	}
}

// WithDetails creates a new AppError carrying structured details for the client.
func WithDetails(sentinel *AppError, details map[string]any) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		Details:    details,
		StatusCode: sentinel.StatusCode,
		Internal:   sentinel.Internal,
	}
}

// CategoryInUse reports how many transactions block a category lifecycle change.
func CategoryInUse(count int64) *AppError {
	err := WithDetails(ErrCategoryInUse, map[string]any{"transaction_count": count})
	err.Message = fmt.Sprintf("Category is used by %d transaction(s); supply a reassignment target", count)
	return err
}

// IsSetupRequired reports whether err means the household has not configured a budget yet.
func IsSetupRequired(err error) bool {
	return stderrors.Is(err, ErrHouseholdHasNoTemplate)
}

// Authentication & authorization errors.
var (
	ErrUnauthorized       = &AppError{Code: "UNAUTHORIZED", Message: "Authentication required", StatusCode: http.StatusUnauthorized}
	ErrInvalidCredentials = &AppError{Code: "INVALID_CREDENTIALS", Message: "Invalid email or password", StatusCode: http.StatusUnauthorized}
	ErrForbidden          = &AppError{Code: "FORBIDDEN", Message: "Access denied", StatusCode: http.StatusForbidden}
)

// Pipeline errors.
var (
	ErrPipelineNotConfigured = &AppError{Code: "PIPELINE_NOT_CONFIGURED", Message: "Pipeline endpoints are not configured", StatusCode: http.StatusServiceUnavailable}
	ErrInvalidAPIKey         = &AppError{Code: "INVALID_API_KEY", Message: "Invalid or missing API key", StatusCode: http.StatusUnauthorized}
)

// General errors.
var (
	ErrInvalidInput   = &AppError{Code: "INVALID_INPUT", Message: "Invalid input", StatusCode: http.StatusBadRequest}
	ErrNotFound       = &AppError{Code: "NOT_FOUND", Message: "Resource not found", StatusCode: http.StatusNotFound}
	ErrInternalServer = &AppError{Code: "INTERNAL_ERROR", Message: "An internal error occurred", StatusCode: http.StatusInternalServerError}
)

// Conflict errors. Retryable by re-reading state and re-issuing the mutation.
var (
	ErrConcurrentVersionConflict = &AppError{Code: "CONCURRENT_VERSION_CONFLICT", Message: "The budget was changed concurrently, please retry", StatusCode: http.StatusConflict}
)

// User & household errors.
var (
	ErrUserNotFound      = &AppError{Code: "USER_NOT_FOUND", Message: "User not found", StatusCode: http.StatusNotFound}
	ErrDuplicateEmail    = &AppError{Code: "DUPLICATE_EMAIL", Message: "A user with this email already exists", StatusCode: http.StatusConflict}
	ErrHouseholdNotFound = &AppError{Code: "HOUSEHOLD_NOT_FOUND", Message: "Household not found", StatusCode: http.StatusNotFound}
)

// Category errors.
var (
	ErrCategoryNotFound      = &AppError{Code: "CATEGORY_NOT_FOUND", Message: "Category not found", StatusCode: http.StatusNotFound}
	ErrCategoryInUse         = &AppError{Code: "CATEGORY_IN_USE", Message: "Category is used by existing transactions", StatusCode: http.StatusConflict}
	ErrDuplicateCategoryName = &AppError{Code: "DUPLICATE_CATEGORY_NAME", Message: "A category with this name already exists", StatusCode: http.StatusConflict}
	ErrSelfMerge             = &AppError{Code: "SELF_MERGE", Message: "A category cannot be merged into itself", StatusCode: http.StatusBadRequest}
	ErrCategoryInactive      = &AppError{Code: "CATEGORY_INACTIVE", Message: "Category is inactive", StatusCode: http.StatusConflict}
)

// Transaction errors.
var (
	ErrTransactionNotFound = &AppError{Code: "TRANSACTION_NOT_FOUND", Message: "Transaction not found", StatusCode: http.StatusNotFound}
)

// Budget template errors.
var (
	ErrHouseholdHasNoTemplate      = &AppError{Code: "SETUP_REQUIRED", Message: "Please configure your budget before continuing", StatusCode: http.StatusPreconditionRequired}
	ErrTemplateNotFound            = &AppError{Code: "TEMPLATE_NOT_FOUND", Message: "Budget template version not found", StatusCode: http.StatusNotFound}
	ErrActiveVersionProtected      = &AppError{Code: "ACTIVE_VERSION_PROTECTED", Message: "The active budget version cannot be deleted", StatusCode: http.StatusConflict}
	ErrVersionHasDeletedCategories = &AppError{Code: "VERSION_HAS_DELETED_CATEGORIES", Message: "This budget version budgets categories that were deleted or merged", StatusCode: http.StatusConflict}
)

// Monthly budget errors.
var (
	ErrMonthlyBudgetNotFound = &AppError{Code: "MONTHLY_BUDGET_NOT_FOUND", Message: "Monthly budget not found", StatusCode: http.StatusNotFound}
	ErrLockedMonthMutation   = &AppError{Code: "LOCKED_MONTH_MUTATION", Message: "This month is locked and cannot be edited", StatusCode: http.StatusConflict}
)

// Budget adjustment errors.
var (
	ErrAdjustmentNotFound         = &AppError{Code: "ADJUSTMENT_NOT_FOUND", Message: "Budget adjustment not found", StatusCode: http.StatusNotFound}
	ErrDuplicatePendingAdjustment = &AppError{Code: "DUPLICATE_PENDING_ADJUSTMENT", Message: "A pending adjustment already exists for this category and month; cancel it first", StatusCode: http.StatusConflict}
	ErrAdjustmentAlreadyApplied   = &AppError{Code: "ADJUSTMENT_ALREADY_APPLIED", Message: "Applied adjustments cannot be cancelled", StatusCode: http.StatusConflict}
)
