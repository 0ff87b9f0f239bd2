package handlers

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "homebudget/internal/errors"
	"homebudget/internal/logger"
	"homebudget/internal/models"
)

// getUserID extracts the authenticated user ID from the Gin context.
// Returns ErrUnauthorized if not present.
func getUserID(c *gin.Context) (string, error) {
	userID := c.GetString("userID")
	if userID == "" {
		return "", apperrors.ErrUnauthorized
	}
	return userID, nil
}

// getHouseholdID extracts the household every request is scoped to.
func getHouseholdID(c *gin.Context) (string, error) {
	householdID := c.GetString("householdID")
	if householdID == "" {
		return "", apperrors.ErrUnauthorized
	}
	return householdID, nil
}

// parsePathID parses a UUID path parameter.
// Returns ErrInvalidInput if the parameter is not a valid UUID.
func parsePathID(c *gin.Context, param string) (string, error) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		return "", apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid "+param)
	}
	return id.String(), nil
}

// parseYearMonth reads the :year and :month path parameters.
func parseYearMonth(c *gin.Context) (int, int, error) {
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil {
		return 0, 0, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid year")
	}
	month, err := strconv.Atoi(c.Param("month"))
	if err != nil {
		return 0, 0, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid month")
	}
	if !models.ValidPeriod(year, month) {
		return 0, 0, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid year or month")
	}
	return year, month, nil
}

// parseFlexibleTime accepts an RFC 3339 timestamp or a plain YYYY-MM-DD date.
func parseFlexibleTime(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, errors.New("date must be RFC 3339 or YYYY-MM-DD")
	}
	return t, nil
}

// respondWithError writes a consistent JSON error response. If the error is an
// *AppError it uses the error's status code, code, message and details.
// Otherwise it logs the unexpected error and returns a generic internal server
// error.
func respondWithError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		if appErr.Internal != nil {
			logger.Get().Errorw("app error",
				"code", appErr.Code,
				"internal", appErr.Internal.Error(),
				"path", c.Request.URL.Path,
			)
		}
		body := gin.H{
			"code":    appErr.Code,
			"message": appErr.Message,
		}
		if len(appErr.Details) > 0 {
			body["details"] = appErr.Details
		}
		c.JSON(appErr.StatusCode, gin.H{"error": body})
		return
	}

	logger.Get().Errorw("unexpected error",
		"error", err.Error(),
		"path", c.Request.URL.Path,
		"method", c.Request.Method,
	)
	c.JSON(apperrors.ErrInternalServer.StatusCode, gin.H{
		"error": gin.H{
			"code":    apperrors.ErrInternalServer.Code,
			"message": apperrors.ErrInternalServer.Message,
		},
	})
}

// invalidInput converts a binding failure into an INVALID_INPUT error.
func invalidInput(err error) error {
	return apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error())
}

// ErrorDetail represents the inner error object in an error response.
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// MessageResponse represents a plain confirmation message.
type MessageResponse struct {
	Message string `json:"message"`
}
