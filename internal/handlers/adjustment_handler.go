package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "homebudget/internal/errors"
	"homebudget/internal/models"
	"homebudget/internal/pagination"
	"homebudget/internal/services"
)

// AdjustmentHandler handles scheduled next-month budget adjustments.
type AdjustmentHandler struct {
	adjustmentService services.AdjustmentServicer
	auditService      services.AuditServicer
}

// NewAdjustmentHandler creates a new AdjustmentHandler.
func NewAdjustmentHandler(adjustmentService services.AdjustmentServicer, auditService services.AuditServicer) *AdjustmentHandler {
	return &AdjustmentHandler{adjustmentService: adjustmentService, auditService: auditService}
}

// ScheduleAdjustmentRequest schedules a limit change for next month. The
// category is identified by ID or, to introduce a new category, by name.
type ScheduleAdjustmentRequest struct {
	CategoryID   string           `json:"category_id" binding:"required_without=CategoryName,omitempty,uuid"`
	CategoryName string           `json:"category_name" binding:"required_without=CategoryID,omitempty,max=100"`
	CurrentLimit *decimal.Decimal `json:"current_limit" binding:"omitempty,money"`
	NewLimit     decimal.Decimal  `json:"new_limit" binding:"money"`
	Reason       string           `json:"reason" binding:"max=500"`
}

// ApplyAdjustmentsRequest applies the pending adjustments of one month.
type ApplyAdjustmentsRequest struct {
	Year  int `json:"year" binding:"required,min=1970,max=9999"`
	Month int `json:"month" binding:"required,month"`
}

// ScheduleAdjustment records a limit change effective next month.
// @Summary     Schedule a budget adjustment
// @Description Schedules a limit change that takes effect on the first day of next month
// @Tags        adjustments
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body ScheduleAdjustmentRequest true "Adjustment"
// @Success     201 {object} models.BudgetAdjustment "Scheduled adjustment"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Category not found"
// @Failure     409 {object} ErrorResponse "Pending adjustment already exists"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /adjustments [post]
func (h *AdjustmentHandler) ScheduleAdjustment(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	householdID, err := getHouseholdID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req ScheduleAdjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, invalidInput(err))
		return
	}

	adjustment, err := h.adjustmentService.ScheduleAdjustment(householdID, &userID, services.ScheduleAdjustmentInput{
		CategoryID:   req.CategoryID,
		CategoryName: req.CategoryName,
		CurrentLimit: req.CurrentLimit,
		NewLimit:     req.NewLimit,
		Reason:       req.Reason,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(householdID, userID, "SCHEDULE_ADJUSTMENT", "budget_adjustment", adjustment.ID, c.ClientIP(),
		map[string]interface{}{
			"category_id":     adjustment.CategoryID,
			"new_limit":       adjustment.NewLimit.String(),
			"effective_year":  adjustment.EffectiveYear,
			"effective_month": adjustment.EffectiveMonth,
		})

	c.JSON(http.StatusCreated, gin.H{"adjustment": adjustment})
}

// GetPendingAdjustments lists unapplied adjustments for an effective month.
// @Summary     List pending adjustments
// @Description Defaults to next month when year and month are omitted
// @Tags        adjustments
// @Produce     json
// @Security    BearerAuth
// @Param       year  query int false "Effective year"
// @Param       month query int false "Effective month"
// @Success     200 {array}  models.BudgetAdjustment "Pending adjustments"
// @Failure     400 {object} ErrorResponse "Invalid period"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /adjustments/pending [get]
func (h *AdjustmentHandler) GetPendingAdjustments(c *gin.Context) {
	householdID, err := getHouseholdID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var query struct {
		Year  int `form:"year" binding:"omitempty,min=1970,max=9999"`
		Month int `form:"month" binding:"omitempty,month"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		respondWithError(c, invalidInput(err))
		return
	}
	if (query.Year == 0) != (query.Month == 0) {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "year and month must be given together"))
		return
	}
	if query.Year == 0 {
		query.Year, query.Month = models.NextMonth(time.Now())
	}

	adjustments, err := h.adjustmentService.GetPendingAdjustments(householdID, query.Year, query.Month)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"year":        query.Year,
		"month":       query.Month,
		"adjustments": adjustments,
	})
}

// GetAppliedAdjustments lists applied adjustments, most recent first.
// @Summary     List applied adjustments
// @Tags        adjustments
// @Produce     json
// @Security    BearerAuth
// @Param       page      query int false "Page number (default 1)"
// @Param       page_size query int false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.BudgetAdjustment] "Paginated adjustments"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /adjustments/applied [get]
func (h *AdjustmentHandler) GetAppliedAdjustments(c *gin.Context) {
	householdID, err := getHouseholdID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, invalidInput(err))
		return
	}

	result, err := h.adjustmentService.GetAppliedAdjustments(householdID, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetAdjustment returns one adjustment.
// @Summary     Get adjustment
// @Tags        adjustments
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Adjustment ID"
// @Success     200 {object} models.BudgetAdjustment "Adjustment"
// @Failure     400 {object} ErrorResponse "Invalid ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Adjustment not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /adjustments/{id} [get]
func (h *AdjustmentHandler) GetAdjustment(c *gin.Context) {
	householdID, err := getHouseholdID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	adjustmentID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	adjustment, err := h.adjustmentService.GetAdjustment(householdID, adjustmentID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"adjustment": adjustment})
}

// CancelAdjustment deletes a pending adjustment.
// @Summary     Cancel adjustment
// @Tags        adjustments
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Adjustment ID"
// @Success     200 {object} MessageResponse "Adjustment cancelled"
// @Failure     400 {object} ErrorResponse "Invalid ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Adjustment not found"
// @Failure     409 {object} ErrorResponse "Adjustment already applied"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /adjustments/{id} [delete]
func (h *AdjustmentHandler) CancelAdjustment(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	householdID, err := getHouseholdID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	adjustmentID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	if err := h.adjustmentService.CancelAdjustment(householdID, adjustmentID); err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(householdID, userID, "CANCEL_ADJUSTMENT", "budget_adjustment", adjustmentID, c.ClientIP(), nil)

	c.JSON(http.StatusOK, gin.H{"message": "Adjustment cancelled successfully"})
}

// ApplyAdjustments applies one month's pending adjustments for the household.
// @Summary     Apply adjustments
// @Description Applies every pending adjustment of the month as one new template version. Idempotent.
// @Tags        adjustments
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body ApplyAdjustmentsRequest true "Effective month"
// @Success     200 {object} services.ApplyResult "Apply result"
// @Failure     400 {object} ErrorResponse "Invalid period"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     409 {object} ErrorResponse "Concurrent change"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /adjustments/apply [post]
func (h *AdjustmentHandler) ApplyAdjustments(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	householdID, err := getHouseholdID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req ApplyAdjustmentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, invalidInput(err))
		return
	}

	result, err := h.adjustmentService.ApplyAdjustments(householdID, req.Year, req.Month)
	if err != nil {
		respondWithError(c, err)
		return
	}

	if result.Processed > 0 {
		h.auditService.Log(householdID, userID, "APPLY_ADJUSTMENTS", "budget_template", "", c.ClientIP(),
			map[string]interface{}{
				"year":             req.Year,
				"month":            req.Month,
				"processed":        result.Processed,
				"template_version": result.TemplateVersion,
			})
	}

	c.JSON(http.StatusOK, result)
}

// GetCategoryHistory returns per-category adjustment aggregates.
// @Summary     Category adjustment history
// @Tags        adjustments
// @Produce     json
// @Security    BearerAuth
// @Success     200 {array}  models.CategoryAdjustmentHistory "Per-category aggregates"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /adjustments/history [get]
func (h *AdjustmentHandler) GetCategoryHistory(c *gin.Context) {
	householdID, err := getHouseholdID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	history, err := h.adjustmentService.GetCategoryAdjustmentHistory(householdID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"history": history})
}
