package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "homebudget/internal/errors"
	"homebudget/internal/pagination"
	"homebudget/internal/services"
)

// MonthlyBudgetHandler handles per-month budget snapshots.
type MonthlyBudgetHandler struct {
	monthlyService services.MonthlyBudgetServicer
	auditService   services.AuditServicer
}

// NewMonthlyBudgetHandler creates a new MonthlyBudgetHandler.
func NewMonthlyBudgetHandler(monthlyService services.MonthlyBudgetServicer, auditService services.AuditServicer) *MonthlyBudgetHandler {
	return &MonthlyBudgetHandler{monthlyService: monthlyService, auditService: auditService}
}

// UpdateMonthlyLimitRequest sets one category's limit for a single month.
type UpdateMonthlyLimitRequest struct {
	MonthlyLimit decimal.Decimal `json:"monthly_limit" binding:"money"`
}

// SyncCategoriesRequest confirms copying new template categories into a month.
type SyncCategoriesRequest struct {
	Confirm bool `json:"confirm"`
}

// GetMonth returns a month's budget, creating it from the active template on
// first access.
// @Summary     Get monthly budget
// @Description Returns the month's snapshot, creating it from the active template on first access
// @Tags        monthly-budgets
// @Produce     json
// @Security    BearerAuth
// @Param       year  path int true "Year"
// @Param       month path int true "Month (1-12)"
// @Success     200 {object} models.MonthlyBudget "Monthly budget"
// @Failure     400 {object} ErrorResponse "Invalid period"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     428 {object} ErrorResponse "Budget not configured"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /months/{year}/{month} [get]
func (h *MonthlyBudgetHandler) GetMonth(c *gin.Context) {
	householdID, err := getHouseholdID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	year, month, err := parseYearMonth(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	snapshot, err := h.monthlyService.GetOrCreate(householdID, year, month)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"monthly_budget": snapshot})
}

// ListMonths lists existing monthly budgets.
// @Summary     List monthly budgets
// @Tags        monthly-budgets
// @Produce     json
// @Security    BearerAuth
// @Param       year      query int false "Filter by year"
// @Param       page      query int false "Page number (default 1)"
// @Param       page_size query int false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.MonthlyBudget] "Paginated monthly budgets"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /months [get]
func (h *MonthlyBudgetHandler) ListMonths(c *gin.Context) {
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

	var year *int
	if v := c.Query("year"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "year must be a number"))
			return
		}
		year = &y
	}

	result, err := h.monthlyService.ListMonths(householdID, year, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetMonthlyBudget returns a snapshot by ID.
// @Summary     Get monthly budget by ID
// @Tags        monthly-budgets
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Monthly budget ID"
// @Success     200 {object} models.MonthlyBudget "Monthly budget"
// @Failure     400 {object} ErrorResponse "Invalid ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Monthly budget not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /monthly-budgets/{id} [get]
func (h *MonthlyBudgetHandler) GetMonthlyBudget(c *gin.Context) {
	householdID, err := getHouseholdID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	snapshotID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	snapshot, err := h.monthlyService.GetByID(householdID, snapshotID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"monthly_budget": snapshot})
}

// UpdateCategoryLimit edits one category's limit for this month only.
// @Summary     Update a month's category limit
// @Description Changes the limit for one month without touching the template or the month's original limits
// @Tags        monthly-budgets
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id          path string                    true "Monthly budget ID"
// @Param       category_id path string                    true "Category ID"
// @Param       request     body UpdateMonthlyLimitRequest true "New limit"
// @Success     200 {object} models.MonthlyBudget "Updated monthly budget"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Monthly budget or category not found"
// @Failure     409 {object} ErrorResponse "Month locked or concurrent change"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /monthly-budgets/{id}/categories/{category_id} [put]
func (h *MonthlyBudgetHandler) UpdateCategoryLimit(c *gin.Context) {
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
	snapshotID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}
	categoryID, err := parsePathID(c, "category_id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req UpdateMonthlyLimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, invalidInput(err))
		return
	}

	snapshot, err := h.monthlyService.UpdateCategoryLimit(householdID, snapshotID, categoryID, req.MonthlyLimit)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(householdID, userID, "UPDATE_MONTHLY_LIMIT", "monthly_budget", snapshotID, c.ClientIP(),
		map[string]interface{}{"category_id": categoryID, "monthly_limit": req.MonthlyLimit.String()})

	c.JSON(http.StatusOK, gin.H{"monthly_budget": snapshot})
}

// LockMonth freezes a month's budget.
// @Summary     Lock monthly budget
// @Tags        monthly-budgets
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Monthly budget ID"
// @Success     200 {object} models.MonthlyBudget "Locked monthly budget"
// @Failure     400 {object} ErrorResponse "Invalid ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Monthly budget not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /monthly-budgets/{id}/lock [post]
func (h *MonthlyBudgetHandler) LockMonth(c *gin.Context) {
	h.setLocked(c, true)
}

// UnlockMonth allows edits to a month again.
// @Summary     Unlock monthly budget
// @Tags        monthly-budgets
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Monthly budget ID"
// @Success     200 {object} models.MonthlyBudget "Unlocked monthly budget"
// @Failure     400 {object} ErrorResponse "Invalid ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Monthly budget not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /monthly-budgets/{id}/unlock [post]
func (h *MonthlyBudgetHandler) UnlockMonth(c *gin.Context) {
	h.setLocked(c, false)
}

func (h *MonthlyBudgetHandler) setLocked(c *gin.Context, locked bool) {
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
	snapshotID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	action := "UNLOCK_MONTH"
	lock := h.monthlyService.Unlock
	if locked {
		action = "LOCK_MONTH"
		lock = h.monthlyService.Lock
	}

	snapshot, err := lock(householdID, snapshotID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(householdID, userID, action, "monthly_budget", snapshotID, c.ClientIP(), nil)

	c.JSON(http.StatusOK, gin.H{"monthly_budget": snapshot})
}

// SyncCategories copies template categories missing from a month.
// @Summary     Sync new template categories into a month
// @Description Adds categories present in the active template but missing from the month. Requires confirm=true.
// @Tags        monthly-budgets
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string                true "Monthly budget ID"
// @Param       request body SyncCategoriesRequest true "Confirmation"
// @Success     200 {object} services.SyncResult "Sync result"
// @Failure     400 {object} ErrorResponse "Confirmation missing"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Monthly budget not found"
// @Failure     409 {object} ErrorResponse "Month locked or concurrent change"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /monthly-budgets/{id}/sync [post]
func (h *MonthlyBudgetHandler) SyncCategories(c *gin.Context) {
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
	snapshotID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req SyncCategoriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, invalidInput(err))
		return
	}

	result, err := h.monthlyService.SyncNewCategoriesFromTemplate(householdID, snapshotID, req.Confirm)
	if err != nil {
		respondWithError(c, err)
		return
	}

	if len(result.AddedIDs) > 0 {
		h.auditService.Log(householdID, userID, "SYNC_MONTH_CATEGORIES", "monthly_budget", snapshotID, c.ClientIP(),
			map[string]interface{}{"added_category_ids": result.AddedIDs})
	}

	c.JSON(http.StatusOK, result)
}

// CompareToOriginal diffs a month's current limits against its month-start limits.
// @Summary     Compare month to its original limits
// @Tags        monthly-budgets
// @Produce     json
// @Security    BearerAuth
// @Param       year  path int true "Year"
// @Param       month path int true "Month (1-12)"
// @Success     200 {object} comparison.Result "Comparison"
// @Failure     400 {object} ErrorResponse "Invalid period"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Month not created yet"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /months/{year}/{month}/compare/original [get]
func (h *MonthlyBudgetHandler) CompareToOriginal(c *gin.Context) {
	householdID, err := getHouseholdID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	year, month, err := parseYearMonth(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.monthlyService.CompareToOriginal(householdID, year, month)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// CompareToTemplate diffs the active template against a month's current limits.
// @Summary     Compare month to the active template
// @Tags        monthly-budgets
// @Produce     json
// @Security    BearerAuth
// @Param       year  path int true "Year"
// @Param       month path int true "Month (1-12)"
// @Success     200 {object} comparison.Result "Comparison"
// @Failure     400 {object} ErrorResponse "Invalid period"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Month not created yet"
// @Failure     428 {object} ErrorResponse "Budget not configured"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /months/{year}/{month}/compare/template [get]
func (h *MonthlyBudgetHandler) CompareToTemplate(c *gin.Context) {
	householdID, err := getHouseholdID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	year, month, err := parseYearMonth(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.monthlyService.CompareToTemplate(householdID, year, month)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
