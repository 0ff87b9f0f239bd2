package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "homebudget/internal/errors"
	"homebudget/internal/models"
	"homebudget/internal/pagination"
	"homebudget/internal/services"
)

// CategoryHandler handles category registry requests
type CategoryHandler struct {
	categoryService services.CategoryServicer
	auditService    services.AuditServicer
}

// NewCategoryHandler creates a new CategoryHandler
func NewCategoryHandler(categoryService services.CategoryServicer, auditService services.AuditServicer) *CategoryHandler {
	return &CategoryHandler{categoryService: categoryService, auditService: auditService}
}

// CreateCategoryRequest represents the request payload for creating a category
type CreateCategoryRequest struct {
	Name                    string              `json:"name" binding:"required,min=1,max=100"`
	Type                    models.CategoryType `json:"type" binding:"omitempty,category_type"`
	Description             string              `json:"description" binding:"max=500"`
	Icon                    string              `json:"icon" binding:"max=50"`
	Color                   string              `json:"color" binding:"omitempty,hex_color"`
	DefaultMonthlyLimit     decimal.Decimal     `json:"default_monthly_limit" binding:"money"`
	DefaultWarningThreshold int                 `json:"default_warning_threshold" binding:"warning_threshold"`
	IncludeInTemplate       bool                `json:"include_in_template"`
}

// UpdateCategoryRequest represents the request payload for updating a category.
// Omitted fields are left unchanged.
type UpdateCategoryRequest struct {
	Name                    *string          `json:"name" binding:"omitempty,min=1,max=100"`
	Description             *string          `json:"description" binding:"omitempty,max=500"`
	Icon                    *string          `json:"icon" binding:"omitempty,max=50"`
	Color                   *string          `json:"color" binding:"omitempty,hex_color"`
	DefaultMonthlyLimit     *decimal.Decimal `json:"default_monthly_limit" binding:"omitempty,money"`
	DefaultWarningThreshold *int             `json:"default_warning_threshold" binding:"omitempty,warning_threshold"`
}

// ReassignRequest names the category that takes over a category's transactions
type ReassignRequest struct {
	ReassignTo *string `json:"reassign_to" binding:"omitempty,uuid"`
}

// MergeCategoryRequest represents the request payload for merging categories
type MergeCategoryRequest struct {
	TargetID string `json:"target_id" binding:"required,uuid"`
}

// CreateCategory handles the creation of a new category
// @Summary     Create a category
// @Description Register a category, optionally adding it to the active budget template
// @Tags        categories
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CreateCategoryRequest true "Category details"
// @Success     201 {object} models.Category "Category created"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     409 {object} ErrorResponse "Duplicate name"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /categories [post]
func (h *CategoryHandler) CreateCategory(c *gin.Context) {
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

	var req CreateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, invalidInput(err))
		return
	}

	category, err := h.categoryService.CreateCategory(householdID, services.CategoryInput{
		Name:                    req.Name,
		Type:                    req.Type,
		Description:             req.Description,
		Icon:                    req.Icon,
		Color:                   req.Color,
		DefaultMonthlyLimit:     req.DefaultMonthlyLimit,
		DefaultWarningThreshold: req.DefaultWarningThreshold,
	}, req.IncludeInTemplate)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(householdID, userID, "CREATE_CATEGORY", "category", category.ID, c.ClientIP(),
		map[string]interface{}{"name": category.Name, "include_in_template": req.IncludeInTemplate})

	c.JSON(http.StatusCreated, gin.H{"category": category})
}

// GetCategories handles listing the household's categories
// @Summary     List categories
// @Description List the household's categories ordered by name
// @Tags        categories
// @Produce     json
// @Security    BearerAuth
// @Param       type             query string false "Filter by category type (income/expense)"
// @Param       include_inactive query bool   false "Include inactive categories"
// @Param       include_deleted  query bool   false "Include deleted and merged categories"
// @Param       page             query int    false "Page number (default 1)"
// @Param       page_size        query int    false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.Category] "Paginated categories"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /categories [get]
func (h *CategoryHandler) GetCategories(c *gin.Context) {
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

	var filter services.CategoryFilter
	if v := c.Query("type"); v != "" {
		t := models.CategoryType(v)
		if t != models.CategoryTypeIncome && t != models.CategoryTypeExpense {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "type must be 'income' or 'expense'"))
			return
		}
		filter.Type = &t
	}
	filter.IncludeInactive = c.Query("include_inactive") == "true"
	filter.IncludeDeleted = c.Query("include_deleted") == "true"

	result, err := h.categoryService.GetCategories(householdID, filter, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetCategoryByID handles the retrieval of a specific category
// @Summary     Get category by ID
// @Description Get a category, including deleted or merged ones
// @Tags        categories
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Category ID"
// @Success     200 {object} models.Category "Category details"
// @Failure     400 {object} ErrorResponse "Invalid category ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Category not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /categories/{id} [get]
func (h *CategoryHandler) GetCategoryByID(c *gin.Context) {
	householdID, err := getHouseholdID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	categoryID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	category, err := h.categoryService.GetCategoryByID(householdID, categoryID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"category": category})
}

// UpdateCategory handles updating a category's display attributes and defaults
// @Summary     Update category
// @Description Rename or restyle a category. Budgets keep referencing it by ID.
// @Tags        categories
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string                true "Category ID"
// @Param       request body UpdateCategoryRequest true "Updated category details"
// @Success     200 {object} models.Category "Updated category"
// @Failure     400 {object} ErrorResponse "Invalid input or category ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Category not found"
// @Failure     409 {object} ErrorResponse "Duplicate name"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /categories/{id} [put]
func (h *CategoryHandler) UpdateCategory(c *gin.Context) {
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
	categoryID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req UpdateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, invalidInput(err))
		return
	}

	category, err := h.categoryService.UpdateCategory(householdID, categoryID, services.CategoryUpdate{
		Name:                    req.Name,
		Description:             req.Description,
		Icon:                    req.Icon,
		Color:                   req.Color,
		DefaultMonthlyLimit:     req.DefaultMonthlyLimit,
		DefaultWarningThreshold: req.DefaultWarningThreshold,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(householdID, userID, "UPDATE_CATEGORY", "category", categoryID, c.ClientIP(), nil)

	c.JSON(http.StatusOK, gin.H{"category": category})
}

// DeactivateCategory hides a category from new use
// @Summary     Deactivate category
// @Description Deactivate a category. Transactions must be reassigned if any exist.
// @Tags        categories
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string          true  "Category ID"
// @Param       request body ReassignRequest false "Reassignment target"
// @Success     200 {object} models.Category "Deactivated category"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Category not found"
// @Failure     409 {object} ErrorResponse "Category in use"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /categories/{id}/deactivate [post]
func (h *CategoryHandler) DeactivateCategory(c *gin.Context) {
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
	categoryID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req ReassignRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, invalidInput(err))
			return
		}
	}

	category, err := h.categoryService.DeactivateCategory(householdID, categoryID, req.ReassignTo)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(householdID, userID, "DEACTIVATE_CATEGORY", "category", categoryID, c.ClientIP(),
		map[string]interface{}{"reassign_to": req.ReassignTo})

	c.JSON(http.StatusOK, gin.H{"category": category})
}

// ReactivateCategory makes an inactive category usable again
// @Summary     Reactivate category
// @Tags        categories
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Category ID"
// @Success     200 {object} models.Category "Reactivated category"
// @Failure     400 {object} ErrorResponse "Invalid category ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Category not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /categories/{id}/reactivate [post]
func (h *CategoryHandler) ReactivateCategory(c *gin.Context) {
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
	categoryID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	category, err := h.categoryService.ReactivateCategory(householdID, categoryID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(householdID, userID, "REACTIVATE_CATEGORY", "category", categoryID, c.ClientIP(), nil)

	c.JSON(http.StatusOK, gin.H{"category": category})
}

// DeleteCategory handles deleting a category
// @Summary     Delete category
// @Description Soft-delete a category, removing it from the active template and cancelling its pending adjustments
// @Tags        categories
// @Produce     json
// @Security    BearerAuth
// @Param       id          path  string true  "Category ID"
// @Param       reassign_to query string false "Category that takes over existing transactions"
// @Success     200 {object} MessageResponse "Category deleted"
// @Failure     400 {object} ErrorResponse "Invalid category ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Category not found"
// @Failure     409 {object} ErrorResponse "Category in use"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /categories/{id} [delete]
func (h *CategoryHandler) DeleteCategory(c *gin.Context) {
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
	categoryID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var reassignTo *string
	if v := c.Query("reassign_to"); v != "" {
		reassignTo = &v
	}

	if err := h.categoryService.DeleteCategory(householdID, categoryID, reassignTo); err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(householdID, userID, "DELETE_CATEGORY", "category", categoryID, c.ClientIP(),
		map[string]interface{}{"reassign_to": reassignTo})

	c.JSON(http.StatusOK, gin.H{"message": "Category deleted successfully"})
}

// MergeCategory folds a category into another
// @Summary     Merge categories
// @Description Merge the category into target_id. Limits are summed and transactions moved.
// @Tags        categories
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string               true "Source category ID"
// @Param       request body MergeCategoryRequest true "Merge target"
// @Success     200 {object} services.MergeResult "Merge summary"
// @Failure     400 {object} ErrorResponse "Invalid input or self merge"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Category not found"
// @Failure     409 {object} ErrorResponse "Target inactive or concurrent change"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /categories/{id}/merge [post]
func (h *CategoryHandler) MergeCategory(c *gin.Context) {
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
	sourceID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req MergeCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, invalidInput(err))
		return
	}

	result, err := h.categoryService.MergeCategories(householdID, sourceID, req.TargetID, &userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(householdID, userID, "MERGE_CATEGORY", "category", sourceID, c.ClientIP(),
		map[string]interface{}{"target_id": req.TargetID, "transactions_moved": result.TransactionsMoved})

	c.JSON(http.StatusOK, result)
}

// GetMergeHistory lists category merges
// @Summary     Category merge history
// @Tags        categories
// @Produce     json
// @Security    BearerAuth
// @Param       page      query int false "Page number (default 1)"
// @Param       page_size query int false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.CategoryMergeHistory] "Paginated merges"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /category-merges [get]
func (h *CategoryHandler) GetMergeHistory(c *gin.Context) {
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

	result, err := h.categoryService.GetMergeHistory(householdID, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetCategoryLineage lists every category merged into a category
// @Summary     Category lineage
// @Tags        categories
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Category ID"
// @Success     200 {object} services.CategoryLineage "Lineage"
// @Failure     400 {object} ErrorResponse "Invalid category ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Category not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /categories/{id}/lineage [get]
func (h *CategoryHandler) GetCategoryLineage(c *gin.Context) {
	householdID, err := getHouseholdID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	categoryID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	lineage, err := h.categoryService.GetCategoryLineage(householdID, categoryID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, lineage)
}
