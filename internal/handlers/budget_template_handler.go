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

// BudgetTemplateHandler handles the household's versioned budget template.
type BudgetTemplateHandler struct {
	templateService services.BudgetTemplateServicer
	auditService    services.AuditServicer
}

// NewBudgetTemplateHandler creates a new BudgetTemplateHandler.
func NewBudgetTemplateHandler(templateService services.BudgetTemplateServicer, auditService services.AuditServicer) *BudgetTemplateHandler {
	return &BudgetTemplateHandler{templateService: templateService, auditService: auditService}
}

// CategoryConfigRequest is the per-category configuration in template payloads.
type CategoryConfigRequest struct {
	MonthlyLimit     decimal.Decimal `json:"monthly_limit" binding:"money"`
	WarningThreshold *int            `json:"warning_threshold" binding:"omitempty,warning_threshold"`
	IsActive         *bool           `json:"is_active"`
	Color            string          `json:"color" binding:"omitempty,hex_color"`
	Description      string          `json:"description" binding:"max=500"`
}

func (r CategoryConfigRequest) toConfig() models.CategoryConfig {
	cfg := models.CategoryConfig{
		MonthlyLimit:     r.MonthlyLimit,
		WarningThreshold: models.DefaultWarningThreshold,
		IsActive:         true,
		Color:            r.Color,
		Description:      r.Description,
	}
	if r.WarningThreshold != nil {
		cfg.WarningThreshold = *r.WarningThreshold
	}
	if r.IsActive != nil {
		cfg.IsActive = *r.IsActive
	}
	return cfg
}

// BudgetSettingsRequest holds household-wide template settings.
type BudgetSettingsRequest struct {
	Currency         string `json:"currency" binding:"omitempty,iso4217"`
	NotifyOnWarning  bool   `json:"notify_on_warning"`
	NotifyOnExceeded bool   `json:"notify_on_exceeded"`
}

// CreateTemplateRequest replaces the template content wholesale.
type CreateTemplateRequest struct {
	Name       string                           `json:"name" binding:"max=100"`
	Categories map[string]CategoryConfigRequest `json:"categories" binding:"required,dive,keys,uuid,endkeys"`
	Settings   BudgetSettingsRequest            `json:"settings"`
	Notes      string                           `json:"notes" binding:"max=1000"`
}

// UpdateTemplateRequest edits the active template. Categories are upserted,
// RemoveCategoryIDs are dropped and omitted fields are kept.
type UpdateTemplateRequest struct {
	Name              *string                          `json:"name" binding:"omitempty,min=1,max=100"`
	Categories        map[string]CategoryConfigRequest `json:"categories" binding:"omitempty,dive,keys,uuid,endkeys"`
	RemoveCategoryIDs []string                         `json:"remove_category_ids" binding:"omitempty,dive,uuid"`
	Settings          *BudgetSettingsRequest           `json:"settings"`
	Notes             *string                          `json:"notes" binding:"omitempty,max=1000"`
}

// TemplateResponse wraps the active template. SetupRequired is true when the
// household has not configured a budget yet.
type TemplateResponse struct {
	Template      *models.BudgetTemplate `json:"template"`
	SetupRequired bool                   `json:"setup_required"`
}

// GetActiveTemplate returns the active template version.
// @Summary     Get active budget template
// @Description Returns the active version, or setup_required when no budget has been configured
// @Tags        budget-template
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} TemplateResponse "Active template"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budget-template [get]
func (h *BudgetTemplateHandler) GetActiveTemplate(c *gin.Context) {
	householdID, err := getHouseholdID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	tmpl, err := h.templateService.GetActiveTemplate(householdID)
	if err != nil {
		if apperrors.IsSetupRequired(err) {
			c.JSON(http.StatusOK, TemplateResponse{SetupRequired: true})
			return
		}
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, TemplateResponse{Template: tmpl})
}

// CreateTemplate writes a new version with exactly the given content.
// @Summary     Create budget template version
// @Description Configure the budget. The first call creates version 1; later calls add a version with the given content.
// @Tags        budget-template
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CreateTemplateRequest true "Template content"
// @Success     201 {object} models.BudgetTemplate "New active version"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     409 {object} ErrorResponse "Concurrent change"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budget-template [post]
func (h *BudgetTemplateHandler) CreateTemplate(c *gin.Context) {
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

	var req CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, invalidInput(err))
		return
	}

	categories := make(models.CategoryMap, len(req.Categories))
	for id, cfg := range req.Categories {
		categories[id] = cfg.toConfig()
	}

	tmpl, err := h.templateService.CreateTemplate(householdID, services.TemplateDraft{
		Name:       req.Name,
		Categories: categories,
		Settings: models.BudgetSettings{
			Currency:         req.Settings.Currency,
			NotifyOnWarning:  req.Settings.NotifyOnWarning,
			NotifyOnExceeded: req.Settings.NotifyOnExceeded,
		},
		Notes: req.Notes,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(householdID, userID, "CREATE_TEMPLATE_VERSION", "budget_template", tmpl.ID, c.ClientIP(),
		map[string]interface{}{"version": tmpl.Version, "categories": len(categories)})

	c.JSON(http.StatusCreated, gin.H{"template": tmpl})
}

// UpdateTemplate applies a partial edit to the active version as a new version.
// @Summary     Update budget template
// @Description Upsert or remove categories and edit settings. Always creates a new version.
// @Tags        budget-template
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body UpdateTemplateRequest true "Template changes"
// @Success     200 {object} models.BudgetTemplate "New active version"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     409 {object} ErrorResponse "Concurrent change"
// @Failure     428 {object} ErrorResponse "Budget not configured"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budget-template [patch]
func (h *BudgetTemplateHandler) UpdateTemplate(c *gin.Context) {
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

	var req UpdateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, invalidInput(err))
		return
	}

	tmpl, err := h.templateService.UpdateTemplate(householdID, func(d *services.TemplateDraft) error {
		if req.Name != nil {
			d.Name = *req.Name
		}
		if req.Notes != nil {
			d.Notes = *req.Notes
		}
		if req.Settings != nil {
			if req.Settings.Currency != "" {
				d.Settings.Currency = req.Settings.Currency
			}
			d.Settings.NotifyOnWarning = req.Settings.NotifyOnWarning
			d.Settings.NotifyOnExceeded = req.Settings.NotifyOnExceeded
		}
		for id, cfg := range req.Categories {
			d.Categories[id] = cfg.toConfig()
		}
		for _, id := range req.RemoveCategoryIDs {
			delete(d.Categories, id)
		}
		return nil
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(householdID, userID, "UPDATE_TEMPLATE", "budget_template", tmpl.ID, c.ClientIP(),
		map[string]interface{}{
			"version":            tmpl.Version,
			"upserted":           len(req.Categories),
			"removed_categories": req.RemoveCategoryIDs,
		})

	c.JSON(http.StatusOK, gin.H{"template": tmpl})
}

// GetTemplateHistory lists template versions, newest first.
// @Summary     Budget template history
// @Tags        budget-template
// @Produce     json
// @Security    BearerAuth
// @Param       page      query int false "Page number (default 1)"
// @Param       page_size query int false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.BudgetTemplate] "Paginated versions"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budget-template/versions [get]
func (h *BudgetTemplateHandler) GetTemplateHistory(c *gin.Context) {
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

	result, err := h.templateService.GetTemplateHistory(householdID, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetTemplateVersion returns one template version.
// @Summary     Get budget template version
// @Tags        budget-template
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Template version ID"
// @Success     200 {object} models.BudgetTemplate "Template version"
// @Failure     400 {object} ErrorResponse "Invalid ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Version not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budget-template/versions/{id} [get]
func (h *BudgetTemplateHandler) GetTemplateVersion(c *gin.Context) {
	householdID, err := getHouseholdID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	templateID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	tmpl, err := h.templateService.GetTemplateVersion(householdID, templateID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"template": tmpl})
}

// ActivateVersion rolls the template back or forward to an existing version.
// @Summary     Activate budget template version
// @Tags        budget-template
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Template version ID"
// @Success     200 {object} models.BudgetTemplate "Activated version"
// @Failure     400 {object} ErrorResponse "Invalid ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Version not found"
// @Failure     409 {object} ErrorResponse "Concurrent change or version budgets deleted categories"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budget-template/versions/{id}/activate [post]
func (h *BudgetTemplateHandler) ActivateVersion(c *gin.Context) {
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
	templateID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	tmpl, err := h.templateService.SetActiveVersion(householdID, templateID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(householdID, userID, "ACTIVATE_TEMPLATE_VERSION", "budget_template", tmpl.ID, c.ClientIP(),
		map[string]interface{}{"version": tmpl.Version})

	c.JSON(http.StatusOK, gin.H{"template": tmpl})
}

// DeleteVersion removes an inactive template version.
// @Summary     Delete budget template version
// @Tags        budget-template
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Template version ID"
// @Success     200 {object} MessageResponse "Version deleted"
// @Failure     400 {object} ErrorResponse "Invalid ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Version not found"
// @Failure     409 {object} ErrorResponse "Active version cannot be deleted"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budget-template/versions/{id} [delete]
func (h *BudgetTemplateHandler) DeleteVersion(c *gin.Context) {
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
	templateID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	if err := h.templateService.DeleteVersion(householdID, templateID); err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(householdID, userID, "DELETE_TEMPLATE_VERSION", "budget_template", templateID, c.ClientIP(), nil)

	c.JSON(http.StatusOK, gin.H{"message": "Template version deleted successfully"})
}

// CompareVersions diffs two template versions.
// @Summary     Compare budget template versions
// @Tags        budget-template
// @Produce     json
// @Security    BearerAuth
// @Param       from query string true "Older version ID"
// @Param       to   query string true "Newer version ID"
// @Success     200 {object} comparison.Result "Comparison"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Version not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budget-template/compare [get]
func (h *BudgetTemplateHandler) CompareVersions(c *gin.Context) {
	householdID, err := getHouseholdID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var query struct {
		From string `form:"from" binding:"required,uuid"`
		To   string `form:"to" binding:"required,uuid"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		respondWithError(c, invalidInput(err))
		return
	}

	result, err := h.templateService.CompareVersions(householdID, query.From, query.To)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
