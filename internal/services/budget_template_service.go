package services

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"homebudget/internal/comparison"
	apperrors "homebudget/internal/errors"
	"homebudget/internal/logger"
	"homebudget/internal/models"
	"homebudget/internal/pagination"
)

const (
	defaultTemplateName = "Personal Budget"
	defaultCurrency     = "USD"

	// maxVersionRetries bounds how often a conflicting version write is re-run
	// against freshly read state before the conflict is returned to the caller.
	maxVersionRetries = 3
)

// budgetTemplateService handles the versioned budget template store.
type budgetTemplateService struct {
	db *gorm.DB
}

// NewBudgetTemplateService creates a new BudgetTemplateServicer.
func NewBudgetTemplateService(db *gorm.DB) BudgetTemplateServicer {
	return &budgetTemplateService{db: db}
}

// withVersionRetry re-runs fn while it fails with a concurrent version conflict.
func withVersionRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt < maxVersionRetries; attempt++ {
		err = fn()
		if !errors.Is(err, apperrors.ErrConcurrentVersionConflict) {
			return err
		}
		logger.Get().Debugw("retrying after version conflict", "attempt", attempt+1)
	}
	return err
}

// CreateTemplate writes a new template version whose content is exactly draft.
func (s *budgetTemplateService) CreateTemplate(householdID string, draft TemplateDraft) (*models.BudgetTemplate, error) {
	var result *models.BudgetTemplate
	err := withVersionRetry(func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			var err error
			result, err = s.CreateVersion(tx, householdID, func(d *TemplateDraft) error {
				if draft.Name != "" {
					d.Name = draft.Name
				}
				d.Categories = draft.Categories.Clone()
				currency := d.Settings.Currency
				d.Settings = draft.Settings.Clone()
				if d.Settings.Currency == "" {
					d.Settings.Currency = currency
				}
				d.Notes = draft.Notes
				return nil
			})
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateTemplate applies mutate to a copy of the active version and saves the
// result as the next version. The active version row is never modified.
func (s *budgetTemplateService) UpdateTemplate(householdID string, mutate TemplateMutator) (*models.BudgetTemplate, error) {
	var result *models.BudgetTemplate
	err := withVersionRetry(func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			if _, err := findActiveTemplate(tx, householdID); err != nil {
				return err
			}
			var err error
			result, err = s.CreateVersion(tx, householdID, mutate)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CreateVersion writes the next template version inside tx and makes it the
// active one. A household without a template gets version 1. Callers own the
// transaction and are expected to retry on ErrConcurrentVersionConflict.
func (s *budgetTemplateService) CreateVersion(tx *gorm.DB, householdID string, mutate TemplateMutator) (*models.BudgetTemplate, error) {
	current, err := findActiveTemplate(tx, householdID)
	if err != nil && !apperrors.IsSetupRequired(err) {
		return nil, err
	}

	draft := newDraft(tx, householdID, current)
	if mutate != nil {
		if err := mutate(&draft); err != nil {
			return nil, err
		}
	}
	if err := validateDraft(tx, householdID, current, &draft); err != nil {
		return nil, err
	}

	var maxVersion int
	if err := tx.Unscoped().Model(&models.BudgetTemplate{}).
		Where("household_id = ?", householdID).
		Select("COALESCE(MAX(version), 0)").
		Scan(&maxVersion).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	draft.Settings.ActiveCategoryIDs = draft.Categories.ActiveIDs()
	tmpl := &models.BudgetTemplate{
		HouseholdID: householdID,
		Version:     maxVersion + 1,
		Name:        draft.Name,
		Categories:  datatypes.NewJSONType(draft.Categories),
		Settings:    datatypes.NewJSONType(draft.Settings),
		IsActive:    false,
		Notes:       draft.Notes,
	}
	if err := tx.Create(tmpl).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperrors.Wrap(apperrors.ErrConcurrentVersionConflict, err)
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	expected := ""
	if current != nil {
		expected = current.ID
	}
	if err := activateVersion(tx, householdID, expected, tmpl.ID); err != nil {
		return nil, err
	}
	tmpl.IsActive = true

	logger.ForHousehold(householdID).Infow("budget template version created",
		"version", tmpl.Version,
		"categories", len(draft.Categories),
		"total_limit", draft.Categories.TotalLimit().String(),
	)
	return tmpl, nil
}

// SetActiveVersion makes an existing version the active one (rollback).
func (s *budgetTemplateService) SetActiveVersion(householdID, templateID string) (*models.BudgetTemplate, error) {
	var result *models.BudgetTemplate
	err := withVersionRetry(func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			target, err := findTemplate(tx, householdID, templateID)
			if err != nil {
				return err
			}
			result = target
			if target.IsActive {
				return nil
			}
			if err := checkLiveCategories(tx, householdID, target); err != nil {
				return err
			}

			current, err := findActiveTemplate(tx, householdID)
			if err != nil && !apperrors.IsSetupRequired(err) {
				return err
			}
			expected := ""
			if current != nil {
				expected = current.ID
			}
			if err := activateVersion(tx, householdID, expected, target.ID); err != nil {
				return err
			}
			target.IsActive = true
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	logger.ForHousehold(householdID).Infow("budget template version activated", "version", result.Version)
	return result, nil
}

// DeleteVersion soft-deletes an inactive version.
func (s *budgetTemplateService) DeleteVersion(householdID, templateID string) error {
	tmpl, err := s.GetTemplateVersion(householdID, templateID)
	if err != nil {
		return err
	}
	if tmpl.IsActive {
		return apperrors.ErrActiveVersionProtected
	}

	res := s.db.Where("id = ? AND household_id = ? AND is_active = ?", templateID, householdID, false).
		Delete(&models.BudgetTemplate{})
	if res.Error != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
	}
	if res.RowsAffected == 0 {
		// Activated between the read and the delete.
		return apperrors.ErrActiveVersionProtected
	}

	logger.ForHousehold(householdID).Infow("budget template version deleted", "version", tmpl.Version)
	return nil
}

// GetActiveTemplate returns the household's active version, or
// ErrHouseholdHasNoTemplate when the household has not been set up yet.
func (s *budgetTemplateService) GetActiveTemplate(householdID string) (*models.BudgetTemplate, error) {
	return findActiveTemplate(s.db, householdID)
}

// GetTemplateVersion returns one version by ID.
func (s *budgetTemplateService) GetTemplateVersion(householdID, templateID string) (*models.BudgetTemplate, error) {
	return findTemplate(s.db, householdID, templateID)
}

// GetTemplateHistory lists all versions, newest first.
func (s *budgetTemplateService) GetTemplateHistory(householdID string, page pagination.PageRequest) (*pagination.PageResponse[models.BudgetTemplate], error) {
	page.Defaults()

	var totalItems int64
	base := s.db.Model(&models.BudgetTemplate{}).Where("household_id = ?", householdID)
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var versions []models.BudgetTemplate
	if err := base.Order("version DESC").Scopes(pagination.Paginate(page)).Find(&versions).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(versions, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// CompareVersions diffs two template versions.
func (s *budgetTemplateService) CompareVersions(householdID, fromID, toID string) (*comparison.Result, error) {
	from, err := findTemplate(s.db, householdID, fromID)
	if err != nil {
		return nil, err
	}
	to, err := findTemplate(s.db, householdID, toID)
	if err != nil {
		return nil, err
	}

	names, err := categoryNames(s.db, householdID)
	if err != nil {
		return nil, err
	}
	res := comparison.Compare(from.CategoryMap(), to.CategoryMap(), names)
	return &res, nil
}

func findActiveTemplate(db *gorm.DB, householdID string) (*models.BudgetTemplate, error) {
	var tmpl models.BudgetTemplate
	if err := db.Where("household_id = ? AND is_active = ?", householdID, true).First(&tmpl).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrHouseholdHasNoTemplate
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &tmpl, nil
}

func findTemplate(db *gorm.DB, householdID, templateID string) (*models.BudgetTemplate, error) {
	var tmpl models.BudgetTemplate
	if err := db.Where("id = ? AND household_id = ?", templateID, householdID).First(&tmpl).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrTemplateNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &tmpl, nil
}

// checkLiveCategories rejects a version that budgets categories which have
// since been deleted or merged away.
func checkLiveCategories(tx *gorm.DB, householdID string, tmpl *models.BudgetTemplate) error {
	ids := tmpl.CategoryMap().IDs()
	if len(ids) == 0 {
		return nil
	}

	var names []string
	if err := tx.Unscoped().Model(&models.Category{}).
		Where("household_id = ? AND id IN ? AND deleted_at IS NOT NULL", householdID, ids).
		Order("name ASC").
		Pluck("name", &names).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if len(names) == 0 {
		return nil
	}
	return apperrors.WithMessage(apperrors.ErrVersionHasDeletedCategories,
		fmt.Sprintf("version %d budgets deleted or merged categories: %s", tmpl.Version, strings.Join(names, ", ")))
}

// activateVersion flips the active flag from expectedActiveID (empty when the
// household had no active version) to targetID. Both writes are guarded on
// the flag, so a competing writer makes one of them affect zero rows.
func activateVersion(tx *gorm.DB, householdID, expectedActiveID, targetID string) error {
	if expectedActiveID != "" {
		res := tx.Model(&models.BudgetTemplate{}).
			Where("id = ? AND household_id = ? AND is_active = ?", expectedActiveID, householdID, true).
			Update("is_active", false)
		if res.Error != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
		}
		if res.RowsAffected != 1 {
			return apperrors.ErrConcurrentVersionConflict
		}
	}

	res := tx.Model(&models.BudgetTemplate{}).
		Where("id = ? AND household_id = ? AND is_active = ?", targetID, householdID, false).
		Update("is_active", true)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return apperrors.Wrap(apperrors.ErrConcurrentVersionConflict, res.Error)
		}
		return apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
	}
	if res.RowsAffected != 1 {
		return apperrors.ErrConcurrentVersionConflict
	}
	return nil
}

func newDraft(tx *gorm.DB, householdID string, current *models.BudgetTemplate) TemplateDraft {
	if current != nil {
		return TemplateDraft{
			Name:       current.Name,
			Categories: current.CategoryMap(),
			Settings:   current.Settings.Data().Clone(),
			Notes:      current.Notes,
		}
	}

	currency := defaultCurrency
	var household models.Household
	if err := tx.Select("currency").Where("id = ?", householdID).First(&household).Error; err == nil && household.Currency != "" {
		currency = household.Currency
	}
	return TemplateDraft{
		Name:       defaultTemplateName,
		Categories: models.CategoryMap{},
		Settings: models.BudgetSettings{
			Currency:         currency,
			NotifyOnWarning:  true,
			NotifyOnExceeded: true,
		},
	}
}

// validateDraft checks limits and thresholds, and that every category the
// draft introduces relative to the previous version is a live category of the
// household.
func validateDraft(tx *gorm.DB, householdID string, previous *models.BudgetTemplate, draft *TemplateDraft) error {
	draft.Name = strings.TrimSpace(draft.Name)
	if draft.Name == "" {
		draft.Name = defaultTemplateName
	}
	if draft.Categories == nil {
		draft.Categories = models.CategoryMap{}
	}

	for id, cfg := range draft.Categories {
		if cfg.MonthlyLimit.IsNegative() {
			return apperrors.WithMessage(apperrors.ErrInvalidInput, fmt.Sprintf("monthly limit for category %s must not be negative", id))
		}
		if cfg.WarningThreshold < 0 || cfg.WarningThreshold > 100 {
			return apperrors.WithMessage(apperrors.ErrInvalidInput, fmt.Sprintf("warning threshold for category %s must be between 0 and 100", id))
		}
	}

	var prev models.CategoryMap
	if previous != nil {
		prev = previous.CategoryMap()
	}
	var introduced []string
	for id := range draft.Categories {
		if _, ok := prev[id]; !ok {
			introduced = append(introduced, id)
		}
	}
	if len(introduced) == 0 {
		return nil
	}

	var count int64
	if err := tx.Model(&models.Category{}).
		Where("household_id = ? AND id IN ?", householdID, introduced).
		Count(&count).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if int(count) != len(introduced) {
		return apperrors.WithMessage(apperrors.ErrCategoryNotFound, "budget references unknown or deleted categories")
	}
	return nil
}
