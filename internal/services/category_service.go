package services

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	apperrors "homebudget/internal/errors"
	"homebudget/internal/logger"
	"homebudget/internal/models"
	"homebudget/internal/pagination"
)

// categoryService handles the category registry and its lifecycle.
type categoryService struct {
	db           *gorm.DB
	templates    BudgetTemplateServicer
	transactions TransactionServicer
	now          func() time.Time
}

// NewCategoryService creates a new CategoryServicer.
func NewCategoryService(db *gorm.DB, templates BudgetTemplateServicer, transactions TransactionServicer) CategoryServicer {
	return &categoryService{
		db:           db,
		templates:    templates,
		transactions: transactions,
		now:          time.Now,
	}
}

// CreateCategory registers a new category. With includeInTemplate the
// category is also added to the active template as a new version.
func (s *categoryService) CreateCategory(householdID string, input CategoryInput, includeInTemplate bool) (*models.Category, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "category name is required")
	}
	if input.DefaultMonthlyLimit.IsNegative() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "default monthly limit must not be negative")
	}
	threshold := input.DefaultWarningThreshold
	if threshold == 0 {
		threshold = models.DefaultWarningThreshold
	}
	if threshold < 0 || threshold > 100 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "warning threshold must be between 0 and 100")
	}
	categoryType := input.Type
	if categoryType == "" {
		categoryType = models.CategoryTypeExpense
	}

	var category *models.Category
	err := withVersionRetry(func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			taken, err := nameTaken(tx, householdID, name, "")
			if err != nil {
				return err
			}
			if taken {
				return apperrors.ErrDuplicateCategoryName
			}

			category = &models.Category{
				HouseholdID:             householdID,
				Name:                    name,
				Type:                    categoryType,
				Description:             input.Description,
				Icon:                    input.Icon,
				Color:                   input.Color,
				DefaultMonthlyLimit:     input.DefaultMonthlyLimit,
				DefaultWarningThreshold: threshold,
				IsActive:                true,
			}
			if err := tx.Create(category).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}

			if !includeInTemplate {
				return nil
			}
			if _, err := findActiveTemplate(tx, householdID); err != nil {
				if apperrors.IsSetupRequired(err) {
					return nil
				}
				return err
			}
			_, err = s.templates.CreateVersion(tx, householdID, func(d *TemplateDraft) error {
				d.Categories[category.ID] = category.DefaultConfig()
				return nil
			})
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return category, nil
}

// GetCategories lists the household's categories by name.
func (s *categoryService) GetCategories(householdID string, filter CategoryFilter, page pagination.PageRequest) (*pagination.PageResponse[models.Category], error) {
	page.Defaults()

	base := s.db.Model(&models.Category{}).Where("household_id = ?", householdID)
	if filter.IncludeDeleted {
		base = base.Unscoped()
	}
	if !filter.IncludeInactive {
		base = base.Where("is_active = ?", true)
	}
	if filter.Type != nil {
		base = base.Where("type = ?", *filter.Type)
	}

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var categories []models.Category
	if err := base.Order("name ASC").Scopes(pagination.Paginate(page)).Find(&categories).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(categories, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// GetCategoryByID returns a category, including merged or deleted ones so
// historical references keep resolving.
func (s *categoryService) GetCategoryByID(householdID, categoryID string) (*models.Category, error) {
	return findCategoryUnscoped(s.db, householdID, categoryID)
}

// UpdateCategory changes display attributes and defaults. The identity, and
// therefore every template, snapshot and transaction reference, is unchanged.
func (s *categoryService) UpdateCategory(householdID, categoryID string, update CategoryUpdate) (*models.Category, error) {
	category, err := findCategory(s.db, householdID, categoryID)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "category name is required")
		}
		if name != category.Name {
			taken, err := nameTaken(s.db, householdID, name, category.ID)
			if err != nil {
				return nil, err
			}
			if taken {
				return nil, apperrors.ErrDuplicateCategoryName
			}
			updates["name"] = name
		}
	}
	if update.Description != nil {
		updates["description"] = *update.Description
	}
	if update.Icon != nil {
		updates["icon"] = *update.Icon
	}
	if update.Color != nil {
		updates["color"] = *update.Color
	}
	if update.DefaultMonthlyLimit != nil {
		if update.DefaultMonthlyLimit.IsNegative() {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "default monthly limit must not be negative")
		}
		updates["default_monthly_limit"] = *update.DefaultMonthlyLimit
	}
	if update.DefaultWarningThreshold != nil {
		if *update.DefaultWarningThreshold < 0 || *update.DefaultWarningThreshold > 100 {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "warning threshold must be between 0 and 100")
		}
		updates["default_warning_threshold"] = *update.DefaultWarningThreshold
	}

	if len(updates) > 0 {
		if err := s.db.Model(category).Updates(updates).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}

	return findCategory(s.db, householdID, categoryID)
}

// DeactivateCategory hides a category from new use. Its transactions must be
// reassigned first; it stays in templates until removed explicitly.
func (s *categoryService) DeactivateCategory(householdID, categoryID string, reassignTo *string) (*models.Category, error) {
	var category *models.Category
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		category, err = findCategory(tx, householdID, categoryID)
		if err != nil {
			return err
		}
		if !category.IsActive {
			return nil
		}
		if err := s.releaseTransactions(tx, householdID, category, reassignTo, models.CategoryChangeDeactivated); err != nil {
			return err
		}
		if err := tx.Model(category).Update("is_active", false).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		category.IsActive = false
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.ForHousehold(householdID).Infow("category deactivated", "category_id", categoryID)
	return category, nil
}

// ReactivateCategory makes an inactive category usable again.
func (s *categoryService) ReactivateCategory(householdID, categoryID string) (*models.Category, error) {
	category, err := findCategory(s.db, householdID, categoryID)
	if err != nil {
		return nil, err
	}
	if category.IsActive {
		return category, nil
	}
	if err := s.db.Model(category).Update("is_active", true).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	category.IsActive = true

	logger.ForHousehold(householdID).Infow("category reactivated", "category_id", categoryID)
	return category, nil
}

// DeleteCategory soft-deletes a category, removing it from the active
// template and cancelling its pending adjustments.
func (s *categoryService) DeleteCategory(householdID, categoryID string, reassignTo *string) error {
	err := withVersionRetry(func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			category, err := findCategory(tx, householdID, categoryID)
			if err != nil {
				return err
			}
			if err := s.releaseTransactions(tx, householdID, category, reassignTo, models.CategoryChangeDeleted); err != nil {
				return err
			}

			current, err := findActiveTemplate(tx, householdID)
			if err != nil && !apperrors.IsSetupRequired(err) {
				return err
			}
			if current != nil {
				if _, ok := current.CategoryMap()[category.ID]; ok {
					if _, err := s.templates.CreateVersion(tx, householdID, func(d *TemplateDraft) error {
						delete(d.Categories, category.ID)
						return nil
					}); err != nil {
						return err
					}
				}
			}

			if _, err := cancelPendingAdjustments(tx, householdID, category.ID); err != nil {
				return err
			}
			return softDeleteCategory(tx, category, models.CategoryDeletedUserDeleted, nil)
		})
	})
	if err != nil {
		return err
	}

	logger.ForHousehold(householdID).Infow("category deleted", "category_id", categoryID)
	return nil
}

// MergeCategories folds source into target. Limits are summed for the
// active template and for current and future unlocked months; elapsed months
// are left as they were. Transactions move to target while keeping the first
// category they ever belonged to in original_category_id.
func (s *categoryService) MergeCategories(householdID, sourceID, targetID string, actorID *string) (*MergeResult, error) {
	if sourceID == targetID {
		return nil, apperrors.ErrSelfMerge
	}

	var result *MergeResult
	err := withVersionRetry(func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			source, err := findCategory(tx, householdID, sourceID)
			if err != nil {
				return err
			}
			target, err := findCategory(tx, householdID, targetID)
			if err != nil {
				return err
			}
			if !target.IsActive {
				return apperrors.WithMessage(apperrors.ErrCategoryInactive, "merge target is inactive")
			}

			result = &MergeResult{}

			result.TransactionsMoved, err = s.transactions.ReassignCategory(tx, householdID, source.ID, target.ID, models.CategoryChangeMerged)
			if err != nil {
				return err
			}

			current, err := findActiveTemplate(tx, householdID)
			if err != nil && !apperrors.IsSetupRequired(err) {
				return err
			}
			if current != nil {
				if _, ok := current.CategoryMap()[source.ID]; ok {
					tmpl, err := s.templates.CreateVersion(tx, householdID, func(d *TemplateDraft) error {
						d.Categories = mergeCategoryMaps(d.Categories, source.ID, target.ID)
						return nil
					})
					if err != nil {
						return err
					}
					result.TemplateVersion = &tmpl.Version
				}
			}

			combined := target.DefaultMonthlyLimit.Add(source.DefaultMonthlyLimit)
			if err := tx.Model(target).Update("default_monthly_limit", combined).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
			target.DefaultMonthlyLimit = combined

			result.SnapshotsUpdated, err = mergeIntoOpenSnapshots(tx, householdID, source.ID, target.ID, s.now())
			if err != nil {
				return err
			}

			result.AdjustmentsCancelled, err = cancelPendingAdjustments(tx, householdID, source.ID)
			if err != nil {
				return err
			}

			if err := softDeleteCategory(tx, source, models.CategoryDeletedMerged, &target.ID); err != nil {
				return err
			}

			history := &models.CategoryMergeHistory{
				HouseholdID:        householdID,
				SourceCategoryID:   source.ID,
				SourceCategoryName: source.Name,
				TargetCategoryID:   target.ID,
				TargetCategoryName: target.Name,
				TransactionsMoved:  result.TransactionsMoved,
				MergedByUserID:     actorID,
				MergedAt:           s.now(),
			}
			if err := tx.Create(history).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}

			result.Source = source
			result.Target = target
			result.History = history
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	logger.ForHousehold(householdID).Infow("categories merged",
		"source_category_id", sourceID,
		"target_category_id", targetID,
		"transactions_moved", result.TransactionsMoved,
		"snapshots_updated", result.SnapshotsUpdated,
		"adjustments_cancelled", result.AdjustmentsCancelled,
	)
	return result, nil
}

// GetMergeHistory lists merges, newest first.
func (s *categoryService) GetMergeHistory(householdID string, page pagination.PageRequest) (*pagination.PageResponse[models.CategoryMergeHistory], error) {
	page.Defaults()

	var totalItems int64
	base := s.db.Model(&models.CategoryMergeHistory{}).Where("household_id = ?", householdID)
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var merges []models.CategoryMergeHistory
	if err := base.Order("merged_at DESC").Scopes(pagination.Paginate(page)).Find(&merges).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(merges, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// GetCategoryLineage walks the merge history backwards from a category and
// returns every category folded into it, directly or through chained merges.
func (s *categoryService) GetCategoryLineage(householdID, categoryID string) (*CategoryLineage, error) {
	if _, err := findCategoryUnscoped(s.db, householdID, categoryID); err != nil {
		return nil, err
	}

	var merges []models.CategoryMergeHistory
	if err := s.db.Where("household_id = ?", householdID).Order("merged_at ASC").Find(&merges).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	byTarget := make(map[string][]models.CategoryMergeHistory)
	for _, m := range merges {
		byTarget[m.TargetCategoryID] = append(byTarget[m.TargetCategoryID], m)
	}

	lineage := &CategoryLineage{
		CategoryID:        categoryID,
		MergedCategoryIDs: []string{},
		Merges:            []models.CategoryMergeHistory{},
	}
	seen := map[string]bool{categoryID: true}
	queue := []string{categoryID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, m := range byTarget[current] {
			lineage.Merges = append(lineage.Merges, m)
			if seen[m.SourceCategoryID] {
				continue
			}
			seen[m.SourceCategoryID] = true
			lineage.MergedCategoryIDs = append(lineage.MergedCategoryIDs, m.SourceCategoryID)
			queue = append(queue, m.SourceCategoryID)
		}
	}
	return lineage, nil
}

// releaseTransactions clears a category of transactions before it leaves
// service, or reports how many block it.
func (s *categoryService) releaseTransactions(tx *gorm.DB, householdID string, category *models.Category, reassignTo *string, reason string) error {
	count, err := s.transactions.CountByCategory(tx, householdID, category.ID)
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}
	if reassignTo == nil || *reassignTo == "" {
		return apperrors.CategoryInUse(count)
	}
	if *reassignTo == category.ID {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "cannot reassign transactions to the same category")
	}

	target, err := findCategory(tx, householdID, *reassignTo)
	if err != nil {
		return err
	}
	if !target.IsActive {
		return apperrors.WithMessage(apperrors.ErrCategoryInactive, "reassignment target is inactive")
	}

	moved, err := s.transactions.ReassignCategory(tx, householdID, category.ID, target.ID, reason)
	if err != nil {
		return err
	}
	logger.ForHousehold(householdID).Infow("transactions reassigned",
		"from_category_id", category.ID,
		"to_category_id", target.ID,
		"count", moved,
		"reason", reason,
	)
	return nil
}

// mergeCategoryMaps moves src's limit onto tgt and drops src. A target that
// is not in the map inherits src's configuration.
func mergeCategoryMaps(m models.CategoryMap, src, tgt string) models.CategoryMap {
	srcCfg, ok := m[src]
	if !ok {
		return m
	}
	if tgtCfg, ok := m[tgt]; ok {
		tgtCfg.MonthlyLimit = tgtCfg.MonthlyLimit.Add(srcCfg.MonthlyLimit)
		m[tgt] = tgtCfg
	} else {
		m[tgt] = srcCfg
	}
	delete(m, src)
	return m
}

// mergeIntoOpenSnapshots applies a merge to the current and future unlocked
// months of a household. Only categories is changed; original_categories
// keeps the month-start split.
func mergeIntoOpenSnapshots(tx *gorm.DB, householdID, src, tgt string, now time.Time) (int, error) {
	year, month := now.Year(), int(now.Month())

	var snapshots []models.MonthlyBudget
	if err := tx.Where("household_id = ? AND is_locked = ? AND (year > ? OR (year = ? AND month >= ?))",
		householdID, false, year, year, month).
		Find(&snapshots).Error; err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	updated := 0
	for _, snap := range snapshots {
		categories := snap.CategoryMap()
		if _, ok := categories[src]; !ok {
			continue
		}
		categories = mergeCategoryMaps(categories, src, tgt)

		res := tx.Model(&models.MonthlyBudget{}).
			Where("id = ? AND adjustment_count = ? AND is_locked = ?", snap.ID, snap.AdjustmentCount, false).
			Updates(map[string]interface{}{
				"categories":       datatypes.NewJSONType(categories),
				"adjustment_count": snap.AdjustmentCount + 1,
			})
		if res.Error != nil {
			return 0, apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
		}
		if res.RowsAffected != 1 {
			return 0, apperrors.ErrConcurrentVersionConflict
		}
		updated++
	}
	return updated, nil
}

func cancelPendingAdjustments(tx *gorm.DB, householdID, categoryID string) (int64, error) {
	res := tx.Where("household_id = ? AND category_id = ? AND applied = ?", householdID, categoryID, false).
		Delete(&models.BudgetAdjustment{})
	if res.Error != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
	}
	return res.RowsAffected, nil
}

func softDeleteCategory(tx *gorm.DB, category *models.Category, reason models.CategoryDeletionReason, mergedInto *string) error {
	updates := map[string]interface{}{
		"is_active":      false,
		"deleted_reason": reason,
	}
	if mergedInto != nil {
		updates["merged_into_id"] = *mergedInto
	}
	if err := tx.Model(category).Updates(updates).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if err := tx.Delete(category).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	category.IsActive = false
	category.DeletedReason = &reason
	category.MergedIntoID = mergedInto
	return nil
}

func findCategory(db *gorm.DB, householdID, categoryID string) (*models.Category, error) {
	var category models.Category
	if err := db.Where("id = ? AND household_id = ?", categoryID, householdID).First(&category).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrCategoryNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &category, nil
}

func findCategoryUnscoped(db *gorm.DB, householdID, categoryID string) (*models.Category, error) {
	var category models.Category
	if err := db.Unscoped().Where("id = ? AND household_id = ?", categoryID, householdID).First(&category).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrCategoryNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &category, nil
}

// findOrCreateCategoryByName resolves a live category by case-insensitive
// name, registering a new expense category on first use.
func findOrCreateCategoryByName(tx *gorm.DB, householdID, name string) (*models.Category, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false, apperrors.WithMessage(apperrors.ErrInvalidInput, "category name is required")
	}

	var category models.Category
	err := tx.Where("household_id = ? AND LOWER(name) = LOWER(?)", householdID, name).First(&category).Error
	if err == nil {
		return &category, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	category = models.Category{
		HouseholdID:             householdID,
		Name:                    name,
		Type:                    models.CategoryTypeExpense,
		DefaultMonthlyLimit:     decimal.Zero,
		DefaultWarningThreshold: models.DefaultWarningThreshold,
		IsActive:                true,
	}
	if err := tx.Create(&category).Error; err != nil {
		return nil, false, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	logger.ForHousehold(householdID).Infow("category created on first use", "category_id", category.ID, "name", name)
	return &category, true, nil
}

// categoryNames maps every category ever registered for the household,
// deleted ones included, to its current display name.
func categoryNames(db *gorm.DB, householdID string) (map[string]string, error) {
	var rows []struct {
		ID   string
		Name string
	}
	if err := db.Unscoped().Model(&models.Category{}).
		Select("id, name").
		Where("household_id = ?", householdID).
		Scan(&rows).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	names := make(map[string]string, len(rows))
	for _, r := range rows {
		names[r.ID] = r.Name
	}
	return names, nil
}

func nameTaken(db *gorm.DB, householdID, name, excludeID string) (bool, error) {
	q := db.Model(&models.Category{}).Where("household_id = ? AND LOWER(name) = LOWER(?)", householdID, name)
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return count > 0, nil
}
