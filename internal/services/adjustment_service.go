package services

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	apperrors "homebudget/internal/errors"
	"homebudget/internal/logger"
	"homebudget/internal/models"
	"homebudget/internal/pagination"
)

// AdjustmentOptions configures the adjustment scheduler.
type AdjustmentOptions struct {
	// RegenerateLockedSnapshots lets an apply delete a locked month's
	// snapshot so it is rebuilt from the new template. When false a locked
	// month keeps the snapshot it was locked with.
	RegenerateLockedSnapshots bool
	// Concurrency bounds how many households ApplyDueAdjustments processes
	// at once.
	Concurrency int
}

// adjustmentService schedules limit changes for the next month and applies
// them when that month begins.
type adjustmentService struct {
	db        *gorm.DB
	templates BudgetTemplateServicer
	opts      AdjustmentOptions
	now       func() time.Time
}

// NewAdjustmentService creates a new AdjustmentServicer.
func NewAdjustmentService(db *gorm.DB, templates BudgetTemplateServicer, opts AdjustmentOptions) AdjustmentServicer {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &adjustmentService{
		db:        db,
		templates: templates,
		opts:      opts,
		now:       time.Now,
	}
}

// ScheduleAdjustment records a limit change effective the next calendar
// month. An unknown category name registers the category on first use.
func (s *adjustmentService) ScheduleAdjustment(householdID string, userID *string, input ScheduleAdjustmentInput) (*models.BudgetAdjustment, error) {
	if input.NewLimit.IsNegative() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "new limit must not be negative")
	}
	if input.CategoryID == "" && input.CategoryName == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "category ID or name is required")
	}
	if input.CurrentLimit != nil && input.CurrentLimit.IsNegative() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "current limit must not be negative")
	}

	var adjustment *models.BudgetAdjustment
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var (
			category *models.Category
			err      error
		)
		if input.CategoryID != "" {
			category, err = findCategory(tx, householdID, input.CategoryID)
		} else {
			category, _, err = findOrCreateCategoryByName(tx, householdID, input.CategoryName)
		}
		if err != nil {
			return err
		}

		current := decimal.Zero
		if input.CurrentLimit != nil {
			current = *input.CurrentLimit
		} else {
			tmpl, err := findActiveTemplate(tx, householdID)
			switch {
			case err == nil:
				if cfg, ok := tmpl.CategoryMap()[category.ID]; ok {
					current = cfg.MonthlyLimit
				}
			case !apperrors.IsSetupRequired(err):
				return err
			}
		}

		diff := input.NewLimit.Sub(current)
		if diff.IsZero() {
			return apperrors.WithMessage(apperrors.ErrInvalidInput, "new limit must differ from the current limit")
		}

		year, month := models.NextMonth(s.now())

		var pending int64
		if err := tx.Model(&models.BudgetAdjustment{}).
			Where("household_id = ? AND category_id = ? AND effective_year = ? AND effective_month = ? AND applied = ?",
				householdID, category.ID, year, month, false).
			Count(&pending).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if pending > 0 {
			return apperrors.ErrDuplicatePendingAdjustment
		}

		adjType := models.AdjustmentTypeIncrease
		if diff.IsNegative() {
			adjType = models.AdjustmentTypeDecrease
		}

		adjustment = &models.BudgetAdjustment{
			HouseholdID:       householdID,
			CategoryID:        category.ID,
			CategoryName:      category.Name,
			CurrentLimit:      current,
			Type:              adjType,
			Amount:            diff.Abs(),
			NewLimit:          input.NewLimit,
			EffectiveYear:     year,
			EffectiveMonth:    month,
			Reason:            input.Reason,
			Applied:           false,
			ScheduledByUserID: userID,
		}
		if err := tx.Create(adjustment).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperrors.ErrDuplicatePendingAdjustment
			}
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.ForHousehold(householdID).Infow("budget adjustment scheduled",
		"adjustment_id", adjustment.ID,
		"category_id", adjustment.CategoryID,
		"type", adjustment.Type,
		"new_limit", adjustment.NewLimit.String(),
		"effective_year", adjustment.EffectiveYear,
		"effective_month", adjustment.EffectiveMonth,
	)
	return adjustment, nil
}

// CancelAdjustment deletes a pending adjustment.
func (s *adjustmentService) CancelAdjustment(householdID, adjustmentID string) error {
	adjustment, err := s.GetAdjustment(householdID, adjustmentID)
	if err != nil {
		return err
	}
	if adjustment.Applied {
		return apperrors.ErrAdjustmentAlreadyApplied
	}

	res := s.db.Where("id = ? AND household_id = ? AND applied = ?", adjustmentID, householdID, false).
		Delete(&models.BudgetAdjustment{})
	if res.Error != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrAdjustmentAlreadyApplied
	}

	logger.ForHousehold(householdID).Infow("budget adjustment cancelled", "adjustment_id", adjustmentID)
	return nil
}

// GetAdjustment returns one adjustment.
func (s *adjustmentService) GetAdjustment(householdID, adjustmentID string) (*models.BudgetAdjustment, error) {
	var adjustment models.BudgetAdjustment
	if err := s.db.Where("id = ? AND household_id = ?", adjustmentID, householdID).First(&adjustment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrAdjustmentNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &adjustment, nil
}

// GetPendingAdjustments lists unapplied adjustments for an effective month.
func (s *adjustmentService) GetPendingAdjustments(householdID string, year, month int) ([]models.BudgetAdjustment, error) {
	if !models.ValidPeriod(year, month) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid year or month")
	}

	adjustments := []models.BudgetAdjustment{}
	if err := s.db.Where("household_id = ? AND effective_year = ? AND effective_month = ? AND applied = ?",
		householdID, year, month, false).
		Order("created_at ASC").
		Find(&adjustments).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return adjustments, nil
}

// GetAppliedAdjustments lists applied adjustments, most recent first.
func (s *adjustmentService) GetAppliedAdjustments(householdID string, page pagination.PageRequest) (*pagination.PageResponse[models.BudgetAdjustment], error) {
	page.Defaults()

	var totalItems int64
	base := s.db.Model(&models.BudgetAdjustment{}).Where("household_id = ? AND applied = ?", householdID, true)
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var adjustments []models.BudgetAdjustment
	if err := base.Order("applied_at DESC").Scopes(pagination.Paginate(page)).Find(&adjustments).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(adjustments, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// ApplyAdjustments applies every pending adjustment of one effective month
// as a single new template version, marks them applied, and drops that
// month's snapshot so it is rebuilt from the new template on next access.
// Running it again for the same month processes nothing.
func (s *adjustmentService) ApplyAdjustments(householdID string, year, month int) (*ApplyResult, error) {
	if !models.ValidPeriod(year, month) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid year or month")
	}

	var result *ApplyResult
	err := withVersionRetry(func() error {
		result = &ApplyResult{
			HouseholdID:       householdID,
			Year:              year,
			Month:             month,
			CreatedCategories: []string{},
			AdjustmentIDs:     []string{},
		}
		return s.db.Transaction(func(tx *gorm.DB) error {
			return s.applyInTx(tx, result)
		})
	})
	if err != nil {
		return nil, err
	}

	if result.Processed > 0 {
		logger.ForHousehold(householdID).Infow("budget adjustments applied",
			"year", year,
			"month", month,
			"processed", result.Processed,
			"template_version", *result.TemplateVersion,
			"snapshot_regenerated", result.SnapshotRegenerated,
			"snapshot_locked_skipped", result.SnapshotLockedSkipped,
		)
	}
	return result, nil
}

func (s *adjustmentService) applyInTx(tx *gorm.DB, result *ApplyResult) error {
	var pending []models.BudgetAdjustment
	if err := tx.Where("household_id = ? AND effective_year = ? AND effective_month = ? AND applied = ?",
		result.HouseholdID, result.Year, result.Month, false).
		Order("created_at ASC").
		Find(&pending).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if len(pending) == 0 {
		return nil
	}

	ids := make([]string, 0, len(pending))
	for _, adj := range pending {
		ids = append(ids, adj.CategoryID)
	}
	var categories []models.Category
	if err := tx.Unscoped().Where("household_id = ? AND id IN ?", result.HouseholdID, ids).Find(&categories).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	byID := make(map[string]models.Category, len(categories))
	for _, c := range categories {
		byID[c.ID] = c
	}

	tmpl, err := s.templates.CreateVersion(tx, result.HouseholdID, func(d *TemplateDraft) error {
		for _, adj := range pending {
			cfg, ok := d.Categories[adj.CategoryID]
			if !ok {
				if c, found := byID[adj.CategoryID]; found {
					cfg = c.DefaultConfig()
				} else {
					cfg = models.CategoryConfig{WarningThreshold: models.DefaultWarningThreshold, IsActive: true}
				}
				result.CreatedCategories = append(result.CreatedCategories, adj.CategoryID)
			}
			cfg.MonthlyLimit = adj.NewLimit
			d.Categories[adj.CategoryID] = cfg
		}
		return nil
	})
	if err != nil {
		return err
	}
	result.TemplateVersion = &tmpl.Version

	appliedAt := s.now()
	for _, adj := range pending {
		if err := recordAdjustmentHistory(tx, &adj, appliedAt); err != nil {
			return err
		}

		res := tx.Model(&models.BudgetAdjustment{}).
			Where("id = ? AND applied = ?", adj.ID, false).
			Updates(map[string]interface{}{
				"applied":                  true,
				"applied_at":               appliedAt,
				"applied_template_version": tmpl.Version,
			})
		if res.Error != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
		}
		if res.RowsAffected != 1 {
			return apperrors.ErrConcurrentVersionConflict
		}
		result.AdjustmentIDs = append(result.AdjustmentIDs, adj.ID)
	}
	result.Processed = len(pending)

	var snapshot models.MonthlyBudget
	err = tx.Where("household_id = ? AND year = ? AND month = ?", result.HouseholdID, result.Year, result.Month).
		First(&snapshot).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil
	case err != nil:
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if snapshot.IsLocked && !s.opts.RegenerateLockedSnapshots {
		result.SnapshotLockedSkipped = true
		logger.ForHousehold(result.HouseholdID).Warnw("locked monthly budget kept after adjustments",
			"year", result.Year,
			"month", result.Month,
			"snapshot_id", snapshot.ID,
		)
		return nil
	}
	if err := tx.Delete(&snapshot).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	result.SnapshotRegenerated = true
	return nil
}

// ApplyDueForHousehold applies every pending effective month up to and
// including now's month, oldest first.
func (s *adjustmentService) ApplyDueForHousehold(householdID string, now time.Time) ([]ApplyResult, error) {
	year, month := now.Year(), int(now.Month())

	var periods []struct {
		EffectiveYear  int
		EffectiveMonth int
	}
	if err := s.db.Model(&models.BudgetAdjustment{}).
		Select("DISTINCT effective_year, effective_month").
		Where("household_id = ? AND applied = ? AND (effective_year < ? OR (effective_year = ? AND effective_month <= ?))",
			householdID, false, year, year, month).
		Order("effective_year ASC, effective_month ASC").
		Scan(&periods).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	results := []ApplyResult{}
	for _, p := range periods {
		res, err := s.ApplyAdjustments(householdID, p.EffectiveYear, p.EffectiveMonth)
		if err != nil {
			return results, err
		}
		if res.Processed > 0 {
			results = append(results, *res)
		}
	}
	return results, nil
}

// ApplyDueAdjustments runs ApplyDueForHousehold for every household with
// due adjustments. A failing household is recorded and does not stop others.
func (s *adjustmentService) ApplyDueAdjustments(now time.Time) (*RolloverResult, error) {
	year, month := now.Year(), int(now.Month())

	var households []string
	if err := s.db.Model(&models.BudgetAdjustment{}).
		Where("applied = ? AND (effective_year < ? OR (effective_year = ? AND effective_month <= ?))", false, year, year, month).
		Distinct().
		Pluck("household_id", &households).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := &RolloverResult{
		Households: len(households),
		Applied:    []ApplyResult{},
		Failures:   map[string]string{},
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(s.opts.Concurrency)
	for _, householdID := range households {
		g.Go(func() error {
			applied, err := s.ApplyDueForHousehold(householdID, now)

			mu.Lock()
			defer mu.Unlock()
			result.Applied = append(result.Applied, applied...)
			for _, a := range applied {
				result.Processed += a.Processed
			}
			if err != nil {
				result.Failures[householdID] = err.Error()
				logger.ForHousehold(householdID).Errorw("applying due adjustments failed", "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(result.Applied, func(i, j int) bool {
		a, b := result.Applied[i], result.Applied[j]
		if a.HouseholdID != b.HouseholdID {
			return a.HouseholdID < b.HouseholdID
		}
		return models.ComparePeriods(a.Year, a.Month, b.Year, b.Month) < 0
	})

	logger.Get().Infow("rollover pass finished",
		"households", result.Households,
		"processed", result.Processed,
		"failures", len(result.Failures),
	)
	return result, nil
}

// GetCategoryAdjustmentHistory returns per-category adjustment aggregates.
func (s *adjustmentService) GetCategoryAdjustmentHistory(householdID string) ([]models.CategoryAdjustmentHistory, error) {
	history := []models.CategoryAdjustmentHistory{}
	if err := s.db.Where("household_id = ?", householdID).
		Order("adjustment_count DESC").
		Find(&history).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return history, nil
}

func recordAdjustmentHistory(tx *gorm.DB, adj *models.BudgetAdjustment, at time.Time) error {
	var history models.CategoryAdjustmentHistory
	err := tx.Where("household_id = ? AND category_id = ?", adj.HouseholdID, adj.CategoryID).First(&history).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		history = models.CategoryAdjustmentHistory{
			HouseholdID:    adj.HouseholdID,
			CategoryID:     adj.CategoryID,
			TotalIncreased: decimal.Zero,
			TotalDecreased: decimal.Zero,
		}
	}

	history.AdjustmentCount++
	history.LastAdjustedAt = &at
	switch adj.Type {
	case models.AdjustmentTypeIncrease:
		history.TotalIncreased = history.TotalIncreased.Add(adj.Amount)
	case models.AdjustmentTypeDecrease:
		history.TotalDecreased = history.TotalDecreased.Add(adj.Amount)
	}

	if err := tx.Save(&history).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return nil
}
