package services

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"homebudget/internal/comparison"
	apperrors "homebudget/internal/errors"
	"homebudget/internal/logger"
	"homebudget/internal/models"
	"homebudget/internal/pagination"
)

// dueApplier applies adjustments whose effective month has started.
type dueApplier interface {
	ApplyDueForHousehold(householdID string, now time.Time) ([]ApplyResult, error)
}

// monthlyBudgetService handles per-month budget snapshots.
type monthlyBudgetService struct {
	db        *gorm.DB
	templates BudgetTemplateServicer
	applier   dueApplier
	lazyApply bool
	now       func() time.Time
}

// NewMonthlyBudgetService creates a new MonthlyBudgetServicer. With
// lazyApply, reading a month that has started first applies any due
// adjustments, so a missed rollover never serves a stale snapshot.
func NewMonthlyBudgetService(db *gorm.DB, templates BudgetTemplateServicer, adjustments AdjustmentServicer, lazyApply bool) MonthlyBudgetServicer {
	svc := &monthlyBudgetService{
		db:        db,
		templates: templates,
		lazyApply: lazyApply,
		now:       time.Now,
	}
	if adjustments != nil {
		svc.applier = adjustments
	}
	return svc
}

// GetOrCreate returns the month's snapshot, creating it from the active
// template when it does not exist yet.
func (s *monthlyBudgetService) GetOrCreate(householdID string, year, month int) (*models.MonthlyBudget, error) {
	if !models.ValidPeriod(year, month) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid year or month")
	}
	s.applyDue(householdID, year, month)

	snapshot, err := findSnapshot(s.db, householdID, year, month)
	if err == nil {
		return snapshot, nil
	}
	if !errors.Is(err, apperrors.ErrMonthlyBudgetNotFound) {
		return nil, err
	}

	var created *models.MonthlyBudget
	err = withVersionRetry(func() error {
		var err error
		created, err = s.createSnapshot(householdID, year, month)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// createSnapshot inserts the month from the active template. The insert
// commits only if that template is still active afterwards; otherwise an
// apply landed in between and the caller retries against the new version.
func (s *monthlyBudgetService) createSnapshot(householdID string, year, month int) (*models.MonthlyBudget, error) {
	tmpl, err := s.templates.GetActiveTemplate(householdID)
	if err != nil {
		return nil, err
	}

	categories := tmpl.CategoryMap()
	snapshot := &models.MonthlyBudget{
		HouseholdID:        householdID,
		Year:               year,
		Month:              month,
		TemplateID:         tmpl.ID,
		TemplateVersion:    tmpl.Version,
		Categories:         datatypes.NewJSONType(categories),
		OriginalCategories: datatypes.NewJSONType(categories.Clone()),
		AdjustmentCount:    0,
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(snapshot).Error; err != nil {
			return err
		}
		var active models.BudgetTemplate
		err := tx.Clauses(clause.Locking{Strength: "SHARE"}).
			Select("id").
			Where("household_id = ? AND is_active = ?", householdID, true).
			First(&active).Error
		if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && active.ID != tmpl.ID) {
			return apperrors.ErrConcurrentVersionConflict
		}
		return err
	})
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrConcurrentVersionConflict):
		logger.ForHousehold(householdID).Debugw("template changed while creating monthly budget",
			"year", year,
			"month", month,
			"template_version", tmpl.Version,
		)
		return nil, err
	case errors.Is(err, gorm.ErrDuplicatedKey):
		// Created concurrently; the stored row wins.
		return findSnapshot(s.db, householdID, year, month)
	default:
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	logger.ForHousehold(householdID).Infow("monthly budget created",
		"year", year,
		"month", month,
		"template_version", tmpl.Version,
	)
	return snapshot, nil
}

// GetByID returns a snapshot by ID.
func (s *monthlyBudgetService) GetByID(householdID, snapshotID string) (*models.MonthlyBudget, error) {
	var snapshot models.MonthlyBudget
	if err := s.db.Where("id = ? AND household_id = ?", snapshotID, householdID).First(&snapshot).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrMonthlyBudgetNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &snapshot, nil
}

// ListMonths lists existing snapshots, newest month first.
func (s *monthlyBudgetService) ListMonths(householdID string, year *int, page pagination.PageRequest) (*pagination.PageResponse[models.MonthlyBudget], error) {
	page.Defaults()

	base := s.db.Model(&models.MonthlyBudget{}).Where("household_id = ?", householdID)
	if year != nil {
		base = base.Where("year = ?", *year)
	}

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var snapshots []models.MonthlyBudget
	if err := base.Order("year DESC, month DESC").Scopes(pagination.Paginate(page)).Find(&snapshots).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(snapshots, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// UpdateCategoryLimit edits one category's limit for this month only.
// original_categories is never written.
func (s *monthlyBudgetService) UpdateCategoryLimit(householdID, snapshotID, categoryID string, limit decimal.Decimal) (*models.MonthlyBudget, error) {
	if limit.IsNegative() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "monthly limit must not be negative")
	}

	snapshot, err := s.GetByID(householdID, snapshotID)
	if err != nil {
		return nil, err
	}
	if snapshot.IsLocked {
		return nil, apperrors.ErrLockedMonthMutation
	}

	categories := snapshot.CategoryMap()
	cfg, ok := categories[categoryID]
	if !ok {
		return nil, apperrors.WithMessage(apperrors.ErrCategoryNotFound, "category is not part of this month's budget")
	}
	if cfg.MonthlyLimit.Equal(limit) {
		return snapshot, nil
	}
	cfg.MonthlyLimit = limit
	categories[categoryID] = cfg

	if err := s.writeCategories(snapshot, categories); err != nil {
		return nil, err
	}

	logger.ForHousehold(householdID).Infow("monthly budget limit updated",
		"year", snapshot.Year,
		"month", snapshot.Month,
		"category_id", categoryID,
		"limit", limit.String(),
	)
	return s.GetByID(householdID, snapshotID)
}

// Lock freezes a month against edits.
func (s *monthlyBudgetService) Lock(householdID, snapshotID string) (*models.MonthlyBudget, error) {
	snapshot, err := s.GetByID(householdID, snapshotID)
	if err != nil {
		return nil, err
	}
	if snapshot.IsLocked {
		return snapshot, nil
	}

	now := s.now()
	if err := s.db.Model(&models.MonthlyBudget{}).
		Where("id = ? AND is_locked = ?", snapshotID, false).
		Updates(map[string]interface{}{"is_locked": true, "locked_at": now}).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	logger.ForHousehold(householdID).Infow("monthly budget locked", "year", snapshot.Year, "month", snapshot.Month)
	return s.GetByID(householdID, snapshotID)
}

// Unlock reopens a month for edits.
func (s *monthlyBudgetService) Unlock(householdID, snapshotID string) (*models.MonthlyBudget, error) {
	snapshot, err := s.GetByID(householdID, snapshotID)
	if err != nil {
		return nil, err
	}
	if !snapshot.IsLocked {
		return snapshot, nil
	}

	if err := s.db.Model(&models.MonthlyBudget{}).
		Where("id = ? AND is_locked = ?", snapshotID, true).
		Updates(map[string]interface{}{"is_locked": false, "locked_at": nil}).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	logger.ForHousehold(householdID).Infow("monthly budget unlocked", "year", snapshot.Year, "month", snapshot.Month)
	return s.GetByID(householdID, snapshotID)
}

// CompareToOriginal diffs the month-start limits against the current ones.
// A month without in-month edits returns an empty result. Comparisons only
// read existing months and never create one.
func (s *monthlyBudgetService) CompareToOriginal(householdID string, year, month int) (*comparison.Result, error) {
	if !models.ValidPeriod(year, month) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid year or month")
	}
	snapshot, err := findSnapshot(s.db, householdID, year, month)
	if err != nil {
		return nil, err
	}
	if snapshot.AdjustmentCount == 0 {
		res := comparison.Empty()
		return &res, nil
	}

	names, err := categoryNames(s.db, householdID)
	if err != nil {
		return nil, err
	}
	res := comparison.Compare(snapshot.OriginalCategoryMap(), snapshot.CategoryMap(), names)
	return &res, nil
}

// CompareToTemplate diffs the live template (before) against the month's
// current limits (after).
func (s *monthlyBudgetService) CompareToTemplate(householdID string, year, month int) (*comparison.Result, error) {
	if !models.ValidPeriod(year, month) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid year or month")
	}
	snapshot, err := findSnapshot(s.db, householdID, year, month)
	if err != nil {
		return nil, err
	}
	tmpl, err := s.templates.GetActiveTemplate(householdID)
	if err != nil {
		return nil, err
	}

	names, err := categoryNames(s.db, householdID)
	if err != nil {
		return nil, err
	}
	res := comparison.Compare(tmpl.CategoryMap(), snapshot.CategoryMap(), names)
	return &res, nil
}

// SyncNewCategoriesFromTemplate copies template categories missing from the
// month into its current limits. Existing entries are never changed.
func (s *monthlyBudgetService) SyncNewCategoriesFromTemplate(householdID, snapshotID string, explicitOptIn bool) (*SyncResult, error) {
	if !explicitOptIn {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "syncing template categories requires explicit opt-in")
	}

	snapshot, err := s.GetByID(householdID, snapshotID)
	if err != nil {
		return nil, err
	}
	if snapshot.IsLocked {
		return nil, apperrors.ErrLockedMonthMutation
	}
	tmpl, err := s.templates.GetActiveTemplate(householdID)
	if err != nil {
		return nil, err
	}

	categories := snapshot.CategoryMap()
	templateCategories := tmpl.CategoryMap()
	added := []string{}
	for _, id := range templateCategories.IDs() {
		if _, ok := categories[id]; ok {
			continue
		}
		categories[id] = templateCategories[id]
		added = append(added, id)
	}
	if len(added) == 0 {
		return &SyncResult{MonthlyBudget: snapshot, AddedIDs: added}, nil
	}

	if err := s.writeCategories(snapshot, categories); err != nil {
		return nil, err
	}

	logger.ForHousehold(householdID).Infow("template categories synced into monthly budget",
		"year", snapshot.Year,
		"month", snapshot.Month,
		"added", len(added),
	)
	updated, err := s.GetByID(householdID, snapshotID)
	if err != nil {
		return nil, err
	}
	return &SyncResult{MonthlyBudget: updated, AddedIDs: added}, nil
}

// writeCategories stores a new current map and counts the edit. The write is
// guarded on the adjustment count read with the snapshot and on the lock.
func (s *monthlyBudgetService) writeCategories(snapshot *models.MonthlyBudget, categories models.CategoryMap) error {
	res := s.db.Model(&models.MonthlyBudget{}).
		Where("id = ? AND adjustment_count = ? AND is_locked = ?", snapshot.ID, snapshot.AdjustmentCount, false).
		Updates(map[string]interface{}{
			"categories":       datatypes.NewJSONType(categories),
			"adjustment_count": snapshot.AdjustmentCount + 1,
		})
	if res.Error != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	current, err := s.GetByID(snapshot.HouseholdID, snapshot.ID)
	if err != nil {
		return err
	}
	if current.IsLocked {
		return apperrors.ErrLockedMonthMutation
	}
	return apperrors.ErrConcurrentVersionConflict
}

// applyDue runs the lazy rollover for months that have started. Failures are
// logged; the read continues with whatever state is stored.
func (s *monthlyBudgetService) applyDue(householdID string, year, month int) {
	if !s.lazyApply || s.applier == nil {
		return
	}
	now := s.now()
	if models.ComparePeriods(year, month, now.Year(), int(now.Month())) > 0 {
		return
	}
	if _, err := s.applier.ApplyDueForHousehold(householdID, now); err != nil {
		logger.ForHousehold(householdID).Warnw("lazy adjustment apply failed", "error", err, "year", year, "month", month)
	}
}

func findSnapshot(db *gorm.DB, householdID string, year, month int) (*models.MonthlyBudget, error) {
	var snapshot models.MonthlyBudget
	if err := db.Where("household_id = ? AND year = ? AND month = ?", householdID, year, month).First(&snapshot).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrMonthlyBudgetNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &snapshot, nil
}
