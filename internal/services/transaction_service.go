package services

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "homebudget/internal/errors"
	"homebudget/internal/models"
	"homebudget/internal/pagination"
)

// transactionService handles the household transaction store. The budget
// engine only needs transactions for category counts and reassignment.
type transactionService struct {
	db *gorm.DB
}

// NewTransactionService creates a new TransactionServicer.
func NewTransactionService(db *gorm.DB) TransactionServicer {
	return &transactionService{db: db}
}

// CreateTransaction records a transaction against an active category.
func (s *transactionService) CreateTransaction(
	householdID string,
	userID string,
	categoryID string,
	amount decimal.Decimal,
	description string,
	date time.Time,
) (*models.Transaction, error) {
	if !amount.IsPositive() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "amount must be greater than zero")
	}
	if categoryID == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "category ID is required")
	}

	// Default date to now if not provided
	if date.IsZero() {
		date = time.Now()
	}

	category, err := findCategory(s.db, householdID, categoryID)
	if err != nil {
		return nil, err
	}
	if !category.IsActive {
		return nil, apperrors.ErrCategoryInactive
	}

	tx := &models.Transaction{
		HouseholdID: householdID,
		UserID:      userID,
		CategoryID:  categoryID,
		Amount:      amount,
		Description: description,
		Date:        date,
	}
	if err := s.db.Create(tx).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return tx, nil
}

// GetTransactionByID returns a transaction if it belongs to the household.
func (s *transactionService) GetTransactionByID(householdID, transactionID string) (*models.Transaction, error) {
	var tx models.Transaction
	if err := s.db.Where("id = ? AND household_id = ?", transactionID, householdID).First(&tx).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrTransactionNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &tx, nil
}

// GetTransactionsByCategory lists a category's transactions, newest first.
func (s *transactionService) GetTransactionsByCategory(householdID, categoryID string, page pagination.PageRequest) (*pagination.PageResponse[models.Transaction], error) {
	page.Defaults()

	var totalItems int64
	base := s.db.Model(&models.Transaction{}).Where("household_id = ? AND category_id = ?", householdID, categoryID)
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var txs []models.Transaction
	if err := base.Order("date DESC").Scopes(pagination.Paginate(page)).Find(&txs).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(txs, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// CountByCategory counts transactions tagged with a category. db may be a
// transaction handle.
func (s *transactionService) CountByCategory(db *gorm.DB, householdID, categoryID string) (int64, error) {
	if db == nil {
		db = s.db
	}
	var count int64
	if err := db.Model(&models.Transaction{}).
		Where("household_id = ? AND category_id = ?", householdID, categoryID).
		Count(&count).Error; err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return count, nil
}

// ReassignCategory moves every transaction from one category to another.
// original_category_id is only set where it is still empty, so the first
// category a transaction ever belonged to survives chained merges.
func (s *transactionService) ReassignCategory(db *gorm.DB, householdID, fromID, toID, reason string) (int64, error) {
	if db == nil {
		db = s.db
	}
	res := db.Model(&models.Transaction{}).
		Where("household_id = ? AND category_id = ?", householdID, fromID).
		Updates(map[string]interface{}{
			"category_id":            toID,
			"original_category_id":   gorm.Expr("COALESCE(original_category_id, ?)", fromID),
			"category_changed_at":    time.Now(),
			"category_change_reason": reason,
		})
	if res.Error != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
	}
	return res.RowsAffected, nil
}
