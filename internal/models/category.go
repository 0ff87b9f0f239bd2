package models

import "github.com/shopspring/decimal"

// CategoryType represents the type of category
type CategoryType string

const (
	CategoryTypeIncome  CategoryType = "income"
	CategoryTypeExpense CategoryType = "expense"
)

// CategoryDeletionReason records why a category was soft-deleted.
type CategoryDeletionReason string

const (
	CategoryDeletedMerged      CategoryDeletionReason = "merged"
	CategoryDeletedUserDeleted CategoryDeletionReason = "user_deleted"
)

// Category is the stable identity of a spending or income bucket. Name and
// color are display attributes; the ID never changes. Categories are only
// ever soft-deleted so historical transactions and budgets keep resolving.
type Category struct {
	Base
	HouseholdID             string                  `gorm:"type:uuid;not null;index" json:"household_id"`
	Name                    string                  `gorm:"not null" json:"name"`
	Type                    CategoryType            `gorm:"not null" json:"type"`
	Description             string                  `json:"description"`
	Icon                    string                  `json:"icon"`
	Color                   string                  `json:"color"`
	DefaultMonthlyLimit     decimal.Decimal         `gorm:"type:decimal(12,2);not null" json:"default_monthly_limit"`
	DefaultWarningThreshold int                     `gorm:"not null" json:"default_warning_threshold"`
	IsActive                bool                    `gorm:"not null" json:"is_active"`
	DeletedReason           *CategoryDeletionReason `json:"deleted_reason,omitempty"`
	MergedIntoID            *string                 `gorm:"type:uuid" json:"merged_into_id,omitempty"`
}

// IsDeleted reports whether the category has been soft-deleted or merged away.
func (c *Category) IsDeleted() bool {
	return c.DeletedAt.Valid
}

// DefaultConfig returns the configuration a category gets when it is added
// to a budget without explicit settings.
func (c *Category) DefaultConfig() CategoryConfig {
	threshold := c.DefaultWarningThreshold
	if threshold <= 0 || threshold > 100 {
		threshold = DefaultWarningThreshold
	}
	return CategoryConfig{
		MonthlyLimit:     c.DefaultMonthlyLimit,
		WarningThreshold: threshold,
		IsActive:         true,
	}
}
