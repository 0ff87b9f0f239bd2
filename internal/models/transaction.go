package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category change reasons recorded on reassigned transactions.
const (
	CategoryChangeMerged      = "category_merged"
	CategoryChangeDeleted     = "category_deleted"
	CategoryChangeDeactivated = "category_deactivated"
)

// Transaction represents a household transaction. Only the category
// reference and its audit trail matter to the budget engine.
type Transaction struct {
	Base
	HouseholdID          string          `gorm:"type:uuid;not null;index" json:"household_id"`
	UserID               string          `gorm:"type:uuid" json:"user_id"`
	CategoryID           string          `gorm:"type:uuid;not null;index" json:"category_id"`
	Amount               decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Description          string          `json:"description"`
	Date                 time.Time       `gorm:"not null" json:"date"`
	OriginalCategoryID   *string         `gorm:"type:uuid;index" json:"original_category_id,omitempty"`
	CategoryChangedAt    *time.Time      `json:"category_changed_at,omitempty"`
	CategoryChangeReason string          `json:"category_change_reason,omitempty"`
}
