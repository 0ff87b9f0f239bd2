package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AdjustmentType is derived from the sign of a scheduled change.
type AdjustmentType string

const (
	AdjustmentTypeIncrease AdjustmentType = "increase"
	AdjustmentTypeDecrease AdjustmentType = "decrease"
)

// BudgetAdjustment is a deferred change to a category's template limit that
// takes effect when its effective month begins. It moves once from
// unapplied to applied; only unapplied rows may be cancelled (deleted).
type BudgetAdjustment struct {
	Record
	HouseholdID            string          `gorm:"type:uuid;not null;index;index:uq_budget_adjustments_pending,unique,priority:1,where:applied = false" json:"household_id"`
	CategoryID             string          `gorm:"type:uuid;not null;index:uq_budget_adjustments_pending,unique,priority:2" json:"category_id"`
	CategoryName           string          `gorm:"not null" json:"category_name"`
	CurrentLimit           decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"current_limit"`
	Type                   AdjustmentType  `gorm:"not null" json:"type"`
	Amount                 decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	NewLimit               decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"new_limit"`
	EffectiveYear          int             `gorm:"not null;index:uq_budget_adjustments_pending,unique,priority:3" json:"effective_year"`
	EffectiveMonth         int             `gorm:"not null;index:uq_budget_adjustments_pending,unique,priority:4" json:"effective_month"`
	Reason                 string          `json:"reason,omitempty"`
	Applied                bool            `gorm:"not null;default:false;index" json:"applied"`
	AppliedAt              *time.Time      `json:"applied_at,omitempty"`
	AppliedTemplateVersion *int            `json:"applied_template_version,omitempty"`
	ScheduledByUserID      *string         `gorm:"type:uuid" json:"scheduled_by_user_id,omitempty"`
}

// CategoryAdjustmentHistory aggregates applied adjustments per category.
// It feeds insight queries only.
type CategoryAdjustmentHistory struct {
	Record
	HouseholdID     string          `gorm:"type:uuid;not null;index:uq_category_adjustment_history,unique,priority:1" json:"household_id"`
	CategoryID      string          `gorm:"type:uuid;not null;index:uq_category_adjustment_history,unique,priority:2" json:"category_id"`
	AdjustmentCount int             `gorm:"not null;default:0" json:"adjustment_count"`
	LastAdjustedAt  *time.Time      `json:"last_adjusted_at,omitempty"`
	TotalIncreased  decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total_increased"`
	TotalDecreased  decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total_decreased"`
}

// CategoryMergeHistory is an append-only audit row written for every merge.
type CategoryMergeHistory struct {
	Record
	HouseholdID        string    `gorm:"type:uuid;not null;index" json:"household_id"`
	SourceCategoryID   string    `gorm:"type:uuid;not null;index" json:"source_category_id"`
	SourceCategoryName string    `gorm:"not null" json:"source_category_name"`
	TargetCategoryID   string    `gorm:"type:uuid;not null;index" json:"target_category_id"`
	TargetCategoryName string    `gorm:"not null" json:"target_category_name"`
	TransactionsMoved  int64     `gorm:"not null" json:"transactions_moved"`
	MergedByUserID     *string   `gorm:"type:uuid" json:"merged_by_user_id,omitempty"`
	MergedAt           time.Time `gorm:"not null" json:"merged_at"`
}
