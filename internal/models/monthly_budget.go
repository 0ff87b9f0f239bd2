package models

import (
	"time"

	"gorm.io/datatypes"
)

// MonthlyBudget is the per-month snapshot of a household's budget.
// OriginalCategories is written when the row is created and never edited;
// Categories carries the in-month edits counted by AdjustmentCount.
type MonthlyBudget struct {
	Record
	HouseholdID        string                          `gorm:"type:uuid;not null;index:uq_monthly_budgets_period,unique,priority:1" json:"household_id"`
	Year               int                             `gorm:"not null;index:uq_monthly_budgets_period,unique,priority:2" json:"year"`
	Month              int                             `gorm:"not null;index:uq_monthly_budgets_period,unique,priority:3" json:"month"`
	TemplateID         string                          `gorm:"type:uuid;not null" json:"template_id"`
	TemplateVersion    int                             `gorm:"not null" json:"template_version"`
	Categories         datatypes.JSONType[CategoryMap] `gorm:"not null" json:"categories"`
	OriginalCategories datatypes.JSONType[CategoryMap] `gorm:"not null" json:"original_categories"`
	AdjustmentCount    int                             `gorm:"not null;default:0" json:"adjustment_count"`
	IsLocked           bool                            `gorm:"not null;default:false" json:"is_locked"`
	LockedAt           *time.Time                      `json:"locked_at,omitempty"`
}

// CategoryMap returns a copy of the current (editable) category configuration.
func (m *MonthlyBudget) CategoryMap() CategoryMap {
	c := m.Categories.Data()
	if c == nil {
		return CategoryMap{}
	}
	return c.Clone()
}

// OriginalCategoryMap returns a copy of the month-start category configuration.
func (m *MonthlyBudget) OriginalCategoryMap() CategoryMap {
	c := m.OriginalCategories.Data()
	if c == nil {
		return CategoryMap{}
	}
	return c.Clone()
}
