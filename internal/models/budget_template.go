package models

import "gorm.io/datatypes"

// BudgetTemplate is one immutable version of a household's baseline budget.
// Every change produces a new row with the next version number; exactly one
// row per household is active at a time.
type BudgetTemplate struct {
	Base
	HouseholdID string                             `gorm:"type:uuid;not null;index:uq_budget_templates_version,unique,priority:1;index:uq_budget_templates_active,unique,where:is_active = true" json:"household_id"`
	Version     int                                `gorm:"not null;index:uq_budget_templates_version,unique,priority:2" json:"version"`
	Name        string                             `gorm:"not null" json:"name"`
	Categories  datatypes.JSONType[CategoryMap]    `gorm:"not null" json:"categories"`
	Settings    datatypes.JSONType[BudgetSettings] `gorm:"not null" json:"settings"`
	IsActive    bool                               `gorm:"not null;default:false;index" json:"is_active"`
	Notes       string                             `json:"notes,omitempty"`
}

// CategoryMap returns a copy of the template's category configuration.
func (t *BudgetTemplate) CategoryMap() CategoryMap {
	m := t.Categories.Data()
	if m == nil {
		return CategoryMap{}
	}
	return m.Clone()
}
