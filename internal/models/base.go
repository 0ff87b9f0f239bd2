package models

import (
	"time"

	"homebudget/internal/uuid"

	"gorm.io/gorm"
)

// Base contains common columns for soft-deletable tables
type Base struct {
	ID        string         `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

// BeforeCreate hook generates a UUIDv7 for new records
func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.New()
	}
	return nil
}

// Record contains common columns for tables whose rows are either immutable
// or hard-deleted. No soft deletes: a deleted row must free its unique keys.
type Record struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate hook generates a UUIDv7 for new records
func (r *Record) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New()
	}
	return nil
}

// All returns every persisted model, in dependency order, for auto-migration.
func All() []interface{} {
	return []interface{}{
		&Household{},
		&User{},
		&Category{},
		&Transaction{},
		&BudgetTemplate{},
		&MonthlyBudget{},
		&BudgetAdjustment{},
		&CategoryAdjustmentHistory{},
		&CategoryMergeHistory{},
		&AuditLog{},
	}
}
