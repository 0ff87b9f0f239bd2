package models

import "time"

// Household is the tenant boundary: it owns categories, budget templates,
// monthly budgets and adjustments.
type Household struct {
	Base
	Name     string `gorm:"not null" json:"name"`
	Currency string `gorm:"size:3;not null;default:'USD'" json:"currency"`
	Members  []User `gorm:"foreignKey:HouseholdID" json:"members,omitempty"`
}

// User represents a household member
type User struct {
	Base
	HouseholdID string     `gorm:"type:uuid;not null;index" json:"household_id"`
	Email       string     `gorm:"uniqueIndex;not null" json:"email"`
	Password    string     `gorm:"not null" json:"-"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	IsActive    bool       `gorm:"default:true" json:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}
