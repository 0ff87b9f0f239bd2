package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"homebudget/internal/models"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// Money is shorthand for a whole-unit decimal amount.
func Money(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

// Limit builds an active category config with the default warning threshold.
func Limit(v int64) models.CategoryConfig {
	return models.CategoryConfig{
		MonthlyLimit:     Money(v),
		WarningThreshold: models.DefaultWarningThreshold,
		IsActive:         true,
	}
}

// CreateTestHousehold creates an empty household.
func CreateTestHousehold(t *testing.T, db *gorm.DB) *models.Household {
	t.Helper()

	household := &models.Household{
		Name:     fmt.Sprintf("Household %d", nextID()),
		Currency: "USD",
	}
	if err := db.Create(household).Error; err != nil {
		t.Fatalf("failed to create test household: %v", err)
	}
	return household
}

// CreateTestUser creates a household member with a hashed password and unique email.
func CreateTestUser(t *testing.T, db *gorm.DB, householdID string) *models.User {
	t.Helper()
	email := fmt.Sprintf("user%d@test.com", nextID())
	return CreateTestUserWithEmail(t, db, householdID, email)
}

// CreateTestUserWithEmail creates a household member with the given email.
func CreateTestUserWithEmail(t *testing.T, db *gorm.DB, householdID, email string) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user := &models.User{
		HouseholdID: householdID,
		Email:       email,
		Password:    string(hash),
		IsActive:    true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// CreateTestCategory creates an active expense category with the given name
// and default monthly limit.
func CreateTestCategory(t *testing.T, db *gorm.DB, householdID, name string, defaultLimit int64) *models.Category {
	t.Helper()

	if name == "" {
		name = fmt.Sprintf("Test Category %d", nextID())
	}
	category := &models.Category{
		HouseholdID:             householdID,
		Name:                    name,
		Type:                    models.CategoryTypeExpense,
		DefaultMonthlyLimit:     Money(defaultLimit),
		DefaultWarningThreshold: models.DefaultWarningThreshold,
		IsActive:                true,
	}
	if err := db.Create(category).Error; err != nil {
		t.Fatalf("failed to create test category: %v", err)
	}
	return category
}

// CreateTestTemplate writes an active template version directly, bypassing
// the service. Any previously active version is deactivated first.
func CreateTestTemplate(t *testing.T, db *gorm.DB, householdID string, version int, categories models.CategoryMap) *models.BudgetTemplate {
	t.Helper()

	if err := db.Model(&models.BudgetTemplate{}).
		Where("household_id = ? AND is_active = ?", householdID, true).
		Update("is_active", false).Error; err != nil {
		t.Fatalf("failed to deactivate templates: %v", err)
	}

	tmpl := &models.BudgetTemplate{
		HouseholdID: householdID,
		Version:     version,
		Name:        "Test Budget",
		Categories:  datatypes.NewJSONType(categories),
		Settings: datatypes.NewJSONType(models.BudgetSettings{
			Currency:          "USD",
			ActiveCategoryIDs: categories.ActiveIDs(),
		}),
		IsActive: true,
	}
	if err := db.Create(tmpl).Error; err != nil {
		t.Fatalf("failed to create test template: %v", err)
	}
	return tmpl
}

// CreateTestTransaction creates a transaction in the given category.
func CreateTestTransaction(t *testing.T, db *gorm.DB, householdID, categoryID string, amount int64) *models.Transaction {
	t.Helper()

	tx := &models.Transaction{
		HouseholdID: householdID,
		CategoryID:  categoryID,
		Amount:      Money(amount),
		Description: fmt.Sprintf("Test Transaction %d", nextID()),
		Date:        time.Now(),
	}
	if err := db.Create(tx).Error; err != nil {
		t.Fatalf("failed to create test transaction: %v", err)
	}
	return tx
}

// CreateTestMonthlyBudget writes a snapshot row directly.
func CreateTestMonthlyBudget(t *testing.T, db *gorm.DB, tmpl *models.BudgetTemplate, year, month int, locked bool) *models.MonthlyBudget {
	t.Helper()

	mb := &models.MonthlyBudget{
		HouseholdID:        tmpl.HouseholdID,
		Year:               year,
		Month:              month,
		TemplateID:         tmpl.ID,
		TemplateVersion:    tmpl.Version,
		Categories:         datatypes.NewJSONType(tmpl.CategoryMap()),
		OriginalCategories: datatypes.NewJSONType(tmpl.CategoryMap()),
		IsLocked:           locked,
	}
	if err := db.Create(mb).Error; err != nil {
		t.Fatalf("failed to create test monthly budget: %v", err)
	}
	return mb
}
