package services

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"homebudget/internal/comparison"
	"homebudget/internal/models"
	"homebudget/internal/pagination"
)

// UserServicer defines the contract for user and household business logic.
type UserServicer interface {
	Register(input RegisterInput) (*models.User, error)
	GetUserByEmail(email string) (*models.User, error)
	GetUserByID(id string) (*models.User, error)
	VerifyPassword(user *models.User, password string) bool
	AttemptLogin(email, password string) (*models.User, error)
	GetHousehold(householdID string) (*models.Household, error)
}

// RegisterInput holds the fields needed to create a user and their household.
type RegisterInput struct {
	Email         string
	Password      string
	FirstName     string
	LastName      string
	HouseholdName string
	Currency      string
}

// CategoryInput holds the fields for a new category.
type CategoryInput struct {
	Name                    string
	Type                    models.CategoryType
	Description             string
	Icon                    string
	Color                   string
	DefaultMonthlyLimit     decimal.Decimal
	DefaultWarningThreshold int
}

// CategoryUpdate holds optional category changes. Nil fields are left alone.
type CategoryUpdate struct {
	Name                    *string
	Description             *string
	Icon                    *string
	Color                   *string
	DefaultMonthlyLimit     *decimal.Decimal
	DefaultWarningThreshold *int
}

// CategoryFilter narrows category listings.
type CategoryFilter struct {
	Type            *models.CategoryType
	IncludeInactive bool
	IncludeDeleted  bool
}

// MergeResult summarizes a completed category merge.
type MergeResult struct {
	Source               *models.Category             `json:"source"`
	Target               *models.Category             `json:"target"`
	TransactionsMoved    int64                        `json:"transactions_moved"`
	TemplateVersion      *int                         `json:"template_version,omitempty"`
	SnapshotsUpdated     int                          `json:"snapshots_updated"`
	AdjustmentsCancelled int64                        `json:"adjustments_cancelled"`
	History              *models.CategoryMergeHistory `json:"history"`
}

// CategoryLineage lists every category merged into a category, transitively.
type CategoryLineage struct {
	CategoryID        string                        `json:"category_id"`
	MergedCategoryIDs []string                      `json:"merged_category_ids"`
	Merges            []models.CategoryMergeHistory `json:"merges"`
}

// CategoryServicer defines the contract for the category registry.
type CategoryServicer interface {
	CreateCategory(householdID string, input CategoryInput, includeInTemplate bool) (*models.Category, error)
	GetCategories(householdID string, filter CategoryFilter, page pagination.PageRequest) (*pagination.PageResponse[models.Category], error)
	GetCategoryByID(householdID, categoryID string) (*models.Category, error)
	UpdateCategory(householdID, categoryID string, update CategoryUpdate) (*models.Category, error)
	DeactivateCategory(householdID, categoryID string, reassignTo *string) (*models.Category, error)
	ReactivateCategory(householdID, categoryID string) (*models.Category, error)
	DeleteCategory(householdID, categoryID string, reassignTo *string) error
	MergeCategories(householdID, sourceID, targetID string, actorID *string) (*MergeResult, error)
	GetMergeHistory(householdID string, page pagination.PageRequest) (*pagination.PageResponse[models.CategoryMergeHistory], error)
	GetCategoryLineage(householdID, categoryID string) (*CategoryLineage, error)
}

// TransactionServicer defines the contract for the transaction store.
type TransactionServicer interface {
	CreateTransaction(householdID, userID, categoryID string, amount decimal.Decimal, description string, date time.Time) (*models.Transaction, error)
	GetTransactionByID(householdID, transactionID string) (*models.Transaction, error)
	GetTransactionsByCategory(householdID, categoryID string, page pagination.PageRequest) (*pagination.PageResponse[models.Transaction], error)
	CountByCategory(db *gorm.DB, householdID, categoryID string) (int64, error)
	ReassignCategory(db *gorm.DB, householdID, fromID, toID, reason string) (int64, error)
}

// TemplateDraft is the mutable view of a template handed to mutators. It
// starts as a copy of the active version and becomes the next version.
type TemplateDraft struct {
	Name       string
	Categories models.CategoryMap
	Settings   models.BudgetSettings
	Notes      string
}

// TemplateMutator edits a draft in place. Returning an error aborts the new version.
type TemplateMutator func(draft *TemplateDraft) error

// BudgetTemplateServicer defines the contract for the versioned template store.
type BudgetTemplateServicer interface {
	CreateTemplate(householdID string, draft TemplateDraft) (*models.BudgetTemplate, error)
	UpdateTemplate(householdID string, mutate TemplateMutator) (*models.BudgetTemplate, error)
	CreateVersion(tx *gorm.DB, householdID string, mutate TemplateMutator) (*models.BudgetTemplate, error)
	SetActiveVersion(householdID, templateID string) (*models.BudgetTemplate, error)
	DeleteVersion(householdID, templateID string) error
	GetActiveTemplate(householdID string) (*models.BudgetTemplate, error)
	GetTemplateVersion(householdID, templateID string) (*models.BudgetTemplate, error)
	GetTemplateHistory(householdID string, page pagination.PageRequest) (*pagination.PageResponse[models.BudgetTemplate], error)
	CompareVersions(householdID, fromID, toID string) (*comparison.Result, error)
}

// SyncResult reports the categories copied from the template into a month.
type SyncResult struct {
	MonthlyBudget *models.MonthlyBudget `json:"monthly_budget"`
	AddedIDs      []string              `json:"added_category_ids"`
}

// MonthlyBudgetServicer defines the contract for per-month snapshots.
type MonthlyBudgetServicer interface {
	GetOrCreate(householdID string, year, month int) (*models.MonthlyBudget, error)
	GetByID(householdID, snapshotID string) (*models.MonthlyBudget, error)
	ListMonths(householdID string, year *int, page pagination.PageRequest) (*pagination.PageResponse[models.MonthlyBudget], error)
	UpdateCategoryLimit(householdID, snapshotID, categoryID string, limit decimal.Decimal) (*models.MonthlyBudget, error)
	Lock(householdID, snapshotID string) (*models.MonthlyBudget, error)
	Unlock(householdID, snapshotID string) (*models.MonthlyBudget, error)
	CompareToOriginal(householdID string, year, month int) (*comparison.Result, error)
	CompareToTemplate(householdID string, year, month int) (*comparison.Result, error)
	SyncNewCategoriesFromTemplate(householdID, snapshotID string, explicitOptIn bool) (*SyncResult, error)
}

// ScheduleAdjustmentInput identifies the category by ID or, for the
// new-category flow, by name.
type ScheduleAdjustmentInput struct {
	CategoryID   string
	CategoryName string
	CurrentLimit *decimal.Decimal
	NewLimit     decimal.Decimal
	Reason       string
}

// ApplyResult reports one apply pass for a household and month.
type ApplyResult struct {
	HouseholdID           string   `json:"household_id"`
	Year                  int      `json:"year"`
	Month                 int      `json:"month"`
	Processed             int      `json:"processed"`
	CreatedCategories     []string `json:"created_categories"`
	TemplateVersion       *int     `json:"template_version,omitempty"`
	SnapshotRegenerated   bool     `json:"snapshot_regenerated"`
	SnapshotLockedSkipped bool     `json:"snapshot_locked_skipped"`
	AdjustmentIDs         []string `json:"adjustment_ids"`
}

// RolloverResult reports a pass over every household with due adjustments.
type RolloverResult struct {
	Households int               `json:"households"`
	Processed  int               `json:"processed"`
	Applied    []ApplyResult     `json:"applied"`
	Failures   map[string]string `json:"failures,omitempty"`
}

// AdjustmentServicer defines the contract for the adjustment scheduler.
type AdjustmentServicer interface {
	ScheduleAdjustment(householdID string, userID *string, input ScheduleAdjustmentInput) (*models.BudgetAdjustment, error)
	CancelAdjustment(householdID, adjustmentID string) error
	GetAdjustment(householdID, adjustmentID string) (*models.BudgetAdjustment, error)
	GetPendingAdjustments(householdID string, year, month int) ([]models.BudgetAdjustment, error)
	GetAppliedAdjustments(householdID string, page pagination.PageRequest) (*pagination.PageResponse[models.BudgetAdjustment], error)
	ApplyAdjustments(householdID string, year, month int) (*ApplyResult, error)
	ApplyDueForHousehold(householdID string, now time.Time) ([]ApplyResult, error)
	ApplyDueAdjustments(now time.Time) (*RolloverResult, error)
	GetCategoryAdjustmentHistory(householdID string) ([]models.CategoryAdjustmentHistory, error)
}

// AuditServicer defines the contract for audit logging.
type AuditServicer interface {
	Log(householdID, userID, action, resourceType, resourceID, ipAddress string, changes map[string]interface{})
}
