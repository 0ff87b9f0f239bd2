package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "homebudget/internal/errors"
	"homebudget/internal/models"
	"homebudget/internal/pagination"
	"homebudget/internal/services"
)

const transactionID = "0190f1c2-0000-7000-8000-000000000101"

// --- mock transaction service ---

type mockTransactionService struct {
	createTransactionFn  func(householdID, userID, categoryID string, amount decimal.Decimal, description string, date time.Time) (*models.Transaction, error)
	getTransactionByIDFn func(householdID, transactionID string) (*models.Transaction, error)
	getByCategoryFn      func(householdID, categoryID string, page pagination.PageRequest) (*pagination.PageResponse[models.Transaction], error)
}

var _ services.TransactionServicer = (*mockTransactionService)(nil)

func (m *mockTransactionService) CreateTransaction(householdID, userID, categoryID string, amount decimal.Decimal, description string, date time.Time) (*models.Transaction, error) {
	if m.createTransactionFn != nil {
		return m.createTransactionFn(householdID, userID, categoryID, amount, description, date)
	}
	return &models.Transaction{}, nil
}

func (m *mockTransactionService) GetTransactionByID(householdID, transactionID string) (*models.Transaction, error) {
	if m.getTransactionByIDFn != nil {
		return m.getTransactionByIDFn(householdID, transactionID)
	}
	return &models.Transaction{}, nil
}

func (m *mockTransactionService) GetTransactionsByCategory(householdID, categoryID string, page pagination.PageRequest) (*pagination.PageResponse[models.Transaction], error) {
	if m.getByCategoryFn != nil {
		return m.getByCategoryFn(householdID, categoryID, page)
	}
	resp := pagination.NewPageResponse([]models.Transaction{}, 1, 20, 0)
	return &resp, nil
}

func (m *mockTransactionService) CountByCategory(*gorm.DB, string, string) (int64, error) {
	return 0, nil
}

func (m *mockTransactionService) ReassignCategory(*gorm.DB, string, string, string, string) (int64, error) {
	return 0, nil
}

// --- helpers ---

func setupTransactionRouter(handler *TransactionHandler) *gin.Engine {
	r := gin.New()
	auth := r.Group("", injectUserID(testUserID))
	auth.POST("/transactions", handler.CreateTransaction)
	auth.GET("/transactions/:id", handler.GetTransactionByID)
	auth.GET("/categories/:id/transactions", handler.GetCategoryTransactions)
	return r
}

// --- tests ---

func TestTransactionHandler_CreateTransaction(t *testing.T) {
	t.Run("returns 201 with a plain date", func(t *testing.T) {
		var gotDate time.Time
		var gotAmount decimal.Decimal
		svc := &mockTransactionService{
			createTransactionFn: func(householdID, userID, categoryID string, amount decimal.Decimal, description string, date time.Time) (*models.Transaction, error) {
				gotDate, gotAmount = date, amount
				tx := &models.Transaction{
					HouseholdID: householdID,
					UserID:      userID,
					CategoryID:  categoryID,
					Amount:      amount,
					Description: description,
					Date:        date,
				}
				tx.ID = transactionID
				return tx, nil
			},
		}
		audit := &mockAuditService{}
		r := setupTransactionRouter(NewTransactionHandler(svc, audit))

		rec := doRequest(r, "POST", "/transactions",
			`{"category_id":"`+groceriesID+`","amount":"42.50","description":"Market","date":"2025-11-03"}`)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if !gotDate.Equal(time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("expected 2025-11-03, got %s", gotDate)
		}
		if !gotAmount.Equal(decimal.RequireFromString("42.5")) {
			t.Errorf("expected 42.50, got %s", gotAmount)
		}
		if len(audit.entries) != 1 || audit.entries[0].action != "CREATE_TRANSACTION" {
			t.Errorf("expected CREATE_TRANSACTION audit entry, got %v", audit.actions())
		}
	})

	t.Run("rejects a malformed date", func(t *testing.T) {
		r := setupTransactionRouter(NewTransactionHandler(&mockTransactionService{}, &mockAuditService{}))

		rec := doRequest(r, "POST", "/transactions", `{"category_id":"`+groceriesID+`","amount":"5","date":"03/11/2025"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_INPUT")
	})

	t.Run("inactive category", func(t *testing.T) {
		svc := &mockTransactionService{
			createTransactionFn: func(string, string, string, decimal.Decimal, string, time.Time) (*models.Transaction, error) {
				return nil, apperrors.ErrCategoryInactive
			},
		}
		r := setupTransactionRouter(NewTransactionHandler(svc, &mockAuditService{}))

		rec := doRequest(r, "POST", "/transactions", `{"category_id":"`+groceriesID+`","amount":"5"}`)

		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "CATEGORY_INACTIVE")
	})
}

func TestTransactionHandler_GetTransactionByID(t *testing.T) {
	svc := &mockTransactionService{
		getTransactionByIDFn: func(_, id string) (*models.Transaction, error) {
			if id != transactionID {
				return nil, apperrors.ErrTransactionNotFound
			}
			original := diningID
			changed := time.Date(2025, 11, 10, 0, 0, 0, 0, time.UTC)
			tx := &models.Transaction{
				HouseholdID:          testHouseholdID,
				CategoryID:           groceriesID,
				Amount:               decimal.NewFromInt(12),
				OriginalCategoryID:   &original,
				CategoryChangedAt:    &changed,
				CategoryChangeReason: models.CategoryChangeMerged,
			}
			tx.ID = id
			return tx, nil
		},
	}
	r := setupTransactionRouter(NewTransactionHandler(svc, &mockAuditService{}))

	rec := doRequest(r, "GET", "/transactions/"+transactionID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	tx := parseJSON(t, rec)["transaction"].(map[string]interface{})
	if tx["original_category_id"] != diningID {
		t.Errorf("expected original category %s, got %v", diningID, tx["original_category_id"])
	}
	if tx["category_change_reason"] != models.CategoryChangeMerged {
		t.Errorf("expected reason %s, got %v", models.CategoryChangeMerged, tx["category_change_reason"])
	}

	rec = doRequest(r, "GET", "/transactions/"+adjustmentID, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestTransactionHandler_GetCategoryTransactions(t *testing.T) {
	var gotCategory string
	svc := &mockTransactionService{
		getByCategoryFn: func(_, categoryID string, page pagination.PageRequest) (*pagination.PageResponse[models.Transaction], error) {
			gotCategory = categoryID
			resp := pagination.NewPageResponse([]models.Transaction{{CategoryID: categoryID}}, page.Page, 20, 1)
			return &resp, nil
		},
	}
	r := setupTransactionRouter(NewTransactionHandler(svc, &mockAuditService{}))

	rec := doRequest(r, "GET", "/categories/"+groceriesID+"/transactions?page=1", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if gotCategory != groceriesID {
		t.Errorf("expected %s, got %s", groceriesID, gotCategory)
	}
	if data := parseJSON(t, rec)["data"].([]interface{}); len(data) != 1 {
		t.Errorf("expected 1 transaction, got %d", len(data))
	}
}
