package handlers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "homebudget/internal/errors"
	"homebudget/internal/models"
	"homebudget/internal/pagination"
	"homebudget/internal/services"
)

const (
	groceriesID = "0190f1c2-0000-7000-8000-0000000000c1"
	diningID    = "0190f1c2-0000-7000-8000-0000000000c2"
)

// --- mock category service ---

type mockCategoryService struct {
	createCategoryFn     func(householdID string, input services.CategoryInput, includeInTemplate bool) (*models.Category, error)
	getCategoriesFn      func(householdID string, filter services.CategoryFilter, page pagination.PageRequest) (*pagination.PageResponse[models.Category], error)
	getCategoryByIDFn    func(householdID, categoryID string) (*models.Category, error)
	updateCategoryFn     func(householdID, categoryID string, update services.CategoryUpdate) (*models.Category, error)
	deactivateCategoryFn func(householdID, categoryID string, reassignTo *string) (*models.Category, error)
	reactivateCategoryFn func(householdID, categoryID string) (*models.Category, error)
	deleteCategoryFn     func(householdID, categoryID string, reassignTo *string) error
	mergeCategoriesFn    func(householdID, sourceID, targetID string, actorID *string) (*services.MergeResult, error)
	getMergeHistoryFn    func(householdID string, page pagination.PageRequest) (*pagination.PageResponse[models.CategoryMergeHistory], error)
	getCategoryLineageFn func(householdID, categoryID string) (*services.CategoryLineage, error)
}

var _ services.CategoryServicer = (*mockCategoryService)(nil)

func (m *mockCategoryService) CreateCategory(householdID string, input services.CategoryInput, includeInTemplate bool) (*models.Category, error) {
	if m.createCategoryFn != nil {
		return m.createCategoryFn(householdID, input, includeInTemplate)
	}
	return &models.Category{}, nil
}

func (m *mockCategoryService) GetCategories(householdID string, filter services.CategoryFilter, page pagination.PageRequest) (*pagination.PageResponse[models.Category], error) {
	if m.getCategoriesFn != nil {
		return m.getCategoriesFn(householdID, filter, page)
	}
	resp := pagination.NewPageResponse([]models.Category{}, 1, 20, 0)
	return &resp, nil
}

func (m *mockCategoryService) GetCategoryByID(householdID, categoryID string) (*models.Category, error) {
	if m.getCategoryByIDFn != nil {
		return m.getCategoryByIDFn(householdID, categoryID)
	}
	return &models.Category{}, nil
}

func (m *mockCategoryService) UpdateCategory(householdID, categoryID string, update services.CategoryUpdate) (*models.Category, error) {
	if m.updateCategoryFn != nil {
		return m.updateCategoryFn(householdID, categoryID, update)
	}
	return &models.Category{}, nil
}

func (m *mockCategoryService) DeactivateCategory(householdID, categoryID string, reassignTo *string) (*models.Category, error) {
	if m.deactivateCategoryFn != nil {
		return m.deactivateCategoryFn(householdID, categoryID, reassignTo)
	}
	return &models.Category{}, nil
}

func (m *mockCategoryService) ReactivateCategory(householdID, categoryID string) (*models.Category, error) {
	if m.reactivateCategoryFn != nil {
		return m.reactivateCategoryFn(householdID, categoryID)
	}
	return &models.Category{}, nil
}

func (m *mockCategoryService) DeleteCategory(householdID, categoryID string, reassignTo *string) error {
	if m.deleteCategoryFn != nil {
		return m.deleteCategoryFn(householdID, categoryID, reassignTo)
	}
	return nil
}

func (m *mockCategoryService) MergeCategories(householdID, sourceID, targetID string, actorID *string) (*services.MergeResult, error) {
	if m.mergeCategoriesFn != nil {
		return m.mergeCategoriesFn(householdID, sourceID, targetID, actorID)
	}
	return &services.MergeResult{}, nil
}

func (m *mockCategoryService) GetMergeHistory(householdID string, page pagination.PageRequest) (*pagination.PageResponse[models.CategoryMergeHistory], error) {
	if m.getMergeHistoryFn != nil {
		return m.getMergeHistoryFn(householdID, page)
	}
	resp := pagination.NewPageResponse([]models.CategoryMergeHistory{}, 1, 20, 0)
	return &resp, nil
}

func (m *mockCategoryService) GetCategoryLineage(householdID, categoryID string) (*services.CategoryLineage, error) {
	if m.getCategoryLineageFn != nil {
		return m.getCategoryLineageFn(householdID, categoryID)
	}
	return &services.CategoryLineage{CategoryID: categoryID}, nil
}

// --- helpers ---

func setupCategoryRouter(handler *CategoryHandler) *gin.Engine {
	r := gin.New()
	auth := r.Group("", injectUserID(testUserID))
	auth.POST("/categories", handler.CreateCategory)
	auth.GET("/categories", handler.GetCategories)
	auth.GET("/categories/:id", handler.GetCategoryByID)
	auth.PUT("/categories/:id", handler.UpdateCategory)
	auth.DELETE("/categories/:id", handler.DeleteCategory)
	auth.POST("/categories/:id/deactivate", handler.DeactivateCategory)
	auth.POST("/categories/:id/reactivate", handler.ReactivateCategory)
	auth.POST("/categories/:id/merge", handler.MergeCategory)
	auth.GET("/categories/:id/lineage", handler.GetCategoryLineage)
	auth.GET("/category-merges", handler.GetMergeHistory)
	return r
}

func testCategory(id, name string) *models.Category {
	cat := &models.Category{
		HouseholdID:             testHouseholdID,
		Name:                    name,
		Type:                    models.CategoryTypeExpense,
		DefaultMonthlyLimit:     decimal.NewFromInt(500),
		DefaultWarningThreshold: 80,
		IsActive:                true,
	}
	cat.ID = id
	return cat
}

// --- tests ---

func TestCategoryHandler_CreateCategory(t *testing.T) {
	t.Run("returns 201 and passes the template opt-in", func(t *testing.T) {
		var gotInput services.CategoryInput
		var gotInclude bool
		svc := &mockCategoryService{
			createCategoryFn: func(householdID string, input services.CategoryInput, include bool) (*models.Category, error) {
				if householdID != testHouseholdID {
					t.Errorf("expected household %s, got %s", testHouseholdID, householdID)
				}
				gotInput, gotInclude = input, include
				return testCategory(groceriesID, input.Name), nil
			},
		}
		audit := &mockAuditService{}
		r := setupCategoryRouter(NewCategoryHandler(svc, audit))

		rec := doRequest(r, "POST", "/categories",
			`{"name":"Groceries","type":"expense","color":"#22AA44","default_monthly_limit":"500.00","default_warning_threshold":75,"include_in_template":true}`)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if !gotInclude {
			t.Error("expected include_in_template to be forwarded")
		}
		if !gotInput.DefaultMonthlyLimit.Equal(decimal.NewFromInt(500)) {
			t.Errorf("expected limit 500, got %s", gotInput.DefaultMonthlyLimit)
		}
		if gotInput.DefaultWarningThreshold != 75 {
			t.Errorf("expected threshold 75, got %d", gotInput.DefaultWarningThreshold)
		}
		category := parseJSON(t, rec)["category"].(map[string]interface{})
		if category["id"] != groceriesID {
			t.Errorf("expected id %s, got %v", groceriesID, category["id"])
		}
		if len(audit.entries) != 1 || audit.entries[0].action != "CREATE_CATEGORY" {
			t.Errorf("expected CREATE_CATEGORY audit entry, got %v", audit.actions())
		}
	})

	t.Run("rejects negative limit", func(t *testing.T) {
		r := setupCategoryRouter(NewCategoryHandler(&mockCategoryService{}, &mockAuditService{}))

		rec := doRequest(r, "POST", "/categories", `{"name":"Groceries","default_monthly_limit":"-5"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_INPUT")
	})

	t.Run("rejects bad color", func(t *testing.T) {
		r := setupCategoryRouter(NewCategoryHandler(&mockCategoryService{}, &mockAuditService{}))

		rec := doRequest(r, "POST", "/categories", `{"name":"Groceries","color":"green"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("rejects threshold above 100", func(t *testing.T) {
		r := setupCategoryRouter(NewCategoryHandler(&mockCategoryService{}, &mockAuditService{}))

		rec := doRequest(r, "POST", "/categories", `{"name":"Groceries","default_warning_threshold":120}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("maps duplicate name to 409", func(t *testing.T) {
		svc := &mockCategoryService{
			createCategoryFn: func(string, services.CategoryInput, bool) (*models.Category, error) {
				return nil, apperrors.ErrDuplicateCategoryName
			},
		}
		r := setupCategoryRouter(NewCategoryHandler(svc, &mockAuditService{}))

		rec := doRequest(r, "POST", "/categories", `{"name":"Groceries"}`)

		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "DUPLICATE_CATEGORY_NAME")
	})
}

func TestCategoryHandler_GetCategories(t *testing.T) {
	t.Run("forwards filters", func(t *testing.T) {
		var gotFilter services.CategoryFilter
		svc := &mockCategoryService{
			getCategoriesFn: func(_ string, filter services.CategoryFilter, page pagination.PageRequest) (*pagination.PageResponse[models.Category], error) {
				gotFilter = filter
				resp := pagination.NewPageResponse([]models.Category{*testCategory(groceriesID, "Groceries")}, 1, 20, 1)
				return &resp, nil
			},
		}
		r := setupCategoryRouter(NewCategoryHandler(svc, &mockAuditService{}))

		rec := doRequest(r, "GET", "/categories?type=expense&include_inactive=true", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if gotFilter.Type == nil || *gotFilter.Type != models.CategoryTypeExpense {
			t.Errorf("expected expense filter, got %v", gotFilter.Type)
		}
		if !gotFilter.IncludeInactive || gotFilter.IncludeDeleted {
			t.Errorf("unexpected filter: %+v", gotFilter)
		}
		data := parseJSON(t, rec)["data"].([]interface{})
		if len(data) != 1 {
			t.Errorf("expected 1 category, got %d", len(data))
		}
	})

	t.Run("rejects unknown type", func(t *testing.T) {
		r := setupCategoryRouter(NewCategoryHandler(&mockCategoryService{}, &mockAuditService{}))

		rec := doRequest(r, "GET", "/categories?type=savings", "")

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestCategoryHandler_GetCategoryByID(t *testing.T) {
	t.Run("returns 400 on malformed id", func(t *testing.T) {
		r := setupCategoryRouter(NewCategoryHandler(&mockCategoryService{}, &mockAuditService{}))

		rec := doRequest(r, "GET", "/categories/42", "")

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("returns 404 when missing", func(t *testing.T) {
		svc := &mockCategoryService{
			getCategoryByIDFn: func(string, string) (*models.Category, error) {
				return nil, apperrors.ErrCategoryNotFound
			},
		}
		r := setupCategoryRouter(NewCategoryHandler(svc, &mockAuditService{}))

		rec := doRequest(r, "GET", "/categories/"+groceriesID, "")

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "CATEGORY_NOT_FOUND")
	})
}

func TestCategoryHandler_UpdateCategory(t *testing.T) {
	var got services.CategoryUpdate
	svc := &mockCategoryService{
		updateCategoryFn: func(_, categoryID string, update services.CategoryUpdate) (*models.Category, error) {
			got = update
			return testCategory(categoryID, *update.Name), nil
		},
	}
	r := setupCategoryRouter(NewCategoryHandler(svc, &mockAuditService{}))

	rec := doRequest(r, "PUT", "/categories/"+groceriesID, `{"name":"Food"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got.Name == nil || *got.Name != "Food" {
		t.Errorf("expected name Food, got %v", got.Name)
	}
	if got.Color != nil || got.DefaultMonthlyLimit != nil {
		t.Error("expected untouched fields to stay nil")
	}
}

func TestCategoryHandler_Lifecycle(t *testing.T) {
	t.Run("deactivate without body", func(t *testing.T) {
		var gotReassign *string
		svc := &mockCategoryService{
			deactivateCategoryFn: func(_, categoryID string, reassignTo *string) (*models.Category, error) {
				gotReassign = reassignTo
				cat := testCategory(categoryID, "Groceries")
				cat.IsActive = false
				return cat, nil
			},
		}
		r := setupCategoryRouter(NewCategoryHandler(svc, &mockAuditService{}))

		rec := doRequest(r, "POST", "/categories/"+groceriesID+"/deactivate", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if gotReassign != nil {
			t.Errorf("expected no reassignment, got %v", *gotReassign)
		}
	})

	t.Run("deactivate in use returns transaction count", func(t *testing.T) {
		svc := &mockCategoryService{
			deactivateCategoryFn: func(string, string, *string) (*models.Category, error) {
				return nil, apperrors.CategoryInUse(3)
			},
		}
		r := setupCategoryRouter(NewCategoryHandler(svc, &mockAuditService{}))

		rec := doRequest(r, "POST", "/categories/"+groceriesID+"/deactivate", "")

		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
		result := parseJSON(t, rec)
		assertErrorCode(t, result, "CATEGORY_IN_USE")
		details := result["error"].(map[string]interface{})["details"].(map[string]interface{})
		if details["transaction_count"] != float64(3) {
			t.Errorf("expected transaction_count 3, got %v", details["transaction_count"])
		}
	})

	t.Run("deactivate with reassignment", func(t *testing.T) {
		var gotReassign *string
		svc := &mockCategoryService{
			deactivateCategoryFn: func(_, categoryID string, reassignTo *string) (*models.Category, error) {
				gotReassign = reassignTo
				return testCategory(categoryID, "Groceries"), nil
			},
		}
		r := setupCategoryRouter(NewCategoryHandler(svc, &mockAuditService{}))

		rec := doRequest(r, "POST", "/categories/"+groceriesID+"/deactivate", `{"reassign_to":"`+diningID+`"}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if gotReassign == nil || *gotReassign != diningID {
			t.Errorf("expected reassignment to %s, got %v", diningID, gotReassign)
		}
	})

	t.Run("delete forwards reassign_to query", func(t *testing.T) {
		var gotReassign *string
		svc := &mockCategoryService{
			deleteCategoryFn: func(_, _ string, reassignTo *string) error {
				gotReassign = reassignTo
				return nil
			},
		}
		audit := &mockAuditService{}
		r := setupCategoryRouter(NewCategoryHandler(svc, audit))

		rec := doRequest(r, "DELETE", "/categories/"+groceriesID+"?reassign_to="+diningID, "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if gotReassign == nil || *gotReassign != diningID {
			t.Errorf("expected reassignment to %s, got %v", diningID, gotReassign)
		}
		if len(audit.entries) != 1 || audit.entries[0].action != "DELETE_CATEGORY" {
			t.Errorf("expected DELETE_CATEGORY audit entry, got %v", audit.actions())
		}
	})

	t.Run("reactivate", func(t *testing.T) {
		r := setupCategoryRouter(NewCategoryHandler(&mockCategoryService{}, &mockAuditService{}))

		rec := doRequest(r, "POST", "/categories/"+groceriesID+"/reactivate", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})
}

func TestCategoryHandler_MergeCategory(t *testing.T) {
	t.Run("returns merge summary", func(t *testing.T) {
		version := 4
		var gotActor *string
		svc := &mockCategoryService{
			mergeCategoriesFn: func(_, sourceID, targetID string, actorID *string) (*services.MergeResult, error) {
				gotActor = actorID
				return &services.MergeResult{
					Source:            testCategory(sourceID, "Eating Out"),
					Target:            testCategory(targetID, "Restaurants"),
					TransactionsMoved: 5,
					TemplateVersion:   &version,
					SnapshotsUpdated:  2,
				}, nil
			},
		}
		r := setupCategoryRouter(NewCategoryHandler(svc, &mockAuditService{}))

		rec := doRequest(r, "POST", "/categories/"+groceriesID+"/merge", `{"target_id":"`+diningID+`"}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		result := parseJSON(t, rec)
		if result["transactions_moved"] != float64(5) {
			t.Errorf("expected 5 transactions moved, got %v", result["transactions_moved"])
		}
		if result["template_version"] != float64(4) {
			t.Errorf("expected template_version 4, got %v", result["template_version"])
		}
		if gotActor == nil || *gotActor != testUserID {
			t.Errorf("expected actor %s, got %v", testUserID, gotActor)
		}
	})

	t.Run("self merge is rejected", func(t *testing.T) {
		svc := &mockCategoryService{
			mergeCategoriesFn: func(string, string, string, *string) (*services.MergeResult, error) {
				return nil, apperrors.ErrSelfMerge
			},
		}
		r := setupCategoryRouter(NewCategoryHandler(svc, &mockAuditService{}))

		rec := doRequest(r, "POST", "/categories/"+groceriesID+"/merge", `{"target_id":"`+groceriesID+`"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "SELF_MERGE")
	})

	t.Run("missing target", func(t *testing.T) {
		r := setupCategoryRouter(NewCategoryHandler(&mockCategoryService{}, &mockAuditService{}))

		rec := doRequest(r, "POST", "/categories/"+groceriesID+"/merge", `{}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestCategoryHandler_Lineage(t *testing.T) {
	svc := &mockCategoryService{
		getCategoryLineageFn: func(_, categoryID string) (*services.CategoryLineage, error) {
			return &services.CategoryLineage{
				CategoryID:        categoryID,
				MergedCategoryIDs: []string{diningID},
				Merges:            []models.CategoryMergeHistory{},
			}, nil
		},
	}
	r := setupCategoryRouter(NewCategoryHandler(svc, &mockAuditService{}))

	rec := doRequest(r, "GET", "/categories/"+groceriesID+"/lineage", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	merged := parseJSON(t, rec)["merged_category_ids"].([]interface{})
	if len(merged) != 1 || merged[0] != diningID {
		t.Errorf("expected [%s], got %v", diningID, merged)
	}

	rec = doRequest(r, "GET", "/category-merges", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from merge history, got %d", rec.Code)
	}
}
