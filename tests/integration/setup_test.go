package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"homebudget/internal/handlers"
	"homebudget/internal/logger"
	"homebudget/internal/middleware"
	"homebudget/internal/services"
	"homebudget/internal/testutil"
	"homebudget/internal/validator"
)

const pipelineKey = "integration-pipeline-key"

// testApp holds the full application stack for integration tests.
type testApp struct {
	DB     *gorm.DB
	Router *gin.Engine
}

func init() {
	gin.SetMode(gin.TestMode)
	logger.Init("test")
	validator.Register()
}

// setupApp creates a full application stack backed by an isolated in-memory SQLite.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.TeardownTestDB(t, db) })

	// Services
	auditService := services.NewAuditService(db)
	userService := services.NewUserService(db)
	transactionService := services.NewTransactionService(db)
	templateService := services.NewBudgetTemplateService(db)
	categoryService := services.NewCategoryService(db, templateService, transactionService)
	adjustmentService := services.NewAdjustmentService(db, templateService, services.AdjustmentOptions{Concurrency: 2})
	monthlyService := services.NewMonthlyBudgetService(db, templateService, adjustmentService, false)

	// Handlers
	authHandler := handlers.NewAuthHandler(userService, auditService)
	categoryHandler := handlers.NewCategoryHandler(categoryService, auditService)
	transactionHandler := handlers.NewTransactionHandler(transactionService, auditService)
	templateHandler := handlers.NewBudgetTemplateHandler(templateService, auditService)
	monthlyHandler := handlers.NewMonthlyBudgetHandler(monthlyService, auditService)
	adjustmentHandler := handlers.NewAdjustmentHandler(adjustmentService, auditService)
	pipelineHandler := handlers.NewPipelineHandler(adjustmentService)

	// Router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.ErrorHandler())

	v1 := router.Group("/api/v1")

	// Public auth routes
	auth := v1.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)

	pipeline := v1.Group("/pipeline")
	pipeline.Use(middleware.PipelineAuthMiddleware(pipelineKey))
	pipeline.POST("/adjustments/apply", pipelineHandler.ApplyDueAdjustments)

	// Protected routes
	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware())

	protected.GET("/profile", authHandler.GetProfile)
	protected.GET("/household", authHandler.GetHousehold)

	categories := protected.Group("/categories")
	categories.POST("", categoryHandler.CreateCategory)
	categories.GET("", categoryHandler.GetCategories)
	categories.GET("/:id", categoryHandler.GetCategoryByID)
	categories.PUT("/:id", categoryHandler.UpdateCategory)
	categories.DELETE("/:id", categoryHandler.DeleteCategory)
	categories.POST("/:id/deactivate", categoryHandler.DeactivateCategory)
	categories.POST("/:id/reactivate", categoryHandler.ReactivateCategory)
	categories.POST("/:id/merge", categoryHandler.MergeCategory)
	categories.GET("/:id/lineage", categoryHandler.GetCategoryLineage)
	categories.GET("/:id/transactions", transactionHandler.GetCategoryTransactions)

	transactions := protected.Group("/transactions")
	transactions.POST("", transactionHandler.CreateTransaction)
	transactions.GET("/:id", transactionHandler.GetTransactionByID)

	budgetTemplate := protected.Group("/budget-template")
	budgetTemplate.GET("", templateHandler.GetActiveTemplate)
	budgetTemplate.POST("", templateHandler.CreateTemplate)
	budgetTemplate.PATCH("", templateHandler.UpdateTemplate)
	budgetTemplate.GET("/compare", templateHandler.CompareVersions)
	budgetTemplate.GET("/versions", templateHandler.GetTemplateHistory)
	budgetTemplate.GET("/versions/:id", templateHandler.GetTemplateVersion)
	budgetTemplate.DELETE("/versions/:id", templateHandler.DeleteVersion)
	budgetTemplate.POST("/versions/:id/activate", templateHandler.ActivateVersion)

	months := protected.Group("/months")
	months.GET("", monthlyHandler.ListMonths)
	months.GET("/:year/:month", monthlyHandler.GetMonth)
	months.GET("/:year/:month/compare/original", monthlyHandler.CompareToOriginal)
	months.GET("/:year/:month/compare/template", monthlyHandler.CompareToTemplate)

	monthly := protected.Group("/monthly-budgets")
	monthly.GET("/:id", monthlyHandler.GetMonthlyBudget)
	monthly.PUT("/:id/categories/:category_id", monthlyHandler.UpdateCategoryLimit)
	monthly.POST("/:id/lock", monthlyHandler.LockMonth)
	monthly.POST("/:id/unlock", monthlyHandler.UnlockMonth)
	monthly.POST("/:id/sync", monthlyHandler.SyncCategories)

	adjustments := protected.Group("/adjustments")
	adjustments.POST("", adjustmentHandler.ScheduleAdjustment)
	adjustments.GET("/pending", adjustmentHandler.GetPendingAdjustments)
	adjustments.GET("/applied", adjustmentHandler.GetAppliedAdjustments)
	adjustments.GET("/history", adjustmentHandler.GetCategoryHistory)
	adjustments.POST("/apply", adjustmentHandler.ApplyAdjustments)
	adjustments.GET("/:id", adjustmentHandler.GetAdjustment)
	adjustments.DELETE("/:id", adjustmentHandler.CancelAdjustment)

	return &testApp{DB: db, Router: router}
}

// request makes an HTTP request to the test router and returns the recorder.
func (app *testApp) request(method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	return rec
}

// pipelineRequest calls a pipeline route with the service API key.
func (app *testApp) pipelineRequest(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", pipelineKey)
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	return rec
}

// parseJSON parses the response body into a map.
func parseJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, rec.Body.String())
	}
	return result
}

// expectStatus fails the test when the response code differs.
func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

// errorCode extracts the error code from an error response.
func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	errObj, ok := parseJSON(t, rec)["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error object, got %s", rec.Body.String())
	}
	code, _ := errObj["code"].(string)
	return code
}

// registerUser registers a new user and returns the access token, refresh token, and user ID.
func (app *testApp) registerUser(t *testing.T, email, password string) (accessToken, refreshToken, userID string) {
	t.Helper()
	body := fmt.Sprintf(`{"email":%q,"password":%q,"first_name":"Test","last_name":"User","household_name":"Home"}`, email, password)
	rec := app.request("POST", "/api/v1/auth/register", body, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("register failed: %d %s", rec.Code, rec.Body.String())
	}
	result := parseJSON(t, rec)
	user := result["user"].(map[string]interface{})
	return result["token"].(string), result["refresh_token"].(string), user["id"].(string)
}

// loginUser logs in and returns the access and refresh tokens.
func (app *testApp) loginUser(t *testing.T, email, password string) (accessToken, refreshToken string) {
	t.Helper()
	body := fmt.Sprintf(`{"email":%q,"password":%q}`, email, password)
	rec := app.request("POST", "/api/v1/auth/login", body, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", rec.Code, rec.Body.String())
	}
	result := parseJSON(t, rec)
	return result["token"].(string), result["refresh_token"].(string)
}

// createCategory registers a category and returns its ID.
func (app *testApp) createCategory(t *testing.T, token, name, limit string) string {
	t.Helper()
	body := fmt.Sprintf(`{"name":%q,"default_monthly_limit":%q}`, name, limit)
	rec := app.request("POST", "/api/v1/categories", body, token)
	expectStatus(t, rec, http.StatusCreated)
	return parseJSON(t, rec)["category"].(map[string]interface{})["id"].(string)
}

// createTemplate writes a template version with the given category limits
// and returns the template object.
func (app *testApp) createTemplate(t *testing.T, token string, limits map[string]string) map[string]interface{} {
	t.Helper()
	parts := make([]string, 0, len(limits))
	for id, limit := range limits {
		parts = append(parts, fmt.Sprintf(`%q:{"monthly_limit":%q}`, id, limit))
	}
	body := `{"name":"Household budget","categories":{` + strings.Join(parts, ",") + `}}`
	rec := app.request("POST", "/api/v1/budget-template", body, token)
	expectStatus(t, rec, http.StatusCreated)
	return parseJSON(t, rec)["template"].(map[string]interface{})
}

// limitOf reads a category's monthly limit from a template or snapshot object.
func limitOf(t *testing.T, obj map[string]interface{}, categoryID string) string {
	t.Helper()
	categories, ok := obj["categories"].(map[string]interface{})
	if !ok {
		t.Fatalf("object has no categories: %v", obj)
	}
	cfg, ok := categories[categoryID].(map[string]interface{})
	if !ok {
		t.Fatalf("category %s missing from %v", categoryID, categories)
	}
	return cfg["monthly_limit"].(string)
}
