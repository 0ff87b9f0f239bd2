package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "homebudget/internal/errors"
	"homebudget/internal/middleware"
	"homebudget/internal/models"
	"homebudget/internal/services"
	"homebudget/internal/validator"
)

const (
	testUserID      = "0190f1c2-0000-7000-8000-0000000000a1"
	testHouseholdID = "0190f1c2-0000-7000-8000-0000000000b1"
)

// --- mock services ---

type mockUserService struct {
	registerFn       func(input services.RegisterInput) (*models.User, error)
	getUserByEmailFn func(email string) (*models.User, error)
	getUserByIDFn    func(id string) (*models.User, error)
	verifyPasswordFn func(user *models.User, password string) bool
	attemptLoginFn   func(email, password string) (*models.User, error)
	getHouseholdFn   func(householdID string) (*models.Household, error)
}

var _ services.UserServicer = (*mockUserService)(nil)

func (m *mockUserService) Register(input services.RegisterInput) (*models.User, error) {
	if m.registerFn != nil {
		return m.registerFn(input)
	}
	return &models.User{}, nil
}

func (m *mockUserService) GetUserByEmail(email string) (*models.User, error) {
	if m.getUserByEmailFn != nil {
		return m.getUserByEmailFn(email)
	}
	return &models.User{}, nil
}

func (m *mockUserService) GetUserByID(id string) (*models.User, error) {
	if m.getUserByIDFn != nil {
		return m.getUserByIDFn(id)
	}
	return &models.User{}, nil
}

func (m *mockUserService) VerifyPassword(user *models.User, password string) bool {
	if m.verifyPasswordFn != nil {
		return m.verifyPasswordFn(user, password)
	}
	return true
}

func (m *mockUserService) AttemptLogin(email, password string) (*models.User, error) {
	if m.attemptLoginFn != nil {
		return m.attemptLoginFn(email, password)
	}
	return &models.User{}, nil
}

func (m *mockUserService) GetHousehold(householdID string) (*models.Household, error) {
	if m.getHouseholdFn != nil {
		return m.getHouseholdFn(householdID)
	}
	return &models.Household{}, nil
}

type auditEntry struct {
	householdID string
	userID      string
	action      string
	resourceID  string
	changes     map[string]interface{}
}

type mockAuditService struct {
	entries []auditEntry
}

var _ services.AuditServicer = (*mockAuditService)(nil)

func (m *mockAuditService) Log(householdID, userID, action, _, resourceID, _ string, changes map[string]interface{}) {
	m.entries = append(m.entries, auditEntry{
		householdID: householdID,
		userID:      userID,
		action:      action,
		resourceID:  resourceID,
		changes:     changes,
	})
}

func (m *mockAuditService) actions() []string {
	out := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.action)
	}
	return out
}

// --- test helpers ---

func init() {
	gin.SetMode(gin.TestMode)
	validator.Register()
}

func setupAuthRouter(handler *AuthHandler) *gin.Engine {
	r := gin.New()
	r.POST("/auth/register", handler.Register)
	r.POST("/auth/login", handler.Login)
	r.POST("/auth/refresh", handler.Refresh)
	r.GET("/profile", injectUserID(testUserID), handler.GetProfile)
	r.GET("/household", injectUserID(testUserID), handler.GetHousehold)
	return r
}

// injectUserID stands in for AuthMiddleware: it scopes the request to the
// test user and the test household.
func injectUserID(uid string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("userID", uid)
		c.Set("householdID", testHouseholdID)
		c.Next()
	}
}

func doRequest(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func parseJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nbody: %s", err, rec.Body.String())
	}
	return result
}

func assertErrorCode(t *testing.T, result map[string]interface{}, code string) {
	t.Helper()
	errObj, ok := result["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error object in response, got: %v", result)
	}
	if errObj["code"] != code {
		t.Errorf("expected error code %q, got %q", code, errObj["code"])
	}
}

func testUser(email string) *models.User {
	user := &models.User{HouseholdID: testHouseholdID, Email: email, FirstName: "John", LastName: "Doe", IsActive: true}
	user.ID = testUserID
	return user
}

// --- tests ---

func TestAuthHandler_Register(t *testing.T) {
	t.Run("returns 201 with tokens", func(t *testing.T) {
		var got services.RegisterInput
		userSvc := &mockUserService{
			registerFn: func(input services.RegisterInput) (*models.User, error) {
				got = input
				return testUser(input.Email), nil
			},
		}
		audit := &mockAuditService{}
		r := setupAuthRouter(NewAuthHandler(userSvc, audit))

		rec := doRequest(r, "POST", "/auth/register",
			`{"email":"test@example.com","password":"password123","first_name":"John","household_name":"Doe Family","currency":"EUR"}`)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		result := parseJSON(t, rec)
		if result["token"] == nil || result["token"] == "" {
			t.Error("expected non-empty token")
		}
		if result["refresh_token"] == nil || result["refresh_token"] == "" {
			t.Error("expected non-empty refresh_token")
		}
		user := result["user"].(map[string]interface{})
		if user["household_id"] != testHouseholdID {
			t.Errorf("expected household %s, got %v", testHouseholdID, user["household_id"])
		}
		if got.HouseholdName != "Doe Family" || got.Currency != "EUR" {
			t.Errorf("unexpected register input: %+v", got)
		}
		if len(audit.entries) != 1 || audit.entries[0].action != "REGISTER" {
			t.Errorf("expected one REGISTER audit entry, got %v", audit.actions())
		}
	})

	t.Run("returns 400 on missing email", func(t *testing.T) {
		r := setupAuthRouter(NewAuthHandler(&mockUserService{}, &mockAuditService{}))

		rec := doRequest(r, "POST", "/auth/register", `{"password":"password123"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_INPUT")
	})

	t.Run("returns 400 on short password", func(t *testing.T) {
		r := setupAuthRouter(NewAuthHandler(&mockUserService{}, &mockAuditService{}))

		rec := doRequest(r, "POST", "/auth/register", `{"email":"test@example.com","password":"short"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("returns 400 on unknown currency", func(t *testing.T) {
		r := setupAuthRouter(NewAuthHandler(&mockUserService{}, &mockAuditService{}))

		rec := doRequest(r, "POST", "/auth/register",
			`{"email":"test@example.com","password":"password123","currency":"XYZ"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("returns 409 on duplicate email", func(t *testing.T) {
		userSvc := &mockUserService{
			registerFn: func(services.RegisterInput) (*models.User, error) {
				return nil, apperrors.ErrDuplicateEmail
			},
		}
		r := setupAuthRouter(NewAuthHandler(userSvc, &mockAuditService{}))

		rec := doRequest(r, "POST", "/auth/register", `{"email":"dup@example.com","password":"password123"}`)

		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "DUPLICATE_EMAIL")
	})
}

func TestAuthHandler_Login(t *testing.T) {
	t.Run("returns 200 on success", func(t *testing.T) {
		userSvc := &mockUserService{
			attemptLoginFn: func(email, _ string) (*models.User, error) {
				return testUser(email), nil
			},
		}
		r := setupAuthRouter(NewAuthHandler(userSvc, &mockAuditService{}))

		rec := doRequest(r, "POST", "/auth/login", `{"email":"test@example.com","password":"password123"}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		result := parseJSON(t, rec)
		if result["token"] == nil || result["token"] == "" {
			t.Error("expected non-empty token")
		}
	})

	t.Run("returns 401 on invalid credentials", func(t *testing.T) {
		userSvc := &mockUserService{
			attemptLoginFn: func(_, _ string) (*models.User, error) {
				return nil, apperrors.ErrInvalidCredentials
			},
		}
		r := setupAuthRouter(NewAuthHandler(userSvc, &mockAuditService{}))

		rec := doRequest(r, "POST", "/auth/login", `{"email":"test@example.com","password":"wrong"}`)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_CREDENTIALS")
	})

	t.Run("returns 400 on missing fields", func(t *testing.T) {
		r := setupAuthRouter(NewAuthHandler(&mockUserService{}, &mockAuditService{}))

		rec := doRequest(r, "POST", "/auth/login", `{}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestAuthHandler_Refresh(t *testing.T) {
	user := testUser("test@example.com")

	t.Run("exchanges a refresh token", func(t *testing.T) {
		refresh, err := middleware.GenerateRefreshToken(user)
		if err != nil {
			t.Fatalf("GenerateRefreshToken: %v", err)
		}
		userSvc := &mockUserService{
			getUserByIDFn: func(id string) (*models.User, error) {
				if id != testUserID {
					t.Errorf("expected lookup of %s, got %s", testUserID, id)
				}
				return user, nil
			},
		}
		r := setupAuthRouter(NewAuthHandler(userSvc, &mockAuditService{}))

		rec := doRequest(r, "POST", "/auth/refresh", `{"refresh_token":"`+refresh+`"}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("rejects an access token", func(t *testing.T) {
		access, err := middleware.GenerateAccessToken(user)
		if err != nil {
			t.Fatalf("GenerateAccessToken: %v", err)
		}
		r := setupAuthRouter(NewAuthHandler(&mockUserService{}, &mockAuditService{}))

		rec := doRequest(r, "POST", "/auth/refresh", `{"refresh_token":"`+access+`"}`)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "UNAUTHORIZED")
	})

	t.Run("rejects an inactive user", func(t *testing.T) {
		refresh, err := middleware.GenerateRefreshToken(user)
		if err != nil {
			t.Fatalf("GenerateRefreshToken: %v", err)
		}
		userSvc := &mockUserService{
			getUserByIDFn: func(string) (*models.User, error) {
				inactive := *user
				inactive.IsActive = false
				return &inactive, nil
			},
		}
		r := setupAuthRouter(NewAuthHandler(userSvc, &mockAuditService{}))

		rec := doRequest(r, "POST", "/auth/refresh", `{"refresh_token":"`+refresh+`"}`)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})
}

func TestAuthHandler_GetProfile(t *testing.T) {
	t.Run("returns 200 with user profile", func(t *testing.T) {
		now := time.Now()
		userSvc := &mockUserService{
			getUserByIDFn: func(id string) (*models.User, error) {
				user := testUser("test@example.com")
				user.ID = id
				user.LastLoginAt = &now
				return user, nil
			},
		}
		r := setupAuthRouter(NewAuthHandler(userSvc, &mockAuditService{}))

		rec := doRequest(r, "GET", "/profile", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		user := parseJSON(t, rec)["user"].(map[string]interface{})
		if user["email"] != "test@example.com" {
			t.Errorf("expected test@example.com, got %v", user["email"])
		}
		if user["first_name"] != "John" {
			t.Errorf("expected John, got %v", user["first_name"])
		}
	})

	t.Run("returns 401 without auth", func(t *testing.T) {
		handler := NewAuthHandler(&mockUserService{}, &mockAuditService{})
		r := gin.New()
		r.GET("/profile", handler.GetProfile)

		rec := doRequest(r, "GET", "/profile", "")

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("returns 404 when user not found", func(t *testing.T) {
		userSvc := &mockUserService{
			getUserByIDFn: func(string) (*models.User, error) {
				return nil, apperrors.ErrUserNotFound
			},
		}
		r := setupAuthRouter(NewAuthHandler(userSvc, &mockAuditService{}))

		rec := doRequest(r, "GET", "/profile", "")

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})
}

func TestAuthHandler_GetHousehold(t *testing.T) {
	userSvc := &mockUserService{
		getHouseholdFn: func(householdID string) (*models.Household, error) {
			h := &models.Household{Name: "Doe Family", Currency: "USD"}
			h.ID = householdID
			return h, nil
		},
	}
	r := setupAuthRouter(NewAuthHandler(userSvc, &mockAuditService{}))

	rec := doRequest(r, "GET", "/household", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	household := parseJSON(t, rec)["household"].(map[string]interface{})
	if household["id"] != testHouseholdID {
		t.Errorf("expected household %s, got %v", testHouseholdID, household["id"])
	}
}
