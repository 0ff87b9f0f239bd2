package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"homebudget/internal/models"
)

func testUser() *models.User {
	user := &models.User{HouseholdID: "0190f1c2-0000-7000-8000-000000000001", Email: "alice@example.com"}
	user.ID = "0190f1c2-0000-7000-8000-000000000002"
	return user
}

func setupAuthRouter() *gin.Engine {
	r := gin.New()
	r.Use(AuthMiddleware())
	r.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id":      c.GetString("userID"),
			"household_id": c.GetString("householdID"),
		})
	})
	return r
}

func authRequest(r *gin.Engine, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", http.NoBody)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAuthMiddleware(t *testing.T) {
	user := testUser()
	access, err := GenerateAccessToken(user)
	if err != nil {
		t.Fatalf("failed to generate access token: %v", err)
	}
	refresh, err := GenerateRefreshToken(user)
	if err != nil {
		t.Fatalf("failed to generate refresh token: %v", err)
	}

	expiredClaims := newClaims(user, "access", time.Minute)
	expiredClaims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, expiredClaims).SignedString(getJWTKey())
	if err != nil {
		t.Fatalf("failed to sign expired token: %v", err)
	}

	foreign, err := jwt.NewWithClaims(jwt.SigningMethodHS256, newClaims(user, "access", time.Minute)).SignedString([]byte("another-secret"))
	if err != nil {
		t.Fatalf("failed to sign foreign token: %v", err)
	}

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"valid_access_token", "Bearer " + access, http.StatusOK},
		{"missing_header", "", http.StatusUnauthorized},
		{"wrong_scheme", "Token " + access, http.StatusUnauthorized},
		{"refresh_token_rejected", "Bearer " + refresh, http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"wrong_key", "Bearer " + foreign, http.StatusUnauthorized},
	}

	r := setupAuthRouter()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := authRequest(r, tc.header)
			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, rec.Code)
			}
			body := parseBody(t, rec)
			if tc.wantStatus == http.StatusOK {
				if body["household_id"] != user.HouseholdID || body["user_id"] != user.ID {
					t.Errorf("unexpected context values %v", body)
				}
				return
			}
			errObj, ok := body["error"].(map[string]interface{})
			if !ok || errObj["code"] != "UNAUTHORIZED" {
				t.Errorf("expected UNAUTHORIZED error body, got %v", body)
			}
		})
	}
}

func TestValidateRefreshToken(t *testing.T) {
	user := testUser()

	t.Run("valid", func(t *testing.T) {
		token, err := GenerateRefreshToken(user)
		if err != nil {
			t.Fatalf("failed to generate refresh token: %v", err)
		}
		claims, err := ValidateRefreshToken(token)
		if err != nil {
			t.Fatalf("expected valid refresh token, got %v", err)
		}
		if claims.UserID != user.ID || claims.HouseholdID != user.HouseholdID {
			t.Errorf("unexpected claims %+v", claims)
		}
	})

	t.Run("access_token", func(t *testing.T) {
		token, err := GenerateAccessToken(user)
		if err != nil {
			t.Fatalf("failed to generate access token: %v", err)
		}
		if _, err := ValidateRefreshToken(token); err == nil {
			t.Error("expected access token to be rejected")
		}
	})

	t.Run("garbage", func(t *testing.T) {
		if _, err := ValidateRefreshToken("not-a-token"); err == nil {
			t.Error("expected garbage to be rejected")
		}
	})
}

func TestHashToken(t *testing.T) {
	if HashToken("a") == HashToken("b") {
		t.Error("expected different digests")
	}
	if len(HashToken("a")) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(HashToken("a")))
	}
}
