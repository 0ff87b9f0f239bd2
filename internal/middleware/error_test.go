package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	apperrors "homebudget/internal/errors"
)

func setupErrorRouter(err error) *gin.Engine {
	r := gin.New()
	r.Use(RequestLogging(), ErrorHandler())
	r.GET("/fail", func(c *gin.Context) {
		_ = c.Error(err)
	})
	return r
}

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    string
		wantDetails bool
	}{
		{"app_error", apperrors.ErrCategoryNotFound, http.StatusNotFound, "CATEGORY_NOT_FOUND", false},
		{"app_error_with_details", apperrors.CategoryInUse(3), http.StatusConflict, "CATEGORY_IN_USE", true},
		{"wrapped_internal", apperrors.Wrap(apperrors.ErrInternalServer, errors.New("db down")), http.StatusInternalServerError, "INTERNAL_ERROR", false},
		{"plain_error", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			setupErrorRouter(tc.err).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fail", http.NoBody))

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, rec.Code)
			}
			if rec.Header().Get("X-Request-ID") == "" {
				t.Error("expected a request ID header")
			}
			body := parseBody(t, rec)
			errObj, ok := body["error"].(map[string]interface{})
			if !ok {
				t.Fatalf("expected error object, got %v", body)
			}
			if errObj["code"] != tc.wantCode {
				t.Errorf("expected code %s, got %v", tc.wantCode, errObj["code"])
			}
			if _, has := errObj["details"]; has != tc.wantDetails {
				t.Errorf("details present = %v, want %v", has, tc.wantDetails)
			}
			if tc.name == "wrapped_internal" && errObj["message"] == "db down" {
				t.Error("internal error leaked to client")
			}
		})
	}
}

func TestRequestLoggingReusesRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogging())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/ping", http.NoBody)
	req.Header.Set("X-Request-ID", "trace-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "trace-123" {
		t.Errorf("expected request ID to be reused, got %q", got)
	}
}
