package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/pagecraft/pagecraft/internal/apperror"
	"github.com/pagecraft/pagecraft/internal/config"
	"github.com/pagecraft/pagecraft/internal/plugins/auth"
)

func TestAccessRules_ConvertsRoles(t *testing.T) {
	rules := accessRules([]config.AccessRule{
		{PathPrefix: "/editor", Roles: []string{"admin", "mod"}},
	})
	if len(rules) != 1 || rules[0].PathPrefix != "/editor" {
		t.Fatalf("unexpected rules: %+v", rules)
	}
	if len(rules[0].Roles) != 2 || rules[0].Roles[1] != auth.RoleMod {
		t.Errorf("unexpected roles: %v", rules[0].Roles)
	}
}

func TestToAppError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantKind string
	}{
		{"app error", apperror.NewForbidden("no"), http.StatusForbidden, apperror.KindForbidden},
		{"echo 404", echo.ErrNotFound, http.StatusNotFound, apperror.KindNotFound},
		{"echo 429", echo.NewHTTPError(http.StatusTooManyRequests), http.StatusTooManyRequests, "TOO_MANY_REQUESTS"},
		{"plain", errors.New("boom"), http.StatusInternalServerError, apperror.KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toAppError(tt.err)
			if got.Code != tt.wantCode || got.Type != tt.wantKind {
				t.Errorf("got %d %s, want %d %s", got.Code, got.Type, tt.wantCode, tt.wantKind)
			}
			if got.Message == "" {
				t.Error("expected a message")
			}
		})
	}
}

func newTestApp() *App {
	return &App{Config: &config.Config{Env: "development"}, Echo: echo.New()}
}

func TestErrorHandler_APIEnvelope(t *testing.T) {
	a := newTestApp()
	rec := httptest.NewRecorder()
	c := a.Echo.NewContext(httptest.NewRequest(http.MethodPost, "/api/auth/signin", nil), rec)

	a.errorHandler(apperror.NewValidation("bad", map[string]string{"email": "Invalid email format"}), c)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["success"] != false {
		t.Errorf("expected success=false, got %v", body["success"])
	}
}

func TestErrorHandler_BrowserUnauthorizedRedirects(t *testing.T) {
	a := newTestApp()
	rec := httptest.NewRecorder()
	c := a.Echo.NewContext(httptest.NewRequest(http.MethodGet, "/editor", nil), rec)

	a.errorHandler(apperror.NewUnauthorized("sign in"), c)

	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/signin" {
		t.Errorf("expected redirect to /signin, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestErrorHandler_InternalHidesDetail(t *testing.T) {
	a := newTestApp()
	rec := httptest.NewRecorder()
	c := a.Echo.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	a.errorHandler(errors.New("dial tcp 10.0.0.5:6379: connection refused"), c)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "6379") {
		t.Error("expected internal detail to stay out of the page")
	}
}
