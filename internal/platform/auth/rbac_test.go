package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func contextWithRoles(req *http.Request, roles ...string) *http.Request {
	ctx := context.WithValue(req.Context(), UserRolesKey, roles)
	return req.WithContext(ctx)
}

func runRequireRole(req *http.Request, required ...string) error {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	handler := RequireRole(required...)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	return handler(c)
}

func TestRequireRole_Allowed(t *testing.T) {
	req := contextWithRoles(httptest.NewRequest(http.MethodGet, "/", nil), "nurse")
	if err := runRequireRole(req, "nurse", "physician"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRequireRole_AdminBypass(t *testing.T) {
	req := contextWithRoles(httptest.NewRequest(http.MethodGet, "/", nil), "admin")
	if err := runRequireRole(req, "physician"); err != nil {
		t.Fatalf("expected admin to pass, got %v", err)
	}
}

func TestRequireRole_Forbidden(t *testing.T) {
	req := contextWithRoles(httptest.NewRequest(http.MethodGet, "/", nil), "clerk")
	if err := runRequireRole(req, "nurse"); err == nil {
		t.Fatal("expected forbidden error")
	}
}

func TestRequireRole_NoRoles(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if err := runRequireRole(req, "nurse"); err == nil {
		t.Fatal("expected forbidden error when no roles in context")
	}
}
