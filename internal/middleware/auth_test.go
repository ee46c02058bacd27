package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func runAuth(t *testing.T, token, header string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	if header != "" {
		req.Header.Set(echo.HeaderAuthorization, header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := BearerAuth(token)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if err := handler(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	return rec
}

func TestBearerAuthAcceptsValidToken(t *testing.T) {
	rec := runAuth(t, "s3cret", "Bearer s3cret")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestBearerAuthRejectsBadToken(t *testing.T) {
	cases := []struct {
		name   string
		header string
	}{
		{"wrong token", "Bearer nope"},
		{"missing header", ""},
		{"not bearer", "Basic s3cret"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := runAuth(t, "s3cret", tc.header)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestBearerAuthEmptyTokenDisablesGuard(t *testing.T) {
	rec := runAuth(t, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want guard disabled", rec.Code)
	}
}
