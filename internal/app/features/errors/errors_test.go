package errors_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	errorsfeature "github.com/dalemusser/groupsync/internal/app/features/errors"
	"github.com/dalemusser/groupsync/internal/app/system/auth"
	"go.uber.org/zap"
)

func TestForbidden_HTML(t *testing.T) {
	h := errorsfeature.NewHandler(zap.NewNop())
	req := httptest.NewRequest("GET", "/forbidden", nil)
	req.Header.Set("Accept", "text/html")
	req = auth.WithTestUser(req, &auth.SessionUser{Name: "operator", Role: "viewer"})
	rec := httptest.NewRecorder()

	h.Forbidden(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Access denied") || !strings.Contains(body, "Signed in as operator") {
		t.Errorf("unexpected body: %s", body)
	}
}

func TestNotFound_PlainForAPIClients(t *testing.T) {
	h := errorsfeature.NewHandler(nil)
	rec := httptest.NewRecorder()

	h.NotFound(rec, httptest.NewRequest("GET", "/api/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "not found" {
		t.Errorf("body = %q, want %q", got, "not found")
	}
}

func TestUnauthorized_LinksToLogin(t *testing.T) {
	h := errorsfeature.NewHandler(nil)
	req := httptest.NewRequest("GET", "/unauthorized", nil)
	req.Header.Set("Accept", "text/html")
	rec := httptest.NewRecorder()

	h.Unauthorized(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if !strings.Contains(rec.Body.String(), `href="/login"`) {
		t.Errorf("missing sign-in link: %s", rec.Body.String())
	}
}
