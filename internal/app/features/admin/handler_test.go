package admin_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/groupsync/internal/app/features/admin"
	"github.com/dalemusser/groupsync/internal/app/groupsync/synctest"
	"github.com/dalemusser/groupsync/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

func newRouter(t *testing.T) (chi.Router, *synctest.Env) {
	t.Helper()
	env := synctest.New(t)
	sm, err := auth.NewSessionManager("test-session-key-must-be-32-chars-long", "test-session", "", 24*time.Hour, false, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSessionManager failed: %v", err)
	}
	h := admin.NewHandler(env.Engine, env.Settings, zap.NewNop())
	return admin.Routes(h, sm), env
}

func asAdmin(r *http.Request) *http.Request {
	return auth.WithTestUser(r, &auth.SessionUser{Name: "operator", Role: auth.RoleAdmin})
}

func postForm(router http.Handler, path string, form url.Values, referer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asAdmin(req))
	return rec
}

type status struct {
	Settings struct {
		SyncEnabled  bool `json:"sync_enabled"`
		UseContainer bool `json:"use_container"`
	} `json:"settings"`
	Reconcile struct {
		Configured bool   `json:"configured"`
		InProgress bool   `json:"in_progress"`
		Step       string `json:"step"`
	} `json:"reconcile"`
}

func getStatus(t *testing.T, router http.Handler) status {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asAdmin(httptest.NewRequest("GET", "/status", nil)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: expected %d, got %d", http.StatusOK, rec.Code)
	}
	var s status
	if err := json.Unmarshal(rec.Body.Bytes(), &s); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	return s
}

func TestRoutes_RequireSignIn(t *testing.T) {
	router, _ := newRouter(t)

	req := httptest.NewRequest("GET", "/status", nil)
	req.Header.Set("Accept", "text/html")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected status %d, got %d", http.StatusSeeOther, rec.Code)
	}
	if loc := rec.Header().Get("Location"); !strings.HasPrefix(loc, "/login?return=") {
		t.Errorf("Location: got %q", loc)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/reconcile/step", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("api request: expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestRoutes_RejectOtherRoles(t *testing.T) {
	router, _ := newRouter(t)

	req := auth.WithTestUser(httptest.NewRequest("GET", "/status", nil), &auth.SessionUser{Name: "v", Role: "viewer"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected status %d, got %d", http.StatusForbidden, rec.Code)
	}
}

func TestServeStatus_Defaults(t *testing.T) {
	router, _ := newRouter(t)

	s := getStatus(t, router)

	if !s.Settings.SyncEnabled || !s.Settings.UseContainer {
		t.Errorf("settings = %+v, want defaults", s.Settings)
	}
	if !s.Reconcile.Configured || s.Reconcile.InProgress {
		t.Errorf("reconcile = %+v, want configured and idle", s.Reconcile)
	}
}

func TestReconcileStep_AdvancesAndRedirects(t *testing.T) {
	router, env := newRouter(t)
	owner := env.User(t, "owner", "owner@example.org")
	env.Group(t, "Board", owner.ID, 0)

	rec := postForm(router, "/reconcile/step", nil, "http://example.com/admin/status?tab=sync")

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected status %d, got %d", http.StatusSeeOther, rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/admin/status?tab=sync&updated=1" {
		t.Errorf("Location: got %q", loc)
	}
	if _, ok, _ := env.State.Load(env.Ctx); !ok {
		t.Error("no reconcile position saved after one step")
	}
	if s := getStatus(t, router); !s.Reconcile.InProgress || s.Reconcile.Step == "" {
		t.Errorf("reconcile = %+v, want a run in progress", s.Reconcile)
	}

	postForm(router, "/reconcile/reset", nil, "")
	if _, ok, _ := env.State.Load(env.Ctx); ok {
		t.Error("reconcile position survived reset")
	}
}

func TestAction_ForeignRefererFallsBack(t *testing.T) {
	router, _ := newRouter(t)

	rec := postForm(router, "/hierarchy/build", nil, "https://evil.example.net/admin")

	if loc := rec.Header().Get("Location"); loc != "/admin/status?updated=1" {
		t.Errorf("Location: got %q, want %q", loc, "/admin/status?updated=1")
	}
}

func TestSettings_Toggles(t *testing.T) {
	router, env := newRouter(t)

	postForm(router, "/settings/container", url.Values{"enabled": {"false"}}, "")
	postForm(router, "/settings/enabled", url.Values{"enabled": {"false"}}, "")

	st, _ := env.Settings.Get(env.Ctx)
	if st.UseContainer || st.SyncEnabled {
		t.Errorf("settings = %+v, want both off", st)
	}
	if st.UpdatedBy != "operator" {
		t.Errorf("UpdatedBy = %q, want operator", st.UpdatedBy)
	}
}

func TestSettings_BadValue(t *testing.T) {
	router, _ := newRouter(t)

	rec := postForm(router, "/settings/enabled", url.Values{"enabled": {"maybe"}}, "")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}
