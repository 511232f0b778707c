package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/groupsync/internal/domain/models"
	"github.com/dalemusser/groupsync/internal/testutil"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func validConfig() AppConfig {
	return AppConfig{
		MongoURI:         "mongodb://localhost:27017",
		MongoDatabase:    "groupsync",
		CRMBaseURL:       "https://crm.example.org/civicrm/ajax/rest",
		CRMRateLimit:     10,
		ReconcileChunk:   50,
		EagerResyncLimit: models.DefaultEagerResyncLimit,
		WebhookRateLimit: 600,
		EchoTTL:          2 * time.Minute,
		SessionKey:       strings.Repeat("k", 32),
		SessionMaxAge:    time.Hour,
		AdminUser:        "operator",
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr string
	}{
		{"valid", func(*AppConfig) {}, ""},
		{"bad mongo uri", func(c *AppConfig) { c.MongoURI = "postgres://nope" }, "invalid MongoDB URI"},
		{"missing database", func(c *AppConfig) { c.MongoDatabase = "" }, "mongo_database is required"},
		{"missing crm url", func(c *AppConfig) { c.CRMBaseURL = "" }, "crm_base_url is required"},
		{"relative crm url", func(c *AppConfig) { c.CRMBaseURL = "/civicrm/rest" }, "not an absolute URL"},
		{"oauth without token url", func(c *AppConfig) { c.CRMOAuthClientID = "client" }, "crm_oauth_token_url"},
		{"zero chunk", func(c *AppConfig) { c.ReconcileChunk = 0 }, "reconcile_chunk"},
		{"zero eager limit", func(c *AppConfig) { c.EagerResyncLimit = 0 }, "eager_resync_limit"},
		{"negative interval", func(c *AppConfig) { c.ReconcileInterval = -time.Second }, "reconcile_interval"},
		{"webhook without rate", func(c *AppConfig) {
			c.WebhookSecret = "s3cret"
			c.WebhookRateLimit = 0
		}, "webhook_rate_limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := ValidateConfig(&config.CoreConfig{}, cfg, testLogger())
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateConfig_ReportsEveryProblem(t *testing.T) {
	cfg := validConfig()
	cfg.CRMBaseURL = ""
	cfg.ReconcileChunk = 0

	err := ValidateConfig(&config.CoreConfig{}, cfg, testLogger())
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"crm_base_url", "reconcile_chunk"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestCRMConfig_OAuthOnlyWithClientID(t *testing.T) {
	cfg := validConfig()
	cfg.CRMAPIKey = "api"
	cfg.CRMSiteKey = "site"
	cfg.CRMBurst = 3

	got := crmConfig(cfg, nil)
	if got.OAuth != nil {
		t.Error("OAuth configured without a client ID")
	}
	if got.APIKey != "api" || got.SiteKey != "site" || got.RateLimit != 10 || got.Burst != 3 {
		t.Errorf("crm config = %+v", got)
	}

	cfg.CRMOAuthClientID = "client"
	cfg.CRMOAuthClientSecret = "secret"
	cfg.CRMOAuthTokenURL = "https://crm.example.org/oauth/token"
	got = crmConfig(cfg, nil)
	if got.OAuth == nil {
		t.Fatal("OAuth not configured")
	}
	if got.OAuth.ClientID != "client" || got.OAuth.TokenURL != "https://crm.example.org/oauth/token" {
		t.Errorf("oauth = %+v", got.OAuth)
	}
}

func TestInitialSettings(t *testing.T) {
	cfg := validConfig()
	cfg.SyncEnabledDefault = true
	cfg.UseContainerDefault = false
	cfg.EagerResyncLimit = 0

	got := initialSettings(cfg)
	if !got.SyncEnabled || got.UseContainer {
		t.Errorf("flags = %+v", got)
	}
	if got.EagerResyncLimit != models.DefaultEagerResyncLimit {
		t.Errorf("EagerResyncLimit = %d, want default", got.EagerResyncLimit)
	}
	if got.UpdatedBy != "config" {
		t.Errorf("UpdatedBy = %q", got.UpdatedBy)
	}
}

func TestStartupAndHandler(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	crmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"is_error":0,"count":0,"values":[]}`))
	}))
	defer crmSrv.Close()

	coreCfg := &config.CoreConfig{Env: "dev"}
	appCfg := validConfig()
	appCfg.CRMBaseURL = crmSrv.URL
	appCfg.UseContainerDefault = true
	appCfg.SyncEnabledDefault = true

	deps := DBDeps{MongoClient: db.Client(), MongoDatabase: db, Runtime: &Runtime{}}
	if err := EnsureSchema(ctx, coreCfg, appCfg, deps, testLogger()); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
	if err := Startup(ctx, coreCfg, appCfg, deps, testLogger()); err != nil {
		t.Fatalf("Startup failed: %v", err)
	}
	t.Cleanup(func() {
		deps.Engine.Stop()
		deps.Echoes.Close()
	})

	if deps.Engine == nil || deps.Social == nil || deps.CRM == nil {
		t.Fatalf("runtime not assembled: %+v", deps.Runtime)
	}
	if deps.Reconciler != nil {
		t.Error("reconciler started with a zero interval")
	}
	settings, err := deps.Settings.Get(ctx)
	if err != nil {
		t.Fatalf("settings Get failed: %v", err)
	}
	if settings.UpdatedBy != "config" {
		t.Errorf("settings not seeded: %+v", settings)
	}

	h, err := BuildHandler(coreCfg, appCfg, deps, testLogger())
	if err != nil {
		t.Fatalf("BuildHandler failed: %v", err)
	}

	tests := []struct {
		method, path string
		accept       string
		want         int
	}{
		{"GET", "/health", "", http.StatusOK},
		{"GET", "/metrics", "", http.StatusOK},
		{"GET", "/login", "text/html", http.StatusOK},
		{"GET", "/admin/status", "text/html", http.StatusSeeOther},
		{"GET", "/api/groups", "application/json", http.StatusUnauthorized},
		{"POST", "/hooks/crm", "", http.StatusNotFound},
		{"GET", "/nope", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.accept != "" {
				req.Header.Set("Accept", tt.accept)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
