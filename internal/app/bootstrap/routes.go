// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"
	"time"

	adminfeature "github.com/dalemusser/groupsync/internal/app/features/admin"
	crmhooksfeature "github.com/dalemusser/groupsync/internal/app/features/crmhooks"
	errorsfeature "github.com/dalemusser/groupsync/internal/app/features/errors"
	groupsapifeature "github.com/dalemusser/groupsync/internal/app/features/groupsapi"
	healthfeature "github.com/dalemusser/groupsync/internal/app/features/health"
	loginfeature "github.com/dalemusser/groupsync/internal/app/features/login"
	logoutfeature "github.com/dalemusser/groupsync/internal/app/features/logout"
	"github.com/dalemusser/groupsync/internal/app/system/auth"
	"github.com/dalemusser/groupsync/internal/app/system/ratelimit"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// Startup have completed, so deps.Runtime holds the running services.
//
// Routes:
//   - /health, /metrics: unauthenticated probes
//   - /login, /logout: operator session
//   - /admin: sync settings and reconciliation controls
//   - /api: Subsystem A group and membership operations
//   - /hooks/crm: signed CRM change notifications
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	rt := deps.Runtime

	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	sessionMgr, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain, appCfg.SessionMaxAge, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}

	errHandler := errorsfeature.NewHandler(logger)

	r := chi.NewRouter()

	// Global auth middleware: loads SessionUser into context if logged in.
	r.Use(sessionMgr.LoadSessionUser)
	r.NotFound(errHandler.NotFound)

	// Probes
	healthHandler := healthfeature.NewHandler(deps.MongoClient, rt.Settings, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/forbidden", errHandler.Forbidden)
	r.Get("/unauthorized", errHandler.Unauthorized)
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, "/admin", http.StatusSeeOther)
	})

	// Operator session
	loginHandler := loginfeature.NewHandler(sessionMgr, appCfg.AdminUser, appCfg.AdminPasswordHash, ratelimit.NewLoginLimiter(), logger)
	r.Mount("/login", loginfeature.Routes(loginHandler))

	logoutHandler := logoutfeature.NewHandler(sessionMgr, logger)
	r.Mount("/logout", logoutfeature.Routes(logoutHandler, sessionMgr))

	// Admin
	adminHandler := adminfeature.NewHandler(rt.Engine, rt.Settings, logger)
	r.Mount("/admin", adminfeature.Routes(adminHandler, sessionMgr))

	apiHandler := groupsapifeature.NewHandler(rt.Social, logger)
	r.Mount("/api", groupsapifeature.Routes(apiHandler, sessionMgr))

	// CRM webhooks
	hookHandler := crmhooksfeature.NewHandler(rt.CRMBus, appCfg.WebhookSecret, rt.Echoes, logger)
	var hookLimiter *ratelimit.Keyed
	if appCfg.WebhookRateLimit > 0 {
		hookLimiter = ratelimit.NewKeyed(appCfg.WebhookRateLimit, time.Minute, appCfg.WebhookRateLimit)
	}
	r.Mount("/hooks/crm", crmhooksfeature.Routes(hookHandler, hookLimiter))

	return r, nil
}
