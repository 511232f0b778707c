// internal/app/bootstrap/config.go
package bootstrap

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/dalemusser/groupsync/internal/domain/models"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/gorilla/securecookie"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys for groupsync.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, crm_base_url, etc.
//   - Environment variables: GROUPSYNC_MONGO_URI, GROUPSYNC_CRM_BASE_URL, etc.
//   - Command-line flags: --mongo_uri, --crm_base_url, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "groupsync", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},

	// CRM
	{Name: "crm_base_url", Default: "", Desc: "CRM REST endpoint URL"},
	{Name: "crm_api_key", Default: "", Desc: "CRM API key"},
	{Name: "crm_site_key", Default: "", Desc: "CRM site key"},
	{Name: "crm_oauth_client_id", Default: "", Desc: "OAuth2 client ID for the CRM (blank disables OAuth)"},
	{Name: "crm_oauth_client_secret", Default: "", Desc: "OAuth2 client secret for the CRM"},
	{Name: "crm_oauth_token_url", Default: "", Desc: "OAuth2 token endpoint for the CRM"},
	{Name: "crm_rate_limit", Default: 10, Desc: "CRM requests per second (0 disables limiting)"},
	{Name: "crm_burst", Default: 5, Desc: "CRM request burst"},
	{Name: "crm_timeout", Default: "15s", Desc: "Per-request CRM timeout"},

	// Webhooks
	{Name: "webhook_secret", Default: "", Desc: "HMAC secret for CRM webhooks (blank disables /hooks/crm)"},
	{Name: "webhook_rate_limit", Default: 600, Desc: "Webhook deliveries per client IP per minute"},
	{Name: "echo_ttl", Default: "2m", Desc: "How long our own CRM writes are ignored when echoed back"},

	// Sessions and the operator account
	{Name: "session_key", Default: "", Desc: "Session signing key (generated per process when blank)"},
	{Name: "session_name", Default: "groupsync-session", Desc: "Session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},
	{Name: "session_max_age", Default: "24h", Desc: "Session lifetime"},
	{Name: "admin_user", Default: "admin", Desc: "Operator login name"},
	{Name: "admin_password_hash", Default: "", Desc: "bcrypt hash of the operator password (blank disables sign-in)"},

	// Sync
	{Name: "reconcile_interval", Default: "0s", Desc: "Background reconciliation interval (0 disables)"},
	{Name: "reconcile_chunk", Default: 50, Desc: "Reconciliation page size"},
	{Name: "eager_resync_limit", Default: models.DefaultEagerResyncLimit, Desc: "Largest group resynced inline when a mapping changes"},
	{Name: "legacy_creator_id", Default: 1, Desc: "Owner of groups imported from legacy CRM records"},
	{Name: "use_container_default", Default: true, Desc: "Initial use_container setting for a fresh database"},
	{Name: "sync_enabled_default", Default: true, Desc: "Initial sync_enabled setting for a fresh database"},

	// Deadlines
	{Name: "sync_timeout", Default: "30s", Desc: "Deadline for one sync call"},
	{Name: "batch_timeout", Default: "2m", Desc: "Deadline for one reconciliation chunk"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles .env files, config files,
// GROUPSYNC_* environment variables and flags, merged with precedence
// flags > env > files > defaults.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "GROUPSYNC", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		CRMBaseURL:           appValues.String("crm_base_url"),
		CRMAPIKey:            appValues.String("crm_api_key"),
		CRMSiteKey:           appValues.String("crm_site_key"),
		CRMOAuthClientID:     appValues.String("crm_oauth_client_id"),
		CRMOAuthClientSecret: appValues.String("crm_oauth_client_secret"),
		CRMOAuthTokenURL:     appValues.String("crm_oauth_token_url"),
		CRMRateLimit:         appValues.Int("crm_rate_limit"),
		CRMBurst:             appValues.Int("crm_burst"),
		CRMTimeout:           appValues.Duration("crm_timeout", 15*time.Second),

		WebhookSecret:    appValues.String("webhook_secret"),
		WebhookRateLimit: appValues.Int("webhook_rate_limit"),
		EchoTTL:          appValues.Duration("echo_ttl", 2*time.Minute),

		SessionKey:        appValues.String("session_key"),
		SessionName:       appValues.String("session_name"),
		SessionDomain:     appValues.String("session_domain"),
		SessionMaxAge:     appValues.Duration("session_max_age", 24*time.Hour),
		AdminUser:         appValues.String("admin_user"),
		AdminPasswordHash: appValues.String("admin_password_hash"),

		ReconcileInterval:   appValues.Duration("reconcile_interval", 0),
		ReconcileChunk:      appValues.Int("reconcile_chunk"),
		EagerResyncLimit:    appValues.Int("eager_resync_limit"),
		LegacyCreatorID:     int64(appValues.Int("legacy_creator_id")),
		UseContainerDefault: appValues.Bool("use_container_default"),
		SyncEnabledDefault:  appValues.Bool("sync_enabled_default"),

		SyncTimeout:  appValues.Duration("sync_timeout", 30*time.Second),
		BatchTimeout: appValues.Duration("batch_timeout", 2*time.Minute),
	}

	if appCfg.SessionKey == "" {
		appCfg.SessionKey = string(securecookie.GenerateRandomKey(32))
		logger.Warn("session_key not set; generated a per-process key, sessions will not survive restarts")
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// It catches configuration errors before anything connects: the MongoDB URI
// format, the CRM endpoint, and the numeric sync knobs.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}

	var errs error
	if appCfg.MongoDatabase == "" {
		errs = multierr.Append(errs, errors.New("mongo_database is required"))
	}
	if appCfg.CRMBaseURL == "" {
		errs = multierr.Append(errs, errors.New("crm_base_url is required"))
	} else if u, err := url.Parse(appCfg.CRMBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = multierr.Append(errs, fmt.Errorf("crm_base_url %q is not an absolute URL", appCfg.CRMBaseURL))
	}
	if appCfg.CRMOAuthClientID != "" && appCfg.CRMOAuthTokenURL == "" {
		errs = multierr.Append(errs, errors.New("crm_oauth_token_url is required with crm_oauth_client_id"))
	}
	if appCfg.CRMRateLimit < 0 {
		errs = multierr.Append(errs, errors.New("crm_rate_limit must not be negative"))
	}
	if appCfg.ReconcileChunk <= 0 {
		errs = multierr.Append(errs, errors.New("reconcile_chunk must be positive"))
	}
	if appCfg.EagerResyncLimit <= 0 {
		errs = multierr.Append(errs, errors.New("eager_resync_limit must be positive"))
	}
	if appCfg.ReconcileInterval < 0 {
		errs = multierr.Append(errs, errors.New("reconcile_interval must not be negative"))
	}
	if appCfg.WebhookSecret != "" && appCfg.WebhookRateLimit <= 0 {
		errs = multierr.Append(errs, errors.New("webhook_rate_limit must be positive when webhooks are enabled"))
	}
	if appCfg.AdminPasswordHash == "" {
		logger.Warn("admin_password_hash not set; operator sign-in is disabled")
	}
	return errs
}
